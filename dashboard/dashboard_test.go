package dashboard

import (
	"context"
	"fmt"
	"testing"
	"time"

	"cinema_pos/database"
	"cinema_pos/events"
	"cinema_pos/model"
	"cinema_pos/orderstore"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store   *orderstore.Store
	service *Service
	cache   *Cache
	mr      *miniredis.Miniredis
	theater model.Theater
	n       int
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	theater := model.Theater{Name: "Galaxy Andheri", Slug: "galaxy-andheri", Code: "GAL", Timezone: "Asia/Kolkata", Active: true}
	require.NoError(t, db.Create(&theater).Error)
	popcorn := model.Product{TheaterId: theater.ID, Name: "Popcorn", BasePrice: 100, Category: "food", Active: true}
	samosa := model.Product{TheaterId: theater.ID, Name: "Samosa", BasePrice: 40, Category: "food", Active: true}
	require.NoError(t, db.Create(&popcorn).Error)
	require.NoError(t, db.Create(&samosa).Error)
	require.NoError(t, db.Model(&samosa).Update("active", false).Error)

	clock := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	store := orderstore.New(db).WithClock(now)
	service := NewService(db, store).WithClock(now)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return &fixture{
		store:   store,
		service: service,
		cache:   NewCache(rdb, service, time.Minute),
		mr:      mr,
		theater: theater,
	}
}

func (f *fixture) order(t *testing.T, source model.Source, method model.PaymentMethod, status model.OrderStatus, item model.OrderItem) {
	t.Helper()
	f.n++
	id, _ := uuid.NewV7()
	item.LineTotal = item.UnitPrice * item.Quantity
	order := &model.Order{
		ID:             id.String(),
		TheaterId:      f.theater.ID,
		IdempotencyKey: fmt.Sprintf("k%d", f.n),
		Source:         source,
		OrderType:      source.OrderType(),
		Channel:        source.Channel(),
		CustomerName:   "Meera",
		Status:         model.OrderPending,
		Payment:        model.Payment{Status: model.PaymentPending, Method: method},
		Pricing:        model.Pricing{Subtotal: item.LineTotal, Total: item.LineTotal},
		Items:          []model.OrderItem{item},
	}
	ctx := context.Background()
	_, err := f.store.Create(ctx, order, "staff:1")
	require.NoError(t, err)
	if status == model.OrderPaid {
		_, err = f.store.Transition(ctx, order.ID, model.OrderPending, model.OrderPaid, model.OrderPatch{
			Payment: &model.Payment{Status: model.PaymentPaid, Method: method},
		}, "staff:1")
		require.NoError(t, err)
	}
}

func popcorn(qty int64) model.OrderItem {
	return model.OrderItem{ProductId: 1, Name: "Popcorn", Category: "food", Quantity: qty, UnitPrice: 105, GSTType: model.GSTInclude}
}

func cola() model.OrderItem {
	return model.OrderItem{ProductId: 3, Name: "Cola", Category: "beverages", Quantity: 1, UnitPrice: 105, GSTType: model.GSTInclude}
}

func TestComputeAggregates(t *testing.T) {
	f := setup(t)
	f.order(t, model.SourcePOS, model.MethodCash, model.OrderPaid, popcorn(2))
	f.order(t, model.SourceKiosk, model.MethodUPI, model.OrderPaid, cola())
	f.order(t, model.SourceQRCode, model.MethodUPI, model.OrderPending, popcorn(5))
	f.order(t, model.SourceOfflinePOS, model.MethodCash, model.OrderPaid, popcorn(1))

	start, end, err := f.service.Range(f.theater, "", "")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-24", start)
	assert.Equal(t, "2026-03-02", end)

	d, err := f.service.Compute(context.Background(), f.theater, start, end)
	require.NoError(t, err)

	assert.Equal(t, model.DashboardStats{TodayRevenue: 420, ActiveProducts: 1, TotalProducts: 2, TotalOrders: 4}, d.Stats)
	assert.Equal(t, int64(315), d.Channels["pos"].Amount)
	assert.Equal(t, int64(2), d.Channels["pos"].Orders)
	assert.Equal(t, map[string]int64{"cash": 315}, d.Channels["pos"].ByMethod)
	assert.Equal(t, map[string]int64{"upi": 105}, d.Channels["kiosk"].ByMethod)
	assert.Zero(t, d.Channels["online"].Amount)

	assert.Equal(t, []model.SalesPoint{{Day: "2026-03-02", Amount: 420, Orders: 3}}, d.SalesOverTime)
	assert.Equal(t, []model.CategoryEarning{
		{Category: "food", Amount: 315, Quantity: 3},
		{Category: "beverages", Amount: 105, Quantity: 1},
	}, d.CategoryEarnings)
	require.NotEmpty(t, d.TopProducts)
	assert.Equal(t, model.TopProduct{ProductId: 1, Name: "Popcorn", Quantity: 3, Amount: 315}, d.TopProducts[0])
	assert.Len(t, d.RecentTransactions, 4)
	assert.Equal(t, int64(7), d.Revision)
}

func TestRangeRejectsInvertedDates(t *testing.T) {
	f := setup(t)
	_, _, err := f.service.Range(f.theater, "2026-03-05", "2026-03-01")
	assert.Error(t, err)
}

func TestCacheMatchesDirectComputation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.order(t, model.SourcePOS, model.MethodCash, model.OrderPaid, popcorn(1))

	cached, err := f.cache.Get(ctx, f.theater, "2026-03-01", "2026-03-02")
	require.NoError(t, err)
	assert.True(t, f.mr.Exists("pos:dash:1:2026-03-01:2026-03-02"))

	// a write bumps the revision, so the stale entry is not served
	f.order(t, model.SourceKiosk, model.MethodCash, model.OrderPaid, cola())
	cached, err = f.cache.Get(ctx, f.theater, "2026-03-01", "2026-03-02")
	require.NoError(t, err)
	direct, err := f.service.Compute(ctx, f.theater, "2026-03-01", "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, direct, cached)
	assert.Equal(t, int64(210), cached.Stats.TodayRevenue)

	// served from Redis this time
	again, err := f.cache.Get(ctx, f.theater, "2026-03-01", "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, direct, again)

	handler := f.cache.Handler()
	require.NoError(t, handler(ctx, events.Message{TheaterId: f.theater.ID, OrderId: "x", Version: 1}))
	assert.False(t, f.mr.Exists("pos:dash:1:2026-03-01:2026-03-02"))
	assert.False(t, f.mr.Exists("pos:dash:index:1"))
}

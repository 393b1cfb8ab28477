package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"cinema_pos/apperror"
	"cinema_pos/database"
	"cinema_pos/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const theater = uint(1)

func setupLedger(t *testing.T, stock map[uint]int64) (*Ledger, *gorm.DB) {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	l := New(db, time.Minute)
	for id, qty := range stock {
		require.NoError(t, l.Init(context.Background(), theater, id, qty))
	}
	return l, db
}

func assertConserved(t *testing.T, l *Ledger, productID uint) {
	t.Helper()
	ctx := context.Background()
	lvl, err := l.Level(ctx, theater, productID)
	require.NoError(t, err)
	open, err := l.OpenQuantity(ctx, theater, productID)
	require.NoError(t, err)
	assert.Equal(t, lvl.Initial, lvl.Available+open+lvl.Committed-lvl.Restocked, "stock conservation for product %d", productID)
}

func TestReserveAllOrNothing(t *testing.T) {
	l, _ := setupLedger(t, map[uint]int64{1: 5, 2: 1})
	ctx := context.Background()

	err := l.Reserve(ctx, theater, "order-a", []model.ReserveLine{{ProductId: 1, Quantity: 2}, {ProductId: 2, Quantity: 2}})
	require.Error(t, err)

	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.KindInsufficientStock, appErr.Kind)
	assert.Equal(t, uint(2), appErr.ProductID)
	assert.Equal(t, int64(1), appErr.Available)

	avail, err := l.Available(ctx, theater, []uint{1, 2})
	require.NoError(t, err)
	assert.Equal(t, map[uint]int64{1: 5, 2: 1}, avail)

	rows, err := l.Reservations(ctx, "order-a")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReserveMergesDuplicateLines(t *testing.T) {
	l, _ := setupLedger(t, map[uint]int64{1: 3})
	ctx := context.Background()

	require.NoError(t, l.Reserve(ctx, theater, "order-a", []model.ReserveLine{{ProductId: 1, Quantity: 1}, {ProductId: 1, Quantity: 2}}))

	rows, err := l.Reservations(ctx, "order-a")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0].Quantity)
	assertConserved(t, l, 1)
}

func TestReserveIsIdempotentPerOrder(t *testing.T) {
	l, _ := setupLedger(t, map[uint]int64{1: 5})
	ctx := context.Background()

	lines := []model.ReserveLine{{ProductId: 1, Quantity: 2}}
	require.NoError(t, l.Reserve(ctx, theater, "order-a", lines))
	require.NoError(t, l.Reserve(ctx, theater, "order-a", lines))

	avail, err := l.Available(ctx, theater, []uint{1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), avail[1])
}

func TestCommitReleaseReturn(t *testing.T) {
	l, _ := setupLedger(t, map[uint]int64{1: 10})
	ctx := context.Background()

	require.NoError(t, l.Reserve(ctx, theater, "paid", []model.ReserveLine{{ProductId: 1, Quantity: 2}}))
	require.NoError(t, l.Reserve(ctx, theater, "abandoned", []model.ReserveLine{{ProductId: 1, Quantity: 3}}))
	assertConserved(t, l, 1)

	require.NoError(t, l.Commit(ctx, "paid"))
	require.NoError(t, l.Commit(ctx, "paid"))
	require.NoError(t, l.Release(ctx, "abandoned"))
	require.NoError(t, l.Release(ctx, "abandoned"))
	// releasing a committed order does nothing
	require.NoError(t, l.Release(ctx, "paid"))

	lvl, err := l.Level(ctx, theater, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(8), lvl.Available)
	assert.Equal(t, int64(2), lvl.Committed)
	assertConserved(t, l, 1)

	require.NoError(t, l.Return(ctx, "paid"))
	require.NoError(t, l.Return(ctx, "paid"))
	lvl, err = l.Level(ctx, theater, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), lvl.Available)
	assert.Equal(t, int64(0), lvl.Committed)
	assertConserved(t, l, 1)
}

func TestRestockKeepsConservation(t *testing.T) {
	l, _ := setupLedger(t, map[uint]int64{1: 1})
	ctx := context.Background()

	require.NoError(t, l.Reserve(ctx, theater, "o1", []model.ReserveLine{{ProductId: 1, Quantity: 1}}))
	require.NoError(t, l.Commit(ctx, "o1"))

	lvl, err := l.Restock(ctx, theater, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(4), lvl.Available)
	assert.Equal(t, int64(4), lvl.Restocked)
	assertConserved(t, l, 1)

	_, err = l.Restock(ctx, theater, 1, 0)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestExpiredAndPin(t *testing.T) {
	l, _ := setupLedger(t, map[uint]int64{1: 10})
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	l.WithClock(func() time.Time { return now })

	require.NoError(t, l.Reserve(ctx, theater, "gateway", []model.ReserveLine{{ProductId: 1, Quantity: 1}}))
	require.NoError(t, l.Reserve(ctx, theater, "pinned", []model.ReserveLine{{ProductId: 1, Quantity: 1}}))
	require.NoError(t, l.Pin(ctx, "pinned"))

	ids, err := l.Expired(ctx, theater, now.Add(30*time.Second))
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = l.Expired(ctx, theater, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"gateway"}, ids)

	theaters, err := l.TheatersWithOpen(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint{theater}, theaters)
}

func TestConcurrentReserveForLastUnit(t *testing.T) {
	l, _ := setupLedger(t, map[uint]int64{1: 1})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{"order-a", "order-b"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			errs[i] = l.Reserve(ctx, theater, id, []model.ReserveLine{{ProductId: 1, Quantity: 1}})
		}(i, id)
	}
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperror.Is(err, apperror.KindInsufficientStock):
			short++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)

	avail, err := l.Available(ctx, theater, []uint{1})
	require.NoError(t, err)
	assert.Equal(t, int64(0), avail[1])
	assertConserved(t, l, 1)
}

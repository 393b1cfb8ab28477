package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cinema_pos/database"
	"cinema_pos/model"
	"cinema_pos/orderstore"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupBus(t *testing.T) (*RedisBus, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisBus(rdb), mr
}

func event(id uint, orderID string, version int64, status model.OrderStatus) model.OrderEvent {
	return model.OrderEvent{
		ID:        id,
		TheaterId: 3,
		OrderId:   orderID,
		Version:   version,
		Type:      model.EventOrderUpdated,
		Status:    status,
		Payload:   `{"id":"` + orderID + `","orderNumber":"GAL-20260302-0001","pricing":{"total":21000}}`,
	}
}

type recorder struct {
	mu    sync.Mutex
	msgs  []Message
	fail  int
	calls int
}

func (r *recorder) handle(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.fail > 0 {
		r.fail--
		return errors.New("downstream unavailable")
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func TestConsumerReadsInOrderAndDedupes(t *testing.T) {
	bus, mr := setupBus(t)
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, event(1, "o-1", 1, model.OrderPending)))
	require.NoError(t, bus.Publish(ctx, event(2, "o-1", 2, model.OrderPaid)))
	assert.True(t, mr.Exists("pos:theater:3:orders"))

	rec := &recorder{}
	c := bus.Consumer(GroupDashboard, "test", rec.handle).WithBlock(10 * time.Millisecond)
	n, err := c.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, rec.msgs, 2)
	assert.Equal(t, int64(1), rec.msgs[0].Version)
	assert.Equal(t, model.OrderPaid, rec.msgs[1].Status)
	assert.Equal(t, uint(3), rec.msgs[1].TheaterId)
	require.NotNil(t, rec.msgs[1].Order)
	assert.Equal(t, "GAL-20260302-0001", rec.msgs[1].Order.OrderNumber)

	// a relay retry republishes the same version
	require.NoError(t, bus.Publish(ctx, event(2, "o-1", 2, model.OrderPaid)))
	_, err = c.Poll(ctx)
	require.NoError(t, err)
	assert.Len(t, rec.msgs, 2)

	// another group sees everything on its own
	other := &recorder{}
	_, err = bus.Consumer(GroupNotify, "test", other.handle).WithBlock(10 * time.Millisecond).Poll(ctx)
	require.NoError(t, err)
	assert.Len(t, other.msgs, 2)
}

func TestConsumerRetriesFailedEntry(t *testing.T) {
	bus, _ := setupBus(t)
	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, event(1, "o-9", 1, model.OrderPaid)))

	rec := &recorder{fail: 1}
	c := bus.Consumer(GroupMail, "test", rec.handle).WithBlock(10 * time.Millisecond).WithRetryDelay(0)

	_, err := c.Poll(ctx)
	require.NoError(t, err)
	assert.Empty(t, rec.msgs)

	// left pending, so the next poll retries it
	_, err = c.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, rec.msgs, 1)
	assert.Equal(t, "o-9", rec.msgs[0].OrderId)
}

func TestConsumerBacksOffBetweenRetries(t *testing.T) {
	bus, _ := setupBus(t)
	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, event(1, "o-10", 1, model.OrderPaid)))

	rec := &recorder{fail: 2}
	c := bus.Consumer(GroupMail, "test", rec.handle).WithBlock(5 * time.Millisecond).WithRetryDelay(40 * time.Millisecond)

	n, err := c.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// still inside the first delay: the entry is left alone
	for i := 0; i < 3; i++ {
		n, err = c.Poll(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	}
	assert.Equal(t, 1, rec.calls)

	time.Sleep(50 * time.Millisecond)
	_, err = c.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.calls)

	// the second failure doubles the wait
	time.Sleep(50 * time.Millisecond)
	_, err = c.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.calls)

	time.Sleep(40 * time.Millisecond)
	_, err = c.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.calls)
	require.Len(t, rec.msgs, 1)
	assert.Equal(t, "o-10", rec.msgs[0].OrderId)
}

func TestRelayFlushesOutboxInOrder(t *testing.T) {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	theater := model.Theater{Name: "Galaxy", Slug: "galaxy", Code: "GAL", Timezone: "Asia/Kolkata", Active: true}
	require.NoError(t, db.Create(&theater).Error)
	store := orderstore.New(db)
	ctx := context.Background()

	id, _ := uuid.NewV7()
	order := &model.Order{
		ID:             id.String(),
		TheaterId:      theater.ID,
		IdempotencyKey: "k1",
		Source:         model.SourcePOS,
		OrderType:      model.SourcePOS.OrderType(),
		Channel:        model.SourcePOS.Channel(),
		CustomerName:   "Ravi",
		Status:         model.OrderPending,
		Payment:        model.Payment{Status: model.PaymentPending, Method: model.MethodCash},
		Pricing:        model.Pricing{Subtotal: 100, Total: 100},
		Items:          []model.OrderItem{{ProductId: 1, Name: "Nachos", Quantity: 1, UnitPrice: 100, GSTType: model.GSTInclude}},
	}
	_, err = store.Create(ctx, order, "staff:1")
	require.NoError(t, err)
	_, err = store.Transition(ctx, order.ID, model.OrderPending, model.OrderPaid, model.OrderPatch{
		Payment: &model.Payment{Status: model.PaymentPaid, Method: model.MethodCash},
	}, "staff:1")
	require.NoError(t, err)

	bus, _ := setupBus(t)
	relay := NewRelay(store, bus, time.Second)
	n, err := relay.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = relay.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	rec := &recorder{}
	_, err = bus.Consumer(GroupPrint, "test", rec.handle).WithBlock(10 * time.Millisecond).Poll(ctx)
	require.NoError(t, err)
	require.Len(t, rec.msgs, 2)
	assert.Equal(t, model.EventOrderCreated, rec.msgs[0].Type)
	assert.Equal(t, model.OrderPaid, rec.msgs[1].Status)
	assert.Equal(t, "GAL", rec.msgs[1].Order.OrderNumber[:3])
}

type failingPublisher struct {
	after int
	got   []uint
}

func (p *failingPublisher) Publish(ctx context.Context, ev model.OrderEvent) error {
	if len(p.got) == p.after {
		return errors.New("redis down")
	}
	p.got = append(p.got, ev.ID)
	return nil
}

type memOutbox struct {
	rows   []model.OrderEvent
	marked map[uint]bool
}

func (m *memOutbox) Unpublished(ctx context.Context, limit int) ([]model.OrderEvent, error) {
	var out []model.OrderEvent
	for _, r := range m.rows {
		if !m.marked[r.ID] && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memOutbox) MarkPublished(ctx context.Context, ids []uint) error {
	for _, id := range ids {
		m.marked[id] = true
	}
	return nil
}

func TestRelayMarksOnlyPublishedRows(t *testing.T) {
	outbox := &memOutbox{marked: map[uint]bool{}}
	for i := uint(1); i <= 3; i++ {
		outbox.rows = append(outbox.rows, event(i, "o", int64(i), model.OrderPending))
	}
	pub := &failingPublisher{after: 2}
	relay := NewRelay(outbox, pub, time.Second)

	n, err := relay.Flush(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, outbox.marked[2])
	assert.False(t, outbox.marked[3])
}

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	broken bool
	closed bool
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return errors.New("broken pipe")
	}
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func TestHubBroadcastDropsBrokenClients(t *testing.T) {
	hub := NewHub()
	good, bad, elsewhere := &fakeConn{}, &fakeConn{broken: true}, &fakeConn{}
	leave := hub.Join(3, TopicOrders, good)
	hub.Join(3, TopicOrders, bad)
	hub.Join(4, TopicOrders, elsewhere)

	handler := NotifyHandler(hub)
	msg, err := decode("s", redis.XMessage{ID: "1-0", Values: map[string]any{
		"orderId":   "o-1",
		"version":   "1",
		"theaterId": "3",
		"type":      model.EventOrderCreated,
		"status":    string(model.OrderPaid),
		"payload":   `{"orderNumber":"GAL-20260302-0007","source":"kiosk","pricing":{"total":500}}`,
	}})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), msg))

	require.Len(t, good.frames, 1)
	assert.JSONEq(t, `{"topic":"orders","type":"order.created","theaterId":3,"orderId":"o-1","orderNumber":"GAL-20260302-0007","version":1,"status":"PAID","source":"kiosk","total":500,"alert":true}`, string(good.frames[0]))
	assert.True(t, bad.closed)
	assert.Empty(t, elsewhere.frames)
	assert.Equal(t, 1, hub.Count(3, TopicOrders))

	leave()
	assert.Zero(t, hub.Count(3, TopicOrders))
}

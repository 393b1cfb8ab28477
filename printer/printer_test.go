package printer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"cinema_pos/events"
	"cinema_pos/model"
	"cinema_pos/receipt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bill() receipt.Bill {
	return receipt.Bill{
		TheaterId:    2,
		TheaterName:  "Galaxy Andheri",
		OrderId:      "o-1",
		OrderNumber:  "GAL-20260302-0003",
		CustomerName: "Dev",
		Seat:         "C4",
		Method:       model.MethodCash,
		Pricing:      model.Pricing{Subtotal: 20000, CGST: 500, SGST: 500, Tax: 1000, Total: 21000},
		Lines: []receipt.Line{
			{Name: "Popcorn", Category: "food", Quantity: 1, Total: 10500},
			{Name: "Cola", Category: "beverages", Quantity: 1, Total: 10500, SpecialInstructions: "less ice"},
		},
		IssuedAt: time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC),
	}
}

type memPrinter struct {
	mu   sync.Mutex
	jobs [][]byte
	err  error
}

func (p *memPrinter) Print(ctx context.Context, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, data)
	return nil
}

func (p *memPrinter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.jobs)
}

type memFallback struct {
	mu   sync.Mutex
	jobs []Job
	at   []time.Time
}

func (f *memFallback) Print(ctx context.Context, job Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	f.at = append(f.at, time.Now())
	return nil
}

func TestPlanJobs(t *testing.T) {
	b := bill()
	jobs := PlanJobs(b)
	require.Len(t, jobs, 3)
	assert.Equal(t, KindGSTBill, jobs[0].Kind)
	assert.Len(t, jobs[0].Bill.Lines, 2)
	assert.Equal(t, "food", jobs[1].Category)
	assert.Equal(t, receipt.TemplateCategoryDocket, jobs[2].ReceiptTemplateID)
	assert.Equal(t, "Cola", jobs[2].Bill.Lines[0].Name)
	assert.NotEqual(t, jobs[1].DedupeKey(), jobs[2].DedupeKey())

	b.Lines = b.Lines[:1]
	assert.Len(t, PlanJobs(b), 1)
}

func TestEncodeGSTBill(t *testing.T) {
	out := Encode(PlanJobs(bill())[0])
	assert.True(t, bytes.HasPrefix(out, escInit))
	assert.True(t, bytes.HasSuffix(out, escFeedAndCut))
	assert.Contains(t, string(out), "GAL-20260302-0003")
	assert.Contains(t, string(out), "210.00")

	docket := Encode(PlanJobs(bill())[2])
	assert.Contains(t, string(docket), "BEVERAGES")
	assert.Contains(t, string(docket), "less ice")
	assert.NotContains(t, string(docket), "Popcorn")
}

func TestBridgeHandleDedupes(t *testing.T) {
	p := &memPrinter{}
	b := NewBridge(p)
	job := PlanJobs(bill())[0]
	raw, _ := json.Marshal(job)

	ack := b.Handle(context.Background(), raw)
	assert.Equal(t, Ack{OK: true, JobID: job.ID}, ack)

	// a retry with a fresh job id for the same order and kind
	job.ID = "retry"
	raw, _ = json.Marshal(job)
	ack = b.Handle(context.Background(), raw)
	assert.True(t, ack.OK)
	assert.True(t, ack.Duplicate)
	assert.Equal(t, 1, p.count())

	ack = b.Handle(context.Background(), []byte(`{"jobId":"x","orderId":"o","kind":"coupon"}`))
	assert.False(t, ack.OK)

	failing := NewBridge(&memPrinter{err: errors.New("paper out")})
	ack = failing.Handle(context.Background(), raw)
	assert.False(t, ack.OK)
	assert.Equal(t, "paper out", ack.Error)
}

func startBridge(t *testing.T, p Printer) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	app := NewBridge(p).App()
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "ws://" + ln.Addr().String() + "/"
}

func TestDispatcherPrintsThroughBridge(t *testing.T) {
	p := &memPrinter{}
	url := startBridge(t, p)
	fb := &memFallback{}
	d := NewDispatcher(url, time.Second, 0, fb)

	jobs := PlanJobs(bill())
	results := d.Dispatch(context.Background(), jobs)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.NoError(t, r.Err)
		assert.Equal(t, "bridge", r.Via)
	}
	assert.Equal(t, 3, p.count())
	assert.Empty(t, fb.jobs)

	results = d.Dispatch(context.Background(), jobs)
	for _, r := range results {
		assert.True(t, r.Repeated)
	}
	assert.Equal(t, 3, p.count())
}

func TestDispatcherFallsBackAndPaces(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	fb := &memFallback{}
	d := NewDispatcher("ws://"+addr+"/", 100*time.Millisecond, 50*time.Millisecond, fb)
	results := d.Dispatch(context.Background(), PlanJobs(bill()))

	require.Len(t, results, 3)
	for _, r := range results {
		assert.NoError(t, r.Err)
		assert.Equal(t, "fallback", r.Via)
	}
	require.Len(t, fb.at, 3)
	assert.GreaterOrEqual(t, fb.at[2].Sub(fb.at[0]), 90*time.Millisecond)
}

type conn struct{ frames [][]byte }

func (c *conn) WriteMessage(_ int, data []byte) error {
	c.frames = append(c.frames, data)
	return nil
}

func (c *conn) Close() error { return nil }

type bills struct{}

func (bills) Bill(ctx context.Context, order *model.Order) (receipt.Bill, error) {
	return receipt.BillFromOrder(order, "Galaxy Andheri"), nil
}

func TestFanOutOnPaidOnly(t *testing.T) {
	hub := events.NewHub()
	c := &conn{}
	hub.Join(2, events.TopicPrint, c)
	handler := FanOut(hub, bills{})

	order := &model.Order{
		ID:          "o-1",
		TheaterId:   2,
		OrderNumber: "GAL-20260302-0003",
		Status:      model.OrderPaid,
		Items:       []model.OrderItem{{Name: "Popcorn", Category: "food", Quantity: 1, LineTotal: 100}},
	}
	require.NoError(t, handler(context.Background(), events.Message{TheaterId: 2, OrderId: "o-1", Status: model.OrderPending, Order: order}))
	assert.Empty(t, c.frames)

	require.NoError(t, handler(context.Background(), events.Message{TheaterId: 2, OrderId: "o-1", Status: model.OrderPaid, Order: order}))
	require.Len(t, c.frames, 1)

	var batch Batch
	require.NoError(t, json.Unmarshal(c.frames[0], &batch))
	assert.Equal(t, events.TopicPrint, batch.Topic)
	require.Len(t, batch.Jobs, 1)
	assert.Equal(t, KindGSTBill, batch.Jobs[0].Kind)

	sub := NewSubscriber("http://localhost:8002", 2, "tok", NewDispatcher("ws://127.0.0.1:1/", 50*time.Millisecond, 0, &memFallback{}))
	assert.Equal(t, "ws://localhost:8002/api/v1/stream/2?topic=print", sub.url)
	results := sub.Handle(context.Background(), c.frames[0])
	require.Len(t, results, 1)
	assert.Equal(t, "fallback", results[0].Via)
}

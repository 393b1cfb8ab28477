// Package lifecycle drives orders through their state machine. It is the only
// writer of order status; stock moves through the ledger and persistence
// through the order store.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cinema_pos/apperror"
	"cinema_pos/gateway"
	"cinema_pos/ledger"
	"cinema_pos/model"
	"cinema_pos/orderstore"
	"cinema_pos/pricing"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

const (
	ReasonPaymentTimeout = "payment_timeout"
	ReasonVerifyFailed   = "gateway_verify_failed"
	compensationTimeout  = 5 * time.Second
)

type Catalog interface {
	Theater(ctx context.Context, id uint) (*model.Theater, error)
	ProductsByID(ctx context.Context, theaterID uint, ids []uint) (map[uint]model.Product, error)
}

type Gateways interface {
	Resolve(ctx context.Context, theaterID uint, channel model.Channel) (gateway.Binding, error)
}

// Kicker is woken after every committed order write so events go out without
// waiting for the next relay tick.
type Kicker interface {
	Kick()
}

type Options struct {
	RequestTimeout       time.Duration
	GatewayCreateTimeout time.Duration
	Currency             string
}

type Coordinator struct {
	catalog  Catalog
	ledger   *ledger.Ledger
	store    *orderstore.Store
	gateways Gateways
	kicker   Kicker
	opts     Options
	now      func() time.Time
}

func New(catalog Catalog, l *ledger.Ledger, store *orderstore.Store, gateways Gateways, opts Options) *Coordinator {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.GatewayCreateTimeout <= 0 {
		opts.GatewayCreateTimeout = 15 * time.Second
	}
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	return &Coordinator{catalog: catalog, ledger: l, store: store, gateways: gateways, opts: opts, now: time.Now}
}

func (c *Coordinator) WithKicker(k Kicker) *Coordinator {
	c.kicker = k
	return c
}

func (c *Coordinator) kick() {
	if c.kicker != nil {
		c.kicker.Kick()
	}
}

// Accept validates, prices, reserves and persists an order, then settles it
// for cash or hands back gateway parameters for card/UPI.
func (c *Coordinator) Accept(ctx context.Context, in model.AcceptOrderInput, actor string) (*model.AcceptResult, error) {
	method := model.NormalizeMethod(in.PaymentMethod)
	timeout := c.opts.RequestTimeout
	if method.IsGateway() {
		timeout = c.opts.GatewayCreateTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := validateAccept(in, method); err != nil {
		return nil, err
	}

	if existing, err := c.store.GetByIdempotencyKey(ctx, in.TheaterId, in.IdempotencyKey); err == nil {
		return c.resume(ctx, existing, in, actor)
	} else if !apperror.Is(err, apperror.KindNotFound) {
		return nil, classify(err)
	}

	theater, err := c.catalog.Theater(ctx, in.TheaterId)
	if err != nil {
		return nil, err
	}
	if !theater.Active {
		return nil, apperror.Validation("theater %d is not active", theater.ID)
	}

	channel := in.Source.Channel()
	binding, err := c.gateways.Resolve(ctx, theater.ID, channel)
	if err != nil {
		return nil, apperror.GatewayUnavailable(err)
	}
	if !binding.Allows(method) {
		return nil, apperror.PaymentMethodNotAllowed(string(method), string(channel))
	}
	if in.PayAtCounter && (channel != model.ChannelKiosk || method != model.MethodCash) {
		return nil, apperror.Validation("pay at counter is only available for kiosk cash orders")
	}

	items, err := c.snapshot(ctx, theater.ID, in.Items)
	if err != nil {
		return nil, err
	}
	priced := pricing.Compute(pricing.FromItems(items))
	for i := range items {
		items[i].LineSubtotal = priced.Lines[i].Subtotal
		items[i].LineTax = priced.Lines[i].Tax
		items[i].LineDiscount = priced.Lines[i].Discount
		items[i].LineTotal = priced.Lines[i].Total
	}
	if in.ExpectedTotal != nil && pricing.Stale(*in.ExpectedTotal, priced.Pricing.Total) {
		return nil, apperror.StalePricing(priced.Pricing)
	}

	order := &model.Order{
		ID:             uuid.Must(uuid.NewV7()).String(),
		TheaterId:      theater.ID,
		IdempotencyKey: in.IdempotencyKey,
		Source:         in.Source,
		OrderType:      in.Source.OrderType(),
		Channel:        channel,
		CustomerName:   strings.TrimSpace(in.CustomerName),
		CustomerEmail:  in.CustomerEmail,
		CustomerPhone:  in.CustomerPhone,
		QRName:         in.QRName,
		Seat:           in.Seat,
		Status:         model.OrderPending,
		Payment:        model.Payment{Status: model.PaymentPending, Method: method},
		Pricing:        priced.Pricing,
		Items:          items,
	}
	if method.IsGateway() {
		order.Payment.Provider = binding.ProviderName()
	}

	lines := make([]model.ReserveLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, model.ReserveLine{ProductId: it.ProductId, Quantity: it.Quantity})
	}
	if err := c.ledger.Reserve(ctx, theater.ID, order.ID, lines); err != nil {
		if apperror.Is(err, apperror.KindInsufficientStock) || apperror.Is(err, apperror.KindValidation) {
			return nil, err
		}
		c.compensate(order.ID)
		return nil, classify(err)
	}

	created, err := c.store.Create(ctx, order, actor)
	if errors.Is(err, orderstore.ErrDuplicate) {
		// lost the race against a retry carrying the same key
		c.compensate(order.ID)
		return c.resume(ctx, created, in, actor)
	}
	if err != nil {
		c.compensate(order.ID)
		return nil, classify(err)
	}
	c.kick()

	switch {
	case in.PayAtCounter:
		return c.hold(ctx, created, actor)
	case method.IsGateway():
		return c.startGateway(ctx, created, binding, method, actor)
	default:
		return c.payCash(ctx, created, model.OrderPending, actor)
	}
}

// resume answers a retried accept. A cash order left PENDING with its stock
// still reserved by a failed first attempt is finished now, whatever the
// channel; anything else is replayed as stored.
func (c *Coordinator) resume(ctx context.Context, existing *model.Order, in model.AcceptOrderInput, actor string) (*model.AcceptResult, error) {
	if existing.Status != model.OrderPending || existing.Payment.Method != model.MethodCash {
		return replay(existing), nil
	}
	open, err := c.ledger.HasStatus(ctx, existing.ID, model.ReservationOpen)
	if err != nil || !open {
		return replay(existing), nil
	}

	var res *model.AcceptResult
	if in.PayAtCounter && existing.Channel == model.ChannelKiosk {
		res, err = c.hold(ctx, existing, actor)
	} else {
		res, err = c.payCash(ctx, existing, model.OrderPending, actor)
	}
	if apperror.Is(err, apperror.KindConflict) {
		current, getErr := c.store.Get(ctx, existing.ID)
		if getErr != nil {
			return nil, getErr
		}
		return replay(current), nil
	}
	if err != nil {
		return nil, err
	}
	res.Replayed = true
	return res, nil
}

func validateAccept(in model.AcceptOrderInput, method model.PaymentMethod) error {
	if len(in.Items) == 0 {
		return apperror.Validation("order has no items")
	}
	for _, it := range in.Items {
		if it.Quantity < 1 {
			return apperror.Validation("quantity must be at least 1 for product %d", it.ProductId)
		}
	}
	if strings.TrimSpace(in.CustomerName) == "" {
		return apperror.Validation("customer name is required")
	}
	if strings.TrimSpace(in.IdempotencyKey) == "" {
		return apperror.Validation("idempotency key is required")
	}
	if !in.Source.Valid() {
		return apperror.Validation("unknown source %q", in.Source)
	}
	if !method.Valid() {
		return apperror.Validation("unknown payment method %q", in.PaymentMethod)
	}
	if in.Source == model.SourceOfflinePOS && method != model.MethodCash {
		return apperror.PaymentMethodNotAllowed(string(method), string(model.SourceOfflinePOS))
	}
	return nil
}

// snapshot freezes the current product data into order items.
func (c *Coordinator) snapshot(ctx context.Context, theaterID uint, in []model.AcceptItemInput) ([]model.OrderItem, error) {
	ids := make([]uint, 0, len(in))
	for _, it := range in {
		ids = append(ids, it.ProductId)
	}
	products, err := c.catalog.ProductsByID(ctx, theaterID, ids)
	if err != nil {
		return nil, classify(err)
	}

	items := make([]model.OrderItem, 0, len(in))
	for _, it := range in {
		p, ok := products[it.ProductId]
		if !ok || !p.Active {
			return nil, apperror.Validation("product %d is not available at this theater", it.ProductId)
		}
		items = append(items, model.OrderItem{
			ProductId:           p.ID,
			Name:                p.Name,
			Category:            p.Category,
			Quantity:            it.Quantity,
			UnitPrice:           p.EffectivePrice(),
			TaxRate:             p.TaxRate,
			GSTType:             p.GSTType,
			DiscountPercentage:  p.DiscountPercentage,
			Variant:             it.Variant,
			SpecialInstructions: it.SpecialInstructions,
		})
	}
	return items, nil
}

// accepted is the accept response for order; replays build the same value
// from the stored row.
func accepted(order *model.Order, params map[string]any) *model.AcceptResult {
	order.Audits = nil
	return &model.AcceptResult{Order: order, GatewayParams: params}
}

func replay(order *model.Order) *model.AcceptResult {
	var params map[string]any
	if order.Status == model.OrderPendingPayment {
		params = decodeParams(order.Payment.Params)
	}
	res := accepted(order, params)
	res.Replayed = true
	return res
}

func decodeParams(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil
	}
	return params
}

// compensate releases a reservation on a context that outlives the request.
func (c *Coordinator) compensate(orderID string) {
	ctx, cancel := context.WithTimeout(context.Background(), compensationTimeout)
	defer cancel()
	if err := c.ledger.Release(ctx, orderID); err != nil {
		log.Errorw("release reservation failed", "orderId", orderID, "error", err)
	}
}

// classify maps infrastructure errors onto domain kinds.
func classify(err error) error {
	if apperror.As(err) != nil {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperror.Timeout(err)
	}
	return apperror.Internal(err)
}

func (c *Coordinator) payCash(ctx context.Context, order *model.Order, from model.OrderStatus, actor string) (*model.AcceptResult, error) {
	now := c.now()
	payment := order.Payment
	payment.Status = model.PaymentPaid
	payment.Method = model.MethodCash
	payment.PaidAt = &now

	paid, err := c.store.Transition(ctx, order.ID, from, model.OrderPaid, model.OrderPatch{Reason: "cash", Payment: &payment}, actor)
	if err != nil {
		return nil, classify(err)
	}
	c.commit(paid.ID)
	c.kick()
	return accepted(paid, nil), nil
}

// commit runs detached from the request so a client disconnect after PAID
// cannot leave the reservation open. The sweeper repairs a failed commit.
func (c *Coordinator) commit(orderID string) {
	ctx, cancel := context.WithTimeout(context.Background(), compensationTimeout)
	defer cancel()
	if err := c.ledger.Commit(ctx, orderID); err != nil {
		log.Errorw("commit reservation failed", "orderId", orderID, "error", err)
	}
}

func (c *Coordinator) hold(ctx context.Context, order *model.Order, actor string) (*model.AcceptResult, error) {
	held, err := c.store.Transition(ctx, order.ID, model.OrderPending, model.OrderConfirmed, model.OrderPatch{Reason: "pay_at_counter"}, actor)
	if err != nil {
		return nil, classify(err)
	}
	if err := c.ledger.Pin(ctx, order.ID); err != nil {
		log.Warnw("pin reservation failed", "orderId", order.ID, "error", err)
	}
	c.kick()
	return accepted(held, nil), nil
}

func transactionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// startGateway creates the provider order and parks the order in
// PENDING_PAYMENT. A provider failure leaves the order PENDING so the client
// can retry through CreatePayment; the sweeper cancels it otherwise.
func (c *Coordinator) startGateway(ctx context.Context, order *model.Order, binding gateway.Binding, method model.PaymentMethod, actor string) (*model.AcceptResult, error) {
	view, updated, err := c.createProviderOrder(ctx, order, binding, method, actor)
	if err != nil {
		return nil, err
	}
	return accepted(updated, view.ProviderParams), nil
}

func (c *Coordinator) createProviderOrder(ctx context.Context, order *model.Order, binding gateway.Binding, method model.PaymentMethod, actor string) (*model.GatewayPaymentView, *model.Order, error) {
	if binding.Provider == nil {
		return nil, nil, apperror.GatewayUnavailable(gateway.ErrNotConfigured)
	}
	txn := transactionID()
	po, err := binding.Provider.CreatePaymentOrder(ctx, gateway.CreateRequest{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		TransactionID: txn,
		Amount:        order.Pricing.Total,
		Currency:      c.opts.Currency,
		Method:        method,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		CustomerPhone: order.CustomerPhone,
	})
	if err != nil {
		log.Warnw("gateway create failed", "orderId", order.ID, "provider", binding.ProviderName(), "error", err)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, apperror.Timeout(err)
		}
		return nil, nil, apperror.GatewayUnavailable(err)
	}

	params, err := json.Marshal(po.ProviderParams)
	if err != nil {
		return nil, nil, apperror.Internal(err)
	}
	payment := order.Payment
	payment.Method = method
	payment.Provider = binding.ProviderName()
	payment.ProviderOrderId = po.ProviderOrderID
	payment.TransactionId = po.TransactionID
	payment.Params = string(params)

	updated, err := c.store.Transition(ctx, order.ID, model.OrderPending, model.OrderPendingPayment,
		model.OrderPatch{Reason: "gateway_created", Payment: &payment}, actor)
	if err != nil {
		return nil, nil, classify(err)
	}
	c.kick()

	view := &model.GatewayPaymentView{
		ProviderOrderId: po.ProviderOrderID,
		Amount:          order.Pricing.Total,
		Currency:        c.opts.Currency,
		ProviderParams:  po.ProviderParams,
		TransactionId:   po.TransactionID,
	}
	return view, updated, nil
}

// CreatePayment starts (or returns the already started) gateway payment of
// a pending order.
func (c *Coordinator) CreatePayment(ctx context.Context, in model.CreatePaymentInput, actor string) (*model.GatewayPaymentView, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.GatewayCreateTimeout)
	defer cancel()

	order, err := c.store.Get(ctx, in.OrderId)
	if err != nil {
		return nil, err
	}
	method := model.NormalizeMethod(in.PaymentMethod)
	if !method.IsGateway() {
		return nil, apperror.Validation("payment method %q does not use a gateway", in.PaymentMethod)
	}
	if order.Source == model.SourceOfflinePOS {
		return nil, apperror.PaymentMethodNotAllowed(string(method), string(model.SourceOfflinePOS))
	}

	switch order.Status {
	case model.OrderPendingPayment:
		if order.Payment.Method == method && order.Payment.ProviderOrderId != "" {
			return &model.GatewayPaymentView{
				ProviderOrderId: order.Payment.ProviderOrderId,
				Amount:          order.Pricing.Total,
				Currency:        c.opts.Currency,
				ProviderParams:  decodeParams(order.Payment.Params),
				TransactionId:   order.Payment.TransactionId,
			}, nil
		}
		return nil, apperror.Conflict("order %s already has a %s payment in progress", order.OrderNumber, order.Payment.Method)
	case model.OrderPending:
	default:
		return nil, apperror.Conflict("order %s is %s", order.OrderNumber, order.Status)
	}

	open, err := c.ledger.HasStatus(ctx, order.ID, model.ReservationOpen)
	if err != nil {
		return nil, classify(err)
	}
	if !open {
		return nil, apperror.Conflict("order %s no longer holds stock", order.OrderNumber)
	}

	binding, err := c.gateways.Resolve(ctx, order.TheaterId, order.Channel)
	if err != nil {
		return nil, apperror.GatewayUnavailable(err)
	}
	if !binding.Allows(method) {
		return nil, apperror.PaymentMethodNotAllowed(string(method), string(order.Channel))
	}
	view, _, err := c.createProviderOrder(ctx, order, binding, method, actor)
	return view, err
}

// locate finds the order a callback refers to.
func (c *Coordinator) locate(ctx context.Context, cb gateway.Callback) (*model.Order, error) {
	switch {
	case cb.OrderID != "":
		return c.store.Get(ctx, cb.OrderID)
	case cb.ProviderOrderID != "":
		return c.store.FindByProviderOrderID(ctx, cb.ProviderOrderID)
	case cb.TransactionID != "":
		return c.store.FindByTransactionID(ctx, cb.TransactionID)
	}
	return nil, apperror.Validation("callback does not identify an order")
}

// Verify settles a gateway callback. It is idempotent on the provider
// transaction id: a repeated successful callback returns the paid order.
func (c *Coordinator) Verify(ctx context.Context, cb gateway.Callback, actor string) (*model.VerifyResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	order, err := c.locate(ctx, cb)
	if err != nil {
		return nil, err
	}
	if cb.ProviderOrderID == "" {
		cb.ProviderOrderID = order.Payment.ProviderOrderId
	}
	if order.Payment.Provider == "" || order.Payment.Provider == model.ProviderNone {
		return nil, apperror.Conflict("order %s has no gateway payment", order.OrderNumber)
	}

	binding, err := c.gateways.Resolve(ctx, order.TheaterId, order.Channel)
	if err != nil {
		return nil, apperror.GatewayUnavailable(err)
	}
	if binding.Provider == nil || binding.ProviderName() != order.Payment.Provider {
		return nil, apperror.GatewayUnavailable(fmt.Errorf("provider %s is no longer configured", order.Payment.Provider))
	}

	v, err := binding.Provider.VerifyCallback(ctx, cb)
	if err != nil {
		return nil, apperror.GatewayUnavailable(err)
	}
	if v.OK && v.ProviderOrderID != "" && order.Payment.ProviderOrderId != "" && v.ProviderOrderID != order.Payment.ProviderOrderId {
		v.OK, v.Authentic, v.Reason = false, false, "provider order mismatch"
	}
	if v.OK && v.Amount > 0 && v.Amount != order.Pricing.Total {
		v.OK, v.Reason = false, "amount mismatch"
	}

	switch order.Status {
	case model.OrderPaid, model.OrderCompleted:
		if v.OK && order.Payment.GatewayRef == v.ProviderTxnID {
			return &model.VerifyResult{OK: true, OrderStatus: order.Status}, nil
		}
		if v.OK {
			return nil, apperror.Conflict("order %s is already paid by another transaction", order.OrderNumber)
		}
		return nil, apperror.GatewayVerifyFailed(v.Reason, model.VerifyResult{OK: false, OrderStatus: order.Status})

	case model.OrderPendingPayment, model.OrderPending:
		if v.OK {
			return c.markPaid(ctx, order, v, actor)
		}
		if !v.Authentic {
			// anyone can post to the public callback; only the provider can fail the order
			res := model.VerifyResult{OK: false, OrderStatus: order.Status}
			return &res, apperror.GatewayVerifyFailed(v.Reason, res)
		}
		return c.markFailed(ctx, order, v, actor)

	default:
		if v.OK {
			c.refundLate(ctx, binding, order, v)
			return nil, apperror.Conflict("order %s is %s; the payment is being refunded", order.OrderNumber, order.Status)
		}
		return nil, apperror.GatewayVerifyFailed(v.Reason, model.VerifyResult{OK: false, OrderStatus: order.Status})
	}
}

func (c *Coordinator) markPaid(ctx context.Context, order *model.Order, v gateway.Verification, actor string) (*model.VerifyResult, error) {
	now := c.now()
	payment := order.Payment
	payment.Status = model.PaymentPaid
	payment.GatewayRef = v.ProviderTxnID
	payment.PaidAt = &now

	paid, err := c.store.Transition(ctx, order.ID, order.Status, model.OrderPaid,
		model.OrderPatch{Reason: "gateway_verified", Payment: &payment}, actor)
	if apperror.Is(err, apperror.KindConflict) {
		// a concurrent callback for the same transaction may have won
		current, getErr := c.store.Get(ctx, order.ID)
		if getErr == nil && current.Status == model.OrderPaid && current.Payment.GatewayRef == v.ProviderTxnID {
			return &model.VerifyResult{OK: true, OrderStatus: current.Status}, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, classify(err)
	}
	c.commit(paid.ID)
	c.kick()
	return &model.VerifyResult{OK: true, OrderStatus: paid.Status}, nil
}

func (c *Coordinator) markFailed(ctx context.Context, order *model.Order, v gateway.Verification, actor string) (*model.VerifyResult, error) {
	payment := order.Payment
	payment.Status = model.PaymentFailed
	if v.ProviderTxnID != "" {
		payment.GatewayRef = v.ProviderTxnID
	}
	reason := ReasonVerifyFailed
	if v.Reason != "" {
		reason += ": " + v.Reason
	}

	failed, err := c.store.Transition(ctx, order.ID, order.Status, model.OrderFailed,
		model.OrderPatch{Reason: reason, Payment: &payment}, actor)
	if err != nil {
		return nil, classify(err)
	}
	c.compensate(order.ID)
	c.kick()
	res := model.VerifyResult{OK: false, OrderStatus: failed.Status}
	return &res, apperror.GatewayVerifyFailed(v.Reason, res)
}

// refundLate returns money captured for an order that was already cancelled.
func (c *Coordinator) refundLate(ctx context.Context, binding gateway.Binding, order *model.Order, v gateway.Verification) {
	amount := v.Amount
	if amount == 0 {
		amount = order.Pricing.Total
	}
	res, err := binding.Provider.Refund(ctx, v.ProviderTxnID, amount)
	if err != nil {
		log.Errorw("late payment needs manual refund", "orderId", order.ID, "providerTxnId", v.ProviderTxnID, "error", err)
		return
	}
	log.Infow("late payment refunded", "orderId", order.ID, "refundRef", res.RefundRef)
}

// Complete marks a paid order as handed over.
func (c *Coordinator) Complete(ctx context.Context, orderID, actor string) (*model.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	order, err := c.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	done, err := c.store.Transition(ctx, order.ID, order.Status, model.OrderCompleted, model.OrderPatch{Reason: "completed"}, actor)
	if err != nil {
		return nil, classify(err)
	}
	c.kick()
	return done, nil
}

// Cancel cancels an order. Held stock is released; a paid order has its
// commit reversed and, unless refund is false, its payment refunded once the
// cancellation has been stored. Cancelling an already cancelled order whose
// refund did not go through retries the refund.
func (c *Coordinator) Cancel(ctx context.Context, orderID string, in model.CancelOrderInput, actor string) (*model.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.GatewayCreateTimeout)
	defer cancel()

	order, err := c.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, apperror.Validation("cancel reason is required")
	}

	if order.Status.Holding() {
		payment := order.Payment
		if payment.Status == model.PaymentPending {
			payment.Status = model.PaymentFailed
		}
		cancelled, err := c.store.Transition(ctx, order.ID, order.Status, model.OrderCancelled,
			model.OrderPatch{Reason: reason, Payment: &payment}, actor)
		if err != nil {
			return nil, classify(err)
		}
		c.compensate(order.ID)
		c.kick()
		return cancelled, nil
	}
	if order.Status == model.OrderCancelled && order.Payment.Status == model.PaymentPaid {
		return c.settleRefund(ctx, order, actor)
	}
	if order.Status != model.OrderPaid {
		return nil, apperror.Conflict("order %s is %s and cannot be cancelled", order.OrderNumber, order.Status)
	}

	cancelled, err := c.store.Transition(ctx, order.ID, model.OrderPaid, model.OrderCancelled,
		model.OrderPatch{Reason: reason}, actor)
	if err != nil {
		return nil, classify(err)
	}
	if err := c.ledger.Return(ctx, order.ID); err != nil {
		log.Errorw("return committed stock failed", "orderId", order.ID, "error", err)
	}
	c.kick()
	if in.Refund != nil && !*in.Refund {
		return cancelled, nil
	}
	return c.settleRefund(ctx, cancelled, actor)
}

// settleRefund pays back a cancelled order that still shows PAID. The order
// is already CANCELLED, so a failed refund leaves it refundable by a repeated
// cancel instead of failing the cancellation.
func (c *Coordinator) settleRefund(ctx context.Context, order *model.Order, actor string) (*model.Order, error) {
	payment := order.Payment
	if err := c.refund(ctx, order, &payment); err != nil {
		log.Errorw("refund after cancel failed, cancel again to retry", "orderId", order.ID, "error", err)
		return order, nil
	}
	if payment.Status != model.PaymentRefunded {
		return order, nil
	}
	refunded, err := c.store.UpdatePayment(ctx, order.ID, model.OrderCancelled, payment, "refunded", actor)
	if err != nil {
		log.Errorw("record refund failed", "orderId", order.ID, "refundRef", payment.RefundRef, "error", err)
		return order, nil
	}
	c.kick()
	return refunded, nil
}

func (c *Coordinator) refund(ctx context.Context, order *model.Order, payment *model.Payment) error {
	if !payment.Method.IsGateway() {
		payment.Status = model.PaymentRefunded
		return nil
	}
	binding, err := c.gateways.Resolve(ctx, order.TheaterId, order.Channel)
	if err != nil {
		return apperror.GatewayUnavailable(err)
	}
	if binding.Provider == nil || binding.ProviderName() != payment.Provider {
		return apperror.GatewayUnavailable(fmt.Errorf("provider %s is no longer configured", payment.Provider))
	}
	res, err := binding.Provider.Refund(ctx, payment.GatewayRef, order.Pricing.Total)
	if errors.Is(err, gateway.ErrRefundUnsupported) {
		log.Warnw("provider cannot refund, settle manually", "orderId", order.ID, "provider", payment.Provider)
		return nil
	}
	if err != nil {
		return apperror.GatewayUnavailable(err)
	}
	payment.Status = model.PaymentRefunded
	payment.RefundRef = res.RefundRef
	return nil
}

// Confirm holds a pending kiosk order for payment at the counter. The
// reservation is pinned so the sweeper leaves it alone.
func (c *Coordinator) Confirm(ctx context.Context, orderID, actor string) (*model.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	order, err := c.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Channel != model.ChannelKiosk {
		return nil, apperror.Conflict("only kiosk channel orders can be confirmed")
	}
	res, err := c.hold(ctx, order, actor)
	if err != nil {
		return nil, err
	}
	return res.Order, nil
}

// Settle takes cash for a confirmed order.
func (c *Coordinator) Settle(ctx context.Context, orderID string, in model.SettleOrderInput, actor string) (*model.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	if model.NormalizeMethod(in.Method) != model.MethodCash {
		return nil, apperror.Validation("orders can only be settled in cash")
	}
	order, err := c.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != model.OrderConfirmed {
		return nil, apperror.Conflict("order %s is %s, expected %s", order.OrderNumber, order.Status, model.OrderConfirmed)
	}
	res, err := c.payCash(ctx, order, model.OrderConfirmed, actor)
	if err != nil {
		return nil, err
	}
	return res.Order, nil
}

// Expire handles an order whose reservation outlived its TTL. Orders still
// waiting for payment are cancelled; for any other status the reservation is
// brought in line with the order.
func (c *Coordinator) Expire(ctx context.Context, orderID, actor string) error {
	order, err := c.store.Get(ctx, orderID)
	if apperror.Is(err, apperror.KindNotFound) {
		// reserved but never persisted
		return c.ledger.Release(ctx, orderID)
	}
	if err != nil {
		return err
	}

	switch order.Status {
	case model.OrderPending, model.OrderPendingPayment:
		payment := order.Payment
		payment.Status = model.PaymentFailed
		_, err := c.store.Transition(ctx, order.ID, order.Status, model.OrderCancelled,
			model.OrderPatch{Reason: ReasonPaymentTimeout, Payment: &payment}, actor)
		if apperror.Is(err, apperror.KindConflict) {
			log.Infow("order moved before expiry", "orderId", order.ID)
			return nil
		}
		if err != nil {
			return err
		}
		c.kick()
		return c.ledger.Release(ctx, order.ID)
	case model.OrderConfirmed:
		return c.ledger.Pin(ctx, order.ID)
	case model.OrderPaid, model.OrderCompleted:
		return c.ledger.Commit(ctx, order.ID)
	default:
		return c.ledger.Release(ctx, order.ID)
	}
}

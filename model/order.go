package model

import (
	"strings"
	"time"
)

type OrderStatus string

const (
	OrderPending        OrderStatus = "PENDING"
	OrderPendingPayment OrderStatus = "PENDING_PAYMENT"
	OrderConfirmed      OrderStatus = "CONFIRMED"
	OrderPaid           OrderStatus = "PAID"
	OrderCompleted      OrderStatus = "COMPLETED"
	OrderCancelled      OrderStatus = "CANCELLED"
	OrderFailed         OrderStatus = "FAILED"
)

func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled || s == OrderFailed
}

// Holding reports whether an order in this status keeps an open reservation.
func (s OrderStatus) Holding() bool {
	return s == OrderPending || s == OrderPendingPayment || s == OrderConfirmed
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:        {OrderPaid, OrderPendingPayment, OrderConfirmed, OrderCancelled, OrderFailed},
	OrderPendingPayment: {OrderPaid, OrderFailed, OrderCancelled},
	OrderConfirmed:      {OrderPaid, OrderCancelled},
	OrderPaid:           {OrderCompleted, OrderCancelled},
}

func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

type PaymentMethod string

const (
	MethodCash       PaymentMethod = "cash"
	MethodCard       PaymentMethod = "card"
	MethodUPI        PaymentMethod = "upi"
	MethodNetbanking PaymentMethod = "netbanking"
	MethodWallet     PaymentMethod = "wallet"
)

// NormalizeMethod lowercases and folds the cod alias into cash.
func NormalizeMethod(m string) PaymentMethod {
	m = strings.ToLower(strings.TrimSpace(m))
	if m == "cod" {
		return MethodCash
	}
	return PaymentMethod(m)
}

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodUPI, MethodNetbanking, MethodWallet:
		return true
	}
	return false
}

func (m PaymentMethod) IsGateway() bool {
	return m.Valid() && m != MethodCash
}

type Source string

const (
	SourcePOS        Source = "pos"
	SourceStaff      Source = "staff"
	SourceOfflinePOS Source = "offline-pos"
	SourceCounter    Source = "counter"
	SourceKiosk      Source = "kiosk"
	SourceQRCode     Source = "qr_code"
	SourceOnline     Source = "online"
	SourceQROrder    Source = "qr_order"
	SourceWeb        Source = "web"
)

// Dashboard buckets. offline-pos rolls into POS.
var (
	POSSources    = []Source{SourcePOS, SourceStaff, SourceOfflinePOS, SourceCounter}
	KioskSources  = []Source{SourceKiosk}
	OnlineSources = []Source{SourceQRCode, SourceOnline, SourceQROrder, SourceWeb}
)

func (s Source) Valid() bool {
	return s.Bucket() != ""
}

func (s Source) Bucket() string {
	for _, v := range POSSources {
		if v == s {
			return "pos"
		}
	}
	if s == SourceKiosk {
		return "kiosk"
	}
	for _, v := range OnlineSources {
		if v == s {
			return "online"
		}
	}
	return ""
}

type OrderType string

const (
	OrderTypePOS    OrderType = "pos"
	OrderTypeOnline OrderType = "online"
)

type Channel string

const (
	ChannelKiosk  Channel = "kiosk"
	ChannelOnline Channel = "online"
)

func (s Source) OrderType() OrderType {
	if s.Bucket() == "online" {
		return OrderTypeOnline
	}
	return OrderTypePOS
}

func (s Source) Channel() Channel {
	if s.OrderType() == OrderTypeOnline {
		return ChannelOnline
	}
	return ChannelKiosk
}

type Payment struct {
	Status          PaymentStatus `gorm:"size:12;not null;index" json:"status"`
	Method          PaymentMethod `gorm:"size:12;not null;index" json:"method"`
	Provider        string        `gorm:"size:20" json:"provider,omitempty"`
	ProviderOrderId string        `gorm:"size:80;index" json:"providerOrderId,omitempty"`
	GatewayRef      string        `gorm:"size:80;index" json:"gatewayRef,omitempty"`
	TransactionId   string        `gorm:"size:64" json:"transactionId,omitempty"`
	Params          string        `gorm:"type:text" json:"-"`
	RefundRef       string        `gorm:"size:80" json:"refundRef,omitempty"`
	PaidAt          *time.Time    `json:"paidAt,omitempty"`
}

// Pricing is the frozen snapshot in paise.
type Pricing struct {
	Subtotal      int64 `gorm:"not null" json:"subtotal"`
	CGST          int64 `gorm:"not null" json:"cgst"`
	SGST          int64 `gorm:"not null" json:"sgst"`
	Tax           int64 `gorm:"not null" json:"tax"`
	TotalDiscount int64 `gorm:"not null" json:"totalDiscount"`
	Total         int64 `gorm:"not null;index" json:"total"`
}

type Order struct {
	ID             string       `gorm:"primaryKey;size:36" json:"id"`
	OrderNumber    string       `gorm:"uniqueIndex;size:32" json:"orderNumber"`
	TheaterId      uint         `gorm:"uniqueIndex:idx_order_theater_idem;index;not null" json:"theaterId"`
	IdempotencyKey string       `gorm:"uniqueIndex:idx_order_theater_idem;size:100;not null" json:"idempotencyKey"`
	Source         Source       `gorm:"size:16;index;not null" json:"source"`
	OrderType      OrderType    `gorm:"size:8;not null" json:"orderType"`
	Channel        Channel      `gorm:"size:8;not null" json:"channel"`
	CustomerName   string       `gorm:"not null" json:"customerName"`
	CustomerEmail  string       `json:"customerEmail,omitempty"`
	CustomerPhone  string       `json:"customerPhone,omitempty"`
	QRName         string       `json:"qrName,omitempty"`
	Seat           string       `json:"seat,omitempty"`
	Status         OrderStatus  `gorm:"size:16;index;not null" json:"status"`
	StatusReason   string       `json:"statusReason,omitempty"`
	Payment        Payment      `gorm:"embedded;embeddedPrefix:payment_" json:"payment"`
	Pricing        Pricing      `gorm:"embedded;embeddedPrefix:pricing_" json:"pricing"`
	BusinessDay    string       `gorm:"size:10;index;not null" json:"businessDay"`
	Version        int64        `gorm:"not null" json:"version"`
	CreatedBy      uint         `json:"createdBy"`
	Items          []OrderItem  `gorm:"foreignKey:OrderId" json:"items"`
	Audits         []OrderAudit `gorm:"foreignKey:OrderId" json:"audits,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
	CompletedAt    *time.Time   `json:"completedAt,omitempty"`
	CancelledAt    *time.Time   `json:"cancelledAt,omitempty"`
}

type OrderItem struct {
	ID                  uint    `gorm:"primaryKey" json:"-"`
	OrderId             string  `gorm:"size:36;index;not null" json:"-"`
	Position            int     `gorm:"not null" json:"position"`
	ProductId           uint    `gorm:"index;not null" json:"productId"`
	Name                string  `gorm:"not null" json:"name"`
	Category            string  `json:"category"`
	Quantity            int64   `gorm:"not null" json:"quantity"`
	UnitPrice           int64   `gorm:"not null" json:"unitPrice"`
	TaxRate             float64 `gorm:"not null" json:"taxRate"`
	GSTType             GSTType `gorm:"size:10;not null" json:"gstType"`
	DiscountPercentage  float64 `gorm:"not null" json:"discountPercentage"`
	Variant             string  `json:"variant,omitempty"`
	SpecialInstructions string  `json:"specialInstructions,omitempty"`
	LineSubtotal        int64   `json:"lineSubtotal"`
	LineTax             int64   `json:"lineTax"`
	LineDiscount        int64   `json:"lineDiscount"`
	LineTotal           int64   `json:"lineTotal"`
}

type OrderAudit struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	OrderId   string      `gorm:"size:36;index;not null" json:"orderId"`
	Version   int64       `gorm:"not null" json:"version"`
	From      OrderStatus `gorm:"column:from_status;size:16" json:"from"`
	To        OrderStatus `gorm:"column:to_status;size:16;not null" json:"to"`
	Actor     string      `gorm:"not null" json:"actor"`
	Reason    string      `json:"reason,omitempty"`
	CreatedAt time.Time   `json:"at"`
}

// OrderPatch carries the fields a transition may change besides status.
type OrderPatch struct {
	Reason  string
	Payment *Payment
}

type OrderSequence struct {
	TheaterId   uint   `gorm:"primaryKey;autoIncrement:false"`
	BusinessDay string `gorm:"primaryKey;size:10"`
	LastNumber  int64  `gorm:"not null;default:0"`
}

type TheaterRevision struct {
	TheaterId uint  `gorm:"primaryKey;autoIncrement:false"`
	Revision  int64 `gorm:"not null;default:0"`
}

const (
	EventOrderCreated = "order.created"
	EventOrderUpdated = "order.updated"
)

// OrderEvent is the transactional outbox row written alongside every order write.
type OrderEvent struct {
	ID          uint        `gorm:"primaryKey"`
	TheaterId   uint        `gorm:"index;not null"`
	OrderId     string      `gorm:"size:36;index;not null"`
	Version     int64       `gorm:"not null"`
	Type        string      `gorm:"size:20;not null"`
	Status      OrderStatus `gorm:"size:16;not null"`
	Reason      string      `gorm:"size:255"`
	Payload     string      `gorm:"type:text"`
	CreatedAt   time.Time   `gorm:"index"`
	PublishedAt *time.Time  `gorm:"index"`
}

type AcceptItemInput struct {
	ProductId           uint   `json:"productId" validate:"required"`
	Quantity            int64  `json:"quantity" validate:"required,min=1,max=1000"`
	Variant             string `json:"variant" validate:"max=64"`
	SpecialInstructions string `json:"specialInstructions" validate:"max=255"`
}

type AcceptOrderInput struct {
	TheaterId      uint              `json:"theaterId" validate:"required"`
	Items          []AcceptItemInput `json:"items" validate:"required,min=1,dive"`
	CustomerName   string            `json:"customerName" validate:"required,max=120"`
	CustomerEmail  string            `json:"customerEmail" validate:"omitempty,email"`
	CustomerPhone  string            `json:"customerPhone" validate:"omitempty,max=20"`
	PaymentMethod  string            `json:"paymentMethod" validate:"required"`
	Source         Source            `json:"source" validate:"required"`
	QRName         string            `json:"qrName" validate:"max=64"`
	Seat           string            `json:"seat" validate:"max=16"`
	IdempotencyKey string            `json:"idempotencyKey" validate:"required,max=100"`
	// ExpectedTotal is the client's estimate in paise; omitted means no stale check.
	ExpectedTotal *int64 `json:"expectedTotal"`
	// PayAtCounter holds a kiosk cash order as CONFIRMED until staff settle it.
	PayAtCounter bool `json:"payAtCounter"`
}

type AcceptResult struct {
	Order         *Order         `json:"order"`
	GatewayParams map[string]any `json:"gatewayParams,omitempty"`
	Replayed      bool           `json:"-"`
}

type CreatePaymentInput struct {
	OrderId       string `json:"orderId" validate:"required"`
	PaymentMethod string `json:"paymentMethod" validate:"required"`
}

type GatewayPaymentView struct {
	ProviderOrderId string         `json:"providerOrderId"`
	Amount          int64          `json:"amount"`
	Currency        string         `json:"currency"`
	ProviderParams  map[string]any `json:"providerParams"`
	TransactionId   string         `json:"transactionId"`
}

type VerifyPaymentInput struct {
	OrderId         string            `json:"orderId" validate:"required"`
	ProviderTxnId   string            `json:"providerTxnId"`
	Signature       string            `json:"signature"`
	ProviderOrderId string            `json:"providerOrderId"`
	TransactionId   string            `json:"transactionId"`
	Raw             map[string]string `json:"raw,omitempty"`
}

type VerifyResult struct {
	OK          bool        `json:"ok"`
	OrderStatus OrderStatus `json:"orderStatus"`
}

type CancelOrderInput struct {
	Reason string `json:"reason" validate:"required,max=255"`
	Refund *bool  `json:"refund"`
}

type SettleOrderInput struct {
	Method string `json:"method" validate:"required,oneof=cash cod"`
}

type FilterOrder struct {
	Pagination
	TheaterId   uint     `query:"theaterId"`
	Search      string   `query:"search"`
	Status      string   `query:"status"`
	PaymentMode string   `query:"paymentMode"`
	Sources     []Source `query:"-"`
	StartDate   string   `query:"startDate"`
	EndDate     string   `query:"endDate"`
}

type OrderSummary struct {
	TotalOrders          int64 `json:"totalOrders"`
	ConfirmedOrders      int64 `json:"confirmedOrders"`
	CompletedOrders      int64 `json:"completedOrders"`
	CancelledOrderAmount int64 `json:"cancelledOrderAmount"`
	TotalRevenue         int64 `json:"totalRevenue"`
}

type OrderListResponse struct {
	Items      []Order      `json:"items"`
	Pagination PageInfo     `json:"pagination"`
	Summary    OrderSummary `json:"summary"`
}

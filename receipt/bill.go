package receipt

import (
	"time"

	"cinema_pos/model"

	"github.com/shopspring/decimal"
)

type Line struct {
	Name                string  `json:"name"`
	Variant             string  `json:"variant,omitempty"`
	Category            string  `json:"category"`
	Quantity            int64   `json:"quantity"`
	UnitPrice           int64   `json:"unitPrice"`
	TaxRate             float64 `json:"taxRate"`
	Total               int64   `json:"total"`
	SpecialInstructions string  `json:"specialInstructions,omitempty"`
}

// Bill is the printable view of an order. It is built from the order's own
// item snapshot, never from current product data.
type Bill struct {
	TheaterId    uint                `json:"theaterId"`
	TheaterName  string              `json:"theaterName"`
	OrderId      string              `json:"orderId"`
	OrderNumber  string              `json:"orderNumber"`
	CustomerName string              `json:"customerName"`
	Seat         string              `json:"seat,omitempty"`
	QRName       string              `json:"qrName,omitempty"`
	Source       model.Source        `json:"source"`
	Method       model.PaymentMethod `json:"method"`
	Status       model.OrderStatus   `json:"status"`
	Lines        []Line              `json:"lines"`
	Pricing      model.Pricing       `json:"pricing"`
	IssuedAt     time.Time           `json:"issuedAt"`
}

func BillFromOrder(order *model.Order, theaterName string) Bill {
	b := Bill{
		TheaterId:    order.TheaterId,
		TheaterName:  theaterName,
		OrderId:      order.ID,
		OrderNumber:  order.OrderNumber,
		CustomerName: order.CustomerName,
		Seat:         order.Seat,
		QRName:       order.QRName,
		Source:       order.Source,
		Method:       order.Payment.Method,
		Status:       order.Status,
		Pricing:      order.Pricing,
		IssuedAt:     order.CreatedAt,
		Lines:        make([]Line, 0, len(order.Items)),
	}
	if order.Payment.PaidAt != nil {
		b.IssuedAt = *order.Payment.PaidAt
	}
	for _, it := range order.Items {
		b.Lines = append(b.Lines, Line{
			Name:                it.Name,
			Variant:             it.Variant,
			Category:            categoryOf(it.Category),
			Quantity:            it.Quantity,
			UnitPrice:           it.UnitPrice,
			TaxRate:             it.TaxRate,
			Total:               it.LineTotal,
			SpecialInstructions: it.SpecialInstructions,
		})
	}
	return b
}

func categoryOf(c string) string {
	if c == "" {
		return "other"
	}
	return c
}

// Categories lists the distinct categories in first-seen order.
func (b Bill) Categories() []string {
	seen := map[string]bool{}
	var out []string
	for _, l := range b.Lines {
		if !seen[l.Category] {
			seen[l.Category] = true
			out = append(out, l.Category)
		}
	}
	return out
}

// ForCategory returns a copy of the bill holding only lines of category.
func (b Bill) ForCategory(category string) Bill {
	out := b
	out.Lines = nil
	for _, l := range b.Lines {
		if l.Category == category {
			out.Lines = append(out.Lines, l)
		}
	}
	return out
}

// Rupees formats paise as a fixed two-decimal amount.
func Rupees(paise int64) string {
	return decimal.New(paise, -2).StringFixed(2)
}

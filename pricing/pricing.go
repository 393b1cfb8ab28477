// Package pricing turns cart lines into GST-split totals. Money is paise.
package pricing

import (
	"cinema_pos/model"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
)

type Line struct {
	UnitPrice          int64
	Quantity           int64
	TaxRate            float64
	GSTType            model.GSTType
	DiscountPercentage float64
}

// LineResult values are rounded half-even for display only; totals are
// computed from the unrounded line values.
type LineResult struct {
	Subtotal int64 `json:"lineSubtotal"`
	Tax      int64 `json:"lineTax"`
	Discount int64 `json:"lineDiscount"`
	Total    int64 `json:"lineTotal"`
}

type Result struct {
	Lines   []LineResult  `json:"lines"`
	Pricing model.Pricing `json:"pricing"`
}

type exactLine struct {
	gross, discount, tax, total decimal.Decimal
}

func computeLine(l Line) exactLine {
	rate := decimal.NewFromFloat(l.TaxRate)
	gross := decimal.NewFromInt(l.UnitPrice).Mul(decimal.NewFromInt(l.Quantity))
	discount := gross.Mul(decimal.NewFromFloat(l.DiscountPercentage)).Div(hundred)

	var tax, total decimal.Decimal
	if l.GSTType == model.GSTInclude {
		total = gross.Sub(discount)
		tax = total.Mul(rate).Div(hundred.Add(rate))
	} else {
		net := gross.Sub(discount)
		tax = net.Mul(rate).Div(hundred)
		total = net.Add(tax)
	}
	return exactLine{gross: gross, discount: discount, tax: tax, total: total}
}

func paise(d decimal.Decimal) int64 {
	return d.RoundBank(0).IntPart()
}

// Compute prices the lines. Rounding happens once on the summed totals and
// subtotal is derived so that total = subtotal + tax - totalDiscount holds exactly.
func Compute(lines []Line) Result {
	res := Result{Lines: make([]LineResult, 0, len(lines))}

	sumTotal, sumTax, sumDiscount := decimal.Zero, decimal.Zero, decimal.Zero
	for _, l := range lines {
		e := computeLine(l)
		sumTotal = sumTotal.Add(e.total)
		sumTax = sumTax.Add(e.tax)
		sumDiscount = sumDiscount.Add(e.discount)

		lt, ltax, ld := paise(e.total), paise(e.tax), paise(e.discount)
		res.Lines = append(res.Lines, LineResult{
			Subtotal: lt - ltax + ld,
			Tax:      ltax,
			Discount: ld,
			Total:    lt,
		})
	}

	total := paise(sumTotal)
	tax := paise(sumTax)
	discount := paise(sumDiscount)
	cgst := paise(decimal.NewFromInt(tax).Div(two))

	res.Pricing = model.Pricing{
		Subtotal:      total - tax + discount,
		CGST:          cgst,
		SGST:          tax - cgst,
		Tax:           tax,
		TotalDiscount: discount,
		Total:         total,
	}
	return res
}

// FromItems rebuilds pricing lines from a persisted order's snapshot.
func FromItems(items []model.OrderItem) []Line {
	lines := make([]Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, Line{
			UnitPrice:          it.UnitPrice,
			Quantity:           it.Quantity,
			TaxRate:            it.TaxRate,
			GSTType:            it.GSTType,
			DiscountPercentage: it.DiscountPercentage,
		})
	}
	return lines
}

// Stale reports whether a client estimate is off by more than one paisa.
func Stale(expected, server int64) bool {
	diff := expected - server
	return diff > 1 || diff < -1
}

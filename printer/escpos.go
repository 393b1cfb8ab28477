package printer

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"cinema_pos/receipt"
)

const lineWidth = 42

var (
	escInit       = []byte{0x1b, 0x40}
	escAlignLeft  = []byte{0x1b, 0x61, 0x00}
	escAlignMid   = []byte{0x1b, 0x61, 0x01}
	escBoldOn     = []byte{0x1b, 0x45, 0x01}
	escBoldOff    = []byte{0x1b, 0x45, 0x00}
	escDoubleOn   = []byte{0x1d, 0x21, 0x11}
	escDoubleOff  = []byte{0x1d, 0x21, 0x00}
	escFeedAndCut = []byte{0x1d, 0x56, 0x42, 0x03}
)

type escpos struct{ bytes.Buffer }

func (e *escpos) cmd(b []byte) { e.Write(b) }

func (e *escpos) line(s string) {
	e.WriteString(s)
	e.WriteByte('\n')
}

// pair prints left and right on one line, truncating left when needed.
func (e *escpos) pair(left, right string) {
	space := lineWidth - utf8.RuneCountInString(right) - 1
	if space < 1 {
		space = 1
	}
	if utf8.RuneCountInString(left) > space {
		left = string([]rune(left)[:space])
	}
	pad := lineWidth - utf8.RuneCountInString(left) - utf8.RuneCountInString(right)
	if pad < 1 {
		pad = 1
	}
	e.line(left + strings.Repeat(" ", pad) + right)
}

func (e *escpos) rule() { e.line(strings.Repeat("-", lineWidth)) }

func itemLabel(l receipt.Line) string {
	label := fmt.Sprintf("%d x %s", l.Quantity, l.Name)
	if l.Variant != "" {
		label += " (" + l.Variant + ")"
	}
	return label
}

// Encode renders a job as ESC/POS bytes for an 80mm thermal printer.
func Encode(job Job) []byte {
	var e escpos
	b := job.Bill
	e.cmd(escInit)

	switch job.Kind {
	case KindCategoryDocket:
		e.cmd(escAlignMid)
		e.cmd(escDoubleOn)
		e.line(strings.ToUpper(job.Category))
		e.cmd(escDoubleOff)
		e.cmd(escAlignLeft)
		e.line(b.OrderNumber)
		if b.Seat != "" {
			e.line("Seat " + b.Seat)
		}
		if b.QRName != "" {
			e.line(b.QRName)
		}
		e.rule()
		e.cmd(escBoldOn)
		for _, l := range b.Lines {
			e.line(itemLabel(l))
			if l.SpecialInstructions != "" {
				e.cmd(escBoldOff)
				e.line("  * " + l.SpecialInstructions)
				e.cmd(escBoldOn)
			}
		}
		e.cmd(escBoldOff)

	default:
		e.cmd(escAlignMid)
		e.cmd(escBoldOn)
		e.line(b.TheaterName)
		e.cmd(escBoldOff)
		e.line("TAX INVOICE")
		e.cmd(escAlignLeft)
		e.line("Order: " + b.OrderNumber)
		e.line("Date:  " + b.IssuedAt.Format("02 Jan 2006 15:04"))
		e.line("Name:  " + b.CustomerName)
		e.rule()
		for _, l := range b.Lines {
			e.pair(itemLabel(l), receipt.Rupees(l.Total))
		}
		e.rule()
		e.pair("Subtotal", receipt.Rupees(b.Pricing.Subtotal))
		e.pair("CGST", receipt.Rupees(b.Pricing.CGST))
		e.pair("SGST", receipt.Rupees(b.Pricing.SGST))
		if b.Pricing.TotalDiscount > 0 {
			e.pair("Discount", "-"+receipt.Rupees(b.Pricing.TotalDiscount))
		}
		e.cmd(escBoldOn)
		e.pair("TOTAL INR", receipt.Rupees(b.Pricing.Total))
		e.cmd(escBoldOff)
		e.line("Paid by: " + string(b.Method))
	}

	e.WriteString("\n\n")
	e.cmd(escFeedAndCut)
	return e.Bytes()
}

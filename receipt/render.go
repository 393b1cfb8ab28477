package receipt

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"cinema_pos/utils"
)

// Template ids shared with print jobs.
const (
	TemplateGSTBill        = "gst_bill"
	TemplateCategoryDocket = "category_docket"
)

//go:embed templates/*.html
var templateFS embed.FS

type Renderer struct {
	tmpl      *template.Template
	publicURL string
}

func NewRenderer(publicURL string) (*Renderer, error) {
	tmpl, err := template.New("receipt").
		Funcs(template.FuncMap{"rupees": Rupees}).
		ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse receipt templates: %w", err)
	}
	return &Renderer{tmpl: tmpl, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

type view struct {
	Bill      Bill
	Category  string
	QR        template.URL
	AutoPrint bool
}

// Render executes the template for a print job. Dockets are titled with
// the category of their first line.
func (r *Renderer) Render(templateID string, b Bill, autoPrint bool) ([]byte, error) {
	v := view{Bill: b, AutoPrint: autoPrint}
	switch templateID {
	case TemplateGSTBill:
		if r.publicURL != "" && b.OrderId != "" {
			uri, err := utils.QRDataURI(r.publicURL+"/receipt/"+b.OrderId, 180)
			if err != nil {
				return nil, err
			}
			v.QR = template.URL(uri)
		}
	case TemplateCategoryDocket:
		if len(b.Lines) > 0 {
			v.Category = b.Lines[0].Category
		}
	default:
		return nil, fmt.Errorf("unknown receipt template %q", templateID)
	}

	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, templateID+".html", v); err != nil {
		return nil, fmt.Errorf("render %s: %w", templateID, err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) Bill(b Bill) ([]byte, error) {
	return r.Render(TemplateGSTBill, b, false)
}

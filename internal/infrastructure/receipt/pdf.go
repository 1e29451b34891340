// Package receipt renders payment receipts as PDF documents.
package receipt

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"

	dompayment "github.com/Zhima-Mochi/paylink/internal/domain/payment"
)

const (
	Title           = "Payment Receipt"
	Footer          = "Thank you for your purchase!"
	DefaultCurrency = "XAF"

	dateLayout = "January 2, 2006, 03:04 PM"
)

// Line is one labelled row of a receipt.
type Line struct {
	Label string
	Value string
	Size  float64
}

// Lines lists the body rows of a receipt. Rows whose source field is empty are left out.
func Lines(d dompayment.Details) []Line {
	var lines []Line
	add := func(label, value string, size float64) {
		if value != "" {
			lines = append(lines, Line{Label: label, Value: value, Size: size})
		}
	}

	p := d.Payment
	if p == nil {
		p = &dompayment.Payment{}
	}

	if d.Merchant != nil {
		add("Merchant", d.Merchant.BusinessName, 14)
	}
	if d.Product != nil {
		add("Product", d.Product.Title, 14)
		add("Description", d.Product.Description, 12)
	}
	if !p.Amount.IsZero() {
		currency := p.CurrencyCode
		if currency == "" {
			currency = DefaultCurrency
		}
		add("Amount Paid", p.Amount.StringFixed(2)+" "+currency, 14)
	}
	add("Payment Reference", p.ExternalReference, 12)
	add("Customer", customer(p.Customer), 12)
	if !p.CreatedAt.IsZero() {
		add("Date of Payment", p.CreatedAt.Format(dateLayout), 12)
	}
	return lines
}

func customer(c dompayment.Customer) string {
	switch {
	case c.Name != "" && c.Email != "":
		return fmt.Sprintf("%s (%s)", c.Name, c.Email)
	case c.Name != "":
		return c.Name
	default:
		return c.Email
	}
}

// PDFRenderer draws receipts with the core Helvetica font.
type PDFRenderer struct{}

func NewPDFRenderer() PDFRenderer { return PDFRenderer{} }

func (PDFRenderer) Render(d dompayment.Details) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(18, 18, 18)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 12, Title, "", 1, "C", false, 0, "")
	pdf.Ln(6)

	for _, l := range Lines(d) {
		height := l.Size * 0.5
		pdf.SetFont("Helvetica", "B", l.Size)
		pdf.Write(height, tr(l.Label+":"))
		pdf.SetFont("Helvetica", "", l.Size)
		pdf.Write(height, tr(" "+l.Value))
		pdf.Ln(height + 2)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, Footer, "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	return buf.Bytes(), nil
}

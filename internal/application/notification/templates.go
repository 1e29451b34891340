package notification

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFiles embed.FS

var templates = template.Must(template.ParseFS(templateFiles, "templates/*.html"))

const (
	templateReceipt  = "receipt.html"
	templateMerchant = "merchant.html"
)

// view is the data shared by both email templates.
type view struct {
	CustomerName string
	MerchantName string
	ProductTitle string
	Amount       string
	Currency     string
	ReceiptURL   string
	Year         int
}

func render(name string, v view) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, v); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

package render

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"time"

	"ordernotify/internal/domain"
)

// orderDocument is the HTML printed to PDF for the composer attachment.
// It is a summary sheet, not a replica of the host's own report.
var orderDocument = htmltemplate.Must(htmltemplate.New("order").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
  body { font-family: Helvetica, Arial, sans-serif; margin: 40px; color: #222; }
  h1 { font-size: 22px; border-bottom: 2px solid #222; padding-bottom: 8px; }
  table { border-collapse: collapse; margin-top: 24px; }
  td { padding: 6px 16px 6px 0; font-size: 14px; }
  td.label { color: #666; }
  .footer { margin-top: 48px; font-size: 11px; color: #999; }
</style>
</head>
<body>
  <h1>Sales Order {{.Order.Name}}</h1>
  <table>
    <tr><td class="label">Order</td><td>{{.Order.Name}}</td></tr>
    {{if .Order.ContactPhone}}<tr><td class="label">Contact</td><td>{{.Order.ContactPhone}}</td></tr>{{end}}
    <tr><td class="label">Issued</td><td>{{.Issued}}</td></tr>
  </table>
  <div class="footer">Generated by ordernotify on {{.Issued}}</div>
</body>
</html>`))

type orderDocumentData struct {
	Order  domain.OrderRef
	Issued string
}

// BuildOrderHTML renders the order summary document as an HTML string.
func BuildOrderHTML(order domain.OrderRef) (string, error) {
	var buf bytes.Buffer
	err := orderDocument.Execute(&buf, orderDocumentData{
		Order:  order,
		Issued: time.Now().Format("2006-01-02 15:04"),
	})
	if err != nil {
		return "", fmt.Errorf("render order template: %w", err)
	}
	return buf.String(), nil
}

package notifications

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

var templateFuncs = template.FuncMap{
	"amount": formatAmount,
	"date":   func(t time.Time) string { return t.Format("02 Jan 2006 15:04 MST") },
	"title":  humanizeStatus,
}

var (
	expiredSubject = template.Must(template.New("expired_subject").Parse(
		`Your order {{.OrderNumber}} has expired`))

	expiredBody = template.Must(template.New("expired_body").Funcs(templateFuncs).Parse(
		`Hi {{.Name}},

We did not receive payment for order {{.OrderNumber}} (total {{amount .GrandTotal}}), so it expired on {{date .ExpiredAt}}.
The {{.ItemCount}} item(s) you selected have been released back to the store.

If you still want them, you can place a new order at any time.
`))

	statusSubject = template.Must(template.New("status_subject").Funcs(templateFuncs).Parse(
		`Order {{.OrderNumber}} is now {{title .Status}}`))

	statusBody = template.Must(template.New("status_body").Funcs(templateFuncs).Parse(
		`Hi {{.Name}},

The status of your order {{.OrderNumber}} changed from {{title .From}} to {{title .Status}}.
Payment status: {{title .PaymentStatus}}.
`))
)

type expiredData struct {
	Name        string
	OrderNumber string
	GrandTotal  int64
	ItemCount   int
	ExpiredAt   time.Time
}

type statusData struct {
	Name          string
	OrderNumber   string
	From          string
	Status        string
	PaymentStatus string
}

func render(subject, body *template.Template, data any) (Message, error) {
	var s, b strings.Builder
	if err := subject.Execute(&s, data); err != nil {
		return Message{}, fmt.Errorf("failed to render %s: %w", subject.Name(), err)
	}
	if err := body.Execute(&b, data); err != nil {
		return Message{}, fmt.Errorf("failed to render %s: %w", body.Name(), err)
	}
	return Message{Subject: s.String(), Body: b.String()}, nil
}

// formatAmount converte unidades mínimas (kobo) em naira
func formatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s₦%d.%02d", sign, minor/100, minor%100)
}

func humanizeStatus(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

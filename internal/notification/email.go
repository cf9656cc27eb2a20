// Package notification sends transactional email. Delivery is always
// best-effort relative to the operation that triggered it.
package notification

import (
	"fmt"
	"net/smtp"
	"strings"
	"text/template"

	"github.com/ornate/go-jewelry-api/internal/config"
	"github.com/ornate/go-jewelry-api/internal/model"
)

type Sender interface {
	SendOrderConfirmation(email, name string, order *model.Order) error
}

type smtpSender struct {
	cfg config.SMTPConfig
}

func NewSMTPSender(cfg config.SMTPConfig) Sender {
	return &smtpSender{cfg: cfg}
}

var confirmationTmpl = template.Must(template.New("confirmation").Parse(
	`Hi {{.Name}},

Thanks for your order {{.OrderID}}.

{{range .Items}}  {{.Quantity}} x {{.Name}}{{if .Size}} (size {{.Size}}){{end}}{{if .Color}} ({{.Color}}){{end}} - {{.Price}}
{{end}}
Items:    {{.ItemsPrice}}
Tax:      {{.TaxPrice}}
Shipping: {{.ShippingPrice}}
Total:    {{.TotalPrice}}

We will let you know when it ships.
`))

func (s *smtpSender) SendOrderConfirmation(email, name string, order *model.Order) error {
	var body strings.Builder
	err := confirmationTmpl.Execute(&body, struct {
		Name    string
		OrderID string
		Items   []model.OrderItem
		ItemsPrice, TaxPrice, ShippingPrice, TotalPrice string
	}{
		Name:          name,
		OrderID:       order.ID.String(),
		Items:         order.Items,
		ItemsPrice:    order.ItemsPrice.StringFixed(2),
		TaxPrice:      order.TaxPrice.StringFixed(2),
		ShippingPrice: order.ShippingPrice.StringFixed(2),
		TotalPrice:    order.TotalPrice.StringFixed(2),
	})
	if err != nil {
		return fmt.Errorf("render confirmation: %w", err)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Order confirmation %s\r\n\r\n%s",
		s.cfg.From, email, order.ID, body.String())

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := smtp.SendMail(s.cfg.Addr(), auth, s.cfg.From, []string{email}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

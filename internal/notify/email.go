package notify

import (
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/voltstore/storefront/internal/domain/order"
	"github.com/voltstore/storefront/internal/domain/settings"
)

// Email sends transactional mail over SMTP: an order confirmation to the
// customer and a new-order notification to the configured admin address.
// Only the order-created event produces mail.
type Email struct {
	settings settings.Provider
	lg       *zap.Logger

	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmail creates the email channel.
func NewEmail(provider settings.Provider, lg *zap.Logger) *Email {
	return &Email{
		settings: provider,
		lg:       lg,
		send:     smtp.SendMail,
	}
}

func (e *Email) Name() string { return "email" }

// Send mails the order confirmation and the admin notification. Missing
// SMTP configuration is a silent no-op; a failed customer mail does not
// prevent the admin mail.
func (e *Email) Send(ctx context.Context, ev Event) error {
	if ev.Kind != KindOrderCreated {
		return nil
	}

	st, err := e.settings.Current(ctx)
	if err != nil {
		return errors.Wrap(err, "load settings")
	}
	if !st.SMTPConfigured() {
		e.lg.Debug("smtp not configured, skipping order emails",
			zap.Int64("order_id", ev.Order.ID))
		return nil
	}

	var errs []error
	if ev.Order.CustomerEmail != "" {
		if err := e.mailOrder(st, &ev.Order, ev.Order.CustomerEmail, confirmationTmpl,
			fmt.Sprintf("Order Confirmation #%d", ev.Order.ID)); err != nil {
			errs = append(errs, errors.Wrap(err, "customer confirmation"))
		}
	}
	if st.AdminEmail != "" {
		if err := e.mailOrder(st, &ev.Order, st.AdminEmail, adminTmpl,
			fmt.Sprintf("New Order #%d", ev.Order.ID)); err != nil {
			errs = append(errs, errors.Wrap(err, "admin notification"))
		}
	}

	if len(errs) > 0 {
		return errors.Errorf("%d of 2 mails failed: %v", len(errs), errs)
	}
	return nil
}

// emailData is the template payload. User-supplied strings go through
// html/template's contextual escaping.
type emailData struct {
	SiteName  string
	SiteEmail string
	SitePhone string
	Order     *order.Order
	Payment   string
}

func (e *Email) mailOrder(st settings.Settings, o *order.Order, to string, tmpl *template.Template, subject string) error {
	siteName := st.SiteName
	if siteName == "" {
		siteName = "Storefront"
	}
	from := st.SiteEmail
	if from == "" {
		from = st.SMTPUsername
	}

	payment := "Bank Transfer"
	if o.PaymentMethod == order.PaymentCashOnDelivery {
		payment = "Cash on Delivery"
	}

	var body strings.Builder
	if err := tmpl.Execute(&body, emailData{
		SiteName:  siteName,
		SiteEmail: from,
		SitePhone: st.SitePhone,
		Order:     o,
		Payment:   payment,
	}); err != nil {
		return errors.Wrap(err, "render body")
	}

	msg := fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s",
		siteName, from, to, subject, body.String())

	port := st.SMTPPort
	if port == 0 {
		port = 587
	}
	addr := fmt.Sprintf("%s:%d", st.SMTPHost, port)
	auth := smtp.PlainAuth("", st.SMTPUsername, st.SMTPPassword, st.SMTPHost)

	return e.send(addr, auth, from, []string{to}, []byte(msg))
}

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h1>{{.SiteName}}</h1>
  <h2>Order Confirmation</h2>
  <p>Dear {{.Order.CustomerName}},</p>
  <p>Thank you for your order! We've received it and it's being processed.</p>
  <p>
    <strong>Order ID:</strong> #{{.Order.ID}}<br>
    <strong>Payment Method:</strong> {{.Payment}}<br>
    <strong>Status:</strong> {{.Order.Status}}
  </p>
  <table width="100%" cellpadding="6">
    <tr><th align="left">Product</th><th>Qty</th><th align="right">Price</th><th align="right">Total</th></tr>
    {{range .Order.Items}}
    <tr>
      <td>{{.ProductName}}</td>
      <td align="center">{{.Quantity}}</td>
      <td align="right">${{.Price.StringFixed 2}}</td>
      <td align="right">${{.LineTotal.StringFixed 2}}</td>
    </tr>
    {{end}}
    <tr><td colspan="3" align="right"><strong>Total Amount:</strong></td>
        <td align="right"><strong>${{.Order.TotalAmount.StringFixed 2}}</strong></td></tr>
  </table>
  <h3>Shipping Address</h3>
  <p>{{.Order.ShippingAddress}}</p>
  {{if .Order.Notes}}<h3>Order Notes</h3><p>{{.Order.Notes}}</p>{{end}}
  <p>We'll email you again when your order ships.</p>
  <p>Thank you for shopping with {{.SiteName}}!{{if .SitePhone}}<br>Phone: {{.SitePhone}}{{end}}<br>Email: {{.SiteEmail}}</p>
</body>
</html>`))

var adminTmpl = template.Must(template.New("admin").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>New Order #{{.Order.ID}}</h2>
  <p>
    <strong>Customer:</strong> {{.Order.CustomerName}} ({{.Order.CustomerEmail}})<br>
    <strong>Phone:</strong> {{.Order.Phone}}<br>
    <strong>Address:</strong> {{.Order.ShippingAddress}}<br>
    <strong>Payment:</strong> {{.Payment}}<br>
    <strong>Total:</strong> ${{.Order.TotalAmount.StringFixed 2}}
  </p>
  <table width="100%" cellpadding="6">
    <tr><th align="left">Product</th><th>Qty</th><th align="right">Total</th></tr>
    {{range .Order.Items}}
    <tr>
      <td>{{.ProductName}}</td>
      <td align="center">{{.Quantity}}</td>
      <td align="right">${{.LineTotal.StringFixed 2}}</td>
    </tr>
    {{end}}
  </table>
  {{if .Order.Notes}}<p><strong>Notes:</strong> {{.Order.Notes}}</p>{{end}}
</body>
</html>`))

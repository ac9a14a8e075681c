package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/voltstore/storefront/internal/domain/order"
	"github.com/voltstore/storefront/internal/domain/settings"
)

// telegramRetries is how many times a failed send is retried after the
// initial attempt. Delays double starting at 2s: 2s, 4s.
const telegramRetries = 2

// htmlEscaper escapes user-supplied text interpolated into Telegram HTML
// parse mode messages.
var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

// Telegram sends order alerts to a configured chat via the Bot API.
// Credentials are read from the settings provider on every send.
type Telegram struct {
	settings settings.Provider
	client   *http.Client
	lg       *zap.Logger

	// baseURL and sleep are swappable for tests.
	baseURL string
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewTelegram creates the Telegram channel.
func NewTelegram(provider settings.Provider, lg *zap.Logger) *Telegram {
	return &Telegram{
		settings: provider,
		client:   &http.Client{Timeout: 10 * time.Second},
		lg:       lg,
		baseURL:  "https://api.telegram.org",
		sleep:    sleepCtx,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Send posts an alert for the event. An unconfigured channel is a no-op.
func (t *Telegram) Send(ctx context.Context, ev Event) error {
	st, err := t.settings.Current(ctx)
	if err != nil {
		return errors.Wrap(err, "load settings")
	}
	if !st.TelegramConfigured() {
		t.lg.Debug("telegram not configured, skipping notification",
			zap.Int64("order_id", ev.Order.ID))
		return nil
	}

	var text string
	switch ev.Kind {
	case KindOrderCreated, KindOrderConfirmed:
		text = orderMessage(&ev.Order)
	case KindStatusChanged:
		text = statusMessage(&ev.Order, st.SiteName, ev.OldStatus, ev.NewStatus)
	default:
		return nil
	}

	return t.sendWithRetry(ctx, st, text, ev.Order.ID)
}

// sendWithRetry posts the message, retrying transient failures with
// exponential backoff before giving up.
func (t *Telegram) sendWithRetry(ctx context.Context, st settings.Settings, text string, orderID int64) error {
	var lastErr error
	for attempt := 0; attempt <= telegramRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<attempt) * time.Second
			t.lg.Warn("telegram send failed, retrying",
				zap.Int64("order_id", orderID),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := t.sleep(ctx, delay); err != nil {
				return err
			}
		}
		if lastErr = t.post(ctx, st, text); lastErr == nil {
			return nil
		}
	}
	return errors.Wrapf(lastErr, "after %d attempts", telegramRetries+1)
}

func (t *Telegram) post(ctx context.Context, st settings.Settings, text string) error {
	body, err := json.Marshal(map[string]string{
		"chat_id":    st.TelegramChatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return errors.Wrap(err, "marshal message")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, st.TelegramBotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "send message")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("telegram api returned status %d", resp.StatusCode)
	}
	return nil
}

// orderMessage renders the full order alert. All user-supplied fields are
// escaped against HTML parse mode.
func orderMessage(o *order.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>New Order #%d</b>\n", o.ID)
	fmt.Fprintf(&b, "<i>Status:</i> %s\n", htmlEscaper.Replace(titleCase(string(o.Status))))
	fmt.Fprintf(&b, "<b>Customer:</b> %s\n", htmlEscaper.Replace(o.CustomerName))
	fmt.Fprintf(&b, "<b>Phone:</b> %s\n", htmlEscaper.Replace(o.Phone))
	fmt.Fprintf(&b, "<b>Address:</b> %s\n", htmlEscaper.Replace(o.ShippingAddress))
	fmt.Fprintf(&b, "<b>Total:</b> $%s\n\n", o.TotalAmount.StringFixed(2))
	b.WriteString("<b>Items:</b>\n")
	for _, it := range o.Items {
		fmt.Fprintf(&b, "%d× %s — $%s\n",
			it.Quantity, htmlEscaper.Replace(it.ProductName), it.LineTotal().StringFixed(2))
	}
	return b.String()
}

// statusMessage renders the status transition alert.
func statusMessage(o *order.Order, siteName string, from, to order.Status) string {
	if siteName == "" {
		siteName = "Storefront"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Order Status Updated</b> - %s\n\n", htmlEscaper.Replace(siteName))
	fmt.Fprintf(&b, "<b>Order #%d</b>\n", o.ID)
	fmt.Fprintf(&b, "<i>Customer:</i> %s\n", htmlEscaper.Replace(o.CustomerName))
	fmt.Fprintf(&b, "<i>Status:</i> %s → %s\n", from, to)
	fmt.Fprintf(&b, "<i>Total:</i> $%s", o.TotalAmount.StringFixed(2))
	return b.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

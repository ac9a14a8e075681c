// Package settings exposes site configuration stored by the admin panel.
// Values are read fresh on every call so that credential changes take
// effect without a restart; callers must treat every field as optional.
package settings

import "context"

// Settings is the current site configuration snapshot. Empty fields mean
// "not configured" and are a valid state, not an error.
type Settings struct {
	SiteName  string
	SiteEmail string
	SitePhone string

	// AdminEmail receives new-order notifications.
	AdminEmail string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string

	TelegramBotToken string
	TelegramChatID   string
}

// SMTPConfigured reports whether the email channel has enough
// configuration to send.
func (s Settings) SMTPConfigured() bool {
	return s.SMTPHost != "" && s.SMTPUsername != "" && s.SMTPPassword != ""
}

// TelegramConfigured reports whether the chat channel has enough
// configuration to send.
func (s Settings) TelegramConfigured() bool {
	return s.TelegramBotToken != "" && s.TelegramChatID != ""
}

// Provider supplies the current settings on demand.
type Provider interface {
	Current(ctx context.Context) (Settings, error)
}

// Static is a Provider returning a fixed snapshot, for tests and tools.
type Static Settings

func (s Static) Current(context.Context) (Settings, error) {
	return Settings(s), nil
}

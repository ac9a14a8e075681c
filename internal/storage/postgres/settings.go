package postgres

import (
	"context"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voltstore/storefront/internal/domain/settings"
)

const (
	listSettingsSQL = `SELECT key, value FROM settings`

	upsertSettingSQL = `INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`
)

var _ settings.Provider = (*SettingsStore)(nil)

// SettingsStore reads site configuration from the settings key/value
// table. Current hits the database on every call so that credential
// changes take effect without a restart.
type SettingsStore struct {
	pool *pgxpool.Pool
}

// NewSettingsStore returns a SettingsStore that uses the given pool.
func NewSettingsStore(pool *pgxpool.Pool) *SettingsStore {
	return &SettingsStore{pool: pool}
}

// Current loads the settings snapshot. Unknown keys are ignored; missing
// keys leave their fields zero.
func (s *SettingsStore) Current(ctx context.Context) (settings.Settings, error) {
	rows, err := s.pool.Query(ctx, listSettingsSQL)
	if err != nil {
		return settings.Settings{}, errors.Wrap(err, "loading settings")
	}
	defer rows.Close()

	var st settings.Settings
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return settings.Settings{}, errors.Wrap(err, "scanning setting")
		}
		switch key {
		case "site_name":
			st.SiteName = value
		case "site_email":
			st.SiteEmail = value
		case "site_phone":
			st.SitePhone = value
		case "admin_email":
			st.AdminEmail = value
		case "smtp_host":
			st.SMTPHost = value
		case "smtp_port":
			st.SMTPPort, _ = strconv.Atoi(value)
		case "smtp_username":
			st.SMTPUsername = value
		case "smtp_password":
			st.SMTPPassword = value
		case "telegram_bot_token":
			st.TelegramBotToken = value
		case "telegram_chat_id":
			st.TelegramChatID = value
		}
	}
	if err := rows.Err(); err != nil {
		return settings.Settings{}, errors.Wrap(err, "loading settings")
	}
	return st, nil
}

// Set writes one setting key, used by the seed tool.
func (s *SettingsStore) Set(ctx context.Context, key, value string) error {
	if _, err := s.pool.Exec(ctx, upsertSettingSQL, key, value); err != nil {
		return errors.Wrapf(err, "setting %q", key)
	}
	return nil
}

package daemon

import (
	"fmt"
	"strings"
	"time"

	"tickwork/internal/config"
	"tickwork/internal/notify"
	"tickwork/internal/storage"
)

// StorageConfig maps the storage section to storage.Config. It reports
// false when storage is disabled.
func StorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
}

func mapNotifyConfig(cfg *config.Config) notify.Config {
	if cfg == nil || cfg.Notify == nil || cfg.Notify.Telegram == nil {
		return notify.Config{}
	}
	tg := cfg.Notify.Telegram
	return notify.Config{
		Enabled:    tg.Enabled,
		OnSuccess:  tg.OnSuccess,
		RatePerMin: tg.RatePerMin,
		RetryMax:   2,
	}
}

// telegramSender returns nil when Telegram alerts are disabled.
func telegramSender(cfg *config.Config) (notify.Sender, error) {
	if cfg == nil || cfg.Notify == nil || cfg.Notify.Telegram == nil || !cfg.Notify.Telegram.Enabled {
		return nil, nil
	}
	tg := cfg.Notify.Telegram
	s, err := notify.NewTelegram(notify.TelegramConfig{Token: tg.Token, ChatID: tg.ChatID, ThreadID: tg.ThreadID})
	if err != nil {
		return nil, fmt.Errorf("notify.telegram: %w", err)
	}
	return s, nil
}

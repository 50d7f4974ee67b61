// Package store persists session state in a local key-value substrate. The
// default backend is a SQLite file; a Postgres backend is used when
// DATABASE_URL is configured.
package store

import (
	"context"
	"errors"
	"strings"
)

// ErrQuotaExceeded reports that a write would push the persisted history past
// its configured capacity. The caller is expected to evict and retry.
var ErrQuotaExceeded = errors.New("history quota exceeded")

// KV is a durable string key-value store. Get returns an empty string for a
// missing key.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Logical keys for persisted session state.
const (
	KeyCredential     = "credential"
	KeyHistory        = "history"
	KeyModelID        = "model_id"
	KeyVoice          = "voice"
	KeyConsoleVisible = "console_visible"
	KeySplitEnabled   = "split_enabled"
	KeyConcurrent     = "concurrent_enabled"
	KeyAutoPlay       = "autoplay_enabled"
	KeyVoiceNicknames = "voice_nicknames"
)

// Open creates a postgres-backed store when configured, otherwise SQLite.
func Open(ctx context.Context, databaseURL, sqlitePath string) (KV, error) {
	if strings.TrimSpace(databaseURL) != "" {
		return NewPostgresKV(ctx, databaseURL)
	}
	return NewSQLiteKV(sqlitePath)
}

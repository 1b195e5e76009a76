package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/artemnikitin/remoteconf/internal/document"
)

// DefaultFileName is the record name used when none is configured.
const DefaultFileName = "remote-config.json"

// Live persists the configuration as a single JSON record in a Storage.
// Freshness comes from the storage's own modification time; the record
// itself carries no timestamp.
type Live struct {
	storage Storage
	name    string
	now     func() time.Time
	logger  *slog.Logger
}

// NewLive creates a Live gateway storing its record under name.
func NewLive(storage Storage, name string, logger *slog.Logger) *Live {
	if name == "" {
		name = DefaultFileName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Live{
		storage: storage,
		name:    name,
		now:     time.Now,
		logger:  logger,
	}
}

// WithClock overrides the clock used for freshness checks.
func (l *Live) WithClock(now func() time.Time) *Live {
	l.now = now
	return l
}

// IsValid reports whether the record exists and is younger than window.
func (l *Live) IsValid(ctx context.Context, window time.Duration) bool {
	modified, err := l.storage.ModTime(ctx, l.name)
	if err != nil {
		if !isNotExist(err) {
			l.logger.Debug("cache metadata unavailable", "name", l.name, "error", err)
		}
		return false
	}
	return l.now().Sub(modified) < window
}

// Read loads and decodes the record. A missing record returns (nil, nil).
func (l *Live) Read(ctx context.Context) (*document.Configuration, error) {
	data, err := l.storage.ReadFile(ctx, l.name)
	if err != nil {
		if isNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache %s: %w", l.name, err)
	}

	cfg, err := document.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding cache %s: %w", l.name, err)
	}
	return &cfg, nil
}

// Write encodes cfg and replaces the record.
func (l *Live) Write(ctx context.Context, cfg document.Configuration) error {
	data, err := cfg.Encode()
	if err != nil {
		return err
	}
	if err := l.storage.WriteFile(ctx, l.name, data); err != nil {
		return fmt.Errorf("writing cache %s: %w", l.name, err)
	}
	return nil
}

// Delete removes the record. A missing record is not an error.
func (l *Live) Delete(ctx context.Context) error {
	if err := l.storage.Remove(ctx, l.name); err != nil && !isNotExist(err) {
		return fmt.Errorf("deleting cache %s: %w", l.name, err)
	}
	return nil
}

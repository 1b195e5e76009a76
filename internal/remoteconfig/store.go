// Package remoteconfig keeps an in-memory copy of a remote configuration
// document, refreshing it from the network or from a local cache.
package remoteconfig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/artemnikitin/remoteconf/internal/cache"
	"github.com/artemnikitin/remoteconf/internal/document"
	"github.com/artemnikitin/remoteconf/internal/transport"
)

// DefaultExpiration is how long a cached copy is served without asking
// the remote.
const DefaultExpiration = 24 * time.Hour

// Source tells where a fetch got its configuration from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceCache  Source = "cache"
)

// Result describes a successful fetch.
type Result struct {
	// Source is where the configuration was read from.
	Source Source
	// Updated is true when the in-memory state was replaced.
	Updated bool
	// Version is the store's version after the fetch.
	Version int
	// RemoteErr is set when the remote fetch failed and the result was
	// served from the cache instead.
	RemoteErr error
	// PersistErr is set when the write-through to the cache failed. The
	// in-memory update stands regardless.
	PersistErr error
}

// Options configures a Store.
type Options struct {
	// URL is the remote location passed to the transport.
	URL string
	// Headers are passed to the transport on every request.
	Headers map[string]string
	// Expiration is how long a cached copy counts as fresh. Defaults to
	// DefaultExpiration.
	Expiration time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Store owns the current configuration state: values, version, and the
// time of the last remote fetch that changed them.
type Store struct {
	url        string
	headers    map[string]string
	expiration time.Duration
	transport  transport.Transport
	cache      cache.Gateway
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.RWMutex
	values    map[string]document.Value
	version   int
	fetchDate time.Time
}

// New creates a Store. A nil gateway behaves like cache.Noop.
func New(opts Options, tr transport.Transport, gw cache.Gateway) (*Store, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("remote URL is required")
	}
	if tr == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if gw == nil {
		gw = cache.Noop{}
	}
	if opts.Expiration <= 0 {
		opts.Expiration = DefaultExpiration
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &Store{
		url:        opts.URL,
		headers:    headers,
		expiration: opts.Expiration,
		transport:  tr,
		cache:      gw,
		logger:     opts.Logger,
		now:        opts.Now,
		values:     map[string]document.Value{},
		version:    document.NoVersion,
	}, nil
}

// Fetch refreshes the configuration.
//
// Unless ignoreCache is set, a fresh cached copy is used without touching
// the network. Otherwise the remote is asked; if that fails for any reason
// other than ctx being cancelled, the cached copy is used instead. An error
// is returned only when no source produced a usable configuration.
func (s *Store) Fetch(ctx context.Context, ignoreCache bool) (Result, error) {
	if !ignoreCache && s.cache.IsValid(ctx, s.expiration) {
		return s.fetchLocal(ctx)
	}

	res, remoteErr := s.fetchRemote(ctx)
	if remoteErr == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, fmt.Errorf("fetch cancelled: %w", ctxErr)
	}

	s.logger.Warn("remote fetch failed, falling back to cache", "url", s.url, "error", remoteErr)

	res, localErr := s.fetchLocal(ctx)
	if localErr != nil {
		return Result{}, multierror.Append(remoteErr, localErr).ErrorOrNil()
	}
	res.RemoteErr = remoteErr
	return res, nil
}

// fetchLocal applies the cached configuration.
func (s *Store) fetchLocal(ctx context.Context) (Result, error) {
	cfg, err := s.cache.Read(ctx)
	if err != nil {
		if errors.Is(err, document.ErrMalformed) || errors.Is(err, document.ErrNotObject) {
			return Result{}, fmt.Errorf("%w: cached copy: %w", ErrDecodeFailed, err)
		}
		return Result{}, fmt.Errorf("%w: %w", ErrLocalReadFailed, err)
	}
	if cfg == nil {
		return Result{}, fmt.Errorf("%w: no cached configuration", ErrLocalReadFailed)
	}

	return s.apply(ctx, *cfg, SourceCache)
}

// fetchRemote downloads, decodes and applies the remote configuration.
func (s *Store) fetchRemote(ctx context.Context) (Result, error) {
	data, err := s.transport.Request(ctx, s.url, s.headers)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrTransportFailed, err)
	}

	cfg, err := document.Decode(data)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}

	return s.apply(ctx, cfg, SourceRemote)
}

// apply swaps in cfg when its version differs from the current one, or
// when no version is held. Remote updates stamp fetchDate and are written
// through to the cache while the lock is held, so the cached copy always
// matches the last applied remote state.
func (s *Store) apply(ctx context.Context, cfg document.Configuration, source Source) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("fetch cancelled: %w", err)
	}

	res := Result{Source: source, Version: s.version}
	if cfg.Version() == s.version && s.version != document.NoVersion {
		s.logger.Debug("configuration unchanged", "version", s.version, "source", source)
		return res, nil
	}

	previous := s.version
	s.values = cfg.Values()
	s.version = cfg.Version()
	res.Updated = true
	res.Version = s.version

	if source == SourceRemote {
		s.fetchDate = s.now()
		if err := s.cache.Write(ctx, cfg); err != nil {
			res.PersistErr = fmt.Errorf("%w: %w", ErrPersistFailed, err)
			s.logger.Warn("failed to persist configuration", "version", s.version, "error", err)
		}
	}

	s.logger.Info("configuration updated",
		"source", source,
		"previous_version", previous,
		"version", s.version,
		"keys", len(s.values),
	)
	return res, nil
}

// ClearCache deletes the cached copy and resets the in-memory state. The
// next Fetch goes to the remote. Deletion errors are logged, not returned.
func (s *Store) ClearCache(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cache.Delete(ctx); err != nil {
		s.logger.Warn("failed to delete cached configuration", "error", err)
	}
	s.values = map[string]document.Value{}
	s.version = document.NoVersion
	s.fetchDate = time.Time{}
}

// Values returns a copy of the current configuration values.
func (s *Store) Values() map[string]document.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]document.Value, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Value returns a single configuration value.
func (s *Store) Value(key string) (document.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Version returns the current version, or document.NoVersion.
func (s *Store) Version() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// FetchDate returns the time of the last remote fetch that changed the
// configuration. ok is false until one has happened.
func (s *Store) FetchDate() (t time.Time, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetchDate, !s.fetchDate.IsZero()
}

// Configuration returns the current state as a document.
func (s *Store) Configuration() document.Configuration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return document.New(s.values, s.version)
}

// URL returns the remote location.
func (s *Store) URL() string { return s.url }

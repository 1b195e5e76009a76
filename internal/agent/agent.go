package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/artemnikitin/remoteconf/internal/api"
	"github.com/artemnikitin/remoteconf/internal/config"
	"github.com/artemnikitin/remoteconf/internal/document"
	"github.com/artemnikitin/remoteconf/internal/remoteconfig"
	"github.com/artemnikitin/remoteconf/internal/transport"
)

// Fetcher is the part of remoteconfig.Store the agent drives.
type Fetcher interface {
	Fetch(ctx context.Context, ignoreCache bool) (remoteconfig.Result, error)
	ClearCache(ctx context.Context)
	Values() map[string]document.Value
	Version() int
	FetchDate() (time.Time, bool)
	URL() string
}

// Publisher receives the outcome of every fetch. Implementations must not
// block for long; they run inline with the poll loop.
type Publisher interface {
	Publish(ctx context.Context, o Outcome) error
}

// Outcome summarizes one fetch attempt.
type Outcome struct {
	At       time.Time
	Duration time.Duration
	Result   remoteconfig.Result
	Err      error
}

// Agent keeps a remote configuration fresh by fetching it on a fixed
// interval, and exposes the current state over the status API.
type Agent struct {
	cfg       config.AgentConfig
	store     Fetcher
	logger    *slog.Logger
	metrics   *runtimeMetrics
	publisher Publisher
	apiServer *api.Server

	mu          sync.Mutex
	lastOutcome *Outcome
	source      transport.Describer
}

// New creates a new Agent. publisher may be nil.
func New(cfg config.AgentConfig, store Fetcher, publisher Publisher, logger *slog.Logger) *Agent {
	a := &Agent{
		cfg:       cfg,
		store:     store,
		logger:    logger,
		metrics:   newRuntimeMetrics(cfg.NodeName),
		publisher: publisher,
	}

	if cfg.APIListenAddr != "" {
		a.apiServer = api.NewServer(cfg.APIListenAddr, logger, a, a, a)
	}

	return a
}

// SetSource reports d under "transport" in the status, such as the S3 ETag
// or git revision the current configuration came from.
func (a *Agent) SetSource(d transport.Describer) {
	a.mu.Lock()
	a.source = d
	a.mu.Unlock()
}

// Run starts the agent's fetch loop. It blocks until the context is
// cancelled (e.g., on SIGTERM).
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("agent starting",
		"node", a.cfg.NodeName,
		"url", a.store.URL(),
		"transport", a.cfg.Transport,
		"cache_backend", a.cfg.CacheBackend,
		"poll_interval", a.cfg.PollInterval,
		"expiration", a.cfg.Expiration,
	)

	if a.apiServer != nil {
		if err := a.apiServer.Start(); err != nil {
			return err
		}
	}

	// Fetch once immediately.
	a.tick(ctx, false)

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("agent shutting down")
			a.shutdown()
			return ctx.Err()
		case <-ticker.C:
			a.tick(ctx, false)
		}
	}
}

// shutdown cleans up all resources.
func (a *Agent) shutdown() {
	if a.apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.apiServer.Stop(ctx)
	}
}

// tick performs a single fetch and records its outcome.
func (a *Agent) tick(ctx context.Context, ignoreCache bool) Outcome {
	start := time.Now()
	res, err := a.store.Fetch(ctx, ignoreCache)
	o := Outcome{
		At:       start,
		Duration: time.Since(start),
		Result:   res,
		Err:      err,
	}

	switch {
	case err != nil:
		a.logger.Error("config fetch failed", "error", err)
	case res.RemoteErr != nil:
		a.logger.Warn("serving cached config, remote unavailable",
			"version", res.Version, "error", res.RemoteErr)
	default:
		a.logger.Debug("config fetch complete",
			"source", res.Source, "updated", res.Updated, "version", res.Version)
	}
	if res.PersistErr != nil {
		a.logger.Warn("config cache write failed", "error", res.PersistErr)
	}

	a.metrics.observeFetch(o)
	if date, ok := a.store.FetchDate(); ok {
		a.metrics.recordRemoteFetch(date)
	}
	a.metrics.setVersion(a.store.Version())

	a.mu.Lock()
	a.lastOutcome = &o
	a.mu.Unlock()

	if a.publisher != nil && ctx.Err() == nil {
		if perr := a.publisher.Publish(ctx, o); perr != nil {
			a.logger.Warn("failed to publish fetch metrics", "error", perr)
		}
	}

	return o
}

// Refresh forces a remote fetch. Implements api.Controller.
func (a *Agent) Refresh(ctx context.Context) (map[string]any, error) {
	o := a.tick(ctx, true)
	if o.Err != nil {
		return nil, o.Err
	}
	return outcomeFields(o), nil
}

// ClearCache drops the cached copy and resets state. Implements api.Controller.
func (a *Agent) ClearCache(ctx context.Context) {
	a.store.ClearCache(ctx)
	a.metrics.setVersion(a.store.Version())
	a.logger.Info("config cache cleared")
}

// Status returns the current configuration state. Implements api.StatusProvider.
func (a *Agent) Status() map[string]any {
	values := a.store.Values()
	plain := make(map[string]any, len(values))
	for k, v := range values {
		plain[k] = v.Interface()
	}

	status := map[string]any{
		"node":    a.cfg.NodeName,
		"url":     a.store.URL(),
		"version": a.store.Version(),
		"values":  plain,
	}
	if date, ok := a.store.FetchDate(); ok {
		status["fetch_date"] = date.UTC().Format(time.RFC3339)
	} else {
		status["fetch_date"] = nil
	}

	a.mu.Lock()
	last := a.lastOutcome
	source := a.source
	a.mu.Unlock()
	if last != nil {
		status["last_fetch"] = outcomeFields(*last)
	}
	if source != nil {
		status["transport"] = source.Describe()
	}

	return status
}

// MetricsText renders Prometheus text. Implements api.MetricsProvider.
func (a *Agent) MetricsText() string {
	return a.metrics.render()
}

func outcomeFields(o Outcome) map[string]any {
	fields := map[string]any{
		"at":          o.At.UTC().Format(time.RFC3339),
		"duration_ms": o.Duration.Milliseconds(),
	}
	if o.Err != nil {
		fields["error"] = o.Err.Error()
		return fields
	}
	fields["source"] = string(o.Result.Source)
	fields["updated"] = o.Result.Updated
	fields["version"] = o.Result.Version
	if o.Result.RemoteErr != nil {
		fields["remote_error"] = o.Result.RemoteErr.Error()
	}
	if o.Result.PersistErr != nil {
		fields["persist_error"] = o.Result.PersistErr.Error()
	}
	return fields
}

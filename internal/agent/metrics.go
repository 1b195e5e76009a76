package agent

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/artemnikitin/remoteconf/internal/remoteconfig"
)

// runtimeMetrics keeps in-memory counters/gauges exposed via /metrics.
type runtimeMetrics struct {
	mu   sync.RWMutex
	node string

	fetchTotal           uint64
	fetchErrorsTotal     uint64
	fetchBySource        map[remoteconfig.Source]uint64
	updatesTotal         uint64
	fallbacksTotal       uint64
	persistErrorsTotal   uint64
	fetchDurationSum     float64
	fetchDurationLast    float64
	lastRemoteFetchAt    float64
	currentVersion       int
	lastFetchSucceededAt float64
}

func newRuntimeMetrics(node string) *runtimeMetrics {
	return &runtimeMetrics{
		node:           node,
		fetchBySource:  make(map[remoteconfig.Source]uint64),
		currentVersion: -1,
	}
}

func (m *runtimeMetrics) observeFetch(o Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fetchTotal++
	sec := o.Duration.Seconds()
	m.fetchDurationLast = sec
	m.fetchDurationSum += sec

	if o.Err != nil {
		m.fetchErrorsTotal++
		return
	}
	m.lastFetchSucceededAt = float64(o.At.UTC().Unix())
	m.fetchBySource[o.Result.Source]++
	if o.Result.Updated {
		m.updatesTotal++
	}
	if o.Result.RemoteErr != nil {
		m.fallbacksTotal++
	}
	if o.Result.PersistErr != nil {
		m.persistErrorsTotal++
	}
}

func (m *runtimeMetrics) recordRemoteFetch(t time.Time) {
	if t.IsZero() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRemoteFetchAt = float64(t.UTC().Unix())
}

func (m *runtimeMetrics) setVersion(v int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentVersion = v
}

func (m *runtimeMetrics) render() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now().UTC().Unix()
	var b strings.Builder

	writeHelpType(&b, "remoteconf_fetch_total", "Total number of fetch attempts.", "counter")
	fmt.Fprintf(&b, "remoteconf_fetch_total{node=%q} %d\n", m.node, m.fetchTotal)

	writeHelpType(&b, "remoteconf_fetch_errors_total", "Total number of fetches that produced no configuration.", "counter")
	fmt.Fprintf(&b, "remoteconf_fetch_errors_total{node=%q} %d\n", m.node, m.fetchErrorsTotal)

	writeHelpType(&b, "remoteconf_fetch_source_total", "Successful fetches by the source that served them.", "counter")
	for _, src := range sortedSources(m.fetchBySource) {
		fmt.Fprintf(&b, "remoteconf_fetch_source_total{node=%q,source=%q} %d\n", m.node, src, m.fetchBySource[src])
	}

	writeHelpType(&b, "remoteconf_updates_total", "Total number of fetches that changed the held configuration.", "counter")
	fmt.Fprintf(&b, "remoteconf_updates_total{node=%q} %d\n", m.node, m.updatesTotal)

	writeHelpType(&b, "remoteconf_fallbacks_total", "Total number of fetches served from cache after a remote failure.", "counter")
	fmt.Fprintf(&b, "remoteconf_fallbacks_total{node=%q} %d\n", m.node, m.fallbacksTotal)

	writeHelpType(&b, "remoteconf_cache_write_errors_total", "Total number of failed cache writes.", "counter")
	fmt.Fprintf(&b, "remoteconf_cache_write_errors_total{node=%q} %d\n", m.node, m.persistErrorsTotal)

	writeHelpType(&b, "remoteconf_fetch_duration_seconds_total", "Total cumulative fetch duration in seconds.", "counter")
	fmt.Fprintf(&b, "remoteconf_fetch_duration_seconds_total{node=%q} %.6f\n", m.node, m.fetchDurationSum)

	writeHelpType(&b, "remoteconf_fetch_duration_seconds_last", "Duration of the latest fetch in seconds.", "gauge")
	fmt.Fprintf(&b, "remoteconf_fetch_duration_seconds_last{node=%q} %.6f\n", m.node, m.fetchDurationLast)

	writeHelpType(&b, "remoteconf_config_version", "Version of the held configuration (-1 when unversioned).", "gauge")
	fmt.Fprintf(&b, "remoteconf_config_version{node=%q} %d\n", m.node, m.currentVersion)

	writeHelpType(&b, "remoteconf_last_fetch_success_timestamp_seconds", "Unix timestamp of the last fetch that produced a configuration.", "gauge")
	fmt.Fprintf(&b, "remoteconf_last_fetch_success_timestamp_seconds{node=%q} %.0f\n", m.node, m.lastFetchSucceededAt)

	writeHelpType(&b, "remoteconf_last_remote_fetch_timestamp_seconds", "Unix timestamp of the last configuration taken from the remote.", "gauge")
	fmt.Fprintf(&b, "remoteconf_last_remote_fetch_timestamp_seconds{node=%q} %.0f\n", m.node, m.lastRemoteFetchAt)

	writeHelpType(&b, "remoteconf_remote_fetch_age_seconds", "Age in seconds of the last configuration taken from the remote.", "gauge")
	age := 0.0
	if m.lastRemoteFetchAt > 0 {
		age = float64(now) - m.lastRemoteFetchAt
		if age < 0 {
			age = 0
		}
	}
	fmt.Fprintf(&b, "remoteconf_remote_fetch_age_seconds{node=%q} %.0f\n", m.node, age)

	return b.String()
}

func writeHelpType(b *strings.Builder, metric, help, typ string) {
	fmt.Fprintf(b, "# HELP %s %s\n", metric, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", metric, typ)
}

func sortedSources(m map[remoteconfig.Source]uint64) []remoteconfig.Source {
	keys := make([]remoteconfig.Source, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

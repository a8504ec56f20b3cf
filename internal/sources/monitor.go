package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/dataminds-hq/tender-harvester/internal/logger"
	"github.com/dataminds-hq/tender-harvester/pkg/httpclient"
)

// QueryConfig is the full TED request configuration. The monitor replaces it
// wholesale; fetchers read it exactly once at the start of a run so they never
// observe a configuration torn between two API versions.
type QueryConfig struct {
	URL    string
	Query  string
	Fields []string
	Limit  int
}

// DefaultTedFields is the field set the v3 search endpoint serves.
var DefaultTedFields = []string{"title-proc", "buyer-name", "publication-date", "publication-number"}

// ConfigHolder owns the active QueryConfig. The monitor holds the sole writer
// handle; fetchers only load.
type ConfigHolder struct {
	v atomic.Pointer[QueryConfig]
}

// NewConfigHolder seeds the holder with the given configuration.
func NewConfigHolder(cfg QueryConfig) *ConfigHolder {
	h := &ConfigHolder{}
	h.Store(cfg)
	return h
}

// Load returns a copy of the active configuration. The Fields slice is
// copied too, so callers can never mutate the monitor-owned value.
func (h *ConfigHolder) Load() QueryConfig {
	cfg := *h.v.Load()
	fields := make([]string, len(cfg.Fields))
	copy(fields, cfg.Fields)
	cfg.Fields = fields
	return cfg
}

// Store atomically replaces the active configuration.
func (h *ConfigHolder) Store(cfg QueryConfig) {
	fields := make([]string, len(cfg.Fields))
	copy(fields, cfg.Fields)
	cfg.Fields = fields
	h.v.Store(&cfg)
}

// ConfigForVersion maps a self-reported API version to a query configuration.
// Unknown or absent versions fall back to the supplied default.
func ConfigForVersion(version string, def QueryConfig) QueryConfig {
	switch version {
	case "2.0":
		return QueryConfig{
			URL:    "https://api.ted.europa.eu/v3/notices/search/v2",
			Query:  "(title='technology')",
			Fields: []string{"title", "purchaser", "pub_date", "publication-number"},
			Limit:  5,
		}
	default:
		return def
	}
}

// Monitor polls the TED endpoint for API version drift and swaps the fetcher
// configuration when the version changes.
type Monitor struct {
	holder      *ConfigHolder
	client      httpclient.Client
	defaults    QueryConfig
	interval    time.Duration
	lastVersion string
}

// NewMonitor builds a monitor writing into holder. defaults is the
// configuration restored for unknown versions; its URL is also the poll target.
func NewMonitor(holder *ConfigHolder, client httpclient.Client, defaults QueryConfig, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Monitor{
		holder:   holder,
		client:   client,
		defaults: defaults,
		interval: interval,
	}
}

// Run polls until the context is cancelled. A failed poll never stops the
// loop; it only skips that cycle.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pollOnce(ctx)
		}
	}
}

// pollOnce performs a single version check cycle.
func (m *Monitor) pollOnce(ctx context.Context) {
	resp, err := m.client.Get(ctx, m.defaults.URL, nil)
	if err != nil {
		logger.WarnObj("api version check failed", "monitor_error", map[string]any{
			"url":   m.defaults.URL,
			"error": err.Error(),
		})
		return
	}

	switch {
	case resp.StatusCode() == http.StatusMethodNotAllowed:
		// GET unsupported on this endpoint; normal, not an error.
		logger.DebugObj("api version check unsupported", "monitor_status", resp.StatusCode())
		return
	case resp.StatusCode() < 200 || resp.StatusCode() >= 300:
		logger.WarnObj("api version check unavailable", "monitor_status", resp.StatusCode())
		return
	}

	var body struct {
		APIVersion string `json:"api_version"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		logger.WarnObj("api version check returned malformed body", "monitor_error", err.Error())
		return
	}
	if body.APIVersion == "" || body.APIVersion == m.lastVersion {
		return
	}

	previous := m.lastVersion
	m.lastVersion = body.APIVersion
	m.holder.Store(ConfigForVersion(body.APIVersion, m.defaults))
	logger.InfoObj("api version changed, query configuration swapped", "monitor_change", map[string]any{
		"previous": previous,
		"current":  body.APIVersion,
	})
}

// Package app wires the harvester's components together and drives the
// recurring schedules.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/dataminds-hq/tender-harvester/internal/catalog"
	"github.com/dataminds-hq/tender-harvester/internal/config"
	"github.com/dataminds-hq/tender-harvester/internal/docstore"
	"github.com/dataminds-hq/tender-harvester/internal/jobs"
	"github.com/dataminds-hq/tender-harvester/internal/logger"
	"github.com/dataminds-hq/tender-harvester/internal/snapshot"
	"github.com/dataminds-hq/tender-harvester/internal/sources"
	"github.com/dataminds-hq/tender-harvester/pkg/httpclient"
	"github.com/dataminds-hq/tender-harvester/pkg/publishers"
)

// App owns every long-lived component of the harvester.
type App struct {
	cfg      *config.Config
	pipeline *Pipeline
	monitor  *sources.Monitor
	state    *jobs.State
	store    docstore.Store
}

// New builds the full component graph from configuration. The document store
// connection is verified eagerly so a misconfigured deployment fails at
// startup, not mid-run.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	client := httpclient.NewRestyClient(cfg.RequestTimeout)

	defaults := sources.QueryConfig{
		URL:    cfg.TedAPIURL,
		Query:  cfg.TedQuery,
		Fields: sources.DefaultTedFields,
		Limit:  cfg.TedLimit,
	}
	holder := sources.NewConfigHolder(defaults)
	monitor := sources.NewMonitor(holder, client, defaults, cfg.MonitorInterval)

	retry := sources.DefaultRetryPolicy()
	ted := sources.NewTEDFetcher(client, holder, retry)
	bescha := sources.NewBeschAFetcher(client, cfg.BeschaAPIURL, filepath.Join(cfg.DataDir, "scratch"), retry)

	store, err := docstore.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return nil, fmt.Errorf("document store: %w", err)
	}

	ckan := catalog.NewClient(cfg.CkanURL, cfg.CkanAPIKey, cfg.RequestTimeout)
	catalogPub := catalog.NewPublisher(ckan, cfg.OwnerOrg, cfg.TitleLangs)

	state, err := jobs.OpenState(cfg.JobStatePath)
	if err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("job state: %w", err)
	}
	orch := jobs.NewOrchestrator(state, cfg.JobTimeout)

	events, err := buildFanout(ctx, cfg.PublishersFile)
	if err != nil {
		_ = state.Close()
		_ = store.Close(ctx)
		return nil, fmt.Errorf("event publishers: %w", err)
	}

	snaps := snapshot.NewWriter(cfg.DataDir)
	pipeline := NewPipeline(ted, bescha, snaps, store, catalogPub, orch, events)

	return &App{
		cfg:      cfg,
		pipeline: pipeline,
		monitor:  monitor,
		state:    state,
		store:    store,
	}, nil
}

// buildFanout loads the publishers file and instantiates every enabled sink.
// An empty path means no sinks.
func buildFanout(ctx context.Context, path string) (*publishers.Fanout, error) {
	if path == "" {
		return publishers.NewFanout(nil), nil
	}

	reg, err := publishers.LoadRegistry(path)
	if err != nil {
		return nil, err
	}
	pubs, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), reg.Enabled(), logger.Std{})
	if err != nil {
		return nil, err
	}

	logger.InfoObj("event publishers configured", "publishers_loaded", map[string]any{
		"configured": len(reg.All()),
		"enabled":    len(pubs),
	})
	return publishers.NewFanout(pubs), nil
}

// Pipeline exposes the run entry points, used by the backfill command.
func (a *App) Pipeline() *Pipeline {
	return a.pipeline
}

// Run starts the version monitor and the recurring TED and BeschA schedules,
// blocking until ctx is cancelled. Both schedules fire once at startup.
func (a *App) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.monitor.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.schedule(ctx, "ted", a.cfg.TedInterval, func(runCtx context.Context) {
			a.pipeline.RunTED(runCtx)
		})
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.schedule(ctx, "bescha", a.cfg.BeschaInterval, func(runCtx context.Context) {
			a.pipeline.RunBeschA(runCtx, time.Time{})
		})
	}()

	wg.Wait()
}

// schedule runs fn immediately, then on every interval tick until ctx ends.
func (a *App) schedule(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	logger.InfoObj("schedule started", "schedule", map[string]any{
		"name":             name,
		"interval_seconds": int64(interval.Seconds()),
	})

	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.InfoObj("schedule stopped", "schedule", map[string]any{"name": name})
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// Close releases the job state and the document store connection.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if err := a.state.Close(); err != nil {
		firstErr = err
	}
	if err := a.store.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

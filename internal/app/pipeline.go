package app

import (
	"context"
	"fmt"
	"time"

	"github.com/dataminds-hq/tender-harvester/internal/catalog"
	"github.com/dataminds-hq/tender-harvester/internal/docstore"
	"github.com/dataminds-hq/tender-harvester/internal/domain"
	"github.com/dataminds-hq/tender-harvester/internal/jobs"
	"github.com/dataminds-hq/tender-harvester/internal/logger"
	"github.com/dataminds-hq/tender-harvester/internal/snapshot"
	"github.com/dataminds-hq/tender-harvester/internal/sources"
	"github.com/dataminds-hq/tender-harvester/pkg/publishers"
)

// Snapshot prefixes, which double as the provenance identity prefix in the
// document store.
const (
	tedSnapshotPrefix = "ted_data"
)

// Pipeline composes the harvest stages (fetch, snapshot, ingest, publish)
// into orchestrated runs, one job family per entry point. Each stage is timed
// through the orchestrator's phase recorder; events are fanned out to the
// configured sinks after every run.
type Pipeline struct {
	ted     *sources.TEDFetcher
	bescha  *sources.BeschAFetcher
	snaps   *snapshot.Writer
	store   docstore.Store
	catalog *catalog.Publisher
	orch    *jobs.Orchestrator
	events  *publishers.Fanout
}

// NewPipeline wires a pipeline over the given stages. events may be nil when
// no downstream sinks are configured.
func NewPipeline(
	ted *sources.TEDFetcher,
	bescha *sources.BeschAFetcher,
	snaps *snapshot.Writer,
	store docstore.Store,
	cat *catalog.Publisher,
	orch *jobs.Orchestrator,
	events *publishers.Fanout,
) *Pipeline {
	return &Pipeline{
		ted:     ted,
		bescha:  bescha,
		snaps:   snaps,
		store:   store,
		catalog: cat,
		orch:    orch,
		events:  events,
	}
}

// RangeQuery builds the publication-date window expression for a TED
// backfill.
func RangeQuery(from, to time.Time) string {
	return fmt.Sprintf("(publication-date>=%s AND publication-date<=%s)",
		from.Format("20060102"), to.Format("20060102"))
}

// RunTED executes one harvest of the active TED query under the ted family
// lock.
func (p *Pipeline) RunTED(ctx context.Context) jobs.Report {
	return p.runTED(ctx, jobs.FamilyTed, "")
}

// RunTEDRange executes one harvest over an explicit publication-date window
// under the ted-range family lock.
func (p *Pipeline) RunTEDRange(ctx context.Context, from, to time.Time) jobs.Report {
	if from.After(to) {
		from, to = to, from
	}
	return p.runTED(ctx, jobs.FamilyTedRange, RangeQuery(from, to))
}

func (p *Pipeline) runTED(ctx context.Context, family jobs.Family, query string) jobs.Report {
	var (
		fetched int
		sum     catalog.Summary
	)
	report := p.orch.Run(ctx, family, func(runCtx context.Context, rec *jobs.PhaseRecorder) error {
		var batch *domain.Batch
		if err := rec.Time("fetch", func() error {
			var err error
			if query == "" {
				batch, err = p.ted.Fetch(runCtx)
			} else {
				batch, err = p.ted.FetchQuery(runCtx, query)
			}
			return err
		}); err != nil {
			return err
		}
		if len(batch.Notices) == 0 {
			// Nothing fetched means nothing to store or publish; the run
			// fails so the outcome is visible in the report.
			return fmt.Errorf("no notices fetched")
		}
		fetched = batch.Total

		var sourceFile string
		if err := rec.Time("snapshot", func() error {
			var err error
			sourceFile, err = p.snaps.Write(tedSnapshotPrefix, batch)
			return err
		}); err != nil {
			return err
		}

		if err := rec.Time("store", func() error {
			_, err := docstore.Ingest(runCtx, p.store, docstore.TedCollection, sourceFile, batch.Notices)
			return err
		}); err != nil {
			return err
		}

		return rec.Time("publish", func() error {
			sum = p.catalog.PublishNotices(runCtx, batch.Notices)
			return nil
		})
	})
	p.emit(ctx, report, fetched, sum)
	return report
}

// RunBeschA executes one harvest of the BeschA daily archive under the bescha
// family lock. A zero day means yesterday.
func (p *Pipeline) RunBeschA(ctx context.Context, day time.Time) jobs.Report {
	var (
		fetched int
		sum     catalog.Summary
	)
	report := p.orch.Run(ctx, jobs.FamilyBescha, func(runCtx context.Context, rec *jobs.PhaseRecorder) error {
		return p.beschaDay(runCtx, rec, day, &fetched, &sum)
	})
	p.emit(ctx, report, fetched, sum)
	return report
}

// RunBeschARange harvests every day in [from, to] under the bescha-range
// family lock. A failed day is logged and the range continues; the run fails
// only when every day failed.
func (p *Pipeline) RunBeschARange(ctx context.Context, from, to time.Time) jobs.Report {
	if from.After(to) {
		from, to = to, from
	}

	var (
		fetched int
		sum     catalog.Summary
	)
	report := p.orch.Run(ctx, jobs.FamilyBeschaRange, func(runCtx context.Context, rec *jobs.PhaseRecorder) error {
		days, failures := 0, 0
		for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
			if err := runCtx.Err(); err != nil {
				return err
			}
			days++
			if err := p.beschaDay(runCtx, rec, day, &fetched, &sum); err != nil {
				failures++
				logger.WarnObj("archive day failed, continuing range", "bescha_range_error", map[string]any{
					"day":   day.Format("2006-01-02"),
					"error": err.Error(),
				})
			}
		}
		if days > 0 && failures == days {
			return fmt.Errorf("all %d days in range failed", days)
		}
		return nil
	})
	p.emit(ctx, report, fetched, sum)
	return report
}

// beschaDay runs the fetch/store/publish sequence for one publication day.
// The archive file name is the batch's dedup identity, so re-running a day
// never duplicates catalog entries.
func (p *Pipeline) beschaDay(ctx context.Context, rec *jobs.PhaseRecorder, day time.Time, fetched *int, sum *catalog.Summary) error {
	var (
		batch   *domain.Batch
		archive string
	)
	if err := rec.Time("fetch", func() error {
		var err error
		batch, archive, err = p.bescha.Fetch(ctx, day)
		return err
	}); err != nil {
		return err
	}
	if len(batch.Notices) == 0 {
		return fmt.Errorf("no releases fetched")
	}
	*fetched += batch.Total

	if err := rec.Time("store", func() error {
		_, err := docstore.Ingest(ctx, p.store, docstore.BeschaCollection, archive, batch.Notices)
		return err
	}); err != nil {
		return err
	}

	return rec.Time("publish", func() error {
		s := p.catalog.PublishReleases(ctx, batch.Notices)
		sum.Total += s.Total
		sum.Accepted += s.Accepted
		sum.Skipped += s.Skipped
		sum.Failed += s.Failed
		sum.Published = append(sum.Published, s.Published...)
		return nil
	})
}

// emit fans out a run-completion event plus one event per newly created
// dataset. Delivery failures are logged, never propagated; the run's outcome
// is already decided.
func (p *Pipeline) emit(ctx context.Context, report jobs.Report, fetched int, sum catalog.Summary) {
	if p.events == nil || p.events.Size() == 0 {
		return
	}

	phaseMillis := make(map[string]int64, len(report.Phases))
	for _, span := range report.Phases {
		phaseMillis[span.Name] += span.Elapsed.Milliseconds()
	}

	events := make([]publishers.Event, 0, 1+len(sum.Published))
	events = append(events, publishers.NewRunEvent(
		string(report.Family), report.Task, report.Outcome,
		fetched, sum.Accepted, sum.Total, phaseMillis,
	))
	for _, ds := range sum.Published {
		events = append(events, publishers.NewDatasetEvent(string(report.Family), report.Task, ds))
	}

	for _, evt := range events {
		if _, err := p.events.Publish(ctx, evt); err != nil {
			logger.WarnObj("event fanout incomplete", "event_fanout_error", map[string]any{
				"kind":   evt.Kind,
				"family": evt.Family,
				"error":  err.Error(),
			})
		}
	}
}

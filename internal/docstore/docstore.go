// Package docstore provides deduplicating persistence of raw notices. Batches
// are keyed by their provenance marker (snapshot or archive file name); a
// batch whose marker is already present is skipped wholesale.
package docstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/dataminds-hq/tender-harvester/internal/domain"
	"github.com/dataminds-hq/tender-harvester/internal/logger"
)

// Collection names, matching the original ingestion layout.
const (
	TedCollection    = "ted_data"
	BeschaCollection = "bescha_data"
)

// Store is the narrow document-store surface the pipeline uses.
type Store interface {
	InsertMany(ctx context.Context, collection string, docs []domain.Notice) (int, error)
	HasSourceFile(ctx context.Context, collection, name string) (bool, error)
	Close(ctx context.Context) error
}

// IngestResult reports the outcome of one batch ingestion.
type IngestResult struct {
	Inserted int
	Skipped  bool
}

// Ingest tags every notice with the batch's provenance marker and inserts the
// batch, unless the marker has been seen before, in which case the whole
// batch is skipped. A partially inserted batch surfaces as an error; there is
// no multi-document transaction.
func Ingest(ctx context.Context, s Store, collection, sourceFile string, notices []domain.Notice) (IngestResult, error) {
	seen, err := s.HasSourceFile(ctx, collection, sourceFile)
	if err != nil {
		return IngestResult{}, fmt.Errorf("dedup check for %s: %w", sourceFile, err)
	}
	if seen {
		logger.InfoObj("batch already ingested, skipping", "ingest_skip", map[string]any{
			"collection":  collection,
			"source_file": sourceFile,
		})
		return IngestResult{Skipped: true}, nil
	}

	docs := make([]domain.Notice, 0, len(notices))
	dropped := 0
	for _, n := range notices {
		if n == nil {
			dropped++
			continue
		}
		n.SetSourceFile(sourceFile)
		docs = append(docs, n)
	}
	if dropped > 0 {
		logger.WarnObj("malformed notices dropped from batch", "ingest_dropped", map[string]any{
			"collection":  collection,
			"source_file": sourceFile,
			"dropped":     dropped,
		})
	}

	inserted, err := s.InsertMany(ctx, collection, docs)
	if err != nil {
		logger.ErrorObj("batch insert incomplete", "ingest_error", map[string]any{
			"collection":  collection,
			"source_file": sourceFile,
			"inserted":    inserted,
			"total":       len(docs),
			"error":       err.Error(),
		})
		return IngestResult{Inserted: inserted}, fmt.Errorf("insert batch %s: %w", sourceFile, err)
	}

	logger.InfoObj("batch ingested", "ingest_ok", map[string]any{
		"collection":  collection,
		"source_file": sourceFile,
		"inserted":    inserted,
	})
	return IngestResult{Inserted: inserted}, nil
}

// Memory is an in-process Store used by tests and local development.
type Memory struct {
	mu          sync.RWMutex
	collections map[string][]domain.Notice
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string][]domain.Notice)}
}

// InsertMany appends the documents to the named collection.
func (m *Memory) InsertMany(_ context.Context, collection string, docs []domain.Notice) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[collection] = append(m.collections[collection], docs...)
	return len(docs), nil
}

// HasSourceFile reports whether any stored document carries the marker.
func (m *Memory) HasSourceFile(_ context.Context, collection, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, doc := range m.collections[collection] {
		if doc.SourceFile() == name {
			return true, nil
		}
	}
	return false, nil
}

// Count returns the number of documents in a collection.
func (m *Memory) Count(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close(context.Context) error { return nil }

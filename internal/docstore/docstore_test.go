package docstore

import (
	"context"
	"errors"
	"testing"

	"github.com/dataminds-hq/tender-harvester/internal/domain"
)

func TestIngestTagsAndInserts(t *testing.T) {
	store := NewMemory()
	notices := []domain.Notice{
		{"publication-number": "1"},
		{"publication-number": "2"},
	}

	res, err := Ingest(context.Background(), store, TedCollection, "ted_data_20250101_000000.json", notices)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Skipped || res.Inserted != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if store.Count(TedCollection) != 2 {
		t.Fatalf("expected 2 stored documents, got %d", store.Count(TedCollection))
	}
	for _, n := range notices {
		if n.SourceFile() != "ted_data_20250101_000000.json" {
			t.Fatalf("notice missing provenance marker: %+v", n)
		}
	}
}

func TestIngestSkipsSeenBatch(t *testing.T) {
	store := NewMemory()
	first := []domain.Notice{{"publication-number": "1"}}
	if _, err := Ingest(context.Background(), store, BeschaCollection, "bescha_2025-01-01_x.zip", first); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}

	second := []domain.Notice{{"publication-number": "1"}, {"publication-number": "2"}}
	res, err := Ingest(context.Background(), store, BeschaCollection, "bescha_2025-01-01_x.zip", second)
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if !res.Skipped || res.Inserted != 0 {
		t.Fatalf("expected full skip, got %+v", res)
	}
	if store.Count(BeschaCollection) != 1 {
		t.Fatalf("duplicate batch landed, count %d", store.Count(BeschaCollection))
	}
}

func TestIngestCollectionsAreIndependent(t *testing.T) {
	store := NewMemory()
	marker := "shared_marker.json"
	if _, err := Ingest(context.Background(), store, TedCollection, marker, []domain.Notice{{"a": "1"}}); err != nil {
		t.Fatalf("ted Ingest: %v", err)
	}

	res, err := Ingest(context.Background(), store, BeschaCollection, marker, []domain.Notice{{"b": "2"}})
	if err != nil {
		t.Fatalf("bescha Ingest: %v", err)
	}
	if res.Skipped {
		t.Fatalf("marker in another collection must not dedup this one")
	}
}

func TestIngestDropsNilNotices(t *testing.T) {
	store := NewMemory()
	notices := []domain.Notice{
		{"ocid": "ocds-1"},
		nil,
		{"ocid": "ocds-2"},
	}

	res, err := Ingest(context.Background(), store, BeschaCollection, "bescha_2025-01-02_x.zip", notices)
	if err != nil {
		t.Fatalf("Ingest with nil notice: %v", err)
	}
	if res.Skipped || res.Inserted != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if store.Count(BeschaCollection) != 2 {
		t.Fatalf("expected 2 stored documents, got %d", store.Count(BeschaCollection))
	}
}

type failingStore struct {
	*Memory
}

func (f *failingStore) InsertMany(context.Context, string, []domain.Notice) (int, error) {
	return 1, errors.New("write concern violated")
}

func TestIngestSurfacesPartialInsert(t *testing.T) {
	store := &failingStore{Memory: NewMemory()}
	res, err := Ingest(context.Background(), store, TedCollection, "f.json", []domain.Notice{{"a": "1"}, {"b": "2"}})
	if err == nil {
		t.Fatalf("expected insert error")
	}
	if res.Inserted != 1 {
		t.Fatalf("expected partial count to surface, got %+v", res)
	}
}

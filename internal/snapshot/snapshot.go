// Package snapshot persists fetched batches as timestamped JSON files. The
// snapshot file name doubles as the batch's provenance identity: the store
// dedups on it, so snapshots are kept rather than treated as scratch.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dataminds-hq/tender-harvester/internal/domain"
)

// Writer writes batch snapshots into a fixed directory.
type Writer struct {
	dir string
}

// NewWriter creates a Writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

type snapshotBody struct {
	Notices          []domain.Notice `json:"notices"`
	TotalNoticeCount int             `json:"totalNoticeCount"`
}

// Write stores the batch under "<prefix>_<YYYYMMDD_HHMMSS>.json" and returns
// the file name.
func (w *Writer) Write(prefix string, batch *domain.Batch) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s.json", prefix, time.Now().Format("20060102_150405"))
	raw, err := json.MarshalIndent(snapshotBody{Notices: batch.Notices, TotalNoticeCount: batch.Total}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.dir, name), raw, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot %s: %w", name, err)
	}
	return name, nil
}

// Path returns the absolute location of a snapshot by name.
func (w *Writer) Path(name string) string {
	return filepath.Join(w.dir, name)
}

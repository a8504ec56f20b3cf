package sources

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dataminds-hq/tender-harvester/internal/domain"
	"github.com/dataminds-hq/tender-harvester/internal/logger"
	"github.com/dataminds-hq/tender-harvester/pkg/httpclient"
)

// BeschAFetcher downloads the daily OCDS bulk archive, extracts it into a
// scratch directory and concatenates every releases array it finds. Scratch
// files are removed before Fetch returns.
type BeschAFetcher struct {
	client     httpclient.Client
	baseURL    string
	scratchDir string
	retry      RetryPolicy
}

// NewBeschAFetcher builds a fetcher for the given export endpoint. Query
// parameters already present on baseURL are preserved; pubDay and format are
// overlaid per request.
func NewBeschAFetcher(client httpclient.Client, baseURL, scratchDir string, retry RetryPolicy) *BeschAFetcher {
	return &BeschAFetcher{
		client:     client,
		baseURL:    baseURL,
		scratchDir: scratchDir,
		retry:      retry,
	}
}

// Fetch retrieves the archive for the given publication day. A zero day means
// yesterday. It returns the batch plus the archive file name, which is the
// batch's provenance identity for dedup.
func (f *BeschAFetcher) Fetch(ctx context.Context, day time.Time) (*domain.Batch, string, error) {
	if day.IsZero() {
		day = time.Now().AddDate(0, 0, -1)
	}
	pubDay := day.Format("2006-01-02")

	fetchURL, err := f.buildURL(pubDay)
	if err != nil {
		return nil, "", err
	}

	body, err := f.download(ctx, fetchURL)
	if err != nil {
		return nil, "", err
	}

	archiveName := fmt.Sprintf("bescha_%s_%s.zip", pubDay, time.Now().Format("20060102_150405"))
	if err := os.MkdirAll(f.scratchDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create scratch directory: %w", err)
	}
	zipPath := filepath.Join(f.scratchDir, archiveName)
	if err := os.WriteFile(zipPath, body, 0o644); err != nil {
		return nil, "", fmt.Errorf("write archive: %w", err)
	}
	defer os.Remove(zipPath)

	extractDir := strings.TrimSuffix(zipPath, ".zip") + "_unzipped"
	if err := extractZip(zipPath, extractDir); err != nil {
		return nil, "", fmt.Errorf("extract archive %s: %w", archiveName, err)
	}
	defer os.RemoveAll(extractDir)

	releases := collectReleases(extractDir)
	logger.InfoObj("bescha fetch completed", "bescha_fetch", map[string]any{
		"pub_day":  pubDay,
		"archive":  archiveName,
		"releases": len(releases),
	})
	return &domain.Batch{Notices: releases, Total: len(releases)}, archiveName, nil
}

// buildURL overlays the date and archive-format selectors onto the base URL.
func (f *BeschAFetcher) buildURL(pubDay string) (string, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse bescha url: %w", err)
	}
	q := u.Query()
	q.Set("pubDay", pubDay)
	q.Set("format", "ocds.zip")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (f *BeschAFetcher) download(ctx context.Context, fetchURL string) ([]byte, error) {
	var body []byte
	err := f.retry.Do(ctx, func() error {
		resp, err := f.client.Get(ctx, fetchURL, nil)
		if err != nil {
			return fmt.Errorf("bescha request: %w", err)
		}
		if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
			return fmt.Errorf("bescha request returned status %d", resp.StatusCode())
		}
		body = resp.Body()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// extractZip unpacks the archive under destDir, rejecting entries that would
// escape it.
func extractZip(zipPath, destDir string) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer reader.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create extraction directory: %w", err)
	}

	for _, entry := range reader.File {
		target := filepath.Join(destDir, entry.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("zip entry %q escapes extraction directory", entry.Name)
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := writeZipEntry(entry, target); err != nil {
			return err
		}
	}
	return nil
}

func writeZipEntry(entry *zip.File, target string) error {
	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open zip entry %s: %w", entry.Name, err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	return nil
}

// collectReleases walks the extracted tree and concatenates every releases
// (or notices) array. Malformed documents are logged and skipped; they never
// abort the batch.
func collectReleases(dir string) []domain.Notice {
	var all []domain.Notice
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".json") {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			logger.WarnObj("bescha document unreadable", "bescha_file_error", map[string]any{
				"file":  d.Name(),
				"error": err.Error(),
			})
			return nil
		}

		var doc struct {
			Releases []domain.Notice `json:"releases"`
			Notices  []domain.Notice `json:"notices"`
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			logger.WarnObj("bescha document malformed", "bescha_file_error", map[string]any{
				"file":  d.Name(),
				"error": err.Error(),
			})
			return nil
		}
		// Null array elements decode to nil maps; drop them here so no
		// untaggable release reaches the store.
		for _, rel := range doc.Releases {
			if rel != nil {
				all = append(all, rel)
			}
		}
		for _, n := range doc.Notices {
			if n != nil {
				all = append(all, n)
			}
		}
		return nil
	})
	return all
}

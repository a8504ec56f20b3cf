package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.AppName != "tender-harvester" {
		t.Fatalf("AppName = %q", cfg.AppName)
	}
	if cfg.TedLimit != 100 {
		t.Fatalf("TedLimit = %d", cfg.TedLimit)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Fatalf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if cfg.JobTimeout != 10*time.Minute {
		t.Fatalf("JobTimeout = %v", cfg.JobTimeout)
	}
	if cfg.MonitorInterval != time.Minute {
		t.Fatalf("MonitorInterval = %v", cfg.MonitorInterval)
	}
	if len(cfg.TitleLangs) != 2 || cfg.TitleLangs[0] != "eng" || cfg.TitleLangs[1] != "en" {
		t.Fatalf("TitleLangs = %v", cfg.TitleLangs)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TED_QUERY", "(title-proc='bridges')")
	t.Setenv("TED_LIMIT", "25")
	t.Setenv("TITLE_LANGS", "deu, eng")
	t.Setenv("JOB_TIMEOUT_SECONDS", "120")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TedQuery != "(title-proc='bridges')" {
		t.Fatalf("TedQuery = %q", cfg.TedQuery)
	}
	if cfg.TedLimit != 25 {
		t.Fatalf("TedLimit = %d", cfg.TedLimit)
	}
	if len(cfg.TitleLangs) != 2 || cfg.TitleLangs[0] != "deu" {
		t.Fatalf("TitleLangs = %v", cfg.TitleLangs)
	}
	if cfg.JobTimeout != 2*time.Minute {
		t.Fatalf("JobTimeout = %v", cfg.JobTimeout)
	}
}

func TestLoadRejectsNonPositiveIntervals(t *testing.T) {
	t.Setenv("MONITOR_INTERVAL_SECONDS", "0")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for zero interval")
	}
}

func TestLoadRejectsEmptyTitleLangs(t *testing.T) {
	t.Setenv("TITLE_LANGS", " , ,")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for empty title_langs")
	}
}

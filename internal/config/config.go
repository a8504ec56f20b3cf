package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	TedAPIURL string `mapstructure:"ted_api_url"`
	TedQuery  string `mapstructure:"ted_query"`
	TedLimit  int    `mapstructure:"ted_limit"`

	BeschaAPIURL string `mapstructure:"bescha_api_url"`

	MongoURI string `mapstructure:"mongo_uri"`
	MongoDB  string `mapstructure:"mongo_db"`

	CkanURL    string `mapstructure:"ckan_url"`
	CkanAPIKey string `mapstructure:"ckan_api_key"`
	OwnerOrg   string `mapstructure:"owner_org"`

	TitleLangsRaw string   `mapstructure:"title_langs"`
	TitleLangs    []string `mapstructure:"-"`

	DataDir        string `mapstructure:"data_dir"`
	JobStatePath   string `mapstructure:"jobstate_path"`
	PublishersFile string `mapstructure:"publishers_file"`

	RequestTimeoutSeconds int64         `mapstructure:"request_timeout_seconds"`
	JobTimeoutSeconds     int64         `mapstructure:"job_timeout_seconds"`
	MonitorSeconds        int64         `mapstructure:"monitor_interval_seconds"`
	TedIntervalSeconds    int64         `mapstructure:"ted_interval_seconds"`
	BeschaIntervalSeconds int64         `mapstructure:"bescha_interval_seconds"`
	RequestTimeout        time.Duration `mapstructure:"-"`
	JobTimeout            time.Duration `mapstructure:"-"`
	MonitorInterval       time.Duration `mapstructure:"-"`
	TedInterval           time.Duration `mapstructure:"-"`
	BeschaInterval        time.Duration `mapstructure:"-"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "tender-harvester")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("ted_api_url", "https://api.ted.europa.eu/v3/notices/search")
	v.SetDefault("ted_query", "(title-proc='technology')")
	v.SetDefault("ted_limit", 100)
	v.SetDefault("bescha_api_url", "https://www.oeffentlichevergabe.de/api/notice-exports?format=ocds.zip")

	v.SetDefault("mongo_uri", "mongodb://localhost:27017/")
	v.SetDefault("mongo_db", "ckan_mongo")

	v.SetDefault("ckan_url", "http://localhost:5000")
	v.SetDefault("ckan_api_key", "")
	v.SetDefault("owner_org", "publicai")

	v.SetDefault("title_langs", "eng,en")

	v.SetDefault("data_dir", "./data")
	v.SetDefault("jobstate_path", "./data/jobs.db")
	v.SetDefault("publishers_file", "")

	v.SetDefault("request_timeout_seconds", 10)
	v.SetDefault("job_timeout_seconds", 600)
	v.SetDefault("monitor_interval_seconds", 60)
	v.SetDefault("ted_interval_seconds", 3600)
	v.SetDefault("bescha_interval_seconds", 86400)

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.TitleLangs = splitLangs(cfg.TitleLangsRaw)
	if len(cfg.TitleLangs) == 0 {
		return nil, fmt.Errorf("invalid title_langs (must name at least one language code)")
	}

	for _, d := range []struct {
		name    string
		seconds int64
		out     *time.Duration
	}{
		{"request_timeout_seconds", cfg.RequestTimeoutSeconds, &cfg.RequestTimeout},
		{"job_timeout_seconds", cfg.JobTimeoutSeconds, &cfg.JobTimeout},
		{"monitor_interval_seconds", cfg.MonitorSeconds, &cfg.MonitorInterval},
		{"ted_interval_seconds", cfg.TedIntervalSeconds, &cfg.TedInterval},
		{"bescha_interval_seconds", cfg.BeschaIntervalSeconds, &cfg.BeschaInterval},
	} {
		if d.seconds <= 0 {
			return nil, fmt.Errorf("invalid %s (must be positive seconds)", d.name)
		}
		*d.out = time.Duration(d.seconds) * time.Second
	}

	return &cfg, nil
}

func splitLangs(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

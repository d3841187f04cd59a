// Package config resolves coverage-browser settings from flags, environment
// and an optional config file.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"github.com/jupierce/coverage-browser/pkg/log"
	"github.com/jupierce/coverage-browser/pkg/store"
)

// SourceKind selects where coverage data comes from.
type SourceKind string

const (
	HTTPSource  SourceKind = "http"
	StoreSource SourceKind = "store"
)

// HistoryKind selects where history comes from. Empty uses the main source.
type HistoryKind string

const (
	HistoryFromSource HistoryKind = ""
	HistoryBigQuery   HistoryKind = "bigquery"
)

const (
	EnvPrefix        = "COVERAGE_BROWSER"
	ConfigName       = ".coverage-browser"
	DefaultRootLabel = "full repository"
	DefaultListen    = "127.0.0.1:8080"
	DefaultBQTable   = "coverage_history"
)

// RawInput holds the unvalidated values from all sources. Viper unmarshals
// into this struct.
type RawInput struct {
	Backend        string `mapstructure:"backend"`
	APIURL         string `mapstructure:"api-url"`
	SourceURL      string `mapstructure:"source-url"`
	StoreBackend   string `mapstructure:"store-backend"`
	StoreDSN       string `mapstructure:"store-dsn"`
	HistoryBackend string `mapstructure:"history-backend"`
	BQProject      string `mapstructure:"bq-project"`
	BQDataset      string `mapstructure:"bq-dataset"`
	BQTable        string `mapstructure:"bq-table"`
	RootLabel      string `mapstructure:"root-label"`
	Listen         string `mapstructure:"listen"`
	DiscardStale   bool   `mapstructure:"discard-stale"`
	LogLevel       string `mapstructure:"log-level"`
	LogDir         string `mapstructure:"log-dir"`
	LogMaxSizeMB   int    `mapstructure:"log-max-size"`
	LogMaxBackups  int    `mapstructure:"log-max-backups"`
	LogMaxAgeDays  int    `mapstructure:"log-max-age"`
	LogCompress    bool   `mapstructure:"log-compress"`
}

// BigQuery addresses the history table.
type BigQuery struct {
	Project string
	Dataset string
	Table   string
}

// Config is the validated configuration.
type Config struct {
	Backend        SourceKind
	APIURL         string
	SourceURL      string
	StoreBackend   store.Backend
	StoreDSN       string
	HistoryBackend HistoryKind
	BigQuery       BigQuery
	RootLabel      string
	Listen         string
	DiscardStale   bool
	LogLevel       log.Level
	LogFile        log.FileOptions
}

// SetDefaults registers defaults and environment lookup on v.
func SetDefaults(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("backend", string(StoreSource))
	v.SetDefault("api-url", "")
	v.SetDefault("source-url", "")
	v.SetDefault("store-backend", string(store.SQLiteBackend))
	v.SetDefault("store-dsn", "")
	v.SetDefault("history-backend", string(HistoryFromSource))
	v.SetDefault("bq-project", "")
	v.SetDefault("bq-dataset", "")
	v.SetDefault("bq-table", DefaultBQTable)
	v.SetDefault("root-label", DefaultRootLabel)
	v.SetDefault("listen", DefaultListen)
	v.SetDefault("discard-stale", true)
	v.SetDefault("log-level", "info")
	v.SetDefault("log-dir", "")
	v.SetDefault("log-max-size", 10)
	v.SetDefault("log-max-backups", 3)
	v.SetDefault("log-max-age", 28)
	v.SetDefault("log-compress", false)
}

// Load reads the config file named by the "config" key, or
// .coverage-browser.yaml from the working or home directory when present,
// then validates everything v resolves.
func Load(v *viper.Viper) (*Config, error) {
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	input := &RawInput{}
	if err := v.Unmarshal(input); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config: %w", err)
	}

	cfg := &Config{}
	if err := ProcessAndValidate(cfg, input); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProcessAndValidate checks input and fills cfg.
func ProcessAndValidate(cfg *Config, input *RawInput) error {
	if err := processSource(cfg, input); err != nil {
		return err
	}
	if err := processHistory(cfg, input); err != nil {
		return err
	}
	return processAmbient(cfg, input)
}

func processSource(cfg *Config, input *RawInput) error {
	cfg.Backend = SourceKind(strings.ToLower(input.Backend))
	switch cfg.Backend {
	case HTTPSource:
		if input.APIURL == "" {
			return fmt.Errorf("api-url is required when backend is %s", HTTPSource)
		}
		if err := validateURL("api-url", input.APIURL); err != nil {
			return err
		}
		cfg.APIURL = input.APIURL
		cfg.SourceURL = input.SourceURL
		if cfg.SourceURL == "" {
			cfg.SourceURL = input.APIURL
		}
		if err := validateURL("source-url", cfg.SourceURL); err != nil {
			return err
		}
	case StoreSource:
	default:
		return fmt.Errorf("invalid backend %q. Must be %s or %s", input.Backend, HTTPSource, StoreSource)
	}

	// The store is also the target of ingest and export, so it is always
	// resolved.
	cfg.StoreBackend = store.Backend(strings.ToLower(input.StoreBackend))
	switch cfg.StoreBackend {
	case store.SQLiteBackend, store.PostgreSQLBackend, store.MySQLBackend:
	default:
		return fmt.Errorf("invalid store-backend %q. Must be sqlite, postgresql, or mysql", input.StoreBackend)
	}
	if err := ValidateDSN(cfg.StoreBackend, input.StoreDSN); err != nil {
		return err
	}
	cfg.StoreDSN = input.StoreDSN
	return nil
}

func processHistory(cfg *Config, input *RawInput) error {
	cfg.HistoryBackend = HistoryKind(strings.ToLower(input.HistoryBackend))
	cfg.BigQuery = BigQuery{Project: input.BQProject, Dataset: input.BQDataset, Table: input.BQTable}
	if cfg.BigQuery.Table == "" {
		cfg.BigQuery.Table = DefaultBQTable
	}

	switch cfg.HistoryBackend {
	case HistoryFromSource:
		return nil
	case HistoryBigQuery:
		return cfg.BigQuery.Validate()
	default:
		return fmt.Errorf("invalid history-backend %q. Must be empty or %s", input.HistoryBackend, HistoryBigQuery)
	}
}

func processAmbient(cfg *Config, input *RawInput) error {
	cfg.RootLabel = input.RootLabel
	if cfg.RootLabel == "" {
		cfg.RootLabel = DefaultRootLabel
	}
	cfg.Listen = input.Listen
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	cfg.DiscardStale = input.DiscardStale

	level, err := log.ParseLevel(strings.ToLower(input.LogLevel))
	if err != nil {
		return err
	}
	cfg.LogLevel = level

	if input.LogMaxSizeMB < 0 || input.LogMaxBackups < 0 || input.LogMaxAgeDays < 0 {
		return fmt.Errorf("log rotation settings must not be negative")
	}
	cfg.LogFile = log.FileOptions{
		Dir:        input.LogDir,
		MaxSizeMB:  input.LogMaxSizeMB,
		MaxBackups: input.LogMaxBackups,
		MaxAgeDays: input.LogMaxAgeDays,
		Compress:   input.LogCompress,
	}
	return nil
}

// Validate checks that the BigQuery table is fully addressed.
func (b BigQuery) Validate() error {
	if b.Project == "" {
		return fmt.Errorf("bq-project is required for BigQuery")
	}
	if b.Dataset == "" {
		return fmt.Errorf("bq-dataset is required for BigQuery")
	}
	if b.Table == "" {
		return fmt.Errorf("bq-table is required for BigQuery")
	}
	return nil
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http or https URL, got %q", key, raw)
	}
	return nil
}

// ValidateDSN checks the shape of connection strings for the server
// backends.
func ValidateDSN(backend store.Backend, dsn string) error {
	switch backend {
	case store.MySQLBackend:
		if dsn == "" {
			return fmt.Errorf("store-dsn is required when using %s backend", backend)
		}
		if !strings.Contains(dsn, "@tcp(") {
			return fmt.Errorf("MySQL connection string must contain '@tcp(' for host:port specification")
		}
		if !strings.Contains(dsn, "/") {
			return fmt.Errorf("MySQL connection string must contain '/' followed by database name")
		}
	case store.PostgreSQLBackend:
		if dsn == "" {
			return fmt.Errorf("store-dsn is required when using %s backend", backend)
		}
		if !strings.Contains(dsn, "host=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'host=' parameter")
		}
		if !strings.Contains(dsn, "dbname=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'dbname=' parameter")
		}
	}
	return nil
}

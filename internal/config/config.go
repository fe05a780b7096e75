// Package config provides configuration loading and validation for the service and CLI.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jonathan/lastseen/internal/batch"
	"github.com/jonathan/lastseen/internal/extract"
	"github.com/jonathan/lastseen/internal/fetch"
	"github.com/jonathan/lastseen/internal/schemas"
	"github.com/jonathan/lastseen/internal/server/ratelimit"
	"github.com/jonathan/lastseen/internal/store"
	"github.com/jonathan/lastseen/internal/store/sheets"
	rootschemas "github.com/jonathan/lastseen/schemas"
)

// Record store backends.
const (
	StoreSheets   = "sheets"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Config is the merged service configuration: defaults, then an optional
// config file, then environment variables.
type Config struct {
	Port int `json:"port" yaml:"port" validate:"min=1,max=65535"`

	// Record store
	RecordStore     string `json:"record_store" yaml:"record_store" validate:"oneof=sheets postgres sqlite"`
	SpreadsheetID   string `json:"spreadsheet_id" yaml:"spreadsheet_id" validate:"required_if=RecordStore sheets"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file" validate:"required_if=RecordStore sheets"`
	SheetName       string `json:"sheet_name" yaml:"sheet_name" validate:"required"`
	InputColumn     string `json:"input_column" yaml:"input_column" validate:"required,alpha,uppercase,max=3"`
	OutputColumn    string `json:"output_column" yaml:"output_column" validate:"required,alpha,uppercase,max=3"`
	StartRow        int    `json:"start_row" yaml:"start_row" validate:"min=1"`
	DatabaseURL     string `json:"database_url" yaml:"database_url" validate:"required_if=RecordStore postgres"`
	SQLitePath      string `json:"sqlite_path" yaml:"sqlite_path" validate:"required_if=RecordStore sqlite"`

	// Fetching
	ProfileURLTemplate string   `json:"profile_url_template" yaml:"profile_url_template" validate:"required"`
	UseBrowser         bool     `json:"use_browser" yaml:"use_browser"`
	ChromePath         string   `json:"chrome_path" yaml:"chrome_path"`
	NavigationTimeout  Duration `json:"navigation_timeout" yaml:"navigation_timeout" validate:"gt=0"`
	SettleDelay        Duration `json:"settle_delay" yaml:"settle_delay" validate:"gte=0"`
	FetchTimeout       Duration `json:"fetch_timeout" yaml:"fetch_timeout" validate:"gt=0"`
	Concurrency        int      `json:"concurrency" yaml:"concurrency" validate:"min=1,max=16"`

	// Extraction
	MaxScanBytes int    `json:"max_scan_bytes" yaml:"max_scan_bytes" validate:"gte=0"`
	MaxMatches   int    `json:"max_matches" yaml:"max_matches" validate:"gte=0"`
	Timezone     string `json:"timezone" yaml:"timezone"`

	// Trigger auth; empty secret leaves the trigger open
	TriggerSecret   string   `json:"trigger_secret" yaml:"trigger_secret" validate:"omitempty,min=16"`
	TriggerTokenTTL Duration `json:"trigger_token_ttl" yaml:"trigger_token_ttl" validate:"gte=0"`

	// Rate limiting of the HTTP server
	RateLimitEnabled         bool     `json:"rate_limit_enabled" yaml:"rate_limit_enabled"`
	RateLimitDefaultLimit    int      `json:"rate_limit_default_limit" yaml:"rate_limit_default_limit" validate:"gte=0"`
	RateLimitDefaultWindow   Duration `json:"rate_limit_default_window" yaml:"rate_limit_default_window" validate:"gt=0"`
	RateLimitCleanupInterval Duration `json:"rate_limit_cleanup_interval" yaml:"rate_limit_cleanup_interval" validate:"gt=0"`
	RateLimitTriggerLimit    int      `json:"rate_limit_trigger_limit" yaml:"rate_limit_trigger_limit" validate:"gte=0"`
	RateLimitTriggerWindow   Duration `json:"rate_limit_trigger_window" yaml:"rate_limit_trigger_window" validate:"gt=0"`
	RateLimitTriggerBurst    int      `json:"rate_limit_trigger_burst" yaml:"rate_limit_trigger_burst" validate:"gte=0"`
	RateLimitWhitelist       []string `json:"rate_limit_whitelist" yaml:"rate_limit_whitelist" validate:"dive,ip"`
	RateLimitBlacklist       []string `json:"rate_limit_blacklist" yaml:"rate_limit_blacklist" validate:"dive,ip"`

	LogLevel       string `json:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	LogDevelopment bool   `json:"log_development" yaml:"log_development"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	layout := store.DefaultLayout()
	limits := ratelimit.DefaultConfig()
	trigger := limits.Trigger()
	return Config{
		Port:               3000,
		RecordStore:        StoreSheets,
		CredentialsFile:    sheets.DefaultCredentialsFile,
		SheetName:          layout.Sheet,
		InputColumn:        layout.InputColumn,
		OutputColumn:       layout.OutputColumn,
		StartRow:           layout.StartRow,
		SQLitePath:         "lastseen.db",
		ProfileURLTemplate: fetch.DefaultProfileURLTemplate,
		UseBrowser:         true,
		NavigationTimeout:  Duration(fetch.DefaultNavigationTimeout),
		SettleDelay:        Duration(fetch.DefaultSettleDelay),
		FetchTimeout:       Duration(batch.DefaultFetchTimeout),
		Concurrency:        1,
		TriggerTokenTTL:    Duration(24 * time.Hour),

		RateLimitEnabled:         limits.Enabled,
		RateLimitDefaultLimit:    limits.DefaultLimit,
		RateLimitDefaultWindow:   Duration(limits.DefaultWindow),
		RateLimitCleanupInterval: Duration(limits.CleanupInterval),
		RateLimitTriggerLimit:    trigger.Limit,
		RateLimitTriggerWindow:   Duration(trigger.Window),
		RateLimitTriggerBurst:    trigger.Burst,

		LogLevel: "info",
	}
}

// Load builds the configuration from path (JSON or YAML, optional) and the
// process environment.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) mergeFile(path string) error {
	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	isJSON := strings.EqualFold(filepath.Ext(path), ".json")

	var document map[string]any
	if isJSON {
		err = json.Unmarshal(data, &document)
	} else {
		err = yaml.Unmarshal(data, &document)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if document == nil {
		return nil
	}
	if err := schemas.ValidateDocument("config", rootschemas.Config, document); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	if isJSON {
		err = json.Unmarshal(data, c)
	} else {
		err = yaml.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			var items []string
			for _, item := range strings.Split(v, ",") {
				if item = strings.TrimSpace(item); item != "" {
					items = append(items, item)
				}
			}
			*dst = items
		}
	}
	dur := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	num("PORT", &c.Port)
	str("RECORD_STORE", &c.RecordStore)
	str("SPREADSHEET_ID", &c.SpreadsheetID)
	str("CREDENTIALS_FILE", &c.CredentialsFile)
	str("SHEET_NAME", &c.SheetName)
	str("INPUT_COLUMN", &c.InputColumn)
	str("OUTPUT_COLUMN", &c.OutputColumn)
	num("START_ROW", &c.StartRow)
	str("DATABASE_URL", &c.DatabaseURL)
	str("SQLITE_PATH", &c.SQLitePath)
	str("PROFILE_URL_TEMPLATE", &c.ProfileURLTemplate)
	flag("USE_BROWSER", &c.UseBrowser)
	str("CHROME_PATH", &c.ChromePath)
	dur("NAV_TIMEOUT", &c.NavigationTimeout)
	dur("SETTLE_DELAY", &c.SettleDelay)
	dur("FETCH_TIMEOUT", &c.FetchTimeout)
	num("CONCURRENCY", &c.Concurrency)
	num("MAX_SCAN_BYTES", &c.MaxScanBytes)
	num("MAX_MATCHES", &c.MaxMatches)
	str("TIMEZONE", &c.Timezone)
	str("TRIGGER_SECRET", &c.TriggerSecret)
	dur("TRIGGER_TOKEN_TTL", &c.TriggerTokenTTL)
	flag("RATE_LIMIT_ENABLED", &c.RateLimitEnabled)
	num("RATE_LIMIT_DEFAULT_LIMIT", &c.RateLimitDefaultLimit)
	dur("RATE_LIMIT_DEFAULT_WINDOW", &c.RateLimitDefaultWindow)
	dur("RATE_LIMIT_CLEANUP_INTERVAL", &c.RateLimitCleanupInterval)
	num("RATE_LIMIT_TRIGGER_LIMIT", &c.RateLimitTriggerLimit)
	dur("RATE_LIMIT_TRIGGER_WINDOW", &c.RateLimitTriggerWindow)
	num("RATE_LIMIT_TRIGGER_BURST", &c.RateLimitTriggerBurst)
	list("RATE_LIMIT_WHITELIST", &c.RateLimitWhitelist)
	list("RATE_LIMIT_BLACKLIST", &c.RateLimitBlacklist)
	str("LOG_LEVEL", &c.LogLevel)
	flag("LOG_DEVELOPMENT", &c.LogDevelopment)

	return errors.Join(errs...)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their config key
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config error: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("'%s' failed '%s' (got %v)", fe.Field(), fe.ActualTag(), fe.Value()))
		}
		return fmt.Errorf("config error: %s", strings.Join(msgs, "; "))
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("config error: 'timezone': %w", err)
	}
	if err := c.Layout().Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// Location resolves Timezone. Empty means the process local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Layout returns the record store layout.
func (c *Config) Layout() store.Layout {
	return store.Layout{
		Sheet:        c.SheetName,
		InputColumn:  c.InputColumn,
		OutputColumn: c.OutputColumn,
		StartRow:     c.StartRow,
	}
}

// FetchOptions returns the profile fetcher options.
func (c *Config) FetchOptions(logger *zap.Logger) *fetch.Options {
	opts := fetch.DefaultOptions()
	opts.URLTemplate = c.ProfileURLTemplate
	opts.NavigationTimeout = c.NavigationTimeout.Std()
	opts.SettleDelay = c.SettleDelay.Std()
	if logger != nil {
		opts.Logger = logger
	}
	return opts
}

// Extractor returns the timestamp extractor. Location must already be valid.
func (c *Config) Extractor() *extract.Extractor {
	loc, err := c.Location()
	if err != nil {
		loc = time.Local
	}
	return &extract.Extractor{
		Location:     loc,
		MaxScanBytes: c.MaxScanBytes,
		MaxMatches:   c.MaxMatches,
	}
}

// BatchOptions returns the orchestrator options without logger or observer.
func (c *Config) BatchOptions() batch.Options {
	return batch.Options{
		Concurrency:  c.Concurrency,
		FetchTimeout: c.FetchTimeout.Std(),
		Extractor:    c.Extractor(),
	}
}

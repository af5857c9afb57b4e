package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ProviderAlphaVantage is the only supported quote provider.
const ProviderAlphaVantage = "ALPHAVANTAGE"

// ProviderConfig holds the quote provider settings.
type ProviderConfig struct {
	Name           string        `mapstructure:"name"`
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Retries        int           `mapstructure:"retries"`
}

// FetchConfig controls how a run walks the symbol list.
type FetchConfig struct {
	InterRequestDelay time.Duration `mapstructure:"inter_request_delay"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	FailFast          bool          `mapstructure:"fail_fast"`

	// ScheduleCadence documents how often the external trigger runs. It is
	// not acted on here.
	ScheduleCadence string `mapstructure:"schedule_cadence"`
}

// PostgresConfig defines the configuration for connecting to a PostgreSQL database.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`

	Schema    string `mapstructure:"schema"`
	Table     string `mapstructure:"table"`
	BatchSize int    `mapstructure:"batch_size"`
}

// DSN returns the libpq connection string for the configured database.
func (cfg PostgresConfig) DSN() string {
	return cfg.dsn(cfg.DBName)
}

// MaintenanceDSN returns a connection string for the server's default
// "postgres" database, used to create the target database.
func (cfg PostgresConfig) MaintenanceDSN() string {
	return cfg.dsn("postgres")
}

func (cfg PostgresConfig) dsn(dbname string) string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, dbname, cfg.SSLMode,
	)
	if cfg.TimeZone != "" {
		dsn += fmt.Sprintf(" TimeZone=%s", cfg.TimeZone)
	}
	return dsn
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // optional rotating log file
	Environment string `mapstructure:"environment"` // "dev" or "prod"
}

// Config holds all configuration for one pipeline run.
type Config struct {
	Symbols  []string       `mapstructure:"symbols"`
	Provider ProviderConfig `mapstructure:"provider"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Log      LogConfig      `mapstructure:"log"`
}

// Error lists every configuration key that is missing or invalid.
type Error struct {
	Missing []string
	Invalid []string
}

func (e *Error) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required configuration: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid configuration: "+strings.Join(e.Invalid, ", "))
	}
	return strings.Join(parts, "; ")
}

// envBindings maps config keys to the environment variables that may set
// them, in order of precedence.
var envBindings = map[string][]string{
	"symbols":                   {"SYMBOLS", "STOCK_SYMBOLS"},
	"provider.name":             {"STOCK_API_PROVIDER"},
	"provider.api_key":          {"API_KEY", "ALPHAVANTAGE_API_KEY"},
	"provider.base_url":         {"ALPHAVANTAGE_BASE_URL"},
	"provider.request_timeout":  {"REQUEST_TIMEOUT"},
	"provider.retries":          {"PROVIDER_RETRIES"},
	"fetch.inter_request_delay": {"INTER_REQUEST_DELAY"},
	"fetch.requests_per_minute": {"REQUESTS_PER_MINUTE"},
	"fetch.fail_fast":           {"FAIL_FAST"},
	"fetch.schedule_cadence":    {"SCHEDULE_CADENCE"},
	"postgres.host":             {"DB_HOST", "POSTGRES_HOST"},
	"postgres.port":             {"DB_PORT", "POSTGRES_PORT"},
	"postgres.user":             {"DB_USER", "POSTGRES_USER"},
	"postgres.password":         {"DB_PASSWORD", "POSTGRES_PASSWORD"},
	"postgres.dbname":           {"DB_NAME", "POSTGRES_DB"},
	"postgres.sslmode":          {"DB_SSLMODE"},
	"postgres.timezone":         {"DB_TIMEZONE"},
	"postgres.schema":           {"DB_SCHEMA"},
	"postgres.table":            {"DB_TABLE"},
	"postgres.batch_size":       {"DB_BATCH_SIZE"},
	"log.level":                 {"LOG_LEVEL"},
	"log.format":                {"LOG_FORMAT"},
	"log.output_file":           {"LOG_FILE"},
	"log.environment":           {"ENVIRONMENT"},
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringSlice("symbols", nil, "comma-separated ticker symbols to fetch (overrides SYMBOLS)")
}

// Load reads configuration from environment variables, an optional .env file
// and an optional config file. Flags registered with RegisterFlags take
// precedence over everything else; flags may be nil.
//
// Required settings:
//   - API_KEY (or ALPHAVANTAGE_API_KEY)
//   - SYMBOLS (or STOCK_SYMBOLS, or --symbols)
//   - DB_HOST, DB_NAME, DB_USER, DB_PASSWORD (or the POSTGRES_* equivalents)
func Load(flags *pflag.FlagSet) (*Config, error) {
	// A missing .env file is normal outside local development
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("provider.name", ProviderAlphaVantage)
	v.SetDefault("provider.base_url", "https://www.alphavantage.co/query")
	v.SetDefault("provider.request_timeout", 30*time.Second)
	v.SetDefault("provider.retries", 0)
	v.SetDefault("fetch.inter_request_delay", 12*time.Second)
	v.SetDefault("fetch.requests_per_minute", 0)
	v.SetDefault("fetch.fail_fast", false)
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timezone", "UTC")
	v.SetDefault("postgres.schema", "public")
	v.SetDefault("postgres.table", "stocks")
	v.SetDefault("postgres.batch_size", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.environment", "prod")

	// Optionally read from config file if it exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.stock-pipeline")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if flags != nil {
		if f := flags.Lookup("symbols"); f != nil {
			if err := v.BindPFlag("symbols", f); err != nil {
				return nil, fmt.Errorf("failed to bind --symbols: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Symbols = splitSymbols(cfg.Symbols)
	cfg.Provider.Name = strings.ToUpper(strings.TrimSpace(cfg.Provider.Name))
	cfg.Provider.APIKey = strings.TrimSpace(cfg.Provider.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required and bounded settings. It returns a *Error naming
// every offending key, or nil.
func (c *Config) Validate() error {
	cerr := &Error{}

	if c.Provider.APIKey == "" {
		cerr.Missing = append(cerr.Missing, "API_KEY")
	}
	if len(c.Symbols) == 0 {
		cerr.Missing = append(cerr.Missing, "SYMBOLS")
	}
	if c.Postgres.Host == "" {
		cerr.Missing = append(cerr.Missing, "DB_HOST")
	}
	if c.Postgres.DBName == "" {
		cerr.Missing = append(cerr.Missing, "DB_NAME")
	}
	if c.Postgres.User == "" {
		cerr.Missing = append(cerr.Missing, "DB_USER")
	}
	if c.Postgres.Password == "" {
		cerr.Missing = append(cerr.Missing, "DB_PASSWORD")
	}

	if c.Provider.Name != ProviderAlphaVantage {
		cerr.Invalid = append(cerr.Invalid, fmt.Sprintf("STOCK_API_PROVIDER (%q is not supported)", c.Provider.Name))
	}
	if c.Provider.RequestTimeout <= 0 {
		cerr.Invalid = append(cerr.Invalid, "REQUEST_TIMEOUT")
	}
	if c.Provider.Retries < 0 {
		cerr.Invalid = append(cerr.Invalid, "PROVIDER_RETRIES")
	}
	if c.Fetch.InterRequestDelay < 0 {
		cerr.Invalid = append(cerr.Invalid, "INTER_REQUEST_DELAY")
	}
	if c.Fetch.RequestsPerMinute < 0 {
		cerr.Invalid = append(cerr.Invalid, "REQUESTS_PER_MINUTE")
	}
	if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
		cerr.Invalid = append(cerr.Invalid, "DB_PORT")
	}
	if c.Postgres.BatchSize < 0 {
		cerr.Invalid = append(cerr.Invalid, "DB_BATCH_SIZE")
	}

	if len(cerr.Missing) > 0 || len(cerr.Invalid) > 0 {
		return cerr
	}
	return nil
}

// splitSymbols flattens comma-joined entries, trims and upper-cases each
// symbol and drops blank entries such as a trailing comma.
func splitSymbols(in []string) []string {
	var out []string
	for _, entry := range in {
		for _, s := range strings.Split(entry, ",") {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

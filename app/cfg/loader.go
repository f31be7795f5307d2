package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBDriver   string `long:"db-driver" env:"DB_DRIVER" default:"sqlite" choice:"postgres" choice:"sqlite" description:"Database driver"`
	DBHost     string `long:"db-host" env:"DB_HOST" default:"localhost" description:"Database host"`
	DBPort     string `long:"db-port" env:"DB_PORT" default:"5432" description:"Database port"`
	DBUser     string `long:"db-user" env:"DB_USER" default:"rss_user" description:"Database user"`
	DBPassword string `long:"db-password" env:"DB_PASSWORD" description:"Database password (required for postgres)"`
	DBName     string `long:"db-name" env:"DB_NAME" default:"rss_sync" description:"Database name"`
	DBSSLMode  string `long:"db-sslmode" env:"DB_SSLMODE" default:"disable" description:"Postgres sslmode"`
	DBPath     string `long:"db-path" env:"DB_PATH" default:"./rss-sync.db" description:"SQLite database file"`
	DBMaxConns int    `long:"db-max-conns" env:"DB_MAX_CONNS" default:"10" description:"Maximum open database connections"`

	// Ingestion configuration
	SourcesFile       string        `long:"sources-file" env:"SOURCES_FILE" default:"./sources.yml" description:"YAML file with the categories and sources to seed"`
	WorkerCount       int           `long:"worker-count" env:"WORKER_COUNT" default:"45" description:"Maximum concurrent source fetches per run"`
	SchedulerInterval time.Duration `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"15m" description:"Interval between category runs (0 disables periodic runs)"`
	FetchTimeout      time.Duration `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"15s" description:"Timeout of one source fetch"`
	FetchCooldown     time.Duration `long:"fetch-cooldown" env:"FETCH_COOLDOWN" default:"60s" description:"Minimum time between two fetches of the same URL"`
	MaxBodyBytes      int64         `long:"max-body-bytes" env:"MAX_BODY_BYTES" default:"10485760" description:"Maximum accepted feed document size"`
	AutoClean         bool          `long:"auto-clean" env:"AUTO_CLEAN" description:"Remove sources that keep failing"`
	AutoCleanAfter    int           `long:"auto-clean-after" env:"AUTO_CLEAN_AFTER" default:"5" description:"Consecutive failed runs before a source is removed"`

	// Read configuration
	SearchThreshold float64       `long:"search-threshold" env:"SEARCH_THRESHOLD" default:"0.3" description:"Minimum trigram similarity for search matches"`
	PageSize        int           `long:"page-size" env:"PAGE_SIZE" default:"20" description:"Default page size"`
	MaxPageSize     int           `long:"max-page-size" env:"MAX_PAGE_SIZE" default:"100" description:"Maximum page size"`
	CacheTTL        time.Duration `long:"cache-ttl" env:"CACHE_TTL" default:"30s" description:"Page cache TTL"`
	CacheSize       int           `long:"cache-size" env:"CACHE_SIZE" default:"1000" description:"In-process page cache capacity"`
	RedisAddr       string        `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for the page cache (optional)"`

	// Application configuration
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for mutating endpoints (optional)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"RSS Sync/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load parses args (usually os.Args[1:]) with environment fallbacks. It
// returns nil, nil when help was requested.
func Load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBDriver:          raw.DBDriver,
		DBHost:            raw.DBHost,
		DBPort:            raw.DBPort,
		DBUser:            raw.DBUser,
		DBPassword:        raw.DBPassword,
		DBName:            raw.DBName,
		DBSSLMode:         raw.DBSSLMode,
		DBPath:            raw.DBPath,
		DBMaxConns:        raw.DBMaxConns,
		SourcesFile:       raw.SourcesFile,
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: raw.SchedulerInterval,
		FetchTimeout:      raw.FetchTimeout,
		FetchCooldown:     raw.FetchCooldown,
		MaxBodyBytes:      raw.MaxBodyBytes,
		AutoClean:         raw.AutoClean,
		AutoCleanAfter:    raw.AutoCleanAfter,
		SearchThreshold:   raw.SearchThreshold,
		PageSize:          raw.PageSize,
		MaxPageSize:       raw.MaxPageSize,
		CacheTTL:          raw.CacheTTL,
		CacheSize:         raw.CacheSize,
		RedisAddr:         raw.RedisAddr,
		Port:              raw.Port,
		APIAccessKey:      raw.APIAccessKey,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		slog.Warn("Invalid timezone, using system default", "timezone", cfg.Timezone, "error", err)
	}

	return cfg, nil
}

func (c *Cfg) validate() error {
	if c.DBDriver == "postgres" && c.DBPassword == "" {
		return fmt.Errorf("invalid configuration: --db-password is required for postgres")
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("invalid configuration: --worker-count must be positive, got %d", c.WorkerCount)
	}
	if c.SchedulerInterval < 0 {
		return fmt.Errorf("invalid configuration: --scheduler-interval must not be negative")
	}
	if c.SearchThreshold <= 0 || c.SearchThreshold > 1 {
		return fmt.Errorf("invalid configuration: --search-threshold must be in (0, 1], got %v", c.SearchThreshold)
	}
	if c.PageSize < 1 || c.MaxPageSize < c.PageSize {
		return fmt.Errorf("invalid configuration: need 1 <= --page-size <= --max-page-size, got %d and %d",
			c.PageSize, c.MaxPageSize)
	}
	if c.AutoClean && c.AutoCleanAfter < 1 {
		return fmt.Errorf("invalid configuration: --auto-clean-after must be positive")
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone == "" {
		return nil
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return err
	}
	time.Local = loc
	return nil
}

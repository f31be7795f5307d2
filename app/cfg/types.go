package cfg

import "time"

type Cfg struct {
	// Database configuration
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBPath     string
	DBMaxConns int

	// Ingestion
	SourcesFile       string
	WorkerCount       int
	SchedulerInterval time.Duration
	FetchTimeout      time.Duration
	FetchCooldown     time.Duration
	MaxBodyBytes      int64
	AutoClean         bool
	AutoCleanAfter    int

	// Reads
	SearchThreshold float64
	PageSize        int
	MaxPageSize     int
	CacheTTL        time.Duration
	CacheSize       int
	RedisAddr       string

	// HTTP
	Port         string
	APIAccessKey string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}

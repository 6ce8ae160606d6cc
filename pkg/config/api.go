package config

import "time"

// APIConfig holds runtime configuration for the execution API service.
type APIConfig struct {
	Environment string
	Addr        string

	DatabaseURL   string
	MigrationsDir string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTimeout  time.Duration

	// AdminTokenHash is a bcrypt hash of the master admin token. Admin
	// endpoints are disabled when empty.
	AdminTokenHash string

	MaxModuleBytes int
	MaxInputBytes  int

	// Global ceilings; tier limits are clamped against these.
	ExecutionTimeout time.Duration
	MemoryLimitMB    int
	ExecutionSlots   int

	CredentialCacheTTL time.Duration

	UsageQueueSize     int
	UsageFlushInterval time.Duration
	UsageBatchSize     int

	FallbackSweepInterval time.Duration
	CountDeniedRequests   bool

	// Housekeeping: usage log retention and the cadence of the sweep that
	// enforces it and expires overdue API keys.
	CleanupInterval time.Duration
	UsageRetention  time.Duration
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment: GetString("APP_ENV", "development"),
		Addr:        GetString("API_ADDR", ":8080"),

		DatabaseURL:   GetString("DATABASE_URL", "postgres://wasmgate:wasmgate@db:5432/wasmgate?sslmode=disable"),
		MigrationsDir: GetString("DB_MIGRATIONS_DIR", "./db/migrations"),

		RedisAddr:     GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RedisPassword: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RedisDB:       GetInt("RATE_LIMIT_REDIS_DB", 0),
		RedisTimeout:  time.Duration(GetInt("RATE_LIMIT_REDIS_TIMEOUT_MS", 250)) * time.Millisecond,

		AdminTokenHash: GetString("ADMIN_TOKEN_HASH", ""),

		MaxModuleBytes: GetInt("MAX_WASM_SIZE", 10*1024*1024),
		MaxInputBytes:  GetInt("MAX_INPUT_SIZE", 1024*1024),

		ExecutionTimeout: GetSeconds("EXECUTION_TIMEOUT", 5*time.Second),
		MemoryLimitMB:    GetInt("MEMORY_LIMIT_MB", 128),
		ExecutionSlots:   GetInt("EXECUTION_SLOTS", 32),

		CredentialCacheTTL: GetSeconds("CREDENTIAL_CACHE_TTL", 30*time.Second),

		UsageQueueSize:     GetInt("USAGE_QUEUE_SIZE", 1024),
		UsageFlushInterval: GetSeconds("USAGE_FLUSH_SECONDS", 5*time.Second),
		UsageBatchSize:     GetInt("USAGE_BATCH_SIZE", 128),

		FallbackSweepInterval: GetSeconds("FALLBACK_SWEEP_SECONDS", 300*time.Second),
		CountDeniedRequests:   GetBool("COUNT_DENIED_REQUESTS", true),

		CleanupInterval: time.Duration(GetInt("CLEANUP_INTERVAL_HOURS", 24)) * time.Hour,
		UsageRetention:  time.Duration(GetInt("USAGE_RETENTION_DAYS", 30)) * 24 * time.Hour,
	}
}

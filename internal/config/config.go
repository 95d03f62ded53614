package config

type Config struct {
	Environment string `mapstructure:"environment" yaml:"environment"`
	Host        string `mapstructure:"host" yaml:"host"`
	Port        int    `mapstructure:"port" yaml:"port"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`
	DemoMode    bool   `mapstructure:"demo_mode" yaml:"demo_mode"`

	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	CORS      CORSConfig      `mapstructure:"cors" yaml:"cors"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	ML        MLConfig        `mapstructure:"ml" yaml:"ml"`
	Gemini    GeminiConfig    `mapstructure:"gemini" yaml:"gemini"`
	Email     EmailConfig     `mapstructure:"email" yaml:"email"`
}

// DatabaseConfig points at the external relational store (Postgres wire,
// Supabase-compatible).
type DatabaseConfig struct {
	URL             string `mapstructure:"url" yaml:"url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"` // seconds
}

// AuthConfig points at the external identity provider (GoTrue-compatible
// REST surface). Sessions are validated remotely and cached locally.
type AuthConfig struct {
	URL            string `mapstructure:"url" yaml:"url"`
	APIKey         string `mapstructure:"api_key" yaml:"api_key"`
	Timeout        int    `mapstructure:"timeout" yaml:"timeout"` // milliseconds
	SessionTTL     int    `mapstructure:"session_ttl" yaml:"session_ttl"` // seconds
	MaxAttemptsMin int    `mapstructure:"max_attempts_per_minute" yaml:"max_attempts_per_minute"`
}

// CacheConfig holds the Redis/Valkey connection used for session caching and
// auth rate limiting. A nil/unreachable node degrades to an in-memory cache.
type CacheConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	TTL      int    `mapstructure:"ttl" yaml:"ttl"` // seconds
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers" yaml:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials" yaml:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age" yaml:"max_age"`
}

type TelemetryConfig struct {
	IntervalSeconds int  `mapstructure:"interval_seconds" yaml:"interval_seconds"`
	Enabled         bool `mapstructure:"enabled" yaml:"enabled"`
}

type MLConfig struct {
	AnomalyThreshold float64 `mapstructure:"anomaly_threshold" yaml:"anomaly_threshold"`
	Contamination    float64 `mapstructure:"contamination" yaml:"contamination"`
}

// GeminiConfig configures the external LLM used for incident narratives.
type GeminiConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	Model   string `mapstructure:"model" yaml:"model"`
	Timeout int    `mapstructure:"timeout" yaml:"timeout"` // milliseconds
}

type EmailConfig struct {
	Enabled    bool     `mapstructure:"enabled" yaml:"enabled"`
	Recipients []string `mapstructure:"recipients" yaml:"recipients"`
}

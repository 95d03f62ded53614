package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Load loads configuration with priority order:
// 1. Environment variables
// 2. Configuration file (config.yaml)
// 3. Default values
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/sentinel/")
	v.AddConfigPath("./configs/")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("SENTINEL")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars and defaults
	}

	overrideWithEnvVars(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8000)
	v.SetDefault("log_level", "info")
	v.SetDefault("demo_mode", false)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 1800)

	v.SetDefault("auth.url", "")
	v.SetDefault("auth.api_key", "")
	v.SetDefault("auth.timeout", 10000)
	v.SetDefault("auth.session_ttl", 300)
	v.SetDefault("auth.max_attempts_per_minute", 10)

	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", 300)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type", "Authorization"})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 3600)

	v.SetDefault("telemetry.interval_seconds", 5)
	v.SetDefault("telemetry.enabled", true)

	v.SetDefault("ml.anomaly_threshold", 0.75)
	v.SetDefault("ml.contamination", 0.1)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-pro")
	v.SetDefault("gemini.timeout", 30000)

	v.SetDefault("email.enabled", false)
	v.SetDefault("email.recipients", []string{"soc-team@arc-sentinel.local"})
}

// overrideWithEnvVars honors the legacy flat environment variable names the
// deployment manifests already use.
func overrideWithEnvVars(v *viper.Viper) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			v.Set("port", p)
		}
	}
	if host := os.Getenv("HOST"); host != "" {
		v.Set("host", host)
	}
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		v.Set("environment", env)
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		v.Set("log_level", logLevel)
	}
	if debug := os.Getenv("DEBUG"); debug != "" {
		if d, err := strconv.ParseBool(debug); err == nil && d {
			v.Set("log_level", "debug")
		}
	}
	if demo := os.Getenv("DEMO_MODE"); demo != "" {
		if d, err := strconv.ParseBool(demo); err == nil {
			v.Set("demo_mode", d)
		}
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		v.Set("database.url", dbURL)
	}
	if authURL := os.Getenv("AUTH_URL"); authURL != "" {
		v.Set("auth.url", authURL)
	}
	if authKey := os.Getenv("AUTH_API_KEY"); authKey != "" {
		v.Set("auth.api_key", authKey)
	}
	if geminiKey := os.Getenv("GEMINI_API_KEY"); geminiKey != "" {
		v.Set("gemini.api_key", geminiKey)
	}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		v.Set("cors.allowed_origins", strings.Split(origins, ","))
	}
	if interval := os.Getenv("TELEMETRY_INTERVAL_SECONDS"); interval != "" {
		if i, err := strconv.Atoi(interval); err == nil {
			v.Set("telemetry.interval_seconds", i)
		}
	}
	if threshold := os.Getenv("ML_ANOMALY_THRESHOLD"); threshold != "" {
		if f, err := strconv.ParseFloat(threshold, 64); err == nil {
			v.Set("ml.anomaly_threshold", f)
		}
	}
	if contamination := os.Getenv("ML_CONTAMINATION"); contamination != "" {
		if f, err := strconv.ParseFloat(contamination, 64); err == nil {
			v.Set("ml.contamination", f)
		}
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		v.Set("cache.addr", addr)
	}
}

func validateConfig(config *Config) error {
	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("invalid port: %d", config.Port)
	}
	if config.Telemetry.IntervalSeconds <= 0 {
		return fmt.Errorf("telemetry interval must be positive, got %d", config.Telemetry.IntervalSeconds)
	}
	if config.ML.AnomalyThreshold < 0 || config.ML.AnomalyThreshold > 1 {
		return fmt.Errorf("ml anomaly threshold must be in [0,1], got %f", config.ML.AnomalyThreshold)
	}
	if config.ML.Contamination <= 0 || config.ML.Contamination >= 0.5 {
		return fmt.Errorf("ml contamination must be in (0,0.5), got %f", config.ML.Contamination)
	}
	return nil
}

// Package config loads the router's configuration.
//
// Precedence, low to high: built-in defaults, then an optional YAML
// file, then environment variables. Environment variables are matched
// to struct fields by walking the Config tree with reflection and
// reading each field's `env` tag, prefixed by the loader's configured
// prefix (default ROUTER) and an underscore per nesting level — e.g.
// Config.Database.Host (env:"HOST") becomes ROUTER_DATABASE_HOST.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the router's complete configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server" env:"SERVER"`
	Database       DatabaseConfig       `yaml:"database" env:"DATABASE"`
	Redis          RedisConfig          `yaml:"redis" env:"REDIS"`
	LLM            LLMConfig            `yaml:"llm" env:"LLM"`
	Cache          CacheConfig          `yaml:"cache" env:"CACHE"`
	History        HistoryConfig        `yaml:"history" env:"HISTORY"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit" env:"RATE_LIMIT"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" env:"CB"`
	Router         RouterConfig         `yaml:"router" env:"ROUTER"`
	Log            LogConfig            `yaml:"log" env:"LOG"`
}

// ServerConfig controls the HTTP and metrics listeners.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	CORSAllowedOrigins []string   `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`

	// IPRateLimitRPS and IPRateLimitBurst bound a per-client-IP token
	// bucket applied to every request before it reaches the dispatcher.
	// This is transport hygiene, independent of C8's per-user_id
	// admission control inside the dispatcher itself; zero RPS disables it.
	IPRateLimitRPS   float64 `yaml:"ip_rate_limit_rps" env:"IP_RATE_LIMIT_RPS"`
	IPRateLimitBurst int     `yaml:"ip_rate_limit_burst" env:"IP_RATE_LIMIT_BURST"`
}

// DatabaseConfig is the relational warehouse connection (sales_fact,
// job_runs, audit_log, query_history).
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" env:"DRIVER"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// RedisConfig is the backing store for the plan cache and rate limiter.
type RedisConfig struct {
	URL          string `yaml:"url" env:"URL"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// LLMConfig selects and configures the SQL planner's LLM backend.
// An empty BaseURL/APIKey degrades the SQL tool to raw-SQL-only.
type LLMConfig struct {
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	Model      string        `yaml:"model" env:"MODEL"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// CacheConfig controls the hot plan cache (C6).
type CacheConfig struct {
	TTLSeconds int   `yaml:"ttl_seconds" env:"TTL_SECONDS"`
	MaxBytes   int64 `yaml:"max_bytes" env:"MAX_BYTES"`
}

// HistoryConfig controls the warm plan history (C7).
type HistoryConfig struct {
	RetentionDays int `yaml:"retention_days" env:"RETENTION_DAYS"`
}

// RateLimitConfig controls the per-identifier admission limiter (C8).
type RateLimitConfig struct {
	Enabled       bool `yaml:"enabled" env:"ENABLED"`
	MaxRequests   int  `yaml:"max_requests" env:"MAX"`
	WindowSeconds int  `yaml:"window_seconds" env:"WINDOW"`
}

// CircuitBreakerConfig controls the LLM provider breaker (C5).
type CircuitBreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`
	WindowSeconds    int `yaml:"window_seconds" env:"WINDOW"`
	RecoverySeconds  int `yaml:"recovery_seconds" env:"RECOVERY"`
}

// RouterConfig controls dispatcher-wide behavior.
type RouterConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold" env:"CONFIDENCE_THRESHOLD"`
}

// LogConfig controls zap logger construction.
type LogConfig struct {
	Level        string `yaml:"level" env:"LEVEL"`
	Format       string `yaml:"format" env:"FORMAT"`
	EnableCaller bool   `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// Loader is a builder for loading Config from defaults, a YAML file,
// and environment variables, in that order of increasing precedence.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a Loader with the default env prefix ROUTER.
func NewLoader() *Loader {
	return &Loader{envPrefix: "ROUTER"}
}

// WithConfigPath sets the YAML config file path. A missing file is not
// an error; defaults are used instead.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator registers a validation function run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load builds a Config from defaults, the YAML file (if any), and
// environment variables, then runs all registered validators.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("load config env: %w", err)
	}

	applySpecEnvAliases(cfg)

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// applySpecEnvAliases applies the exact environment variable names
// spec.md §6 documents as the router's external configuration
// contract (DB_HOST, CACHE_TTL_SECONDS, CONFIDENCE_THRESHOLD, ...),
// on top of whatever the generic ROUTER_<GROUP>_<FIELD> walk already
// set. These flat names take final precedence, so an operator who
// only knows the spec's documented knobs never needs the hierarchical
// form underneath.
func applySpecEnvAliases(cfg *Config) {
	if v, ok := os.LookupEnv("DB_HOST"); ok {
		cfg.Database.Host = v
	}
	if v, ok := envInt("DB_PORT"); ok {
		cfg.Database.Port = v
	}
	if v, ok := os.LookupEnv("DB_NAME"); ok {
		cfg.Database.Name = v
	}
	if v, ok := os.LookupEnv("DB_USER"); ok {
		cfg.Database.User = v
	}
	if v, ok := os.LookupEnv("DB_PASSWORD"); ok {
		cfg.Database.Password = v
	}
	if v, ok := os.LookupEnv("REDIS_URL"); ok {
		cfg.Redis.URL = v
	}
	// Provider selection: a generic OpenAI-compatible endpoint URL + API
	// key. LLM_* is the router's own naming; OPENAI_* is accepted as the
	// common convention for an OpenAI-compatible backend.
	if v, ok := firstEnv("LLM_BASE_URL", "OPENAI_BASE_URL"); ok {
		cfg.LLM.BaseURL = v
	}
	if v, ok := firstEnv("LLM_API_KEY", "OPENAI_API_KEY"); ok {
		cfg.LLM.APIKey = v
	}
	if v, ok := envInt("CACHE_TTL_SECONDS"); ok {
		cfg.Cache.TTLSeconds = v
	}
	if v, ok := envInt64("CACHE_MAX_BYTES"); ok {
		cfg.Cache.MaxBytes = v
	}
	if v, ok := envInt("QUERY_RETENTION_DAYS"); ok {
		cfg.History.RetentionDays = v
	}
	if v, ok := envInt("RATE_LIMIT_MAX"); ok {
		cfg.RateLimit.MaxRequests = v
	}
	if v, ok := envInt("RATE_LIMIT_WINDOW"); ok {
		cfg.RateLimit.WindowSeconds = v
	}
	if v, ok := envInt("CB_FAILURE_THRESHOLD"); ok {
		cfg.CircuitBreaker.FailureThreshold = v
	}
	if v, ok := envInt("CB_WINDOW"); ok {
		cfg.CircuitBreaker.WindowSeconds = v
	}
	if v, ok := envInt("CB_RECOVERY"); ok {
		cfg.CircuitBreaker.RecoverySeconds = v
	}
	if v, ok := envFloat("CONFIDENCE_THRESHOLD"); ok {
		cfg.Router.ConfidenceThreshold = v
	}
}

func firstEnv(names ...string) (string, bool) {
	for _, name := range names {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func envInt(name string) (int, bool) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envInt64(name string) (int64, bool) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(name string) (float64, bool) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// MustLoad loads the config from path, panicking on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate checks the loaded Config's invariants.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "server.http_port must be a valid port")
	}
	if c.Router.ConfidenceThreshold < 0 || c.Router.ConfidenceThreshold > 1 {
		errs = append(errs, "router.confidence_threshold must be in [0,1]")
	}
	if c.CircuitBreaker.FailureThreshold <= 0 {
		errs = append(errs, "circuit_breaker.failure_threshold must be positive")
	}
	if c.RateLimit.MaxRequests <= 0 {
		errs = append(errs, "rate_limit.max_requests must be positive")
	}
	if c.Cache.MaxBytes <= 0 {
		errs = append(errs, "cache.max_bytes must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN returns the GORM dialector connection string for the configured driver.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

package config

import (
	"errors"
	"fmt"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the PlanTech server.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Uploads    UploadsConfig    `mapstructure:"uploads"`
	Model      ModelConfig      `mapstructure:"model"`
	Prediction PredictionConfig `mapstructure:"prediction"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	Env         string   `mapstructure:"env"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// Dialect returns "postgres" or "sqlite" based on the URL scheme.
func (c DatabaseConfig) Dialect() string {
	u, err := url.Parse(c.URL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "postgres", "postgresql":
		return "postgres"
	case "sqlite", "sqlite3":
		return "sqlite"
	}
	return ""
}

// SQLitePath returns the file path portion of a sqlite:// URL.
func (c DatabaseConfig) SQLitePath() string {
	p := c.URL
	for _, prefix := range []string{"sqlite3://", "sqlite://"} {
		if strings.HasPrefix(p, prefix) {
			p = strings.TrimPrefix(p, prefix)
			break
		}
	}
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	return p
}

// RedisConfig is optional; an empty URL selects the in-process cache.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type UploadsConfig struct {
	Dir       string `mapstructure:"dir"`
	MaxBytes  int64  `mapstructure:"max_bytes"`
	MaxPixels int    `mapstructure:"max_pixels"`
}

type ModelConfig struct {
	Backend        string   `mapstructure:"backend"`
	Path           string   `mapstructure:"path"`
	MetadataPath   string   `mapstructure:"metadata_path"`
	RuntimeLibrary string   `mapstructure:"runtime_library"`
	Classes        []string `mapstructure:"classes"`
	Threads        int      `mapstructure:"threads"`
	InputScale     string   `mapstructure:"input_scale"`
}

// ScaleFactor converts InputScale into the multiplier applied to 8-bit channels.
func (c ModelConfig) ScaleFactor() float32 {
	if c.InputScale == "unit" {
		return 1.0 / 255.0
	}
	return 1
}

type PredictionConfig struct {
	HistoryLimit        int  `mapstructure:"history_limit"`
	AdvisoryPersistence bool `mapstructure:"advisory_persistence"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}

// DefaultClasses is the label set of the bundled plant disease model, in output order.
var DefaultClasses = []string{"Healthy", "Powdery", "Rust", "Slug", "Spot"}

var validBackends = map[string]bool{
	"tflite": true,
	"onnx":   true,
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"server.port":                     "PLANTECH_PORT",
	"server.env":                      "PLANTECH_ENV",
	"server.cors_origins":             "CORS_ALLOWED_ORIGINS",
	"database.url":                    "DATABASE_URL",
	"database.max_open_conns":         "DATABASE_MAX_OPEN_CONNS",
	"database.max_idle_conns":         "DATABASE_MAX_IDLE_CONNS",
	"database.conn_max_lifetime":      "DATABASE_CONN_MAX_LIFETIME",
	"redis.url":                       "REDIS_URL",
	"uploads.dir":                     "UPLOAD_DIR",
	"uploads.max_bytes":               "UPLOAD_MAX_BYTES",
	"uploads.max_pixels":              "UPLOAD_MAX_PIXELS",
	"model.backend":                   "MODEL_BACKEND",
	"model.path":                      "MODEL_PATH",
	"model.metadata_path":             "MODEL_METADATA_PATH",
	"model.runtime_library":           "ONNXRUNTIME_LIB",
	"model.classes":                   "MODEL_CLASSES",
	"model.threads":                   "MODEL_THREADS",
	"model.input_scale":               "MODEL_INPUT_SCALE",
	"prediction.history_limit":        "HISTORY_LIMIT",
	"prediction.advisory_persistence": "PERSISTENCE_ADVISORY",
	"rate_limit.requests_per_minute":  "RATE_LIMIT_PER_MINUTE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5001)
	v.SetDefault("server.env", "development")
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("database.url", "sqlite://predictions.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("redis.url", "")
	v.SetDefault("uploads.dir", "uploads")
	v.SetDefault("uploads.max_bytes", int64(10<<20))
	v.SetDefault("uploads.max_pixels", 89478485)
	v.SetDefault("model.backend", "tflite")
	v.SetDefault("model.path", "plant_model_5Classes.tflite")
	v.SetDefault("model.metadata_path", "")
	v.SetDefault("model.runtime_library", "")
	v.SetDefault("model.classes", DefaultClasses)
	v.SetDefault("model.threads", runtime.NumCPU())
	v.SetDefault("model.input_scale", "raw")
	v.SetDefault("prediction.history_limit", 50)
	v.SetDefault("prediction.advisory_persistence", true)
	v.SetDefault("rate_limit.requests_per_minute", 60)
}

// Load reads configuration from defaults, an optional YAML file, a local .env file
// and environment variables (highest precedence), and returns a validated Config.
// Returns an error with a descriptive message if any value is missing or invalid.
func Load(path string) (*Config, error) {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Server.CORSOrigins = trimList(cfg.Server.CORSOrigins)
	cfg.Model.Classes = trimList(cfg.Model.Classes)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PLANTECH_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.Database.Dialect() == "" {
		return fmt.Errorf("DATABASE_URL must start with postgres://, postgresql:// or sqlite://, got %q", c.Database.URL)
	}
	if c.Database.Dialect() == "sqlite" && c.Database.SQLitePath() == "" {
		return errors.New("DATABASE_URL must name a sqlite file")
	}

	if c.Redis.URL != "" && !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	if c.Uploads.Dir == "" {
		return errors.New("UPLOAD_DIR is required")
	}
	if c.Uploads.MaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive, got %d", c.Uploads.MaxBytes)
	}
	if c.Uploads.MaxPixels <= 0 {
		return fmt.Errorf("UPLOAD_MAX_PIXELS must be positive, got %d", c.Uploads.MaxPixels)
	}

	if !validBackends[c.Model.Backend] {
		return fmt.Errorf("MODEL_BACKEND must be one of tflite, onnx; got %q", c.Model.Backend)
	}
	if c.Model.Path == "" {
		return errors.New("MODEL_PATH is required")
	}
	if c.Model.Backend == "onnx" && c.Model.MetadataPath == "" {
		return errors.New("MODEL_METADATA_PATH is required when MODEL_BACKEND is onnx")
	}
	if len(c.Model.Classes) == 0 {
		return errors.New("MODEL_CLASSES must name at least one class")
	}
	seen := make(map[string]bool, len(c.Model.Classes))
	for _, name := range c.Model.Classes {
		if seen[name] {
			return fmt.Errorf("MODEL_CLASSES contains duplicate class %q", name)
		}
		seen[name] = true
	}
	if c.Model.InputScale != "raw" && c.Model.InputScale != "unit" {
		return fmt.Errorf("MODEL_INPUT_SCALE must be raw or unit, got %q", c.Model.InputScale)
	}
	if c.Model.Threads <= 0 {
		c.Model.Threads = 1
	}

	if c.Prediction.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.Prediction.HistoryLimit)
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative, got %d", c.RateLimit.RequestsPerMinute)
	}

	return nil
}

// trimList drops blank entries and surrounding whitespace from list values that
// arrive as comma-separated environment variables.
func trimList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

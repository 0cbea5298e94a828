package infra

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendFile     = "file"

	RelayNone = "none"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"development"`
	Port   string `env:"PORT" envDefault:"8080"`

	PresetBackend    string `env:"PRESET_BACKEND" envDefault:"file"`
	PresetCollection string `env:"PRESET_COLLECTION" envDefault:"pixshop_user_presets"`
	PresetFileDir    string `env:"PRESET_FILE_DIR" envDefault:"./data"`
	EventRelay       string `env:"EVENT_RELAY"`

	DatabaseURL    string `env:"DATABASE_URL"`
	DBMaxConns     int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"true"`
	RedisURL       string `env:"REDIS_URL"`

	GeminiAPIKey         string        `env:"GEMINI_API_KEY"`
	GeminiBaseURL        string        `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	GeminiImageModel     string        `env:"GEMINI_IMAGE_MODEL" envDefault:"gemini-3-pro-image-preview"`
	GeminiFastImageModel string        `env:"GEMINI_FAST_IMAGE_MODEL" envDefault:"gemini-2.5-flash-image"`
	GeminiTextModel      string        `env:"GEMINI_TEXT_MODEL" envDefault:"gemini-3-pro-preview"`
	GeminiFastTextModel  string        `env:"GEMINI_FAST_TEXT_MODEL" envDefault:"gemini-3-flash-preview"`
	GeminiRPS            float64       `env:"GEMINI_RPS" envDefault:"2"`
	GeminiBurst          int           `env:"GEMINI_BURST" envDefault:"4"`
	GeminiTimeout        time.Duration `env:"GEMINI_TIMEOUT" envDefault:"90s"`
	CredentialsCacheTTL  time.Duration `env:"CREDENTIALS_CACHE_TTL" envDefault:"30s"`

	PreviewDebounce      time.Duration `env:"PREVIEW_DEBOUNCE" envDefault:"750ms"`
	PreviewTouchDebounce time.Duration `env:"PREVIEW_TOUCH_DEBOUNCE" envDefault:"1000ms"`
	SubjectCacheSize     int           `env:"SUBJECT_CACHE_SIZE" envDefault:"128"`
	OutputDir            string        `env:"OUTPUT_DIR"`

	HTTPReadTimeout    time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout   time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"120s"`
	HTTPIdleTimeout    time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	RateLimitPerMin    int           `env:"RATE_LIMIT_PER_MINUTE" envDefault:"30"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.PresetBackend = strings.ToLower(strings.TrimSpace(cfg.PresetBackend))
	cfg.EventRelay = strings.ToLower(strings.TrimSpace(cfg.EventRelay))
	if cfg.EventRelay == "" {
		cfg.EventRelay = defaultRelay(cfg.PresetBackend)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.PresetBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres preset backend")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis preset backend")
		}
	case BackendFile:
		if strings.TrimSpace(c.PresetFileDir) == "" {
			return fmt.Errorf("PRESET_FILE_DIR is required for the file preset backend")
		}
	default:
		return fmt.Errorf("unsupported PRESET_BACKEND %q", c.PresetBackend)
	}

	switch c.EventRelay {
	case RelayNone:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres event relay")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis event relay")
		}
	default:
		return fmt.Errorf("unsupported EVENT_RELAY %q", c.EventRelay)
	}

	if strings.TrimSpace(c.PresetCollection) == "" {
		return fmt.Errorf("PRESET_COLLECTION must not be empty")
	}
	if c.PreviewDebounce <= 0 || c.PreviewTouchDebounce <= 0 {
		return fmt.Errorf("preview debounce durations must be positive")
	}
	return nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func defaultRelay(backend string) string {
	switch backend {
	case BackendPostgres, BackendRedis:
		return backend
	default:
		return RelayNone
	}
}

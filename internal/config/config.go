package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Server holds the reference quiz service configuration.
type Server struct {
	ServerPort  string `validate:"required,numeric"`
	GinMode     string `validate:"oneof=debug release test"`
	LogLevel    string `validate:"required"`
	LogFormat   string `validate:"oneof=pretty json"`
	DatabaseURL string `validate:"omitempty,url"`
	MaxDBConns  int32  `validate:"min=1"`
	// RedisURL empty keeps attempts in memory.
	RedisURL      string        `validate:"omitempty,url"`
	JWTSecret     string        `validate:"required,min=16"`
	JWTExpiry     time.Duration `validate:"min=1000000000"`
	RefreshExpiry time.Duration `validate:"gtfield=JWTExpiry"`
	BcryptCost    int           `validate:"min=4,max=31"`
	// CatalogFile is a JSON file with courses and students; empty uses the demo catalog.
	CatalogFile       string
	TimerFeedInterval time.Duration `validate:"min=100000000"`
	// AllowedOrigins controls HTTP CORS and WebSocket origin validation.
	// Empty slice means all origins are permitted (dev default).
	AllowedOrigins []string
}

// Client holds the attempt client configuration.
type Client struct {
	BaseURL   string `validate:"required,url"`
	NISN      string
	LogLevel  string `validate:"required"`
	LogFormat string `validate:"oneof=pretty json"`

	ReadTimeout   time.Duration `validate:"min=0"`
	WriteTimeout  time.Duration `validate:"min=0"`
	SubmitTimeout time.Duration `validate:"min=0"`

	TickInterval      time.Duration `validate:"min=0"`
	ReconcileInterval time.Duration `validate:"min=0"`
	PushInterval      time.Duration `validate:"min=0"`
	SaveDebounce      time.Duration `validate:"min=0"`
	JitterThreshold   time.Duration `validate:"min=0"`
	FallbackDuration  time.Duration `validate:"min=0"`
	DefaultPassScore  float64       `validate:"min=0,max=1000"`
	NotificationTTL   time.Duration `validate:"min=0"`
	// TimerFeed enables the websocket timer feed on top of polling.
	TimerFeed bool
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadServer reads the service configuration from environment variables with
// sensible defaults. It loads .env file if present but does not fail if missing.
func LoadServer() (*Server, error) {
	_ = godotenv.Load()

	cfg := &Server{
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		GinMode:           getEnv("GIN_MODE", "debug"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "pretty"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		MaxDBConns:        int32(getEnvInt("MAX_DB_CONNS", 8)),
		RedisURL:          getEnv("REDIS_URL", ""),
		JWTSecret:         getEnv("JWT_SECRET", "change-this-to-a-secure-random-string"),
		JWTExpiry:         time.Duration(getEnvInt("JWT_EXPIRY_MINUTES", 60)) * time.Minute,
		RefreshExpiry:     time.Duration(getEnvInt("REFRESH_EXPIRY_HOURS", 24)) * time.Hour,
		BcryptCost:        getEnvInt("BCRYPT_COST", 6),
		CatalogFile:       getEnv("CATALOG_FILE", ""),
		TimerFeedInterval: getEnvDuration("TIMER_FEED_INTERVAL", 5*time.Second),
		AllowedOrigins:    parseOrigins(getEnv("ALLOWED_ORIGINS", "")),
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	return cfg, nil
}

// LoadClient reads the attempt client configuration. Zero durations fall
// back to the controller defaults.
func LoadClient() (*Client, error) {
	_ = godotenv.Load()

	cfg := &Client{
		BaseURL:           getEnv("BASE_URL", "http://localhost:8080"),
		NISN:              getEnv("NISN", ""),
		LogLevel:          getEnv("LOG_LEVEL", "warn"),
		LogFormat:         getEnv("LOG_FORMAT", "pretty"),
		ReadTimeout:       getEnvDuration("READ_TIMEOUT", 8*time.Second),
		WriteTimeout:      getEnvDuration("WRITE_TIMEOUT", 10*time.Second),
		SubmitTimeout:     getEnvDuration("SUBMIT_TIMEOUT", 20*time.Second),
		TickInterval:      getEnvDuration("TICK_INTERVAL", time.Second),
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", 15*time.Second),
		PushInterval:      getEnvDuration("PUSH_INTERVAL", 10*time.Second),
		SaveDebounce:      getEnvDuration("SAVE_DEBOUNCE", 650*time.Millisecond),
		JitterThreshold:   getEnvDuration("JITTER_THRESHOLD", 2*time.Second),
		FallbackDuration:  getEnvDuration("FALLBACK_DURATION", 30*time.Minute),
		DefaultPassScore:  getEnvFloat("DEFAULT_PASS_SCORE", 60),
		NotificationTTL:   getEnvDuration("NOTIFICATION_TTL", 5*time.Second),
		TimerFeed:         getEnvBool("TIMER_FEED", false),
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// getEnvDuration accepts Go durations ("650ms") or plain seconds ("15").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

// parseOrigins splits a comma-separated origins string into a trimmed slice.
// Returns nil (allow-all) if the input is empty.
func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Env      string `validate:"required,oneof=dev test staging prod"`
	Port     int    `validate:"min=0,max=65535"`
	LogLevel string `validate:"omitempty,oneof=debug info warn error"`

	// Store selects the persistence gateway: postgres, or memory for local runs.
	Store       string `validate:"oneof=postgres memory"`
	DBURL       string `validate:"required_if=Store postgres"`
	DBMaxConns  int32  `validate:"min=1"`
	AutoMigrate bool

	JWTSecret string        `validate:"required,min=64"`
	TokenTTL  time.Duration `validate:"gt=0"`

	DefaultRole    string   `validate:"required"`
	SeedRoles      []string `validate:"dive,required"`
	PasswordScheme string   `validate:"oneof=hmac-sha512 argon2id"`

	AdminEmail    string `validate:"omitempty,email"`
	AdminPassword string
	AdminUsername string

	RedisAddr       string
	RedisPassword   string
	RedisDB         int `validate:"min=0"`
	ProfileCacheTTL time.Duration
	RoleCacheTTL    time.Duration

	OTLPEndpoint    string
	ServiceName     string  `validate:"required"`
	TraceSampleRate float64 `validate:"min=0,max=1"`

	CORSAllowedOrigins []string
	MaxBodyBytes       int64 `validate:"min=1"`
}

// Load reads configuration from the environment. A .env file in the working directory,
// when present, is loaded first without overriding variables that are already set.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		Env:      getEnv("APP_ENV", "dev"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", ""),

		Store:       getEnv("STORE", "postgres"),
		DBURL:       getEnv("DATABASE_URL", buildDBURL()),
		DBMaxConns:  int32(getEnvInt("DB_MAX_CONNS", 5)),
		AutoMigrate: getEnvBool("AUTO_MIGRATE", false),

		JWTSecret: getEnv("JWT_SECRET", ""),
		TokenTTL:  getEnvDuration("TOKEN_TTL", 7*24*time.Hour),

		DefaultRole:    getEnv("DEFAULT_ROLE", "User"),
		SeedRoles:      getEnvList("SEED_ROLES", []string{"User", "Admin"}),
		PasswordScheme: getEnv("PASSWORD_SCHEME", "hmac-sha512"),

		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),

		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		ProfileCacheTTL: getEnvDuration("PROFILE_CACHE_TTL", 30*time.Second),
		RoleCacheTTL:    getEnvDuration("ROLE_CACHE_TTL", 5*time.Minute),

		OTLPEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:     getEnv("OTEL_SERVICE_NAME", "accounthub"),
		TraceSampleRate: getEnvFloat("OTEL_TRACE_SAMPLE_RATE", 1),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", nil),
		MaxBodyBytes:       int64(getEnvInt("MAX_BODY_BYTES", 1<<20)),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" ("+fe.Tag()+")")
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.AdminEmail != "" && c.AdminPassword == "" {
		return errors.New("invalid config: ADMIN_PASSWORD is required when ADMIN_EMAIL is set")
	}

	return nil
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "accounthub")
	pass := getEnv("DB_PASSWORD", "accounthub")
	name := getEnv("DB_NAME", "accounthub")
	ssl := getEnv("DB_SSLMODE", "disable")

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, pass),
		Host:     host + ":" + port,
		Path:     "/" + name,
		RawQuery: "sslmode=" + url.QueryEscape(ssl),
	}
	return u.String()
}

// WithTimeout bounds work started from a request. A nil parent means background.
func WithTimeout(parent context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fallback
		}
		return f
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return b
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fallback
		}
		return d
	}
	return fallback
}

// comma separated, blanks dropped
func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	out := make([]string, 0)
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendNone     = "none"
)

type Config struct {
	Env         string
	DataBackend string
	Server      ServerConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	Mail        MailConfig
	Notify      NotifyConfig
	Admin       AdminConfig
	Pricing     PricingConfig
	Payment     PaymentConfig
	CORS        CORSConfig
	RateLimit   RateLimitConfig
	Cache       CacheConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

type PostgresConfig struct {
	// URL, when set, wins over the individual fields.
	URL         string
	User        string
	Password    string
	Name        string
	Host        string
	Port        int
	SSLMode     string
	MaxConns    int32
	AutoMigrate bool
}

// DSN returns the connection string, or "" when no credentials are configured.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	if p.User == "" || p.Name == "" {
		return ""
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     p.Name,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}

type RedisConfig struct {
	// URL, when set, wins over Addr, Password and DB. Both empty disables
	// every Redis-backed feature.
	URL      string
	Addr     string
	Password string
	DB       int
}

type MailConfig struct {
	Provider           string
	FromAddress        string
	FromName           string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
}

type NotifyConfig struct {
	OwnerEmail string
	Workers    int
	QueueSize  int
	Timeout    time.Duration
	Attempts   int
}

type AdminConfig struct {
	Secret       string
	CookieSecure bool
}

type PricingConfig struct {
	CollectiveHourlyRateCents int64
}

type PaymentConfig struct {
	AccountHolder   string
	IBAN            string
	ReferencePrefix string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type RateLimitConfig struct {
	// Requests bounds registrations per client and window.
	Requests        int
	ContactRequests int
	Window          time.Duration
}

type CacheConfig struct {
	CatalogTTL     time.Duration
	IdempotencyTTL time.Duration
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	var (
		cfg Config
		err error
	)

	cfg.Env = getEnv("GO_ENV", "development")

	cfg.DataBackend = strings.ToLower(getEnv("DATA_BACKEND", BackendPostgres))
	switch cfg.DataBackend {
	case BackendPostgres, BackendMemory, BackendNone:
	default:
		return nil, fmt.Errorf("%s: invalid DATA_BACKEND %q", op, cfg.DataBackend)
	}

	cfg.Server.Host = getEnv("SERVER_HOST", "localhost")
	if cfg.Server.Port, err = getInt("SERVER_PORT", 8080); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Server.ShutdownTimeout, err = getDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cfg.Postgres.URL = os.Getenv("DATABASE_URL")
	cfg.Postgres.Host = getEnv("POSTGRES_HOST", "localhost")
	if cfg.Postgres.Port, err = getInt("POSTGRES_PORT", 5432); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	cfg.Postgres.User = os.Getenv("POSTGRES_USER")
	cfg.Postgres.Password = os.Getenv("POSTGRES_PASSWORD")
	cfg.Postgres.Name = os.Getenv("POSTGRES_DB")
	cfg.Postgres.SSLMode = getEnv("POSTGRES_SSLMODE", "disable")
	maxConns, err := getInt("POSTGRES_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	cfg.Postgres.MaxConns = int32(maxConns)
	if cfg.Postgres.AutoMigrate, err = getBool("POSTGRES_AUTO_MIGRATE", false); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cfg.Redis.URL = os.Getenv("REDIS_URL")
	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if cfg.Redis.DB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cfg.Mail.Provider = strings.ToLower(getEnv("MAIL_PROVIDER", "noop"))
	cfg.Mail.FromAddress = os.Getenv("MAIL_FROM_ADDRESS")
	cfg.Mail.FromName = getEnv("MAIL_FROM_NAME", "Studio")
	cfg.Mail.AWSRegion = getEnv("AWS_REGION", "eu-west-1")
	cfg.Mail.AWSAccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	cfg.Mail.AWSSecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	if cfg.Mail.Provider == "ses" && cfg.Mail.FromAddress == "" {
		return nil, fmt.Errorf("%s: missing MAIL_FROM_ADDRESS", op)
	}

	cfg.Notify.OwnerEmail = os.Getenv("OWNER_EMAIL")
	if cfg.Notify.Workers, err = getInt("NOTIFY_WORKERS", 2); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Notify.QueueSize, err = getInt("NOTIFY_QUEUE_SIZE", 256); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Notify.Timeout, err = getDuration("NOTIFY_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Notify.Attempts, err = getInt("NOTIFY_ATTEMPTS", 3); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cfg.Admin.Secret = os.Getenv("ADMIN_SECRET")
	if cfg.Admin.CookieSecure, err = getBool("ADMIN_COOKIE_SECURE", cfg.Env == "production"); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rate, err := getInt("COLLECTIVE_HOURLY_RATE_CENTS", 1500)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	cfg.Pricing.CollectiveHourlyRateCents = int64(rate)

	cfg.Payment.AccountHolder = os.Getenv("PAYMENT_ACCOUNT_HOLDER")
	cfg.Payment.IBAN = os.Getenv("PAYMENT_IBAN")
	cfg.Payment.ReferencePrefix = getEnv("PAYMENT_REFERENCE_PREFIX", "REG-")

	cfg.CORS.AllowedOrigins = splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))

	if cfg.RateLimit.Requests, err = getInt("RATE_LIMIT_REQUESTS", 10); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.RateLimit.ContactRequests, err = getInt("CONTACT_RATE_LIMIT_REQUESTS", 5); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.RateLimit.Window, err = getDuration("RATE_LIMIT_WINDOW", time.Minute); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.Cache.CatalogTTL, err = getDuration("CATALOG_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Cache.IdempotencyTTL, err = getDuration("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cfg, nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getBool(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

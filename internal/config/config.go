package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultSecretKey is accepted outside production only.
const DefaultSecretKey = "dev-insecure-change-me"

type Config struct {
	Env       string
	Port      int
	BaseURL   string
	LogFormat string
	LogLevel  string

	StoreDriver string
	DatabaseURL string
	SQLitePath  string
	MongoURI    string
	MongoDB     string

	SecretKey  string
	AdminToken string

	LoginTokenTTL      time.Duration
	SessionTTL         time.Duration
	TokenRetentionDays int
	SweepIntervalHours int

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	SMTPStartTLS bool

	DeliveryMaxAttempts int
	DeliveryBackoff     time.Duration

	BlobDriver     string
	BlobDir        string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3User         string
	S3Password     string
	MaxUploadBytes int64
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv("SECUREFILES_" + key))
}

func envString(key, def string) string {
	if v := env(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def, min int) int {
	if v := env(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= min {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := env(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := env(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Load reads SECUREFILES_* environment variables. Invalid values fall back
// to defaults; call Validate for cross-field checks.
func Load() Config {
	cfg := Config{
		Env:       envString("ENV", "development"),
		Port:      8080,
		BaseURL:   envString("BASE_URL", "http://localhost:8080"),
		LogFormat: envString("LOG_FORMAT", "text"),
		LogLevel:  envString("LOG_LEVEL", "info"),

		StoreDriver: strings.ToLower(envString("STORE", "memory")),
		DatabaseURL: env("DATABASE_URL"),
		SQLitePath:  envString("SQLITE_PATH", "securefiles.db"),
		MongoURI:    env("MONGO_URI"),
		MongoDB:     envString("MONGO_DB", "securefiles"),

		SecretKey:  envString("SECRET_KEY", DefaultSecretKey),
		AdminToken: env("ADMIN_TOKEN"),

		LoginTokenTTL:      envDuration("LOGIN_TOKEN_TTL", time.Hour),
		SessionTTL:         envDuration("SESSION_TTL", 24*time.Hour),
		TokenRetentionDays: envInt("TOKEN_RETENTION_DAYS", 7, 1),
		SweepIntervalHours: envInt("SWEEP_INTERVAL_HOURS", 24, 1),

		SMTPHost:     env("SMTP_HOST"),
		SMTPPort:     envInt("SMTP_PORT", 587, 1),
		SMTPUser:     env("SMTP_USER"),
		SMTPPassword: os.Getenv("SECUREFILES_SMTP_PASSWORD"),
		SMTPFrom:     envString("SMTP_FROM", "noreply@localhost"),
		SMTPStartTLS: envBool("SMTP_STARTTLS", false),

		DeliveryMaxAttempts: envInt("DELIVERY_MAX_ATTEMPTS", 3, 1),
		DeliveryBackoff:     envDuration("DELIVERY_BACKOFF", 500*time.Millisecond),

		BlobDriver:     strings.ToLower(envString("BLOB", "local")),
		BlobDir:        envString("BLOB_DIR", "data/blobs"),
		S3Bucket:       env("S3_BUCKET"),
		S3Region:       envString("S3_REGION", "us-east-1"),
		S3Endpoint:     env("S3_ENDPOINT"),
		S3User:         env("S3_USER"),
		S3Password:     os.Getenv("SECUREFILES_S3_PASSWORD"),
		MaxUploadBytes: int64(envInt("MAX_UPLOAD_MB", 50, 1)) << 20,
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if p := envInt("PORT", 0, 1); p > 0 && p < 65536 {
		cfg.Port = p
	}
	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func (c Config) Validate() error {
	var errs []error

	if c.IsProduction() && (c.SecretKey == "" || c.SecretKey == DefaultSecretKey) {
		errs = append(errs, errors.New("SECUREFILES_SECRET_KEY must be set in production"))
	}
	if c.IsProduction() && c.SMTPHost == "" {
		errs = append(errs, errors.New("SECUREFILES_SMTP_HOST must be set in production"))
	}

	switch c.StoreDriver {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("postgres store needs SECUREFILES_DATABASE_URL"))
		}
	case "sqlite":
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite store needs SECUREFILES_SQLITE_PATH"))
		}
	case "mongo":
		if c.MongoURI == "" {
			errs = append(errs, errors.New("mongo store needs SECUREFILES_MONGO_URI"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.StoreDriver))
	}

	switch c.BlobDriver {
	case "local":
	case "s3":
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("s3 blob store needs SECUREFILES_S3_BUCKET"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob store %q", c.BlobDriver))
	}

	return errors.Join(errs...)
}

func (c Config) ListenAddr() string {
	return ":" + strconv.Itoa(c.Port)
}

func (c Config) TokenRetention() time.Duration {
	return time.Duration(c.TokenRetentionDays) * 24 * time.Hour
}

func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalHours) * time.Hour
}

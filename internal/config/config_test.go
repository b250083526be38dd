package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cfg := Load()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, time.Hour, cfg.LoginTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.TokenRetention())
	assert.Equal(t, 24*time.Hour, cfg.SweepInterval())
	assert.Equal(t, 3, cfg.DeliveryMaxAttempts)
	assert.Equal(t, ":8080", cfg.ListenAddr())
	assert.Equal(t, int64(50<<20), cfg.MaxUploadBytes)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SECUREFILES_PORT", "9090")
	t.Setenv("SECUREFILES_STORE", "Postgres")
	t.Setenv("SECUREFILES_DATABASE_URL", "postgres://x")
	t.Setenv("SECUREFILES_TOKEN_RETENTION_DAYS", "3")
	t.Setenv("SECUREFILES_LOGIN_TOKEN_TTL", "15m")
	t.Setenv("SECUREFILES_SMTP_STARTTLS", "true")

	cfg := Load()
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, "postgres://x", cfg.DatabaseURL)
	assert.Equal(t, 3*24*time.Hour, cfg.TokenRetention())
	assert.Equal(t, 15*time.Minute, cfg.LoginTokenTTL)
	assert.True(t, cfg.SMTPStartTLS)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SECUREFILES_PORT", "99999")
	t.Setenv("SECUREFILES_TOKEN_RETENTION_DAYS", "-1")
	t.Setenv("SECUREFILES_LOGIN_TOKEN_TTL", "soon")

	cfg := Load()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 7, cfg.TokenRetentionDays)
	assert.Equal(t, time.Hour, cfg.LoginTokenTTL)
}

func TestValidate(t *testing.T) {
	base := Load()

	prod := base
	prod.Env = "production"
	prod.SMTPHost = "smtp.example.com"
	assert.ErrorContains(t, prod.Validate(), "SECRET_KEY")
	prod.SecretKey = "a-real-secret"
	assert.NoError(t, prod.Validate())

	pg := base
	pg.StoreDriver = "postgres"
	pg.DatabaseURL = ""
	assert.Error(t, pg.Validate())

	unknown := base
	unknown.StoreDriver = "redis"
	assert.ErrorContains(t, unknown.Validate(), "redis")

	s3 := base
	s3.BlobDriver = "s3"
	assert.ErrorContains(t, s3.Validate(), "S3_BUCKET")
}

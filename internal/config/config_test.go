package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("PAYMENT_PROVIDER", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "toss", cfg.Payment.Provider)
	assert.Equal(t, "KRW", cfg.Payment.Currency)
	assert.Equal(t, 0.9, cfg.Learning.CompletionRatio)
	assert.Equal(t, 15*time.Minute, cfg.Learning.DownloadURLTTL)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Frontend.AllowedOrigins)
	assert.Equal(t, 5, cfg.Scheduler.MaxEventAttempts)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PAYMENT_PROVIDER", "Stripe")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com,")
	t.Setenv("LESSON_COMPLETION_RATIO", "0.75")
	t.Setenv("SCHEDULER_ENABLED", "FALSE")
	t.Setenv("REVIEW_REPORT_THRESHOLD", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "stripe", cfg.Payment.Provider)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Frontend.AllowedOrigins)
	assert.Equal(t, 0.75, cfg.Learning.CompletionRatio)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 5, cfg.Learning.ReviewReportThreshold)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Environment: "production",
			JWT:         JWTConfig{SecretKey: "real-secret"},
			Database:    DatabaseConfig{Password: "pw"},
			Payment:     PaymentConfig{Provider: "toss"},
			Learning:    LearningConfig{CompletionRatio: 0.9},
		}
	}

	assert.NoError(t, base().Validate())

	cfg := base()
	cfg.JWT.SecretKey = "your-secret-key-change-in-production"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Database.Password = ""
	assert.Error(t, cfg.Validate())
	cfg.Database.URL = "postgres://u:p@localhost/db"
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Payment.Provider = "paypal"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Learning.CompletionRatio = 1.5
	assert.Error(t, cfg.Validate())
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "app", Password: "secret", Database: "classroom", SSLMode: "disable"}
	dsn, err := d.DSN()
	require.NoError(t, err)
	assert.Equal(t, "host=db port=5432 user=app password=secret dbname=classroom sslmode=disable", dsn)

	d.URL = "postgres://app:secret@db:5432/classroom?sslmode=require"
	dsn, err = d.DSN()
	require.NoError(t, err)
	assert.Equal(t, "dbname='classroom' host='db' password='secret' port='5432' sslmode='require' user='app'", dsn)

	d.URL = "mysql://nope"
	_, err = d.DSN()
	assert.Error(t, err)
}

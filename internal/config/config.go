// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	AWS         AWSConfig
	Payment     PaymentConfig
	Imweb       ImwebConfig
	OAuth       OAuthConfig
	Vimeo       VimeoConfig
	Email       EmailConfig
	I18n        I18nConfig
	Frontend    FrontendConfig
	Learning    LearningConfig
	Scheduler   SchedulerConfig
	Seed        SeedConfig
}

type SeedConfig struct {
	AdminEmail    string
	AdminPassword string
}

type FrontendConfig struct {
	BaseURL        string
	AllowedOrigins []string
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

type DatabaseConfig struct {
	URL          string
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type JWTConfig struct {
	SecretKey       string
	AccessTokenTTL  int // in hours
	RefreshTokenTTL int // in hours
	CookieName      string
	CookieSecure    bool
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	CloudFrontURL   string
	LocalUploadDir  string
}

type PaymentConfig struct {
	Provider             string // toss or stripe
	TossSecretKey        string
	TossClientKey        string
	TossBaseURL          string
	StripeSecretKey      string
	StripePublishableKey string
	Currency             string
	TimeoutSeconds       int
}

type ImwebConfig struct {
	APIKey        string
	APISecret     string
	BaseURL       string
	WebhookSecret string
	WebhookToken  string
}

type OAuthProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	ProfileURL   string
}

type OAuthConfig struct {
	Kakao OAuthProviderConfig
	Naver OAuthProviderConfig
}

type VimeoConfig struct {
	OEmbedURL string
}

type EmailConfig struct {
	SendGridAPIKey string
	SMTPHost       string
	SMTPPort       string
	SMTPUsername   string
	SMTPPassword   string
	FromEmail      string
	FromName       string
}

type I18nConfig struct {
	DefaultLocale string
}

type LearningConfig struct {
	DefaultAccessDays     int
	CompletionRatio       float64
	ReviewReportThreshold int
	DownloadURLTTL        time.Duration
}

type SchedulerConfig struct {
	Enabled          bool
	ExpirySpec       string
	VimeoSyncSpec    string
	WebhookRetrySpec string
	MaxEventAttempts int
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			URL:          getEnv("DATABASE_URL", ""),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "classroom"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "warn"),
		},
		JWT: JWTConfig{
			SecretKey:       getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			AccessTokenTTL:  getEnvAsInt("JWT_ACCESS_TTL", 24),   // 24 hours
			RefreshTokenTTL: getEnvAsInt("JWT_REFRESH_TTL", 720), // 30 days
			CookieName:      getEnv("SESSION_COOKIE_NAME", "classroom_session"),
			CookieSecure:    getEnvAsBool("SESSION_COOKIE_SECURE", false),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "ap-northeast-2"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "classroom-assets"),
			CloudFrontURL:   getEnv("AWS_CLOUDFRONT_URL", ""),
			LocalUploadDir:  getEnv("LOCAL_UPLOAD_DIR", "./uploads"),
		},
		Payment: PaymentConfig{
			Provider:             strings.ToLower(getEnv("PAYMENT_PROVIDER", "toss")),
			TossSecretKey:        getEnv("TOSS_SECRET_KEY", ""),
			TossClientKey:        getEnv("TOSS_CLIENT_KEY", ""),
			TossBaseURL:          getEnv("TOSS_BASE_URL", "https://api.tosspayments.com"),
			StripeSecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
			StripePublishableKey: getEnv("STRIPE_PUBLISHABLE_KEY", ""),
			Currency:             getEnv("PAYMENT_CURRENCY", "KRW"),
			TimeoutSeconds:       getEnvAsInt("PAYMENT_TIMEOUT", 30),
		},
		Imweb: ImwebConfig{
			APIKey:        getEnv("IMWEB_API_KEY", ""),
			APISecret:     getEnv("IMWEB_API_SECRET", ""),
			BaseURL:       getEnv("IMWEB_BASE_URL", "https://api.imweb.me"),
			WebhookSecret: getEnv("IMWEB_WEBHOOK_SECRET", ""),
			WebhookToken:  getEnv("IMWEB_WEBHOOK_TOKEN", ""),
		},
		OAuth: OAuthConfig{
			Kakao: OAuthProviderConfig{
				ClientID:     getEnv("KAKAO_CLIENT_ID", ""),
				ClientSecret: getEnv("KAKAO_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("KAKAO_REDIRECT_URL", ""),
				AuthURL:      getEnv("KAKAO_AUTH_URL", "https://kauth.kakao.com/oauth/authorize"),
				TokenURL:     getEnv("KAKAO_TOKEN_URL", "https://kauth.kakao.com/oauth/token"),
				ProfileURL:   getEnv("KAKAO_PROFILE_URL", "https://kapi.kakao.com/v2/user/me"),
			},
			Naver: OAuthProviderConfig{
				ClientID:     getEnv("NAVER_CLIENT_ID", ""),
				ClientSecret: getEnv("NAVER_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("NAVER_REDIRECT_URL", ""),
				AuthURL:      getEnv("NAVER_AUTH_URL", "https://nid.naver.com/oauth2.0/authorize"),
				TokenURL:     getEnv("NAVER_TOKEN_URL", "https://nid.naver.com/oauth2.0/token"),
				ProfileURL:   getEnv("NAVER_PROFILE_URL", "https://openapi.naver.com/v1/nid/me"),
			},
		},
		Vimeo: VimeoConfig{
			OEmbedURL: getEnv("VIMEO_OEMBED_URL", "https://vimeo.com/api/oembed.json"),
		},
		Email: EmailConfig{
			SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
			SMTPHost:       getEnv("SMTP_HOST", ""),
			SMTPPort:       getEnv("SMTP_PORT", "587"),
			SMTPUsername:   getEnv("SMTP_USERNAME", ""),
			SMTPPassword:   getEnv("SMTP_PASSWORD", ""),
			FromEmail:      getEnv("FROM_EMAIL", "noreply@classroom.local"),
			FromName:       getEnv("FROM_NAME", "Classroom"),
		},
		I18n: I18nConfig{
			DefaultLocale: getEnv("DEFAULT_LOCALE", "ko"),
		},
		Frontend: FrontendConfig{
			BaseURL:        getEnv("FRONTEND_URL", "http://localhost:3000"),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Learning: LearningConfig{
			DefaultAccessDays:     getEnvAsInt("DEFAULT_ACCESS_DAYS", 365),
			CompletionRatio:       getEnvAsFloat("LESSON_COMPLETION_RATIO", 0.9),
			ReviewReportThreshold: getEnvAsInt("REVIEW_REPORT_THRESHOLD", 5),
			DownloadURLTTL:        time.Duration(getEnvAsInt("DOWNLOAD_URL_TTL_MINUTES", 15)) * time.Minute,
		},
		Scheduler: SchedulerConfig{
			Enabled:          getEnvAsBool("SCHEDULER_ENABLED", true),
			ExpirySpec:       getEnv("SCHEDULER_EXPIRY_SPEC", "0 * * * *"),
			VimeoSyncSpec:    getEnv("SCHEDULER_VIMEO_SPEC", "30 4 * * *"),
			WebhookRetrySpec: getEnv("SCHEDULER_WEBHOOK_RETRY_SPEC", "*/10 * * * *"),
			MaxEventAttempts: getEnvAsInt("WEBHOOK_MAX_ATTEMPTS", 5),
		},
		Seed: SeedConfig{
			AdminEmail:    getEnv("ADMIN_EMAIL", ""),
			AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Password == "" && c.Database.URL == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	switch c.Payment.Provider {
	case "toss", "stripe":
	default:
		return fmt.Errorf("unsupported payment provider %q", c.Payment.Provider)
	}

	if c.Learning.CompletionRatio <= 0 || c.Learning.CompletionRatio > 1 {
		return fmt.Errorf("lesson completion ratio must be in (0, 1]")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

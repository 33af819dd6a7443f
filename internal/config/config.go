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
	Redis       RedisConfig
	AWS         AWSConfig
	Payment     PaymentConfig
	Email       EmailConfig
	Oracle      OracleConfig
	Billing     BillingConfig
	Claims      ClaimsConfig
	Frontend    FrontendConfig
}

type FrontendConfig struct {
	BaseURL string
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
	RateLimit    float64 // requests per second per client
	RateBurst    int
}

type DatabaseConfig struct {
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
	SecretKey      string
	AccessTokenTTL int // in hours
	Issuer         string
}

type RedisConfig struct {
	Host         string
	Port         string
	Password     string
	DB           int
	Enabled      bool
	AnalyticsTTL time.Duration
}

func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	CloudFrontURL   string
}

type PaymentConfig struct {
	StripeSecretKey      string
	StripePublishableKey string
	Timeout              time.Duration
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
	SendTimeout  time.Duration
}

type OracleConfig struct {
	Provider  string // openai, claude or stub
	APIKey    string
	Model     string
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // calls per second
	Retries   int
}

type BillingConfig struct {
	DefaultCurrency string
	FallbackPremium float64
}

type ClaimsConfig struct {
	AtRiskLookahead time.Duration
	MaxFileSizeMB   int
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
			RateLimit:    getEnvAsFloat("SERVER_RATE_LIMIT", 10),
			RateBurst:    getEnvAsInt("SERVER_RATE_BURST", 20),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "creatorshield"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "warn"),
		},
		JWT: JWTConfig{
			SecretKey:      getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			AccessTokenTTL: getEnvAsInt("JWT_ACCESS_TTL", 24),
			Issuer:         getEnv("JWT_ISSUER", "creatorshield"),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			Enabled:      getEnvAsBool("REDIS_ENABLED", false),
			AnalyticsTTL: getEnvAsDuration("REDIS_ANALYTICS_TTL", time.Minute),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "ap-south-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "creatorshield-evidence"),
			CloudFrontURL:   getEnv("AWS_CLOUDFRONT_URL", ""),
		},
		Payment: PaymentConfig{
			StripeSecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
			StripePublishableKey: getEnv("STRIPE_PUBLISHABLE_KEY", ""),
			Timeout:              getEnvAsDuration("PAYMENT_TIMEOUT", 20*time.Second),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromEmail:    getEnv("FROM_EMAIL", "noreply@creatorshield.in"),
			FromName:     getEnv("FROM_NAME", "CreatorShield"),
			SendTimeout:  getEnvAsDuration("SMTP_SEND_TIMEOUT", 15*time.Second),
		},
		Oracle: OracleConfig{
			Provider:  strings.ToLower(getEnv("ORACLE_PROVIDER", "stub")),
			APIKey:    getEnv("ORACLE_API_KEY", ""),
			Model:     getEnv("ORACLE_MODEL", ""),
			BaseURL:   getEnv("ORACLE_BASE_URL", ""),
			Timeout:   getEnvAsDuration("ORACLE_TIMEOUT", 10*time.Second),
			RateLimit: getEnvAsFloat("ORACLE_RATE_LIMIT", 2),
			Retries:   getEnvAsInt("ORACLE_RETRIES", 2),
		},
		Billing: BillingConfig{
			DefaultCurrency: strings.ToUpper(getEnv("BILLING_DEFAULT_CURRENCY", "INR")),
			FallbackPremium: getEnvAsFloat("BILLING_FALLBACK_PREMIUM", 500),
		},
		Claims: ClaimsConfig{
			AtRiskLookahead: getEnvAsDuration("CLAIMS_AT_RISK_LOOKAHEAD", 24*time.Hour),
			MaxFileSizeMB:   getEnvAsInt("CLAIMS_MAX_FILE_SIZE_MB", 25),
		},
		Frontend: FrontendConfig{
			BaseURL: getEnv("FRONTEND_BASE_URL", "http://localhost:3000"),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	switch c.Oracle.Provider {
	case "openai", "claude":
		if c.Oracle.APIKey == "" {
			return fmt.Errorf("oracle provider %q requires ORACLE_API_KEY", c.Oracle.Provider)
		}
	case "stub":
	default:
		return fmt.Errorf("unknown oracle provider %q", c.Oracle.Provider)
	}

	if c.Billing.FallbackPremium < 0 {
		return fmt.Errorf("fallback premium must not be negative")
	}

	return nil
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// Migrate runs the embedded SQL migrations on startup.
	Migrate bool
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	MaxRetries  int
	DialTimeout int
	Timeout     int
	Prefix      string
}

// Enabled is false when REDIS_ADDR is set to an empty value; the service
// then falls back to in-process allocation locks and no export status.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	Region          string
	Prefix          string
	// Enabled switches ledger exports from local files to the bucket.
	Enabled bool
}

type AuthConfig struct {
	JWTSecret       string
	TokenTTL        time.Duration
	ResetTokenTTL   time.Duration
	BcryptCost      int
	EnrollmentTTL   time.Duration
	NotifyDueWithin time.Duration
}

type FeesConfig struct {
	// GSTRate is the tax-inclusive GST percentage applied at payment time.
	GSTRate  string
	LockTTL  time.Duration
	LockWait time.Duration
}

type MailConfig struct {
	SendGridKey string
	FromName    string
	FromEmail   string
}

type InstituteConfig struct {
	Name    string
	Address string
	Phone   string
	Email   string
	Website string
	GSTIN   string
}

type AppConfig struct {
	Port              string
	FrontendURL       string
	ExternalURL       string
	ExportDir         string
	FilesPublicPrefix string
	LogDir            string
	AllowedOrigins    []string
	// ExportMaxRows caps the number of payments in one ledger export.
	ExportMaxRows int64

	Postgres  PostgresConfig
	Redis     RedisConfig
	S3        S3Config
	Auth      AuthConfig
	Fees      FeesConfig
	Mail      MailConfig
	Institute InstituteConfig
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func mustAtoi(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int value %q: %v", s, err)
	}
	return i
}

func mustBool(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		log.Fatalf("invalid bool value %q: %v", s, err)
	}
	return b
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Fatalf("invalid duration value %q: %v", s, err)
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() AppConfig {
	cfg := AppConfig{
		Port:              getenv("APP_PORT", "5000"),
		FrontendURL:       getenv("FRONTEND_URL", "http://localhost:3000"),
		ExternalURL:       getenv("EXTERNAL_URL", ""),
		ExportDir:         getenv("EXPORT_DIR", "./exports"),
		FilesPublicPrefix: getenv("FILES_PUBLIC_PREFIX", "/files"),
		LogDir:            getenv("DOWNLOAD_LOG_DIR", "./logs"),
		AllowedOrigins:    splitList(getenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		ExportMaxRows:     int64(mustAtoi(getenv("EXPORT_MAX_ROWS", "100000"))),
		Postgres: PostgresConfig{
			Host:     getenv("PG_HOST", "127.0.0.1"),
			Port:     mustAtoi(getenv("PG_PORT", "5432")),
			User:     getenv("PG_USER", "postgres"),
			Password: getenv("PG_PASSWORD", "postgres"),
			DBName:   getenv("PG_DB", "dhronas"),
			SSLMode:  getenv("PG_SSLMODE", "disable"),
			Migrate:  mustBool(getenv("PG_MIGRATE", "true")),
		},
		Redis: RedisConfig{
			Addr:        getenv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:    getenv("REDIS_PASSWORD", ""),
			DB:          mustAtoi(getenv("REDIS_DB", "0")),
			MaxRetries:  mustAtoi(getenv("REDIS_MAX_RETRIES", "5")),
			DialTimeout: mustAtoi(getenv("REDIS_DIAL_TIMEOUT", "10")),
			Timeout:     mustAtoi(getenv("REDIS_TIMEOUT", "5")),
			Prefix:      getenv("REDIS_PREFIX", "dhronas_fees:"),
		},
		S3: S3Config{
			Endpoint:        getenv("S3_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getenv("S3_ACCESS_KEY", "minio"),
			SecretAccessKey: getenv("S3_SECRET_KEY", "minio123"),
			Bucket:          getenv("S3_BUCKET", "exports"),
			Region:          getenv("S3_REGION", "us-east-1"),
			UseSSL:          mustBool(getenv("S3_USE_SSL", "false")),
			Prefix:          getenv("S3_PREFIX", "ledger/"),
			Enabled:         mustBool(getenv("S3_ENABLED", "false")),
		},
		Auth: AuthConfig{
			JWTSecret:       getenv("JWT_SECRET", ""),
			TokenTTL:        mustDuration(getenv("JWT_TTL", "1h")),
			ResetTokenTTL:   mustDuration(getenv("RESET_TOKEN_TTL", "1h")),
			BcryptCost:      mustAtoi(getenv("BCRYPT_COST", "12")),
			EnrollmentTTL:   mustDuration(getenv("ENROLLMENT_LINK_TTL", "168h")),
			NotifyDueWithin: mustDuration(getenv("NOTIFY_DUE_WITHIN", "168h")),
		},
		Fees: FeesConfig{
			GSTRate:  getenv("GST_RATE", "18"),
			LockTTL:  mustDuration(getenv("ALLOCATION_LOCK_TTL", "30s")),
			LockWait: mustDuration(getenv("ALLOCATION_LOCK_WAIT", "5s")),
		},
		Mail: MailConfig{
			SendGridKey: getenv("SENDGRID_API_KEY", ""),
			FromName:    getenv("MAIL_FROM_NAME", "The Dhronas"),
			FromEmail:   getenv("MAIL_FROM_EMAIL", "no-reply@thedhronas.com"),
		},
		Institute: InstituteConfig{
			Name:    getenv("INSTITUTE_NAME", "The Dhronas"),
			Address: getenv("INSTITUTE_ADDRESS", "Hyderabad, Telangana"),
			Phone:   getenv("INSTITUTE_PHONE", ""),
			Email:   getenv("INSTITUTE_EMAIL", "info@thedhronas.com"),
			Website: getenv("INSTITUTE_WEBSITE", "www.thedhronas.com"),
			GSTIN:   getenv("INSTITUTE_GSTIN", ""),
		},
	}

	if cfg.Auth.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	return cfg
}

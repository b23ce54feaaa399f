package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
	"time"
)

// Fixed ingestion endpoints. Overridable for staging via env.
const (
	defaultProfileUploadURL = "https://u4xkq3k7hqtg5om2wfmyqk2i6e0qbhvx.lambda-url.eu-central-1.on.aws/"
	defaultPostUploadURL    = "https://m7r2ddaxv6llvh3snq4vshhjra0tzfnq.lambda-url.eu-central-1.on.aws/"
	defaultSummaryURL       = "https://b5pwxji4yfhm2lsleq7dkoq3wi0hdnis.lambda-url.eu-central-1.on.aws/"
)

type Config struct {
	ServerAddr string
	LogLevel   string

	RedisURL string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Browser automation
	ChromePath     string
	ChromeHeadless bool
	PageLoadCap    time.Duration
	SettleDelay    time.Duration

	// Ingestion endpoints
	ProfileUploadURL string
	PostUploadURL    string
	SummaryURL       string

	// Export archive (S3/MinIO)
	ArchiveEnabled bool
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// Control API auth
	APISecret string
}

func Load() *Config {
	headless, _ := strconv.ParseBool(getEnvOrDefault("CHROME_HEADLESS", "true"))
	archive, _ := strconv.ParseBool(getEnvOrDefault("ARCHIVE_ENABLED", "false"))
	minioUseSSL, _ := strconv.ParseBool(getEnvOrDefault("MINIO_USE_SSL", "false"))

	loadCap, err := time.ParseDuration(getEnvOrDefault("PAGE_LOAD_CAP", "45s"))
	if err != nil || loadCap <= 0 {
		loadCap = 45 * time.Second
	}
	settle, err := time.ParseDuration(getEnvOrDefault("SETTLE_DELAY", "2s"))
	if err != nil || settle <= 0 {
		settle = 2 * time.Second
	}

	return &Config{
		ServerAddr:       getEnvOrDefault("SERVER_ADDR", ":8080"),
		LogLevel:         getEnvOrDefault("LOG_LEVEL", "info"),
		RedisURL:         getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		DBHost:           getEnvOrDefault("DB_HOST", "localhost"),
		DBPort:           getEnvOrDefault("DB_PORT", "5432"),
		DBUser:           getEnvOrDefault("DB_USER", "linkpulse"),
		DBPassword:       getEnvOrDefault("DB_PASSWORD", "linkpulse_dev_password"),
		DBName:           getEnvOrDefault("DB_NAME", "linkpulse"),
		ChromePath:       os.Getenv("CHROME_PATH"),
		ChromeHeadless:   headless,
		PageLoadCap:      loadCap,
		SettleDelay:      settle,
		ProfileUploadURL: getEnvOrDefault("PROFILE_UPLOAD_URL", defaultProfileUploadURL),
		PostUploadURL:    getEnvOrDefault("POST_UPLOAD_URL", defaultPostUploadURL),
		SummaryURL:       getEnvOrDefault("SUMMARY_URL", defaultSummaryURL),
		ArchiveEnabled:   archive,
		MinioEndpoint:    getEnvOrDefault("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey:   getEnvOrDefault("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey:   getEnvOrDefault("MINIO_SECRET_KEY", "minioadmin"),
		MinioBucket:      getEnvOrDefault("MINIO_BUCKET", "linkpulse-exports"),
		MinioUseSSL:      minioUseSSL,
		APISecret:        getEnvOrDefault("API_SECRET", generateDefaultSecret()),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func generateDefaultSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "dev-secret-change-in-production"
	}
	return hex.EncodeToString(bytes)
}

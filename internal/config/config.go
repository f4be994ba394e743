package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr       string
	CORSOrigin string

	// Gemini API key; AI features are disabled when empty.
	GeminiAPIKey string

	// Redis chat history; in-memory fallback when empty.
	RedisURL       string
	ChatHistoryTTL time.Duration

	// Postgres snapshot persistence; disabled when empty.
	DatabaseURL string

	// Meilisearch; in-memory search fallback when empty.
	MeiliURL       string
	MeiliMasterKey string

	// MinIO media storage; disabled when endpoint is empty.
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	// Git audit trail directory; disabled when empty.
	AuditDir string
}

func Load() Config {
	return Config{
		Addr:           getenv("API_ADDR", ":8788"),
		CORSOrigin:     getenv("SKEIN_CORS_ORIGIN", "*"),
		GeminiAPIKey:   getenv("GEMINI_API_KEY", ""),
		RedisURL:       getenv("REDIS_URL", ""),
		ChatHistoryTTL: time.Duration(getenvInt("SKEIN_CHAT_TTL_SECONDS", 86400)) * time.Second,
		DatabaseURL:    getenv("DATABASE_URL", ""),
		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),
		MinIOEndpoint:  getenv("MINIO_ENDPOINT", ""),
		MinIOAccessKey: getenv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey: getenv("MINIO_SECRET_KEY", ""),
		MinIOBucket:    getenv("MINIO_BUCKET", "skein-media"),
		MinIOUseSSL:    getenvBool("MINIO_USE_SSL", false),
		AuditDir:       getenv("SKEIN_AUDIT_DIR", "./data/audit"),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// UploadSubdir and ResultSubdir live under StaticDir and are served as /static/<subdir>/.
	UploadSubdir = "uploads"
	ResultSubdir = "results"
)

type Config struct {
	Port                int
	ModelPath           string
	ClassNamesPath      string
	ConfidenceThreshold float64
	NMSThreshold        float64
	DetectorWorkers     int // Number of network instances; 1 serializes all inference
	StaticDir           string
	MaxUploadSize       int64 // bytes
	TranslationsPath    string
	DatabasePath        string // empty disables prediction history
	LogDirectory        string
	AdminPassword       string // empty disables admin auth
	RedisAddr           string // empty disables the inference cache
	RedisPassword       string
	RedisDB             int
	RedisCacheTTL       time.Duration
	RetentionHours      int // 0 disables the janitor
	CleanupSchedule     string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present; real environment
// variables take precedence over it.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:                getEnvAsInt("PORT", 5000),
		ModelPath:           getEnv("MODEL_PATH", "best.onnx"),
		ClassNamesPath:      getEnv("CLASS_NAMES_PATH", "classes.txt"),
		ConfidenceThreshold: getEnvAsFloat("CONFIDENCE_THRESHOLD", 0.25),
		NMSThreshold:        getEnvAsFloat("NMS_THRESHOLD", 0.7),
		DetectorWorkers:     getEnvAsInt("DETECTOR_WORKERS", 1),
		StaticDir:           getEnv("STATIC_DIR", "static"),
		MaxUploadSize:       getEnvAsInt64("MAX_UPLOAD_MB", 20) << 20,
		TranslationsPath:    getEnv("TRANSLATIONS_PATH", ""),
		DatabasePath:        getEnv("DATABASE_PATH", filepath.Join("data", "predictions.db")),
		LogDirectory:        getEnv("LOG_DIR", "logs"),
		AdminPassword:       getEnv("ADMIN_PASSWORD", ""),
		RedisAddr:           getEnv("REDIS_ADDR", ""),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getEnvAsInt("REDIS_DB", 0),
		RedisCacheTTL:       getEnvAsDuration("REDIS_CACHE_TTL", 24*time.Hour),
		RetentionHours:      getEnvAsInt("RETENTION_HOURS", 0),
		CleanupSchedule:     getEnv("CLEANUP_SCHEDULE", "@every 1h"),
	}
}

// UploadDir is where original uploads are stored.
func (c *Config) UploadDir() string {
	return filepath.Join(c.StaticDir, UploadSubdir)
}

// ResultDir is where annotated images are stored.
func (c *Config) ResultDir() string {
	return filepath.Join(c.StaticDir, ResultSubdir)
}

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

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
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

// getEnvAsDuration accepts Go duration strings ("90m") or plain seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds process configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SegmentationConfigPath string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:                getenv("APP_SERVICE", "segmentation"),
		AppVersion:             getenv("APP_VERSION", "0.1.0"),
		Environment:            getenv("ENVIRONMENT", "development"),
		HTTPAddr:               getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:           getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:                 getenv("DATABASE_TYPE", "postgres"),
		DBHost:                 getenv("DATABASE_HOST", "localhost"),
		DBPort:                 getenv("DATABASE_PORT", "5432"),
		DBName:                 getenv("DATABASE_NAME", "postgres"),
		DBUser:                 getenv("DATABASE_USER", "postgres"),
		DBPassword:             getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:              getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:          getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:          getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime:      getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime:      getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),
		RedisAddr:              strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:          getenv("REDIS_PASSWORD", ""),
		RedisDB:                getenvInt("REDIS_DB", 0),
		SegmentationConfigPath: strings.TrimSpace(getenv("SEGMENTATION_CONFIG_PATH", "")),
	}
}

func (c Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

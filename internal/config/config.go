package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	ListenAddr  string
	DBPath      string
	LeaseWindow time.Duration
	BatchSize   int
	SKUListPath string
	LogLevel    string
	LogFile     string
}

func Load() *Config {
	return &Config{
		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
		DBPath:      getEnv("DB_PATH", "/data/inboundscan.db"),
		LeaseWindow: time.Duration(getEnvInt("LEASE_MS", 120000)) * time.Millisecond,
		BatchSize:   getEnvInt("BATCH_SIZE", 5),
		SKUListPath: getEnv("SKU_LIST_PATH", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFile:     getEnv("LOG_FILE", ""),
	}
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

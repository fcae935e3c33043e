package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerURL string
	SocketURL string
	Token     string
	CacheDir  string
	LogLevel  string
}

var Cfg *Config

func Load() {
	// Optional .env for local development; a missing file is fine.
	_ = godotenv.Load()

	Cfg = &Config{
		ServerURL: getEnv("CHATSYNC_SERVER_URL", "http://localhost:8080"),
		SocketURL: getEnv("CHATSYNC_SOCKET_URL", "ws://localhost:8080/ws"),
		Token:     getEnv("CHATSYNC_TOKEN", ""),
		CacheDir:  getEnv("CHATSYNC_CACHE_DIR", "./chatsync-cache"),
		LogLevel:  getEnv("CHATSYNC_LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

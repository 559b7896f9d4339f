package bootstrap

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerAddr string
	LogLevel   string

	Engine           string
	EngineCommand    string
	EngineSampleRate int
	EngineUnitDelay  time.Duration

	WorkerPoolSize     int
	WorkerQueueTimeout time.Duration

	VoiceLibrary string
	VoiceDir     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DatabaseDSN string

	WSMessagesPerSecond float64
	WSMessageBurst      int
	WSIdleTimeout       time.Duration
	WSMaxMessageSize    int64

	AdminToken string
}

func LoadConfig() *Config {
	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		Engine:           getEnv("ENGINE", "synthetic"),
		EngineCommand:    getEnv("ENGINE_COMMAND", ""),
		EngineSampleRate: getEnvInt("ENGINE_SAMPLE_RATE", 24000),
		EngineUnitDelay:  getEnvDuration("ENGINE_UNIT_DELAY", 0),

		WorkerPoolSize:     getEnvInt("WORKER_POOL_SIZE", 2),
		WorkerQueueTimeout: getEnvDuration("WORKER_QUEUE_TIMEOUT", 30*time.Second),

		VoiceLibrary: getEnv("VOICE_LIBRARY", ""),
		VoiceDir:     getEnv("VOICE_DIR", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		DatabaseDSN: getEnv("DATABASE_DSN", ""),

		WSMessagesPerSecond: getEnvFloat("WS_MESSAGES_PER_SECOND", 20),
		WSMessageBurst:      getEnvInt("WS_MESSAGE_BURST", 40),
		WSIdleTimeout:       getEnvDuration("WS_IDLE_TIMEOUT", 0),
		WSMaxMessageSize:    int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 64*1024)),

		AdminToken: getEnv("ADMIN_TOKEN", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

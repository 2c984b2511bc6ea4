package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"naval-battle/internal/infra/setup"
)

// Config 存储从环境变量或 .env 文件加载的配置
type Config struct {
	DBUser            string
	DBPassword        string
	DBHost            string
	DBPort            string
	DBName            string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	KeyPrefix         string
	JWTSecret         string
	JWTExpiryHours    int
	ServerPort        string
	LogLevel          string
	AppEnv            string
	RateLimitMax      int
	RateLimitWindow   time.Duration
	CORSAllowedOrigin string
}

// LoadConfig 从环境变量加载配置
func LoadConfig() (*Config, error) {
	// .env 不存在时只使用环境变量
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:            os.Getenv("DB_USER"),
		DBPassword:        os.Getenv("DB_PASSWORD"),
		DBHost:            os.Getenv("DB_HOST"),
		DBPort:            os.Getenv("DB_PORT"),
		DBName:            os.Getenv("DB_NAME"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		KeyPrefix:         os.Getenv("REDIS_KEY_PREFIX"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		ServerPort:        os.Getenv("SERVER_PORT"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		AppEnv:            os.Getenv("APP_ENV"),
		CORSAllowedOrigin: os.Getenv("CORS_ALLOWED_ORIGIN"),
		RedisDB:           envInt("REDIS_DB", 0),
		JWTExpiryHours:    envInt("JWT_EXPIRY_HOURS", 24),
		RateLimitMax:      envInt("RATE_LIMIT_MAX", 100),
		RateLimitWindow:   time.Second,
	}
	if raw := os.Getenv("RATE_LIMIT_WINDOW"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_WINDOW %q", raw)
		}
		cfg.RateLimitWindow = d
	}

	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "nb:"
	}
	if cfg.CORSAllowedOrigin == "" {
		cfg.CORSAllowedOrigin = "http://localhost:3000"
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}
	if cfg.RateLimitMax <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_MAX must be positive")
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

// ArchiveEnabled 只有配置了数据库时才归档对局
func (c *Config) ArchiveEnabled() bool { return c.DBHost != "" }

// DB 返回数据库连接配置
func (c *Config) DB() setup.DBConfig {
	return setup.DBConfig{User: c.DBUser, Password: c.DBPassword, Host: c.DBHost, Port: c.DBPort, Name: c.DBName}
}

// Redis 返回 Redis 连接配置
func (c *Config) Redis() setup.RedisConfig {
	return setup.RedisConfig{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

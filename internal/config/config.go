package config

import (
	"os"
	"strconv"
	"strings"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server      ServerConfig      `json:"server"`
	Database    DatabaseConfig    `json:"database"`
	Redis       RedisConfig       `json:"redis"`
	Kafka       KafkaConfig       `json:"kafka"`
	Logger      LoggerConfig      `json:"logger"`
	Stacking    StackingConfig    `json:"stacking"`
	Rounding    RoundingConfig    `json:"rounding"`
	Concurrency ConcurrencyConfig `json:"concurrency"`
	Audit       AuditConfig       `json:"audit"`
	Cache       CacheConfig       `json:"cache"`
}

// ServerConfig представляет конфигурацию HTTP сервера
type ServerConfig struct {
	Port         string `json:"port"`
	Host         string `json:"host"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
}

// DatabaseConfig представляет конфигурацию базы данных
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig представляет конфигурацию Redis
type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// KafkaConfig представляет конфигурацию Kafka
type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	GroupID string   `json:"group_id"`
	Topics  Topics   `json:"topics"`
}

// Topics представляет список топиков Kafka
type Topics struct {
	Discounts string `json:"discounts"`
}

// LoggerConfig представляет конфигурацию логгера
type LoggerConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	File   string `json:"file"`
}

// StackingConfig описывает правила суммирования скидок.
// OrderPercentage/OrderFixed носят справочный характер: фактический порядок
// применения определяется полем stacking_order каждой скидки.
type StackingConfig struct {
	OrderPercentage    int     `json:"order_percentage"`
	OrderFixed         int     `json:"order_fixed"`
	MaxPercentageCap   float64 `json:"max_percentage_cap"`
	AllowNegativeFinal bool    `json:"allow_negative_final"`
}

// RoundingConfig описывает правила округления итоговых сумм.
type RoundingConfig struct {
	Mode          string `json:"mode"` // round | floor | ceil
	DecimalPlaces int    `json:"decimal_places"`
}

// ConcurrencyConfig описывает настройки конкурентного применения скидок.
type ConcurrencyConfig struct {
	LockTimeoutSeconds int `json:"lock_timeout_seconds"`
	RetryAttempts      int `json:"retry_attempts"`
}

// AuditConfig описывает настройки аудита.
// RetentionDays = 0 означает бессрочное хранение записей.
type AuditConfig struct {
	Enabled       bool `json:"enabled"`
	RetentionDays int  `json:"retention_days"`
}

// CacheConfig описывает настройки кеша выборки доступных скидок.
type CacheConfig struct {
	Enabled    bool `json:"enabled"`
	TTLMinutes int  `json:"ttl_minutes"`
}

// Load загружает конфигурацию из переменных окружения
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 10),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "discount_user"),
			Password: getEnv("DB_PASSWORD", "discount_pass"),
			DBName:   getEnv("DB_NAME", "discount_system"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			GroupID: getEnv("KAFKA_GROUP_ID", "discount-service"),
			Topics: Topics{
				Discounts: getEnv("KAFKA_TOPIC_DISCOUNTS", "discounts"),
			},
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			File:   getEnv("LOG_FILE", ""),
		},
		Stacking: StackingConfig{
			OrderPercentage:    getEnvAsInt("DISCOUNT_STACKING_ORDER_PERCENTAGE", 1),
			OrderFixed:         getEnvAsInt("DISCOUNT_STACKING_ORDER_FIXED", 2),
			MaxPercentageCap:   getEnvAsFloat("DISCOUNT_MAX_PERCENTAGE_CAP", 100.0),
			AllowNegativeFinal: getEnvAsBool("DISCOUNT_ALLOW_NEGATIVE_FINAL", false),
		},
		Rounding: RoundingConfig{
			Mode:          getEnv("DISCOUNT_ROUNDING_MODE", "round"),
			DecimalPlaces: getEnvAsInt("DISCOUNT_DECIMAL_PLACES", 2),
		},
		Concurrency: ConcurrencyConfig{
			LockTimeoutSeconds: getEnvAsInt("DISCOUNT_LOCK_TIMEOUT_SECONDS", 30),
			RetryAttempts:      getEnvAsInt("DISCOUNT_RETRY_ATTEMPTS", 3),
		},
		Audit: AuditConfig{
			Enabled:       getEnvAsBool("DISCOUNT_AUDIT_ENABLED", true),
			RetentionDays: getEnvAsInt("DISCOUNT_AUDIT_RETENTION_DAYS", 365),
		},
		Cache: CacheConfig{
			Enabled:    getEnvAsBool("DISCOUNT_CACHE_ENABLED", true),
			TTLMinutes: getEnvAsInt("DISCOUNT_CACHE_TTL_MINUTES", 60),
		},
	}
}

// getEnv получает значение переменной окружения с значением по умолчанию
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt получает значение переменной окружения как int с значением по умолчанию
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsFloat получает значение переменной окружения как float64 с значением по умолчанию
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool получает значение переменной окружения как bool с значением по умолчанию
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.ToLower(getEnv(key, ""))
	if valueStr == "true" || valueStr == "1" || valueStr == "yes" {
		return true
	}
	if valueStr == "false" || valueStr == "0" || valueStr == "no" {
		return false
	}
	return defaultValue
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env                    string
	HTTPAddr               string
	DatabaseURL            string
	JWTSecret              string
	JWTExpirySeconds       int64
	TrackingTokenSecret    string
	RestaurantName         string
	RestaurantTimezone     string
	RestaurantLatitude     float64
	RestaurantLongitude    float64
	Currency               string
	RabbitMQURL            string
	RabbitMQWorkerMode     string
	CorsAllowedOrigins     []string
	RiderSessionTTL        time.Duration
	WSHeartbeatInterval    time.Duration
	WSAdminPollInterval    time.Duration
	WSCustomerPollInterval time.Duration

	// Discount programme knobs. Promo codes live in the database;
	// first-order and happy-hour are restaurant-wide settings.
	FirstOrderDiscount   float64
	FirstOrderLabel      string
	HappyHourStart       string
	HappyHourEnd         string
	HappyHourPercent     float64
	MaxChatMessageLength int
	MaxAttachmentBytes   int64

	ObjectStoreEndpoint        string
	ObjectStoreRegion          string
	ObjectStoreAccessKeyID     string
	ObjectStoreSecretAccessKey string
	ObjectStoreBucket          string
	ObjectStorePublicBaseURL   string
	ObjectStoreStorageClass    string
}

func Load() Config {
	cfg := Config{
		Env:                    getEnv("APP_ENV", "development"),
		HTTPAddr:               getEnv("HTTP_ADDR", ":8091"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		JWTSecret:              getEnv("JWT_SECRET", ""),
		JWTExpirySeconds:       getEnvInt64("JWT_EXPIRY", 3600),
		TrackingTokenSecret:    getEnv("ORDER_TRACKING_TOKEN_SECRET", "dev-insecure-tracking-secret"),
		RestaurantName:         getEnv("RESTAURANT_NAME", "Zaiqa"),
		RestaurantTimezone:     getEnv("RESTAURANT_TIMEZONE", "Asia/Karachi"),
		RestaurantLatitude:     getEnvFloat64("RESTAURANT_LATITUDE", 0),
		RestaurantLongitude:    getEnvFloat64("RESTAURANT_LONGITUDE", 0),
		Currency:               getEnv("CURRENCY", "PKR"),
		RabbitMQURL:            getEnv("RABBITMQ_URL", ""),
		RabbitMQWorkerMode:     getEnv("RABBITMQ_WORKER_MODE", "daemon"),
		CorsAllowedOrigins:     splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),
		RiderSessionTTL:        getEnvDuration("RIDER_SESSION_TTL", 12*time.Hour),
		WSHeartbeatInterval:    getEnvDuration("WS_HEARTBEAT_INTERVAL", 30*time.Second),
		WSAdminPollInterval:    getEnvDuration("WS_ADMIN_POLL_INTERVAL", 5*time.Second),
		WSCustomerPollInterval: getEnvDuration("WS_CUSTOMER_POLL_INTERVAL", 1*time.Second),

		FirstOrderDiscount:   getEnvFloat64("FIRST_ORDER_DISCOUNT", 0),
		FirstOrderLabel:      getEnv("FIRST_ORDER_LABEL", "First order discount"),
		HappyHourStart:       getEnv("HAPPY_HOUR_START", ""),
		HappyHourEnd:         getEnv("HAPPY_HOUR_END", ""),
		HappyHourPercent:     getEnvFloat64("HAPPY_HOUR_PERCENT", 0),
		MaxChatMessageLength: int(getEnvInt64("MAX_CHAT_MESSAGE_LENGTH", 2000)),
		MaxAttachmentBytes:   getEnvInt64("MAX_ATTACHMENT_SIZE", 5*1024*1024),

		ObjectStoreEndpoint:        getEnv("OBJECT_STORE_ENDPOINT", ""),
		ObjectStoreRegion:          getEnv("OBJECT_STORE_REGION", "auto"),
		ObjectStoreAccessKeyID:     getEnv("OBJECT_STORE_ACCESS_KEY_ID", ""),
		ObjectStoreSecretAccessKey: getEnv("OBJECT_STORE_SECRET_ACCESS_KEY", ""),
		ObjectStoreBucket:          getEnv("OBJECT_STORE_BUCKET", ""),
		ObjectStorePublicBaseURL:   getEnv("OBJECT_STORE_PUBLIC_BASE_URL", ""),
		ObjectStoreStorageClass:    getEnv("OBJECT_STORE_STORAGE_CLASS", "STANDARD"),
	}

	if cfg.MaxChatMessageLength <= 0 {
		cfg.MaxChatMessageLength = 2000
	}
	if cfg.MaxAttachmentBytes <= 0 {
		cfg.MaxAttachmentBytes = 5 * 1024 * 1024
	}

	return cfg
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat64(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func splitCSV(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

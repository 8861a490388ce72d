package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultReservationTimeout = 5 * time.Second

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	AppPort    string
	AppEnv     string

	JWTSecret     string
	AdminUsername string
	AdminPassword string

	RedisAddr    string
	KafkaBrokers []string
	KafkaTopic   string

	ReservationTimeout time.Duration
}

var ErrMissingConfig = errors.New("missing required configuration")

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:             os.Getenv("DB_HOST"),
		DBUser:             os.Getenv("DB_USER"),
		DBPassword:         os.Getenv("DB_PASSWORD"),
		DBName:             os.Getenv("DB_NAME"),
		DBPort:             getenv("DB_PORT", "5432"),
		AppPort:            getenv("APP_PORT", "8080"),
		AppEnv:             os.Getenv("APP_ENV"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		AdminUsername:      getenv("ADMIN_USERNAME", "admin"),
		AdminPassword:      os.Getenv("ADMIN_PASSWORD"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		KafkaBrokers:       splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:         getenv("KAFKA_TOPIC", "storefront.orders"),
		ReservationTimeout: defaultReservationTimeout,
	}

	if raw := os.Getenv("CHECKOUT_RESERVATION_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.ReservationTimeout = d
		}
	}

	return cfg
}

// Validate reports the first required variable that is unset.
func (c *Config) Validate() error {
	switch {
	case c.DBHost == "":
		return errors.Join(ErrMissingConfig, errors.New("DB_HOST"))
	case c.JWTSecret == "":
		return errors.Join(ErrMissingConfig, errors.New("JWT_SECRET"))
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

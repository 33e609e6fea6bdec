package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	GRPC      GRPCConfig
	Store     StoreConfig
	Providers ProvidersConfig
	Hub       HubConfig
	Alerts    AlertsConfig
	Kafka     KafkaConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	CORSOrigins  []string
	RateLimitRPS int
}

type GRPCConfig struct {
	Enabled bool
	Port    int
}

// StoreConfig locates the report store. DSN is the persistence credential
// and has no default.
type StoreConfig struct {
	Driver string
	DSN    string
}

type ProvidersConfig struct {
	Timeout           time.Duration
	AggregateCacheTTL time.Duration
	GeocodeCacheSize  int
	OpenWeatherKey    string
	OpenWeatherURL    string
	USGSURL           string
	GoogleMapsKey     string
	GoogleMapsURL     string
}

type HubConfig struct {
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type AlertsConfig struct {
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	TwilioURL        string
	Workers          int
	BufferSize       int
}

// Enabled reports whether SMS credentials are present.
func (a AlertsConfig) Enabled() bool {
	return a.TwilioAccountSID != "" && a.TwilioAuthToken != "" && a.TwilioFromNumber != ""
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type LoggingConfig struct {
	Level  string
	Format string
}

var ErrMissingStoreDSN = errors.New("STORE_DSN is required")

var defaultCORSOrigins = "https://disaster-response-system-alpha.vercel.app,http://localhost:3000"

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 5000),
			CORSOrigins:  getEnvList("CORS_ORIGINS", defaultCORSOrigins),
			RateLimitRPS: getEnvInt("RATE_LIMIT_RPS", 20),
		},
		GRPC: GRPCConfig{
			Enabled: getEnvBool("GRPC_ENABLED", false),
			Port:    getEnvInt("GRPC_PORT", 50051),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(getEnv("STORE_DRIVER", "sqlite")),
			DSN:    os.Getenv("STORE_DSN"),
		},
		Providers: ProvidersConfig{
			Timeout:           getEnvDuration("PROVIDER_TIMEOUT", 8*time.Second),
			AggregateCacheTTL: getEnvDuration("AGGREGATE_CACHE_TTL", time.Minute),
			GeocodeCacheSize:  getEnvInt("GEOCODE_CACHE_SIZE", 1000),
			OpenWeatherKey:    os.Getenv("OPENWEATHER_API_KEY"),
			OpenWeatherURL:    getEnv("OPENWEATHER_URL", "https://api.openweathermap.org"),
			USGSURL:           getEnv("USGS_URL", "https://earthquake.usgs.gov"),
			GoogleMapsKey:     os.Getenv("GOOGLE_MAPS_API_KEY"),
			GoogleMapsURL:     getEnv("GOOGLE_MAPS_URL", "https://maps.googleapis.com"),
		},
		Hub: HubConfig{
			WriteTimeout: getEnvDuration("HUB_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getEnvDuration("HUB_IDLE_TIMEOUT", 60*time.Second),
		},
		Alerts: AlertsConfig{
			TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
			TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
			TwilioFromNumber: os.Getenv("TWILIO_FROM_NUMBER"),
			TwilioURL:        getEnv("TWILIO_URL", "https://api.twilio.com"),
			Workers:          getEnvInt("ALERT_WORKERS", 2),
			BufferSize:       getEnvInt("ALERT_BUFFER_SIZE", 100),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", ""),
			Topic:   getEnv("KAFKA_TOPIC", "disaster-reports"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Store.DSN == "" {
		return ErrMissingStoreDSN
	}
	if c.Store.Driver != "sqlite" && c.Store.Driver != "bolt" {
		return fmt.Errorf("invalid store driver: %s", c.Store.Driver)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.GRPC.Enabled && (c.GRPC.Port < 1 || c.GRPC.Port > 65535) {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPC.Port)
	}
	if c.Server.RateLimitRPS < 1 {
		return fmt.Errorf("rate limit must be at least 1 req/s")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Providers.Timeout < time.Second || c.Providers.Timeout > 30*time.Second {
		return fmt.Errorf("provider timeout must be between 1s and 30s")
	}
	if c.Providers.AggregateCacheTTL < 0 {
		return fmt.Errorf("aggregate cache TTL must not be negative")
	}
	if c.Providers.GeocodeCacheSize < 1 {
		return fmt.Errorf("geocode cache size must be positive")
	}
	if c.Hub.WriteTimeout <= 0 || c.Hub.IdleTimeout <= 0 {
		return fmt.Errorf("hub timeouts must be positive")
	}
	if c.Alerts.Workers < 1 || c.Alerts.BufferSize < 1 {
		return fmt.Errorf("alert worker count and buffer size must be positive")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
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

	Fel  FelConfig
	Gate GateConfig
}

// FelConfig configures the fiscal certification client.
type FelConfig struct {
	BaseURL        string
	Token          string
	EmitterNIT     string
	ConnectTimeout time.Duration
	TotalTimeout   time.Duration
}

// GateConfig configures the gate-control client.
type GateConfig struct {
	BaseURL        string
	APIKey         string
	ExitChannelID  string
	PaymentType    string
	ConnectTimeout time.Duration
	TotalTimeout   time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "zkt-sub000"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "parking"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		Fel: FelConfig{
			BaseURL:        strings.TrimRight(getenv("FEL_BASE_URL", ""), "/"),
			Token:          strings.TrimSpace(getenv("FEL_TOKEN", "")),
			EmitterNIT:     strings.TrimSpace(getenv("FEL_EMITTER_NIT", "")),
			ConnectTimeout: getenvDuration("FEL_CONNECT_TIMEOUT", 15*time.Second),
			TotalTimeout:   getenvDuration("FEL_TOTAL_TIMEOUT", 35*time.Second),
		},
		Gate: GateConfig{
			BaseURL:        strings.TrimRight(getenv("GATE_BASE_URL", ""), "/"),
			APIKey:         strings.TrimSpace(getenv("GATE_API_KEY", "")),
			ExitChannelID:  strings.TrimSpace(getenv("GATE_EXIT_CHANNEL_ID", "1")),
			PaymentType:    getenv("GATE_PAYMENT_TYPE", "cash"),
			ConnectTimeout: getenvDuration("GATE_CONNECT_TIMEOUT", 10*time.Second),
			TotalTimeout:   getenvDuration("GATE_TOTAL_TIMEOUT", 20*time.Second),
		},
	}
}

// Module provides the application config.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewParkingConfigHolder),
)

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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

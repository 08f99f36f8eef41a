package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"payments-service/internal/payfast"
)

type Config struct {
	Port     string
	GRPCPort string
	GinMode  string
	LogLevel string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisURL string
	AppURL   string

	// TrustedProxies may set X-Forwarded-For. Empty trusts none, so the
	// client address is always the TCP peer.
	TrustedProxies []string

	Payfast PayfastConfig
	Resync  ResyncConfig

	// SyncViaQueue sends notification side-effect syncs through asynq.
	SyncViaQueue bool
}

type PayfastConfig struct {
	Endpoints     payfast.Endpoints
	Timeout       time.Duration
	OriginCheck   bool
	EnforceOrigin bool
	ValidHosts    []string
}

type ResyncConfig struct {
	Enabled       bool
	NeedsInterval time.Duration
	FullInterval  time.Duration
	LockWithRedis bool
}

// Load reads .env (current dir, then parent) and the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		_ = godotenv.Load("../.env")
	}

	return Config{
		Port:           getenv("PORT", "8080"),
		GRPCPort:       getenv("GRPC_PORT", "50051"),
		GinMode:        getenv("GIN_MODE", "release"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		DBHost:         getenv("DB_HOST", "localhost"),
		DBPort:         getenv("DB_PORT", "3306"),
		DBUser:         getenv("DB_USER", "root"),
		DBPassword:     os.Getenv("DB_PASSWORD"),
		DBName:         getenv("DB_NAME", "payments"),
		RedisURL:       getenv("REDIS_URL", "localhost:6379"),
		AppURL:         strings.TrimRight(getenv("APP_URL", "http://localhost:8080"), "/"),
		TrustedProxies: getenvList("TRUSTED_PROXIES", nil),
		Payfast: PayfastConfig{
			Endpoints: payfast.Endpoints{
				ProductionURL: getenv("PAYFAST_PRODUCTION_URL", payfast.DefaultProductionURL),
				SandboxURL:    getenv("PAYFAST_SANDBOX_URL", payfast.DefaultSandboxURL),
				APIURL:        getenv("PAYFAST_API_URL", payfast.DefaultAPIURL),
			},
			Timeout:       getenvDuration("PAYFAST_TIMEOUT", 30*time.Second),
			OriginCheck:   getenvBool("PAYFAST_ORIGIN_CHECK", true),
			EnforceOrigin: getenvBool("PAYFAST_ENFORCE_ORIGIN", false),
			ValidHosts:    getenvList("PAYFAST_VALID_HOSTS", payfast.DefaultValidHosts),
		},
		Resync: ResyncConfig{
			Enabled:       getenvBool("RESYNC_ENABLED", true),
			NeedsInterval: getenvDuration("RESYNC_NEEDS_INTERVAL", 3*time.Minute),
			FullInterval:  getenvDuration("RESYNC_FULL_INTERVAL", 12*time.Hour),
			LockWithRedis: getenvBool("RESYNC_REDIS_LOCK", true),
		},
		SyncViaQueue: getenvBool("SYNC_VIA_QUEUE", true),
	}
}

// DSN is the MySQL connection string.
func (c Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

// getenvDuration accepts Go durations ("3m") or plain seconds ("180").
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

func getenvList(key string, def []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return append([]string(nil), def...)
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	return out
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	AuthJWTSecret string
	AuthJWTIssuer string

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

	PermissionsFile string

	Ledger LedgerConfig
	Redis  RedisConfig
	Kafka  KafkaConfig

	RateLimit RateLimitConfig
}

// LedgerConfig configures the ledger client owned by the event sequencer.
type LedgerConfig struct {
	Driver          string
	RPCURL          string
	SignerKey       string
	ContractAddress string
	ChainID         int64
	GasLimit        uint64
	ReceiptPoll     time.Duration
	ReceiptTimeout  time.Duration
	LockTTL         time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type KafkaConfig struct {
	Brokers   []string
	StepTopic string
}

func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// RateLimitConfig throttles step writes per actor. It needs Redis.
type RateLimitConfig struct {
	StepWriteRate  float64
	StepWriteBurst int
}

const (
	LedgerDriverEVM    = "evm"
	LedgerDriverMemory = "memory"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "tracechain"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		AuthJWTSecret:     strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AuthJWTIssuer:     strings.TrimSpace(getenv("AUTH_JWT_ISSUER", "")),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "tracechain"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		PermissionsFile:   strings.TrimSpace(getenv("PERMISSIONS_FILE", "")),
		Ledger: LedgerConfig{
			Driver:          normalizeLedgerDriver(getenv("LEDGER_DRIVER", LedgerDriverMemory)),
			RPCURL:          strings.TrimSpace(getenv("LEDGER_RPC_URL", "")),
			SignerKey:       strings.TrimSpace(getenv("LEDGER_SIGNER_PRIVATE_KEY", "")),
			ContractAddress: strings.TrimSpace(getenv("LEDGER_CONTRACT_ADDRESS", "")),
			ChainID:         getenvInt64("LEDGER_CHAIN_ID", 80002),
			GasLimit:        uint64(getenvInt64("LEDGER_GAS_LIMIT", 0)),
			ReceiptPoll:     getenvDuration("LEDGER_RECEIPT_POLL", 2*time.Second),
			ReceiptTimeout:  getenvDuration("LEDGER_RECEIPT_TIMEOUT", 2*time.Minute),
			LockTTL:         getenvDuration("LEDGER_LOCK_TTL", 10*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:   splitList(getenv("KAFKA_BROKERS", "")),
			StepTopic: getenv("KAFKA_STEP_TOPIC", "supplychain.step.recorded"),
		},
		RateLimit: RateLimitConfig{
			StepWriteRate:  getenvFloat("RATE_LIMIT_STEP_WRITE_RATE", 0),
			StepWriteBurst: getenvInt("RATE_LIMIT_STEP_WRITE_BURST", 10),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func normalizeLedgerDriver(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case LedgerDriverEVM:
		return LedgerDriverEVM
	default:
		return LedgerDriverMemory
	}
}

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

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
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
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

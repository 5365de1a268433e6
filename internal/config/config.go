package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config holds all configuration
type Config struct {
	MySQL       MySQLConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Log         LogConfig
	Secret      SecretConfig
	ACME        ACMEConfig
	Propagation PropagationConfig
	DNS         DNSConfig
	Sweeper     SweeperConfig
	Metrics     MetricsConfig
	CORS        CORSConfig
	Migrate     bool
	HTTPAddr    string
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	DSN string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret        string
	ExpireMinutes int
	Issuer        string
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string // debug|info|warn|error
	Format string // text|json
}

// SecretConfig holds the secret store master key
type SecretConfig struct {
	MasterKey string
}

// ACMEConfig holds ACME client and issuance flow configuration
type ACMEConfig struct {
	UserAgent          string
	PollTimeoutSec     int
	PollInitialSec     int
	PollMaxIntervalSec int
	FinalizeTimeoutSec int
	SessionTTLMin      int
	InsecureSkipVerify bool
}

// PropagationConfig holds DNS propagation check configuration
type PropagationConfig struct {
	Resolvers       []string
	IntervalSec     int
	TimeoutSec      int
	InitialDelaySec int
}

// DNSConfig holds DNS vendor adapter configuration
type DNSConfig struct {
	RetryAttempts     int
	RequestTimeoutSec int
	HuaweiRegion      string
}

// SweeperConfig holds certificate sweeper configuration
type SweeperConfig struct {
	Enabled           bool
	IntervalSec       int
	NotIssuedKeepDays int
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowOrigins []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getEnv("MYSQL_DSN", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASS", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:        os.Getenv("JWT_SECRET"),
			ExpireMinutes: getEnvInt("JWT_EXPIRE_MINUTES", 1440),
			Issuer:        getEnv("JWT_ISSUER", "go_certhub"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		Secret: SecretConfig{
			MasterKey: os.Getenv("SECRET_MASTER_KEY"),
		},
		ACME: ACMEConfig{
			UserAgent:          getEnv("ACME_USER_AGENT", "go_certhub"),
			PollTimeoutSec:     getEnvInt("ACME_POLL_TIMEOUT_SEC", 120),
			PollInitialSec:     getEnvInt("ACME_POLL_INITIAL_SEC", 2),
			PollMaxIntervalSec: getEnvInt("ACME_POLL_MAX_INTERVAL_SEC", 30),
			FinalizeTimeoutSec: getEnvInt("ACME_FINALIZE_TIMEOUT_SEC", 90),
			SessionTTLMin:      getEnvInt("ACME_SESSION_TTL_MIN", 60),
			InsecureSkipVerify: getEnv("ACME_INSECURE_SKIP_VERIFY", "0") == "1",
		},
		Propagation: PropagationConfig{
			Resolvers:       splitList(getEnv("DNS_PROPAGATION_RESOLVERS", "8.8.8.8:53,1.1.1.1:53")),
			IntervalSec:     getEnvInt("DNS_PROPAGATION_INTERVAL_SEC", 10),
			TimeoutSec:      getEnvInt("DNS_PROPAGATION_TIMEOUT_SEC", 180),
			InitialDelaySec: getEnvInt("DNS_PROPAGATION_INITIAL_DELAY_SEC", 0),
		},
		DNS: DNSConfig{
			RetryAttempts:     getEnvInt("DNS_RETRY_ATTEMPTS", 4),
			RequestTimeoutSec: getEnvInt("DNS_REQUEST_TIMEOUT_SEC", 15),
			HuaweiRegion:      getEnv("DNS_HUAWEI_REGION", "cn-south-1"),
		},
		Sweeper: SweeperConfig{
			Enabled:           getEnv("CERT_SWEEPER_ENABLED", "1") == "1",
			IntervalSec:       getEnvInt("CERT_SWEEPER_INTERVAL_SEC", 600),
			NotIssuedKeepDays: getEnvInt("CERT_NOT_ISSUED_KEEP_DAYS", 7),
		},
		Metrics: MetricsConfig{
			Enabled: getEnv("METRICS_ENABLED", "1") == "1",
		},
		CORS: CORSConfig{
			AllowOrigins: splitList(getEnv("CORS_ALLOW_ORIGINS", "")),
		},
		Migrate:  getEnv("MIGRATE", "0") == "1",
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// splitList splits a comma separated value, dropping empty items
func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// LoadFromINI loads configuration from INI file with environment variable override
func LoadFromINI(iniPath string) (*Config, error) {
	cfgFile, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load INI file: %w", err)
	}

	// Priority: ENV > INI > default
	getValue := func(envKey, iniSection, iniKey, defaultValue string) string {
		if value := os.Getenv(envKey); value != "" {
			return value
		}
		if value := cfgFile.Section(iniSection).Key(iniKey).String(); value != "" {
			return value
		}
		return defaultValue
	}

	getValueInt := func(envKey, iniSection, iniKey string, defaultValue int) int {
		if value := os.Getenv(envKey); value != "" {
			if intValue, err := strconv.Atoi(value); err == nil {
				return intValue
			}
		}
		if cfgFile.Section(iniSection).HasKey(iniKey) {
			if value, err := cfgFile.Section(iniSection).Key(iniKey).Int(); err == nil {
				return value
			}
		}
		return defaultValue
	}

	getValueBool := func(envKey, iniSection, iniKey string, defaultValue bool) bool {
		if value := os.Getenv(envKey); value != "" {
			return value == "1" || value == "true"
		}
		if value, err := cfgFile.Section(iniSection).Key(iniKey).Bool(); err == nil {
			return value
		}
		return defaultValue
	}

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: getValue("MYSQL_DSN", "mysql", "dsn", ""),
		},
		Redis: RedisConfig{
			Addr:     getValue("REDIS_ADDR", "redis", "addr", "localhost:6379"),
			Password: getValue("REDIS_PASS", "redis", "pass", ""),
			DB:       getValueInt("REDIS_DB", "redis", "db", 0),
		},
		JWT: JWTConfig{
			Secret:        getValue("JWT_SECRET", "jwt", "secret", ""),
			ExpireMinutes: getValueInt("JWT_EXPIRE_MINUTES", "jwt", "expire_minutes", 1440),
			Issuer:        getValue("JWT_ISSUER", "jwt", "issuer", "go_certhub"),
		},
		Log: LogConfig{
			Level:  getValue("LOG_LEVEL", "log", "level", "info"),
			Format: getValue("LOG_FORMAT", "log", "format", "text"),
		},
		Secret: SecretConfig{
			MasterKey: getValue("SECRET_MASTER_KEY", "secret", "master_key", ""),
		},
		ACME: ACMEConfig{
			UserAgent:          getValue("ACME_USER_AGENT", "acme", "user_agent", "go_certhub"),
			PollTimeoutSec:     getValueInt("ACME_POLL_TIMEOUT_SEC", "acme", "poll_timeout_sec", 120),
			PollInitialSec:     getValueInt("ACME_POLL_INITIAL_SEC", "acme", "poll_initial_sec", 2),
			PollMaxIntervalSec: getValueInt("ACME_POLL_MAX_INTERVAL_SEC", "acme", "poll_max_interval_sec", 30),
			FinalizeTimeoutSec: getValueInt("ACME_FINALIZE_TIMEOUT_SEC", "acme", "finalize_timeout_sec", 90),
			SessionTTLMin:      getValueInt("ACME_SESSION_TTL_MIN", "acme", "session_ttl_min", 60),
			InsecureSkipVerify: getValueBool("ACME_INSECURE_SKIP_VERIFY", "acme", "insecure_skip_verify", false),
		},
		Propagation: PropagationConfig{
			Resolvers:       splitList(getValue("DNS_PROPAGATION_RESOLVERS", "propagation", "resolvers", "8.8.8.8:53,1.1.1.1:53")),
			IntervalSec:     getValueInt("DNS_PROPAGATION_INTERVAL_SEC", "propagation", "interval_sec", 10),
			TimeoutSec:      getValueInt("DNS_PROPAGATION_TIMEOUT_SEC", "propagation", "timeout_sec", 180),
			InitialDelaySec: getValueInt("DNS_PROPAGATION_INITIAL_DELAY_SEC", "propagation", "initial_delay_sec", 0),
		},
		DNS: DNSConfig{
			RetryAttempts:     getValueInt("DNS_RETRY_ATTEMPTS", "dns", "retry_attempts", 4),
			RequestTimeoutSec: getValueInt("DNS_REQUEST_TIMEOUT_SEC", "dns", "request_timeout_sec", 15),
			HuaweiRegion:      getValue("DNS_HUAWEI_REGION", "dns", "huawei_region", "cn-south-1"),
		},
		Sweeper: SweeperConfig{
			Enabled:           getValueBool("CERT_SWEEPER_ENABLED", "sweeper", "enabled", true),
			IntervalSec:       getValueInt("CERT_SWEEPER_INTERVAL_SEC", "sweeper", "interval_sec", 600),
			NotIssuedKeepDays: getValueInt("CERT_NOT_ISSUED_KEEP_DAYS", "sweeper", "not_issued_keep_days", 7),
		},
		Metrics: MetricsConfig{
			Enabled: getValueBool("METRICS_ENABLED", "metrics", "enabled", true),
		},
		CORS: CORSConfig{
			AllowOrigins: splitList(getValue("CORS_ALLOW_ORIGINS", "cors", "allow_origins", "")),
		},
		Migrate:  getValueBool("MIGRATE", "app", "migrate", false),
		HTTPAddr: getValue("HTTP_ADDR", "http", "addr", ":8080"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks required fields
func (c *Config) validate() error {
	if c.MySQL.DSN == "" {
		return fmt.Errorf("MYSQL_DSN is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Secret.MasterKey == "" {
		return fmt.Errorf("SECRET_MASTER_KEY is required")
	}
	if len(c.Secret.MasterKey) < 32 {
		return fmt.Errorf("SECRET_MASTER_KEY must be at least 32 characters")
	}
	if c.ACME.PollTimeoutSec <= 0 {
		return fmt.Errorf("ACME_POLL_TIMEOUT_SEC must be positive")
	}
	return nil
}

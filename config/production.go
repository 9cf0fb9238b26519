// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database   DatabaseConfig   `json:"database"`
	Server     ServerConfig     `json:"server"`
	Security   SecurityConfig   `json:"security"`
	JWT        JWTConfig        `json:"jwt"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Cache      CacheConfig      `json:"cache"`
	Deployment DeploymentConfig `json:"deployment"`
	XMoney     XMoneyConfig     `json:"xmoney"`
	Deposits   DepositsConfig   `json:"deposits"`
	Workers    WorkersConfig    `json:"workers"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryLog    bool          `json:"slow_query_log"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	BodyLimit       int           `json:"body_limit"`
	EnableMetrics   bool          `json:"enable_metrics"`
	TrustedProxies  []string      `json:"trusted_proxies"`
	ProxyHeader     string        `json:"proxy_header"`
}

type SecurityConfig struct {
	AllowedOrigins   []string      `json:"allowed_origins"`
	AllowCredentials bool          `json:"allow_credentials"`
	CORSMaxAge       int           `json:"cors_max_age"`
	AuthRateLimit    int           `json:"auth_rate_limit"`   // requests per minute
	GlobalRateLimit  int           `json:"global_rate_limit"` // requests per minute
	RateLimitWindow  time.Duration `json:"rate_limit_window"`
	BcryptCost       int           `json:"bcrypt_cost"`
}

type JWTConfig struct {
	SecretKey       string        `json:"secret_key"`
	AccessTokenTTL  time.Duration `json:"access_token_ttl"`
	RefreshTokenTTL time.Duration `json:"refresh_token_ttl"`
	Issuer          string        `json:"issuer"`
	Audience        string        `json:"audience"`
}

type LoggingConfig struct {
	Level      string `json:"level"`  // debug, info, warn, error
	Format     string `json:"format"` // json, text
	Output     string `json:"output"` // stdout, file, both
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

type MetricsConfig struct {
	Enabled        bool   `json:"enabled"`
	PrometheusPath string `json:"prometheus_path"`
}

type CacheConfig struct {
	Enabled     bool          `json:"enabled"`
	RedisURL    string        `json:"redis_url"`
	RedisDB     int           `json:"redis_db"`
	RedisPrefix string        `json:"redis_prefix"`
	DefaultTTL  time.Duration `json:"default_ttl"`
}

type DeploymentConfig struct {
	Domain      string `json:"domain"`
	APIDomain   string `json:"api_domain"`
	Environment string `json:"environment"`
	Version     string `json:"version"`
	CommitHash  string `json:"commit_hash"`
	BuildTime   string `json:"build_time"`
}

type XMoneyConfig struct {
	BaseURL       string        `json:"base_url"`
	APIKey        string        `json:"api_key"`
	WebhookSecret string        `json:"webhook_secret"`
	Timeout       time.Duration `json:"timeout"`
	CallbackURL   string        `json:"callback_url"`
	ReturnURL     string        `json:"return_url"`
}

type DepositsConfig struct {
	MinAmountCents int64         `json:"min_amount_cents"`
	MaxAmountCents int64         `json:"max_amount_cents"`
	OrderTTL       time.Duration `json:"order_ttl"`

	// Fee percent per tier
	StandardFeePercent float64 `json:"standard_fee_percent"`
	SilverFeePercent   float64 `json:"silver_fee_percent"`
	GoldFeePercent     float64 `json:"gold_fee_percent"`
	VIPFeePercent      float64 `json:"vip_fee_percent"`
}

type WorkersConfig struct {
	SweepInterval      time.Duration `json:"sweep_interval"`
	SweepBatchSize     int           `json:"sweep_batch_size"`
	ReconcileInterval  time.Duration `json:"reconcile_interval"`
	ReconcileBatchSize int           `json:"reconcile_batch_size"`
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "meridian"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 100),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryLog:    getEnvBool("DB_SLOW_QUERY_LOG", true),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:       getEnvInt("SERVER_BODY_LIMIT", 4*1024*1024), // 4MB
			EnableMetrics:   getEnvBool("SERVER_ENABLE_METRICS", true),
			TrustedProxies:  getEnvStringSlice("SERVER_TRUSTED_PROXIES", []string{"127.0.0.1"}),
			ProxyHeader:     getEnvString("SERVER_PROXY_HEADER", "X-Real-IP"),
		},
		Security: SecurityConfig{
			AllowedOrigins:   getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"https://meridianpay.io", "https://api.meridianpay.io", "https://app.meridianpay.io"}),
			AllowCredentials: getEnvBool("CORS_ALLOW_CREDENTIALS", true),
			CORSMaxAge:       getEnvInt("CORS_MAX_AGE", 86400),
			AuthRateLimit:    getEnvInt("AUTH_RATE_LIMIT", 20),
			GlobalRateLimit:  getEnvInt("GLOBAL_RATE_LIMIT", 2000),
			RateLimitWindow:  getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
			BcryptCost:       getEnvInt("BCRYPT_COST", 12),
		},
		JWT: JWTConfig{
			SecretKey:       getEnvString("JWT_SECRET_KEY", ""),
			AccessTokenTTL:  getEnvDuration("JWT_ACCESS_TOKEN_TTL", 24*time.Hour),
			RefreshTokenTTL: getEnvDuration("JWT_REFRESH_TOKEN_TTL", 7*24*time.Hour),
			Issuer:          getEnvString("JWT_ISSUER", "meridian"),
			Audience:        getEnvString("JWT_AUDIENCE", "meridian-api"),
		},
		Logging: LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			Format:     getEnvString("LOG_FORMAT", "json"),
			Output:     getEnvString("LOG_OUTPUT", "both"),
			FilePath:   getEnvString("LOG_FILE_PATH", "data/meridian.log"),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 30),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
		Metrics: MetricsConfig{
			Enabled:        getEnvBool("METRICS_ENABLED", true),
			PrometheusPath: getEnvString("METRICS_PROMETHEUS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:     getEnvBool("CACHE_ENABLED", true),
			RedisURL:    getEnvString("REDIS_URL", "redis://localhost:6379"),
			RedisDB:     getEnvInt("REDIS_DB", 0),
			RedisPrefix: getEnvString("REDIS_PREFIX", "meridian"),
			DefaultTTL:  getEnvDuration("CACHE_DEFAULT_TTL", 5*time.Minute),
		},
		Deployment: DeploymentConfig{
			Domain:      getEnvString("DOMAIN", "meridianpay.io"),
			APIDomain:   getEnvString("API_DOMAIN", "api.meridianpay.io"),
			Environment: getEnvString("APP_ENV", "production"),
			Version:     getEnvString("APP_VERSION", "1.0.0"),
			CommitHash:  getEnvString("COMMIT_HASH", ""),
			BuildTime:   getEnvString("BUILD_TIME", ""),
		},
		XMoney: XMoneyConfig{
			BaseURL:       getEnvString("XMONEY_BASE_URL", "https://api.xmoney.com"),
			APIKey:        getEnvString("XMONEY_API_KEY", ""),
			WebhookSecret: getEnvString("XMONEY_WEBHOOK_SECRET", ""),
			Timeout:       getEnvDuration("XMONEY_TIMEOUT", 10*time.Second),
			CallbackURL:   getEnvString("XMONEY_CALLBACK_URL", ""),
			ReturnURL:     getEnvString("XMONEY_RETURN_URL", ""),
		},
		Deposits: DepositsConfig{
			MinAmountCents:     int64(getEnvInt("DEPOSIT_MIN_AMOUNT_CENTS", 100)),
			MaxAmountCents:     int64(getEnvInt("DEPOSIT_MAX_AMOUNT_CENTS", 5_000_000)),
			OrderTTL:           getEnvDuration("DEPOSIT_ORDER_TTL", 60*time.Minute),
			StandardFeePercent: getEnvFloat("FEE_PERCENT_STANDARD", 2.0),
			SilverFeePercent:   getEnvFloat("FEE_PERCENT_SILVER", 1.5),
			GoldFeePercent:     getEnvFloat("FEE_PERCENT_GOLD", 1.0),
			VIPFeePercent:      getEnvFloat("FEE_PERCENT_VIP", 0.5),
		},
		Workers: WorkersConfig{
			SweepInterval:      getEnvDuration("SWEEP_INTERVAL", 1*time.Minute),
			SweepBatchSize:     getEnvInt("SWEEP_BATCH_SIZE", 200),
			ReconcileInterval:  getEnvDuration("RECONCILE_INTERVAL", 5*time.Minute),
			ReconcileBatchSize: getEnvInt("RECONCILE_BATCH_SIZE", 100),
		},
	}

	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errs []string

	if cfg.Database.Host == "" {
		errs = append(errs, "database host is required")
	}
	if cfg.Database.Name == "" {
		errs = append(errs, "database name is required")
	}
	if cfg.JWT.SecretKey == "" {
		errs = append(errs, "JWT secret key is required")
	}
	if cfg.XMoney.APIKey == "" {
		errs = append(errs, "xMoney API key is required")
	}
	if cfg.XMoney.WebhookSecret == "" {
		errs = append(errs, "xMoney webhook secret is required")
	}
	if cfg.Deposits.MinAmountCents <= 0 || cfg.Deposits.MaxAmountCents <= cfg.Deposits.MinAmountCents {
		errs = append(errs, "deposit amount bounds are invalid")
	}
	for _, percent := range []float64{
		cfg.Deposits.StandardFeePercent,
		cfg.Deposits.SilverFeePercent,
		cfg.Deposits.GoldFeePercent,
		cfg.Deposits.VIPFeePercent,
	} {
		if percent < 0 || percent > 100 {
			errs = append(errs, "fee percent must be between 0 and 100")
			break
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// loadEnvFile loads variables from a .env file when present
func loadEnvFile() error {
	envFile := getEnvString("ENV_FILE", ".env")
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		return nil
	}

	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])
				if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
					(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
					value = value[1 : len(value)-1]
				}
				if os.Getenv(key) == "" {
					os.Setenv(key, value)
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

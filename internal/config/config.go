package config

import (
	"errors"
	"fmt"
	"os"

	"talentbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Sweep      SweepConfig      `yaml:"sweep"`
	Events     EventsConfig     `yaml:"events"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Google     GoogleConfig     `yaml:"google"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
	HealthCheckPort   int  `yaml:"health_check_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// LedgerConfig tunes the coin economy.
type LedgerConfig struct {
	// WithdrawalMinCoins is the smallest payout a talent may request.
	WithdrawalMinCoins int64 `yaml:"withdrawal_min_coins"`
	// CoinRateNGN is the naira value of one coin on payout instructions.
	CoinRateNGN int64 `yaml:"coin_rate_ngn"`
	// MaxRetry bounds internal retries after an optimistic-lock conflict.
	MaxRetry int `yaml:"max_retry"`
}

// SweepConfig drives the expiration sweep. TTLs are in seconds.
type SweepConfig struct {
	IntervalSeconds   int `yaml:"interval_seconds"`
	PaymentPendingTTL int `yaml:"payment_pending_ttl"`
	VerificationTTL   int `yaml:"verification_ttl"`
}

// EventsConfig drives the outbox delivery worker.
type EventsConfig struct {
	RedisChannel        string `yaml:"redis_channel"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	BatchSize           int    `yaml:"batch_size"`
	MaxAttempts         int    `yaml:"max_attempts"`
}

type TelegramConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BotToken  string `yaml:"bot_token"`
	OpsChatID int64  `yaml:"ops_chat_id"`
	Debug     bool   `yaml:"debug"`
}

type GoogleConfig struct {
	Enabled               bool   `yaml:"enabled"`
	GoogleCredentialsFile string `yaml:"credentials_file"`
	PayoutSpreadSheetID   string `yaml:"payout_spreadsheet_id"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; config values may reference its variables
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return errors.New("telegram bot token is required when telegram is enabled")
	}
	if c.Telegram.Enabled && c.Telegram.OpsChatID == 0 {
		return errors.New("telegram ops chat id is required when telegram is enabled")
	}

	if c.Google.Enabled {
		if c.Google.GoogleCredentialsFile == "" {
			return errors.New("google credentials file is required when google is enabled")
		}
		if c.Google.PayoutSpreadSheetID == "" {
			return errors.New("payout spreadsheet id is required when google is enabled")
		}
	}

	if c.Ledger.WithdrawalMinCoins < 0 {
		return errors.New("withdrawal_min_coins must not be negative")
	}
	if c.Ledger.CoinRateNGN <= 0 {
		return errors.New("coin_rate_ngn must be positive")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 10
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 20
	}

	if c.Ledger.WithdrawalMinCoins == 0 {
		c.Ledger.WithdrawalMinCoins = models.DefaultWithdrawalMin
	}
	if c.Ledger.CoinRateNGN == 0 {
		c.Ledger.CoinRateNGN = models.DefaultCoinRateNGN
	}
	if c.Ledger.MaxRetry == 0 {
		c.Ledger.MaxRetry = models.DefaultConflictRetries
	}

	if c.Sweep.IntervalSeconds == 0 {
		c.Sweep.IntervalSeconds = 60
	}
	if c.Sweep.PaymentPendingTTL == 0 {
		c.Sweep.PaymentPendingTTL = models.DefaultPaymentPendingTTL
	}
	if c.Sweep.VerificationTTL == 0 {
		c.Sweep.VerificationTTL = models.DefaultVerificationTTL
	}

	if c.Events.RedisChannel == "" {
		c.Events.RedisChannel = "talentbook:events"
	}
	if c.Events.PollIntervalSeconds == 0 {
		c.Events.PollIntervalSeconds = 5
	}
	if c.Events.BatchSize == 0 {
		c.Events.BatchSize = models.DefaultOutboxBatch
	}
	if c.Events.MaxAttempts == 0 {
		c.Events.MaxAttempts = 5
	}

	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}

package common

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Portal   PortalConfig
	Storage  StorageConfig
	Log      LogConfig
	Telegram TelegramConfig
}

// PortalConfig holds upstream portal configuration
type PortalConfig struct {
	Login              string
	Password           string
	Contracts          []string
	LoginURL           string
	ReceiptURLTemplate string
	MinRequestInterval time.Duration
	RequestTimeout     time.Duration
}

// StorageConfig holds receipt storage and run ledger configuration
type StorageConfig struct {
	DataRoot  string
	LedgerDSN string
}

// LogConfig holds log sink configuration
type LogConfig struct {
	Path     string
	Level    string
	MaxBytes int64
}

// TelegramConfig holds notification transport configuration
type TelegramConfig struct {
	Token   string
	ChatID  int64
	BaseURL string
	Timeout time.Duration
}

const (
	DefaultLoginURL           = "https://lk.erc-ekb.ru/client/private_office/private_office.htp"
	DefaultReceiptURLTemplate = "https://lk.erc-ekb.ru/erc/client/private_office/private_office.htp?receipt=%s&quitance"
	DefaultTelegramBaseURL    = "https://api.telegram.org"

	// LedgerDisabled turns the run ledger off when used as LEDGER_DSN.
	LedgerDisabled = "off"
)

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	dataRoot := getEnv("DATA_ROOT", ".")
	return &Config{
		Portal: PortalConfig{
			Login:              getEnv("ERC_LOGIN", ""),
			Password:           getEnv("ERC_PASSWORD", ""),
			Contracts:          getEnvAsList("ERC_CONTRACT_NUMBERS"),
			LoginURL:           getEnv("ERC_LOGIN_URL", DefaultLoginURL),
			ReceiptURLTemplate: getEnv("ERC_RECEIPT_URL_TEMPLATE", DefaultReceiptURLTemplate),
			MinRequestInterval: getEnvAsDuration("ERC_MIN_INTERVAL", 2*time.Second),
			RequestTimeout:     getEnvAsDuration("ERC_HTTP_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			DataRoot:  dataRoot,
			LedgerDSN: getEnv("LEDGER_DSN", filepath.Join(dataRoot, "ledger.db")),
		},
		Log: LogConfig{
			Path:     getEnv("LOG_PATH", "logs"),
			Level:    getEnv("LOG_LEVEL", "debug"),
			MaxBytes: int64(getEnvAsInt("LOG_MAX_BYTES", 10*1024*1024)),
		},
		Telegram: TelegramConfig{
			Token:   getEnv("TELEGRAM_TOKEN", ""),
			ChatID:  getEnvAsInt64("TELEGRAM_CHAT_ID", 0),
			BaseURL: getEnv("TELEGRAM_API_URL", DefaultTelegramBaseURL),
			Timeout: getEnvAsDuration("TELEGRAM_TIMEOUT", 30*time.Second),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated value, dropping blank items.
func getEnvAsList(key string) []string {
	return SplitList(os.Getenv(key))
}

// SplitList splits s on commas, trimming items and dropping empty ones.
func SplitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// NotificationsEnabled reports whether Telegram credentials are present.
func (c *Config) NotificationsEnabled() bool {
	return c.Telegram.Token != "" && c.Telegram.ChatID != 0
}

// LedgerEnabled reports whether a run ledger should be opened.
func (c *Config) LedgerEnabled() bool {
	return c.Storage.LedgerDSN != "" && !strings.EqualFold(c.Storage.LedgerDSN, LedgerDisabled)
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator().
		Field("ERC_LOGIN", c.Portal.Login, Required).
		Field("ERC_PASSWORD", c.Portal.Password, Required).
		Field("ERC_CONTRACT_NUMBERS", c.Portal.Contracts, NonEmptyList).
		Field("DATA_ROOT", c.Storage.DataRoot, Required).
		Field("ERC_RECEIPT_URL_TEMPLATE", c.Portal.ReceiptURLTemplate, Required, HasPlaceholder)
	for _, contract := range c.Portal.Contracts {
		v.Field("ERC_CONTRACT_NUMBERS", contract, ContractID)
	}
	if v.HasErrors() {
		return NewAppError(CodeConfig, v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}

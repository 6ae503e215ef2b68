package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Validator *validator.Validate
}

// AppConfig represents the application configuration
type AppConfig struct {
	Port               string `validate:"required,numeric"`
	AppURL             string `validate:"required,url"`
	APIKey             string
	Environment        string
	LoggingLevel       string
	LogFormat          string `validate:"oneof=json console"`
	OpenSearchURL      string `validate:"omitempty,url"`
	OpenSearchUser     string
	OpenSearchPass     string
	OpenSearchInsecure bool
	EnableLogging      bool
	RateLimitPerMinute int `validate:"gte=0"`
	IPWhitelist        []string
}

var (
	instance          *Config
	appConfigInstance *AppConfig
	instanceOnce      sync.Once
	appConfigMu       sync.Mutex
)

func App() *Config {
	instanceOnce.Do(func() {
		instance = &Config{
			Validator: validator.New(),
		}
	})
	return instance
}

// LoadEnv loads a .env file into the process environment. A missing file is
// not an error; variables already set are never overridden.
func LoadEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	for _, name := range filenames {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// GetAppConfig returns the application configuration
func GetAppConfig() *AppConfig {
	appConfigMu.Lock()
	defer appConfigMu.Unlock()

	if appConfigInstance == nil {
		appConfigInstance = loadAppConfig()
	}
	return appConfigInstance
}

// ResetAppConfig drops the cached configuration so the next GetAppConfig
// call reads the environment again
func ResetAppConfig() {
	appConfigMu.Lock()
	appConfigInstance = nil
	appConfigMu.Unlock()
}

func loadAppConfig() *AppConfig {
	port := GetEnv("APP_PORT", "9999")
	return &AppConfig{
		Port:               port,
		AppURL:             GetEnv("APP_URL", "http://localhost:"+port),
		APIKey:             GetEnv("API_KEY", ""),
		Environment:        GetEnv("ENVIRONMENT", "development"),
		LoggingLevel:       GetEnv("LOGGING_LEVEL", "info"),
		LogFormat:          strings.ToLower(GetEnv("LOG_FORMAT", "json")),
		OpenSearchURL:      GetEnv("OPENSEARCH_URL", "http://localhost:9200"),
		OpenSearchUser:     GetEnv("OPENSEARCH_USER", ""),
		OpenSearchPass:     GetEnv("OPENSEARCH_PASSWORD", ""),
		OpenSearchInsecure: GetBoolEnv("OPENSEARCH_INSECURE", false),
		EnableLogging:      GetBoolEnv("ENABLE_OPENSEARCH_LOGGING", false),
		RateLimitPerMinute: GetIntEnv("RATE_LIMIT_PER_MINUTE", 100),
		IPWhitelist:        GetListEnv("IP_WHITELIST"),
	}
}

// Validate checks the configuration with the shared validator
func (c *AppConfig) Validate() error {
	return App().Validator.Struct(c)
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetBoolEnv returns the boolean value of an environment variable or a default value
func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetIntEnv returns the integer value of an environment variable or a default value
func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetListEnv splits a comma separated environment variable, dropping empty items
func GetListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	OpenAI       OpenAIConfig
	Telegram     TelegramConfig
	Server       ServerConfig
	Log          LogConfig
	PracticeFile string
}

type TelegramConfig struct {
	Token string
	Debug bool
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type LogConfig struct {
	Level string
	File  string
}

// LoadAppConfig reads the process configuration from the environment.
func LoadAppConfig() *AppConfig {
	return &AppConfig{
		OpenAI: *LoadOpenAIConfig(),
		Telegram: TelegramConfig{
			Token: getEnv("TELEGRAM_BOT_TOKEN", ""),
			Debug: getEnvAsBool("TELEGRAM_DEBUG", false),
		},
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 150*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
		PracticeFile: getEnv("PRACTICE_CONFIG", "config/practice.yaml"),
	}
}

// Validate reports configuration that must stop the process at startup.
func (c *AppConfig) Validate() error {
	if err := c.OpenAI.ValidateConfig(); err != nil {
		return err
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535")
	}
	return nil
}

// writeTimeoutMargin covers request handling around the model calls.
const writeTimeoutMargin = 10 * time.Second

// RequiredWriteTimeout is the longest a session request can spend waiting for
// the model: one call per attempt, including every repair round.
func (c *AppConfig) RequiredWriteTimeout(practice *Config) time.Duration {
	repairs := practice.Generation.RepairAttempts
	if practice.Grading.RepairAttempts > repairs {
		repairs = practice.Grading.RepairAttempts
	}
	return c.OpenAI.Timeout*time.Duration(1+repairs) + writeTimeoutMargin
}

// FitWriteTimeout raises Server.WriteTimeout to RequiredWriteTimeout when it is
// shorter and reports whether it did.
func (c *AppConfig) FitWriteTimeout(practice *Config) bool {
	required := c.RequiredWriteTimeout(practice)
	if c.Server.WriteTimeout >= required {
		return false
	}
	c.Server.WriteTimeout = required
	return true
}

// TelegramEnabled reports whether the Telegram front end should run.
func (c *AppConfig) TelegramEnabled() bool {
	return c.Telegram.Token != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
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

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

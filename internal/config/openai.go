package config

import (
	"fmt"
	"time"
)

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// LoadOpenAIConfig reads the API credentials and transport settings from the environment.
// Model and sampling settings live in the practice YAML, per operation.
func LoadOpenAIConfig() *OpenAIConfig {
	return &OpenAIConfig{
		APIKey:  getEnv("OPENAI_API_KEY", ""),
		BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		Timeout: getEnvAsDuration("OPENAI_TIMEOUT", 120*time.Second),
	}
}

// ValidateConfig fails when the credential is missing; that is fatal at startup.
func (c *OpenAIConfig) ValidateConfig() error {
	if c.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}

	if c.BaseURL == "" {
		return fmt.Errorf("OPENAI_BASE_URL must not be empty")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("OPENAI_TIMEOUT must be positive")
	}

	return nil
}

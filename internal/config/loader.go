package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"interview-practice/internal/interview"
)

// Load reads the practice configuration from a YAML file on top of Default().
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	return Parse(data)
}

// Parse decodes YAML practice configuration on top of Default() and validates it.
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func validateConfig(config *Config) error {
	iv := config.Interview
	if iv.Role == "" {
		return fmt.Errorf("interview.role must not be empty")
	}
	if iv.Subject == "" {
		return fmt.Errorf("interview.subject must not be empty")
	}
	if iv.Persona == "" {
		return fmt.Errorf("interview.persona must not be empty")
	}
	if iv.Followups < 0 {
		return fmt.Errorf("interview.followups must not be negative")
	}
	if iv.Clarifications < 0 {
		return fmt.Errorf("interview.clarifications must not be negative")
	}
	if _, err := interview.ParseLevel(iv.DefaultLevel); err != nil {
		return fmt.Errorf("interview.default_level: %w", err)
	}

	if err := validateModel("generation", config.Generation); err != nil {
		return err
	}
	if err := validateModel("grading", config.Grading); err != nil {
		return err
	}

	if config.Speech.Enabled {
		if config.Speech.TTSModel == "" || config.Speech.Voice == "" || config.Speech.TranscriptionModel == "" {
			return fmt.Errorf("speech.tts_model, speech.voice and speech.transcription_model are required when speech is enabled")
		}
	}

	for model, row := range config.Pricing {
		if row.Input < 0 || row.Output < 0 || row.CachedInput < 0 {
			return fmt.Errorf("pricing for %s must not be negative", model)
		}
	}

	if config.Sessions.IdleTimeout <= 0 {
		return fmt.Errorf("sessions.idle_timeout must be positive")
	}
	if config.Sessions.CleanupInterval <= 0 {
		return fmt.Errorf("sessions.cleanup_interval must be positive")
	}

	return nil
}

func validateModel(section string, m ModelSettings) error {
	if m.Model == "" {
		return fmt.Errorf("%s.model must not be empty", section)
	}
	if m.Temperature < 0 || m.Temperature > 2 {
		return fmt.Errorf("%s.temperature must be between 0 and 2", section)
	}
	if m.MaxTokens <= 0 {
		return fmt.Errorf("%s.max_tokens must be positive", section)
	}
	if m.RepairAttempts < 0 || m.RepairAttempts > 3 {
		return fmt.Errorf("%s.repair_attempts must be between 0 and 3", section)
	}
	return nil
}

// Level returns the configured starting level.
func (c *Config) Level() interview.Level {
	level, err := interview.ParseLevel(c.Interview.DefaultLevel)
	if err != nil {
		return interview.LevelMedium
	}
	return level
}

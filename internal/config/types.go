package config

import "time"

// Config is the practice configuration loaded from YAML.
type Config struct {
	Interview  InterviewConfig     `yaml:"interview"`
	Generation ModelSettings       `yaml:"generation"`
	Grading    ModelSettings       `yaml:"grading"`
	Speech     SpeechConfig        `yaml:"speech"`
	Pricing    map[string]PriceRow `yaml:"pricing"`
	Sessions   SessionsConfig      `yaml:"sessions"`
}

// InterviewConfig holds the fixed parameters of every generated question.
type InterviewConfig struct {
	Role           string   `yaml:"role"`
	Subject        string   `yaml:"subject"`
	Persona        string   `yaml:"persona"`
	Followups      int      `yaml:"followups"`
	Clarifications int      `yaml:"clarifications"`
	DefaultLevel   string   `yaml:"default_level"`
	Subtopics      []string `yaml:"subtopics"`
}

// ModelSettings configures one kind of model call.
type ModelSettings struct {
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	RepairAttempts int     `yaml:"repair_attempts"`
}

type SpeechConfig struct {
	Enabled            bool   `yaml:"enabled"`
	TTSModel           string `yaml:"tts_model"`
	Voice              string `yaml:"voice"`
	TranscriptionModel string `yaml:"transcription_model"`
}

// PriceRow is the USD cost per one million tokens.
type PriceRow struct {
	Input       float64 `yaml:"input"`
	Output      float64 `yaml:"output"`
	CachedInput float64 `yaml:"cached_input"`
}

type SessionsConfig struct {
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// Default returns the configuration used when a key is absent from the file.
func Default() *Config {
	return &Config{
		Interview: InterviewConfig{
			Role:           "Software Engineer",
			Subject:        "iOS - Swift programming",
			Persona:        "friendly",
			Followups:      2,
			Clarifications: 1,
			DefaultLevel:   "Medium",
		},
		Generation: ModelSettings{
			Model:          "gpt-4.1",
			Temperature:    0.7,
			MaxTokens:      800,
			RepairAttempts: 1,
		},
		Grading: ModelSettings{
			Model:          "gpt-4.1",
			Temperature:    0.2,
			MaxTokens:      900,
			RepairAttempts: 1,
		},
		Speech: SpeechConfig{
			TTSModel:           "gpt-4o-mini-tts",
			Voice:              "alloy",
			TranscriptionModel: "whisper-1",
		},
		Pricing: map[string]PriceRow{
			"gpt-4.1":      {Input: 3.00, Output: 12.00, CachedInput: 0.75},
			"gpt-4.1-mini": {Input: 0.80, Output: 3.20, CachedInput: 0.20},
		},
		Sessions: SessionsConfig{
			IdleTimeout:     24 * time.Hour,
			CleanupInterval: time.Hour,
		},
	}
}

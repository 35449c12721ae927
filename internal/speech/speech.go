package speech

import (
	"context"
	"fmt"

	"interview-practice/internal/api"
	"interview-practice/internal/config"
)

// Synthesizer turns question text into playable audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Transcriber turns a recorded answer into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Nop produces no audio and no transcripts.
type Nop struct{}

func (Nop) Synthesize(context.Context, string) ([]byte, error) {
	return nil, nil
}

func (Nop) Transcribe(context.Context, []byte, string) (string, error) {
	return "", nil
}

// Client is the subset of the OpenAI client used for audio.
type Client interface {
	Speech(ctx context.Context, req api.SpeechRequest) ([]byte, error)
	Transcribe(ctx context.Context, req api.TranscriptionRequest) (string, error)
}

// OpenAI reads questions aloud and transcribes answers through the audio endpoints.
type OpenAI struct {
	client             Client
	ttsModel           string
	voice              string
	transcriptionModel string
}

var (
	_ Synthesizer = Nop{}
	_ Transcriber = Nop{}
	_ Synthesizer = (*OpenAI)(nil)
	_ Transcriber = (*OpenAI)(nil)
)

func NewOpenAI(client Client, cfg config.SpeechConfig) *OpenAI {
	return &OpenAI{
		client:             client,
		ttsModel:           cfg.TTSModel,
		voice:              cfg.Voice,
		transcriptionModel: cfg.TranscriptionModel,
	}
}

func (o *OpenAI) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, nil
	}
	audio, err := o.client.Speech(ctx, api.SpeechRequest{Model: o.ttsModel, Voice: o.voice, Input: text})
	if err != nil {
		return nil, fmt.Errorf("synthesizing speech: %w", err)
	}
	return audio, nil
}

func (o *OpenAI) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}
	if filename == "" {
		filename = "answer.ogg"
	}
	text, err := o.client.Transcribe(ctx, api.TranscriptionRequest{Model: o.transcriptionModel, Filename: filename, Audio: audio})
	if err != nil {
		return "", fmt.Errorf("transcribing recording: %w", err)
	}
	return text, nil
}

// New returns the OpenAI implementation when speech is enabled and Nop otherwise.
func New(client Client, cfg config.SpeechConfig) (Synthesizer, Transcriber) {
	if !cfg.Enabled {
		return Nop{}, Nop{}
	}
	o := NewOpenAI(client, cfg)
	return o, o
}

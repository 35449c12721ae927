package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"interview-practice/internal/config"
)

// Client talks to the OpenAI REST API (or any compatible endpoint).
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// CompletionRequest is a single, history-free prompt.
type CompletionRequest struct {
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Completion is the text of the first choice plus token usage.
type Completion struct {
	Text  string
	Model string
	Usage Usage
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string    `json:"id"`
	Model   string    `json:"model"`
	Choices []Choice  `json:"choices"`
	Usage   Usage     `json:"usage"`
	Error   *APIError `json:"error,omitempty"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type Usage struct {
	PromptTokens        int           `json:"prompt_tokens"`
	CompletionTokens    int           `json:"completion_tokens"`
	TotalTokens         int           `json:"total_tokens"`
	PromptTokensDetails *TokenDetails `json:"prompt_tokens_details,omitempty"`
}

type TokenDetails struct {
	CachedTokens int `json:"cached_tokens"`
}

// CachedTokens returns the cached share of the prompt tokens, if reported.
func (u Usage) CachedTokens() int {
	if u.PromptTokensDetails == nil {
		return 0
	}
	return u.PromptTokensDetails.CachedTokens
}

// APIError is a failure reported by the API itself.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       string `json:"code"`
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("OpenAI API error: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("OpenAI API error: %s", e.Message)
}

func NewClient(cfg config.OpenAIConfig) *Client {
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Complete sends one chat completion request with the prompt as the only user message.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	reqBody := chatRequest{
		Model: req.Model,
		Messages: []Message{
			{Role: "user", Content: req.Prompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	body, err := c.postJSON(ctx, "/chat/completions", reqBody)
	if err != nil {
		return nil, err
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("error unmarshaling response: %w", err)
	}

	if chatResp.Error != nil {
		return nil, chatResp.Error
	}

	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from OpenAI API")
	}

	return &Completion{
		Text:  chatResp.Choices[0].Message.Content,
		Model: chatResp.Model,
		Usage: chatResp.Usage,
	}, nil
}

// SpeechRequest asks for the text to be read aloud.
type SpeechRequest struct {
	Model string
	Voice string
	Input string
}

// Speech returns MP3 audio for the input text.
func (c *Client) Speech(ctx context.Context, req SpeechRequest) ([]byte, error) {
	reqBody := map[string]string{
		"model":           req.Model,
		"voice":           req.Voice,
		"input":           req.Input,
		"response_format": "mp3",
	}
	return c.postJSON(ctx, "/audio/speech", reqBody)
}

// TranscriptionRequest carries raw audio to be turned into text.
type TranscriptionRequest struct {
	Model    string
	Filename string
	Audio    []byte
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads the audio as multipart form data and returns the text.
func (c *Client) Transcribe(ctx context.Context, req TranscriptionRequest) (string, error) {
	var form bytes.Buffer
	writer := newMultipartWriter(&form)
	if err := writer.WriteField("model", req.Model); err != nil {
		return "", fmt.Errorf("error writing form: %w", err)
	}
	if err := writer.WriteFile("file", req.Filename, req.Audio); err != nil {
		return "", fmt.Errorf("error writing form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("error writing form: %w", err)
	}

	body, err := c.post(ctx, "/audio/transcriptions", writer.FormDataContentType(), &form)
	if err != nil {
		return "", err
	}

	var resp transcriptionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("error unmarshaling response: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}
	return c.post(ctx, path, "application/json", bytes.NewReader(jsonBody))
}

func (c *Client) post(ctx context.Context, path, contentType string, payload io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, payload)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp.StatusCode, body)
	}

	return body, nil
}

func parseAPIError(status int, body []byte) error {
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		envelope.Error.StatusCode = status
		return envelope.Error
	}
	return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}

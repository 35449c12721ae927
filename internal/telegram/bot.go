package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	defaultAPIURL  = "https://api.telegram.org"
	maxMessageSize = 4096
	pollTimeout    = 30
)

// Bot is a minimal Telegram Bot API client.
type Bot struct {
	token   string
	baseURL string
	fileURL string
	client  *http.Client
	logger  *zap.Logger
}

type BotOption func(*Bot)

// WithAPIURL points the bot at another Bot API server.
func WithAPIURL(apiURL string) BotOption {
	return func(b *Bot) {
		b.baseURL = fmt.Sprintf("%s/bot%s", apiURL, b.token)
		b.fileURL = fmt.Sprintf("%s/file/bot%s", apiURL, b.token)
	}
}

func WithBotLogger(l *zap.Logger) BotOption {
	return func(b *Bot) { b.logger = l }
}

func New(token string, opts ...BotOption) *Bot {
	b := &Bot{
		token:   token,
		baseURL: fmt.Sprintf("%s/bot%s", defaultAPIURL, token),
		fileURL: fmt.Sprintf("%s/file/bot%s", defaultAPIURL, token),
		client:  &http.Client{Timeout: (pollTimeout + 10) * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// GetUpdates long-polls for updates starting at offset.
func (b *Bot) GetUpdates(ctx context.Context, offset int) ([]Update, error) {
	url := fmt.Sprintf("%s/getUpdates?offset=%d&timeout=%d", b.baseURL, offset, pollTimeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating getUpdates request: %w", err)
	}
	body, err := b.do(req)
	if err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}

	var response GetUpdatesResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("error parsing getUpdates JSON: %w", err)
	}
	if !response.OK {
		return nil, fmt.Errorf("Telegram API returned an error: %s", response.Description)
	}

	return response.Result, nil
}

// SendMessage sends Markdown text. Use SendText for model-generated content.
func (b *Bot) SendMessage(chatID int64, text string) error {
	return b.send(chatID, text, "Markdown")
}

// SendText sends plain text, split into several messages when too long.
func (b *Bot) SendText(chatID int64, text string) error {
	for _, chunk := range splitMessage(text, maxMessageSize) {
		if err := b.send(chatID, chunk, ""); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) SendFormattedMessage(chatID int64, format string, args ...interface{}) error {
	return b.SendMessage(chatID, fmt.Sprintf(format, args...))
}

func (b *Bot) send(chatID int64, text, parseMode string) error {
	request := SendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: parseMode,
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("error marshaling sendMessage request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, b.baseURL+"/sendMessage", bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("error creating sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := b.do(req)
	if err != nil {
		return fmt.Errorf("sendMessage: %w", err)
	}

	var response SendMessageResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return fmt.Errorf("error parsing sendMessage response: %w", err)
	}
	if !response.OK {
		return fmt.Errorf("Telegram API rejected the message: %s", response.Description)
	}

	return nil
}

// SendVoice uploads audio as a voice message.
func (b *Bot) SendVoice(ctx context.Context, chatID int64, audio []byte, filename string) error {
	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	if err := writer.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return fmt.Errorf("error writing sendVoice form: %w", err)
	}
	part, err := writer.CreateFormFile("voice", filename)
	if err != nil {
		return fmt.Errorf("error writing sendVoice form: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return fmt.Errorf("error writing sendVoice form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("error writing sendVoice form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/sendVoice", &form)
	if err != nil {
		return fmt.Errorf("error creating sendVoice request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	body, err := b.do(req)
	if err != nil {
		return fmt.Errorf("sendVoice: %w", err)
	}

	var response SendMessageResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return fmt.Errorf("error parsing sendVoice response: %w", err)
	}
	if !response.OK {
		return fmt.Errorf("Telegram API rejected the voice message: %s", response.Description)
	}
	return nil
}

// GetFile resolves a file id to a downloadable path.
func (b *Bot) GetFile(ctx context.Context, fileID string) (*File, error) {
	url := fmt.Sprintf("%s/getFile?file_id=%s", b.baseURL, fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating getFile request: %w", err)
	}
	body, err := b.do(req)
	if err != nil {
		return nil, fmt.Errorf("getFile: %w", err)
	}

	var response GetFileResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("error parsing getFile response: %w", err)
	}
	if !response.OK || response.Result == nil {
		return nil, fmt.Errorf("Telegram API could not resolve file: %s", response.Description)
	}
	return response.Result, nil
}

// DownloadFile fetches the contents of a file returned by GetFile.
func (b *Bot) DownloadFile(ctx context.Context, filePath string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.fileURL+"/"+filePath, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating download request: %w", err)
	}
	data, err := b.do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", filePath, err)
	}
	return data, nil
}

func (b *Bot) do(req *http.Request) ([]byte, error) {
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && len(body) == 0 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

// StartPolling receives updates until ctx is done and hands each one to handler
// in its own goroutine.
func (b *Bot) StartPolling(ctx context.Context, handler func(Update)) error {
	offset := 0

	for {
		updates, err := b.GetUpdates(ctx, offset)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ctx.Err()
			}
			b.logger.Warn("failed to get updates", zap.Error(err))
			if !sleep(ctx, 5*time.Second) {
				return ctx.Err()
			}
			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			go handler(update)
		}

		if len(updates) == 0 && !sleep(ctx, time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// splitMessage cuts text into chunks of at most size bytes, preferring line breaks
// and never splitting a UTF-8 sequence.
func splitMessage(text string, size int) []string {
	if len(text) <= size {
		return []string{text}
	}

	var chunks []string
	for len(text) > size {
		cut := strings.LastIndexByte(text[:size], '\n')
		if cut <= 0 {
			cut = size
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
		if len(text) > 0 && text[0] == '\n' {
			text = text[1:]
		}
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

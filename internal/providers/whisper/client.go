package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tellerdesk/internal/domain"
)

// Config controls the whisper transcription endpoint.
type Config struct {
	BaseURL  string
	Language string
	Timeout  time.Duration
}

// Client implements ports.Transcriber against a whisper HTTP server. Each
// call is a single POST; the server holds the model, this side holds
// nothing between calls.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient builds a transcription client with config defaults applied.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:9000"
	}
	if cfg.Language == "" {
		cfg.Language = "id"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type transcribeResponse struct {
	Text string `json:"text"`
}

// Transcribe posts one audio chunk and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, audio []byte, format domain.AudioFormat, sampleRate int) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("empty audio payload")
	}

	url := fmt.Sprintf("%s/transcribe?language=%s&format=%s&sample_rate=%d",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Language, string(format), sampleRate)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("transcribe status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return strings.TrimSpace(parsed.Text), nil
}

package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/carlmjohnson/requests"
)

// Client talks to a streaming speech synthesis service. The service returns a
// chunked WAV body that starts playing long before synthesis finishes, so the
// response is consumed incrementally with net/http rather than buffered whole.
type Client struct {
	baseURL        string
	apiKey         string
	firstFrameWait time.Duration
	fallbackRate   int
	httpClient     *http.Client
}

func NewClient(baseURL, apiKey string, firstFrameWait time.Duration, fallbackRate int) *Client {
	if firstFrameWait <= 0 {
		firstFrameWait = 8 * time.Second
	}
	if fallbackRate <= 0 {
		fallbackRate = 24000
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		firstFrameWait: firstFrameWait,
		fallbackRate:   fallbackRate,
		httpClient:     &http.Client{},
	}
}

type speechRequest struct {
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// Stream starts synthesis of text and returns a frame stream at 8 kHz. The
// request itself is confirmed before returning; audio arrives on Frames().
func (c *Client) Stream(ctx context.Context, text, voice string) (*Stream, error) {
	payload, err := sonic.Marshal(speechRequest{
		Input:          text,
		Voice:          voice,
		ResponseFormat: "wav",
	})
	if err != nil {
		return nil, fmt.Errorf("encode synthesis request: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodPost,
		c.baseURL+"/v1/audio/speech/stream", bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("synthesis request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("synthesis request: unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	s := newStream(cancel)
	go s.consume(streamCtx, resp.Body, c.fallbackRate, c.firstFrameWait)
	return s, nil
}

// Health probes the service liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := requests.URL(c.baseURL + "/healthz").Fetch(ctx); err != nil {
		return fmt.Errorf("tts health: %w", err)
	}
	return nil
}

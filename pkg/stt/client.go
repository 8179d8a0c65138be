package stt

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"

	"github.com/LingByte/LingBridge/pkg/audio"
)

// Client talks to a speech recognition service exposing a multipart
// /transcribe endpoint. The service contract is a WAV upload in, a JSON
// transcript out.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: timeout,
	}
}

type transcribeResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads one utterance of 8 kHz PCM and returns the recognized
// text. An empty transcript is not an error; the caller decides what a
// silent result means.
func (c *Client) Transcribe(ctx context.Context, pcm []int16) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("audio_file", "utterance.wav")
	if err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	if _, err := fw.Write(audio.BuildWAV(pcm, audio.SampleRate)); err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out transcribeResponse
	builder := requests.URL(c.baseURL + "/transcribe").
		BodyBytes(body.Bytes()).
		ContentType(mw.FormDataContentType()).
		ToJSON(&out)
	if c.apiKey != "" {
		builder = builder.Bearer(c.apiKey)
	}
	if err := builder.Fetch(ctx); err != nil {
		return "", fmt.Errorf("transcribe request: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

// Health probes the service liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := requests.URL(c.baseURL + "/healthz").Fetch(ctx); err != nil {
		return fmt.Errorf("stt health: %w", err)
	}
	return nil
}

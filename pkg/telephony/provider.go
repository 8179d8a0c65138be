package telephony

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
)

// DialRequest describes an outbound call to place through the provider.
type DialRequest struct {
	ToNumber     string
	FromNumber   string
	ConnectionID string
	StreamURL    string // websocket URL the provider connects the media stream to
	TimeoutSecs  int
}

// Provider is the REST control surface of a telephony provider: place calls,
// answer inbound ones and tear them down. Media flows separately over the
// stream websocket.
type Provider interface {
	Dial(ctx context.Context, req DialRequest) (callControlID string, err error)
	Answer(ctx context.Context, callControlID, streamURL string) error
	Hangup(ctx context.Context, callControlID string) error
}

// RESTProvider implements Provider against a Telnyx-compatible call control
// API.
type RESTProvider struct {
	baseURL string
	apiKey  string
	timeout time.Duration
}

func NewRESTProvider(baseURL, apiKey string) *RESTProvider {
	return &RESTProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: 15 * time.Second,
	}
}

type dialPayload struct {
	To                      string `json:"to"`
	From                    string `json:"from"`
	ConnectionID            string `json:"connection_id"`
	StreamURL               string `json:"stream_url"`
	StreamTrack             string `json:"stream_track"`
	StreamBidirectionalMode string `json:"stream_bidirectional_mode"`
	TimeoutSecs             int    `json:"timeout_secs,omitempty"`
}

type dialResponse struct {
	Data struct {
		CallControlID string `json:"call_control_id"`
	} `json:"data"`
}

// Dial places the call and returns the provider's call control id.
func (p *RESTProvider) Dial(ctx context.Context, req DialRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	payload := dialPayload{
		To:                      req.ToNumber,
		From:                    req.FromNumber,
		ConnectionID:            req.ConnectionID,
		StreamURL:               req.StreamURL,
		StreamTrack:             "both_tracks",
		StreamBidirectionalMode: "rtp",
		TimeoutSecs:             req.TimeoutSecs,
	}

	var out dialResponse
	err := requests.URL(p.baseURL + "/v2/calls").
		Bearer(p.apiKey).
		BodyJSON(&payload).
		ToJSON(&out).
		Fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", req.ToNumber, err)
	}
	if out.Data.CallControlID == "" {
		return "", fmt.Errorf("dial %s: provider returned no call control id", req.ToNumber)
	}
	return out.Data.CallControlID, nil
}

// Answer accepts an inbound call and points its media stream at our
// websocket.
func (p *RESTProvider) Answer(ctx context.Context, callControlID, streamURL string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	payload := map[string]any{
		"stream_url":                streamURL,
		"stream_track":              "both_tracks",
		"stream_bidirectional_mode": "rtp",
	}
	err := requests.URL(p.baseURL + "/v2/calls/" + callControlID + "/actions/answer").
		Bearer(p.apiKey).
		BodyJSON(payload).
		Fetch(ctx)
	if err != nil {
		return fmt.Errorf("answer %s: %w", callControlID, err)
	}
	return nil
}

// Hangup asks the provider to end the call. Safe to call after the far end
// already hung up; the provider treats that as a no-op failure we ignore at
// the call site.
func (p *RESTProvider) Hangup(ctx context.Context, callControlID string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := requests.URL(p.baseURL + "/v2/calls/" + callControlID + "/actions/hangup").
		Bearer(p.apiKey).
		BodyJSON(map[string]any{}).
		Fetch(ctx)
	if err != nil {
		return fmt.Errorf("hangup %s: %w", callControlID, err)
	}
	return nil
}

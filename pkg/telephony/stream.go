package telephony

import (
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// Media stream event names as the provider sends them.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
	EventClear     = "clear"
	EventMark      = "mark"
)

// Event is one JSON message on the media stream websocket. One media event
// flows each frame interval in each direction, so the hot path uses sonic.
type Event struct {
	Event    string        `json:"event"`
	StreamID string        `json:"stream_id,omitempty"`
	Start    *StartPayload `json:"start,omitempty"`
	Media    *MediaPayload `json:"media,omitempty"`
	Mark     *MarkPayload  `json:"mark,omitempty"`
}

// StartPayload carries stream metadata from the provider's start event.
type StartPayload struct {
	CallControlID string       `json:"call_control_id,omitempty"`
	From          string       `json:"from,omitempty"`
	To            string       `json:"to,omitempty"`
	MediaFormat   *MediaFormat `json:"media_format,omitempty"`
}

// MediaFormat describes the negotiated codec of the stream.
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// MediaPayload carries one frame of base64 codec bytes.
type MediaPayload struct {
	Payload string `json:"payload"`
}

// MarkPayload labels a position in the outbound stream.
type MarkPayload struct {
	Name string `json:"name"`
}

// EncodeEvent marshals an event for the wire.
func EncodeEvent(ev *Event) ([]byte, error) {
	return sonic.Marshal(ev)
}

// DecodeEvent parses a wire message.
func DecodeEvent(data []byte) (*Event, error) {
	var ev Event
	if err := sonic.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode media event: %w", err)
	}
	return &ev, nil
}

// MediaPayloadBytes decodes the base64 audio of a media event.
func (e *Event) MediaPayloadBytes() ([]byte, error) {
	if e.Media == nil {
		return nil, fmt.Errorf("event %q has no media payload", e.Event)
	}
	data, err := base64.StdEncoding.DecodeString(e.Media.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode media payload: %w", err)
	}
	return data, nil
}

// MediaConn wraps a websocket carrying media stream events. Reads are owned
// by a single goroutine; writes are serialized with a mutex because the
// paced sender and control paths write concurrently.
type MediaConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func NewMediaConn(conn *websocket.Conn) *MediaConn {
	return &MediaConn{conn: conn}
}

// ReadEvent blocks for the next event from the provider.
func (c *MediaConn) ReadEvent() (*Event, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return DecodeEvent(data)
}

// WriteEvent sends one event to the provider.
func (c *MediaConn) WriteEvent(ev *Event) error {
	data, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// SendMedia sends one frame of wire-format audio.
func (c *MediaConn) SendMedia(streamID string, payload []byte) error {
	return c.WriteEvent(&Event{
		Event:    EventMedia,
		StreamID: streamID,
		Media:    &MediaPayload{Payload: base64.StdEncoding.EncodeToString(payload)},
	})
}

// SendClear asks the provider to drop its buffered outbound audio, used on
// interruption so queued playback stops at the far end too.
func (c *MediaConn) SendClear(streamID string) error {
	return c.WriteEvent(&Event{Event: EventClear, StreamID: streamID})
}

// Close tears down the websocket.
func (c *MediaConn) Close() error {
	return c.conn.Close()
}

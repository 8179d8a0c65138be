package call

import (
	"context"

	"github.com/LingByte/LingBridge/pkg/audio"
	"github.com/LingByte/LingBridge/pkg/llm"
	"github.com/LingByte/LingBridge/pkg/telephony"
)

// All session coordination flows through one event channel owned by the
// session goroutine. Reader, sender, governor and per-turn workers only post.
type event interface{}

type evStreamStarted struct {
	streamID string
	start    *telephony.StartPayload
}

// evBeginGreeting fires after the initial delay of keepalive silence.
type evBeginGreeting struct{}

type evMediaFrame struct {
	pcm []int16
}

type evTransportClosed struct {
	err error
}

type evTranscript struct {
	text string
	err  error
}

type evReply struct {
	reply llm.Reply
	err   error
}

// evPlaybackDone fires when the last frame of a playout generation was paced
// onto the wire.
type evPlaybackDone struct {
	gen uint64
}

type evSynthesisFailed struct {
	gen uint64
	err error
}

type evGovernorExpired struct{}

// evGraceExpired fires when a reply deferred at the duration limit has used
// up the grace window without finishing.
type evGraceExpired struct{}

type evHardStop struct{}

// evHangupRequested comes from outside the session (webhook or shutdown).
type evHangupRequested struct {
	reason string
}

// Collaborator contracts, satisfied by the stt, llm and tts clients. Narrow
// interfaces keep the session testable against fakes.

type Transcriber interface {
	Transcribe(ctx context.Context, pcm []int16) (string, error)
}

type Responder interface {
	Respond(ctx context.Context, text string) (llm.Reply, error)
}

// FrameStream is a cancelable stream of 8 kHz playback frames.
type FrameStream interface {
	Frames() <-chan audio.Frame
	Cancel()
	Err() error
}

type Synthesizer interface {
	Stream(ctx context.Context, text, voice string) (FrameStream, error)
}

// Transport is the media leg of the call.
type Transport interface {
	ReadEvent() (*telephony.Event, error)
	SendMedia(streamID string, payload []byte) error
	SendClear(streamID string) error
	Close() error
}

package call

import (
	"context"
	"encoding/base64"
	"io"
	"sync"
	"time"

	"github.com/LingByte/LingBridge/pkg/audio"
	"github.com/LingByte/LingBridge/pkg/llm"
	"github.com/LingByte/LingBridge/pkg/telephony"
)

func tonePCM(amp int16) []int16 {
	pcm := make([]int16, audio.SamplesPerFrame)
	for i := range pcm {
		pcm[i] = amp
	}
	return pcm
}

func toneFrame(seq uint64, amp int16) audio.Frame {
	return audio.Frame{Seq: seq, Samples: tonePCM(amp)}
}

// fakeTransport scripts inbound telephony events and records everything the
// session writes back. Tests use the L16 codec so payloads decode trivially.
type fakeTransport struct {
	in      chan *telephony.Event
	closeCh chan struct{}
	once    sync.Once

	mu     sync.Mutex
	sent   [][]int16
	clears int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:      make(chan *telephony.Event, 1024),
		closeCh: make(chan struct{}),
	}
}

func (t *fakeTransport) ReadEvent() (*telephony.Event, error) {
	select {
	case ev, ok := <-t.in:
		if !ok {
			return nil, io.EOF
		}
		return ev, nil
	case <-t.closeCh:
		return nil, io.ErrClosedPipe
	}
}

func (t *fakeTransport) SendMedia(streamID string, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, audio.CodecL16.Decode(payload))
	return nil
}

func (t *fakeTransport) SendClear(streamID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clears++
	return nil
}

func (t *fakeTransport) Close() error {
	t.once.Do(func() { close(t.closeCh) })
	return nil
}

func (t *fakeTransport) pushStart(streamID string) {
	t.in <- &telephony.Event{
		Event:    telephony.EventStart,
		StreamID: streamID,
		Start:    &telephony.StartPayload{CallControlID: "cc-test"},
	}
}

func (t *fakeTransport) pushMedia(pcm []int16) {
	t.in <- &telephony.Event{
		Event: telephony.EventMedia,
		Media: &telephony.MediaPayload{
			Payload: base64.StdEncoding.EncodeToString(audio.CodecL16.Encode(pcm)),
		},
	}
}

func (t *fakeTransport) pushStop() {
	t.in <- &telephony.Event{Event: telephony.EventStop}
}

// speechFrames counts sent frames carrying any non-zero sample; keepalive
// silence is excluded.
func (t *fakeTransport) speechFrames() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, pcm := range t.sent {
		for _, s := range pcm {
			if s != 0 {
				n++
				break
			}
		}
	}
	return n
}

func (t *fakeTransport) clearCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clears
}

// speechAmplitudes lists the first sample of every speech frame sent, in
// order, so tests can tell playout generations apart.
func (t *fakeTransport) speechAmplitudes() []int16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var amps []int16
	for _, pcm := range t.sent {
		if len(pcm) > 0 && pcm[0] != 0 {
			amps = append(amps, pcm[0])
		}
	}
	return amps
}

type fakeProvider struct {
	mu      sync.Mutex
	hangups []string
}

func (p *fakeProvider) Dial(ctx context.Context, req telephony.DialRequest) (string, error) {
	return "cc-test", nil
}

func (p *fakeProvider) Answer(ctx context.Context, callControlID, streamURL string) error {
	return nil
}

func (p *fakeProvider) Hangup(ctx context.Context, callControlID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hangups = append(p.hangups, callControlID)
	return nil
}

func (p *fakeProvider) hangupCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.hangups)
}

// fakeStream emits n tone frames then closes; n < 0 streams until canceled.
type fakeStream struct {
	ch     chan audio.Frame
	cancel chan struct{}
	once   sync.Once
}

func newFakeStream(ctx context.Context, n int, amp int16, pace time.Duration) *fakeStream {
	s := &fakeStream{
		ch:     make(chan audio.Frame, 16),
		cancel: make(chan struct{}),
	}
	go func() {
		defer close(s.ch)
		var seq uint64
		for n < 0 || seq < uint64(n) {
			if pace > 0 {
				select {
				case <-time.After(pace):
				case <-s.cancel:
					return
				case <-ctx.Done():
					return
				}
			}
			select {
			case s.ch <- toneFrame(seq, amp):
				seq++
			case <-s.cancel:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return s
}

func (s *fakeStream) Frames() <-chan audio.Frame { return s.ch }
func (s *fakeStream) Cancel()                    { s.once.Do(func() { close(s.cancel) }) }
func (s *fakeStream) Err() error                 { return nil }

// fakeSynth returns a fixed-length tone stream per request and records the
// requested texts.
type fakeSynth struct {
	mu       sync.Mutex
	texts    []string
	frames   int // frames per stream, -1 for endless
	amp      int16
	err      error // returned from Stream when set
	framesOf func(text string) int
	paceOf   func(text string) time.Duration // wall-clock delay per frame
}

func newFakeSynth(frames int) *fakeSynth {
	return &fakeSynth{frames: frames, amp: 3000}
}

func (f *fakeSynth) Stream(ctx context.Context, text, voice string) (FrameStream, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	if f.err != nil {
		err := f.err
		f.mu.Unlock()
		return nil, err
	}
	n := f.frames
	if f.framesOf != nil {
		n = f.framesOf(text)
	}
	amp := f.amp
	var pace time.Duration
	if f.paceOf != nil {
		pace = f.paceOf(text)
	}
	f.mu.Unlock()
	return newFakeStream(ctx, n, amp, pace), nil
}

func (f *fakeSynth) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type fakeTranscriber struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, pcm []int16) (string, error)
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, pcm []int16) (string, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return "", nil
	}
	return fn(call, pcm)
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeResponder struct {
	mu      sync.Mutex
	prompts []string
	fn      func(call int, text string) (llm.Reply, error)
}

func (f *fakeResponder) Respond(ctx context.Context, text string) (llm.Reply, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, text)
	call := len(f.prompts)
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return llm.Reply{Text: "ok"}, nil
	}
	return fn(call, text)
}

func (f *fakeResponder) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

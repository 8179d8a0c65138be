package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/LingByte/LingBridge/pkg/audio"
)

// ErrFirstFrameTimeout reports that the service accepted the request but
// produced no audio within the allowed window.
var ErrFirstFrameTimeout = errors.New("tts: no audio before first-frame deadline")

// frameQueueSize bounds buffered playback at roughly five seconds so a slow
// telephony leg applies backpressure to synthesis instead of growing memory.
const frameQueueSize = 256

const readChunkSize = 4096

// Stream delivers synthesized audio as 20 ms frames at 8 kHz. The channel is
// closed when synthesis completes, fails, or the stream is canceled; Err
// reports which of those it was.
type Stream struct {
	frames chan audio.Frame
	cancel context.CancelFunc

	mu  sync.Mutex
	err error

	cancelOnce sync.Once
}

func newStream(cancel context.CancelFunc) *Stream {
	return &Stream{
		frames: make(chan audio.Frame, frameQueueSize),
		cancel: cancel,
	}
}

// Frames returns the playback channel. Receiving from a closed channel means
// the stream ended; check Err for the cause.
func (s *Stream) Frames() <-chan audio.Frame {
	return s.frames
}

// Cancel stops synthesis immediately. The producer observes cancellation on
// its next channel send or read, so playback stops within one frame interval.
func (s *Stream) Cancel() {
	s.cancelOnce.Do(s.cancel)
}

// Err returns the terminal error, nil for normal completion or cancellation.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if errors.Is(s.err, context.Canceled) {
		return nil
	}
	return s.err
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// consume reads the chunked WAV body, resamples to 8 kHz and emits frames.
// It owns closing the channel.
func (s *Stream) consume(ctx context.Context, body io.ReadCloser, fallbackRate int, firstFrameWait time.Duration) {
	defer close(s.frames)
	defer body.Close()
	defer s.Cancel()

	// A request that produces no audio in time is indistinguishable from a
	// hung service; give up instead of holding the call silent.
	watchdog := time.AfterFunc(firstFrameWait, func() {
		s.setErr(ErrFirstFrameTimeout)
		s.cancelOnce.Do(s.cancel)
	})

	header := make([]byte, audio.WAVHeaderSize)
	if _, err := io.ReadFull(body, header); err != nil {
		watchdog.Stop()
		if ctx.Err() != nil {
			s.recordCtxErr(ctx)
			return
		}
		s.setErr(fmt.Errorf("read synthesis header: %w", err))
		return
	}
	watchdog.Stop()

	var pending []int16
	var seq uint64

	rate, err := audio.ParseWAVHeader(header)
	if err != nil {
		// some services send raw PCM without a header; treat the bytes as
		// audio at the configured fallback rate
		rate = fallbackRate
	}
	resampler := audio.NewResampler(rate, audio.SampleRate)
	if err != nil {
		pending = resampler.Process(audio.BytesToPCM(header))
	}

	buf := make([]byte, readChunkSize)
	var carry byte
	var haveCarry bool

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if haveCarry {
				chunk = append([]byte{carry}, chunk...)
				haveCarry = false
			}
			if len(chunk)%2 == 1 {
				carry = chunk[len(chunk)-1]
				haveCarry = true
				chunk = chunk[:len(chunk)-1]
			}
			pending = append(pending, resampler.Process(audio.BytesToPCM(chunk))...)

			for len(pending) >= audio.SamplesPerFrame {
				samples := make([]int16, audio.SamplesPerFrame)
				copy(samples, pending[:audio.SamplesPerFrame])
				pending = pending[audio.SamplesPerFrame:]
				if !s.send(ctx, audio.Frame{Seq: seq, Samples: samples}) {
					s.recordCtxErr(ctx)
					return
				}
				seq++
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
				break
			}
			if ctx.Err() != nil {
				s.recordCtxErr(ctx)
				return
			}
			s.setErr(fmt.Errorf("read synthesis stream: %w", readErr))
			return
		}
	}

	// pad and flush the tail
	for _, f := range audio.SplitFrames(pending, seq) {
		if !s.send(ctx, f) {
			s.recordCtxErr(ctx)
			return
		}
	}
}

// send delivers one frame unless the stream is canceled. A full queue blocks
// until the consumer drains or cancels, never deadlocks.
func (s *Stream) send(ctx context.Context, f audio.Frame) bool {
	select {
	case s.frames <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Stream) recordCtxErr(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = ctx.Err()
	}
}

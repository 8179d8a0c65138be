package call

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/LingByte/LingBridge/pkg/audio"
	"github.com/LingByte/LingBridge/pkg/logger"
)

const senderQueueSize = 128

type outFrame struct {
	gen   uint64
	frame audio.Frame
	last  bool // end-of-playout marker, carries no audio
}

// sender paces outbound audio onto the transport, one frame per interval of
// wall clock. Frames are tagged with a playout generation; bumping the
// generation invalidates everything queued, which is how interruption clears
// pending audio atomically with respect to the pacing loop.
//
// framesSent counts only frames actually written, so SpokenDuration reflects
// what the caller heard regardless of synthesis speed.
type sender struct {
	transport Transport
	codec     audio.Codec
	streamID  string
	interval  time.Duration
	notify    func(event)

	queue        chan outFrame
	gen          atomic.Uint64
	framesSent   atomic.Uint64
	queuedFrames atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newSender(transport Transport, codec audio.Codec, streamID string, interval time.Duration, notify func(event)) *sender {
	if interval <= 0 {
		interval = audio.FrameDuration
	}
	return &sender{
		transport: transport,
		codec:     codec,
		streamID:  streamID,
		interval:  interval,
		notify:    notify,
		queue:     make(chan outFrame, senderQueueSize),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// run is the pacing loop. One goroutine per call.
func (s *sender) run() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var silenceSeq uint64
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
		}
		s.tick(&silenceSeq)
	}
}

// tick sends exactly one frame: the next live queued frame, or keepalive
// silence when idle. Stale generations are discarded without consuming the
// tick.
func (s *sender) tick(silenceSeq *uint64) {
	for {
		select {
		case of := <-s.queue:
			s.queuedFrames.Add(-1)
			if of.gen != s.gen.Load() {
				continue
			}
			if of.last {
				s.notify(evPlaybackDone{gen: of.gen})
				continue
			}
			if err := s.transport.SendMedia(s.streamID, s.codec.Encode(of.frame.Samples)); err != nil {
				logger.Debug("media send failed", zap.Error(err))
				return
			}
			s.framesSent.Add(1)
			return
		default:
			// keepalive keeps the audio path open between replies; silence
			// does not count toward spoken duration
			*silenceSeq++
			if err := s.transport.SendMedia(s.streamID, s.codec.Encode(audio.SilenceFrame(*silenceSeq).Samples)); err != nil {
				logger.Debug("keepalive send failed", zap.Error(err))
			}
			return
		}
	}
}

// beginPlayout invalidates any queued audio and returns the fresh generation.
func (s *sender) beginPlayout() uint64 {
	return s.gen.Add(1)
}

// cancelPlayout drops everything queued. The pacing loop skips stale frames
// on its next tick, so at most one already-dequeued frame plays after this.
func (s *sender) cancelPlayout() {
	s.gen.Add(1)
	if err := s.transport.SendClear(s.streamID); err != nil {
		logger.Debug("clear send failed", zap.Error(err))
	}
}

// enqueue adds one frame to a playout. Returns false when the playout was
// canceled or the sender stopped, so producers quit promptly.
func (s *sender) enqueue(gen uint64, f audio.Frame) bool {
	if s.gen.Load() != gen {
		return false
	}
	select {
	case s.queue <- outFrame{gen: gen, frame: f}:
		s.queuedFrames.Add(1)
		return true
	case <-s.stopCh:
		return false
	}
}

// finish marks the end of a playout; evPlaybackDone fires when the marker is
// paced, meaning all audio before it went out.
func (s *sender) finish(gen uint64) {
	select {
	case s.queue <- outFrame{gen: gen, last: true}:
		s.queuedFrames.Add(1)
	case <-s.stopCh:
	}
}

// SpokenDuration is the play time of speech frames actually paced onto the
// wire, the smart-hangup accounting basis.
func (s *sender) SpokenDuration() time.Duration {
	return time.Duration(s.framesSent.Load()) * audio.FrameDuration
}

// QueuedDuration estimates the play time still waiting in the queue.
func (s *sender) QueuedDuration() time.Duration {
	n := s.queuedFrames.Load()
	if n < 0 {
		n = 0
	}
	return time.Duration(n) * audio.FrameDuration
}

func (s *sender) stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

package call

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/LingByte/LingBridge/pkg/audio"
	"github.com/LingByte/LingBridge/pkg/logger"
	"github.com/LingByte/LingBridge/pkg/telephony"
)

const (
	eventQueueSize = 256

	fallbackApology = "I'm sorry, I'm having trouble responding right now. Could you say that again?"
	fatalApology    = "I'm sorry, something went wrong on my end. I'll have to let you go. Goodbye."
)

// Turn is one spoken exchange recorded for the final call log.
type Turn struct {
	Role    string // "caller" or "assistant"
	Content string
	At      time.Time
}

// FinalRecord is emitted exactly once per session, however the call ended.
type FinalRecord struct {
	StreamID       string
	Outcome        string
	Err            error
	Answered       bool
	AnsweredAt     time.Time
	Duration       time.Duration
	SpokenDuration time.Duration
	Turns          []Turn
}

// Session drives one call. A single goroutine owns the state machine; the
// transport reader, the paced sender, governor timers and per-turn workers
// all communicate with it through one event channel, so no session state
// needs locking beyond the current-playout handle.
type Session struct {
	Profile Profile

	transport Transport
	stt       Transcriber
	llm       Responder
	tts       Synthesizer
	provider  telephony.Provider

	// OnFinal receives the single terminal record; persistence and alerting
	// live behind it.
	OnFinal func(FinalRecord)

	frameInterval time.Duration
	sttTimeout    time.Duration
	llmTimeout    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	events chan event
	doneCh chan struct{}

	phase atomic.Int32

	sender *sender
	vad    *audio.VAD
	gov    *governor

	mu        sync.Mutex
	curStream FrameStream
	preload   FrameStream

	streamID   string
	answeredAt time.Time
	answered   bool

	turns               []Turn
	pendingUtterance    []int16
	lastUserText        string
	llmRetried          bool
	consecutiveFailures int

	endAfterPlayout   bool
	limitAfterPlayout bool
	inLimitPlayout    bool
	terminalOutcome   string
	terminalErr       error
	weHangup          bool
	finalized         bool
}

// NewSession wires a session; Run starts it.
func NewSession(profile Profile, transport Transport, t Transcriber, r Responder, syn Synthesizer, prov telephony.Provider, onFinal func(FinalRecord)) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		Profile:       profile,
		transport:     transport,
		stt:           t,
		llm:           r,
		tts:           syn,
		provider:      prov,
		OnFinal:       onFinal,
		frameInterval: audio.FrameDuration,
		sttTimeout:    10 * time.Second,
		llmTimeout:    30 * time.Second,
		ctx:           ctx,
		cancel:        cancel,
		events:        make(chan event, eventQueueSize),
		doneCh:        make(chan struct{}),
		vad:           audio.NewVAD(profile.VAD),
	}
	s.gov = newGovernor(profile.MaxDuration, profile.GraceWindow, s.post)
	return s
}

// SetFrameInterval overrides the pacing interval; production uses the 20 ms
// default, tests compress time.
func (s *Session) SetFrameInterval(d time.Duration) {
	if d > 0 {
		s.frameInterval = d
	}
}

// SetTimeouts overrides the per-turn service deadlines.
func (s *Session) SetTimeouts(sttTimeout, llmTimeout time.Duration) {
	if sttTimeout > 0 {
		s.sttTimeout = sttTimeout
	}
	if llmTimeout > 0 {
		s.llmTimeout = llmTimeout
	}
}

// SetPreloadedGreeting hands over a greeting synthesized before the call was
// answered, so the first frames play without waiting on synthesis.
func (s *Session) SetPreloadedGreeting(fs FrameStream) {
	s.preload = fs
}

// Phase returns the current state machine position, safe from any goroutine.
func (s *Session) Phase() Phase {
	return Phase(s.phase.Load())
}

// Done closes when the session reached Ended.
func (s *Session) Done() <-chan struct{} {
	return s.doneCh
}

// RequestHangup asks the session to wind down, used by provider webhooks and
// server shutdown.
func (s *Session) RequestHangup(reason string) {
	s.post(evHangupRequested{reason: reason})
}

// Run blocks until the call reaches Ended.
func (s *Session) Run() {
	defer close(s.doneCh)
	defer s.cancel()

	go s.readLoop()

	for s.Phase() != PhaseEnded {
		ev, ok := <-s.events
		if !ok {
			return
		}
		s.handle(ev)
	}
}

func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func (s *Session) setPhase(p Phase) {
	old := Phase(s.phase.Swap(int32(p)))
	if old != p {
		logger.Debug("call phase transition",
			zap.String("call_control_id", s.Profile.CallControlID),
			zap.String("from", old.String()),
			zap.String("to", p.String()))
	}
}

// readLoop decodes transport events; it is the only reader of the websocket.
func (s *Session) readLoop() {
	for {
		ev, err := s.transport.ReadEvent()
		if err != nil {
			s.post(evTransportClosed{err: err})
			return
		}
		switch ev.Event {
		case telephony.EventConnected:
			// media path confirmed, audio starts with the start event
		case telephony.EventStart:
			s.post(evStreamStarted{streamID: ev.StreamID, start: ev.Start})
		case telephony.EventMedia:
			payload, err := ev.MediaPayloadBytes()
			if err != nil {
				logger.Debug("bad media payload", zap.Error(err))
				continue
			}
			s.post(evMediaFrame{pcm: s.Profile.Codec.Decode(payload)})
		case telephony.EventStop:
			s.post(evTransportClosed{})
			return
		}
	}
}

func (s *Session) handle(ev event) {
	switch ev := ev.(type) {
	case evStreamStarted:
		s.handleStreamStarted(ev)
	case evBeginGreeting:
		s.handleBeginGreeting()
	case evMediaFrame:
		s.handleMediaFrame(ev.pcm)
	case evTranscript:
		s.handleTranscript(ev)
	case evReply:
		s.handleReply(ev)
	case evPlaybackDone:
		s.handlePlaybackDone(ev)
	case evSynthesisFailed:
		s.handleSynthesisFailed(ev)
	case evGovernorExpired:
		s.handleGovernorExpired()
	case evGraceExpired:
		s.handleGraceExpired()
	case evHardStop:
		s.handleHardStop()
	case evHangupRequested:
		s.hangupAndFinalize("completed", nil)
	case evTransportClosed:
		s.handleTransportClosed(ev)
	}
}

// handleStreamStarted answers the call: pacing starts, the duration budget
// arms, and the greeting plays after the configured initial delay of
// keepalive silence.
func (s *Session) handleStreamStarted(ev evStreamStarted) {
	if s.Phase() != PhaseConnecting {
		return
	}
	s.streamID = ev.streamID
	s.answeredAt = time.Now()
	s.answered = true
	s.setPhase(PhaseGreeting)

	s.sender = newSender(s.transport, s.Profile.Codec, s.streamID, s.frameInterval, s.post)
	go s.sender.run()
	s.gov.start()

	logger.Info("call answered",
		zap.String("call_control_id", s.Profile.CallControlID),
		zap.String("stream_id", s.streamID),
		zap.String("codec", string(s.Profile.Codec)))

	time.AfterFunc(s.Profile.InitialDelay, func() { s.post(evBeginGreeting{}) })
}

func (s *Session) handleBeginGreeting() {
	if s.Phase() != PhaseGreeting {
		return
	}
	if s.preload != nil {
		gen := s.sender.beginPlayout()
		fs := s.preload
		s.preload = nil
		s.setCurStream(gen, fs)
		go s.pump(fs, gen)
		return
	}
	s.speak(s.Profile.Greeting)
}

func (s *Session) handleMediaFrame(pcm []int16) {
	switch s.Phase() {
	case PhaseGreeting, PhaseSpeaking:
		// barge-in: instantaneous energy check, no VAD buffering latency
		if audio.RMS(pcm) >= s.vadActiveThreshold() {
			if s.limitAfterPlayout {
				// the budget is already spent; interrupting forfeits the
				// deferred reply and brings the limit message forward
				s.limitAfterPlayout = false
				s.startLimitMessage()
				return
			}
			s.interruptPlayout()
			s.setPhase(PhaseListening)
			s.vad.Reset()
			s.vad.ProcessFrame(pcm) // the interrupting frame opens the next utterance
			logger.Info("playback interrupted by caller",
				zap.String("call_control_id", s.Profile.CallControlID))
		}
	case PhaseListening, PhaseTranscribing, PhaseGenerating:
		res := s.vad.ProcessFrame(pcm)
		if res.Utterance != nil {
			s.onUtterance(res.Utterance)
		}
	default:
		// Connecting, Terminating, Ended: caller audio is not consumed
	}
}

func (s *Session) vadActiveThreshold() float64 {
	cfg := s.Profile.VAD
	if cfg.Threshold > 0 {
		return cfg.Threshold
	}
	return 500
}

// onUtterance starts transcription, or holds the newest utterance when a
// turn is already in flight; at most one STT and one LLM request run at once.
func (s *Session) onUtterance(utt []int16) {
	if s.Phase() == PhaseListening {
		s.startTranscribe(utt)
		return
	}
	s.pendingUtterance = utt
}

func (s *Session) startTranscribe(utt []int16) {
	s.setPhase(PhaseTranscribing)
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.sttTimeout)
		defer cancel()
		text, err := s.stt.Transcribe(ctx, utt)
		s.post(evTranscript{text: text, err: err})
	}()
}

func (s *Session) handleTranscript(ev evTranscript) {
	if s.Phase() != PhaseTranscribing {
		return
	}
	if ev.err != nil {
		if errors.Is(ev.err, context.DeadlineExceeded) {
			logger.Warn("transcription timed out, call stays answerable",
				zap.String("call_control_id", s.Profile.CallControlID),
				zap.Error(ErrTranscriptionTimeout))
		} else {
			logger.Error("transcription failed",
				zap.String("call_control_id", s.Profile.CallControlID),
				zap.Error(upstream("stt", ev.err)))
		}
		s.recordFailure()
		return
	}
	if ev.text == "" {
		// noise or silence, nothing to answer
		s.toListening(false)
		return
	}

	s.consecutiveFailures = 0
	s.turns = append(s.turns, Turn{Role: "caller", Content: ev.text, At: time.Now()})
	s.lastUserText = ev.text
	s.llmRetried = false
	s.startGenerate(ev.text)
}

func (s *Session) startGenerate(text string) {
	s.setPhase(PhaseGenerating)
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.llmTimeout)
		defer cancel()
		reply, err := s.llm.Respond(ctx, text)
		s.post(evReply{reply: reply, err: err})
	}()
}

func (s *Session) handleReply(ev evReply) {
	if s.Phase() != PhaseGenerating {
		return
	}
	if ev.err != nil {
		if !s.llmRetried {
			s.llmRetried = true
			logger.Warn("LLM request failed, retrying once",
				zap.String("call_control_id", s.Profile.CallControlID),
				zap.Error(upstream("llm", ev.err)))
			s.startGenerate(s.lastUserText)
			return
		}
		logger.Error("LLM retry failed, speaking fallback",
			zap.String("call_control_id", s.Profile.CallControlID),
			zap.Error(upstream("llm", ev.err)))
		s.consecutiveFailures++
		if s.consecutiveFailures >= 3 {
			s.fatal()
			return
		}
		s.turns = append(s.turns, Turn{Role: "assistant", Content: fallbackApology, At: time.Now()})
		s.setPhase(PhaseSpeaking)
		s.speak(fallbackApology)
		return
	}

	s.consecutiveFailures = 0
	reply := ev.reply
	if reply.Text != "" {
		s.turns = append(s.turns, Turn{Role: "assistant", Content: reply.Text, At: time.Now()})
	}
	if reply.EndCall {
		logger.Info("model requested hangup",
			zap.String("call_control_id", s.Profile.CallControlID),
			zap.String("reason", reply.Reason))
	}
	if reply.Text == "" {
		if reply.EndCall {
			s.hangupAndFinalize("completed", nil)
			return
		}
		s.toListening(false)
		return
	}

	s.endAfterPlayout = reply.EndCall
	s.setPhase(PhaseSpeaking)
	s.speak(reply.Text)
}

// speak starts a fresh playout of synthesized text in the current phase.
func (s *Session) speak(text string) {
	gen := s.sender.beginPlayout()
	go func() {
		fs, err := s.tts.Stream(s.ctx, text, s.Profile.Voice)
		if err != nil {
			s.post(evSynthesisFailed{gen: gen, err: err})
			return
		}
		if !s.setCurStream(gen, fs) {
			fs.Cancel()
			return
		}
		s.pump(fs, gen)
	}()
}

// pump moves frames from a synthesis stream into the paced sender. It exits
// on cancellation from either side.
func (s *Session) pump(fs FrameStream, gen uint64) {
	defer s.clearCurStream(fs)
	for f := range fs.Frames() {
		if !s.sender.enqueue(gen, f) {
			fs.Cancel()
			for range fs.Frames() {
			}
			return
		}
	}
	if err := fs.Err(); err != nil {
		s.post(evSynthesisFailed{gen: gen, err: err})
		return
	}
	s.sender.finish(gen)
}

func (s *Session) setCurStream(gen uint64, fs FrameStream) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sender == nil || gen != s.sender.gen.Load() {
		return false
	}
	s.curStream = fs
	return true
}

func (s *Session) clearCurStream(fs FrameStream) {
	s.mu.Lock()
	if s.curStream == fs {
		s.curStream = nil
	}
	s.mu.Unlock()
}

// interruptPlayout cancels synthesis and drops queued frames; at most the
// frame already being paced plays after this.
func (s *Session) interruptPlayout() {
	s.mu.Lock()
	fs := s.curStream
	s.curStream = nil
	s.mu.Unlock()
	if fs != nil {
		fs.Cancel()
	}
	if s.sender != nil {
		s.sender.cancelPlayout()
	}
	// a caller interrupting the closing line wants the conversation back
	s.endAfterPlayout = false
}

func (s *Session) handlePlaybackDone(ev evPlaybackDone) {
	// a completion from a superseded playout carries no meaning anymore
	if s.sender == nil || ev.gen != s.sender.gen.Load() {
		return
	}
	switch {
	case s.inLimitPlayout:
		s.hangupAndFinalize("duration_limit", nil)
	case s.endAfterPlayout:
		s.hangupAndFinalize("completed", nil)
	case s.limitAfterPlayout:
		s.limitAfterPlayout = false
		s.startLimitMessage()
	case s.Phase() == PhaseTerminating:
		s.hangupAndFinalize(s.terminalOutcome, s.terminalErr)
	default:
		// greeting or reply finished, back to the caller
		s.toListening(true)
	}
}

func (s *Session) handleSynthesisFailed(ev evSynthesisFailed) {
	if s.sender != nil && ev.gen != s.sender.gen.Load() {
		return
	}
	logger.Error("synthesis failed",
		zap.String("call_control_id", s.Profile.CallControlID),
		zap.Error(upstream("tts", ev.err)))

	if s.inLimitPlayout {
		s.hangupAndFinalize("duration_limit", nil)
		return
	}
	if s.Phase() == PhaseTerminating {
		s.hangupAndFinalize(s.terminalOutcome, s.terminalErr)
		return
	}
	if s.endAfterPlayout {
		s.hangupAndFinalize("completed", nil)
		return
	}
	s.recordFailure()
}

// recordFailure applies the shared recoverable-failure policy: three strikes
// end the call, fewer return it to listening.
func (s *Session) recordFailure() {
	s.consecutiveFailures++
	if s.consecutiveFailures >= 3 {
		s.fatal()
		return
	}
	s.toListening(false)
}

// fatal winds the call down with an apology after repeated failures.
func (s *Session) fatal() {
	s.terminalOutcome = "pipeline_failure"
	s.terminalErr = ErrFatalPipeline
	s.setPhase(PhaseTerminating)
	s.interruptPlayoutKeepFlags()
	s.endAfterPlayout = false
	s.limitAfterPlayout = false
	s.speak(fatalApology)
}

// handleGovernorExpired enforces the duration budget. A reply already
// playing gets at most the grace window to finish before the limit message.
func (s *Session) handleGovernorExpired() {
	if s.Phase() == PhaseEnded || s.inLimitPlayout {
		return
	}
	logger.Info("call duration limit reached",
		zap.String("call_control_id", s.Profile.CallControlID),
		zap.Duration("max_duration", s.Profile.MaxDuration))

	if s.Phase() == PhaseSpeaking && s.sender != nil && s.sender.QueuedDuration() <= s.Profile.GraceWindow {
		s.limitAfterPlayout = true
		s.gov.armGrace()
		return
	}
	s.startLimitMessage()
}

// handleGraceExpired cuts off a deferred reply that did not finish inside
// the grace window, which the queued-duration check at expiry cannot bound
// when synthesis is still streaming in.
func (s *Session) handleGraceExpired() {
	if !s.limitAfterPlayout || s.inLimitPlayout {
		return
	}
	if p := s.Phase(); p == PhaseTerminating || p == PhaseEnded {
		return
	}
	s.limitAfterPlayout = false
	s.startLimitMessage()
}

func (s *Session) startLimitMessage() {
	s.interruptPlayoutKeepFlags()
	s.inLimitPlayout = true
	s.setPhase(PhaseTerminating)
	s.speak(s.Profile.LimitMessage)
}

// interruptPlayoutKeepFlags cancels playback without resetting the terminal
// intent flags the way a caller barge-in does.
func (s *Session) interruptPlayoutKeepFlags() {
	s.mu.Lock()
	fs := s.curStream
	s.curStream = nil
	s.mu.Unlock()
	if fs != nil {
		fs.Cancel()
	}
	if s.sender != nil {
		s.sender.cancelPlayout()
	}
}

// handleHardStop is the absolute failsafe; the call ends now no matter what
// is stuck.
func (s *Session) handleHardStop() {
	outcome := s.terminalOutcome
	if outcome == "" {
		outcome = "duration_limit"
	}
	s.hangupAndFinalize(outcome, s.terminalErr)
}

func (s *Session) handleTransportClosed(ev evTransportClosed) {
	if s.weHangup || s.finalized {
		s.finalize(s.terminalOutcome, s.terminalErr)
		return
	}
	if !s.answered {
		s.finalize("failed", ErrTelephonyDisconnect)
		return
	}
	logger.Info("caller hung up",
		zap.String("call_control_id", s.Profile.CallControlID),
		zap.Error(ev.err))
	s.finalize("remote_hangup", nil)
}

func (s *Session) toListening(resetVAD bool) {
	s.setPhase(PhaseListening)
	if resetVAD {
		s.vad.Reset()
	}
	if s.pendingUtterance != nil {
		utt := s.pendingUtterance
		s.pendingUtterance = nil
		s.startTranscribe(utt)
	}
}

// hangupAndFinalize tears the provider leg down and emits the final record.
func (s *Session) hangupAndFinalize(outcome string, err error) {
	if s.finalized {
		return
	}
	s.weHangup = true
	s.terminalOutcome = outcome
	s.terminalErr = err
	if s.provider != nil && s.Profile.CallControlID != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.provider.Hangup(ctx, s.Profile.CallControlID); err != nil {
				logger.Warn("provider hangup failed",
					zap.String("call_control_id", s.Profile.CallControlID),
					zap.Error(err))
			}
		}()
	}
	s.finalize(outcome, err)
}

// finalize runs exactly once and always reaches Ended.
func (s *Session) finalize(outcome string, err error) {
	if s.finalized {
		return
	}
	s.finalized = true
	if outcome == "" {
		outcome = "completed"
	}
	s.setPhase(PhaseEnded)
	s.gov.stop()
	s.cancel()
	s.interruptPlayoutKeepFlags()

	var spoken time.Duration
	if s.sender != nil {
		s.sender.stop()
		spoken = s.sender.SpokenDuration()
	}
	_ = s.transport.Close()

	var duration time.Duration
	if s.answered {
		duration = time.Since(s.answeredAt)
	}

	logger.Info("call ended",
		zap.String("call_control_id", s.Profile.CallControlID),
		zap.String("outcome", outcome),
		zap.Duration("duration", duration),
		zap.Duration("spoken", spoken),
		zap.Int("turns", len(s.turns)),
		zap.Error(err))

	if s.OnFinal != nil {
		s.OnFinal(FinalRecord{
			StreamID:       s.streamID,
			Outcome:        outcome,
			Err:            err,
			Answered:       s.answered,
			AnsweredAt:     s.answeredAt,
			Duration:       duration,
			SpokenDuration: spoken,
			Turns:          s.turns,
		})
	}
}

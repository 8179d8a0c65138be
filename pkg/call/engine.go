package call

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/LingByte/LingBridge/internal/models"
	"github.com/LingByte/LingBridge/pkg/config"
	"github.com/LingByte/LingBridge/pkg/directory"
	"github.com/LingByte/LingBridge/pkg/llm"
	"github.com/LingByte/LingBridge/pkg/logger"
	"github.com/LingByte/LingBridge/pkg/stt"
	"github.com/LingByte/LingBridge/pkg/telephony"
	"github.com/LingByte/LingBridge/pkg/tts"
)

// pendingTTL bounds how long a dialed call may wait for its media stream to
// connect before the prepared state is dropped.
const pendingTTL = 90 * time.Second

// ServiceSet is the resolved endpoint set for one call, voice profile values
// over global defaults.
type ServiceSet struct {
	STTURL    string
	STTAPIKey string

	TTSURL    string
	TTSAPIKey string

	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
}

// ResolveServices merges a voice profile over the configured defaults.
func ResolveServices(cfg *config.Config, vc *models.VoiceConfig) ServiceSet {
	set := ServiceSet{
		STTURL:     cfg.Services.STT.URL,
		STTAPIKey:  cfg.Services.STT.APIKey,
		TTSURL:     cfg.Services.TTS.URL,
		TTSAPIKey:  cfg.Services.TTS.APIKey,
		LLMBaseURL: cfg.Services.LLM.BaseURL,
		LLMAPIKey:  cfg.Services.LLM.APIKey,
		LLMModel:   cfg.Services.LLM.Model,
	}
	if vc == nil {
		return set
	}
	if vc.STTURL != "" {
		set.STTURL = vc.STTURL
		set.STTAPIKey = vc.STTAPIKey
	}
	if vc.TTSURL != "" {
		set.TTSURL = vc.TTSURL
		set.TTSAPIKey = vc.TTSAPIKey
	}
	if vc.LLMBaseURL != "" {
		set.LLMBaseURL = vc.LLMBaseURL
		set.LLMAPIKey = vc.LLMAPIKey
	}
	if vc.LLMModel != "" {
		set.LLMModel = vc.LLMModel
	}
	return set
}

// PreparedCall is the state parked between dialing out and the provider
// opening the media websocket.
type PreparedCall struct {
	ID       string
	Token    string
	Profile  Profile
	Services ServiceSet
	Provider telephony.Provider

	// mu guards the fields written after Prepare: the preloaded greeting
	// arrives from its synthesis goroutine and the call control id from the
	// dial, while the media stream can attach at any moment in between.
	mu       sync.Mutex
	greeting FrameStream
	consumed bool
	created  time.Time
}

// SetCallControlID records the provider's id once the dial or answer call
// returns.
func (pc *PreparedCall) SetCallControlID(id string) {
	pc.mu.Lock()
	pc.Profile.CallControlID = id
	pc.mu.Unlock()
}

func (pc *PreparedCall) controlID() string {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.Profile.CallControlID
}

// release marks the prepared state consumed and hands back whatever greeting
// made it in before then; a preload finishing after this cancels itself.
func (pc *PreparedCall) release() FrameStream {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.consumed = true
	fs := pc.greeting
	pc.greeting = nil
	return fs
}

// Engine owns every live session and the handoff from dialed call to
// connected media stream.
type Engine struct {
	cfg    *config.Config
	db     *gorm.DB
	alerts *directory.Client

	llmLog *logrus.Logger

	mu       sync.RWMutex
	pending  map[string]*PreparedCall
	sessions map[string]*Session
}

func NewEngine(cfg *config.Config, db *gorm.DB, alerts *directory.Client) *Engine {
	llmLog := logrus.New()
	llmLog.SetLevel(logrus.WarnLevel)
	return &Engine{
		cfg:      cfg,
		db:       db,
		alerts:   alerts,
		llmLog:   llmLog,
		pending:  make(map[string]*PreparedCall),
		sessions: make(map[string]*Session),
	}
}

// Prepare parks call state under the stream id the provider will connect
// with. Token authenticates the later websocket upgrade.
func (e *Engine) Prepare(id, token string, profile Profile, services ServiceSet, provider telephony.Provider) (*PreparedCall, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sweepPendingLocked()
	if max := e.cfg.Call.MaxActiveSessions; max > 0 && len(e.sessions)+len(e.pending) >= max {
		return nil, fmt.Errorf("call: active session limit %d reached", max)
	}

	pc := &PreparedCall{
		ID:       id,
		Token:    token,
		Profile:  profile,
		Services: services,
		Provider: provider,
		created:  time.Now(),
	}
	e.pending[id] = pc
	return pc, nil
}

// PreloadGreeting starts greeting synthesis before the call is answered, so
// the caller hears the opening line without the first-synthesis delay.
func (e *Engine) PreloadGreeting(ctx context.Context, pc *PreparedCall) {
	if pc.Profile.Greeting == "" {
		return
	}
	client := e.ttsClient(pc.Services)
	fs, err := client.Stream(ctx, pc.Profile.Greeting, pc.Profile.Voice)
	if err != nil {
		logger.Warn("greeting preload failed, will synthesize at answer",
			zap.String("call_control_id", pc.controlID()),
			zap.Error(err))
		return
	}
	pc.mu.Lock()
	if pc.consumed {
		pc.mu.Unlock()
		fs.Cancel()
		return
	}
	pc.greeting = fs
	pc.mu.Unlock()
}

// Lookup returns prepared state without consuming it; the web layer checks
// the token before upgrading.
func (e *Engine) Lookup(id string) (*PreparedCall, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pc, ok := e.pending[id]
	return pc, ok
}

// Abort drops prepared state after a failed dial.
func (e *Engine) Abort(id string) {
	e.mu.Lock()
	pc, ok := e.pending[id]
	if ok {
		delete(e.pending, id)
	}
	e.mu.Unlock()
	if !ok {
		return
	}
	if fs := pc.release(); fs != nil {
		fs.Cancel()
	}
}

// Attach consumes prepared state and starts the session on the connected
// media transport. The session runs on its own goroutine.
func (e *Engine) Attach(id string, transport Transport) (*Session, error) {
	e.mu.Lock()
	pc, ok := e.pending[id]
	if ok {
		delete(e.pending, id)
	}
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("call: no prepared call for stream %q", id)
	}

	pc.mu.Lock()
	pc.consumed = true
	profile := pc.Profile
	greeting := pc.greeting
	pc.greeting = nil
	pc.mu.Unlock()

	sttClient := stt.NewClient(pc.Services.STTURL, pc.Services.STTAPIKey, e.sttTimeout())
	llmHandler := llm.NewHandler(&llm.Config{
		APIKey:      pc.Services.LLMAPIKey,
		BaseURL:     pc.Services.LLMBaseURL,
		Model:       pc.Services.LLMModel,
		Temperature: e.cfg.Services.LLM.Temperature,
		MaxTokens:   e.cfg.Services.LLM.MaxTokens,
		Timeout:     e.cfg.Services.LLM.Timeout,
		Stateless:   profile.Stateless,
	}, profile.SystemPrompt, e.llmLog)

	session := NewSession(profile, transport, sttClient, llmHandler, ttsAdapter{e.ttsClient(pc.Services)}, pc.Provider, func(rec FinalRecord) {
		e.finish(id, pc, rec)
	})
	session.SetTimeouts(e.sttTimeout(), e.cfg.Services.LLM.Timeout)
	if greeting != nil {
		session.SetPreloadedGreeting(greeting)
	}

	e.mu.Lock()
	e.sessions[id] = session
	e.mu.Unlock()

	go session.Run()
	return session, nil
}

// SessionByControlID finds the live session for a provider webhook.
func (e *Engine) SessionByControlID(callControlID string) (*Session, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, s := range e.sessions {
		if s.Profile.CallControlID == callControlID {
			return s, true
		}
	}
	return nil, false
}

// ActiveCount reports running sessions, for health reporting.
func (e *Engine) ActiveCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sessions)
}

// Shutdown asks every session to hang up and waits for them, bounded by ctx.
func (e *Engine) Shutdown(ctx context.Context) {
	e.mu.RLock()
	active := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		active = append(active, s)
	}
	e.mu.RUnlock()

	for _, s := range active {
		s.RequestHangup("server shutdown")
	}
	for _, s := range active {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return
		}
	}
}

// finish persists the final record and fires the post-call alert.
func (e *Engine) finish(id string, pc *PreparedCall, rec FinalRecord) {
	e.mu.Lock()
	delete(e.sessions, id)
	e.mu.Unlock()

	if e.db != nil {
		if err := e.persist(pc, rec); err != nil {
			logger.Error("failed to persist call log",
				zap.String("call_control_id", pc.controlID()),
				zap.Error(err))
		}
	}

	if e.alerts != nil && e.alerts.Enabled() && rec.Answered {
		alert := directory.CallAlert{
			Direction:  string(pc.Profile.Direction),
			FromNumber: pc.Profile.FromNumber,
			ToNumber:   pc.Profile.ToNumber,
			Outcome:    rec.Outcome,
			Duration:   rec.Duration,
			Transcript: renderTranscript(rec.Turns),
		}
		// fire and forget; the session's Done must not wait on the alert sink
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := e.alerts.SendCallAlert(ctx, pc.Profile.UserID, alert); err != nil {
				logger.Warn("post-call alert failed",
					zap.String("call_control_id", pc.controlID()),
					zap.Error(err))
			}
		}()
	}
}

func (e *Engine) persist(pc *PreparedCall, rec FinalRecord) error {
	entry, err := models.GetCallLogByControlID(e.db, pc.controlID())
	if err != nil {
		return err
	}
	entry.StreamID = rec.StreamID
	if rec.Answered {
		entry.Status = models.CallStatusAnswered
		entry.StartTime = rec.AnsweredAt
	}
	for _, t := range rec.Turns {
		entry.AddTurn(t.Role, t.Content)
	}
	if rec.Err != nil && !rec.Answered {
		return entry.MarkFailed(e.db, rec.Err.Error())
	}
	if rec.Err != nil {
		entry.ErrorMessage = rec.Err.Error()
	}
	return entry.MarkCompleted(e.db, rec.Outcome)
}

func (e *Engine) sttTimeout() time.Duration {
	if e.cfg.Services.STT.Timeout > 0 {
		return e.cfg.Services.STT.Timeout
	}
	return 10 * time.Second
}

func (e *Engine) ttsClient(set ServiceSet) *tts.Client {
	wait := e.cfg.Services.TTS.FirstFrameWait
	fallback := e.cfg.Services.TTS.OutputSampleMin
	return tts.NewClient(set.TTSURL, set.TTSAPIKey, wait, fallback)
}

func (e *Engine) sweepPendingLocked() {
	now := time.Now()
	for id, pc := range e.pending {
		if now.Sub(pc.created) > pendingTTL {
			if fs := pc.release(); fs != nil {
				fs.Cancel()
			}
			delete(e.pending, id)
		}
	}
}

// ttsAdapter narrows *tts.Client to the Synthesizer contract.
type ttsAdapter struct {
	client *tts.Client
}

func (a ttsAdapter) Stream(ctx context.Context, text, voice string) (FrameStream, error) {
	fs, err := a.client.Stream(ctx, text, voice)
	if err != nil {
		return nil, err
	}
	return fs, nil
}

func renderTranscript(turns []Turn) string {
	var b strings.Builder
	for _, t := range turns {
		switch t.Role {
		case "caller":
			b.WriteString("Caller: ")
		default:
			b.WriteString("Assistant: ")
		}
		b.WriteString(t.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

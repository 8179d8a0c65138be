package call

import (
	"time"

	"github.com/LingByte/LingBridge/internal/models"
	"github.com/LingByte/LingBridge/pkg/audio"
	"github.com/LingByte/LingBridge/pkg/config"
)

// Profile is the immutable per-call snapshot of everything the session needs:
// identity, codec, persona and limits. Later edits to the stored provider or
// voice rows never affect a call in flight.
type Profile struct {
	CallControlID string
	Direction     models.CallDirection
	FromNumber    string
	ToNumber      string

	ProviderName string
	VoiceName    string

	Codec audio.Codec
	Voice string

	Greeting     string
	SystemPrompt string
	LimitMessage string

	MaxDuration  time.Duration
	GraceWindow  time.Duration
	InitialDelay time.Duration

	VAD audio.VADConfig

	// optional identity forwarded to the model and the alert sink
	UserID string
	ChatID string

	// Stateless drops earlier turns from the model window each request.
	Stateless bool
}

// Overrides are per-call request parameters layered on top of the stored
// configuration.
type Overrides struct {
	Prompt  string
	UserID  string
	ChatID  string
	DelayMs int
}

// BuildProfile assembles the snapshot from global defaults, the provider row
// and the voice row, then applies request overrides.
func BuildProfile(cfg *config.Config, pc *models.ProviderConfig, vc *models.VoiceConfig, ov Overrides) (Profile, error) {
	codecName := cfg.Call.Codec
	if vc.Codec != "" {
		codecName = vc.Codec
	}
	codec, err := audio.ParseCodec(codecName)
	if err != nil {
		return Profile{}, err
	}

	p := Profile{
		ProviderName: pc.Name,
		VoiceName:    vc.Name,
		FromNumber:   pc.FromNumber,
		Codec:        codec,
		Voice:        vc.TTSVoice,
		Greeting:     firstNonEmpty(vc.Greeting, cfg.Call.Greeting),
		SystemPrompt: vc.SystemPrompt,
		LimitMessage: firstNonEmpty(pc.CallLimitMessage, cfg.Call.LimitMessage),
		MaxDuration:  cfg.Call.MaxDuration,
		GraceWindow:  cfg.Call.GraceWindow,
		InitialDelay: cfg.Call.InitialDelay,
		Stateless:    !vc.SendConversationContext,
		VAD: audio.VADConfig{
			Threshold:    cfg.Call.VADThreshold,
			SilenceEnd:   cfg.Call.VADSilenceEnd,
			MinSpeech:    cfg.Call.VADMinSpeech,
			MaxUtterance: cfg.Call.VADMaxUtterance,
		},
	}

	if pc.MaxCallDuration > 0 {
		p.MaxDuration = time.Duration(pc.MaxCallDuration) * time.Second
	}
	if vc.VADThreshold > 0 {
		p.VAD.Threshold = vc.VADThreshold
	}
	if vc.VADSilenceEndMs > 0 {
		p.VAD.SilenceEnd = time.Duration(vc.VADSilenceEndMs) * time.Millisecond
	}
	if vc.VADMinSpeechMs > 0 {
		p.VAD.MinSpeech = time.Duration(vc.VADMinSpeechMs) * time.Millisecond
	}
	if vc.VADMaxUtteranceMs > 0 {
		p.VAD.MaxUtterance = time.Duration(vc.VADMaxUtteranceMs) * time.Millisecond
	}

	if ov.Prompt != "" {
		p.SystemPrompt = ov.Prompt
	}
	p.UserID = ov.UserID
	p.ChatID = ov.ChatID
	if ov.DelayMs > 0 {
		p.InitialDelay = time.Duration(ov.DelayMs) * time.Millisecond
	}
	return p, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

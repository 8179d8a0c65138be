package audio

import (
	"math"
	"time"
)

// VADConfig tunes the energy detector. Zero values fall back to the defaults
// proven on narrowband calls.
type VADConfig struct {
	Threshold    float64       // RMS level treated as speech
	SilenceEnd   time.Duration // trailing silence that closes an utterance
	MinSpeech    time.Duration // utterances shorter than this are dropped
	MaxUtterance time.Duration // failsafe flush for callers who never pause
}

func (c *VADConfig) withDefaults() VADConfig {
	out := *c
	if out.Threshold <= 0 {
		out.Threshold = 500
	}
	if out.SilenceEnd <= 0 {
		out.SilenceEnd = 1200 * time.Millisecond
	}
	if out.MinSpeech <= 0 {
		out.MinSpeech = 500 * time.Millisecond
	}
	if out.MaxUtterance <= 0 {
		out.MaxUtterance = 15 * time.Second
	}
	return out
}

// VADResult is the outcome of feeding one frame to the detector.
type VADResult struct {
	// Active reports speech energy in this frame. It is instantaneous so a
	// caller interrupting playback is seen within one frame interval.
	Active bool
	// SpeechStart is set on the first active frame of a new utterance.
	SpeechStart bool
	// Utterance is non-nil when an utterance just completed. It contains the
	// full buffered PCM including trailing silence.
	Utterance []int16
}

// VAD accumulates caller audio and segments it into utterances by RMS energy
// with a trailing-silence window.
type VAD struct {
	cfg       VADConfig
	buffer    []int16
	silence   time.Duration
	hasSpeech bool
}

func NewVAD(cfg VADConfig) *VAD {
	return &VAD{cfg: cfg.withDefaults()}
}

// ProcessFrame feeds one decoded frame. The detector buffers everything from
// the first active frame; silence-only audio is discarded without an
// utterance so line noise never reaches transcription.
func (v *VAD) ProcessFrame(pcm []int16) VADResult {
	var res VADResult
	frameDur := PCMDuration(len(pcm))
	rms := RMS(pcm)
	res.Active = rms >= v.cfg.Threshold

	v.buffer = append(v.buffer, pcm...)

	if res.Active {
		if !v.hasSpeech {
			res.SpeechStart = true
		}
		v.hasSpeech = true
		v.silence = 0
	} else {
		v.silence += frameDur
	}

	bufDur := PCMDuration(len(v.buffer))

	if v.silence >= v.cfg.SilenceEnd {
		if v.hasSpeech && bufDur >= v.cfg.MinSpeech {
			res.Utterance = v.flush()
		} else {
			// nothing worth transcribing in the window
			v.reset()
		}
		return res
	}

	if v.hasSpeech && bufDur >= v.cfg.MaxUtterance {
		res.Utterance = v.flush()
	}
	return res
}

// Reset drops any buffered audio, used when playback starts so the bot's own
// voice never leaks into the next utterance.
func (v *VAD) Reset() {
	v.reset()
}

func (v *VAD) flush() []int16 {
	out := v.buffer
	v.buffer = nil
	v.silence = 0
	v.hasSpeech = false
	return out
}

func (v *VAD) reset() {
	v.buffer = nil
	v.silence = 0
	v.hasSpeech = false
}

// RMS computes root-mean-square energy of a PCM frame.
func RMS(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}
	var sum float64
	for _, s := range pcm {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(pcm)))
}

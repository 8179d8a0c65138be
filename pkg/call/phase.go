package call

// Phase is the session state machine position. An interruption is the
// Speaking to Listening edge, not a state of its own.
type Phase int32

const (
	PhaseConnecting Phase = iota
	PhaseGreeting
	PhaseListening
	PhaseTranscribing
	PhaseGenerating
	PhaseSpeaking
	PhaseTerminating
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseGreeting:
		return "greeting"
	case PhaseListening:
		return "listening"
	case PhaseTranscribing:
		return "transcribing"
	case PhaseGenerating:
		return "generating"
	case PhaseSpeaking:
		return "speaking"
	case PhaseTerminating:
		return "terminating"
	case PhaseEnded:
		return "ended"
	}
	return "unknown"
}

// playing reports whether outbound audio is being paced in this phase.
func (p Phase) playing() bool {
	return p == PhaseGreeting || p == PhaseSpeaking || p == PhaseTerminating
}

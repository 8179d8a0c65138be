package audio

import "time"

// Telephony media runs at 8 kHz with 20 ms packetization.
const (
	SampleRate      = 8000
	FrameDuration   = 20 * time.Millisecond
	SamplesPerFrame = 160
)

// Frame is one packetization interval of linear PCM with its position in the
// outbound stream.
type Frame struct {
	Seq     uint64
	Samples []int16
}

// Duration returns the play time of the frame.
func (f Frame) Duration() time.Duration {
	return time.Duration(len(f.Samples)) * time.Second / SampleRate
}

// SplitFrames cuts a PCM buffer into 20 ms frames. The final frame is padded
// with silence so every frame carries exactly SamplesPerFrame samples.
func SplitFrames(pcm []int16, startSeq uint64) []Frame {
	if len(pcm) == 0 {
		return nil
	}
	n := (len(pcm) + SamplesPerFrame - 1) / SamplesPerFrame
	frames := make([]Frame, 0, n)
	for i := 0; i < len(pcm); i += SamplesPerFrame {
		end := i + SamplesPerFrame
		samples := make([]int16, SamplesPerFrame)
		if end > len(pcm) {
			copy(samples, pcm[i:])
		} else {
			copy(samples, pcm[i:end])
		}
		frames = append(frames, Frame{Seq: startSeq, Samples: samples})
		startSeq++
	}
	return frames
}

// SilenceFrame returns a frame of digital silence.
func SilenceFrame(seq uint64) Frame {
	return Frame{Seq: seq, Samples: make([]int16, SamplesPerFrame)}
}

// PCMDuration converts a sample count at 8 kHz to play time.
func PCMDuration(samples int) time.Duration {
	return time.Duration(samples) * time.Second / SampleRate
}

package audio

// Resampler converts a PCM stream from one rate to another with linear
// interpolation. It keeps fractional position across calls so chunked input
// produces the same output as one large buffer.
type Resampler struct {
	inRate  int
	outRate int
	step    float64
	pos     float64
	prev    int16
	primed  bool
}

func NewResampler(inRate, outRate int) *Resampler {
	return &Resampler{
		inRate:  inRate,
		outRate: outRate,
		step:    float64(inRate) / float64(outRate),
	}
}

// Process resamples one chunk. Passthrough when rates match.
func (r *Resampler) Process(in []int16) []int16 {
	if r.inRate == r.outRate {
		return in
	}
	out := make([]int16, 0, len(in)*r.outRate/r.inRate+1)
	for _, s := range in {
		if !r.primed {
			r.prev = s
			r.primed = true
			out = append(out, s)
			r.pos = r.step
			continue
		}
		for r.pos < 1.0 {
			v := float64(r.prev)*(1.0-r.pos) + float64(s)*r.pos
			out = append(out, int16(v))
			r.pos += r.step
		}
		r.pos -= 1.0
		r.prev = s
	}
	return out
}

package audio

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Codec identifies the narrowband wire format of a telephony media stream.
// All three run at 8000 Hz.
type Codec string

const (
	CodecPCMU Codec = "PCMU" // G.711 mu-law
	CodecPCMA Codec = "PCMA" // G.711 A-law
	CodecL16  Codec = "L16"  // 16-bit little-endian linear PCM
)

// ParseCodec normalizes a codec name from configuration or a provider profile.
func ParseCodec(s string) (Codec, error) {
	switch Codec(strings.ToUpper(strings.TrimSpace(s))) {
	case CodecPCMU:
		return CodecPCMU, nil
	case CodecPCMA:
		return CodecPCMA, nil
	case CodecL16:
		return CodecL16, nil
	}
	return "", fmt.Errorf("unsupported codec %q", s)
}

// BytesPerSample returns the wire size of one sample.
func (c Codec) BytesPerSample() int {
	if c == CodecL16 {
		return 2
	}
	return 1
}

// BytesPerSecond returns the wire byte rate at 8 kHz.
func (c Codec) BytesPerSecond() int {
	return SampleRate * c.BytesPerSample()
}

// Encode converts linear PCM samples to the wire format.
func (c Codec) Encode(pcm []int16) []byte {
	switch c {
	case CodecPCMU:
		out := make([]byte, len(pcm))
		for i, s := range pcm {
			out[i] = encodeMuLaw(s)
		}
		return out
	case CodecPCMA:
		out := make([]byte, len(pcm))
		for i, s := range pcm {
			out[i] = encodeALaw(s)
		}
		return out
	default:
		out := make([]byte, len(pcm)*2)
		for i, s := range pcm {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
		}
		return out
	}
}

// Decode converts wire bytes back to linear PCM samples. A trailing odd byte
// of an L16 payload is ignored.
func (c Codec) Decode(data []byte) []int16 {
	switch c {
	case CodecPCMU:
		out := make([]int16, len(data))
		for i, b := range data {
			out[i] = decodeMuLaw(b)
		}
		return out
	case CodecPCMA:
		out := make([]int16, len(data))
		for i, b := range data {
			out[i] = decodeALaw(b)
		}
		return out
	default:
		out := make([]int16, len(data)/2)
		for i := range out {
			out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
		}
		return out
	}
}

const (
	muLawBias = 0x84
	muLawClip = 32635
)

func encodeMuLaw(sample int16) byte {
	s := int32(sample)
	var sign byte
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > muLawClip {
		s = muLawClip
	}
	s += muLawBias
	exponent := 7
	for mask := int32(0x4000); exponent > 0 && s&mask == 0; exponent-- {
		mask >>= 1
	}
	mantissa := byte((s >> uint(exponent+3)) & 0x0F)
	return ^(sign | byte(exponent<<4) | mantissa)
}

func decodeMuLaw(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F
	sample := ((int32(mantissa) << 3) + muLawBias) << exponent
	sample -= muLawBias
	if sign != 0 {
		sample = -sample
	}
	return int16(sample)
}

var aLawSegEnd = [8]int32{0x1F, 0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF}

func encodeALaw(sample int16) byte {
	pcm := int32(sample) >> 3
	var mask byte
	if pcm >= 0 {
		mask = 0xD5
	} else {
		mask = 0x55
		pcm = -pcm - 1
	}
	seg := 0
	for seg < 8 && pcm > aLawSegEnd[seg] {
		seg++
	}
	if seg >= 8 {
		return 0x7F ^ mask
	}
	aval := byte(seg << 4)
	if seg < 2 {
		aval |= byte((pcm >> 1) & 0x0F)
	} else {
		aval |= byte((pcm >> uint(seg)) & 0x0F)
	}
	return aval ^ mask
}

func decodeALaw(b byte) int16 {
	b ^= 0x55
	t := int32(b&0x0F) << 4
	seg := (b & 0x70) >> 4
	switch seg {
	case 0:
		t += 8
	case 1:
		t += 0x108
	default:
		t += 0x108
		t <<= seg - 1
	}
	if b&0x80 != 0 {
		return int16(t)
	}
	return int16(-t)
}

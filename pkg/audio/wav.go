package audio

import (
	"encoding/binary"
	"errors"
)

const wavHeaderSize = 44

// BuildWAV wraps mono 16-bit PCM in a standard 44-byte RIFF header.
func BuildWAV(pcm []int16, sampleRate int) []byte {
	dataSize := len(pcm) * 2
	buf := make([]byte, wavHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // PCM chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(buf[22:24], 1)  // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                    // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)                   // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i, s := range pcm {
		binary.LittleEndian.PutUint16(buf[wavHeaderSize+i*2:], uint16(s))
	}
	return buf
}

var ErrNotWAV = errors.New("audio: not a RIFF/WAVE header")

// ParseWAVHeader reads the sample rate out of a 44-byte RIFF header. Streaming
// synthesis services emit this fixed-size header ahead of the PCM body.
func ParseWAVHeader(header []byte) (sampleRate int, err error) {
	if len(header) < wavHeaderSize {
		return 0, ErrNotWAV
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return 0, ErrNotWAV
	}
	rate := binary.LittleEndian.Uint32(header[24:28])
	if rate == 0 {
		return 0, ErrNotWAV
	}
	return int(rate), nil
}

// WAVHeaderSize is the fixed header length produced and consumed here.
const WAVHeaderSize = wavHeaderSize

// BytesToPCM reinterprets little-endian 16-bit bytes as samples. A trailing
// odd byte is dropped.
func BytesToPCM(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

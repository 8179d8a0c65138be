package tts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LingByte/LingBridge/pkg/audio"
)

// trickleServer sends a WAV header then PCM in small timed chunks, the way a
// real synthesis service streams while still generating.
func trickleServer(t *testing.T, totalSamples, chunkSamples int, interval time.Duration) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/audio/speech/stream", r.URL.Path)
		flusher := w.(http.Flusher)

		pcm := make([]int16, totalSamples)
		for i := range pcm {
			pcm[i] = int16(i % 1000)
		}
		wav := audio.BuildWAV(pcm, 24000)

		w.Header().Set("Content-Type", "audio/wav")
		w.Write(wav[:audio.WAVHeaderSize])
		flusher.Flush()

		body := wav[audio.WAVHeaderSize:]
		step := chunkSamples * 2
		for off := 0; off < len(body); off += step {
			end := off + step
			if end > len(body) {
				end = len(body)
			}
			select {
			case <-r.Context().Done():
				return
			case <-time.After(interval):
			}
			if _, err := w.Write(body[off:end]); err != nil {
				return
			}
			flusher.Flush()
		}
	}))
}

func TestStreamDeliversFramesBeforeCompletion(t *testing.T) {
	// two seconds of 24 kHz audio trickled over ~1s
	srv := trickleServer(t, 48000, 4800, 100*time.Millisecond)
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, 24000)
	start := time.Now()
	s, err := c.Stream(context.Background(), "hello caller", "test-voice")
	require.NoError(t, err)
	defer s.Cancel()

	first, ok := <-s.Frames()
	require.True(t, ok)
	assert.Len(t, first.Samples, audio.SamplesPerFrame)
	// first audio must arrive while the body is still streaming
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	var total int
	for f := range s.Frames() {
		total += len(f.Samples)
	}
	require.NoError(t, s.Err())
	// 48000 samples at 24 kHz resample to ~16000 at 8 kHz, frame padded
	assert.InDelta(t, 16000, total, float64(audio.SamplesPerFrame))
}

func TestStreamCancelStopsProducer(t *testing.T) {
	srv := trickleServer(t, 480000, 2400, 50*time.Millisecond)
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, 24000)
	s, err := c.Stream(context.Background(), "a very long reply", "test-voice")
	require.NoError(t, err)

	<-s.Frames()
	s.Cancel()

	// channel must close promptly after cancel
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-s.Frames():
			if !ok {
				assert.NoError(t, s.Err()) // cancellation is not a failure
				return
			}
		case <-deadline:
			t.Fatal("frames channel not closed after cancel")
		}
	}
}

func TestStreamFirstFrameTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 100*time.Millisecond, 24000)
	s, err := c.Stream(context.Background(), "hello", "v")
	require.NoError(t, err)

	for range s.Frames() {
	}
	assert.ErrorIs(t, s.Err(), ErrFirstFrameTimeout)
}

func TestStreamRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "voice not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, 24000)
	_, err := c.Stream(context.Background(), "hello", "missing-voice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestStreamHeaderlessBodyUsesFallbackRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// raw 8 kHz PCM with no RIFF header
		pcm := make([]int16, 800)
		w.Write(audio.CodecL16.Encode(pcm))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, audio.SampleRate)
	s, err := c.Stream(context.Background(), "hello", "v")
	require.NoError(t, err)

	var total int
	for f := range s.Frames() {
		total += len(f.Samples)
	}
	require.NoError(t, s.Err())
	assert.Equal(t, 800, total) // 5 full frames, no resampling
}

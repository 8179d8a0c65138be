package stt

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

func TestTranscribe(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transcribe", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("audio_file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "utterance.wav", header.Filename)

		wav := make([]byte, audio.WAVHeaderSize)
		_, err = file.Read(wav)
		require.NoError(t, err)
		rate, err := audio.ParseWAVHeader(wav)
		require.NoError(t, err)
		assert.Equal(t, audio.SampleRate, rate)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": " what is the weather "}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", 5*time.Second)
	text, err := c.Transcribe(context.Background(), make([]int16, 8000))
	require.NoError(t, err)
	assert.Equal(t, "what is the weather", text)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestTranscribeEmptyUtterance(t *testing.T) {
	c := NewClient("http://unused.invalid", "", time.Second)
	text, err := c.Transcribe(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestTranscribeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 50*time.Millisecond)
	_, err := c.Transcribe(context.Background(), make([]int16, 800))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTranscribeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.Transcribe(context.Background(), make([]int16, 800))
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/healthz", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	assert.NoError(t, c.Health(context.Background()))
}

package call

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LingByte/LingBridge/pkg/audio"
)

func newTestSender(transport *fakeTransport, notify func(event)) *sender {
	if notify == nil {
		notify = func(event) {}
	}
	return newSender(transport, audio.CodecL16, "stream-1", time.Millisecond, notify)
}

func TestSenderSpokenDurationCountsOnlySpeech(t *testing.T) {
	transport := newFakeTransport()
	done := make(chan evPlaybackDone, 1)
	s := newTestSender(transport, func(ev event) {
		if pd, ok := ev.(evPlaybackDone); ok {
			done <- pd
		}
	})
	go s.run()
	defer s.stop()

	gen := s.beginPlayout()
	for i := 0; i < 5; i++ {
		require.True(t, s.enqueue(gen, toneFrame(uint64(i), 3000)))
	}
	s.finish(gen)

	select {
	case pd := <-done:
		assert.Equal(t, gen, pd.gen)
	case <-time.After(2 * time.Second):
		t.Fatal("playback completion never signaled")
	}

	assert.Equal(t, 5, transport.speechFrames())
	assert.Equal(t, 5*audio.FrameDuration, s.SpokenDuration())

	// idle keepalive keeps flowing without inflating spoken duration
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 5*audio.FrameDuration, s.SpokenDuration())
}

func TestSenderCancelDropsQueuedFrames(t *testing.T) {
	transport := newFakeTransport()
	s := newTestSender(transport, nil)
	go s.run()
	defer s.stop()

	gen := s.beginPlayout()
	for i := 0; i < 50; i++ {
		require.True(t, s.enqueue(gen, toneFrame(uint64(i), 3000)))
	}

	require.Eventually(t, func() bool { return transport.speechFrames() >= 3 },
		2*time.Second, time.Millisecond)

	s.cancelPlayout()
	sentAtCancel := transport.speechFrames()

	// the frame already dequeued may still go out, nothing else does
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, transport.speechFrames(), sentAtCancel+1)
	assert.Equal(t, 1, transport.clearCount())

	// the canceled generation no longer accepts audio
	assert.False(t, s.enqueue(gen, toneFrame(99, 3000)))
}

func TestSenderStaleGenerationDiscarded(t *testing.T) {
	transport := newFakeTransport()
	s := newTestSender(transport, nil)

	oldGen := s.beginPlayout()
	for i := 0; i < 10; i++ {
		require.True(t, s.enqueue(oldGen, toneFrame(uint64(i), 1000)))
	}
	newGen := s.beginPlayout()
	for i := 0; i < 10; i++ {
		require.True(t, s.enqueue(newGen, toneFrame(uint64(i), 2000)))
	}

	go s.run()
	defer s.stop()

	require.Eventually(t, func() bool { return transport.speechFrames() >= 10 },
		2*time.Second, time.Millisecond)

	for _, amp := range transport.speechAmplitudes() {
		assert.Equal(t, int16(2000), amp, "superseded playout audio reached the wire")
	}
	assert.Equal(t, 10*audio.FrameDuration, s.SpokenDuration())
}

func TestSenderQueuedDuration(t *testing.T) {
	transport := newFakeTransport()
	s := newTestSender(transport, nil)
	// not running: queued frames stay queued

	gen := s.beginPlayout()
	for i := 0; i < 25; i++ {
		require.True(t, s.enqueue(gen, toneFrame(uint64(i), 3000)))
	}
	assert.Equal(t, 25*audio.FrameDuration, s.QueuedDuration())
}

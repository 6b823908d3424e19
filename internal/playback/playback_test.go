package playback

import (
	"sync"
	"testing"
	"time"

	"github.com/rustyguts/camilladsp/internal/device"
	"github.com/rustyguts/camilladsp/internal/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu     sync.Mutex
	state  device.State
	delay  int
	writes [][]byte
}

func (f *fakeBackend) Open(device.OpenParams) error { return nil }
func (f *fakeBackend) Close() error                 { return nil }
func (f *fakeBackend) State() device.State          { return f.state }
func (f *fakeBackend) Prepare() error                { f.state = device.StateRunning; return nil }
func (f *fakeBackend) StartStream() error            { f.state = device.StateRunning; return nil }
func (f *fakeBackend) DelayFrames() (int, error)     { return f.delay, nil }

func (f *fakeBackend) Write(buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), buf...)
	f.writes = append(f.writes, cp)
	return nil
}

func testConfig() Config {
	return Config{
		SampleRate:          48000,
		Channels:             1,
		Format:               message.S16LE,
		ChunkFrames:          256,
		AdjustPeriodSeconds:  0.05,
		AdjustEnabled:        true,
	}
}

func TestSpeedAtTargetIsUnity(t *testing.T) {
	speed := speedCorrection(2048, 2048, 1.0, 48000)
	assert.InDelta(t, 1.0, speed, 1e-9)
}

func TestNoSetSpeedWhenDisabled(t *testing.T) {
	backend := &fakeBackend{state: device.StateRunning, delay: 5000}
	cfg := testConfig()
	cfg.AdjustEnabled = false

	audioIn := make(chan message.AudioMessage, 8)
	statusOut := make(chan message.StatusMessage, 16)
	status := message.NewPlaybackStatus()
	var barrier sync.WaitGroup
	barrier.Add(1)

	a := New(backend, cfg, nil)
	a.Start(audioIn, &barrier, statusOut, status)
	barrier.Wait()

	chunk := message.NewAudioChunk(1, cfg.ChunkFrames)
	chunk.ValidFrames = cfg.ChunkFrames
	audioIn <- message.Audio(chunk)
	time.Sleep(80 * time.Millisecond)
	audioIn <- message.EndOfStream()

	for {
		s := <-statusOut
		if s.Kind == message.StatusSetSpeed {
			t.Fatalf("unexpected SetSpeed while disabled")
		}
		if s.Kind == message.StatusPlaybackDone {
			break
		}
	}
}

func TestExitDrainsAndEmitsPlaybackDone(t *testing.T) {
	backend := &fakeBackend{state: device.StateRunning}
	cfg := testConfig()

	audioIn := make(chan message.AudioMessage, 8)
	statusOut := make(chan message.StatusMessage, 16)
	status := message.NewPlaybackStatus()
	var barrier sync.WaitGroup
	barrier.Add(1)

	a := New(backend, cfg, nil)
	done := a.Start(audioIn, &barrier, statusOut, status)
	barrier.Wait()

	require.Equal(t, message.StatusPlaybackReady, (<-statusOut).Kind)

	chunk := message.NewAudioChunk(1, cfg.ChunkFrames)
	chunk.ValidFrames = cfg.ChunkFrames
	audioIn <- message.Audio(chunk)
	audioIn <- message.EndOfStream()

	select {
	case s := <-statusOut:
		assert.Equal(t, message.StatusPlaybackDone, s.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for PlaybackDone")
	}
	<-done
}

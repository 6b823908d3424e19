package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/rustyguts/camilladsp/internal/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCapture emits a handful of chunks then waits for Exit.
type fakeCapture struct {
	channels int
	chunks   int
}

func (f *fakeCapture) Start(
	audioOut chan<- message.AudioMessage,
	barrier *sync.WaitGroup,
	statusOut chan<- message.StatusMessage,
	commandIn <-chan message.CommandMessage,
	status *message.CaptureStatus,
) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		statusOut <- message.CaptureReady()
		barrier.Done()
		barrier.Wait()

		sent := 0
		for {
			select {
			case cmd := <-commandIn:
				if cmd.Kind == message.CommandExit {
					audioOut <- message.EndOfStream()
					statusOut <- message.CaptureDone()
					return
				}
			default:
			}
			if sent < f.chunks {
				c := message.NewAudioChunk(f.channels, 4)
				c.ValidFrames = 4
				audioOut <- message.Audio(c)
				sent++
			} else {
				time.Sleep(time.Millisecond)
			}
		}
	}()
	return done
}

// fakePlayback consumes until EndOfStream.
type fakePlayback struct {
	received int
	mu       sync.Mutex
}

func (f *fakePlayback) Start(
	audioIn <-chan message.AudioMessage,
	barrier *sync.WaitGroup,
	statusOut chan<- message.StatusMessage,
	status *message.PlaybackStatus,
) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		statusOut <- message.PlaybackReady()
		barrier.Done()
		barrier.Wait()
		for msg := range audioIn {
			if msg.Kind == message.KindEndOfStream {
				statusOut <- message.PlaybackDone()
				return
			}
			f.mu.Lock()
			f.received++
			f.mu.Unlock()
		}
	}()
	return done
}

func TestSupervisorExitPropagation(t *testing.T) {
	capture := &fakeCapture{channels: 1, chunks: 5}
	playback := &fakePlayback{}

	sup := New(Config{Capture: capture, Playback: playback, Channels: 1}, nil)

	var reason message.StopReason
	runDone := make(chan struct{})
	go func() {
		reason = sup.Run()
		close(runDone)
	}()

	time.Sleep(20 * time.Millisecond)
	sup.Stop()

	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not terminate")
	}

	assert.Equal(t, message.StopDone, reason.Kind)
	require.GreaterOrEqual(t, playback.received, 0)
}

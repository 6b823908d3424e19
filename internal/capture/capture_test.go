package capture

import (
	"sync"
	"testing"
	"time"

	"github.com/rustyguts/camilladsp/internal/device"
	"github.com/rustyguts/camilladsp/internal/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-memory device.CaptureBackend that serves frames from
// a preloaded queue of float64 values (one amplitude per frame, replicated
// across channels), encoded as S16LE.
type fakeBackend struct {
	mu      sync.Mutex
	frames  []float64 // remaining amplitudes to serve, one per frame
	channels int
	state   device.State
}

func newFakeBackend(channels int, amplitudes []float64) *fakeBackend {
	return &fakeBackend{frames: amplitudes, channels: channels, state: device.StateRunning}
}

func (f *fakeBackend) Open(device.OpenParams) error { return nil }
func (f *fakeBackend) Close() error                 { return nil }
func (f *fakeBackend) State() device.State          { return f.state }
func (f *fakeBackend) Prepare() error                { f.state = device.StateRunning; return nil }
func (f *fakeBackend) StartStream() error            { f.state = device.StateRunning; return nil }
func (f *fakeBackend) AvailableFrames() (int, error) { return len(f.frames), nil }
func (f *fakeBackend) RateAdjuster() *device.RateAdjuster { return &device.RateAdjuster{} }

func (f *fakeBackend) Read(buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	width := message.S16LE.Bytes()
	frameBytes := width * f.channels
	framesToRead := len(buf) / frameBytes
	for i := 0; i < framesToRead; i++ {
		var amp float64
		if len(f.frames) > 0 {
			amp = f.frames[0]
			f.frames = f.frames[1:]
		}
		sample := int16(amp * 32767)
		for ch := 0; ch < f.channels; ch++ {
			off := (i*f.channels + ch) * width
			buf[off] = byte(sample)
			buf[off+1] = byte(sample >> 8)
		}
	}
	return nil
}

func testConfig(channels, chunkFrames, rate int) Config {
	return Config{
		SampleRate:                 rate,
		Channels:                   channels,
		Format:                     message.S16LE,
		ChunkFrames:                chunkFrames,
		UpdateIntervalSeconds:      0.1,
		RateMeasureIntervalSeconds: 0.2,
		ThresholdRatio:             0.01,
		ThresholdCount:             3,
		SilenceThresholdDb:         -50,
		SilenceTimeoutSeconds:      0.05,
		Retry:                      true,
		AvoidBlocking:              false,
	}
}

func runActor(t *testing.T, backend device.CaptureBackend, cfg Config) (chan message.AudioMessage, chan message.StatusMessage, chan message.CommandMessage, *message.CaptureStatus, <-chan struct{}) {
	t.Helper()
	audioOut := make(chan message.AudioMessage, 64)
	statusOut := make(chan message.StatusMessage, 64)
	commandIn := make(chan message.CommandMessage, 4)
	status := message.NewCaptureStatus(cfg.Channels)

	var barrier sync.WaitGroup
	barrier.Add(1)

	a := New(backend, cfg, nil)
	done := a.Start(audioOut, &barrier, statusOut, commandIn, status)
	barrier.Wait()
	return audioOut, statusOut, commandIn, status, done
}

func TestExitPropagation(t *testing.T) {
	backend := newFakeBackend(1, []float64{0.5, 0.5, 0.5, 0.5})
	cfg := testConfig(1, 2, 48000)
	audioOut, statusOut, commandIn, _, done := runActor(t, backend, cfg)

	require.Eventually(t, func() bool {
		select {
		case msg := <-statusOut:
			return msg.Kind == message.StatusCaptureReady
		default:
			return false
		}
	}, time.Second, time.Millisecond)

	commandIn <- message.Exit()

	var gotEOS, gotDone bool
	deadline := time.After(2 * time.Second)
loop:
	for {
		select {
		case m := <-audioOut:
			if m.Kind == message.KindEndOfStream {
				gotEOS = true
			}
		case s := <-statusOut:
			if s.Kind == message.StatusCaptureDone {
				gotDone = true
			}
		case <-deadline:
			break loop
		case <-done:
			// drain remaining buffered values quickly
			for {
				select {
				case m := <-audioOut:
					if m.Kind == message.KindEndOfStream {
						gotEOS = true
					}
				case s := <-statusOut:
					if s.Kind == message.StatusCaptureDone {
						gotDone = true
					}
				default:
					break loop
				}
			}
		}
		if gotEOS && gotDone {
			break
		}
	}

	assert.True(t, gotEOS, "expected EndOfStream")
	assert.True(t, gotDone, "expected CaptureDone")
}

// fakeResampler is an in-memory device.AsyncResampler that requests a fixed
// frame count and halves a chunk's valid frames on Resample, so the test can
// tell a resampled chunk apart from a passed-through one.
type fakeResampler struct {
	mu           sync.Mutex
	framesWanted int
	queried      int
	resampled    int
}

func (r *fakeResampler) SetResampleRatioRelative(float64) error { return nil }

func (r *fakeResampler) FramesNeeded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queried++
	return r.framesWanted
}

func (r *fakeResampler) Resample(c *message.AudioChunk) (*message.AudioChunk, error) {
	r.mu.Lock()
	r.resampled++
	r.mu.Unlock()
	out := message.NewAudioChunk(len(c.Waveforms), c.ValidFrames/2)
	for ch := range c.Waveforms {
		copy(out.Waveforms[ch], c.Waveforms[ch][:c.ValidFrames/2])
	}
	out.ValidFrames = c.ValidFrames / 2
	out.UpdateStats()
	return out, nil
}

func (r *fakeResampler) counts() (queried, resampled int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queried, r.resampled
}

func TestResamplerQueriedAndAppliedPerChunk(t *testing.T) {
	// Backend's fixed ChunkFrames is 4; the resampler asks for 8 frames of
	// input each iteration (§4.1 step 2), and halves them back down on
	// Resample (§4.1 step 7) so the forwarded chunk is distinguishable.
	amplitudes := make([]float64, 64)
	for i := range amplitudes {
		amplitudes[i] = 0.9
	}
	backend := newFakeBackend(1, amplitudes)
	cfg := testConfig(1, 4, 48000)
	resampler := &fakeResampler{framesWanted: 8}
	cfg.Resampler = resampler

	audioOut, _, commandIn, _, _ := runActor(t, backend, cfg)

	var got message.AudioMessage
	require.Eventually(t, func() bool {
		select {
		case m := <-audioOut:
			if m.Kind == message.KindAudio {
				got = m
				return true
			}
		default:
		}
		return false
	}, time.Second, time.Millisecond)

	require.Equal(t, 4, got.Chunk.ValidFrames, "resampler should have halved the 8-frame read down to 4")

	queried, resampled := resampler.counts()
	assert.Greater(t, queried, 0, "FramesNeeded should be queried each iteration")
	assert.Greater(t, resampled, 0, "Resample should be applied before forwarding")

	commandIn <- message.Exit()
}

func TestSilenceGating(t *testing.T) {
	// All-silent frames: should never forward a chunk and should end up Paused.
	amplitudes := make([]float64, 2000)
	backend := newFakeBackend(1, amplitudes)
	cfg := testConfig(1, 100, 48000)
	cfg.SilenceTimeoutSeconds = 0.001
	audioOut, _, commandIn, status, _ := runActor(t, backend, cfg)

	require.Eventually(t, func() bool {
		return status.Snapshot().State == message.Paused
	}, time.Second, time.Millisecond)

	select {
	case m := <-audioOut:
		t.Fatalf("expected no chunk forwarded while silent, got %+v", m)
	case <-time.After(20 * time.Millisecond):
	}

	commandIn <- message.Exit()
}

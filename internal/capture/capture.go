// Package capture implements the §4.1 capture actor: it drains a
// device.CaptureBackend into a stream of message.AudioChunk values, tracks
// the measured sample rate, classifies silence, and applies SetSpeed
// commands to whichever rate-adjust control the backend exposes.
//
// The goroutine/channel shape (spawn in Start, signal done via a closed
// channel, non-blocking control-queue poll each iteration) is grounded on
// the teacher's AudioEngine.captureLoop; the read/xrun/rate-tracking
// algorithm itself is grounded on the original implementation's
// capture_loop_bytes/capture_buffer (§4.1/§4.1.1 transcribe it exactly).
package capture

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rustyguts/camilladsp/internal/countertimer"
	"github.com/rustyguts/camilladsp/internal/device"
	"github.com/rustyguts/camilladsp/internal/message"
)

// Config holds the capture actor's tunable parameters, supplied by the
// (out of scope) configuration layer.
type Config struct {
	SampleRate   int
	Channels     int
	Format       message.SampleFormat
	ChunkFrames  int
	UsedChannels []bool // nil means all channels used

	UpdateIntervalSeconds      float64
	RateMeasureIntervalSeconds float64
	ThresholdRatio             float64
	ThresholdCount             int
	StopOnRateChange           bool

	SilenceThresholdDb    float64
	SilenceTimeoutSeconds float64

	Retry         bool
	AvoidBlocking bool

	// Resampler, if non-nil, is queried each iteration for how many input
	// frames it needs next (§4.1 step 2) and applied to the chunk before
	// it is forwarded (§4.1 step 7). Nil means no resampling: the actor
	// reads exactly ChunkFrames every iteration, as both shipped backends
	// (portaudio, wav) run at a fixed configured rate.
	Resampler device.AsyncResampler
}

// Actor is the generic §4.1 capture actor, parameterized over a
// device.CaptureBackend.
type Actor struct {
	backend device.CaptureBackend
	cfg     Config
	log     *log.Logger
}

// New returns a capture Actor driving backend per cfg.
func New(backend device.CaptureBackend, cfg Config, logger *log.Logger) *Actor {
	if logger == nil {
		logger = log.Default()
	}
	return &Actor{backend: backend, cfg: cfg, log: logger}
}

// Start implements device.CaptureDevice: it opens the device, reports
// readiness, waits on the startup barrier, then runs the capture loop on a
// dedicated goroutine. The returned channel is closed when the goroutine
// exits.
func (a *Actor) Start(
	audioOut chan<- message.AudioMessage,
	barrier *sync.WaitGroup,
	statusOut chan<- message.StatusMessage,
	commandIn <-chan message.CommandMessage,
	status *message.CaptureStatus,
) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		params := device.NewOpenParams(a.cfg.SampleRate, a.cfg.Channels, a.cfg.Format, a.cfg.ChunkFrames)
		if err := a.backend.Open(params); err != nil {
			statusOut <- message.CaptureError(err.Error())
			barrier.Done()
			barrier.Wait()
			return
		}
		statusOut <- message.CaptureReady()
		barrier.Done()
		barrier.Wait()

		a.run(audioOut, statusOut, commandIn, status)
		a.backend.Close()
	}()

	return done
}

func (a *Actor) run(
	audioOut chan<- message.AudioMessage,
	statusOut chan<- message.StatusMessage,
	commandIn <-chan message.CommandMessage,
	status *message.CaptureStatus,
) {
	bytesPerFrame := a.cfg.Channels * a.cfg.Format.Bytes()
	buf := make([]byte, a.cfg.ChunkFrames*bytesPerFrame)

	// Bytes read in the current update / rate-measure window, each timed by
	// its own stopwatch so the measured rate is bytes per elapsed second.
	var shortBytes, longBytes float64
	shortTimer := countertimer.NewStopwatch()
	longTimer := countertimer.NewStopwatch()
	watcher := countertimer.NewValueWatcher(float64(a.cfg.SampleRate), a.cfg.ThresholdRatio, a.cfg.ThresholdCount)
	silence := countertimer.NewSilenceCounter(a.cfg.SilenceThresholdDb, a.cfg.SilenceTimeoutSeconds)

	status.Update(func(s *message.CaptureStatus) {
		s.State = message.Starting
		s.RateAdjust = 1.0
		s.UpdateInterval = a.cfg.UpdateIntervalSeconds
	})

	rateAdjuster := a.backend.RateAdjuster()
	if rateAdjuster.Async == nil && a.cfg.Resampler != nil {
		rateAdjuster.Async = a.cfg.Resampler
	}

	for {
		// Step 1: drain one control message, non-blocking.
		select {
		case cmd := <-commandIn:
			switch cmd.Kind {
			case message.CommandExit:
				audioOut <- message.EndOfStream()
				statusOut <- message.CaptureDone()
				status.Update(func(s *message.CaptureStatus) { s.State = message.Inactive })
				return
			case message.CommandSetSpeed:
				applied, err := rateAdjuster.Apply(cmd.Ratio)
				if err != nil {
					a.log.Warn("rate adjust failed", "target", applied, "err", err)
				}
				status.Update(func(s *message.CaptureStatus) { s.RateAdjust = cmd.Ratio })
			}
		default:
		}

		// Step 2: if a resampler is installed, ask it how many input
		// frames it needs next and grow the capture buffer to match.
		frames := a.cfg.ChunkFrames
		if a.cfg.Resampler != nil {
			if needed := a.cfg.Resampler.FramesNeeded(); needed > 0 {
				frames = needed
			}
		}
		needBytes := frames * bytesPerFrame
		if cap(buf) < needBytes {
			buf = make([]byte, needBytes)
		} else {
			buf = buf[:needBytes]
		}

		// Step 3: read a PCM block.
		outcome := a.readBlock(buf, a.cfg.Retry, a.cfg.AvoidBlocking, bytesPerFrame)
		if outcome.fatal != nil {
			statusOut <- message.CaptureError(outcome.fatal.Error())
			audioOut <- message.EndOfStream()
			status.Update(func(s *message.CaptureStatus) { s.State = message.Inactive })
			return
		}

		// A RecoverableError always carries bytesRead == 0 (readBlock never
		// partially fills buf before returning one), so there is no chunk to
		// convert or forward. The state is forced to Paused directly and
		// steps 4-7 are skipped for this iteration; the silence counter is
		// not updated.
		if outcome.recoverable != nil {
			status.Update(func(s *message.CaptureStatus) { s.State = message.Paused })
			continue
		}

		// Step 4: post-read accounting.
		shortBytes += float64(outcome.bytesRead)
		if elapsed := shortTimer.ElapsedSeconds(); elapsed >= a.cfg.UpdateIntervalSeconds {
			measured := (shortBytes / elapsed) / float64(bytesPerFrame)
			status.Update(func(s *message.CaptureStatus) { s.MeasuredSamplerate = measured })
			shortBytes = 0
			shortTimer.Reset()
		}

		longBytes += float64(outcome.bytesRead)
		if elapsed := longTimer.ElapsedSeconds(); elapsed >= a.cfg.RateMeasureIntervalSeconds {
			measured := (longBytes / elapsed) / float64(bytesPerFrame)
			longBytes = 0
			longTimer.Reset()
			if watcher.Check(measured) {
				if a.cfg.StopOnRateChange {
					audioOut <- message.EndOfStream()
					statusOut <- message.CaptureFormatChange(int(math.Round(measured)))
					status.Update(func(s *message.CaptureStatus) { s.State = message.Inactive })
					return
				}
				a.log.Warn("sustained capture rate deviation", "measured", measured)
			}
		}

		// Step 5: convert bytes to chunk.
		chunk := message.NewAudioChunk(a.cfg.Channels, frames)
		validFrames := outcome.bytesRead / bytesPerFrame
		device.BytesToChunk(buf, a.cfg.Format, a.cfg.Channels, a.cfg.UsedChannels, validFrames, chunk)

		// Step 6: silence classification.
		rng := chunk.Maxval - chunk.Minval
		status.Update(func(s *message.CaptureStatus) { s.SignalRange = rng })
		chunkSeconds := float64(validFrames) / float64(a.cfg.SampleRate)
		state := silence.Update(rng, chunkSeconds)
		status.Update(func(s *message.CaptureStatus) { s.State = state })

		// Step 7: apply resampler (if any) and forward if running.
		if state == message.Running {
			out := chunk
			if a.cfg.Resampler != nil {
				resampled, err := a.cfg.Resampler.Resample(chunk)
				if err != nil {
					a.log.Warn("resample failed", "err", err)
				} else {
					out = resampled
				}
			}
			audioOut <- message.Audio(out)
		}
	}
}

type readOutcome struct {
	bytesRead   int
	recoverable error
	fatal       error
}

// readBlock implements §4.1.1.
func (a *Actor) readBlock(buf []byte, retry, avoidBlocking bool, bytesPerFrame int) readOutcome {
	switch a.backend.State() {
	case device.StateXRun:
		if err := a.backend.Prepare(); err != nil {
			return readOutcome{fatal: err}
		}
	default:
		if a.backend.State() != device.StateRunning {
			if err := a.backend.StartStream(); err != nil {
				return readOutcome{fatal: err}
			}
		}
	}

	framesToRead := len(buf) / bytesPerFrame

	if avoidBlocking {
		avail, err := a.backend.AvailableFrames()
		if err != nil {
			if retry {
				time.Sleep(time.Duration(framesToRead) * time.Second / time.Duration(a.cfg.SampleRate))
				return readOutcome{recoverable: err}
			}
			return readOutcome{fatal: err}
		}
		if avail < framesToRead {
			missing := framesToRead - avail
			waitMs := 1 + (1100*missing)/a.cfg.SampleRate
			time.Sleep(time.Duration(waitMs) * time.Millisecond)
			avail, err = a.backend.AvailableFrames()
			if err != nil {
				if retry {
					time.Sleep(time.Duration(framesToRead) * time.Second / time.Duration(a.cfg.SampleRate))
					return readOutcome{recoverable: err}
				}
				return readOutcome{fatal: err}
			}
			if avail < framesToRead {
				return readOutcome{recoverable: errors.New("insufficient frames available")}
			}
		}
	}

	err := a.backend.Read(buf)
	switch {
	case err == nil:
		return readOutcome{bytesRead: len(buf)}
	case errors.Is(err, device.ErrEIO):
		if retry {
			return readOutcome{recoverable: err}
		}
		return readOutcome{fatal: err}
	case errors.Is(err, device.ErrEPIPE):
		if !retry {
			return readOutcome{fatal: err}
		}
		if perr := a.backend.Prepare(); perr != nil {
			return readOutcome{fatal: perr}
		}
		if rerr := a.backend.Read(buf); rerr != nil {
			return readOutcome{fatal: rerr}
		}
		return readOutcome{bytesRead: len(buf)}
	default:
		return readOutcome{fatal: err}
	}
}

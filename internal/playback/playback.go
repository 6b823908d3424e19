// Package playback implements the §4.2 playback actor: it drains the
// inbound audio queue, writes PCM to a device.PlaybackBackend, and emits
// SetSpeed status messages to correct for clock drift against the
// capture side (§4.2.1).
//
// Grounded the same way as internal/capture: goroutine/channel shape on
// the teacher's AudioEngine.playbackLoop, write/xrun/speed-correction
// algorithm on the original implementation's playback_loop_bytes/
// play_buffer (§4.2/§4.2.2 transcribed exactly).
package playback

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rustyguts/camilladsp/internal/countertimer"
	"github.com/rustyguts/camilladsp/internal/device"
	"github.com/rustyguts/camilladsp/internal/message"
)

func sleepMs(ms int) {
	if ms > 0 {
		time.Sleep(time.Duration(ms) * time.Millisecond)
	}
}

// Config holds the playback actor's tunable parameters.
type Config struct {
	SampleRate  int
	Channels    int
	Format      message.SampleFormat
	ChunkFrames int

	TargetLevelFrames   int // 0 means "use ChunkFrames" per §4.2.1
	AdjustPeriodSeconds float64
	AdjustEnabled       bool
}

func (c Config) targetLevel() int {
	if c.TargetLevelFrames == 0 {
		return c.ChunkFrames
	}
	return c.TargetLevelFrames
}

// Actor is the generic §4.2 playback actor, parameterized over a
// device.PlaybackBackend.
type Actor struct {
	backend device.PlaybackBackend
	cfg     Config
	log     *log.Logger
}

func New(backend device.PlaybackBackend, cfg Config, logger *log.Logger) *Actor {
	if logger == nil {
		logger = log.Default()
	}
	return &Actor{backend: backend, cfg: cfg, log: logger}
}

// Start implements device.PlaybackDevice.
func (a *Actor) Start(
	audioIn <-chan message.AudioMessage,
	barrier *sync.WaitGroup,
	statusOut chan<- message.StatusMessage,
	status *message.PlaybackStatus,
) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		params := device.NewOpenParams(a.cfg.SampleRate, a.cfg.Channels, a.cfg.Format, a.cfg.ChunkFrames)
		if err := a.backend.Open(params); err != nil {
			statusOut <- message.PlaybackError(err.Error())
			barrier.Done()
			barrier.Wait()
			return
		}
		statusOut <- message.PlaybackReady()
		barrier.Done()
		barrier.Wait()

		a.run(audioIn, statusOut, status)
		a.backend.Close()
	}()

	return done
}

func (a *Actor) run(audioIn <-chan message.AudioMessage, statusOut chan<- message.StatusMessage, status *message.PlaybackStatus) {
	bytesPerFrame := a.cfg.Channels * a.cfg.Format.Bytes()
	buf := make([]byte, a.cfg.ChunkFrames*bytesPerFrame)

	delayAvg := countertimer.NewTimeAverage()

	for msg, ok := <-audioIn; ; msg, ok = <-audioIn {
		if !ok {
			statusOut <- message.PlaybackError("audio queue closed unexpectedly")
			return
		}

		if msg.Kind == message.KindEndOfStream {
			statusOut <- message.PlaybackDone()
			return
		}

		chunk := msg.Chunk

		n := chunk.ValidFrames * bytesPerFrame
		if n > len(buf) {
			buf = make([]byte, n)
		}
		clipped := device.ChunkToBytes(chunk, a.cfg.Format, buf[:n])
		if clipped > 0 {
			status.Update(func(s *message.PlaybackStatus) { s.ClippedSamples += uint64(clipped) })
		}

		if delay, err := a.backend.DelayFrames(); err == nil {
			delayAvg.AddValue(float64(delay))
		}

		if delayAvg.Due(a.cfg.AdjustPeriodSeconds) {
			avgDelay := delayAvg.Average()
			if a.cfg.AdjustEnabled && a.cfg.AdjustPeriodSeconds > 0 {
				speed := speedCorrection(avgDelay, float64(a.cfg.targetLevel()), a.cfg.AdjustPeriodSeconds, float64(a.cfg.SampleRate))
				statusOut <- message.SetSpeedStatus(speed)
			}
			status.Update(func(s *message.PlaybackStatus) { s.BufferLevel = avgDelay })
			delayAvg.ResetWindow()
		}

		stats := chunk.Stats()
		rms := make([]float64, len(stats))
		peak := make([]float64, len(stats))
		for i, s := range stats {
			rms[i], peak[i] = s.RMSDb, s.PeakDb
		}
		status.Update(func(s *message.PlaybackStatus) {
			s.SignalRMSDb = rms
			s.SignalPeakDb = peak
		})

		if err := a.writeBlock(buf[:n]); err != nil {
			statusOut <- message.PlaybackError(err.Error())
			return
		}
	}
}

// speedCorrection implements §4.2.1.
func speedCorrection(avgDelay, target, period, rate float64) float64 {
	return 1 + (avgDelay-target)/(period*rate)
}

// writeBlock implements §4.2.2.
func (a *Actor) writeBlock(buf []byte) error {
	targetDelayMs := 0
	switch a.backend.State() {
	case device.StateXRun:
		if err := a.backend.Prepare(); err != nil {
			return err
		}
		targetDelayMs = a.settleMs()
		sleepMs(targetDelayMs)
	case device.StatePrepared:
		targetDelayMs = a.settleMs()
		sleepMs(targetDelayMs)
	}

	if err := a.backend.Write(buf); err == nil {
		return nil
	}

	// Any write error: prepare, settle, retry once. A second failure is fatal.
	if perr := a.backend.Prepare(); perr != nil {
		return perr
	}
	sleepMs(a.settleMs())
	return a.backend.Write(buf)
}

func (a *Actor) settleMs() int {
	return int(1000 * float64(a.cfg.targetLevel()) / float64(a.cfg.SampleRate))
}

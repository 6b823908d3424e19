// Package pipeline implements the external supervisor (§2, §5): it owns
// the inter-actor queues and the startup barrier, starts capture,
// processing, and playback, forwards SetSpeed from playback to capture,
// and reduces the terminal status stream into a single StopReason.
//
// The queue/barrier/goroutine ownership shape is grounded on the teacher's
// AudioEngine.Start/Stop (spawn goroutines, track with a WaitGroup, close a
// stop channel, wait before releasing resources), generalized from two
// actors to the spec's three-actor barrier.
package pipeline

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/rustyguts/camilladsp/internal/device"
	"github.com/rustyguts/camilladsp/internal/graph"
	"github.com/rustyguts/camilladsp/internal/message"
)

// audioQueueCapacity bounds the two inter-actor audio queues. Bounded
// capacity is load-bearing per §9 "Backpressure vs. pacing": capture must
// block (not drop) when playback stalls, which is how a full queue reveals
// itself as a capture-side xrun.
const audioQueueCapacity = 8

// Config bundles the three actor endpoints and the processing stage the
// supervisor wires together.
type Config struct {
	Capture    device.CaptureDevice
	Processing graph.Stage
	Playback   device.PlaybackDevice
	Channels   int
}

// Supervisor owns the pipeline's queues, barrier, and status reduction. It
// is not reusable across runs.
type Supervisor struct {
	cfg Config
	log *log.Logger

	captureStatus    *message.CaptureStatus
	playbackStatus   *message.PlaybackStatus
	processingStatus *message.ProcessingStatus

	commandIn chan message.CommandMessage
}

// New returns a Supervisor ready to Run once.
func New(cfg Config, logger *log.Logger) *Supervisor {
	if logger == nil {
		logger = log.Default()
	}
	return &Supervisor{
		cfg:              cfg,
		log:              logger,
		captureStatus:    message.NewCaptureStatus(cfg.Channels),
		playbackStatus:   message.NewPlaybackStatus(),
		processingStatus: message.NewProcessingStatus(),
		commandIn:        make(chan message.CommandMessage, 2),
	}
}

func (s *Supervisor) CaptureStatus() *message.CaptureStatus     { return s.captureStatus }
func (s *Supervisor) PlaybackStatus() *message.PlaybackStatus   { return s.playbackStatus }
func (s *Supervisor) ProcessingStatus() *message.ProcessingStatus { return s.processingStatus }

// Stop sends Exit to the capture actor's command queue, which begins
// cooperative shutdown (§5 "Cancellation").
func (s *Supervisor) Stop() {
	select {
	case s.commandIn <- message.Exit():
	default:
	}
}

// Run wires capture -> processing -> playback through two bounded audio
// queues and an unbounded status queue, waits for the startup barrier,
// then blocks until the pipeline reaches a terminal state, returning the
// reduced StopReason (§7 "User-visible behavior").
func (s *Supervisor) Run() message.StopReason {
	captureToProcessing := make(chan message.AudioMessage, audioQueueCapacity)
	processingToPlayback := make(chan message.AudioMessage, audioQueueCapacity)
	status := newUnboundedStatusQueue()

	var barrier sync.WaitGroup
	barrier.Add(3)

	captureDone := s.cfg.Capture.Start(captureToProcessing, &barrier, status.in, s.commandIn, s.captureStatus)
	playbackDone := s.cfg.Playback.Start(processingToPlayback, &barrier, status.in, s.playbackStatus)

	processingDone := make(chan struct{})
	go func() {
		defer close(processingDone)
		barrier.Done()
		barrier.Wait()
		s.runProcessing(captureToProcessing, processingToPlayback)
	}()

	reason := s.reduceStatus(status.out)
	s.processingStatus.Set(reason)

	<-captureDone
	<-playbackDone
	<-processingDone
	status.close()

	return reason
}

// runProcessing is the reference processing actor's loop: pull a chunk,
// apply the configured graph.Stage, forward. It has no status of its own
// — a processing error has no representation in §3's StatusMessage set,
// so processing failures are expected to surface as recoverable no-ops or
// panics a caller's own recover() handles, matching the spec's treatment
// of processing as an external collaborator.
func (s *Supervisor) runProcessing(in <-chan message.AudioMessage, out chan<- message.AudioMessage) {
	for msg := range in {
		if msg.Kind == message.KindEndOfStream {
			out <- msg
			return
		}
		if s.cfg.Processing != nil {
			s.cfg.Processing.ProcessChunk(msg.Chunk)
		}
		out <- msg
	}
}

// reduceStatus drains the status queue, forwarding SetSpeed to capture's
// command queue and watching for the terminal condition that determines
// the pipeline's StopReason.
func (s *Supervisor) reduceStatus(out <-chan message.StatusMessage) message.StopReason {
	var playbackDone, captureDone bool
	for m := range out {
		switch m.Kind {
		case message.StatusSetSpeed:
			select {
			case s.commandIn <- message.SetSpeedCommand(m.Speed):
			default:
				s.log.Warn("capture command queue full, dropping SetSpeed")
			}
		case message.StatusCaptureError:
			return message.StopReason{Kind: message.StopCaptureError, Text: m.Text}
		case message.StatusPlaybackError:
			return message.StopReason{Kind: message.StopPlaybackError, Text: m.Text}
		case message.StatusCaptureFormatChange:
			return message.StopReason{Kind: message.StopCaptureFormatChange, Rate: m.Rate}
		case message.StatusPlaybackFormatChange:
			return message.StopReason{Kind: message.StopPlaybackFormatChange, Rate: m.Rate}
		case message.StatusCaptureDone:
			captureDone = true
		case message.StatusPlaybackDone:
			playbackDone = true
		}
		if captureDone && playbackDone {
			return message.StopReason{Kind: message.StopDone}
		}
	}
	return message.StopReason{Kind: message.StopNone}
}

// unboundedStatusQueue adapts an always-accepting input channel to an
// output channel, backed by a growable slice, so that no status-emitting
// actor ever blocks on a full queue (§5: "status is unbounded; never
// blocks audio").
type unboundedStatusQueue struct {
	in  chan message.StatusMessage
	out chan message.StatusMessage
}

func newUnboundedStatusQueue() *unboundedStatusQueue {
	q := &unboundedStatusQueue{
		in:  make(chan message.StatusMessage, 64),
		out: make(chan message.StatusMessage),
	}
	go q.pump()
	return q
}

func (q *unboundedStatusQueue) pump() {
	var buf []message.StatusMessage
	for {
		if len(buf) == 0 {
			m, ok := <-q.in
			if !ok {
				close(q.out)
				return
			}
			buf = append(buf, m)
			continue
		}
		select {
		case m, ok := <-q.in:
			if !ok {
				for _, m := range buf {
					q.out <- m
				}
				close(q.out)
				return
			}
			buf = append(buf, m)
		case q.out <- buf[0]:
			buf = buf[1:]
		}
	}
}

func (q *unboundedStatusQueue) close() {
	close(q.in)
}

// Package message defines the typed values exchanged between the capture,
// processing, and playback actors: audio chunks, the queue envelopes that
// carry them, the status/command messages used for control, and the shared
// status records an external inspection interface reads.
//
// Every type here is a plain value or a small reader/writer-guarded record —
// no actor logic lives in this package.
package message

import (
	"fmt"
	"math"
	"sync"
)

// SampleFormat identifies the wire encoding of one PCM sample.
type SampleFormat int

const (
	S16LE SampleFormat = iota
	S24LE
	S24LE3
	S32LE
	Float32LE
	Float64LE
)

// Bytes returns the on-wire width of one sample in this format. S24LE is
// 4-byte aligned (MSB byte unused); S24LE3 is packed 3-byte.
func (f SampleFormat) Bytes() int {
	switch f {
	case S16LE:
		return 2
	case S24LE, S32LE, Float32LE:
		return 4
	case S24LE3:
		return 3
	case Float64LE:
		return 8
	default:
		return 0
	}
}

func (f SampleFormat) String() string {
	switch f {
	case S16LE:
		return "S16LE"
	case S24LE:
		return "S24LE"
	case S24LE3:
		return "S24LE3"
	case S32LE:
		return "S32LE"
	case Float32LE:
		return "FLOAT32LE"
	case Float64LE:
		return "FLOAT64LE"
	default:
		return fmt.Sprintf("SampleFormat(%d)", int(f))
	}
}

// AudioChunk is the unit exchanged on the inter-actor queues: one ordered
// float64 waveform per channel, all of identical length.
type AudioChunk struct {
	Waveforms   [][]float64 // one per channel; len(Waveforms[c]) == Frames for all c
	Frames      int         // allocated frame count per channel
	ValidFrames int         // leading frames carrying real data; ValidFrames <= Frames
	Minval      float64     // signal minimum over the chunk
	Maxval      float64     // signal maximum over the chunk
}

// NewAudioChunk allocates a chunk for the given channel count and frame
// capacity. ValidFrames starts at 0; callers fill Waveforms and set
// ValidFrames/Minval/Maxval via UpdateStats once data is written.
func NewAudioChunk(channels, frames int) *AudioChunk {
	c := &AudioChunk{
		Waveforms: make([][]float64, channels),
		Frames:    frames,
	}
	for ch := range c.Waveforms {
		c.Waveforms[ch] = make([]float64, frames)
	}
	return c
}

// UpdateStats recomputes Minval/Maxval over the first ValidFrames samples of
// every channel. Callers must set ValidFrames before calling this.
func (c *AudioChunk) UpdateStats() {
	if c.ValidFrames <= 0 || len(c.Waveforms) == 0 {
		c.Minval, c.Maxval = 0, 0
		return
	}
	min, max := math.Inf(1), math.Inf(-1)
	for _, wf := range c.Waveforms {
		n := c.ValidFrames
		if n > len(wf) {
			n = len(wf)
		}
		for _, s := range wf[:n] {
			if s < min {
				min = s
			}
			if s > max {
				max = s
			}
		}
	}
	c.Minval, c.Maxval = min, max
}

// ChannelStats holds the per-channel RMS/peak of a chunk, in dBFS relative to
// full scale 1.0.
type ChannelStats struct {
	RMSDb  float64
	PeakDb float64
}

// Stats returns per-channel RMS (dB) and peak (dB) over the first
// ValidFrames samples of the chunk.
func (c *AudioChunk) Stats() []ChannelStats {
	out := make([]ChannelStats, len(c.Waveforms))
	for ch, wf := range c.Waveforms {
		n := c.ValidFrames
		if n > len(wf) {
			n = len(wf)
		}
		if n <= 0 {
			out[ch] = ChannelStats{RMSDb: math.Inf(-1), PeakDb: math.Inf(-1)}
			continue
		}
		var sumSq float64
		peak := 0.0
		for _, s := range wf[:n] {
			sumSq += s * s
			if a := math.Abs(s); a > peak {
				peak = a
			}
		}
		rms := math.Sqrt(sumSq / float64(n))
		out[ch] = ChannelStats{RMSDb: linearToDb(rms), PeakDb: linearToDb(peak)}
	}
	return out
}

func linearToDb(v float64) float64 {
	if v <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(v)
}

// AudioMessageKind tags the variant held by an AudioMessage.
type AudioMessageKind int

const (
	KindAudio AudioMessageKind = iota
	KindEndOfStream
)

// AudioMessage is a tagged value flowing on the inter-actor audio queues:
// either a chunk of audio or the end-of-stream sentinel. The zero value of
// Chunk is unused when Kind is KindEndOfStream.
//
// This is deliberately a small closed union rather than an interface: the
// set of variants is fixed and the narrow-interface approach (§9) is
// reserved for the open-ended filter/resampler plug-in points.
type AudioMessage struct {
	Kind  AudioMessageKind
	Chunk *AudioChunk
}

func Audio(c *AudioChunk) AudioMessage { return AudioMessage{Kind: KindAudio, Chunk: c} }
func EndOfStream() AudioMessage        { return AudioMessage{Kind: KindEndOfStream} }

// StatusKind tags the variant held by a StatusMessage.
type StatusKind int

const (
	StatusPlaybackReady StatusKind = iota
	StatusCaptureReady
	StatusPlaybackError
	StatusCaptureError
	StatusPlaybackFormatChange
	StatusCaptureFormatChange
	StatusPlaybackDone
	StatusCaptureDone
	StatusSetSpeed
)

// StatusMessage surfaces actor lifecycle/failure to the supervisor. Only the
// field relevant to Kind is populated.
type StatusMessage struct {
	Kind  StatusKind
	Text  string  // PlaybackError / CaptureError
	Rate  int     // PlaybackFormatChange / CaptureFormatChange
	Speed float64 // SetSpeed
}

func PlaybackReady() StatusMessage             { return StatusMessage{Kind: StatusPlaybackReady} }
func CaptureReady() StatusMessage              { return StatusMessage{Kind: StatusCaptureReady} }
func PlaybackError(text string) StatusMessage  { return StatusMessage{Kind: StatusPlaybackError, Text: text} }
func CaptureError(text string) StatusMessage   { return StatusMessage{Kind: StatusCaptureError, Text: text} }
func PlaybackFormatChange(rate int) StatusMessage {
	return StatusMessage{Kind: StatusPlaybackFormatChange, Rate: rate}
}
func CaptureFormatChange(rate int) StatusMessage {
	return StatusMessage{Kind: StatusCaptureFormatChange, Rate: rate}
}
func PlaybackDone() StatusMessage            { return StatusMessage{Kind: StatusPlaybackDone} }
func CaptureDone() StatusMessage             { return StatusMessage{Kind: StatusCaptureDone} }
func SetSpeedStatus(ratio float64) StatusMessage { return StatusMessage{Kind: StatusSetSpeed, Speed: ratio} }

// CommandKind tags the variant held by a CommandMessage.
type CommandKind int

const (
	CommandExit CommandKind = iota
	CommandSetSpeed
)

// CommandMessage is sent from the supervisor to the capture actor's control
// queue.
type CommandMessage struct {
	Kind  CommandKind
	Ratio float64 // CommandSetSpeed
}

func Exit() CommandMessage                  { return CommandMessage{Kind: CommandExit} }
func SetSpeedCommand(ratio float64) CommandMessage {
	return CommandMessage{Kind: CommandSetSpeed, Ratio: ratio}
}

// ProcessingState is the capture-side lifecycle state. Inactive is terminal.
type ProcessingState int

const (
	Starting ProcessingState = iota
	Running
	Paused
	Inactive
)

func (s ProcessingState) String() string {
	switch s {
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Paused:
		return "Paused"
	case Inactive:
		return "Inactive"
	default:
		return "Unknown"
	}
}

// StopReasonKind tags the variant held by a StopReason.
type StopReasonKind int

const (
	StopNone StopReasonKind = iota
	StopDone
	StopCaptureError
	StopPlaybackError
	StopCaptureFormatChange
	StopPlaybackFormatChange
)

// StopReason is the terminal condition the pipeline reports once finished.
type StopReason struct {
	Kind StopReasonKind
	Text string // *Error
	Rate int    // *FormatChange
}

// CaptureStatus is the shared, reader/writer-guarded record the capture
// actor publishes to and an external inspection interface reads.
//
// Lock-hold times must never cross a blocking I/O call: writers copy a
// snapshot out of or a value into the struct and release the lock before
// doing anything that can block.
type CaptureStatus struct {
	mu sync.RWMutex

	UpdateInterval    float64
	MeasuredSamplerate float64
	SignalRange       float64
	SignalRMSDb       []float64
	SignalPeakDb      []float64
	State             ProcessingState
	RateAdjust        float64
	UsedChannels      []bool
}

// NewCaptureStatus returns a CaptureStatus with RateAdjust at unity and
// State at Starting.
func NewCaptureStatus(channels int) *CaptureStatus {
	return &CaptureStatus{
		RateAdjust:   1.0,
		State:        Starting,
		UsedChannels: make([]bool, channels),
	}
}

// Snapshot returns a copy of the status safe to read without holding the lock.
func (s *CaptureStatus) Snapshot() CaptureStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := *s
	cp.SignalRMSDb = append([]float64(nil), s.SignalRMSDb...)
	cp.SignalPeakDb = append([]float64(nil), s.SignalPeakDb...)
	cp.UsedChannels = append([]bool(nil), s.UsedChannels...)
	return cp
}

func (s *CaptureStatus) Update(f func(*CaptureStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(s)
}

// PlaybackStatus is the shared, reader/writer-guarded record the playback
// actor publishes to.
type PlaybackStatus struct {
	mu sync.RWMutex

	UpdateInterval float64
	ClippedSamples uint64
	BufferLevel    float64
	SignalRMSDb    []float64
	SignalPeakDb   []float64
}

func NewPlaybackStatus() *PlaybackStatus {
	return &PlaybackStatus{}
}

func (s *PlaybackStatus) Snapshot() PlaybackStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := *s
	cp.SignalRMSDb = append([]float64(nil), s.SignalRMSDb...)
	cp.SignalPeakDb = append([]float64(nil), s.SignalPeakDb...)
	return cp
}

func (s *PlaybackStatus) Update(f func(*PlaybackStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(s)
}

// ProcessingParameters are the live, externally adjustable controls on the
// processing graph: master volume (dB) and mute.
type ProcessingParameters struct {
	mu     sync.RWMutex
	Volume float64
	Mute   bool
}

func NewProcessingParameters() *ProcessingParameters {
	return &ProcessingParameters{Volume: 0}
}

func (p *ProcessingParameters) Get() (volume float64, mute bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Volume, p.Mute
}

func (p *ProcessingParameters) SetVolume(db float64) {
	p.mu.Lock()
	p.Volume = db
	p.mu.Unlock()
}

func (p *ProcessingParameters) SetMute(mute bool) {
	p.mu.Lock()
	p.Mute = mute
	p.mu.Unlock()
}

// ProcessingStatus holds the terminal StopReason, set once the pipeline has
// finished.
type ProcessingStatus struct {
	mu         sync.RWMutex
	StopReason StopReason
}

func NewProcessingStatus() *ProcessingStatus {
	return &ProcessingStatus{}
}

func (p *ProcessingStatus) Set(r StopReason) {
	p.mu.Lock()
	p.StopReason = r
	p.mu.Unlock()
}

func (p *ProcessingStatus) Get() StopReason {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.StopReason
}

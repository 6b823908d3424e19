// Package portaudiodevice implements device.CaptureBackend and
// device.PlaybackBackend over PortAudio's blocking stream API, the same
// library and Read()/Write()-blocking shape the teacher's AudioEngine
// builds on (audio.go Start/captureLoop/playbackLoop).
//
// The blocking PortAudio API has no explicit XRun/Prepare state machine of
// its own; Read/Write report overflow/underflow via a sentinel error
// (portaudio.InputOverflowed/OutputUnderflowed) on the call where it
// happened. This backend tracks that as device.StateXRun until the next
// Prepare, mirroring the ALSA state machine §4.1.1/§4.2.2 expect from any
// backend.
package portaudiodevice

import (
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/rustyguts/camilladsp/internal/device"
	"github.com/rustyguts/camilladsp/internal/message"
)

// Capture is a device.CaptureBackend backed by a PortAudio input stream.
// Only message.Float32LE is supported — PortAudio's Go binding is typed
// per-stream, and float32 is its most direct sample representation.
type Capture struct {
	deviceIndex int // -1 selects the PortAudio default input device
	stream      *portaudio.Stream
	buf         []float32
	channels    int
	state       device.State
}

// NewCapture returns a Capture bound to the given PortAudio device index,
// or the system default input device if idx < 0.
func NewCapture(idx int) *Capture {
	return &Capture{deviceIndex: idx, state: device.StateRunning}
}

func (c *Capture) Open(params device.OpenParams) error {
	if params.Format != message.Float32LE {
		return fmt.Errorf("portaudio capture: only FLOAT32LE is supported, got %s", params.Format)
	}
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return err
	}
	info, err := resolveDevice(devices, c.deviceIndex, portaudio.DefaultInputDevice)
	if err != nil {
		return err
	}

	c.channels = params.Channels
	// BufferFrames is twice the chunk size (device.NewOpenParams), so this
	// buffer holds one chunk: each Read fills one chunk's worth of bytes.
	c.buf = make([]float32, params.Channels*params.BufferFrames/2)

	sp := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: params.Channels,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      float64(params.SampleRate),
		FramesPerBuffer: params.PeriodFrames,
	}
	stream, err := portaudio.OpenStream(sp, c.buf)
	if err != nil {
		return err
	}
	c.stream = stream
	return stream.Start()
}

func (c *Capture) Close() error {
	if c.stream == nil {
		return nil
	}
	err := c.stream.Close()
	c.stream = nil
	return err
}

func (c *Capture) State() device.State { return c.state }

func (c *Capture) Prepare() error {
	c.state = device.StateRunning
	return nil
}

func (c *Capture) StartStream() error {
	return c.stream.Start()
}

// AvailableFrames is not exposed by the blocking PortAudio API; report one
// full chunk as always available so the §4.1.1 avoid_blocking_read path
// degrades to a plain blocking read.
func (c *Capture) AvailableFrames() (int, error) {
	return len(c.buf) / c.channels, nil
}

func (c *Capture) Read(buf []byte) error {
	if err := c.stream.Read(); err != nil {
		if err == portaudio.InputOverflowed {
			c.state = device.StateXRun
			return device.ErrEPIPE
		}
		return device.ErrEIO
	}
	encodeFloat32LE(c.buf, buf)
	return nil
}

// Capabilities reports the bound device's channel count and name for
// diagnostics, probing device.StandardRates against PortAudio's default
// sample rate since the blocking API exposes no discrete rate list. Only
// FLOAT32LE is ever reported: this backend supports no other wire format.
func (c *Capture) Capabilities() (device.Capabilities, error) {
	if err := portaudio.Initialize(); err != nil {
		return device.Capabilities{}, err
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return device.Capabilities{}, err
	}
	info, err := resolveDevice(devices, c.deviceIndex, portaudio.DefaultInputDevice)
	if err != nil {
		return device.Capabilities{}, err
	}
	return probeCapabilities(info, info.MaxInputChannels), nil
}

func (c *Capture) RateAdjuster() *device.RateAdjuster {
	// PortAudio exposes no hardware rate-shift or USB pitch control surface;
	// an async software resampler, if one is set in capture.Config, is
	// installed into this RateAdjuster by the capture actor, not here.
	return &device.RateAdjuster{}
}

// Playback is a device.PlaybackBackend backed by a PortAudio output stream.
type Playback struct {
	deviceIndex int
	stream      *portaudio.Stream
	buf         []float32
	channels    int
	state       device.State
}

func NewPlayback(idx int) *Playback {
	return &Playback{deviceIndex: idx, state: device.StateRunning}
}

func (p *Playback) Open(params device.OpenParams) error {
	if params.Format != message.Float32LE {
		return fmt.Errorf("portaudio playback: only FLOAT32LE is supported, got %s", params.Format)
	}
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return err
	}
	info, err := resolveDevice(devices, p.deviceIndex, portaudio.DefaultOutputDevice)
	if err != nil {
		return err
	}

	p.channels = params.Channels
	// One chunk, as on the capture side: each Write plays one chunk.
	p.buf = make([]float32, params.Channels*params.BufferFrames/2)

	sp := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: params.Channels,
			Latency:  info.DefaultLowOutputLatency,
		},
		SampleRate:      float64(params.SampleRate),
		FramesPerBuffer: params.PeriodFrames,
	}
	stream, err := portaudio.OpenStream(sp, p.buf)
	if err != nil {
		return err
	}
	p.stream = stream
	return stream.Start()
}

func (p *Playback) Close() error {
	if p.stream == nil {
		return nil
	}
	err := p.stream.Close()
	p.stream = nil
	return err
}

func (p *Playback) State() device.State { return p.state }

func (p *Playback) Prepare() error {
	p.state = device.StateRunning
	return nil
}

func (p *Playback) StartStream() error {
	return p.stream.Start()
}

// Capabilities reports the bound output device's channel count and name,
// analogous to Capture.Capabilities.
func (p *Playback) Capabilities() (device.Capabilities, error) {
	if err := portaudio.Initialize(); err != nil {
		return device.Capabilities{}, err
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return device.Capabilities{}, err
	}
	info, err := resolveDevice(devices, p.deviceIndex, portaudio.DefaultOutputDevice)
	if err != nil {
		return device.Capabilities{}, err
	}
	return probeCapabilities(info, info.MaxOutputChannels), nil
}

// DelayFrames is not exposed by the blocking PortAudio API; report one
// chunk as a constant estimate.
func (p *Playback) DelayFrames() (int, error) {
	return len(p.buf) / p.channels, nil
}

func (p *Playback) Write(buf []byte) error {
	decodeFloat32LE(buf, p.buf)
	if err := p.stream.Write(); err != nil {
		if err == portaudio.OutputUnderflowed {
			p.state = device.StateXRun
			return device.ErrEPIPE
		}
		return device.ErrEIO
	}
	return nil
}

func resolveDevice(devices []*portaudio.DeviceInfo, idx int, fallback func() (*portaudio.DeviceInfo, error)) (*portaudio.DeviceInfo, error) {
	if idx >= 0 && idx < len(devices) {
		return devices[idx], nil
	}
	return fallback()
}

// probeCapabilities builds a device.Capabilities from a PortAudio device's
// reported default sample rate and a channel count, restricting
// device.StandardRates to those at most twice the default —
// PortAudio itself will reject an Open at an unsupported rate, so this is a
// diagnostic hint, not a guarantee.
func probeCapabilities(info *portaudio.DeviceInfo, maxChannels int) device.Capabilities {
	var rates []int
	for _, r := range device.StandardRates {
		if float64(r) <= info.DefaultSampleRate*2 {
			rates = append(rates, r)
		}
	}
	chans := make([]int, 0, maxChannels)
	for n := 1; n <= maxChannels; n++ {
		chans = append(chans, n)
	}
	return device.Capabilities{
		Name:             info.Name,
		SupportedRates:   rates,
		SupportedChans:   chans,
		SupportedFormats: []message.SampleFormat{message.Float32LE},
	}
}

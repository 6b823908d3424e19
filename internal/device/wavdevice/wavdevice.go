// Package wavdevice implements device.CaptureBackend and
// device.PlaybackBackend over WAV files using go-audio/wav and
// go-audio/audio. It stands in for the always-available "File" device the
// original implementation ships alongside its hardware backends, and gives
// the §8 end-to-end scenarios (sine-wave fixtures, deterministic RMS
// comparisons) a backend that needs no real audio hardware to drive.
package wavdevice

import (
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/rustyguts/camilladsp/internal/device"
	"github.com/rustyguts/camilladsp/internal/message"
)

// Capture reads PCM frames out of a pre-decoded WAV file. It never blocks
// and never xruns: AvailableFrames always reports the full remaining file,
// and State never reports StateXRun.
type Capture struct {
	channels   int
	sampleRate int
	bytesLeft  []byte
	format     message.SampleFormat
}

// NewCapture decodes r fully into memory. r's format (channel count,
// sample rate) must match the pipeline's configured capture format; samples
// are converted to S16LE here: wider samples are shifted down to 16 bits,
// and 16-bit or narrower samples are copied without scaling.
func NewCapture(r io.Reader) (*Capture, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("wavdevice: not a valid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	raw := make([]byte, 0, len(buf.Data)*2)
	shift := buf.SourceBitDepth - 16
	for _, s := range buf.Data {
		if shift > 0 {
			s >>= shift
		}
		v := int16(s)
		raw = append(raw, byte(v), byte(v>>8))
	}
	return &Capture{
		channels:   buf.Format.NumChannels,
		sampleRate: buf.Format.SampleRate,
		bytesLeft:  raw,
		format:     message.S16LE,
	}, nil
}

// Capabilities reports the fixed format of the decoded source file: a WAV
// file has exactly one rate, channel count, and (post-decode) bit depth, so
// unlike a real device there is nothing to probe.
func (c *Capture) Capabilities() (device.Capabilities, error) {
	return device.Capabilities{
		Name:             "wav-file",
		SupportedRates:   []int{c.sampleRate},
		SupportedChans:   []int{c.channels},
		SupportedFormats: []message.SampleFormat{c.format},
	}, nil
}

func (c *Capture) Open(params device.OpenParams) error {
	if params.Format != c.format {
		return fmt.Errorf("wavdevice capture: expected format %s, pipeline requested %s", c.format, params.Format)
	}
	return nil
}

func (c *Capture) Close() error                 { return nil }
func (c *Capture) State() device.State          { return device.StateRunning }
func (c *Capture) Prepare() error                { return nil }
func (c *Capture) StartStream() error            { return nil }
func (c *Capture) AvailableFrames() (int, error) { return len(c.bytesLeft) / (2 * c.channels), nil }

// Read copies min(len(buf), remaining) bytes, zero-filling any tail once
// the file is exhausted (silence after end of file, which the silence
// classifier will eventually pause on).
func (c *Capture) Read(buf []byte) error {
	n := copy(buf, c.bytesLeft)
	c.bytesLeft = c.bytesLeft[n:]
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	return nil
}

func (c *Capture) RateAdjuster() *device.RateAdjuster {
	return &device.RateAdjuster{}
}

// Playback accumulates written frames and flushes them to a WAV file on
// Close.
type Playback struct {
	w          io.WriteSeeker
	enc        *wav.Encoder
	channels   int
	sampleRate int
	format     message.SampleFormat
}

// NewPlayback returns a Playback that will encode to w once Open is
// called.
func NewPlayback(w io.WriteSeeker) *Playback {
	return &Playback{w: w}
}

func (p *Playback) Open(params device.OpenParams) error {
	if params.Format != message.S16LE {
		return fmt.Errorf("wavdevice playback: only S16LE is supported, got %s", params.Format)
	}
	p.channels = params.Channels
	p.sampleRate = params.SampleRate
	p.format = params.Format
	p.enc = wav.NewEncoder(p.w, params.SampleRate, 16, params.Channels, 1)
	return nil
}

func (p *Playback) Close() error {
	if p.enc == nil {
		return nil
	}
	return p.enc.Close()
}

func (p *Playback) State() device.State      { return device.StateRunning }
func (p *Playback) Prepare() error            { return nil }
func (p *Playback) StartStream() error        { return nil }
func (p *Playback) DelayFrames() (int, error) { return 0, nil }

// Capabilities reports the format the Playback was opened with.
func (p *Playback) Capabilities() (device.Capabilities, error) {
	return device.Capabilities{
		Name:             "wav-file",
		SupportedRates:   []int{p.sampleRate},
		SupportedChans:   []int{p.channels},
		SupportedFormats: []message.SampleFormat{p.format},
	}, nil
}

func (p *Playback) Write(buf []byte) error {
	n := len(buf) / 2
	ints := make([]int, n)
	for i := 0; i < n; i++ {
		v := int16(uint16(buf[i*2]) | uint16(buf[i*2+1])<<8)
		ints[i] = int(v)
	}
	ib := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: p.channels, SampleRate: p.sampleRate},
		Data:           ints,
		SourceBitDepth: 16,
	}
	return p.enc.Write(ib)
}

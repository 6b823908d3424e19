// Package graph implements a reference processing actor: the spec treats
// processing as an external collaborator (§2), specified only by its
// interface (consume a chunk queue, apply a filter/mixer graph, produce a
// chunk queue). This package is one concrete, runnable graph — an ordered
// chain of Stage values, each a narrow one-method interface (ProcessChunk)
// — built from Filter sections (one biquad.Biquad per channel) plus a
// Gain/mute stage driven by message.ProcessingParameters.
package graph

import (
	"math"

	"github.com/rustyguts/camilladsp/internal/biquad"
	"github.com/rustyguts/camilladsp/internal/message"
)

// Stage is the narrow processing-graph plug-in point: anything that can
// transform a chunk in place.
type Stage interface {
	ProcessChunk(c *message.AudioChunk)
}

// Filter wraps one biquad.Biquad per channel, applied independently to
// each channel's waveform.
type Filter struct {
	perChannel []*biquad.Biquad
}

// NewFilter returns a Filter with one independent Biquad instance (own
// delay state) per channel, all built from the same coefficients.
func NewFilter(coeffs biquad.Coefficients, channels int) *Filter {
	f := &Filter{perChannel: make([]*biquad.Biquad, channels)}
	for i := range f.perChannel {
		f.perChannel[i] = biquad.New(coeffs)
	}
	return f
}

func (f *Filter) ProcessChunk(c *message.AudioChunk) {
	for ch, wf := range c.Waveforms {
		if ch >= len(f.perChannel) {
			return
		}
		f.perChannel[ch].ProcessWaveform(wf[:c.ValidFrames])
	}
}

// Gain applies the live master volume (dB) and mute flag from a
// message.ProcessingParameters to every channel. Its dB-to-linear mapping
// idiom is grounded on the teacher's internal/agc.SetTarget [0,100]-range
// mapping, generalized to a dB control instead of a fixed percentage scale.
type Gain struct {
	params *message.ProcessingParameters
}

func NewGain(params *message.ProcessingParameters) *Gain {
	return &Gain{params: params}
}

func (g *Gain) ProcessChunk(c *message.AudioChunk) {
	volumeDb, mute := g.params.Get()
	if mute {
		for _, wf := range c.Waveforms {
			for i := range wf[:c.ValidFrames] {
				wf[i] = 0
			}
		}
		return
	}
	linear := dbToLinear(volumeDb)
	if linear == 1.0 {
		return
	}
	for _, wf := range c.Waveforms {
		for i, s := range wf[:c.ValidFrames] {
			wf[i] = s * linear
		}
	}
}

func dbToLinear(db float64) float64 {
	if db == 0 {
		return 1.0
	}
	return math.Pow(10, db/20)
}

// Chain is an ordered sequence of stages applied to every chunk that
// passes through. It is the processing actor's reference implementation of
// §2's "consumes chunks, applies the configured filter/mixer graph".
type Chain struct {
	stages []Stage
}

func NewChain(stages ...Stage) *Chain {
	return &Chain{stages: stages}
}

func (c *Chain) ProcessChunk(chunk *message.AudioChunk) {
	for _, s := range c.stages {
		s.ProcessChunk(chunk)
	}
}

// Package biquad implements the transposed direct-form II biquad filter
// kernel and its six coefficient-design families (Free, Lowpass, Highpass,
// Peaking, Highshelf, Lowshelf).
//
// The set of families is closed, so — per the narrow-interface-vs-sum-type
// design note — this is modeled as a sealed set of constructor functions
// returning a single Coefficients value rather than an interface hierarchy.
package biquad

import "math"

// Coefficients are the five normalized scalars of a biquad section; a0 is
// implicitly 1 after normalization.
type Coefficients struct {
	A1, A2, B0, B1, B2 float64
}

// normalize divides b0,b1,b2,a1,a2 by a0, folding a0 to 1.
func normalize(a0, a1, a2, b0, b1, b2 float64) Coefficients {
	return Coefficients{
		A1: a1 / a0,
		A2: a2 / a0,
		B0: b0 / a0,
		B1: b1 / a0,
		B2: b2 / a0,
	}
}

// Free builds coefficients directly from already-normalized values (a0 is
// implicitly 1).
func Free(a1, a2, b0, b1, b2 float64) Coefficients {
	return Coefficients{A1: a1, A2: a2, B0: b0, B1: b1, B2: b2}
}

func omega(freq, fs float64) (sn, cs float64) {
	w := 2 * math.Pi * freq / fs
	return math.Sin(w), math.Cos(w)
}

// Lowpass builds a resonant lowpass section with quality factor q.
func Lowpass(freq, fs, q float64) Coefficients {
	sn, cs := omega(freq, fs)
	alpha := sn / (2 * q)
	b0 := (1 - cs) / 2
	b1 := 1 - cs
	b2 := b0
	a0 := 1 + alpha
	a1 := -2 * cs
	a2 := 1 - alpha
	return normalize(a0, a1, a2, b0, b1, b2)
}

// Highpass builds a resonant highpass section with quality factor q.
func Highpass(freq, fs, q float64) Coefficients {
	sn, cs := omega(freq, fs)
	alpha := sn / (2 * q)
	b0 := (1 + cs) / 2
	b1 := -(1 + cs)
	b2 := b0
	a0 := 1 + alpha
	a1 := -2 * cs
	a2 := 1 - alpha
	return normalize(a0, a1, a2, b0, b1, b2)
}

// Peaking builds a parametric peaking EQ section: quality factor q, gain in dB.
func Peaking(freq, fs, q, gainDb float64) Coefficients {
	sn, cs := omega(freq, fs)
	a := math.Pow(10, gainDb/40)
	alpha := sn / (2 * q)
	b0 := 1 + alpha*a
	b1 := -2 * cs
	b2 := 1 - alpha*a
	a0 := 1 + alpha/a
	a1 := -2 * cs
	a2 := 1 - alpha/a
	return normalize(a0, a1, a2, b0, b1, b2)
}

// Highshelf builds a high-shelf section: slope in dB/octave, gain in dB.
func Highshelf(freq, fs, slope, gainDb float64) Coefficients {
	sn, cs := omega(freq, fs)
	a := math.Pow(10, gainDb/40)
	alpha := (sn / 2) * math.Sqrt((a+1/a)*(12/slope-1)+2)
	beta := 2 * math.Sqrt(a) * alpha

	b0 := a * ((a + 1) + (a-1)*cs + beta)
	b1 := -2 * a * ((a - 1) + (a+1)*cs)
	b2 := a * ((a + 1) + (a-1)*cs - beta)
	a0 := (a + 1) - (a-1)*cs + beta
	a1 := 2 * ((a - 1) - (a+1)*cs)
	a2 := (a + 1) - (a-1)*cs - beta
	return normalize(a0, a1, a2, b0, b1, b2)
}

// Lowshelf builds a low-shelf section: mirror of Highshelf with the sign of
// every cs term flipped in both numerator and denominator, and b1 and a1
// additionally negated as a whole.
func Lowshelf(freq, fs, slope, gainDb float64) Coefficients {
	sn, cs := omega(freq, fs)
	a := math.Pow(10, gainDb/40)
	alpha := (sn / 2) * math.Sqrt((a+1/a)*(12/slope-1)+2)
	beta := 2 * math.Sqrt(a) * alpha

	b0 := a * ((a + 1) - (a-1)*cs + beta)
	b1 := 2 * a * ((a - 1) - (a+1)*cs)
	b2 := a * ((a + 1) - (a-1)*cs - beta)
	a0 := (a + 1) + (a-1)*cs + beta
	a1 := -2 * ((a - 1) + (a+1)*cs)
	a2 := (a + 1) + (a-1)*cs - beta
	return normalize(a0, a1, a2, b0, b1, b2)
}

// Biquad is a single transposed direct-form II filter instance. The delay
// registers persist across waveform calls and are mutated by exactly one
// goroutine at a time (the processing actor's owning stage).
type Biquad struct {
	c      Coefficients
	s1, s2 float64
}

// New returns a Biquad with zeroed delay state.
func New(c Coefficients) *Biquad {
	return &Biquad{c: c}
}

// ProcessSingle filters one sample and updates the delay registers.
func (f *Biquad) ProcessSingle(x float64) float64 {
	y := f.s1 + f.c.B0*x
	f.s1 = f.s2 + f.c.B1*x - f.c.A1*y
	f.s2 = f.c.B2*x - f.c.A2*y
	return y
}

// ProcessWaveform filters wf in place.
func (f *Biquad) ProcessWaveform(wf []float64) {
	for i, x := range wf {
		wf[i] = f.ProcessSingle(x)
	}
}

// Reset clears the delay registers without changing the coefficients.
func (f *Biquad) Reset() {
	f.s1, f.s2 = 0, 0
}

// Coefficients returns the filter's current coefficients.
func (f *Biquad) Coefficients() Coefficients { return f.c }

// FreqResponseDb returns the filter's magnitude response at freq (Hz) for a
// filter designed at sample rate fs, in dB. Evaluates the transfer function
// on the unit circle: H(e^jw) = (b0 + b1*z^-1 + b2*z^-2) / (1 + a1*z^-1 + a2*z^-2).
func FreqResponseDb(c Coefficients, freq, fs float64) float64 {
	w := 2 * math.Pi * freq / fs
	// z^-1 = e^-jw
	cr, ci := math.Cos(w), -math.Sin(w)
	cr2, ci2 := cr*cr-ci*ci, 2*cr*ci // z^-2 = (z^-1)^2

	numR := c.B0 + c.B1*cr + c.B2*cr2
	numI := c.B1*ci + c.B2*ci2
	denR := 1 + c.A1*cr + c.A2*cr2
	denI := c.A1*ci + c.A2*ci2

	magNum := math.Hypot(numR, numI)
	magDen := math.Hypot(denR, denI)
	if magDen == 0 {
		return math.Inf(1)
	}
	mag := magNum / magDen
	if mag <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(mag)
}

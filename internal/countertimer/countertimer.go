// Package countertimer provides the small averaging, timing, and
// threshold-detector utilities shared by the capture and playback actors:
// windowed averaging of a running value, elapsed-time tracking, sustained
// rate-drift detection (§4.4), and the elapsed-time silence classifier
// (§4.5).
//
// These are grounded in idiom (not file) on the teacher's internal/vad and
// internal/noisegate packages — small New()/SetX() structs with a single
// Process/Update entry point and no hidden global state.
package countertimer

import (
	"math"
	"time"

	"github.com/rustyguts/camilladsp/internal/message"
)

// Averager accumulates a running sum and count for a simple mean.
type Averager struct {
	sum   float64
	count int
}

func NewAverager() *Averager { return &Averager{} }

func (a *Averager) AddValue(v float64) {
	a.sum += v
	a.count++
}

// Average returns the mean of all values added since the last Reset, or 0
// if none have been added.
func (a *Averager) Average() float64 {
	if a.count == 0 {
		return 0
	}
	return a.sum / float64(a.count)
}

func (a *Averager) Count() int { return a.count }

func (a *Averager) Reset() {
	a.sum = 0
	a.count = 0
}

// Stopwatch tracks elapsed wall-clock time since construction or the last
// Reset. It does not use a monotonic injected clock — callers that need
// deterministic tests drive it through short real sleeps, matching how the
// teacher's hold/hangover counters are exercised in frame-count space.
type Stopwatch struct {
	start time.Time
}

func NewStopwatch() *Stopwatch {
	return &Stopwatch{start: time.Now()}
}

func (s *Stopwatch) Elapsed() time.Duration {
	return time.Since(s.start)
}

func (s *Stopwatch) ElapsedSeconds() float64 {
	return s.Elapsed().Seconds()
}

func (s *Stopwatch) Reset() {
	s.start = time.Now()
}

// TimeAverage combines an Averager with a Stopwatch: it reports whether the
// window has exceeded a configured interval, and yields the window average
// together with a Reset of both the sum and the clock.
type TimeAverage struct {
	avg *Averager
	sw  *Stopwatch
}

func NewTimeAverage() *TimeAverage {
	return &TimeAverage{avg: NewAverager(), sw: NewStopwatch()}
}

func (t *TimeAverage) AddValue(v float64) {
	t.avg.AddValue(v)
}

// Due reports whether the window has been open at least intervalSeconds.
func (t *TimeAverage) Due(intervalSeconds float64) bool {
	return t.sw.ElapsedSeconds() >= intervalSeconds
}

// Average returns the window's mean.
func (t *TimeAverage) Average() float64 {
	return t.avg.Average()
}

// ResetWindow clears the accumulated sum/count and restarts the stopwatch.
func (t *TimeAverage) ResetWindow() {
	t.avg.Reset()
	t.sw.Reset()
}

// ValueWatcher is the §4.4 rate-drift change-detector: it observes a stream
// of measured values against a baseline fixed at construction and reports
// "changed" once |v-baseline|/baseline has exceeded thresholdRatio for
// thresholdCount consecutive samples. The baseline never drifts.
type ValueWatcher struct {
	baseline      float64
	thresholdRatio float64
	thresholdCount int
	consecutive   int
}

func NewValueWatcher(baseline, thresholdRatio float64, thresholdCount int) *ValueWatcher {
	return &ValueWatcher{
		baseline:       baseline,
		thresholdRatio: thresholdRatio,
		thresholdCount: thresholdCount,
	}
}

// Check adds one sample and reports whether a sustained deviation has now
// been observed for thresholdCount consecutive samples.
func (w *ValueWatcher) Check(v float64) bool {
	if w.baseline == 0 {
		return false
	}
	deviated := math.Abs(v-w.baseline)/math.Abs(w.baseline) > w.thresholdRatio
	if deviated {
		w.consecutive++
	} else {
		w.consecutive = 0
	}
	return w.consecutive >= w.thresholdCount
}

// Reset clears the consecutive-deviation counter without changing the
// baseline.
func (w *ValueWatcher) Reset() {
	w.consecutive = 0
}

// SilenceCounter is the §4.5 chunk-granularity silence classifier. It
// converts a linear signal range to dB and accumulates elapsed below-
// threshold time; once that accumulated time exceeds the configured
// timeout it reports Paused. Any chunk at or above threshold resets the
// accumulator and reports Running immediately.
type SilenceCounter struct {
	thresholdDb    float64
	timeoutSeconds float64
	belowElapsed   float64
	state          message.ProcessingState
}

func NewSilenceCounter(thresholdDb, timeoutSeconds float64) *SilenceCounter {
	return &SilenceCounter{
		thresholdDb:    thresholdDb,
		timeoutSeconds: timeoutSeconds,
		state:          message.Running,
	}
}

// Update feeds one chunk's linear signal range and its duration in seconds,
// returning the resulting processing state (Running or Paused).
func (s *SilenceCounter) Update(rangeLinear, chunkSeconds float64) message.ProcessingState {
	db := linearRangeToDb(rangeLinear)
	if db >= s.thresholdDb {
		s.belowElapsed = 0
		s.state = message.Running
		return s.state
	}
	s.belowElapsed += chunkSeconds
	if s.belowElapsed > s.timeoutSeconds {
		s.state = message.Paused
	}
	return s.state
}

func (s *SilenceCounter) State() message.ProcessingState { return s.state }

func linearRangeToDb(r float64) float64 {
	if r <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(r)
}

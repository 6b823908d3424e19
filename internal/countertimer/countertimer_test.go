package countertimer

import (
	"testing"

	"github.com/rustyguts/camilladsp/internal/message"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestAverager(t *testing.T) {
	a := NewAverager()
	assert.Equal(t, 0.0, a.Average())
	a.AddValue(10)
	a.AddValue(20)
	assert.Equal(t, 15.0, a.Average())
	a.Reset()
	assert.Equal(t, 0.0, a.Average())
}

func TestValueWatcherSustainedChange(t *testing.T) {
	w := NewValueWatcher(48000, 0.01, 3)
	assert.False(t, w.Check(48000)) // no deviation
	assert.False(t, w.Check(44100)) // 1st deviation
	assert.False(t, w.Check(44100)) // 2nd
	assert.True(t, w.Check(44100))  // 3rd: sustained
}

func TestValueWatcherResetsOnRecovery(t *testing.T) {
	w := NewValueWatcher(48000, 0.01, 2)
	assert.False(t, w.Check(44100))
	assert.False(t, w.Check(48000)) // recovers, resets consecutive count
	assert.False(t, w.Check(44100))
}

func TestSilenceCounterTransitions(t *testing.T) {
	s := NewSilenceCounter(-50, 0.5)
	assert.Equal(t, message.Running, s.State())

	// Below threshold but not yet timed out.
	assert.Equal(t, message.Running, s.Update(0.001, 0.3))
	// Accumulate past timeout.
	assert.Equal(t, message.Paused, s.Update(0.001, 0.3))
	// Signal returns above threshold: flips back immediately.
	assert.Equal(t, message.Running, s.Update(1.0, 0.1))
}

// TestValueWatcherTripsExactlyAtThresholdCount is the §4.4 sustained-change
// property: for any baseline/ratio/count and any value that deviates beyond
// the ratio, ValueWatcher.Check must report false for every sample before
// the thresholdCount-th consecutive deviation, and true from then on.
func TestValueWatcherTripsExactlyAtThresholdCount(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		baseline := rapid.Float64Range(1, 96000).Draw(t, "baseline")
		ratio := rapid.Float64Range(0.001, 0.5).Draw(t, "ratio")
		count := rapid.IntRange(1, 10).Draw(t, "count")
		excess := rapid.Float64Range(1.01, 3).Draw(t, "excess")
		extra := rapid.IntRange(0, 5).Draw(t, "extra")

		deviated := baseline * (1 + ratio*excess)
		w := NewValueWatcher(baseline, ratio, count)

		samples := count + extra
		for i := 1; i <= samples; i++ {
			got := w.Check(deviated)
			want := i >= count
			if got != want {
				t.Fatalf("sample %d: Check(%v)=%v, want %v (baseline=%v ratio=%v count=%v)",
					i, deviated, got, want, baseline, ratio, count)
			}
		}

		// Reset clears the consecutive counter regardless of how long the
		// deviation had already been sustained.
		w.Reset()
		if count > 1 {
			assert.False(t, w.Check(deviated))
		}
	})
}

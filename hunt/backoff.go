package hunt

import (
	"math/rand/v2"
	"time"
)

// contentionSignal classifies a failed launch attempt.
type contentionSignal int

const (
	signalRateLimited contentionSignal = iota
	signalFailure
)

const (
	// Step sizes for the wait ceiling: rate limiting pushes it up,
	// any other failure pulls it back down toward the floor.
	waitIncrement = 10 * time.Second
	waitDecrement = 5 * time.Second

	// streakThreshold is how many consecutive like signals it takes to move
	// the ceiling. Requiring two damps oscillation when failure types alternate.
	streakThreshold = 2
)

// backoff tracks the adaptive wait ceiling of one run. Each streak counter
// resets whenever the opposite signal type occurs.
type backoff struct {
	wait    time.Duration
	floor   time.Duration
	ceiling time.Duration

	rateLimitStreak int
	relaxStreak     int
}

func newBackoff(base, floor, ceiling time.Duration) backoff {
	return backoff{
		wait:    min(max(base, floor), ceiling),
		floor:   floor,
		ceiling: ceiling,
	}
}

// observe feeds one contention signal into the hysteresis counters,
// adjusting the wait ceiling when a streak completes.
func (b *backoff) observe(signal contentionSignal) {
	switch signal {
	case signalRateLimited:
		b.relaxStreak = 0
		if b.rateLimitStreak++; b.rateLimitStreak >= streakThreshold {
			b.wait = min(b.wait+waitIncrement, b.ceiling)
			b.rateLimitStreak = 0
		}

	case signalFailure:
		b.rateLimitStreak = 0
		if b.wait > b.floor {
			b.relaxStreak++
		}
		if b.relaxStreak >= streakThreshold {
			b.wait = max(b.wait-waitDecrement, b.floor)
			b.relaxStreak = 0
		}
	}
}

// sample picks the actual pause uniformly from [floor, max(floor, wait)].
// Randomizing spreads concurrent hunts apart instead of letting them hammer
// the provider in lockstep.
func (b *backoff) sample() time.Duration {
	span := b.wait - b.floor
	if span <= 0 {
		return b.floor
	}
	return b.floor + rand.N(span+1)
}

package timeutil

import (
	"math"
	"math/rand"
	"time"
)

// DurationPtr is a helper function to create a pointer to a time.Duration
func DurationPtr(d time.Duration) *time.Duration {
	return &d
}

// MaxDuration returns the largest duration in durations, or zero if the
// slice is empty. It does not mutate its input.
func MaxDuration(durations []time.Duration) time.Duration {
	var max time.Duration
	for i, d := range durations {
		if i == 0 || d > max {
			max = d
		}
	}
	return max
}

// ComputeJitter returns a pseudo-random duration in [0, max). A non-positive
// max always returns zero.
func ComputeJitter(max time.Duration, rng rand.Rand) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rng.Int63n(int64(max)))
}

// ExponentialBackoffDelay computes the delay for the given attempt/backoff
// count using BackoffParam, then adds uniform jitter in [0, jitter).
//
// delay = min(initialDuration * multiplier^(count-1), maxDuration) + jitter
//
// count <= 0 is treated as count == 1 (no growth applied yet).
func ExponentialBackoffDelay(count int, jitter time.Duration, rng rand.Rand, param BackoffParam) time.Duration {
	if count < 1 {
		count = 1
	}

	exponent := float64(count - 1)
	delay := float64(param.InitialDuration()) * math.Pow(param.Multiplier(), exponent)
	if max := float64(param.MaxDuration()); max > 0 && delay > max {
		delay = max
	}

	result := time.Duration(delay)
	if jitter > 0 {
		result += ComputeJitter(jitter, rng)
	}
	if result < 0 {
		result = 0
	}
	return result
}

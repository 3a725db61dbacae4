// Package jitter provides Gaussian jitter, sleep primitives, and
// network-error classification shared by the throttled fetch client, the
// traffic shaper, and the telemetry loop.
package jitter

import (
	"math"
	"math/rand"
	"strings"
	"time"
)

// Gaussian returns a sample from N(mu, sigma) via the Box-Muller transform.
func Gaussian(mu, sigma float64) float64 {
	if sigma <= 0 {
		return mu
	}
	u1 := rand.Float64()
	u2 := rand.Float64()
	for u1 == 0 {
		u1 = rand.Float64()
	}
	z0 := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return mu + sigma*z0
}

// Uniform returns a sample drawn uniformly from [lo, hi).
func Uniform(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + rand.Float64()*(hi-lo)
}

// PreCallDelay implements the throttled-fetch pre-call delay of spec §4.2:
// max(0, baseDelayMs + N(0, (baseDelayMs*0.4)/4)) milliseconds.
func PreCallDelay(baseDelayMs int) time.Duration {
	sigma := (float64(baseDelayMs) * 0.4) / 4
	ms := math.Max(0, float64(baseDelayMs)+Gaussian(0, sigma))
	return time.Duration(ms) * time.Millisecond
}

// RetryBackoff implements the throttled-fetch retry backoff of spec §4.2:
// max(500, 1000*2^attempt + N(0, (1000*2^attempt*0.5)/4)) milliseconds.
func RetryBackoff(attempt int) time.Duration {
	base := 1000 * math.Pow(2, float64(attempt))
	sigma := (base * 0.5) / 4
	ms := math.Max(500, base+Gaussian(0, sigma))
	return time.Duration(ms) * time.Millisecond
}

// networkErrorMarkers are the case-insensitive substrings that identify a
// transient network error per spec §4.2.
var networkErrorMarkers = []string{
	"fetch failed",
	"network error",
	"econnreset",
	"etimedout",
	"socket hang up",
	"timeout",
}

// IsNetworkError reports whether msg matches one of the network-error
// markers. Tolerates an empty message (returns false).
func IsNetworkError(msg string) bool {
	if msg == "" {
		return false
	}
	lower := strings.ToLower(msg)
	for _, marker := range networkErrorMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

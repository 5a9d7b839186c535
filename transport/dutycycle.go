package transport

import (
	"sync"
	"time"
)

// txRateAvail is the deemed bit rate (bits/second) the RF duty-cycle budget
// is computed against.
const txRateAvail = 38400

// dutyCycleLimiter is a leaky (token) bucket limiting the average Tx rate to
// maxDutyCycle (0.0-1.0) of txRateAvail, measured over window.
type dutyCycleLimiter struct {
	mu       sync.Mutex
	fillRate float64 // bits/second
	capacity float64 // bits
	bits     float64
	last     time.Time
	disabled bool
}

// newDutyCycleLimiter builds a limiter for maxDutyCycle over window; a
// maxDutyCycle outside (0, 1] disables limiting entirely.
func newDutyCycleLimiter(maxDutyCycle float64, window time.Duration) *dutyCycleLimiter {
	if maxDutyCycle <= 0 || maxDutyCycle > 1 {
		return &dutyCycleLimiter{disabled: true}
	}
	fillRate := txRateAvail * maxDutyCycle
	capacity := fillRate * window.Seconds()
	return &dutyCycleLimiter{
		fillRate: fillRate,
		capacity: capacity,
		bits:     capacity,
		last:     time.Now(),
	}
}

// frameBitSize computes the RF airtime, in bits, for an already-formatted
// frame line: a fixed per-frame overhead plus 10 bits per byte of payload
// beyond the fixed 46-byte header/address/code/length preamble.
func frameBitSize(text string) float64 {
	var tail int
	if len(text) > 46 {
		tail = len(text) - 46
	}
	return 330 + float64(tail)*10
}

// Delay tops up the bucket for elapsed time and returns how long the caller
// must wait before sending text, then debits the bucket by its cost.
func (d *dutyCycleLimiter) Delay(text string) time.Duration {
	if d == nil || d.disabled {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(d.last).Seconds()
	d.bits = min64(d.bits+elapsed*d.fillRate, d.capacity)
	d.last = now

	size := frameBitSize(text)
	var wait time.Duration
	if d.bits < size {
		wait = time.Duration((size - d.bits) / d.fillRate * float64(time.Second))
	}
	d.bits -= size
	return wait
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

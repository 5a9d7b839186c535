package transport

import (
	"testing"
	"time"
)

func TestDutyCycleLimiterDisabledByDefault(t *testing.T) {
	d := newDutyCycleLimiter(0, time.Hour)
	for i := 0; i < 1000; i++ {
		if wait := d.Delay(" I --- 01:145038 --:------ 01:145038 1F09 003 FF0532"); wait != 0 {
			t.Fatalf("disabled limiter returned a nonzero wait: %v", wait)
		}
	}
}

func TestDutyCycleLimiterThrottlesBurst(t *testing.T) {
	d := newDutyCycleLimiter(0.01, time.Hour)
	text := " I --- 01:145038 --:------ 01:145038 1F09 003 FF0532"

	var sawWait bool
	// The bucket starts full: 1% of 38400 bit/s over an hour is 1,382,400
	// bits, and this 52-char frame costs 390, so about 3,545 sends drain it.
	for i := 0; i < 5000; i++ {
		if d.Delay(text) > 0 {
			sawWait = true
			break
		}
	}
	if !sawWait {
		t.Fatalf("expected a 1%% duty-cycle limiter to eventually demand a wait under sustained sends")
	}
}

func TestFrameBitSizeGrowsWithTail(t *testing.T) {
	short := frameBitSize(" I --- 01:145038 --:------ 01:145038 1F09 003 FF0532")
	long := frameBitSize(" I --- 01:145038 --:------ 01:145038 2309 00C 0001F40002012C0003025800040320")
	if long <= short {
		t.Fatalf("expected a longer payload to cost more bits: short=%v long=%v", short, long)
	}
}

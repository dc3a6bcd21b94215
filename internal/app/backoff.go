package app

import "time"

const (
	InitialRetryDelay = 1 * time.Second
	MaxRetryDelay     = 30 * time.Second
	MaxRetryAttempts  = 10
)

// DelayFor returns min(InitialRetryDelay * 2^attempt, MaxRetryDelay). No jitter.
func DelayFor(attempt int) time.Duration {
	d := InitialRetryDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= MaxRetryDelay {
			return MaxRetryDelay
		}
	}
	if d > MaxRetryDelay {
		return MaxRetryDelay
	}
	return d
}

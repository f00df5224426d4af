package feed

import "time"

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
)

// backoffDelay returns the wait before the next reconnect attempt after the
// given number of consecutive failures. Delay starts at one second, doubles
// per failure, and is capped at sixty seconds. A successful connection resets
// the failure count to zero.
func backoffDelay(consecutiveFailures int) time.Duration {
	if consecutiveFailures <= 0 {
		return initialBackoff
	}

	delay := initialBackoff
	for i := 1; i < consecutiveFailures; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}

	return delay
}

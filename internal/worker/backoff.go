package worker

import "time"

// Backoff bounds.
const (
	maxBackoff        = 300 * time.Second
	maxBackoffExponent = 8
)

// Backoff returns the retry delay after the given number of failed attempts:
// min(300s, 2^min(8, attempts) seconds). The exponent cap keeps the shift
// well-defined for any attempt count; the ceiling bounds worst-case
// redelivery latency.
func Backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	exp := attempts
	if exp > maxBackoffExponent {
		exp = maxBackoffExponent
	}
	delay := time.Duration(1<<uint(exp)) * time.Second
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}

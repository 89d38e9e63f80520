package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffSchedule(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{attempts: 0, want: 1 * time.Second},
		{attempts: 1, want: 2 * time.Second},
		{attempts: 2, want: 4 * time.Second},
		{attempts: 5, want: 32 * time.Second},
		{attempts: 8, want: 256 * time.Second},
		{attempts: 9, want: 256 * time.Second},
		{attempts: 100, want: 256 * time.Second},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, Backoff(tc.attempts), "attempts=%d", tc.attempts)
	}
}

func TestBackoffIsMonotonicAndCapped(t *testing.T) {
	prev := time.Duration(0)
	for attempts := 0; attempts < 64; attempts++ {
		delay := Backoff(attempts)
		assert.GreaterOrEqual(t, delay, prev, "attempts=%d", attempts)
		assert.LessOrEqual(t, delay, 300*time.Second, "attempts=%d", attempts)
		prev = delay
	}
}

func TestBackoffNegativeAttempts(t *testing.T) {
	assert.Equal(t, time.Second, Backoff(-3))
}

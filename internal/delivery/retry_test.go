package delivery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	schedule := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

	cases := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 4 * time.Second}, // beyond the table reuses the last delay
		{10, 4 * time.Second},
		{-1, 1 * time.Second},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, BackoffDelay(tc.retryCount, schedule), "retryCount=%d", tc.retryCount)
	}
}

func TestBackoffDelay_EmptySchedule(t *testing.T) {
	assert.Equal(t, time.Duration(0), BackoffDelay(0, nil))
}

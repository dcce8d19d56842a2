package delivery

import "time"

// DefaultBackoffSchedule is the per-attempt wait before a retry, indexed
// by the retry count at failure time.
var DefaultBackoffSchedule = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
}

// BackoffDelay returns the wait before the next attempt. Retries beyond
// the last tabulated delay reuse the last value.
func BackoffDelay(retryCount int, schedule []time.Duration) time.Duration {
	if len(schedule) == 0 {
		return 0
	}
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= len(schedule) {
		return schedule[len(schedule)-1]
	}
	return schedule[retryCount]
}

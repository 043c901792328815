package ingest

import (
	"math/rand"
	"time"
)

// Backoff returns the requeue delay before the given retry. The schedule is
// exponential from base with up to 25% random jitter: base, 2*base, 4*base...
// attempt is 1-based (the attempt that just failed).
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base << uint(attempt-1)
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}

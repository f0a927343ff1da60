package portfolio

import "time"

// SetClock overrides the aggregator clock for tests.
func SetClock(a *Aggregator, now func() time.Time) {
	a.now = now
}

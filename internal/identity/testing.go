package identity

import "time"

// SetClock is a test helper that overrides the registry's notion of "now" so
// expiry behavior can be exercised deterministically.
func SetClock(r *Registry, now func() time.Time) {
	r.now = now
}

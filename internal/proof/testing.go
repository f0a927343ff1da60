package proof

import "time"

// SetClock is a test helper that overrides the generator's emission clock so
// mid-computation expiry can be exercised deterministically.
func SetClock(g *Generator, now func() time.Time) {
	g.now = now
}

package application

import "time"

// SetClock overrides the service clock for tests.
func SetClock(s *Service, now func() time.Time) {
	s.now = now
}

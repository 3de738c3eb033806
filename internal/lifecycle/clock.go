package lifecycle

import "time"

// Clock supplies the machine's notion of now. Injected so tests can pin
// timestamps instead of sleeping.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

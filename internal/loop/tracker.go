package loop

// ErrorTracker is the runaway-loop failsafe. It counts consecutive
// iteration errors with byte-identical messages; a different message resets
// the count, and any successful iteration discards the tracker.
type ErrorTracker struct {
	LastErrorMessage string `yaml:"last_error_message" json:"last_error_message"`
	Count            int    `yaml:"count" json:"count"`
}

// Observe folds one iteration error into the tracker and returns the
// tracker to keep. A nil receiver starts a fresh count, so callers write
// back the result unconditionally:
//
//	l.Tracker = l.Tracker.Observe(msg)
func (t *ErrorTracker) Observe(message string) *ErrorTracker {
	if t == nil || t.LastErrorMessage != message {
		return &ErrorTracker{LastErrorMessage: message, Count: 1}
	}
	t.Count++
	return t
}

// Tripped reports whether the consecutive-error count has reached the
// configured ceiling. A ceiling of zero or below disables the failsafe.
func (t *ErrorTracker) Tripped(maxConsecutive int) bool {
	return t != nil && maxConsecutive > 0 && t.Count >= maxConsecutive
}

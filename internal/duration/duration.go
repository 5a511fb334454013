// Package duration supplies a config-friendly seconds type, modeled on
// nabbar-golib/duration, used for the scheme's read/write/connect/idle
// timeouts so they decode cleanly from viper/YAML as a plain integer.
package duration

import "time"

// Seconds is a whole-second duration usable directly in configuration files.
type Seconds int64

// Duration converts to a time.Duration.
func (s Seconds) Duration() time.Duration {
	return time.Duration(s) * time.Second
}

// IsZero reports whether the timeout is disabled (spec: waitMessage(bid, 0)
// disables the idle timeout).
func (s Seconds) IsZero() bool {
	return s <= 0
}

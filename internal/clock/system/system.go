// Package system provides a real clock implementation.
package system

import "time"

// Clock supplies wall time for snapshot stamps and refresh cycles.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

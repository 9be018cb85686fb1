package entity

import "time"

// Window is a closed time range used to bound candidate search.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t lies within the window. Both ends are inclusive.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}

// Width returns the full length of the window.
func (w Window) Width() time.Duration {
	return w.To.Sub(w.From)
}

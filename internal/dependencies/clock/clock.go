package clock

import "time"

// Precision is the resolution lobby timestamps are kept at. Every storage
// backend can hold it exactly, so a value read back compares equal to the
// one written.
const Precision = time.Microsecond

// Clock is the time source for lobby bookkeeping
type Clock interface {
	Now() time.Time
}

// Normalize converts t to UTC at Precision
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(Precision)
}

// Cutoff is the creation time before which a lobby has outlived ttl
func Cutoff(c Clock, ttl time.Duration) time.Time {
	return c.Now().Add(-ttl)
}

// Age is how long ago t was
func Age(c Clock, t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Wall reads the system clock
type Wall struct{}

// New creates a Wall clock
func New() *Wall {
	return &Wall{}
}

// Now returns the normalized current time
func (*Wall) Now() time.Time {
	return Normalize(time.Now())
}

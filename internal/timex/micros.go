package timex

import "time"

// ToMicros converts t to unix microseconds; the zero time maps to 0.
func ToMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

// FromMicros is the inverse of ToMicros and always returns UTC.
func FromMicros(us int64) time.Time {
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us).UTC()
}

// Truncate drops precision below one microsecond, the resolution the store
// keeps, so in-memory comparisons agree with persisted values.
func Truncate(t time.Time) time.Time {
	return t.Truncate(time.Microsecond).UTC()
}

// Clock returns the current time. Services take a Clock so tests can control
// checkpoints and version stamps.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

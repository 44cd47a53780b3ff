package repositories

import "time"

// now is the write timestamp for new rows. Postgres keeps microseconds, so
// values are truncated to round-trip exactly on both drivers.
var now = func() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

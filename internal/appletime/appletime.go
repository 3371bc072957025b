// Package appletime converts Core Data timestamps from chat.db into local
// time instants.
package appletime

import "time"

// CoreDataEpoch is 2001-01-01 00:00:00 UTC expressed in Unix seconds. Message
// dates in chat.db count from this epoch, not from the Unix epoch.
const CoreDataEpoch int64 = 978307200

// nanosecondThreshold separates seconds-resolution rows (older macOS) from
// nanoseconds-resolution rows. No plausible seconds value exceeds it, and no
// plausible nanoseconds value falls below it.
const nanosecondThreshold int64 = 1e12

// Convert turns a raw chat.db date value into a local-time instant. The
// second return is false when the value is absent, zero, or lands outside the
// range the store could plausibly hold; a bad row never fails the extraction.
func Convert(raw int64) (time.Time, bool) {
	if raw <= 0 {
		return time.Time{}, false
	}

	var t time.Time
	if raw > nanosecondThreshold {
		t = time.Unix(CoreDataEpoch+raw/int64(time.Second), raw%int64(time.Second))
	} else {
		t = time.Unix(CoreDataEpoch+raw, 0)
	}

	if t.Year() < 2001 || t.Year() > 2262 {
		return time.Time{}, false
	}
	return t.Local(), true
}

package ledger

import "time"

// NormalizeTime returns t in UTC at microsecond precision, the resolution every
// supported store round-trips exactly. Sealed content hashes depend on it.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func formatTime(t time.Time) string {
	return NormalizeTime(t).Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

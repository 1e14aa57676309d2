package schema

import (
	"strings"
	"time"
)

// StoreTimestampLayout is the literal timestamp form the query engine over
// the store expects (java.sql.Timestamp).
const StoreTimestampLayout = "2006-01-02 15:04:05.000"

// SourceTimestampLayout is the form the metering API reports and accepts.
const SourceTimestampLayout = "2006-01-02T15:04:05Z"

// FormatStoreTimestamp rewrites a source timestamp such as
// 2024-01-01T00:00:00Z into 2024-01-01 00:00:00.000. Both denote UTC, so this
// is only a change of punctuation. Values already in store form are returned
// as is.
func FormatStoreTimestamp(s string) string {
	if s == "" {
		return s
	}
	s = strings.Replace(s, "T", " ", 1)
	trimmed := strings.TrimSuffix(strings.TrimSuffix(s, "Z"), "+00:00")
	if trimmed == s {
		return s
	}
	if i := strings.LastIndexByte(trimmed, ' '); i >= 0 && strings.Contains(trimmed[i:], ".") {
		return trimmed
	}
	return trimmed + ".000"
}

// ParseStoreTimestamp parses a timestamp in either the store or the source
// form.
func ParseStoreTimestamp(s string) (time.Time, error) {
	// fractional seconds of any precision are accepted after the seconds field
	return time.ParseInLocation("2006-01-02 15:04:05", FormatStoreTimestamp(s), time.UTC)
}

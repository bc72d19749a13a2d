package types

import "time"

func ParseTime(t string) (time.Time, error) {
	return time.Parse(time.RFC3339, t)
}

func FormatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

// FormatDate formats t as YYYY-MM-DD for printed documents
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// FormatCompactDate formats t as YYYYMMDD for artifact file names
func FormatCompactDate(t time.Time) string {
	return t.Format("20060102")
}

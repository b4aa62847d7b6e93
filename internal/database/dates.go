package database

import (
	"strings"
	"time"
)

// DateLayout is the fixed format of the raw export's date column and of the
// stored date columns.
const DateLayout = "2006-01-02"

// GetToday returns today's date as YYYY-MM-DD.
func GetToday() string {
	return time.Now().Format(DateLayout)
}

// ParseDate parses a raw date value. Unparseable or blank input yields nil.
func ParseDate(raw string) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := time.Parse(DateLayout, raw)
	if err != nil {
		return nil
	}
	s := d.Format(DateLayout)
	return &s
}

// InDateRange reports whether date falls within [from, to]. Empty bounds
// are open. A message without a date never matches a bounded range.
func InDateRange(date *string, from, to string) bool {
	if from == "" && to == "" {
		return true
	}
	if date == nil {
		return false
	}
	if from != "" && *date < from {
		return false
	}
	if to != "" && *date > to {
		return false
	}
	return true
}

package model

import (
	"fmt"
	"strings"
	"time"
)

// eBird observation timestamps come as "YYYY-MM-DD HH:MM" for checklists
// with a start time and as a bare "YYYY-MM-DD" without one.
const (
	ObsDtLayout     = "2006-01-02 15:04"
	ObsDtDateLayout = "2006-01-02"
)

// ParseObsDt parses an eBird observation timestamp, trying the timestamped
// layout first and falling back to date-only.
func ParseObsDt(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty observation date")
	}
	if t, err := time.Parse(ObsDtLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(ObsDtDateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable observation date %q: %w", s, err)
	}
	return t, nil
}

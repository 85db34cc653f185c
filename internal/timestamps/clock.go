// Package timestamps renders and normalizes the human-readable, offset-aware
// timestamps stored inside guild snapshots.
package timestamps

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultOffset is the offset used until Configure accepts a value.
	DefaultOffset = "UTC+03:30"

	displayLayout = "2006/01/02 · 15:04:05"
)

var offsetPattern = regexp.MustCompile(`^UTC([+-])(\d{1,2}):(\d{2})$`)

// legacyLayouts lists the ISO-8601 shapes older snapshots used. Layouts without a
// zone are interpreted in the configured offset.
var legacyLayouts = []struct {
	layout string
	zoned  bool
}{
	{layout: time.RFC3339Nano, zoned: true},
	{layout: "2006-01-02 15:04:05Z07:00", zoned: true},
	{layout: "2006-01-02T15:04Z07:00", zoned: true},
	{layout: "2006-01-02T15:04:05", zoned: false},
	{layout: "2006-01-02 15:04:05", zoned: false},
	{layout: "2006-01-02T15:04", zoned: false},
	{layout: "2006-01-02", zoned: false},
}

// Clock formats instants in a single process-configurable UTC offset.
type Clock struct {
	mu       sync.RWMutex
	location *time.Location
	now      func() time.Time
}

// NewClock returns a Clock at DefaultOffset, then applies offset on top of it.
// An invalid offset leaves the default in place.
func NewClock(offset string) *Clock {
	location, _ := parseOffset(DefaultOffset)
	clock := &Clock{location: location, now: time.Now}
	clock.Configure(offset)
	return clock
}

// WithNow replaces the wall clock source. It is intended for tests.
func (c *Clock) WithNow(now func() time.Time) *Clock {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now != nil {
		c.now = now
	}
	return c
}

// Configure accepts "UTC" or "UTC±HH:MM". Malformed input keeps the previous
// offset; the return value reports whether the offset was replaced.
func (c *Clock) Configure(offset string) bool {
	location, ok := parseOffset(offset)
	if !ok {
		return false
	}
	c.mu.Lock()
	c.location = location
	c.mu.Unlock()
	return true
}

// Location returns the configured fixed zone.
func (c *Clock) Location() *time.Location {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.location
}

// Instant returns the current time in the configured offset.
func (c *Clock) Instant() time.Time {
	c.mu.RLock()
	now, location := c.now, c.location
	c.mu.RUnlock()
	return now().In(location)
}

// Now renders the current instant.
func (c *Clock) Now() string {
	return c.Format(c.Instant())
}

// Format renders t as "YYYY/MM/DD · HH:MM:SS UTC±HH:MM" in the configured offset.
func (c *Clock) Format(t time.Time) string {
	moment := t.In(c.Location())
	_, offsetSeconds := moment.Zone()
	datePart := moment.Format(displayLayout)
	if offsetSeconds == 0 {
		return datePart + " UTC"
	}
	sign := "+"
	totalMinutes := offsetSeconds / 60
	if totalMinutes < 0 {
		sign = "-"
		totalMinutes = -totalMinutes
	}
	return fmt.Sprintf("%s UTC%s%02d:%02d", datePart, sign, totalMinutes/60, totalMinutes%60)
}

// Normalize re-renders a legacy ISO-8601 value through Format. Values that do not
// parse, including already formatted ones, are returned unchanged.
func (c *Clock) Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	parsed, ok := c.Parse(raw)
	if !ok {
		return raw
	}
	return c.Format(parsed)
}

// Parse reads an ISO-8601 value; naive values are placed in the configured offset.
func (c *Clock) Parse(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, false
	}
	location := c.Location()
	for _, candidate := range legacyLayouts {
		var (
			parsed time.Time
			err    error
		)
		if candidate.zoned {
			parsed, err = time.Parse(candidate.layout, trimmed)
		} else {
			parsed, err = time.ParseInLocation(candidate.layout, trimmed, location)
		}
		if err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func parseOffset(offset string) (*time.Location, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(offset))
	if normalized == "" {
		return nil, false
	}
	if normalized == "UTC" {
		return time.FixedZone("UTC", 0), true
	}
	match := offsetPattern.FindStringSubmatch(normalized)
	if match == nil {
		return nil, false
	}
	hours, err := strconv.Atoi(match[2])
	if err != nil || hours > 23 {
		return nil, false
	}
	minutes, err := strconv.Atoi(match[3])
	if err != nil || minutes > 59 {
		return nil, false
	}
	total := hours*60 + minutes
	if match[1] == "-" {
		total = -total
	}
	name := fmt.Sprintf("UTC%s%02d:%02d", match[1], hours, minutes)
	if total == 0 {
		name = "UTC"
	}
	return time.FixedZone(name, total*60), true
}

package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseClock validates a "HH:MM" string and returns hour and minute.
// Accepts an optional ":SS" suffix since the store renders times either way.
func ParseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	return hour, minute, nil
}

// LoadZone resolves an IANA timezone identifier against the tz database.
func LoadZone(tz string) (*time.Location, error) {
	if strings.TrimSpace(tz) == "" {
		return nil, fmt.Errorf("%w: empty identifier", ErrInvalidTimezone)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, tz)
	}
	return loc, nil
}

// ToUTC converts a local wall-clock time to the UTC instant at which that
// wall clock occurs today in the given timezone. Building the zoned time with
// time.Date resolves the offset for the specific date, so DST transitions are
// handled by the tz database rather than by offset arithmetic.
func ToUTC(localTime, tz string, now time.Time) (time.Time, error) {
	hour, minute, err := ParseClock(localTime)
	if err != nil {
		return time.Time{}, err
	}
	loc, err := LoadZone(tz)
	if err != nil {
		return time.Time{}, err
	}
	local := now.In(loc)
	zoned := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	return zoned.UTC(), nil
}

// OffsetMinutes returns the UTC offset of tz at the given instant.
func OffsetMinutes(tz string, at time.Time) (int, error) {
	loc, err := LoadZone(tz)
	if err != nil {
		return 0, err
	}
	_, secs := at.In(loc).Zone()
	return secs / 60, nil
}

// LocalClock renders an instant as "HH:MM" in tz. This is the matching key
// for eligibility: an assignment is due when the rendered clock equals one of
// its delivery times.
func LocalClock(at time.Time, tz string) (string, error) {
	loc, err := LoadZone(tz)
	if err != nil {
		return "", err
	}
	return at.In(loc).Format("15:04"), nil
}

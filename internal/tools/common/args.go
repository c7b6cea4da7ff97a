package common

import (
	"fmt"
	"math"
	"time"
)

// Layouts accepted for event times, tried in order after RFC 3339.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

const dateLayout = "2006-01-02"

// StringArg returns args[key] if it is a string, else "".
func StringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// RequiredString returns args[key] or an error naming the missing key.
func RequiredString(args map[string]any, key string) (string, error) {
	v := StringArg(args, key)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// IntArg returns args[key] as an integer. JSON numbers arrive as float64.
func IntArg(args map[string]any, key string) (int64, bool, error) {
	switch v := args[key].(type) {
	case nil:
		return 0, false, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, false, fmt.Errorf("%s must be a whole number", key)
		}
		return int64(v), true, nil
	case int:
		return int64(v), true, nil
	case int64:
		return v, true, nil
	default:
		return 0, false, fmt.Errorf("%s must be a number", key)
	}
}

// LocationArg loads the IANA zone named by args[key]. Empty means
// time.Local.
func LocationArg(args map[string]any, key string) (*time.Location, error) {
	name := StringArg(args, key)
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", key, name, err)
	}
	return loc, nil
}

// ParseTime parses an event time. A bare date (2006-01-02) reports allDay.
// Times without an offset are read in loc.
func ParseTime(value string, loc *time.Location) (t time.Time, allDay bool, err error) {
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.ParseInLocation(dateLayout, value, loc); err == nil {
		return t, true, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, false, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, false, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("invalid time %q: use RFC 3339, YYYY-MM-DDTHH:MM or YYYY-MM-DD", value)
}

package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a duration-valued config string ("60s", "1h30m").
// An empty or blank value means "unset" and parses to zero; negative values
// are rejected. The field path is carried in the error so a bad reload log
// line points at the offending key (e.g. "reminder.poll_interval").
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with an unset fallback: a
// blank or zero value yields def instead of zero. Malformed input is still
// an error, never silently replaced by the default.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sosodev/duration"
)

// ParseDurationField accepts Go duration syntax ("90m") or ISO-8601 ("PT1H30M").
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	var d time.Duration
	if strings.HasPrefix(strings.ToUpper(s), "P") {
		iso, err := duration.Parse(strings.ToUpper(s))
		if err != nil {
			return 0, fmt.Errorf("%s: invalid ISO-8601 duration %q: %w", path, raw, err)
		}
		d = iso.ToTimeDuration()
	} else {
		var err error
		d, err = time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
		}
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

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

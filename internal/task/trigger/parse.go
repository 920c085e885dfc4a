package trigger

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// Parse parses a trigger string.
//
// Supported forms:
//   - "cron:0 * * * * *", or a bare cron expression ("*/5 * * * *", "@hourly")
//   - "fixed-delay:5m", "fixed-rate:30m"
//   - a bare interval ("5m", "300000", "00:05") which means fixed-delay
//
// Intervals are Go durations, integer milliseconds, or HH:MM.
func Parse(raw string) (Trigger, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Trigger{}, fmt.Errorf("%w: trigger required", ErrInvalidTrigger)
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return Cron(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "fixed-delay:"):
		d, err := ParseInterval(s[len("fixed-delay:"):])
		if err != nil {
			return Trigger{}, err
		}
		return FixedDelay(d), nil
	case strings.HasPrefix(low, "fixed-rate:"):
		d, err := ParseInterval(s[len("fixed-rate:"):])
		if err != nil {
			return Trigger{}, err
		}
		return FixedRate(d), nil
	}

	// Any whitespace or a leading '@' means cron.
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return Cron(s)
	}

	d, err := ParseInterval(s)
	if err != nil {
		return Trigger{}, fmt.Errorf(
			"%w: %q (use cron like '0 * * * * *', 'fixed-rate:30m', or an interval like '5m')",
			ErrInvalidTrigger, raw,
		)
	}
	return FixedDelay(d), nil
}

// ParseInterval parses a positive interval: Go duration, integer
// milliseconds, or HH:MM.
func ParseInterval(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, fmt.Errorf("%w: interval required", ErrInvalidTrigger)
	}
	var (
		d   time.Duration
		err error
	)
	switch {
	case reHHMM.MatchString(v):
		d, err = parseHHMM(v)
	case isDigits(v):
		var ms int64
		ms, err = strconv.ParseInt(v, 10, 64)
		d = time.Duration(ms) * time.Millisecond
	default:
		d, err = time.ParseDuration(v)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: interval %q: %v", ErrInvalidTrigger, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: interval must be > 0", ErrInvalidTrigger)
	}
	return d, nil
}

func parseHHMM(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/liggitt/tabwriter"

	"taskbeat/internal/management"
)

const maxStatusMessageLength = 80

func newTableWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 6, 4, 3, ' ', 0)
}

// formatTarget keeps the last two dotted parts unless full is set.
func formatTarget(target string, full bool) string {
	if full {
		return target
	}
	parts := strings.Split(target, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "." + parts[len(parts)-1]
	}
	return target
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	fmt.Fprintf(os.Stderr, "warning: unable to parse time %q, expected RFC3339\n", s)
	return time.Time{}, false
}

// relativeTime renders ts relative to now ("in 5s", "3m ago"). Unparseable
// values are returned as-is.
func relativeTime(now time.Time, ts string) string {
	if ts == "" {
		return "-"
	}
	t, ok := parseTime(ts)
	if !ok {
		return ts
	}
	if d := t.Sub(now); d >= 0 {
		return "in " + friendlyDuration(d)
	}
	return friendlyDuration(now.Sub(t)) + " ago"
}

func formatNext(now time.Time, n *management.TimeOnly) string {
	if n == nil {
		return "-"
	}
	return relativeTime(now, n.Time)
}

func formatLast(now time.Time, ex *management.LastExecution) string {
	if ex == nil {
		return "-"
	}
	return relativeTime(now, ex.Time)
}

func formatStatus(ex *management.LastExecution, full bool) string {
	if ex == nil || ex.Status == "" {
		return "-"
	}
	if ex.Status == "ERROR" && ex.Exception != nil && ex.Exception.Message != "" {
		msg := ex.Exception.Message
		if !full {
			if runes := []rune(msg); len(runes) > maxStatusMessageLength {
				msg = string(runes[:maxStatusMessageLength]) + "…"
			}
		}
		return ex.Status + " - " + msg
	}
	return ex.Status
}

func formatMs(ms int64) string {
	return friendlyDuration(time.Duration(ms) * time.Millisecond)
}

// friendlyDuration renders d rounded to seconds as "1h2m3s", dropping zero units.
func friendlyDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	secs := int64((d + time.Second/2) / time.Second)
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60

	var b strings.Builder
	if h > 0 {
		fmt.Fprintf(&b, "%dh", h)
	}
	if m > 0 {
		fmt.Fprintf(&b, "%dm", m)
	}
	if s > 0 || b.Len() == 0 {
		fmt.Fprintf(&b, "%ds", s)
	}
	return b.String()
}

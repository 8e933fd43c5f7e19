package smil

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseClockValue converts a SMIL clock value to seconds. Accepted
// forms: full/partial clock ("1:02:03.5", "02:03"), and timecounts
// with an optional metric ("12.345s", "345ms", "2min", "1.5h", "7").
// A bare number is taken as seconds.
func ParseClockValue(value string) (float64, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0, fmt.Errorf("empty clock value")
	}

	if strings.Contains(v, ":") {
		return parseClockSegments(v)
	}

	metric := 1.0
	switch {
	case strings.HasSuffix(v, "ms"):
		metric = 0.001
		v = strings.TrimSuffix(v, "ms")
	case strings.HasSuffix(v, "min"):
		metric = 60
		v = strings.TrimSuffix(v, "min")
	case strings.HasSuffix(v, "h"):
		metric = 3600
		v = strings.TrimSuffix(v, "h")
	case strings.HasSuffix(v, "s"):
		v = strings.TrimSuffix(v, "s")
	}

	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", value, err)
	}
	return n * metric, nil
}

func parseClockSegments(v string) (float64, error) {
	parts := strings.Split(v, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock value %q", v)
	}

	var seconds float64
	for _, p := range parts {
		n, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid clock value %q: %w", v, err)
		}
		seconds = seconds*60 + n
	}
	return seconds, nil
}

package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// ParseDuration extends time.ParseDuration with a leading whole-day
// component, e.g. "2d", "1d12h" or "3d30m".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	i := strings.IndexByte(s, 'd')
	if i < 0 {
		return time.ParseDuration(s)
	}

	days, err := strconv.ParseUint(s[:i], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if days > uint64(math.MaxInt64/int64(day)) {
		return 0, fmt.Errorf("duration %q out of range", s)
	}
	d := time.Duration(days) * day

	if rest := s[i+1:]; rest != "" {
		r, err := time.ParseDuration(rest)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		if r < 0 || r > math.MaxInt64-d {
			return 0, fmt.Errorf("duration %q out of range", s)
		}
		d += r
	}
	return d, nil
}

package auth

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var relativeExpiry = regexp.MustCompile(`^(\d+)([dw])$`)

// ParseExpiry turns a token lifetime into an absolute expiry relative to now.
// The zero time means the token never expires.
//
// Accepted forms: "never" or "", any Go duration ("36h", "90m"), a count of
// days or weeks ("30d", "2w"), and a calendar date as "2006-01-02",
// "2006-01-02T15:04" or RFC 3339, interpreted in UTC.
func ParseExpiry(expiresIn string, now time.Time) (time.Time, error) {
	if expiresIn == "" || expiresIn == "never" {
		return time.Time{}, nil
	}

	if dur, err := time.ParseDuration(expiresIn); err == nil {
		if dur <= 0 {
			return time.Time{}, fmt.Errorf("expiry must be positive: %s", expiresIn)
		}
		return now.Add(dur), nil
	}

	if m := relativeExpiry.FindStringSubmatch(expiresIn); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return time.Time{}, fmt.Errorf("invalid count in expiry: %s", expiresIn)
		}
		unit := 24 * time.Hour
		if m[2] == "w" {
			unit = 7 * 24 * time.Hour
		}
		return now.Add(time.Duration(n) * unit), nil
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		t, err := time.ParseInLocation(layout, expiresIn, time.UTC)
		if err != nil {
			continue
		}
		if !t.After(now) {
			return time.Time{}, fmt.Errorf("expiry must be in the future: %s", expiresIn)
		}
		return t, nil
	}

	return time.Time{}, fmt.Errorf("invalid expiry %q (use never, 30d, 2w, 36h or 2026-12-25)", expiresIn)
}

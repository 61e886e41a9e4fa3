package subtitle

import (
	"fmt"
	"strconv"
	"strings"
)

// Timecode is a cue boundary in milliseconds. Every format parses into it
// and formats out of it, so cross-format output never carries a foreign
// timecode syntax.
type Timecode int64

const (
	msPerSecond = 1000
	msPerMinute = 60 * msPerSecond
	msPerHour   = 60 * msPerMinute
)

// ParseTimecode accepts "H:MM:SS.fff", "HH:MM:SS,mmm", "MM:SS.mmm" and
// "H:MM:SS.cc". Fractions longer than three digits are truncated.
func ParseTimecode(s string) (Timecode, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid timecode %q", s)
	}

	var hours int64
	if len(parts) == 3 {
		h, err := parseDigits(parts[0])
		if err != nil {
			return 0, fmt.Errorf("invalid hours in %q", s)
		}
		hours = h
		parts = parts[1:]
	}

	minutes, err := parseDigits(parts[0])
	if err != nil || minutes > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", s)
	}

	secPart, fracPart := parts[1], ""
	if i := strings.IndexAny(secPart, ".,"); i >= 0 {
		secPart, fracPart = secPart[:i], secPart[i+1:]
	}
	seconds, err := parseDigits(secPart)
	if err != nil || seconds > 59 {
		return 0, fmt.Errorf("invalid seconds in %q", s)
	}

	var millis int64
	if fracPart != "" {
		if _, err := parseDigits(fracPart); err != nil {
			return 0, fmt.Errorf("invalid fraction in %q", s)
		}
		frac := (fracPart + "00")[:3]
		millis, _ = strconv.ParseInt(frac, 10, 64)
	}

	return Timecode(hours*msPerHour + minutes*msPerMinute + seconds*msPerSecond + millis), nil
}

func parseDigits(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty field")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-digit %q", r)
		}
	}
	return strconv.ParseInt(s, 10, 64)
}

func (t Timecode) split() (h, m, s, ms int64) {
	v := int64(t)
	if v < 0 {
		v = 0
	}
	h = v / msPerHour
	m = v % msPerHour / msPerMinute
	s = v % msPerMinute / msPerSecond
	ms = v % msPerSecond
	return h, m, s, ms
}

// SRT renders HH:MM:SS,mmm.
func (t Timecode) SRT() string {
	h, m, s, ms := t.split()
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// VTT renders HH:MM:SS.mmm.
func (t Timecode) VTT() string {
	h, m, s, ms := t.split()
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

// ASS renders H:MM:SS.cc; sub-centisecond precision is dropped.
func (t Timecode) ASS() string {
	h, m, s, ms := t.split()
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, ms/10)
}

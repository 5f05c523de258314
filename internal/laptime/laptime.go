// Package laptime normalizes free-text lap time and gap input into the
// canonical MM:SS.mmm string form used for storage and comparison.
package laptime

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// NoGap is the sentinel gap value for the race leader and for entries that
// have no gap yet.
const NoGap = "--"

var (
	canonicalRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})\.(\d{3})$`)
	minSecRe    = regexp.MustCompile(`^(\d{1,2}):(\d{2})\.(\d{1,3})$`)
	secOnlyRe   = regexp.MustCompile(`^(\d{1,2})\.(\d{1,3})$`)
	digitsRe    = regexp.MustCompile(`^\d+$`)
	timeCharsRe = regexp.MustCompile(`[^\d:.]`)
	gapCharsRe  = regexp.MustCompile(`[^\d.+\-]`)
	leadDigitRe = regexp.MustCompile(`^\d`)
)

// Format normalizes a lap or total time to MM:SS.mmm. It accepts
// minute:second.millisecond forms, second.millisecond forms, and pure digit
// runs of up to seven digits, which are split from the right: the last three
// digits are milliseconds, the next two seconds, the remainder minutes.
// Empty and "--" input yield the empty string. Anything else is passed
// through unchanged rather than rejected.
func Format(input string) string {
	if input == "" || input == NoGap {
		return ""
	}

	cleaned := timeCharsRe.ReplaceAllString(input, "")
	if cleaned == "" {
		return ""
	}

	if m := minSecRe.FindStringSubmatch(cleaned); m != nil {
		return fmt.Sprintf("%s:%s.%s", padLeft(m[1], 2), m[2], padRight(m[3], 3))
	}

	if m := secOnlyRe.FindStringSubmatch(cleaned); m != nil {
		return fmt.Sprintf("00:%s.%s", padLeft(m[1], 2), padRight(m[2], 3))
	}

	if digitsRe.MatchString(cleaned) && len(cleaned) <= 7 {
		ms, rest := splitRight(cleaned, 3)
		sec, min := splitRight(rest, 2)
		return fmt.Sprintf("%s:%s.%s", padLeft(min, 2), padLeft(sec, 2), padLeft(ms, 3))
	}

	return cleaned
}

// ToMs parses a canonical MM:SS.mmm time into milliseconds. Any other form,
// including valid but uncanonicalized input, yields 0; callers are expected
// to run values through Format first.
func ToMs(time string) int {
	m := canonicalRe.FindStringSubmatch(time)
	if m == nil {
		return 0
	}
	min, _ := strconv.Atoi(m[1])
	sec, _ := strconv.Atoi(m[2])
	ms, _ := strconv.Atoi(m[3])
	return min*60000 + sec*1000 + ms
}

// FormatGap normalizes a gap-to-leader value, prefixing positive numeric gaps
// with "+". Empty and dash-only input yield the NoGap sentinel.
func FormatGap(input string) string {
	if input == "" || input == NoGap || input == "-" {
		return NoGap
	}

	cleaned := gapCharsRe.ReplaceAllString(input, "")
	if cleaned == "" || cleaned == "+" || cleaned == "-" {
		return NoGap
	}

	if strings.HasPrefix(cleaned, "+") {
		return cleaned
	}
	if leadDigitRe.MatchString(cleaned) {
		return "+" + cleaned
	}
	return cleaned
}

// splitRight splits s so the second return value holds everything before the
// last n characters.
func splitRight(s string, n int) (right, left string) {
	if len(s) <= n {
		return s, ""
	}
	return s[len(s)-n:], s[:len(s)-n]
}

func padLeft(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}

func padRight(s string, width int) string {
	for len(s) < width {
		s += "0"
	}
	return s
}

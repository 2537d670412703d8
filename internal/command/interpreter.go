// Package command detects device-control instructions embedded in
// free-form text. Recognized commands bypass the generative model so
// valve operation stays deterministic and low-latency.
package command

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/alphaq-labs/helixr/internal/domain"
)

// deviceRefs maps a spoken or typed valve reference to its number.
var deviceRefs = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"1": 1, "2": 2, "3": 3, "4": 4, "5": 5,
	"6": 6, "7": 7, "8": 8, "9": 9,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

// Verbs tolerate inflected forms ("opened", "deactivated") but are
// anchored at a word boundary so "deactivate" never matches as "activate".
const (
	openVerbs  = `\b(open|start|activate)\w*`
	closeVerbs = `\b(close|stop|shut\s*down|deactivate)\w*`
	deviceRef  = `(\d+|one|two|three|four|five|six|seven|eight|nine|ten)`
)

// Both verb-then-number and number-then-verb word orders resolve, so
// "open valve two" and "valve two, please activate" both match.
var patterns = []struct {
	re          *regexp.Regexp
	action      domain.Action
	deviceGroup int
}{
	{regexp.MustCompile(openVerbs + `.*?valve\s*` + deviceRef), domain.ActionOpen, 2},
	{regexp.MustCompile(closeVerbs + `.*?valve\s*` + deviceRef), domain.ActionClose, 2},
	{regexp.MustCompile(`valve\s*` + deviceRef + `.*?` + openVerbs), domain.ActionOpen, 1},
	{regexp.MustCompile(`valve\s*` + deviceRef + `.*?` + closeVerbs), domain.ActionClose, 1},
}

// Detect pattern-matches text against the closed command vocabulary and
// returns the first recognized command. A device reference outside the
// valid range is logged and treated as no match, never clamped.
func Detect(text string) (domain.Command, bool) {
	lower := strings.ToLower(text)
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		ref := m[p.deviceGroup]
		num, ok := deviceRefs[ref]
		if !ok {
			num = numeric(ref)
		}
		if !domain.ValidDevice(num) {
			slog.Warn("device reference out of range", "ref", ref, "text", text)
			continue
		}
		return domain.Command{
			Device: num,
			Action: p.action,
			Value:  domain.ActuatorValue(p.action),
		}, true
	}
	return domain.Command{}, false
}

// numeric parses a multi-digit reference like "12" that the word map does
// not cover. Returns 0 (always invalid) on failure.
func numeric(ref string) int {
	n := 0
	for _, r := range ref {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
		if n > 1000 {
			return n
		}
	}
	return n
}

package errorlog

import "regexp"

var (
	numberPattern = regexp.MustCompile(`\b0[xX][0-9a-fA-F]+\b|\d+`)
	dquotePattern = regexp.MustCompile(`"[^"]*"`)
	squotePattern = regexp.MustCompile(`'[^']*'`)
)

const normalizedMaxLen = 150

// Normalize reduces a raw error message to a stable pattern key component
// (spec §4.7.1): quoted strings first, then hex literals and remaining
// digits in a single pass (so the "0" of an inserted 0xHEX is never
// rewritten to N), truncated to 150 runes.
func Normalize(message string) string {
	msg := dquotePattern.ReplaceAllString(message, `"X"`)
	msg = squotePattern.ReplaceAllString(msg, "'X'")
	msg = numberPattern.ReplaceAllStringFunc(msg, func(m string) string {
		if len(m) > 2 && m[0] == '0' && (m[1] == 'x' || m[1] == 'X') {
			return "0xHEX"
		}
		return "N"
	})

	r := []rune(msg)
	if len(r) > normalizedMaxLen {
		r = r[:normalizedMaxLen]
	}
	return string(r)
}

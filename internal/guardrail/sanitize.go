package guardrail

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var scriptProtocol = regexp.MustCompile(`(?i)\b(?:javascript|vbscript)\s*:`)

// Sanitize strips angle brackets and script protocols and caps the length.
func (p *Policy) Sanitize(input string) string {
	return Sanitize(input, p.cfg.MaxInputLength)
}

// Sanitize is the policy-free form of Policy.Sanitize.
func Sanitize(input string, maxLen int) string {
	s := strings.NewReplacer("<", "", ">", "").Replace(input)
	s = scriptProtocol.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	if maxLen > 0 && utf8.RuneCountInString(s) > maxLen {
		s = strings.TrimSpace(string([]rune(s)[:maxLen]))
	}
	return s
}

package ivr

import (
	"regexp"
	"strings"
)

// dtmfTagPattern matches <dtmf>DIGITS</dtmf> tags embedded in agent speech.
// Digits cover the full touch-tone set plus the `w` pause glyph (0.5 s).
var dtmfTagPattern = regexp.MustCompile(`(?i)<dtmf>([0-9*#a-dw]+)</dtmf>`)

// ExtractDTMF returns every digit sequence tagged in text, uppercased, in
// order of appearance. Extraction never transmits; transmission is the DTMF
// handler's exclusive responsibility.
func ExtractDTMF(text string) []string {
	matches := dtmfTagPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.ToUpper(m[1]))
	}
	return out
}

// StripDTMF removes all DTMF tags from text for UI-facing transcripts.
func StripDTMF(text string) string {
	return strings.TrimSpace(dtmfTagPattern.ReplaceAllString(text, ""))
}

// ValidCharset reports whether digits contains only the touch-tone charset
// (0-9, *, #, A-D) plus the pause glyph w, case-insensitive.
func ValidCharset(digits string) bool {
	if digits == "" {
		return false
	}
	for _, r := range strings.ToUpper(digits) {
		switch {
		case r >= '0' && r <= '9', r == '*', r == '#', r >= 'A' && r <= 'D', r == 'W':
		default:
			return false
		}
	}
	return true
}

// HasTone reports whether digits contains at least one actual tone, i.e. is
// not composed purely of pause glyphs.
func HasTone(digits string) bool {
	for _, r := range strings.ToUpper(digits) {
		if r != 'W' {
			return true
		}
	}
	return false
}

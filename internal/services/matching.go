package services

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	affirmatives = map[string]bool{"si": true, "sí": true, "s": true, "yes": true}
	negatives    = map[string]bool{"no": true, "n": true}
)

// normalizeReply composes accents (NFC), lowercases with Spanish rules and
// trims. A Caser is stateful, so one is built per call.
func normalizeReply(s string) string {
	return strings.TrimSpace(cases.Lower(language.Spanish).String(norm.NFC.String(s)))
}

func isAffirmative(t string) bool { return affirmatives[t] }
func isNegative(t string) bool { return negatives[t] }

// isRejection must be checked before isAcceptance: "no acepto" contains "acepto".
func isRejection(t string) bool { return strings.Contains(t, "no acepto") || t == "no" }
func isAcceptance(t string) bool { return strings.Contains(t, "acepto") }

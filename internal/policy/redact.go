package policy

import "regexp"

// Rule pairs a sensitive-data pattern with its placeholder.
type Rule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// redactionRules run in order; order matters. Contiguous digit runs are
// consumed by the account rule before the card rule sees them, so only
// separator-grouped card numbers become [CARD]. SSNs are matched before the
// looser phone patterns. Placeholders contain no digits, which is what
// makes the whole pass idempotent.
var redactionRules = []Rule{
	// Account-number-like runs of 8-20 digits.
	{regexp.MustCompile(`\b\d{8,20}\b`), "[ACCOUNT]"},

	// Credit-card-like groups of four digits.
	{regexp.MustCompile(`\b(?:\d{4}[ -]){3}\d{4}\b`), "[CARD]"},

	// US social security numbers.
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[SSN]"},

	// Phone numbers, optionally with country code and parenthesized area.
	{regexp.MustCompile(`(?:\+?\d{1,2}[ .-])?\(?\d{3}\)?[ .-]\d{3}[ .-]\d{4}\b`), "[PHONE]"},

	// Email addresses.
	{regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), "[EMAIL]"},
}

// Redact replaces account numbers, card numbers, SSNs, phone numbers, and
// email addresses with fixed placeholders. Running it on already-redacted
// text is a no-op.
func Redact(text string) string {
	for _, rule := range redactionRules {
		text = rule.Pattern.ReplaceAllString(text, rule.Replacement)
	}
	return text
}

// ContainsSensitive reports whether text matches any redaction pattern.
func ContainsSensitive(text string) bool {
	for _, rule := range redactionRules {
		if rule.Pattern.MatchString(text) {
			return true
		}
	}
	return false
}

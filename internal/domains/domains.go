package domains

import (
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

// hostPrefix matches a single leading host-file address followed by
// whitespace, as found in /etc/hosts style block lists.
var hostPrefix = regexp.MustCompile(`^(0\.0\.0\.0|127\.0\.0\.1|::1|::)\s+`)

// Normalize strips block-list formatting markers from a list entry so it
// becomes a bare domain usable as a lookup key. Each rule removes its first
// occurrence only, in a fixed order. Unmatched input passes through
// unchanged; the result is not validated.
func Normalize(value string, allowlisting bool) string {
	// The allow-list exception marker is stripped atomically before the
	// generic "||" rule can split it apart.
	if allowlisting {
		value = strings.Replace(value, "@@||", "", 1)
	}
	value = hostPrefix.ReplaceAllString(value, "")
	value = strings.Replace(value, "||", "", 1)
	value = strings.Replace(value, "^$important", "", 1)
	value = strings.Replace(value, "*.", "", 1)
	value = strings.Replace(value, "^", "", 1)
	return value
}

// Canonical converts a domain to its canonical ASCII lower-case form.
// - Trims spaces
// - Drops a trailing dot
// - Applies IDNA Lookup ToASCII mapping
// - Lower-cases the result
func Canonical(domain string) string {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return ""
	}
	domain = strings.TrimSuffix(domain, ".")
	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil || ascii == "" {
		ascii = domain
	}
	return strings.ToLower(ascii)
}

const (
	// maxLabelLen is the maximum length of a single domain label (RFC 1035).
	maxLabelLen = 63
	// maxDomainLen is the maximum length of a full domain name (RFC 1035).
	maxDomainLen = 253
)

// Valid reports whether domain is a plausible fully-qualified domain name in
// canonical form: at least two labels, RFC 1035 length limits, alphanumeric
// outer runes, hyphens only inside labels, and a final label that is not
// purely numeric.
func Valid(domain string) bool {
	if l := len(domain); l == 0 || l > maxDomainLen {
		return false
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if !validLabel(label) {
			return false
		}
	}
	tld := labels[len(labels)-1]
	if len(tld) < 2 || !containsLetter(tld) {
		return false
	}
	return true
}

func validLabel(label string) bool {
	l := len(label)
	if l == 0 || l > maxLabelLen {
		return false
	}
	if !outerRune(rune(label[0])) || !outerRune(rune(label[l-1])) {
		return false
	}
	if l <= 2 {
		return true
	}
	for _, r := range label[1 : l-1] {
		if !innerRune(r) {
			return false
		}
	}
	return true
}

// outerRune reports whether r may begin or end a label.
func outerRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

// innerRune reports whether r may appear inside a label.
func innerRune(r rune) bool {
	return r == '-' || outerRune(r)
}

func containsLetter(s string) bool {
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			return true
		}
	}
	return false
}

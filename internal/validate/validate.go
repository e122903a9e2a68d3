// Package validate holds the input rules and user-facing messages shared by
// every client surface.
package validate

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Limits are the length bounds applied to form input.
type Limits struct {
	MinTitle          int
	MaxTitle          int
	MinDescription    int
	MaxDescription    int
	MinPasswordLength int
}

// DefaultLimits mirrors the bounds enforced by the backend rules.
var DefaultLimits = Limits{
	MinTitle:          3,
	MaxTitle:          100,
	MinDescription:    10,
	MaxDescription:    1000,
	MinPasswordLength: 6,
}

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Email reports whether v looks like an email address.
func Email(v string) bool {
	return emailRe.MatchString(v)
}

// Password reports whether v meets the minimum length.
func (l Limits) Password(v string) bool {
	return v != "" && utf8.RuneCountInString(v) >= l.MinPasswordLength
}

// Title reports whether the trimmed title length is within bounds.
func (l Limits) Title(v string) bool {
	return between(strings.TrimSpace(v), l.MinTitle, l.MaxTitle)
}

// Description reports whether the trimmed description length is within bounds.
func (l Limits) Description(v string) bool {
	return between(strings.TrimSpace(v), l.MinDescription, l.MaxDescription)
}

func between(v string, lo, hi int) bool {
	n := utf8.RuneCountInString(v)
	return n >= lo && n <= hi
}

// URL reports whether v parses as an absolute URL with a host.
func URL(v string) bool {
	u, err := url.Parse(v)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

var scriptRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)

// Sanitize trims v and strips embedded script blocks. Rendering escapes
// everything else.
func Sanitize(v string) string {
	return strings.TrimSpace(scriptRe.ReplaceAllString(strings.TrimSpace(v), ""))
}

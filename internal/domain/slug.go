package domain

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MaxSlugBaseLen bounds the normalized slug before the date suffix.
const MaxSlugBaseLen = 64

var (
	whitespaceRe  = regexp.MustCompile(`[\s\p{Zs}\v\x{FEFF}\x{2028}\x{2029}]+`)
	disallowedRe  = regexp.MustCompile(`[^a-z0-9-]`)
	multiHyphenRe = regexp.MustCompile(`-+`)
	slugRe        = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

	lower = cases.Lower(language.Und)
)

// NormalizeBase turns free-form input into the slug body without the date
// suffix. It returns "" when nothing usable remains.
func NormalizeBase(input string) string {
	s := strings.TrimSpace(lower.String(input))
	s = whitespaceRe.ReplaceAllString(s, "-")
	s = disallowedRe.ReplaceAllString(s, "")
	s = multiHyphenRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > MaxSlugBaseLen {
		s = strings.TrimRight(s[:MaxSlugBaseLen], "-")
	}
	if !slugRe.MatchString(s) {
		return ""
	}
	return s
}

// NormalizeSlug normalizes input and appends the -MMDD suffix for the UTC day
// of now. The result is "" when the input does not normalize to a valid slug;
// callers must not proceed in that case.
func NormalizeSlug(input string, now time.Time) string {
	base := NormalizeBase(input)
	if base == "" {
		return ""
	}
	return base + "-" + now.UTC().Format("0102")
}

// ValidSlug reports whether s is a well-formed slug path token. It accepts
// slugs with or without a date suffix and rejects anything longer than the
// base limit plus the suffix.
func ValidSlug(s string) bool {
	return len(s) > 0 && len(s) <= MaxSlugBaseLen+5 && slugRe.MatchString(s)
}

package dedup

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// nameStopwords are generic park-industry words stripped before name
// comparison so that "Sunny Acres RV Park" and "Sunny Acres RV Resort"
// both reduce to "sunny acres".
var nameStopwords = map[string]struct{}{
	"rv": {}, "park": {}, "mobile": {}, "home": {}, "trailer": {},
	"campground": {}, "resort": {}, "the": {}, "a": {}, "an": {},
	"and": {}, "&": {},
}

var namePunctRe = regexp.MustCompile(`[^\w\s]`)

// foldDiacritics strips combining marks so accented listings compare
// equal to their plain-ASCII spellings.
var foldDiacritics = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// NormalizeName reduces a park name to its comparable core: lowercase,
// diacritics folded, stopwords removed, punctuation stripped.
func NormalizeName(name string) string {
	if name == "" {
		return ""
	}

	name = strings.ToLower(name)
	if folded, _, err := transform.String(foldDiacritics, name); err == nil {
		name = folded
	}

	words := strings.Fields(name)
	kept := words[:0]
	for _, w := range words {
		if _, stop := nameStopwords[w]; !stop {
			kept = append(kept, w)
		}
	}

	name = strings.Join(kept, " ")
	name = namePunctRe.ReplaceAllString(name, "")
	return strings.TrimSpace(name)
}

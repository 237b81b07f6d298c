// Package dedup implements the park listing consolidation core: address
// normalization, geographic blocking, duplicate detection, and master
// record building.
package dedup

import (
	"regexp"
	"strings"

	postal "github.com/openvenues/gopostal/parser"

	"github.com/sells-group/parkscout/internal/model"
)

// streetTypeAbbr maps spelled-out and mangled street types to USPS-style
// abbreviations so that "Oak Street" and "Oak St" compare equal.
var streetTypeAbbr = map[string]string{
	"street": "st", "str": "st", "strt": "st",
	"avenue": "ave", "av": "ave", "avn": "ave",
	"boulevard": "blvd", "blv": "blvd", "boul": "blvd",
	"road": "rd", "roa": "rd",
	"drive": "dr", "drv": "dr", "driv": "dr",
	"lane": "ln", "lan": "ln",
	"court": "ct", "crt": "ct",
	"circle": "cir", "circ": "cir",
	"place": "pl", "plc": "pl",
	"highway": "hwy", "hiway": "hwy",
	"parkway": "pkwy", "pkw": "pkwy", "pky": "pkwy",
	"trail": "trl", "trls": "trl",
}

// fallbackExpansions is the fixed dictionary applied on the basic
// normalization path when the structured parse yields nothing.
var fallbackExpansions = []struct {
	re   *regexp.Regexp
	abbr string
}{
	{regexp.MustCompile(`\bstreet\b`), "st"},
	{regexp.MustCompile(`\bavenue\b`), "ave"},
	{regexp.MustCompile(`\bboulevard\b`), "blvd"},
	{regexp.MustCompile(`\broad\b`), "rd"},
	{regexp.MustCompile(`\bdrive\b`), "dr"},
	{regexp.MustCompile(`\blane\b`), "ln"},
	{regexp.MustCompile(`\bcourt\b`), "ct"},
	{regexp.MustCompile(`\bcircle\b`), "cir"},
	{regexp.MustCompile(`\bplace\b`), "pl"},
	{regexp.MustCompile(`\bhighway\b`), "hwy"},
	{regexp.MustCompile(`\bparkway\b`), "pkwy"},
	{regexp.MustCompile(`\btrail\b`), "trl"},
}

var (
	addrJunkRe   = regexp.MustCompile(`[^\w\s,.-]`)
	multiSpaceRe = regexp.MustCompile(`\s+`)
	multiCommaRe = regexp.MustCompile(`,+`)
)

// AddressNormalizer converts free-text postal addresses into comparable
// canonical strings. Parsing never fails: when the structured grammar
// parse produces nothing useful, a deterministic lowercase fallback with
// street-type abbreviation is used instead.
type AddressNormalizer struct {
	// parse is swappable so tests can run without libpostal data files.
	parse func(string) []postal.ParsedComponent
}

// NewAddressNormalizer returns a normalizer backed by libpostal.
func NewAddressNormalizer() *AddressNormalizer {
	return &AddressNormalizer{parse: postal.ParseAddress}
}

// CleanAddress strips characters outside word/space/comma/period/hyphen
// classes, collapses whitespace, and collapses repeated commas.
func CleanAddress(address string) string {
	if address == "" {
		return ""
	}
	address = addrJunkRe.ReplaceAllString(address, "")
	address = multiSpaceRe.ReplaceAllString(address, " ")
	address = multiCommaRe.ReplaceAllString(address, ",")
	return strings.TrimSpace(address)
}

// NormalizeStreetType maps a street type to its canonical abbreviation.
// Unknown types pass through lowercased.
func NormalizeStreetType(streetType string) string {
	if streetType == "" {
		return ""
	}
	lower := strings.Trim(strings.ToLower(streetType), ".")
	if abbr, ok := streetTypeAbbr[lower]; ok {
		return abbr
	}
	return lower
}

// Parse normalizes a free-text address. The ParseSuccess flag on the
// result reports whether the structured path or the fallback was taken.
// The returned FullNormalized string is never empty when the input has
// any address text.
func (n *AddressNormalizer) Parse(address string) model.NormalizedAddress {
	cleaned := CleanAddress(address)
	if cleaned == "" {
		return model.NormalizedAddress{}
	}

	components := n.safeParse(cleaned)
	parsed := assemble(components)
	if parsed.ParseSuccess {
		return parsed
	}

	return model.NormalizedAddress{
		FullNormalized: basicNormalize(cleaned),
		ParseSuccess:   false,
	}
}

// safeParse shields callers from panics inside the native parser.
func (n *AddressNormalizer) safeParse(cleaned string) (components []postal.ParsedComponent) {
	defer func() {
		if r := recover(); r != nil {
			components = nil
		}
	}()
	return n.parse(cleaned)
}

// assemble builds a NormalizedAddress from labeled parser components.
// A parse counts as successful only when it yields a street name.
func assemble(components []postal.ParsedComponent) model.NormalizedAddress {
	var addr model.NormalizedAddress
	for _, c := range components {
		v := strings.TrimSpace(c.Value)
		if v == "" {
			continue
		}
		switch c.Label {
		case "house_number":
			addr.StreetNumber = v
		case "road":
			addr.StreetName = strings.ToLower(v)
		case "city":
			addr.City = v
		case "state":
			addr.State = v
		case "postcode":
			addr.ZipCode = v
		}
	}

	if addr.StreetName == "" {
		return model.NormalizedAddress{}
	}

	// The street type is the trailing token of the road component once
	// normalized ("oak street" -> type "st", name "oak st").
	tokens := strings.Fields(addr.StreetName)
	if len(tokens) > 1 {
		if abbr := NormalizeStreetType(tokens[len(tokens)-1]); abbr != tokens[len(tokens)-1] || streetTypeIsKnown(abbr) {
			addr.StreetType = abbr
			tokens[len(tokens)-1] = abbr
			addr.StreetName = strings.Join(tokens, " ")
		}
	}

	var parts []string
	if addr.StreetNumber != "" {
		parts = append(parts, addr.StreetNumber)
	}
	parts = append(parts, addr.StreetName)
	if addr.StreetType != "" && !strings.Contains(addr.StreetName, addr.StreetType) {
		parts = append(parts, addr.StreetType)
	}
	addr.FullNormalized = strings.Join(parts, " ")
	addr.ParseSuccess = true
	return addr
}

// streetTypeIsKnown reports whether abbr is one of the canonical
// street-type abbreviations.
func streetTypeIsKnown(abbr string) bool {
	for _, e := range fallbackExpansions {
		if e.abbr == abbr {
			return true
		}
	}
	return false
}

// basicNormalize is the deterministic fallback: lowercase plus
// whole-word expansion of the fixed street-type dictionary. Applying it
// to its own output yields the same string.
func basicNormalize(cleaned string) string {
	out := strings.ToLower(cleaned)
	for _, e := range fallbackExpansions {
		out = e.re.ReplaceAllString(out, e.abbr)
	}
	return out
}

// README: City label canonicalization over known spelling-variant clusters.
package geo

import "strings"

// cityVariants maps a canonical city token to the spelling variants seen in
// merchant and driver records. Free-text city names are unreliable; grouping
// them here once beats scattering pattern literals through matching code.
var cityVariants = map[string][]string{
	"mehsana":     {"mahesana", "mehsanaa", "mahesanaa", "mehasana"},
	"ahmedabad":   {"amdavad", "ahmadabad", "ahmedabaad", "amdabad"},
	"gandhinagar": {"gandhi nagar", "gandhinagr"},
	"visnagar":    {"vishnagar", "visnagr"},
	"unjha":       {"unjaa", "unza"},
	"kadi":        {"kadie"},
}

// variantIndex is the inverted lookup built once at init: cleaned variant -> canonical.
var variantIndex = func() map[string]string {
	idx := make(map[string]string, len(cityVariants)*4)
	for canonical, variants := range cityVariants {
		idx[canonical] = canonical
		for _, v := range variants {
			idx[v] = canonical
		}
	}
	return idx
}()

// CanonicalCity normalizes a free-text city label to its canonical token.
// Already-canonical labels map to themselves, so the function is idempotent.
// Labels outside every known cluster are returned cleaned (lowercased,
// space-collapsed) so equality still works for cities without variants.
func CanonicalCity(label string) string {
	cleaned := cleanLabel(label)
	if cleaned == "" {
		return ""
	}
	if canonical, ok := variantIndex[cleaned]; ok {
		return canonical
	}
	return cleaned
}

// SameCity reports whether two free-text labels name the same canonical city.
// Empty labels never match anything, including each other.
func SameCity(a, b string) bool {
	ca, cb := CanonicalCity(a), CanonicalCity(b)
	return ca != "" && ca == cb
}

func cleanLabel(label string) string {
	lower := strings.ToLower(strings.TrimSpace(label))
	return strings.Join(strings.Fields(lower), " ")
}

package validation

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeCity folds case, strips diacritics and collapses punctuation so that
// "Fès", "FES" and "fes " compare equal.
func NormalizeCity(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
			space = false
			continue
		}
		space = true
	}
	return b.String()
}

// CityMatcher compares an expense city against the mission destination,
// optionally accepting a configured set of nearby cities per destination.
type CityMatcher struct {
	nearby map[string]map[string]struct{}
}

func NewCityMatcher(nearby map[string][]string) CityMatcher {
	m := CityMatcher{nearby: make(map[string]map[string]struct{}, len(nearby))}
	for dest, cities := range nearby {
		key := NormalizeCity(dest)
		set := m.nearby[key]
		if set == nil {
			set = make(map[string]struct{}, len(cities))
			m.nearby[key] = set
		}
		for _, c := range cities {
			set[NormalizeCity(c)] = struct{}{}
		}
	}
	return m
}

// Match reports whether city is the destination or an accepted nearby city.
func (m CityMatcher) Match(city, destination string) bool {
	c, d := NormalizeCity(city), NormalizeCity(destination)
	if c == d {
		return true
	}
	_, ok := m.nearby[d][c]
	return ok
}

// Nearby returns the normalized nearby cities accepted for destination, sorted.
func (m CityMatcher) Nearby(destination string) []string {
	set := m.nearby[NormalizeCity(destination)]
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

package utils

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var wsRe = regexp.MustCompile(`\s+`)

// NormalizeVillage turns a user-typed village name into the key used for
// storage and channel routing: accents stripped, whitespace collapsed,
// upper case. "  Saint-Lô " and "SAINT-LO" map to the same key.
func NormalizeVillage(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	t := norm.NFKD.String(name)
	b := make([]rune, 0, len(t))
	for _, r := range t {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b = append(b, unicode.ToUpper(r))
	}
	return wsRe.ReplaceAllString(string(b), " ")
}

// NormalizeVillages normalizes and de-duplicates, keeping first-seen order.
func NormalizeVillages(names []string) []string {
	out := make([]string, 0, len(names))
	seen := map[string]bool{}
	for _, n := range names {
		v := NormalizeVillage(n)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// SameSet reports whether a and b hold the same elements, ignoring order.
func SameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	m := make(map[string]int, len(a))
	for _, x := range a {
		m[x]++
	}
	for _, x := range b {
		if m[x] == 0 {
			return false
		}
		m[x]--
	}
	return true
}

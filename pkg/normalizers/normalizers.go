// Package normalizers provides the name, date and identifier normalization
// applied to person records before blocking and scoring.
//
// Blocking and scoring must see identically normalized values, so every
// record set is normalized exactly once, through this package.
package normalizers

import (
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("digits_only", DigitsOnly)
	Register("remove_punctuation", RemovePunctuation)
	Register("ngiven", GivenName)
	Register("nfamily", FamilyName)
	Register("nplace", Place)
	Register("ndate", Date)
	Register("nident", Identifier)
	Register("nkey", Key)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	return strings.Map(keepIf(unicode.IsDigit), s)
}

// RemovePunctuation removes all punctuation characters
func RemovePunctuation(s string) string {
	return strings.Map(keepIf(func(r rune) bool { return !unicode.IsPunct(r) }), s)
}

// keepIf builds a strings.Map function dropping every rune keep rejects
func keepIf(keep func(rune) bool) func(rune) rune {
	return func(r rune) rune {
		if keep(r) {
			return r
		}
		return -1
	}
}

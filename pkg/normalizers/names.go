package normalizers

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxFoldPasses bounds the fixed-point iteration. Every non-final pass
// shortens the value or removes a folded letter, so real input settles in two or three.
const maxFoldPasses = 16

var specialReplacements = map[rune]string{
	'á': "a", 'ï': "i", 'ş': "s", 'ó': "o", 'ł': "l", 'ñ': "n", 'è': "e", 'ç': "c",
	'ß': "ss", 'ô': "o", 'ü': "u", 'æ': "ae", 'ø': "o", 'û': "u", 'ã': "a", 'ê': "e",
	'ë': "e", 'ù': "u", 'î': "i", 'é': "e", 'í': "i", 'ú': "u", 'ý': "y", 'à': "a",
	'ì': "i", 'ò': "o", 'õ': "o", 'ă': "a", 'ā': "a", 'ē': "e", 'ī': "i", 'ō': "o",
	'ū': "u", 'ȳ': "y", 'ǎ': "a", 'ě': "e", 'ǐ': "i", 'ǒ': "o", 'ǔ': "u", 'ǜ': "u",
	'ǽ': "ae", 'ð': "d", 'œ': "oe", 'ẽ': "e", 'ỹ': "y", 'ũ': "u", 'ȩ': "e", 'ȯ': "o",
	'ḧ': "h", 'ẅ': "w", 'ẗ': "t", 'ḋ': "d", 'ẍ': "x", 'ẁ': "w", 'ẃ': "w", 'ỳ': "y",
	'ÿ': "y", 'ŷ': "y", 'ą': "a", 'į': "i", 'ś': "s", 'ź': "z", 'ć': "c", 'ń': "n",
	'ę': "e", 'ţ': "t", 'ģ': "g", 'ķ': "k", 'ņ': "n", 'ļ': "l", 'ż': "z", 'ċ': "c",
	'š': "s", 'ž': "z", 'ď': "d", 'ľ': "l", 'ř': "r", 'ǧ': "g", 'ǳ': "dz", 'ǆ': "dz",
	'ǉ': "lj", 'ǌ': "nj", 'ǚ': "u", 'ǘ': "u", 'ǟ': "a", 'ǡ': "a", 'ǣ': "ae", 'ǥ': "g",
	'ǭ': "o", 'ǯ': "z", 'ȟ': "h", 'ȱ': "o", 'ȹ': "y", 'ḭ': "i", 'ḯ': "i", 'ḱ': "k",
	'ä': "a", 'ö': "o",
}

// stripMarks removes combining marks left on characters the table does not cover
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// phoneticReplacer is leftmost-first, so the bigrams win over the single letters
var phoneticReplacer = strings.NewReplacer(
	"th", "t",
	"ck", "k",
	"ph", "f",
	"tz", "z",
	"w", "v",
	"y", "i",
	"j", "i",
)

var (
	maidenNamePattern = regexp.MustCompile(`\s(geb|gesch)\.?\s.*$`)
	ovaEndingPattern  = regexp.MustCompile(`(owa|ova)$`)
	adjectivePattern  = regexp.MustCompile(`(sk|ck)a$`)
)

// GivenName normalizes a given name: lowercase, diacritic folding, umlaut
// digraphs, phonetic bigrams and repeated letters. The result is a
// space-joined list of sub-tokens and GivenName(GivenName(x)) == GivenName(x).
func GivenName(s string) string {
	if IsEmpty(s) {
		return ""
	}
	return settle(fixedPoint(foldName, strings.ToLower(s)))
}

// FamilyName normalizes a family name like GivenName and additionally drops a
// trailing maiden-name clause ("geb ...", "gesch ...") and folds
// language-specific endings (-owa/-ova, -sohn(s), -ska/-cka).
func FamilyName(s string) string {
	if IsEmpty(s) {
		return ""
	}
	return settle(fixedPoint(foldFamilyName, strings.ToLower(s)))
}

// Place normalizes a birthplace with the given-name pipeline
func Place(s string) string {
	return GivenName(s)
}

func foldFamilyName(s string) string {
	s = maidenNamePattern.ReplaceAllString(s, "")
	tokens := strings.Fields(s)
	for i, token := range tokens {
		tokens[i] = stripLanguageEnding(token)
	}
	return foldName(strings.Join(tokens, " "))
}

func stripLanguageEnding(token string) string {
	token = ovaEndingPattern.ReplaceAllString(token, "")
	switch {
	case strings.HasSuffix(token, "sohns"):
		token = strings.TrimSuffix(token, "sohns") + "sons"
	case strings.HasSuffix(token, "sohn"):
		token = strings.TrimSuffix(token, "sohn") + "son"
	}
	return adjectivePattern.ReplaceAllString(token, "${1}i")
}

func foldName(s string) string {
	s = replaceSpecialCharacters(s)
	s = foldUmlauts(s)
	s = phoneticReplacer.Replace(s)
	s = collapseRepeats(s)
	return cleanSeparators(s)
}

func replaceSpecialCharacters(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if repl, ok := specialReplacements[r]; ok {
			b.WriteString(repl)
			continue
		}
		b.WriteRune(r)
	}
	folded, _, err := transform.String(stripMarks, b.String())
	if err != nil {
		return b.String()
	}
	return folded
}

// foldUmlauts collapses the digraphs ae, oe and ue. "ue" is kept after a, e
// and q, where it is a diphthong (Bauer, Neuer) or part of "qu".
func foldUmlauts(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		b.WriteByte(c)
		if i+1 >= len(s) || s[i+1] != 'e' {
			continue
		}
		switch c {
		case 'a', 'o':
			i++
		case 'u':
			if i == 0 || (s[i-1] != 'a' && s[i-1] != 'e' && s[i-1] != 'q') {
				i++
			}
		}
	}
	return b.String()
}

func collapseRepeats(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for i, r := range s {
		if i > 0 && r == prev && r >= 'a' && r <= 'z' {
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

// cleanSeparators turns every non letter/digit into a single space
func cleanSeparators(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

func fixedPoint(fn Normalizer, s string) string {
	for i := 0; i < maxFoldPasses; i++ {
		next := fn(s)
		if next == s {
			return s
		}
		s = next
	}
	return s
}

func settle(s string) string {
	if IsEmpty(s) {
		return ""
	}
	return s
}

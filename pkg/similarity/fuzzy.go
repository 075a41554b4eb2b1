package similarity

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// Process lowercases s, turns every non letter/digit into a space and trims the result
func Process(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteByte(' ')
	}
	return strings.TrimSpace(b.String())
}

// Ratio is the normalized insert/delete similarity of the processed inputs, 0..100.
// Two empty inputs are identical.
func Ratio(a, b string) float64 {
	pa, pb := Process(a), Process(b)
	return normalizedSimilarity(indelDistance(pa, pb), utf8.RuneCountInString(pa)+utf8.RuneCountInString(pb))
}

// TokenSetRatio compares the processed inputs as sets of whitespace tokens, so
// token order and repetition do not matter. An empty side scores 0.
func TokenSetRatio(a, b string) float64 {
	tokensA := tokenSet(Process(a))
	tokensB := tokenSet(Process(b))
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	var intersection, diffAB, diffBA []string
	for token := range tokensA {
		if _, ok := tokensB[token]; ok {
			intersection = append(intersection, token)
		} else {
			diffAB = append(diffAB, token)
		}
	}
	for token := range tokensB {
		if _, ok := tokensA[token]; !ok {
			diffBA = append(diffBA, token)
		}
	}

	// one side is a subset of the other
	if len(intersection) > 0 && (len(diffAB) == 0 || len(diffBA) == 0) {
		return 100
	}

	joinedAB := joinSorted(diffAB)
	joinedBA := joinSorted(diffBA)
	abLen := utf8.RuneCountInString(joinedAB)
	baLen := utf8.RuneCountInString(joinedBA)
	sectLen := utf8.RuneCountInString(joinSorted(intersection))

	sep := 0
	if sectLen > 0 {
		sep = 1
	}
	sectABLen := sectLen + sep + abLen
	sectBALen := sectLen + sep + baLen

	result := normalizedSimilarity(indelDistance(joinedAB, joinedBA), sectABLen+sectBALen)
	if sectLen == 0 {
		return result
	}

	// the intersection is a common prefix, so the distance to each side is its remainder
	sectABRatio := normalizedSimilarity(sep+abLen, sectLen+sectABLen)
	sectBARatio := normalizedSimilarity(sep+baLen, sectLen+sectBALen)

	return max(result, sectABRatio, sectBARatio)
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func joinSorted(tokens []string) string {
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func normalizedSimilarity(distance, lenSum int) float64 {
	if lenSum == 0 {
		return 100
	}
	return 100 - 100*float64(distance)/float64(lenSum)
}

// indelDistance is the number of insertions and deletions turning a into b
func indelDistance(a, b string) int {
	return utf8.RuneCountInString(a) + utf8.RuneCountInString(b) - 2*matchr.LongestCommonSubsequence(a, b)
}

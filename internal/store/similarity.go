package store

import "strings"

// NearIdenticalThreshold is the bigram Jaccard index above which two
// texts count as the same document.
const NearIdenticalThreshold = 0.95

// canonicalText folds case and collapses runs of whitespace.
func canonicalText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// runeBigrams returns the set of adjacent rune pairs in s.
func runeBigrams(s string) map[[2]rune]struct{} {
	runes := []rune(s)
	if len(runes) < 2 {
		return nil
	}
	set := make(map[[2]rune]struct{}, len(runes)-1)
	for i := 1; i < len(runes); i++ {
		set[[2]rune{runes[i-1], runes[i]}] = struct{}{}
	}
	return set
}

// textNearIdentical compares the canonical forms of a and b by the
// Jaccard index of their rune bigrams.
func textNearIdentical(a, b string) bool {
	a, b = canonicalText(a), canonicalText(b)
	if a == b {
		return true
	}
	x, y := runeBigrams(a), runeBigrams(b)
	if len(x) == 0 || len(y) == 0 {
		return false
	}
	if len(x) > len(y) {
		x, y = y, x
	}
	shared := 0
	for bg := range x {
		if _, ok := y[bg]; ok {
			shared++
		}
	}
	return float64(shared)/float64(len(x)+len(y)-shared) > NearIdenticalThreshold
}

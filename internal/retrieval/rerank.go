package retrieval

import (
	"math"
	"strings"
)

// Rerank weights applied on top of the fused score.
const (
	rerankBaseWeight      = 0.5
	rerankOverlapWeight   = 0.3
	rerankDiversityWeight = 0.2
	diversitySaturation   = 3.0
)

// Rerank rescoring for each result:
//
//	score = base*0.5 + min(overlap/max(|q|,1), 1)*0.3 + min(sources/3, 1)*0.2
//
// where overlap counts distinct lowercase whitespace-separated query terms
// found in the text. The returned slice is a reordered copy.
func Rerank(query string, results []Result) []Result {
	out := cloneAll(results)
	queryTerms := termSet(query)

	for i := range out {
		r := &out[i]
		base := r.ScoreOr(DefaultScore)

		overlap := keywordOverlap(queryTerms, r.Text)
		overlapScore := math.Min(float64(overlap)/math.Max(float64(len(queryTerms)), 1), 1) * rerankOverlapWeight
		diversityScore := math.Min(float64(len(r.Sources()))/diversitySaturation, 1) * rerankDiversityWeight

		r.Score = Float(base*rerankBaseWeight + overlapScore + diversityScore)
	}

	sortByScore(out)
	return out
}

func termSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// keywordOverlap counts distinct query terms present in text.
func keywordOverlap(queryTerms map[string]struct{}, text string) int {
	textTerms := termSet(text)
	n := 0
	for t := range queryTerms {
		if _, ok := textTerms[t]; ok {
			n++
		}
	}
	return n
}

// Package ranker orders documents by their summed term frequency.
package ranker

import (
	"cmp"
	"path/filepath"
	"slices"
)

// ScoredDoc is one ranked document. DocID is the document's absolute path.
type ScoredDoc struct {
	DocID string `json:"doc_id"`
	Score int    `json:"score"`
}

// Rank sorts scores by descending score, breaking ties by ascending DocID,
// and keeps at most limit entries. A non-positive limit keeps everything.
func Rank(scores map[string]int, limit int) []ScoredDoc {
	result := make([]ScoredDoc, 0, len(scores))
	for docID, score := range scores {
		result = append(result, ScoredDoc{DocID: docID, Score: score})
	}
	slices.SortFunc(result, func(a, b ScoredDoc) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.DocID, b.DocID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// FilterAll keeps only documents that contain every one of terms, using
// contains to probe the index.
func FilterAll(scores map[string]int, terms []string, contains func(term, docID string) bool) map[string]int {
	out := make(map[string]int, len(scores))
	for docID, score := range scores {
		keep := true
		for _, term := range terms {
			if !contains(term, docID) {
				keep = false
				break
			}
		}
		if keep {
			out[docID] = score
		}
	}
	return out
}

// DisplayNames returns the final path component of each document.
func DisplayNames(docs []ScoredDoc) []string {
	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = filepath.Base(d.DocID)
	}
	return names
}

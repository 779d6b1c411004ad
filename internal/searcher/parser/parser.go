// Package parser turns a raw query string into the term list evaluated
// against the index.
package parser

import (
	"strings"
)

// Separator joins terms in a query. It is matched literally: case,
// surrounding whitespace and repeats are significant.
const Separator = " AND "

// QueryPlan is a parsed query. Terms keeps the order and any duplicates of
// the raw query; DistinctTerms drops duplicates, keeping first occurrences.
type QueryPlan struct {
	RawQuery      string
	Terms         []string
	DistinctTerms []string
}

// Parse splits query on Separator. No trimming or lowercasing is applied,
// so "Cat" never matches the indexed term "cat" and "cat and dog" is the
// single term "cat and dog". An empty query yields an empty plan.
func Parse(query string) *QueryPlan {
	plan := &QueryPlan{
		RawQuery:      query,
		Terms:         []string{},
		DistinctTerms: []string{},
	}
	if query == "" {
		return plan
	}
	plan.Terms = strings.Split(query, Separator)
	seen := make(map[string]struct{}, len(plan.Terms))
	for _, term := range plan.Terms {
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		plan.DistinctTerms = append(plan.DistinctTerms, term)
	}
	return plan
}

// Empty reports whether the plan has no terms.
func (p *QueryPlan) Empty() bool {
	return len(p.Terms) == 0
}

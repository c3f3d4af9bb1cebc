// Package recall answers queries against the bookmark index by combining
// exact/partial lexical matching with vector-similarity semantic matching,
// degrading to lexical-only when the embedding backend is unavailable.
package recall

import (
	"sort"
	"strings"

	"github.com/kalambet/yomark/internal/bookmark"
)

// Field weights for lexical scoring. Each field contributes its weight at
// most once per query, no matter how many keywords or tags contain the match.
const (
	weightTitle       = 1.0
	weightKeyword     = 0.8
	weightTag         = 0.6
	weightDescription = 0.5
	weightURL         = 0.3
)

// maxLexicalScore is the sum of all field weights, used to normalize lexical
// scores onto a 0–1 scale before merging with semantic scores.
const maxLexicalScore = weightTitle + weightKeyword + weightTag + weightDescription + weightURL

// LexicalScore computes the field-weighted substring relevance of query
// against rec. Matching is case-insensitive contiguous substring containment,
// not tokenized: "python code" does not match "Python Best Practices Guide".
// A zero score means no field matched. The returned field names identify
// which fields matched, in weight order.
func LexicalScore(query string, rec *bookmark.Bookmark) (float64, []string) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return 0, nil
	}

	var score float64
	var fields []string

	if strings.Contains(strings.ToLower(rec.Title), q) {
		score += weightTitle
		fields = append(fields, "title")
	}
	if anyContains(rec.Keywords, q) {
		score += weightKeyword
		fields = append(fields, "keywords")
	}
	if anyContains(rec.Tags, q) {
		score += weightTag
		fields = append(fields, "tags")
	}
	if rec.Description != "" && strings.Contains(strings.ToLower(rec.Description), q) {
		score += weightDescription
		fields = append(fields, "description")
	}
	if strings.Contains(strings.ToLower(rec.URL), q) {
		score += weightURL
		fields = append(fields, "url")
	}

	return score, fields
}

func anyContains(values []string, q string) bool {
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), q) {
			return true
		}
	}
	return false
}

// sortItems orders results by score descending with deterministic
// tie-breaks: CreatedAt descending, then ID ascending.
func sortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		at, bt := a.Bookmark.CreatedAt, b.Bookmark.CreatedAt
		if !at.Equal(bt) {
			return at.After(bt)
		}
		return a.Bookmark.ID < b.Bookmark.ID
	})
}

package recall

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/yomark/internal/bookmark"
	"github.com/kalambet/yomark/internal/embed"
)

// embedConcurrency bounds parallel candidate embedding so a cold cache
// doesn't overwhelm the embedding backend.
const embedConcurrency = 4

// Cosine returns the cosine similarity of two vectors. A zero-magnitude
// vector or a length mismatch yields 0.0 — a defined edge case, not an
// error, so degenerate vectors simply rank last.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		va, vb := float64(a[i]), float64(b[i])
		dot += va * vb
		na += va * va
		nb += vb * vb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// semanticScores computes cosine similarity between queryVec and each
// candidate's vector, fetching candidate vectors through the (caching)
// provider. A candidate whose embedding fails is left out of the returned
// map — it is excluded from semantic scoring only, not from the result set.
func semanticScores(ctx context.Context, provider embed.Provider, queryVec []float32, candidates []*bookmark.Bookmark) map[string]float64 {
	scores := make(map[string]float64, len(candidates))
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for _, rec := range candidates {
		rec := rec
		g.Go(func() error {
			vec, err := provider.Embed(gCtx, rec.EmbeddingText())
			if err != nil {
				slog.Debug("candidate embedding failed, lexical only for this record",
					"id", rec.ID, "error", err)
				return nil // per-candidate failures never abort the query
			}
			sim := Cosine(queryVec, vec)
			if sim < 0 {
				sim = 0
			}
			mu.Lock()
			scores[rec.ID] = sim
			mu.Unlock()
			return nil
		})
	}

	// Errors are swallowed per candidate above; Wait only flushes the group.
	g.Wait()
	return scores
}

package recall

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/kalambet/yomark/internal/bookmark"
	"github.com/kalambet/yomark/internal/embed"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"both empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosine_ScaleInvariant(t *testing.T) {
	a := []float32{0.3, 0.7, 0.2}
	scaled := []float32{3, 7, 2}
	if got := Cosine(a, scaled); math.Abs(got-1) > 1e-6 {
		t.Errorf("Cosine of scaled vector = %v, want 1", got)
	}
}

// vecProvider serves fixed vectors per text and fails for texts in the fail
// set. It holds no mutable state: Embed runs on concurrent goroutines.
type vecProvider struct {
	vectors map[string][]float32
	fail    map[string]bool
}

func (p *vecProvider) Embed(_ context.Context, text string) ([]float32, error) {
	if p.fail[text] {
		return nil, fmt.Errorf("%w: induced failure", embed.ErrUnavailable)
	}
	if v, ok := p.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func semRecord(id string) *bookmark.Bookmark {
	return &bookmark.Bookmark{
		ID:              id,
		URL:             "https://example.com/" + id,
		Title:           "Record " + id,
		CreatedAt:       time.Now().UTC(),
		StorageLocation: "personal",
	}
}

func TestSemanticScores_SkipsFailedCandidates(t *testing.T) {
	a := semRecord("a")
	b := semRecord("b")

	p := &vecProvider{
		vectors: map[string][]float32{a.EmbeddingText(): {1, 0, 0}},
		fail:    map[string]bool{b.EmbeddingText(): true},
	}

	scores := semanticScores(context.Background(), p, []float32{1, 0, 0}, []*bookmark.Bookmark{a, b})
	if len(scores) != 1 {
		t.Fatalf("scores = %v, want only the successful candidate", scores)
	}
	if math.Abs(scores["a"]-1) > 1e-6 {
		t.Errorf("scores[a] = %v, want 1", scores["a"])
	}
}

func TestSemanticScores_ClampsNegative(t *testing.T) {
	a := semRecord("a")
	p := &vecProvider{
		vectors: map[string][]float32{a.EmbeddingText(): {-1, 0, 0}},
	}

	scores := semanticScores(context.Background(), p, []float32{1, 0, 0}, []*bookmark.Bookmark{a})
	if scores["a"] != 0 {
		t.Errorf("negative similarity should clamp to 0, got %v", scores["a"])
	}
}

package recall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kalambet/yomark/internal/bookmark"
	"github.com/kalambet/yomark/internal/embed"
	"github.com/kalambet/yomark/internal/index"
)

// Caller input errors: rejected immediately, no work performed.
var (
	ErrInvalidQuery = errors.New("query text is empty")
	ErrInvalidScope = errors.New("invalid scope")
)

// Result modes and fallback reasons reported to the caller.
const (
	ModeHybrid  = "hybrid"
	ModeLexical = "lexical"

	FallbackEmbeddingUnavailable = "embedding_unavailable"
	FallbackSemanticDisabled     = "semantic_disabled"
)

// Scopes understood by the coordinator, besides a literal storage name.
const (
	ScopeAll     = "all"
	ScopeCurrent = "current"
)

// Options tunes the coordinator. Weights blend the two scores; limits bound
// result counts. Zero values fall back to defaults.
type Options struct {
	SemanticWeight float64
	LexicalWeight  float64
	DefaultLimit   int
	MaxLimit       int
	EnableSemantic bool
}

const (
	defaultSemanticWeight = 0.55
	defaultLexicalWeight  = 0.45
	defaultLimit          = 20
	defaultMaxLimit       = 50
)

func (o *Options) normalize() {
	if o.SemanticWeight+o.LexicalWeight <= 0 {
		o.SemanticWeight = defaultSemanticWeight
		o.LexicalWeight = defaultLexicalWeight
	}
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = defaultLimit
	}
	if o.MaxLimit <= 0 {
		o.MaxLimit = defaultMaxLimit
	}
}

// Request is one recall query.
type Request struct {
	Text           string `json:"query"`
	Scope          string `json:"scope,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	Folder         string `json:"folder,omitempty"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
}

// Breakdown reports the two component scores behind a combined score.
type Breakdown struct {
	Lexical  float64 `json:"lexical"`
	Semantic float64 `json:"semantic"`
}

// Item is one ranked result.
type Item struct {
	Bookmark      *bookmark.Bookmark `json:"bookmark"`
	Score         float64            `json:"score"`
	Breakdown     Breakdown          `json:"score_breakdown"`
	MatchedFields []string           `json:"matched_fields,omitempty"`
	Snippet       string             `json:"snippet,omitempty"`
	Highlights    []string           `json:"highlights,omitempty"`
}

// Result is the full response for one recall query, including which mode ran
// and why semantic scoring was skipped, if it was.
type Result struct {
	Query            string   `json:"query"`
	Mode             string   `json:"mode"`
	FallbackReason   string   `json:"fallback_reason,omitempty"`
	Results          []Item   `json:"results"`
	TotalReturned    int      `json:"total_returned"`
	SearchedStorages []string `json:"searched_storage_names"`
}

// Coordinator is the public recall entry point. It resolves scope against
// the index, always runs the lexical scorer, attempts semantic scoring when
// enabled, and merges the two into a ranked result. It never mutates
// bookmark records; its only side effect is populating the embedding cache.
type Coordinator struct {
	index    *index.Index
	provider embed.Provider // nil when semantic search is disabled
	opts     Options

	storages []string
	current  string
}

// NewCoordinator wires a Coordinator. storages is the full set of configured
// storage location names; current names the active one (scope "current").
// provider may be nil to disable semantic scoring outright.
func NewCoordinator(ix *index.Index, provider embed.Provider, opts Options, storages []string, current string) *Coordinator {
	opts.normalize()
	return &Coordinator{
		index:    ix,
		provider: provider,
		opts:     opts,
		storages: storages,
		current:  current,
	}
}

// Query runs one recall query. Empty query text fails with ErrInvalidQuery;
// an unrecognized scope fails with ErrInvalidScope. Embedding failure for
// the query text downgrades the whole query to lexical mode with a fallback
// reason — a degraded result is always preferable to no result.
func (c *Coordinator) Query(ctx context.Context, req Request) (*Result, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrInvalidQuery
	}

	storage, searched, err := c.resolveScope(req.Scope)
	if err != nil {
		return nil, err
	}

	candidates := c.index.Query(storage, req.IncludeDeleted, req.Folder)

	mode := ModeLexical
	fallback := ""
	var semScores map[string]float64

	switch {
	case !c.opts.EnableSemantic || c.provider == nil:
		fallback = FallbackSemanticDisabled
	default:
		queryVec, err := c.provider.Embed(ctx, text)
		if err != nil {
			// The one call that must succeed for hybrid mode. Degrade.
			slog.Warn("query embedding unavailable, lexical-only recall", "error", err)
			fallback = FallbackEmbeddingUnavailable
		} else {
			semScores = semanticScores(ctx, c.provider, queryVec, candidates)
			mode = ModeHybrid
		}
	}

	tokens := tokenize(text)
	items := make([]Item, 0, len(candidates))
	for _, rec := range candidates {
		lex, matched := LexicalScore(text, rec)
		normLex := lex / maxLexicalScore

		var combined, sem float64
		if mode == ModeHybrid {
			sem = semScores[rec.ID] // 0 when this candidate's embed failed
			combined = c.opts.SemanticWeight*sem + c.opts.LexicalWeight*normLex
		} else {
			combined = normLex
		}
		if combined <= 0 {
			continue
		}

		snippet, highlights := buildSnippet(rec, tokens)
		items = append(items, Item{
			Bookmark:      rec,
			Score:         combined,
			Breakdown:     Breakdown{Lexical: lex, Semantic: sem},
			MatchedFields: matched,
			Snippet:       snippet,
			Highlights:    highlights,
		})
	}

	sortItems(items)

	limit := req.Limit
	if limit <= 0 {
		limit = c.opts.DefaultLimit
	}
	if limit > c.opts.MaxLimit {
		limit = c.opts.MaxLimit
	}
	if len(items) > limit {
		items = items[:limit]
	}

	return &Result{
		Query:            text,
		Mode:             mode,
		FallbackReason:   fallback,
		Results:          items,
		TotalReturned:    len(items),
		SearchedStorages: searched,
	}, nil
}

// resolveScope maps a request scope to an index storage filter ("" = all)
// plus the list of storage names searched.
func (c *Coordinator) resolveScope(scope string) (storage string, searched []string, err error) {
	switch scope {
	case "", ScopeAll:
		return "", append([]string(nil), c.storages...), nil
	case ScopeCurrent:
		if c.current == "" {
			return "", nil, fmt.Errorf("%w: no current storage configured", ErrInvalidScope)
		}
		return c.current, []string{c.current}, nil
	}
	for _, name := range c.storages {
		if name == scope {
			return name, []string{name}, nil
		}
	}
	return "", nil, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]{2,}`)

// tokenize lowercases text and extracts deduplicated alphanumeric tokens.
// Tokens drive snippets and highlights only; matching itself stays substring.
func tokenize(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

const (
	snippetMaxLen    = 180
	maxHighlights    = 8
	snippetTruncated = "..."
)

// buildSnippet picks the field text containing the most query tokens and
// returns it (capped) along with the matched tokens as highlights.
func buildSnippet(rec *bookmark.Bookmark, tokens []string) (string, []string) {
	candidates := []string{
		rec.Title,
		rec.Description,
		strings.Join(rec.Keywords, ", "),
		rec.URL,
	}

	best := rec.Title
	bestMatches := -1
	var highlights []string
	for _, text := range candidates {
		lowered := strings.ToLower(text)
		var matched []string
		for _, tok := range tokens {
			if strings.Contains(lowered, tok) {
				matched = append(matched, tok)
			}
		}
		if len(matched) > bestMatches {
			bestMatches = len(matched)
			best = text
			highlights = matched
		}
	}

	snippet := strings.TrimSpace(best)
	if len(snippet) > snippetMaxLen {
		cut := snippetMaxLen - len(snippetTruncated)
		// Back up to a rune boundary so multi-byte characters are not split.
		for cut > 0 && !utf8.RuneStart(snippet[cut]) {
			cut--
		}
		snippet = snippet[:cut] + snippetTruncated
	}
	if len(highlights) > maxHighlights {
		highlights = highlights[:maxHighlights]
	}
	return snippet, highlights
}

// Package embed is the capability boundary around the external embedding
// service. It turns text into fixed-length vectors, signals unavailability
// explicitly, and caches vectors by content hash so callers can degrade
// instead of failing.
package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/yomark/internal/ollama"
)

// ErrUnavailable signals that the embedding backend failed or timed out.
// Callers treat it as a cue to degrade to lexical-only recall, never as a
// fatal error.
var ErrUnavailable = errors.New("embedding service unavailable")

// Provider produces an embedding vector for arbitrary text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OllamaProvider embeds text through a local Ollama instance. Each call is a
// single bounded attempt; retry policy belongs to the caller, not here.
type OllamaProvider struct {
	client  *ollama.Client
	model   string
	timeout time.Duration
}

// NewOllamaProvider creates a provider for the given client, model name, and
// per-call timeout.
func NewOllamaProvider(client *ollama.Client, model string, timeout time.Duration) *OllamaProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &OllamaProvider{client: client, model: model, timeout: timeout}
}

// Embed returns the vector for text. Transport errors, bad statuses, and
// timeouts all surface as ErrUnavailable.
func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	vec, err := p.client.Embed(ctx, p.model, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return vec, nil
}

// Model returns the configured model name.
func (p *OllamaProvider) Model() string { return p.model }

// ContentHash returns the cache key for a text: the hex SHA-256 of the exact
// bytes that would be embedded. Any edit to the text yields a new key, which
// is how stale vectors are invalidated.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

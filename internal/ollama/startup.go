package ollama

import (
	"context"
	"fmt"
	"io"
	"time"
)

// EnsureReady checks that Ollama is running and the embedding model is
// available, pulling it automatically with progress output written to w.
// After the model is available it is warmed with a trivial embed call so the
// first real query doesn't pay the cold-load penalty.
// Returns a non-nil error if Ollama is unreachable.
func EnsureReady(ctx context.Context, c *Client, embedModel string, w io.Writer) error {
	if !c.IsRunning(ctx) {
		return fmt.Errorf("Ollama is not running. Start it with: ollama serve")
	}

	if c.HasModel(ctx, embedModel) {
		fmt.Fprintf(w, "model %s: ready\n", embedModel)
	} else {
		fmt.Fprintf(w, "model %s: pulling...\n", embedModel)
		err := c.PullModel(ctx, embedModel, func(p PullProgress) {
			if p.Total > 0 {
				pct := float64(p.Completed) / float64(p.Total) * 100
				fmt.Fprintf(w, "  %s %.0f%%\n", p.Status, pct)
			} else {
				fmt.Fprintf(w, "  %s\n", p.Status)
			}
		})
		if err != nil {
			return fmt.Errorf("pulling model %s: %w", embedModel, err)
		}
		fmt.Fprintf(w, "model %s: ready\n", embedModel)
	}

	warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := c.Embed(warmCtx, embedModel, "ping"); err != nil {
		fmt.Fprintf(w, "model %s: warm-up failed (non-fatal): %v\n", embedModel, err)
	} else {
		fmt.Fprintf(w, "model %s: warm\n", embedModel)
	}

	return nil
}

package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/sandevgo/kaidesk/internal/core"
	"github.com/sandevgo/kaidesk/pkg/log"
	"golang.org/x/sync/errgroup"
)

// DualEncoder embeds queries and passages, which some models prefix differently.
type DualEncoder = core.Embedder

// Embedder bounds every call to the underlying model with a timeout.
type Embedder struct {
	model   DualEncoder
	timeout time.Duration
	workers int
}

func NewEmbedder(model DualEncoder, timeout time.Duration, workers int) *Embedder {
	if workers <= 0 {
		workers = 1
	}
	return &Embedder{
		model:   model,
		timeout: timeout,
		workers: workers,
	}
}

func (e *Embedder) EncodeQuery(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	vec, err := e.model.EncodeQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}
	return vec, nil
}

func (e *Embedder) EncodePassage(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	vec, err := e.model.EncodePassage(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunk: %w", err)
	}
	return vec, nil
}

// withTimeout bounds a model call; a zero timeout leaves ctx as is.
func (e *Embedder) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

// EncodeChunks embeds every chunk with bounded concurrency. The first
// failure cancels the rest; results keep chunk order.
func (e *Embedder) EncodeChunks(ctx context.Context, chunks []Chunk) ([][]float32, error) {
	out := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, c := range chunks {
		g.Go(func() error {
			log.FromCtx(gctx).Debug().Int("chunk", c.Index).Int("chars", len(c.Text)).Msg("embedding chunk")
			vec, err := e.EncodePassage(gctx, c.Text)
			if err != nil {
				return err
			}
			out[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

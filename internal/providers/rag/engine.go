package rag

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/sandevgo/kaidesk/internal/core"
	"github.com/sandevgo/kaidesk/internal/storage/vecindex"
	"github.com/sandevgo/kaidesk/pkg/log"
)

const DefaultTopK = 3

type Options struct {
	Enabled bool
	Chunker ChunkerConfig
	TopK    int
}

// Engine ingests documents into the vector index and answers similarity
// queries over it.
type Engine struct {
	index    *vecindex.Index
	embedder *Embedder
	opts     Options
}

func NewEngine(index *vecindex.Index, embedder *Embedder, opts Options) *Engine {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	return &Engine{index: index, embedder: embedder, opts: opts}
}

func (e *Engine) Enabled() bool {
	return e.opts.Enabled && e.index != nil && e.embedder != nil
}

// Ingest extracts, chunks and embeds a document and appends it under its
// base filename. Either every chunk is added or none.
func (e *Engine) Ingest(ctx context.Context, filename string, data []byte) (int, error) {
	if !e.Enabled() {
		return 0, fmt.Errorf("%w: retrieval is disabled", core.ErrIngestion)
	}
	logger := log.FromCtx(ctx)
	source := filepath.Base(filename)

	text, err := Extract(source, data)
	if err != nil {
		return 0, err
	}

	chunks := ChunkText(text, e.opts.Chunker)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%w: %s is too short to index", core.ErrIngestion, source)
	}

	vectors, err := e.embedder.EncodeChunks(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", core.ErrIngestion, err)
	}

	items := make([]core.KnowledgeChunk, len(chunks))
	for i, c := range chunks {
		items[i] = core.KnowledgeChunk{Text: c.Text, Source: source, Embedding: vectors[i]}
	}
	if err := e.index.Add(items); err != nil {
		return 0, fmt.Errorf("%w: %v", core.ErrIngestion, err)
	}

	logger.Info().Str("source", source).Int("chunks", len(items)).Int("total", e.index.Len()).Msg("document ingested")
	return len(items), nil
}

// Search returns the text of the k nearest chunks; k <= 0 uses the
// configured default. An empty or disabled index yields no results.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]string, error) {
	if !e.Enabled() || e.index.Len() == 0 {
		return nil, nil
	}
	if k <= 0 {
		k = e.opts.TopK
	}

	vec, err := e.embedder.EncodeQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrUpstream, err)
	}

	hits, err := e.index.Search(vec, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Text
	}
	return out, nil
}

// Remove drops every chunk of a source from the index.
func (e *Engine) Remove(ctx context.Context, filename string) (int, error) {
	if e.index == nil {
		return 0, nil
	}
	removed, err := e.index.RemoveSource(filepath.Base(filename))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		log.FromCtx(ctx).Info().Str("source", filename).Int("chunks", removed).Msg("source removed from index")
	}
	return removed, nil
}

type SourceInfo struct {
	Name   string `json:"name"`
	Chunks int    `json:"chunks"`
}

func (e *Engine) Sources() []SourceInfo {
	if e.index == nil {
		return nil
	}
	counts := e.index.Sources()
	out := make([]SourceInfo, 0, len(counts))
	for name, n := range counts {
		out = append(out, SourceInfo{Name: name, Chunks: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

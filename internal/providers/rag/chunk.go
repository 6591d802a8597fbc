package rag

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	tk     *tiktoken.Tiktoken
	tkOnce sync.Once
)

type Chunk struct {
	Text  string
	Index int
}

// ChunkerConfig sizes are in characters (runes).
type ChunkerConfig struct {
	Size    int
	Overlap int
	// Min drops windows whose length does not exceed it.
	Min int
}

func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		Size:    500,
		Overlap: 50,
		Min:     50,
	}
}

// ChunkText cuts text into fixed windows advancing by Size-Overlap.
// Short windows, typically the tail, are dropped.
func ChunkText(text string, cfg ChunkerConfig) []Chunk {
	if strings.TrimSpace(text) == "" || cfg.Size <= 0 {
		return nil
	}

	step := cfg.Size - cfg.Overlap
	if step <= 0 {
		step = cfg.Size
	}

	runes := []rune(text)
	var chunks []Chunk
	for start := 0; start < len(runes); start += step {
		end := min(start+cfg.Size, len(runes))
		if end-start <= cfg.Min {
			continue
		}
		chunks = append(chunks, Chunk{
			Text:  string(runes[start:end]),
			Index: len(chunks),
		})
	}
	return chunks
}

func getTokenizer() *tiktoken.Tiktoken {
	tkOnce.Do(func() {
		var err error
		tk, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			panic("failed to load tiktoken: " + err.Error())
		}
	})
	return tk
}

func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(getTokenizer().Encode(text, nil, nil))
}

// TrimToTokens cuts text to at most budget tokens.
func TrimToTokens(text string, budget int) string {
	if budget <= 0 || text == "" {
		return text
	}
	enc := getTokenizer()
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= budget {
		return text
	}
	return enc.Decode(tokens[:budget])
}

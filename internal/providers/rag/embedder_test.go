package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockDualEncoder is a test double for the DualEncoder interface
type mockDualEncoder struct {
	encodeQueryFunc   func(ctx context.Context, text string) ([]float32, error)
	encodePassageFunc func(ctx context.Context, text string) ([]float32, error)

	mu           sync.Mutex
	queryCalls   []string
	passageCalls []string
}

func (m *mockDualEncoder) EncodeQuery(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.queryCalls = append(m.queryCalls, text)
	m.mu.Unlock()
	if m.encodeQueryFunc != nil {
		return m.encodeQueryFunc(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockDualEncoder) EncodePassage(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.passageCalls = append(m.passageCalls, text)
	m.mu.Unlock()
	if m.encodePassageFunc != nil {
		return m.encodePassageFunc(ctx, text)
	}
	return []float32{0.4, 0.5, 0.6}, nil
}

func TestEmbedder_EncodeQuery(t *testing.T) {
	tests := []struct {
		name        string
		timeout     time.Duration
		mockSetup   func(*mockDualEncoder)
		want        []float32
		errContains string
	}{
		{
			name:    "successfully encodes query",
			timeout: 5 * time.Second,
			want:    []float32{0.1, 0.2, 0.3},
		},
		{
			name:    "returns error on model failure",
			timeout: 5 * time.Second,
			mockSetup: func(m *mockDualEncoder) {
				m.encodeQueryFunc = func(ctx context.Context, text string) ([]float32, error) {
					return nil, errors.New("model connection failed")
				}
			},
			errContains: "failed to encode query",
		},
		{
			name:    "respects timeout",
			timeout: 10 * time.Millisecond,
			mockSetup: func(m *mockDualEncoder) {
				m.encodeQueryFunc = func(ctx context.Context, text string) ([]float32, error) {
					<-ctx.Done()
					return nil, ctx.Err()
				}
			},
			errContains: "context deadline exceeded",
		},
		{
			name:    "zero timeout means no deadline",
			timeout: 0,
			mockSetup: func(m *mockDualEncoder) {
				m.encodeQueryFunc = func(ctx context.Context, text string) ([]float32, error) {
					if _, ok := ctx.Deadline(); ok {
						return nil, errors.New("unexpected deadline")
					}
					if err := ctx.Err(); err != nil {
						return nil, err
					}
					return []float32{0.1, 0.2, 0.3}, nil
				}
			},
			want: []float32{0.1, 0.2, 0.3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockDualEncoder{}
			if tt.mockSetup != nil {
				tt.mockSetup(mock)
			}
			e := NewEmbedder(mock, tt.timeout, 1)

			got, err := e.EncodeQuery(context.Background(), "when does the library open")
			if tt.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("expected error containing %q, got %v", tt.errContains, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
			if len(mock.queryCalls) != 1 || len(mock.passageCalls) != 0 {
				t.Errorf("expected one query call, got %d query / %d passage", len(mock.queryCalls), len(mock.passageCalls))
			}
		})
	}
}

func TestEmbedder_ZeroTimeoutPassage(t *testing.T) {
	mock := &mockDualEncoder{
		encodePassageFunc: func(ctx context.Context, text string) ([]float32, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return []float32{1}, nil
		},
	}
	e := NewEmbedder(mock, 0, 2)

	got, err := e.EncodeChunks(context.Background(), []Chunk{{Text: "a"}, {Text: "b"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(got))
	}
}

func TestEmbedder_EncodeChunks(t *testing.T) {
	mock := &mockDualEncoder{
		encodePassageFunc: func(ctx context.Context, text string) ([]float32, error) {
			return []float32{float32(len(text))}, nil
		},
	}
	e := NewEmbedder(mock, time.Second, 3)

	chunks := []Chunk{{Text: "a", Index: 0}, {Text: "bb", Index: 1}, {Text: "ccc", Index: 2}, {Text: "dddd", Index: 3}}
	got, err := e.EncodeChunks(context.Background(), chunks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, vec := range got {
		if vec[0] != float32(i+1) {
			t.Errorf("vector %d = %v, results must keep chunk order", i, vec)
		}
	}
	if len(mock.passageCalls) != 4 {
		t.Errorf("expected 4 passage calls, got %d", len(mock.passageCalls))
	}
}

func TestEmbedder_EncodeChunksFailure(t *testing.T) {
	mock := &mockDualEncoder{
		encodePassageFunc: func(ctx context.Context, text string) ([]float32, error) {
			if text == "bad" {
				return nil, errors.New("model overloaded")
			}
			return []float32{1}, nil
		},
	}
	e := NewEmbedder(mock, time.Second, 2)

	_, err := e.EncodeChunks(context.Background(), []Chunk{{Text: "ok"}, {Text: "bad"}, {Text: "ok"}})
	if err == nil || !strings.Contains(err.Error(), "failed to embed chunk") {
		t.Fatalf("expected embed failure, got %v", err)
	}
}

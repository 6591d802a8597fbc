package core

import "context"

// ChatProvider is a raw chat completion backend.
type ChatProvider interface {
	Chat(ctx context.Context, history []Message) (Message, error)
}

// Reasoner is the single capability every reasoning backend exposes.
// Decide is the context-free probe, Answer is the context-bearing call.
type Reasoner interface {
	Decide(ctx context.Context, p Prompt) (Decision, error)
	Answer(ctx context.Context, p Prompt) (Decision, error)
}

type Embedder interface {
	EncodeQuery(ctx context.Context, text string) ([]float32, error)
	EncodePassage(ctx context.Context, text string) ([]float32, error)
}

package command

import (
	"context"
	"time"

	"github.com/sandevgo/kaidesk/internal/core"
	"github.com/sandevgo/kaidesk/pkg/log"
)

const sessionPrefix = "chat_session:"

type TokenValidator interface {
	Validate(token string) (core.Session, error)
}

// SessionBook remembers the session token issued to each chat.
type SessionBook struct {
	store core.StateStore
	auth  TokenValidator
	ttl   time.Duration
}

func NewSessionBook(store core.StateStore, auth TokenValidator, ttl time.Duration) *SessionBook {
	return &SessionBook{store: store, auth: auth, ttl: ttl}
}

func (b *SessionBook) Save(ctx context.Context, chatID, token string) error {
	return b.store.Set(ctx, sessionPrefix+chatID, []byte(token), b.ttl)
}

// Session returns the live session of a chat, or nil. Expired or invalid
// tokens are forgotten.
func (b *SessionBook) Session(ctx context.Context, chatID string) *core.Session {
	raw, ok, err := b.store.Get(ctx, sessionPrefix+chatID)
	if err != nil {
		log.FromCtx(ctx).Warn().Err(err).Msg("failed to load chat session")
		return nil
	}
	if !ok {
		return nil
	}

	s, err := b.auth.Validate(string(raw))
	if err != nil {
		_ = b.Forget(ctx, chatID)
		return nil
	}
	return &s
}

func (b *SessionBook) Forget(ctx context.Context, chatID string) error {
	return b.store.Delete(ctx, sessionPrefix+chatID)
}

package command

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/kaidesk/internal/core"
	"github.com/sandevgo/kaidesk/internal/storage/state"
)

type fakeIdentity struct {
	tokens  map[string]core.Session
	stepUps map[string]bool
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{tokens: map[string]core.Session{}, stepUps: map[string]bool{}}
}

func (f *fakeIdentity) Issue(_ context.Context, id, name string) (core.Session, string, error) {
	if id != "S1" || name != "Ann Lee" {
		return core.Session{}, "", core.ErrAuth
	}
	s := core.Session{SubjectID: id, Name: name, Role: core.RoleSubject}
	f.tokens["tok-"+id] = s
	return s, "tok-" + id, nil
}

func (f *fakeIdentity) Validate(token string) (core.Session, error) {
	s, ok := f.tokens[token]
	if !ok {
		return core.Session{}, core.ErrAuth
	}
	return s, nil
}

func (f *fakeIdentity) GrantStepUp(_ context.Context, id, secret string) error {
	if secret != "1234" {
		return core.ErrAuth
	}
	f.stepUps[id] = true
	return nil
}

func (f *fakeIdentity) HasStepUp(_ context.Context, id string) bool {
	return f.stepUps[id]
}

type fakeResetter struct {
	keys []string
}

func (f *fakeResetter) Reset(_ context.Context, key string) error {
	f.keys = append(f.keys, key)
	return nil
}

func newTestRouter(t *testing.T) (*Router, *fakeIdentity, *fakeResetter, *SessionBook) {
	t.Helper()
	store, err := state.NewMemory(time.Hour, 100)
	require.NoError(t, err)

	id := newFakeIdentity()
	book := NewSessionBook(store, id, time.Hour)
	reset := &fakeResetter{}
	return New(NewCommands(id, book, reset)), id, reset, book
}

func TestRouter_NotACommand(t *testing.T) {
	r, _, _, _ := newTestRouter(t)

	_, handled := r.Execute(context.Background(), "42", "hello there")
	assert.False(t, handled)
}

func TestRouter_UnknownAndHelp(t *testing.T) {
	r, _, _, _ := newTestRouter(t)

	out, handled := r.Execute(context.Background(), "42", "/nope")
	assert.True(t, handled)
	assert.Equal(t, "Unknown command: /nope", out)

	out, _ = r.Execute(context.Background(), "42", "/help")
	for _, name := range []string{"/login", "/logout", "/reset", "/verify", "/whoami"} {
		assert.Contains(t, out, name)
	}
	assert.Less(t, strings.Index(out, "/login"), strings.Index(out, "/whoami"))
}

func TestLoginVerifyFlow(t *testing.T) {
	r, id, _, book := newTestRouter(t)
	ctx := context.Background()

	out, _ := r.Execute(ctx, "42", "/verify 1234")
	assert.Contains(t, out, errLoginRequired.Error())

	out, _ = r.Execute(ctx, "42", "/login S1 Bob")
	assert.Contains(t, out, "invalid credentials")
	assert.Nil(t, book.Session(ctx, "42"))

	out, _ = r.Execute(ctx, "42", "/login S1 Ann Lee")
	assert.Contains(t, out, "Welcome, Ann Lee!")
	require.NotNil(t, book.Session(ctx, "42"))
	assert.Nil(t, book.Session(ctx, "43"))

	out, _ = r.Execute(ctx, "42", "/whoami")
	assert.Contains(t, out, "`S1`")
	assert.Contains(t, out, "`locked`")

	out, _ = r.Execute(ctx, "42", "/verify 0000")
	assert.Contains(t, out, "invalid secret")
	assert.False(t, id.stepUps["S1"])

	out, _ = r.Execute(ctx, "42", "/verify@kai_bot 1234")
	assert.Contains(t, out, "Verified")

	out, _ = r.Execute(ctx, "42", "/whoami")
	assert.Contains(t, out, "`unlocked`")

	_, _ = r.Execute(ctx, "42", "/logout")
	assert.Nil(t, book.Session(ctx, "42"))
}

func TestLogin_Usage(t *testing.T) {
	r, _, _, _ := newTestRouter(t)

	out, _ := r.Execute(context.Background(), "42", "/login S1")
	assert.Contains(t, out, "/login <identifier> <full name>")
}

func TestReset(t *testing.T) {
	r, _, reset, _ := newTestRouter(t)
	ctx := context.Background()

	_, _ = r.Execute(ctx, "42", "/reset")
	_, _ = r.Execute(ctx, "42", "/login S1 Ann Lee")
	_, _ = r.Execute(ctx, "42", "/reset")

	assert.Equal(t, []string{"guest:chat-42", "user:S1"}, reset.keys)
}

func TestSessionBook_ForgetsInvalidToken(t *testing.T) {
	store, err := state.NewMemory(time.Hour, 10)
	require.NoError(t, err)
	book := NewSessionBook(store, newFakeIdentity(), time.Hour)
	ctx := context.Background()

	require.NoError(t, book.Save(ctx, "42", "stale"))
	assert.Nil(t, book.Session(ctx, "42"))

	_, ok, err := store.Get(ctx, sessionPrefix+"42")
	require.NoError(t, err)
	assert.False(t, ok)
}

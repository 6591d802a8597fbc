package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sandevgo/kaidesk/internal/core"
	"github.com/sandevgo/kaidesk/internal/service/memory"
)

var errLoginRequired = errors.New("please /login first")

type Identity interface {
	Issue(ctx context.Context, subjectID, name string) (core.Session, string, error)
	GrantStepUp(ctx context.Context, subjectID, secret string) error
	HasStepUp(ctx context.Context, subjectID string) bool
}

type Resetter interface {
	Reset(ctx context.Context, key string) error
}

// ConversationID is the anonymous conversation id used for a chat.
func ConversationID(chatID string) string {
	return "chat-" + chatID
}

func NewCommands(identity Identity, book *SessionBook, mem Resetter) []Command {
	return []Command{
		&LoginCommand{identity: identity, book: book, formatter: NewResponseFormatter()},
		&LogoutCommand{book: book, formatter: NewResponseFormatter()},
		&VerifyCommand{identity: identity, book: book, formatter: NewResponseFormatter()},
		&ResetCommand{book: book, memory: mem, formatter: NewResponseFormatter()},
		&WhoamiCommand{identity: identity, book: book, formatter: NewResponseFormatter()},
	}
}

type LoginCommand struct {
	identity  Identity
	book      *SessionBook
	formatter *ResponseFormatter
}

func (c *LoginCommand) Name() string        { return "login" }
func (c *LoginCommand) Description() string { return "Sign in with your identifier and name" }

func (c *LoginCommand) Execute(ctx context.Context, chatID string, args []string) (string, error) {
	if len(args) < 2 {
		return c.formatter.Combine(
			c.formatter.Usage("/login <identifier> <full name>"),
			c.formatter.Examples([]string{"/login S1 Ann Lee"}),
		), nil
	}

	session, token, err := c.identity.Issue(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		if errors.Is(err, core.ErrAuth) {
			return "", errors.New("invalid credentials")
		}
		return "", fmt.Errorf("login unavailable: %w", err)
	}
	if err := c.book.Save(ctx, chatID, token); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}

	return c.formatter.Success(fmt.Sprintf("Welcome, %s!", session.Name)), nil
}

type LogoutCommand struct {
	book      *SessionBook
	formatter *ResponseFormatter
}

func (c *LogoutCommand) Name() string        { return "logout" }
func (c *LogoutCommand) Description() string { return "Sign out of this chat" }

func (c *LogoutCommand) Execute(ctx context.Context, chatID string, _ []string) (string, error) {
	if err := c.book.Forget(ctx, chatID); err != nil {
		return "", err
	}
	return c.formatter.Success("Signed out"), nil
}

type VerifyCommand struct {
	identity  Identity
	book      *SessionBook
	formatter *ResponseFormatter
}

func (c *VerifyCommand) Name() string        { return "verify" }
func (c *VerifyCommand) Description() string { return "Unlock results and grades with your secret" }

func (c *VerifyCommand) Execute(ctx context.Context, chatID string, args []string) (string, error) {
	session := c.book.Session(ctx, chatID)
	if session == nil {
		return "", errLoginRequired
	}
	if len(args) != 1 {
		return c.formatter.Usage("/verify <secret>"), nil
	}

	if err := c.identity.GrantStepUp(ctx, session.SubjectID, args[0]); err != nil {
		if errors.Is(err, core.ErrAuth) {
			return "", errors.New("invalid secret")
		}
		return "", fmt.Errorf("verification unavailable: %w", err)
	}
	return c.formatter.Success("Verified. Sensitive information is unlocked for a limited time."), nil
}

type ResetCommand struct {
	book      *SessionBook
	memory    Resetter
	formatter *ResponseFormatter
}

func (c *ResetCommand) Name() string        { return "reset" }
func (c *ResetCommand) Description() string { return "Forget this conversation" }

func (c *ResetCommand) Execute(ctx context.Context, chatID string, _ []string) (string, error) {
	key, _, _ := memory.ResolveKey(c.book.Session(ctx, chatID), ConversationID(chatID))
	if err := c.memory.Reset(ctx, key); err != nil {
		return "", fmt.Errorf("failed to reset conversation: %w", err)
	}
	return c.formatter.Success("Conversation cleared"), nil
}

type WhoamiCommand struct {
	identity  Identity
	book      *SessionBook
	formatter *ResponseFormatter
}

func (c *WhoamiCommand) Name() string        { return "whoami" }
func (c *WhoamiCommand) Description() string { return "Show the signed in member" }

func (c *WhoamiCommand) Execute(ctx context.Context, chatID string, _ []string) (string, error) {
	session := c.book.Session(ctx, chatID)
	if session == nil {
		return c.formatter.Combine(
			c.formatter.Info("Guest"),
			c.formatter.Tip("Use /login to access personal information."),
		), nil
	}

	stepUp := "locked"
	if c.identity.HasStepUp(ctx, session.SubjectID) {
		stepUp = "unlocked"
	}
	return c.formatter.Combine(
		c.formatter.Info("Signed In"),
		c.formatter.Label("Name", session.Name),
		c.formatter.Label("Identifier", session.SubjectID),
		c.formatter.Label("Sensitive data", stepUp),
	), nil
}

package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sandevgo/kaidesk/internal/config"
	"github.com/sandevgo/kaidesk/internal/core"
	"github.com/sandevgo/kaidesk/internal/service/command"
	"github.com/sandevgo/kaidesk/internal/service/orchestrator"
	"github.com/sandevgo/kaidesk/pkg/log"
	tele "gopkg.in/telebot.v3"
)

const baseContextKey = "base_context"

type Chatter interface {
	Handle(ctx context.Context, req orchestrator.Request) (orchestrator.Response, error)
}

type Bot struct {
	bot      *tele.Bot
	chat     Chatter
	commands *command.Router
	sessions *command.SessionBook
	sender   *sender
}

func NewBot(
	ctx context.Context,
	cfg *config.TelegramConfig,
	chat Chatter,
	commands *command.Router,
	sessions *command.SessionBook,
) (*Bot, error) {
	pref := tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	bot := &Bot{
		bot:      b,
		chat:     chat,
		commands: commands,
		sessions: sessions,
		sender:   newSender(b),
	}

	// Use context from Signal with logger
	b.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			logger := log.FromCtx(ctx).With().Int64("chat", c.Chat().ID).Logger()
			c.Set(baseContextKey, logger.WithContext(ctx))
			return next(c)
		}
	})

	b.Handle(tele.OnText, bot.handleMessage)

	return bot, nil
}

func (b *Bot) Start(ctx context.Context) error {
	log.FromCtx(ctx).Info().Msg("starting telegram bot")
	b.bot.Start()
	return nil
}

func (b *Bot) Shutdown(ctx context.Context) error {
	b.bot.Stop()
	return nil
}

func (b *Bot) handleMessage(c tele.Context) error {
	ctx := c.Get(baseContextKey).(context.Context)
	logger := log.FromCtx(ctx)
	chatID := strconv.FormatInt(c.Chat().ID, 10)

	if reply, ok := b.commands.Execute(ctx, chatID, c.Text()); ok {
		return b.sender.sendMarkdown(ctx, c.Chat(), reply, nil)
	}

	_ = c.Notify(tele.Typing)

	resp, err := b.chat.Handle(ctx, orchestrator.Request{
		Message:        c.Text(),
		ConversationID: command.ConversationID(chatID),
		Session:        b.sessions.Session(ctx, chatID),
	})
	if err != nil {
		logger.Warn().Err(err).Msg("chat turn rejected")
		return nil
	}

	text := resp.Text
	switch resp.Type {
	case core.ResponseLoginHint:
		text += "\n\nUse `/login <identifier> <full name>`."
	case core.ResponsePasswordPrompt:
		text += "\n\nUse `/verify <secret>`."
	}

	return b.sender.sendMarkdown(ctx, c.Chat(), text, suggestionKeyboard(resp.Suggestions))
}

// suggestionKeyboard offers follow-up questions as one-time reply buttons.
func suggestionKeyboard(suggestions []string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
	if len(suggestions) == 0 {
		markup.RemoveKeyboard = true
		return markup
	}

	rows := make([]tele.Row, 0, len(suggestions))
	for _, s := range suggestions {
		rows = append(rows, markup.Row(markup.Text(s)))
	}
	markup.Reply(rows...)
	return markup
}

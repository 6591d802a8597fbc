package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sandevgo/kaidesk/internal/core"
	"github.com/sandevgo/kaidesk/pkg/log"
)

type ReasonerOptions struct {
	Persona      string
	Organization string
	HistoryTurns int
	Timeout      time.Duration
}

// Reasoner turns a chat provider into the two-phase probe/answer capability.
type Reasoner struct {
	provider core.ChatProvider
	opts     ReasonerOptions
}

func NewReasoner(provider core.ChatProvider, opts ReasonerOptions) *Reasoner {
	if opts.Persona == "" {
		opts.Persona = core.KaiName
	}
	if opts.Organization == "" {
		opts.Organization = "the university"
	}
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = 6
	}
	return &Reasoner{provider: provider, opts: opts}
}

// Decide asks whether the message can be answered without private data.
func (r *Reasoner) Decide(ctx context.Context, p core.Prompt) (core.Decision, error) {
	system := fmt.Sprintf(decidePrompt, r.opts.Persona, r.opts.Organization, renderHistory(p.History, r.opts.HistoryTurns))
	return r.call(ctx, "decide", system, p.Message)
}

// Answer produces the final reply from the resolved context.
func (r *Reasoner) Answer(ctx context.Context, p core.Prompt) (core.Decision, error) {
	system := fmt.Sprintf(answerPrompt, r.opts.Persona, r.opts.Organization, renderHistory(p.History, r.opts.HistoryTurns), p.Context)
	d, err := r.call(ctx, "answer", system, p.Message)
	if err != nil {
		return core.Decision{}, err
	}
	d.NeedsContext = false
	d.SearchTerm = ""
	return d, nil
}

func (r *Reasoner) call(ctx context.Context, phase, system, message string) (core.Decision, error) {
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := r.provider.Chat(ctx, []core.Message{
		{Role: core.RoleSystem, Content: system},
		{Role: core.RoleUser, Content: message},
	})
	if err != nil {
		return core.Decision{}, fmt.Errorf("%w: %s call: %v", core.ErrUpstream, phase, err)
	}

	log.FromCtx(ctx).Debug().
		Str("phase", phase).
		Dur("took", time.Since(start)).
		Int("chars", len(reply.Content)).
		Msg("reasoning call finished")

	return parseDecision(reply.Content), nil
}

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sandevgo/kaidesk/internal/core"
	"github.com/sandevgo/kaidesk/internal/providers/rag"
	"github.com/sandevgo/kaidesk/internal/service/memory"
	"github.com/sandevgo/kaidesk/pkg/log"
)

const (
	LoginHint      = "🔒 Please login to access personal information."
	PasswordPrompt = "🔒 Security Check: Please enter your secret to view examination results."

	apologyUpstream = "I'm having trouble connecting right now."
	apologyLookup   = "I encountered an error looking up that information."
	fallbackAnswer  = "I couldn't find that info."

	noRecordContext = "Subject record not found."
	noDataContext   = "No specific data found."

	statsHeader     = "STATISTICS:\n"
	knowledgeHeader = "KNOWLEDGE BASE:\n"

	guestName = "Guest"
)

type Memory interface {
	Append(ctx context.Context, key, role, content string) error
	Recent(ctx context.Context, key string) ([]core.Turn, error)
}

type StepUpChecker interface {
	HasStepUp(ctx context.Context, subjectID string) bool
}

type Records interface {
	Lookup(ctx context.Context, subjectID string) (core.Record, bool, error)
	Stats(ctx context.Context, breakdownColumns []string) (core.Stats, error)
}

type Disclosure interface {
	Filter(rec core.Record, tier core.Tier) core.ContextBundle
	Column(canonical string) (string, bool)
}

type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]string, error)
}

type IssueLog interface {
	LogIssue(ctx context.Context, issue core.Issue) error
}

type Request struct {
	Message        string
	ConversationID string
	Session        *core.Session
}

type Response struct {
	Text           string            `json:"response"`
	Suggestions    []string          `json:"suggestions"`
	ConversationID string            `json:"conversation_id"`
	Type           core.ResponseType `json:"type"`
	User           string            `json:"user"`
}

type Options struct {
	// StatsBreakdown lists canonical fields aggregated for statistics questions.
	StatsBreakdown []string
	TopK           int
	// ContextTokenBudget caps retrieved knowledge text; zero disables trimming.
	ContextTokenBudget int
}

// Orchestrator resolves one chat turn: intent probe, identity gates,
// a single context source and the final answer.
type Orchestrator struct {
	reasoner core.Reasoner
	memory   Memory
	gate     StepUpChecker
	records  Records
	policy   Disclosure
	search   Retriever
	issues   IssueLog
	opts     Options
}

func New(
	reasoner core.Reasoner,
	mem Memory,
	gate StepUpChecker,
	records Records,
	policy Disclosure,
	search Retriever,
	issues IssueLog,
	opts Options,
) *Orchestrator {
	if opts.TopK <= 0 {
		opts.TopK = rag.DefaultTopK
	}
	return &Orchestrator{
		reasoner: reasoner,
		memory:   mem,
		gate:     gate,
		records:  records,
		policy:   policy,
		search:   search,
		issues:   issues,
		opts:     opts,
	}
}

// Handle runs the turn. The only error returned is core.ErrEmptyMessage;
// upstream and lookup failures become apology responses.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (Response, error) {
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return Response{}, core.ErrEmptyMessage
	}

	start := time.Now()
	defer func() { turnDuration.Observe(time.Since(start).Seconds()) }()

	key, convID, _ := memory.ResolveKey(req.Session, req.ConversationID)
	logger := log.FromCtx(ctx).With().Str("conversation", key).Logger()
	ctx = logger.WithContext(ctx)

	t := &turn{
		o:    o,
		key:  key,
		msg:  msg,
		resp: Response{ConversationID: convID, User: guestName, Suggestions: []string{}},
	}
	if req.Session != nil {
		t.session = req.Session
		t.resp.User = req.Session.Name
	}

	history, err := o.memory.Recent(ctx, key)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load conversation history")
	}
	t.history = history

	if err := o.memory.Append(ctx, key, core.RoleUser, msg); err != nil {
		logger.Warn().Err(err).Msg("failed to record user turn")
	}

	return t.run(ctx), nil
}

type turn struct {
	o       *Orchestrator
	key     string
	msg     string
	session *core.Session
	history []core.Turn
	resp    Response
}

func (t *turn) run(ctx context.Context) Response {
	logger := log.FromCtx(ctx)

	decision, err := t.o.reasoner.Decide(ctx, core.Prompt{Message: t.msg, History: t.history})
	observeCall("decide", err)
	if err != nil {
		logger.Error().Err(err).Msg("intent probe failed")
		return t.apology(ctx, apologyUpstream)
	}

	if !decision.NeedsContext {
		return t.answer(ctx, outcomeDirect, decision)
	}

	personal := isPersonal(t.msg)
	stepUp := personal && isSensitive(t.msg)

	if personal && t.session == nil {
		return t.gate(ctx, outcomeLogin, core.ResponseLoginHint, LoginHint)
	}
	if stepUp && !t.o.gate.HasStepUp(ctx, t.session.SubjectID) {
		return t.gate(ctx, outcomePassword, core.ResponsePasswordPrompt, PasswordPrompt)
	}

	tier := core.TierStandard
	if stepUp {
		tier = core.TierSensitive
	}

	bundle, err := t.fetch(ctx, personal, tier, decision.SearchTerm)
	if err != nil {
		logger.Error().Err(err).Msg("context fetch failed")
		return t.apology(ctx, apologyLookup)
	}

	contextText := bundle.Text
	if bundle.Empty() {
		contextText = noDataContext
		t.logIssue(ctx, core.IssueUnanswered)
	}
	contextSources.WithLabelValues(sourceLabel(bundle.Source)).Inc()

	final, err := t.o.reasoner.Answer(ctx, core.Prompt{Message: t.msg, History: t.history, Context: contextText})
	observeCall("answer", err)
	if err != nil {
		logger.Error().Err(err).Msg("final answer failed")
		return t.apology(ctx, apologyUpstream)
	}

	return t.answer(ctx, outcomeAnswer, final)
}

// fetch attempts exactly one of record, statistics or knowledge; knowledge
// is the fallback when the statistics attempt yields nothing.
func (t *turn) fetch(ctx context.Context, personal bool, tier core.Tier, searchTerm string) (core.ContextBundle, error) {
	if personal {
		return t.fetchRecord(ctx, tier)
	}

	if wantsStats(t.msg) {
		bundle, err := t.fetchStats(ctx)
		if err != nil || !bundle.Empty() {
			return bundle, err
		}
	}

	query := strings.TrimSpace(searchTerm)
	if query == "" {
		query = t.msg
	}
	return t.fetchKnowledge(ctx, query)
}

func (t *turn) fetchRecord(ctx context.Context, tier core.Tier) (core.ContextBundle, error) {
	rec, ok, err := t.o.records.Lookup(ctx, t.session.SubjectID)
	if err != nil {
		return core.ContextBundle{}, fmt.Errorf("%w: lookup: %v", core.ErrUpstream, err)
	}
	if !ok {
		t.logIssue(ctx, core.IssueUnanswered)
		return core.ContextBundle{Source: core.SourceRecord, Text: noRecordContext}, nil
	}

	log.FromCtx(ctx).Debug().Stringer("tier", tier).Msg("disclosing subject record")
	return t.o.policy.Filter(rec, tier), nil
}

func (t *turn) fetchStats(ctx context.Context) (core.ContextBundle, error) {
	columns := make([]string, 0, len(t.o.opts.StatsBreakdown))
	canonical := make(map[string]string, len(t.o.opts.StatsBreakdown))
	for _, f := range t.o.opts.StatsBreakdown {
		if col, ok := t.o.policy.Column(f); ok {
			columns = append(columns, col)
			canonical[col] = f
		}
	}

	stats, err := t.o.records.Stats(ctx, columns)
	if err != nil {
		return core.ContextBundle{}, fmt.Errorf("%w: stats: %v", core.ErrUpstream, err)
	}
	if stats.Total == 0 {
		return core.ContextBundle{}, nil
	}

	named := core.Stats{Total: stats.Total, Breakdowns: make(map[string]map[string]int, len(stats.Breakdowns))}
	for col, counts := range stats.Breakdowns {
		named.Breakdowns[canonical[col]] = counts
	}

	data, err := json.MarshalIndent(named, "", "  ")
	if err != nil {
		return core.ContextBundle{}, fmt.Errorf("failed to render stats: %w", err)
	}
	return core.ContextBundle{Source: core.SourceStats, Text: statsHeader + string(data)}, nil
}

func (t *turn) fetchKnowledge(ctx context.Context, query string) (core.ContextBundle, error) {
	docs, err := t.o.search.Search(ctx, query, t.o.opts.TopK)
	if err != nil {
		return core.ContextBundle{}, err
	}
	if len(docs) == 0 {
		return core.ContextBundle{}, nil
	}

	text := rag.TrimToTokens(strings.Join(docs, "\n\n"), t.o.opts.ContextTokenBudget)
	return core.ContextBundle{Source: core.SourceKnowledge, Text: knowledgeHeader + text}, nil
}

func (t *turn) answer(ctx context.Context, outcome string, d core.Decision) Response {
	t.resp.Type = core.ResponseMessage
	t.resp.Text = strings.TrimSpace(d.Text)
	if t.resp.Text == "" {
		t.resp.Text = fallbackAnswer
	}
	if d.Suggestions != nil {
		t.resp.Suggestions = d.Suggestions
	}

	payload, err := json.Marshal(struct {
		Text        string   `json:"text"`
		Suggestions []string `json:"suggestions"`
	}{t.resp.Text, t.resp.Suggestions})
	if err != nil {
		payload = []byte(t.resp.Text)
	}
	t.remember(ctx, string(payload))

	turnsTotal.WithLabelValues(outcome).Inc()
	return t.resp
}

func (t *turn) gate(ctx context.Context, outcome string, kind core.ResponseType, text string) Response {
	t.resp.Type = kind
	t.resp.Text = text
	t.remember(ctx, text)

	log.FromCtx(ctx).Info().Str("gate", string(kind)).Msg("turn stopped at identity gate")
	turnsTotal.WithLabelValues(outcome).Inc()
	return t.resp
}

func (t *turn) apology(ctx context.Context, text string) Response {
	t.resp.Type = core.ResponseMessage
	t.resp.Text = text
	t.remember(ctx, text)

	turnsTotal.WithLabelValues(outcomeApology).Inc()
	return t.resp
}

func (t *turn) remember(ctx context.Context, content string) {
	if err := t.o.memory.Append(ctx, t.key, core.RoleAssistant, content); err != nil {
		log.FromCtx(ctx).Warn().Err(err).Msg("failed to record assistant turn")
	}
}

func (t *turn) logIssue(ctx context.Context, kind core.IssueType) {
	if t.o.issues == nil {
		return
	}
	if err := t.o.issues.LogIssue(ctx, core.Issue{Type: kind, Question: t.msg}); err != nil {
		log.FromCtx(ctx).Warn().Err(err).Msg("failed to log issue")
	}
}

func sourceLabel(s core.ContextSource) string {
	if s == core.SourceNone {
		return "none"
	}
	return string(s)
}


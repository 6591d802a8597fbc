package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/kaidesk/internal/core"
	"github.com/sandevgo/kaidesk/internal/service/policy"
)

type mockReasoner struct {
	DecideFunc func(ctx context.Context, p core.Prompt) (core.Decision, error)
	AnswerFunc func(ctx context.Context, p core.Prompt) (core.Decision, error)
	answered   []core.Prompt
}

func (m *mockReasoner) Decide(ctx context.Context, p core.Prompt) (core.Decision, error) {
	return m.DecideFunc(ctx, p)
}

func (m *mockReasoner) Answer(ctx context.Context, p core.Prompt) (core.Decision, error) {
	m.answered = append(m.answered, p)
	if m.AnswerFunc == nil {
		return core.Decision{Text: "answer", Suggestions: []string{"More"}}, nil
	}
	return m.AnswerFunc(ctx, p)
}

func needsContext(term string) func(context.Context, core.Prompt) (core.Decision, error) {
	return func(context.Context, core.Prompt) (core.Decision, error) {
		return core.Decision{NeedsContext: true, SearchTerm: term}, nil
	}
}

type mockMemory struct {
	turns map[string][]core.Turn
}

func newMockMemory() *mockMemory {
	return &mockMemory{turns: make(map[string][]core.Turn)}
}

func (m *mockMemory) Append(_ context.Context, key, role, content string) error {
	m.turns[key] = append(m.turns[key], core.Turn{Role: role, Content: content})
	return nil
}

func (m *mockMemory) Recent(_ context.Context, key string) ([]core.Turn, error) {
	return append([]core.Turn{}, m.turns[key]...), nil
}

type mockGate struct {
	granted map[string]bool
}

func (m *mockGate) HasStepUp(_ context.Context, subjectID string) bool {
	return m.granted[subjectID]
}

type mockRecords struct {
	LookupFunc  func(ctx context.Context, subjectID string) (core.Record, bool, error)
	StatsFunc   func(ctx context.Context, cols []string) (core.Stats, error)
	lookupCalls int
	statsCalls  int
}

func (m *mockRecords) Lookup(ctx context.Context, subjectID string) (core.Record, bool, error) {
	m.lookupCalls++
	return m.LookupFunc(ctx, subjectID)
}

func (m *mockRecords) Stats(ctx context.Context, cols []string) (core.Stats, error) {
	m.statsCalls++
	return m.StatsFunc(ctx, cols)
}

type mockRetriever struct {
	SearchFunc func(ctx context.Context, query string, k int) ([]string, error)
	queries    []string
}

func (m *mockRetriever) Search(ctx context.Context, query string, k int) ([]string, error) {
	m.queries = append(m.queries, query)
	if m.SearchFunc == nil {
		return nil, nil
	}
	return m.SearchFunc(ctx, query, k)
}

type mockIssues struct {
	logged []core.Issue
}

func (m *mockIssues) LogIssue(_ context.Context, issue core.Issue) error {
	m.logged = append(m.logged, issue)
	return nil
}

var annLee = core.Record{
	"STUDENT_NUMBER": "S1",
	"STUDENT_NAME":   "Ann Lee",
	"CAMPUS":         "Main",
	"CURRENT_GPA":    3.7,
	"PASSPORT_NO":    "X123",
}

type fixture struct {
	orc      *Orchestrator
	reasoner *mockReasoner
	memory   *mockMemory
	gate     *mockGate
	records  *mockRecords
	search   *mockRetriever
	issues   *mockIssues
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	pol, err := policy.New(policy.DefaultFieldPolicy(), nil)
	require.NoError(t, err)

	f := &fixture{
		reasoner: &mockReasoner{DecideFunc: needsContext("")},
		memory:   newMockMemory(),
		gate:     &mockGate{granted: map[string]bool{}},
		records: &mockRecords{
			LookupFunc: func(_ context.Context, id string) (core.Record, bool, error) {
				if id == "S1" {
					return annLee, true, nil
				}
				return nil, false, nil
			},
			StatsFunc: func(context.Context, []string) (core.Stats, error) {
				return core.Stats{}, nil
			},
		},
		search: &mockRetriever{},
		issues: &mockIssues{},
	}
	f.orc = New(f.reasoner, f.memory, f.gate, f.records, pol, f.search, f.issues, Options{
		StatsBreakdown: []string{"gender", "nationality"},
	})
	return f
}

var ann = &core.Session{SubjectID: "S1", Name: "Ann Lee", Role: core.RoleSubject}

func TestHandle_EmptyMessage(t *testing.T) {
	f := newFixture(t)

	_, err := f.orc.Handle(context.Background(), Request{Message: "   "})
	assert.ErrorIs(t, err, core.ErrEmptyMessage)
	assert.Empty(t, f.memory.turns)
}

func TestHandle_DirectAnswer(t *testing.T) {
	f := newFixture(t)
	f.reasoner.DecideFunc = func(context.Context, core.Prompt) (core.Decision, error) {
		return core.Decision{Text: "Hello!", Suggestions: []string{"Fees", "Hostel"}}, nil
	}

	resp, err := f.orc.Handle(context.Background(), Request{Message: "hi", ConversationID: "c1"})
	require.NoError(t, err)

	assert.Equal(t, core.ResponseMessage, resp.Type)
	assert.Equal(t, "Hello!", resp.Text)
	assert.Equal(t, []string{"Fees", "Hostel"}, resp.Suggestions)
	assert.Equal(t, "c1", resp.ConversationID)
	assert.Equal(t, "Guest", resp.User)
	assert.Empty(t, f.reasoner.answered)

	turns := f.memory.turns["guest:c1"]
	require.Len(t, turns, 2)
	assert.Equal(t, core.Turn{Role: core.RoleUser, Content: "hi"}, turns[0])
	assert.JSONEq(t, `{"text":"Hello!","suggestions":["Fees","Hostel"]}`, turns[1].Content)
}

func TestHandle_NewGuestConversation(t *testing.T) {
	f := newFixture(t)
	f.reasoner.DecideFunc = func(context.Context, core.Prompt) (core.Decision, error) {
		return core.Decision{Text: ""}, nil
	}

	resp, err := f.orc.Handle(context.Background(), Request{Message: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ConversationID)
	assert.Equal(t, fallbackAnswer, resp.Text)
	assert.Len(t, f.memory.turns["guest:"+resp.ConversationID], 2)
}

func TestHandle_LoginHintWithoutSession(t *testing.T) {
	messages := []string{"What is my name?", "Show my grades", "Tell me about myself"}

	for _, msg := range messages {
		t.Run(msg, func(t *testing.T) {
			f := newFixture(t)

			resp, err := f.orc.Handle(context.Background(), Request{Message: msg, ConversationID: "c1"})
			require.NoError(t, err)

			assert.Equal(t, core.ResponseLoginHint, resp.Type)
			assert.Equal(t, LoginHint, resp.Text)
			assert.Zero(t, f.records.lookupCalls)
			assert.Zero(t, f.records.statsCalls)
			assert.Empty(t, f.reasoner.answered)

			turns := f.memory.turns["guest:c1"]
			require.Len(t, turns, 2)
			assert.Equal(t, LoginHint, turns[1].Content)
		})
	}
}

func TestHandle_PasswordPromptWithoutGrant(t *testing.T) {
	f := newFixture(t)

	resp, err := f.orc.Handle(context.Background(), Request{Message: "Show my grades", Session: ann})
	require.NoError(t, err)

	assert.Equal(t, core.ResponsePasswordPrompt, resp.Type)
	assert.Equal(t, PasswordPrompt, resp.Text)
	assert.Equal(t, "Ann Lee", resp.User)
	assert.Equal(t, "S1", resp.ConversationID)
	assert.Zero(t, f.records.lookupCalls)
	assert.Len(t, f.memory.turns["user:S1"], 2)
}

func TestHandle_KeywordInsideWordDoesNotRequireStepUp(t *testing.T) {
	f := newFixture(t)

	resp, err := f.orc.Handle(context.Background(), Request{Message: "Show my example timetable", Session: ann})
	require.NoError(t, err)

	assert.Equal(t, core.ResponseMessage, resp.Type)
	require.Len(t, f.reasoner.answered, 1)
	assert.NotContains(t, f.reasoner.answered[0].Context, "current_gpa")
	assert.Equal(t, 1, f.records.lookupCalls)
}

func TestHandle_StandardTierForPersonalQuestion(t *testing.T) {
	f := newFixture(t)

	resp, err := f.orc.Handle(context.Background(), Request{Message: "What is my name?", Session: ann})
	require.NoError(t, err)
	assert.Equal(t, core.ResponseMessage, resp.Type)

	require.Len(t, f.reasoner.answered, 1)
	ctx := f.reasoner.answered[0].Context
	assert.Contains(t, ctx, `"student_name": "Ann Lee"`)
	assert.NotContains(t, ctx, "current_gpa")
	assert.NotContains(t, ctx, "X123")
	assert.Equal(t, 1, f.records.lookupCalls)
}

func TestHandle_SensitiveTierAfterStepUp(t *testing.T) {
	f := newFixture(t)
	f.gate.granted["S1"] = true

	resp, err := f.orc.Handle(context.Background(), Request{Message: "Show my grades", Session: ann})
	require.NoError(t, err)
	assert.Equal(t, core.ResponseMessage, resp.Type)

	require.Len(t, f.reasoner.answered, 1)
	ctx := f.reasoner.answered[0].Context
	assert.Contains(t, ctx, `"current_gpa": 3.7`)
	assert.Contains(t, ctx, `"student_name": "Ann Lee"`)
	assert.NotContains(t, ctx, "X123")
}

func TestHandle_RecordNotFound(t *testing.T) {
	f := newFixture(t)
	ghost := &core.Session{SubjectID: "S9", Name: "Nobody"}

	_, err := f.orc.Handle(context.Background(), Request{Message: "What is my campus?", Session: ghost})
	require.NoError(t, err)

	require.Len(t, f.reasoner.answered, 1)
	assert.Equal(t, noRecordContext, f.reasoner.answered[0].Context)
	require.Len(t, f.issues.logged, 1)
	assert.Equal(t, core.IssueUnanswered, f.issues.logged[0].Type)
	assert.Empty(t, f.search.queries)
}

func TestHandle_Statistics(t *testing.T) {
	f := newFixture(t)
	var gotCols []string
	f.records.StatsFunc = func(_ context.Context, cols []string) (core.Stats, error) {
		gotCols = cols
		return core.Stats{Total: 3, Breakdowns: map[string]map[string]int{"GENDER": {"F": 2, "M": 1}}}, nil
	}

	_, err := f.orc.Handle(context.Background(), Request{Message: "How many students are there?"})
	require.NoError(t, err)

	assert.Equal(t, []string{"GENDER", "NATIONALITY"}, gotCols)
	require.Len(t, f.reasoner.answered, 1)
	ctx := f.reasoner.answered[0].Context
	assert.True(t, strings.HasPrefix(ctx, statsHeader))
	assert.Contains(t, ctx, `"total_subjects": 3`)
	assert.Contains(t, ctx, `"gender"`)
	assert.Empty(t, f.search.queries)
	assert.Zero(t, f.records.lookupCalls)
}

func TestHandle_EmptyStatisticsFallBackToKnowledge(t *testing.T) {
	f := newFixture(t)
	f.search.SearchFunc = func(context.Context, string, int) ([]string, error) {
		return []string{"Enrollment counts are published each semester."}, nil
	}

	_, err := f.orc.Handle(context.Background(), Request{Message: "student count"})
	require.NoError(t, err)

	assert.Equal(t, 1, f.records.statsCalls)
	assert.Equal(t, []string{"student count"}, f.search.queries)
	assert.Contains(t, f.reasoner.answered[0].Context, "Enrollment counts")
}

func TestHandle_KnowledgeUsesSearchTerm(t *testing.T) {
	f := newFixture(t)
	f.reasoner.DecideFunc = needsContext("hostel fees")
	f.search.SearchFunc = func(_ context.Context, _ string, k int) ([]string, error) {
		assert.Equal(t, 3, k)
		return []string{"Hostel fees are RM 500.", "Payment is due monthly."}, nil
	}

	_, err := f.orc.Handle(context.Background(), Request{Message: "What do rooms cost?"})
	require.NoError(t, err)

	assert.Equal(t, []string{"hostel fees"}, f.search.queries)
	assert.Equal(t, knowledgeHeader+"Hostel fees are RM 500.\n\nPayment is due monthly.", f.reasoner.answered[0].Context)
	assert.Empty(t, f.issues.logged)
}

func TestHandle_NoContextLogsIssue(t *testing.T) {
	f := newFixture(t)

	_, err := f.orc.Handle(context.Background(), Request{Message: "Where is the parking?"})
	require.NoError(t, err)

	assert.Equal(t, noDataContext, f.reasoner.answered[0].Context)
	require.Len(t, f.issues.logged, 1)
	assert.Equal(t, "Where is the parking?", f.issues.logged[0].Question)
}

func TestHandle_UpstreamFailures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name  string
		setup func(f *fixture)
		msg   string
		want  string
	}{
		{
			name: "probe fails",
			setup: func(f *fixture) {
				f.reasoner.DecideFunc = func(context.Context, core.Prompt) (core.Decision, error) {
					return core.Decision{}, boom
				}
			},
			msg:  "hi",
			want: apologyUpstream,
		},
		{
			name: "final answer fails",
			setup: func(f *fixture) {
				f.reasoner.AnswerFunc = func(context.Context, core.Prompt) (core.Decision, error) {
					return core.Decision{}, boom
				}
			},
			msg:  "What is my name?",
			want: apologyUpstream,
		},
		{
			name: "record store fails",
			setup: func(f *fixture) {
				f.records.LookupFunc = func(context.Context, string) (core.Record, bool, error) {
					return nil, false, boom
				}
			},
			msg:  "What is my name?",
			want: apologyLookup,
		},
		{
			name: "retrieval fails",
			setup: func(f *fixture) {
				f.search.SearchFunc = func(context.Context, string, int) ([]string, error) {
					return nil, boom
				}
			},
			msg:  "Where is the library?",
			want: apologyLookup,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			resp, err := f.orc.Handle(context.Background(), Request{Message: tt.msg, Session: ann})
			require.NoError(t, err)
			assert.Equal(t, core.ResponseMessage, resp.Type)
			assert.Equal(t, tt.want, resp.Text)

			turns := f.memory.turns["user:S1"]
			require.Len(t, turns, 2)
			assert.Equal(t, tt.msg, turns[0].Content)
		})
	}
}

func TestHandle_HistoryExcludesCurrentMessage(t *testing.T) {
	f := newFixture(t)
	var seen []core.Turn
	f.reasoner.DecideFunc = func(_ context.Context, p core.Prompt) (core.Decision, error) {
		seen = p.History
		return core.Decision{Text: "ok"}, nil
	}

	_, err := f.orc.Handle(context.Background(), Request{Message: "first", ConversationID: "c1"})
	require.NoError(t, err)
	assert.Empty(t, seen)

	_, err = f.orc.Handle(context.Background(), Request{Message: "second", ConversationID: "c1"})
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.Equal(t, "first", seen[0].Content)
}

package core

import "time"

const (
	KaiName      = "Kai"
	KaiUserAgent = "KaiDesk/0.1"
	KaiVersion   = "0.1.0"

	KaiRepositoryURL = "https://github.com/sandevgo/kaidesk"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const RoleSubject = "subject"

// Message is the wire shape exchanged with chat providers.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Turn is a single entry of a conversation log.
type Turn struct {
	Role    string `json:"role" msgpack:"role"`
	Content string `json:"content" msgpack:"content"`
}

// Session is the verified identity carried by a bearer token.
type Session struct {
	SubjectID string    `json:"identifier"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Record is a subject record keyed by source column name.
type Record map[string]any

type Tier int

const (
	TierStandard Tier = iota
	TierSensitive
)

func (t Tier) String() string {
	if t == TierSensitive {
		return "sensitive"
	}
	return "standard"
}

type ContextSource string

const (
	SourceNone      ContextSource = ""
	SourceRecord    ContextSource = "record"
	SourceStats     ContextSource = "stats"
	SourceKnowledge ContextSource = "knowledge"
)

// ContextBundle is the disclosure-filtered payload handed to the final reasoning call.
type ContextBundle struct {
	Source ContextSource
	Text   string
}

func (b ContextBundle) Empty() bool {
	return b.Text == ""
}

// Stats holds aggregate, non-identifying figures about the record store.
type Stats struct {
	Total      int                       `json:"total_subjects"`
	Breakdowns map[string]map[string]int `json:"breakdowns,omitempty"`
}

type KnowledgeChunk struct {
	Text      string
	Source    string
	Embedding []float32
}

// Prompt is what the orchestrator hands to a Reasoner.
type Prompt struct {
	Message string
	History []Turn
	Context string
}

// Decision is the normalized reasoning output.
type Decision struct {
	NeedsContext bool     `json:"needs_context"`
	SearchTerm   string   `json:"search_term,omitempty"`
	Text         string   `json:"text"`
	Suggestions  []string `json:"suggestions"`
}

type ResponseType string

const (
	ResponseMessage        ResponseType = "message"
	ResponseLoginHint      ResponseType = "login_hint"
	ResponsePasswordPrompt ResponseType = "password_prompt"
)

type Rating string

const (
	RatingPositive Rating = "positive"
	RatingNegative Rating = "negative"
)

type Feedback struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Message        string    `json:"message"`
	Response       string    `json:"response"`
	Rating         Rating    `json:"rating"`
	Comment        string    `json:"comment,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type FeedbackStats struct {
	Total            int     `json:"total_feedbacks"`
	Positive         int     `json:"positive"`
	Negative         int     `json:"negative"`
	SatisfactionRate float64 `json:"satisfaction_rate"`
}

type IssueType string

const (
	IssueUnanswered    IssueType = "unanswered"
	IssueLowConfidence IssueType = "low_confidence"
)

// Issue is a question kept for later review.
type Issue struct {
	ID        int64     `json:"id"`
	Type      IssueType `json:"type"`
	Question  string    `json:"question"`
	Response  string    `json:"response,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sandevgo/kaidesk/internal/core"
)

const decidePrompt = `You are %[1]s, an assistant for %[2]s.
Current Conversation:
%[3]s

Instructions:
1. If the user asks about SPECIFIC member data (their own profile, grades, results, or counts and statistics about members), request data access.
   Output: {"needs_context": true, "search_term": "extracted keywords"}
2. If it is a GENERAL question (greetings, information about %[2]s, jokes, your personality), ANSWER IT DIRECTLY.
   Output: {"text": "Your answer here...", "suggestions": ["Follow-up 1", "Follow-up 2", "Follow-up 3"]}
3. STRICT JSON OUTPUT ONLY. No markdown fences.`

const answerPrompt = `You are %[1]s, a smart and energetic assistant for %[2]s.
Answer based on the Context and Conversation History.

Context:
%[4]s

Conversation History:
%[3]s

Instructions:
1. Persona: friendly, energetic, helpful.
2. Format: STRICT JSON OUTPUT ONLY. No markdown fences, just the raw JSON.
3. Structure: {"text": "The answer...", "suggestions": ["Follow-up Q1", "Follow-up Q2", "Follow-up Q3"]}
4. Suggestions: three short follow-up questions the user might ask next.
5. Accuracy: use the Context when present. If the answer is unknown, say so politely.`

// renderHistory keeps the last n turns as "User:" / "Model:" lines.
// Assistant turns stored as {"text": ...} JSON are reduced to their text.
func renderHistory(turns []core.Turn, n int) string {
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}

	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		role := "Model"
		if t.Role == core.RoleUser {
			role = "User"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", role, unwrapText(t.Content)))
	}
	return strings.Join(lines, "\n")
}

func unwrapText(content string) string {
	var payload map[string]any
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return content
	}
	if text, ok := payload["text"].(string); ok {
		return text
	}
	return ""
}

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sandevgo/kaidesk/internal/core"
)

type Gemini struct {
	baseProvider
}

func NewGemini(apiKey, model string) *Gemini {
	return newGeminiWithBaseURL("https://generativelanguage.googleapis.com", apiKey, model)
}

func newGeminiWithBaseURL(baseURL, apiKey, model string) *Gemini {
	return &Gemini{
		baseProvider: newBaseProvider(baseURL, apiKey, strings.TrimPrefix(model, "models/")),
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

func (g *Gemini) Chat(ctx context.Context, history []core.Message) (core.Message, error) {
	var system []geminiPart
	var contents []geminiContent
	for _, m := range history {
		switch m.Role {
		case core.RoleSystem:
			system = append(system, geminiPart{Text: m.Content})
		case core.RoleAssistant:
			contents = append(contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}

	payload := map[string]any{
		"contents": contents,
	}
	if len(system) > 0 {
		payload["systemInstruction"] = geminiContent{Parts: system}
	}

	headers := map[string]string{
		"x-goog-api-key": g.apiKey,
	}
	path := "/v1beta/models/" + url.PathEscape(g.model) + ":generateContent"

	resp, err := g.doRequest(ctx, http.MethodPost, path, payload, headers)
	if err != nil {
		return core.Message{}, err
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	if err != nil {
		return core.Message{}, err
	}

	var result struct {
		Candidates []struct {
			Content geminiContent `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return core.Message{}, fmt.Errorf("decode: %w", err)
	}
	if len(result.Candidates) == 0 {
		return core.Message{}, fmt.Errorf("empty candidates: %s", string(data))
	}

	var text strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	return core.Message{Role: core.RoleAssistant, Content: text.String()}, nil
}

package llm

import (
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/sandevgo/kaidesk/internal/core"
	"github.com/tidwall/gjson"
)

var fallbackSuggestions = []string{"Menu", "Contact"}

// parseDecision reads the outermost JSON object in raw, repairing the
// usual model slips (fences, trailing commas, single quotes). Output
// without an object becomes plain text with fallback suggestions.
func parseDecision(raw string) core.Decision {
	raw = strings.TrimSpace(raw)

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return plainDecision(raw)
	}

	candidate := raw[start : end+1]
	if !gjson.Valid(candidate) {
		repaired, err := jsonrepair.JSONRepair(candidate)
		if err != nil || !gjson.Valid(repaired) {
			return plainDecision(raw)
		}
		candidate = repaired
	}

	obj := gjson.Parse(candidate)
	if !obj.IsObject() {
		return plainDecision(raw)
	}

	d := core.Decision{
		NeedsContext: obj.Get("needs_context").Bool(),
		SearchTerm:   strings.TrimSpace(obj.Get("search_term").String()),
		Text:         obj.Get("text").String(),
		Suggestions:  []string{},
	}
	obj.Get("suggestions").ForEach(func(_, v gjson.Result) bool {
		if s := strings.TrimSpace(v.String()); s != "" {
			d.Suggestions = append(d.Suggestions, s)
		}
		return true
	})
	return d
}

func plainDecision(raw string) core.Decision {
	return core.Decision{
		Text:        raw,
		Suggestions: append([]string(nil), fallbackSuggestions...),
	}
}

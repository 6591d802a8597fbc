package policy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/sandevgo/kaidesk/internal/core"
)

const (
	contextHeader = "SUBJECT DATA:\n"
	noticeKey     = "notice"
	noticeText    = "No eligible subject profile fields available."
)

var (
	ErrUnmappedField = errors.New("mapped column missing from record store")
	ErrOverlap       = errors.New("field listed in both tiers")
)

// FieldPolicy lists canonical field names disclosed per tier. Order is
// preserved in the rendered context.
type FieldPolicy struct {
	Standard  []string
	Sensitive []string
}

func DefaultFieldPolicy() FieldPolicy {
	return FieldPolicy{
		Standard: []string{
			"student_number", "student_id", "student_name", "preferred_name",
			"programme_code", "programme_name", "programme",
			"profile_status", "profile_type", "enrollment_status",
			"semester", "intake", "campus", "faculty",
			"nationality", "gender", "email", "phone", "hostel", "advisor",
			"dob", "date_of_birth",
		},
		Sensitive: []string{
			"current_gpa", "current_cgpa", "grades", "latest_results",
		},
	}
}

// SchemaMapping maps canonical field names to record store columns.
type SchemaMapping map[string]string

type binding struct {
	column   string
	explicit bool
}

type Policy struct {
	fields   FieldPolicy
	bindings map[string]binding
	disabled map[string]bool
}

// New builds a policy. Fields without an override map to their upper-cased
// name; overrides are explicit and must exist in the store (see Resolve).
func New(fields FieldPolicy, overrides SchemaMapping) (*Policy, error) {
	p := &Policy{
		fields:   fields,
		bindings: make(map[string]binding),
		disabled: make(map[string]bool),
	}

	for _, f := range fields.Sensitive {
		if slices.Contains(fields.Standard, f) {
			return nil, fmt.Errorf("%w: %s", ErrOverlap, f)
		}
	}

	for _, f := range p.all() {
		p.bindings[f] = binding{column: strings.ToUpper(f)}
	}
	for canonical, column := range overrides {
		canonical = strings.ToLower(strings.TrimSpace(canonical))
		if _, ok := p.bindings[canonical]; !ok {
			return nil, fmt.Errorf("mapping for unknown field %q", canonical)
		}
		p.bindings[canonical] = binding{column: strings.TrimSpace(column), explicit: true}
	}

	return p, nil
}

// Resolve checks the mapping against the store columns. A missing column
// behind an explicit mapping is an error; fields on the default mapping
// whose column is absent are disabled and returned.
func (p *Policy) Resolve(columns []string) ([]string, error) {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c] = true
	}

	var missing, disabled []string
	for _, f := range p.all() {
		b := p.bindings[f]
		if present[b.column] {
			delete(p.disabled, f)
			continue
		}
		if b.explicit {
			missing = append(missing, fmt.Sprintf("%s=%s", f, b.column))
			continue
		}
		p.disabled[f] = true
		disabled = append(disabled, f)
	}

	if len(missing) > 0 {
		return disabled, fmt.Errorf("%w: %s", ErrUnmappedField, strings.Join(missing, ", "))
	}
	return disabled, nil
}

// Column returns the store column behind a canonical field.
func (p *Policy) Column(canonical string) (string, bool) {
	b, ok := p.bindings[canonical]
	if !ok || p.disabled[canonical] {
		return "", false
	}
	return b.column, true
}

// Allowed lists the canonical fields a tier may see.
func (p *Policy) Allowed(tier core.Tier) []string {
	out := make([]string, 0, len(p.fields.Standard)+len(p.fields.Sensitive))
	out = append(out, p.fields.Standard...)
	if tier == core.TierSensitive {
		out = append(out, p.fields.Sensitive...)
	}
	return out
}

// Filter renders the fields of rec the tier may see. Fields outside the
// allowlist and empty values never appear; a record with nothing left
// yields a single notice entry.
func (p *Policy) Filter(rec core.Record, tier core.Tier) core.ContextBundle {
	var buf bytes.Buffer
	buf.WriteByte('{')

	n := 0
	for _, f := range p.Allowed(tier) {
		col, ok := p.Column(f)
		if !ok {
			continue
		}
		v, ok := rec[col]
		if !ok || empty(v) {
			continue
		}
		if n > 0 {
			buf.WriteByte(',')
		}
		writePair(&buf, f, v)
		n++
	}
	if n == 0 {
		writePair(&buf, noticeKey, noticeText)
	}
	buf.WriteByte('}')

	text := buf.String()
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, buf.Bytes(), "", "  "); err == nil {
		text = pretty.String()
	}

	return core.ContextBundle{
		Source: core.SourceRecord,
		Text:   contextHeader + text,
	}
}

func (p *Policy) all() []string {
	return append(slices.Clone(p.fields.Standard), p.fields.Sensitive...)
}

func writePair(buf *bytes.Buffer, key string, value any) {
	k, _ := json.Marshal(key)
	v, err := json.Marshal(value)
	if err != nil {
		v, _ = json.Marshal(fmt.Sprint(value))
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
}

func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}

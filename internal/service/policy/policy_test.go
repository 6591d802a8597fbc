package policy

import (
	"encoding/json"
	"math/rand"
	"strings"
	"testing"

	"github.com/sandevgo/kaidesk/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, b core.ContextBundle) map[string]any {
	t.Helper()
	require.True(t, strings.HasPrefix(b.Text, "SUBJECT DATA:\n"), b.Text)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(b.Text, "SUBJECT DATA:\n")), &out))
	return out
}

func newDefault(t *testing.T) *Policy {
	t.Helper()
	p, err := New(DefaultFieldPolicy(), nil)
	require.NoError(t, err)
	return p
}

func TestFilter_Tiers(t *testing.T) {
	p := newDefault(t)
	rec := core.Record{
		"STUDENT_NAME": "Ann Lee",
		"EMAIL":        "ann@example.edu",
		"CURRENT_GPA":  3.7,
		"PASSWORD":     "hunter2",
		"HOSTEL":       "",
		"PHONE":        nil,
	}

	tests := []struct {
		name string
		tier core.Tier
		want map[string]any
	}{
		{
			name: "standard",
			tier: core.TierStandard,
			want: map[string]any{"student_name": "Ann Lee", "email": "ann@example.edu"},
		},
		{
			name: "sensitive",
			tier: core.TierSensitive,
			want: map[string]any{"student_name": "Ann Lee", "email": "ann@example.edu", "current_gpa": 3.7},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := p.Filter(rec, tt.tier)
			assert.Equal(t, core.SourceRecord, b.Source)
			assert.Equal(t, tt.want, decode(t, b))
		})
	}
}

func TestFilter_Notice(t *testing.T) {
	p := newDefault(t)

	for _, rec := range []core.Record{nil, {}, {"PASSWORD": "x", "STUDENT_NAME": "  "}} {
		got := decode(t, p.Filter(rec, core.TierSensitive))
		assert.Equal(t, map[string]any{"notice": "No eligible subject profile fields available."}, got)
	}

	// sensitive-only record seen at standard tier
	got := decode(t, p.Filter(core.Record{"GRADES": "A,B"}, core.TierStandard))
	assert.Contains(t, got, "notice")
}

func TestFilter_PolicyOrder(t *testing.T) {
	p := newDefault(t)
	b := p.Filter(core.Record{"GENDER": "F", "STUDENT_NAME": "Ann", "STUDENT_NUMBER": "S1"}, core.TierStandard)

	iNumber := strings.Index(b.Text, "student_number")
	iName := strings.Index(b.Text, "student_name")
	iGender := strings.Index(b.Text, "gender")
	assert.True(t, iNumber < iName && iName < iGender, b.Text)
}

func TestFilter_NeverLeaksOutsideAllowlist(t *testing.T) {
	p := newDefault(t)
	rnd := rand.New(rand.NewSource(7))

	columns := []string{"STUDENT_NAME", "EMAIL", "CURRENT_GPA", "GRADES", "PASSWORD", "SSN", "BANK_ACCOUNT", "notice", "student_name"}
	for i := 0; i < 200; i++ {
		rec := core.Record{}
		for _, c := range columns {
			if rnd.Intn(2) == 0 {
				rec[c] = "value"
			}
		}
		for _, tier := range []core.Tier{core.TierStandard, core.TierSensitive} {
			allowed := map[string]bool{"notice": true}
			for _, f := range p.Allowed(tier) {
				allowed[f] = true
			}
			for key := range decode(t, p.Filter(rec, tier)) {
				assert.True(t, allowed[key], "field %q leaked at %s tier", key, tier)
			}
		}
	}
}

func TestNew_RejectsOverlap(t *testing.T) {
	_, err := New(FieldPolicy{Standard: []string{"name"}, Sensitive: []string{"name"}}, nil)
	assert.ErrorIs(t, err, ErrOverlap)

	_, err = New(DefaultFieldPolicy(), SchemaMapping{"shoe_size": "SHOE"})
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	p, err := New(DefaultFieldPolicy(), SchemaMapping{"student_name": "FULL_NAME"})
	require.NoError(t, err)

	_, err = p.Resolve([]string{"STUDENT_NAME", "EMAIL"})
	assert.ErrorIs(t, err, ErrUnmappedField)

	disabled, err := p.Resolve([]string{"FULL_NAME", "EMAIL"})
	require.NoError(t, err)
	assert.Contains(t, disabled, "gender")
	assert.NotContains(t, disabled, "email")

	col, ok := p.Column("student_name")
	assert.True(t, ok)
	assert.Equal(t, "FULL_NAME", col)
	_, ok = p.Column("gender")
	assert.False(t, ok)

	got := decode(t, p.Filter(core.Record{"FULL_NAME": "Ann", "EMAIL": "a@x", "GENDER": "F"}, core.TierStandard))
	assert.Equal(t, map[string]any{"student_name": "Ann", "email": "a@x"}, got)
}

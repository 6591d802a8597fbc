package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sandevgo/kaidesk/internal/core"
	"github.com/sandevgo/kaidesk/pkg/log"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

const (
	grantPrefix      = "stepup:"
	maxTrackedLimits = 4096
)

// Records is the part of the record store identity needs.
type Records interface {
	Verify(ctx context.Context, subjectID, name string) (bool, error)
	SecretHash(ctx context.Context, subjectID string) (string, bool, error)
}

type Config struct {
	Secret            []byte
	SessionTTL        time.Duration
	StepUpTTL         time.Duration
	AttemptsPerMinute int
}

type Option func(*Manager)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

type claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Manager issues and validates sessions and keeps step-up grants in the
// state store.
type Manager struct {
	records  Records
	grants   core.StateStore
	cfg      Config
	now      func() time.Time
	limiters *lru.Cache[string, *rate.Limiter]
}

func New(records Records, grants core.StateStore, cfg Config, opts ...Option) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.AttemptsPerMinute <= 0 {
		cfg.AttemptsPerMinute = 5
	}

	limiters, err := lru.New[string, *rate.Limiter](maxTrackedLimits)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		records:  records,
		grants:   grants,
		cfg:      cfg,
		now:      time.Now,
		limiters: limiters,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Issue verifies the identifier and display name against the record store
// and returns a signed session token.
func (m *Manager) Issue(ctx context.Context, subjectID, name string) (core.Session, string, error) {
	subjectID = strings.TrimSpace(subjectID)
	name = strings.TrimSpace(name)
	if subjectID == "" || name == "" {
		return core.Session{}, "", core.ErrAuth
	}

	ok, err := m.records.Verify(ctx, subjectID, name)
	if err != nil {
		return core.Session{}, "", fmt.Errorf("failed to verify subject: %w", err)
	}
	if !ok {
		return core.Session{}, "", core.ErrAuth
	}

	now := m.now().Truncate(time.Second)
	session := core.Session{
		SubjectID: subjectID,
		Name:      name,
		Role:      core.RoleSubject,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.cfg.SessionTTL),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Name: session.Name,
		Role: session.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.SubjectID,
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	})

	signed, err := token.SignedString(m.cfg.Secret)
	if err != nil {
		return core.Session{}, "", fmt.Errorf("failed to sign token: %w", err)
	}
	return session, signed, nil
}

// Validate returns ErrAuth for every kind of bad token.
func (m *Manager) Validate(token string) (core.Session, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid || c.Subject == "" {
		return core.Session{}, core.ErrAuth
	}

	session := core.Session{
		SubjectID: c.Subject,
		Name:      c.Name,
		Role:      c.Role,
	}
	if c.IssuedAt != nil {
		session.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		session.ExpiresAt = c.ExpiresAt.Time
	}
	return session, nil
}

// GrantStepUp checks the secret and opens a step-up window, replacing any
// existing one. Failed and throttled attempts leave grants untouched.
func (m *Manager) GrantStepUp(ctx context.Context, subjectID, secret string) error {
	logger := log.FromCtx(ctx)
	now := m.now()

	if !m.limiter(subjectID).AllowN(now, 1) {
		logger.Warn().Str("subject", subjectID).Msg("step-up attempts throttled")
		return core.ErrAuth
	}

	hash, ok, err := m.records.SecretHash(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("failed to load secret: %w", err)
	}
	if !ok || bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) != nil {
		return core.ErrAuth
	}

	expiry := now.Add(m.cfg.StepUpTTL)
	value := strconv.FormatInt(expiry.UnixNano(), 10)
	if err := m.grants.Set(ctx, grantPrefix+subjectID, []byte(value), m.cfg.StepUpTTL); err != nil {
		return fmt.Errorf("failed to store grant: %w", err)
	}
	return nil
}

// HasStepUp reports whether the subject holds a live grant. Expired grants
// are removed.
func (m *Manager) HasStepUp(ctx context.Context, subjectID string) bool {
	logger := log.FromCtx(ctx)

	data, ok, err := m.grants.Get(ctx, grantPrefix+subjectID)
	if err != nil {
		logger.Error().Err(err).Str("subject", subjectID).Msg("failed to read step-up grant")
		return false
	}
	if !ok {
		return false
	}

	nanos, err := strconv.ParseInt(string(data), 10, 64)
	if err == nil && !m.now().After(time.Unix(0, nanos)) {
		return true
	}

	if err := m.grants.Delete(ctx, grantPrefix+subjectID); err != nil {
		logger.Warn().Err(err).Str("subject", subjectID).Msg("failed to evict step-up grant")
	}
	return false
}

func (m *Manager) limiter(subjectID string) *rate.Limiter {
	if l, ok := m.limiters.Get(subjectID); ok {
		return l
	}
	n := m.cfg.AttemptsPerMinute
	l := rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
	if prev, ok, _ := m.limiters.PeekOrAdd(subjectID, l); ok {
		return prev
	}
	return l
}

// HashSecret produces the bcrypt hash stored for a subject's step-up secret.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("secret is empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Package journal records the outcome of every wizard submission so partial
// reconciliations can be inspected after the fact.
package journal

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"onboarding-reconciler/internal/domain"
)

// DefaultListLimit caps ListByEmail when the caller passes no limit.
const DefaultListLimit = 20

// Entry is one recorded submission.
type Entry struct {
	ID        uuid.UUID         `json:"id"`
	Email     string            `json:"email"`
	LeadName  string            `json:"leadName,omitempty"`
	Created   bool              `json:"created"`
	Converted bool              `json:"converted"`
	Degraded  []string          `json:"degraded,omitempty"`
	Report    domain.SyncReport `json:"report"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Store persists journal entries.
type Store interface {
	Append(ctx context.Context, e Entry) (*Entry, error)
	ListByEmail(ctx context.Context, email string, limit int) ([]Entry, error)
}

// prepare fills the generated fields and canonicalizes the email.
func prepare(e Entry) (Entry, error) {
	e.Email = strings.ToLower(strings.TrimSpace(e.Email))
	if e.Email == "" {
		return e, domain.NewValidationError("email", "email is required")
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Report.Businesses == nil {
		e.Report.Businesses = []domain.EntryStatus{}
	}
	return e, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

// Noop discards entries. It is used when no database is configured.
type Noop struct{}

func (Noop) Append(_ context.Context, e Entry) (*Entry, error) {
	e, err := prepare(e)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (Noop) ListByEmail(context.Context, string, int) ([]Entry, error) {
	return []Entry{}, nil
}

// Memory keeps entries in process. Tests and the CLI's dry runs use it.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(_ context.Context, e Entry) (*Entry, error) {
	e, err := prepare(e)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return &e, nil
}

// ListByEmail returns the newest entries first.
func (m *Memory) ListByEmail(_ context.Context, email string, limit int) ([]Entry, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []Entry{}
	for _, e := range m.entries {
		if e.Email == email {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit = clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"onboarding-reconciler/internal/domain"
)

type postgresStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgres returns a Store backed by the submission_journal table.
func NewPostgres(pool *pgxpool.Pool, logger zerolog.Logger) Store {
	return &postgresStore{pool: pool, logger: logger}
}

func (s *postgresStore) Append(ctx context.Context, e Entry) (*Entry, error) {
	e, err := prepare(e)
	if err != nil {
		return nil, err
	}
	report, err := json.Marshal(e.Report)
	if err != nil {
		return nil, fmt.Errorf("encode sync report: %w", err)
	}
	degraded := e.Degraded
	if degraded == nil {
		degraded = []string{}
	}

	const q = `
INSERT INTO submission_journal (id, email, lead_name, created, converted, degraded, report, error, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING created_at`
	if err := s.pool.QueryRow(ctx, q,
		e.ID, e.Email, e.LeadName, e.Created, e.Converted, degraded, report, e.Error, e.CreatedAt,
	).Scan(&e.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert journal entry: %w", err)
	}
	s.logger.Debug().Str("email", e.Email).Str("id", e.ID.String()).Msg("journal entry appended")
	return &e, nil
}

func (s *postgresStore) ListByEmail(ctx context.Context, email string, limit int) ([]Entry, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, domain.NewValidationError("email", "email is required")
	}

	const q = `
SELECT id, email, lead_name, created, converted, degraded, report, error, created_at
FROM submission_journal
WHERE email = $1
ORDER BY created_at DESC
LIMIT $2`
	rows, err := s.pool.Query(ctx, q, email, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var (
			e      Entry
			report []byte
		)
		if err := rows.Scan(&e.ID, &e.Email, &e.LeadName, &e.Created, &e.Converted, &e.Degraded, &report, &e.Error, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(report) > 0 {
			if err := json.Unmarshal(report, &e.Report); err != nil {
				return nil, fmt.Errorf("decode sync report %s: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/lead-engagement/internal/domain"
)

// AuditStore persists open audit events. Events carrying a message_ref
// collapse to one row per (email, message_ref) with the latest observation
// winning; events without one append.
type AuditStore struct{ db *sql.DB }

// NewAuditStore creates a Postgres-backed audit store.
func NewAuditStore(db *sql.DB) *AuditStore { return &AuditStore{db: db} }

func (s *AuditStore) Record(ctx context.Context, evt *domain.OpenAuditEvent) error {
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}

	if evt.MessageRef == "" {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO lead_open_events (id, email, message_ref, observed_at, user_agent, client_ip, is_suspicious, source)
			VALUES ($1, $2, '', $3, $4, $5, $6, $7)
		`, evt.ID, evt.Email, evt.ObservedAt, evt.UserAgent, evt.ClientIP, evt.IsSuspicious, string(evt.Source))
		if err != nil {
			return fmt.Errorf("append audit event: %w", err)
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lead_open_events (id, email, message_ref, observed_at, user_agent, client_ip, is_suspicious, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (email, message_ref) WHERE message_ref <> ''
		DO UPDATE SET observed_at = EXCLUDED.observed_at,
		              user_agent = EXCLUDED.user_agent,
		              client_ip = EXCLUDED.client_ip,
		              is_suspicious = EXCLUDED.is_suspicious,
		              source = EXCLUDED.source
	`, evt.ID, evt.Email, evt.MessageRef, evt.ObservedAt, evt.UserAgent, evt.ClientIP, evt.IsSuspicious, string(evt.Source))
	if err != nil {
		return fmt.Errorf("upsert audit event: %w", err)
	}
	return nil
}

// List returns audit events, newest first, optionally filtered by email.
func (s *AuditStore) List(ctx context.Context, email string) ([]domain.OpenAuditEvent, error) {
	query := `SELECT id, email, message_ref, observed_at, user_agent, client_ip, is_suspicious, source
		FROM lead_open_events`
	var args []any
	if email != "" {
		query += ` WHERE email = $1`
		args = append(args, email)
	}
	query += ` ORDER BY observed_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []domain.OpenAuditEvent
	for rows.Next() {
		var e domain.OpenAuditEvent
		var source string
		if err := rows.Scan(&e.ID, &e.Email, &e.MessageRef, &e.ObservedAt, &e.UserAgent, &e.ClientIP, &e.IsSuspicious, &source); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Source = domain.OpenSource(source)
		out = append(out, e)
	}
	return out, rows.Err()
}

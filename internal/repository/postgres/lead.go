// Package postgres implements the storage boundary of the engagement
// tracker against PostgreSQL: the lead store with its transactional
// read-modify-write cycle, the dedup ledger, and the open audit log.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/lead-engagement/internal/domain"
	"github.com/ignite/lead-engagement/internal/engagement"
)

// ErrNotFound is returned when a lead does not exist.
var ErrNotFound = errors.New("lead not found")

const leadColumns = `email, send_count, open_count, human_open_count, suspicious_open_count,
	click_count, reply_count, last_sent_at, last_open_at, last_click_at, last_reply_at,
	score, segment, created_at, updated_at`

// LeadStore implements engagement.Store against PostgreSQL.
type LeadStore struct{ db *sql.DB }

// NewLeadStore creates a Postgres-backed lead store.
func NewLeadStore(db *sql.DB) *LeadStore { return &LeadStore{db: db} }

// ProcessTx runs fn inside one transaction. The lead row touched by fn is
// locked via SELECT ... FOR UPDATE, so concurrent events for the same email
// serialize at the database instead of losing updates.
func (s *LeadStore) ProcessTx(ctx context.Context, fn func(ops engagement.TxOps) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(&txOps{ctx: ctx, tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type txOps struct {
	ctx context.Context
	tx  *sql.Tx
}

func (o *txOps) InsertDedup(eventID, email string, kind domain.EventKind) (bool, error) {
	res, err := o.tx.ExecContext(o.ctx, `
		INSERT INTO lead_events_dedup (event_id, email, event_kind)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, email, string(kind))
	if err != nil {
		return false, fmt.Errorf("insert dedup: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected: %w", err)
	}
	return n > 0, nil
}

func (o *txOps) GetLeadForUpdate(email string) (*domain.Lead, bool, error) {
	row := o.tx.QueryRowContext(o.ctx,
		`SELECT `+leadColumns+` FROM leads WHERE email = $1 FOR UPDATE`, email)
	lead, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lock lead: %w", err)
	}
	return lead, true, nil
}

func (o *txOps) CreateLead(email string) (*domain.Lead, error) {
	row := o.tx.QueryRowContext(o.ctx, `
		INSERT INTO leads (email, segment)
		VALUES ($1, $2)
		RETURNING `+leadColumns+`
	`, email, string(domain.SegmentZombie))
	lead, err := scanLead(row)
	if err != nil {
		return nil, fmt.Errorf("create lead: %w", err)
	}
	return lead, nil
}

// ApplyLeadUpdate renders the accumulated deltas into a single UPDATE.
// Counters increment in place; timestamps take the greater of the existing
// and incoming values so out-of-order events never move a baseline back.
func (o *txOps) ApplyLeadUpdate(email string, u *engagement.LeadUpdate) error {
	if u.IsZero() {
		return nil
	}

	var (
		sets []string
		args = []any{email}
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	counter := func(col string, delta int) {
		if delta != 0 {
			sets = append(sets, fmt.Sprintf("%s = %s + %s", col, col, arg(delta)))
		}
	}
	counter("send_count", u.SendDelta)
	counter("open_count", u.OpenDelta)
	counter("human_open_count", u.HumanOpenDelta)
	counter("suspicious_open_count", u.SuspiciousDelta)
	counter("click_count", u.ClickDelta)
	counter("reply_count", u.ReplyDelta)
	counter("score", u.ScoreDelta)

	stamp := func(col string, t *time.Time) {
		if t != nil {
			sets = append(sets, fmt.Sprintf("%s = GREATEST(COALESCE(%s, to_timestamp(0)), %s)", col, col, arg(t.UTC())))
		}
	}
	stamp("last_sent_at", u.LastSentAt)
	stamp("last_open_at", u.LastOpenAt)
	stamp("last_click_at", u.LastClickAt)
	stamp("last_reply_at", u.LastReplyAt)

	if u.Segment != nil {
		sets = append(sets, "segment = "+arg(string(*u.Segment)))
	}
	sets = append(sets, "updated_at = NOW()")

	query := "UPDATE leads SET " + strings.Join(sets, ", ") + " WHERE email = $1"
	if _, err := o.tx.ExecContext(o.ctx, query, args...); err != nil {
		return fmt.Errorf("apply lead update: %w", err)
	}
	return nil
}

// Get loads one lead by canonical email.
func (s *LeadStore) Get(ctx context.Context, email string) (*domain.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE email = $1`, email)
	lead, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return lead, nil
}

// List returns the full lead collection ordered by email.
func (s *LeadStore) List(ctx context.Context) ([]domain.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+leadColumns+` FROM leads ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	var out []domain.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		out = append(out, *lead)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (*domain.Lead, error) {
	var l domain.Lead
	var segment string
	err := row.Scan(
		&l.Email, &l.SendCount, &l.OpenCount, &l.HumanOpenCount, &l.SuspiciousOpenCount,
		&l.ClickCount, &l.ReplyCount, &l.LastSentAt, &l.LastOpenAt, &l.LastClickAt, &l.LastReplyAt,
		&l.Score, &segment, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.Segment = domain.Segment(segment)
	return &l, nil
}

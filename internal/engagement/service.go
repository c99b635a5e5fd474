// Package engagement owns the per-lead state machine: it applies normalized
// engagement events to lead records, runs the bot/human classifier on pixel
// opens, and keeps score and segment consistent with the event history.
package engagement

import (
	"context"
	"time"

	"github.com/ignite/lead-engagement/internal/classifier"
	"github.com/ignite/lead-engagement/internal/domain"
	"github.com/ignite/lead-engagement/internal/normalize"
	"github.com/ignite/lead-engagement/internal/pkg/logger"
)

// TxOps exposes the storage operations available inside one transaction.
// The lead row is locked for the duration, so read-modify-write cycles
// cannot race across concurrent events for the same email.
type TxOps interface {
	// InsertDedup records an event id, returning true on first sighting.
	// Must be a single atomic insert-if-absent.
	InsertDedup(eventID, email string, kind domain.EventKind) (bool, error)
	// GetLeadForUpdate loads and locks the lead row. found=false when the
	// lead does not exist yet.
	GetLeadForUpdate(email string) (lead *domain.Lead, found bool, err error)
	// CreateLead inserts a fresh all-zero lead in segment zombie.
	CreateLead(email string) (*domain.Lead, error)
	// ApplyLeadUpdate applies the accumulated deltas as one UPDATE.
	ApplyLeadUpdate(email string, u *LeadUpdate) error
}

// Store is the transactional storage boundary for lead mutations.
type Store interface {
	// ProcessTx runs fn inside one storage transaction; fn's effects are
	// rolled back when it returns an error.
	ProcessTx(ctx context.Context, fn func(ops TxOps) error) error
}

// AuditLog records observed opens. Writes are best-effort: failures are
// logged and swallowed, never surfaced to the primary mutation path.
type AuditLog interface {
	Record(ctx context.Context, evt *domain.OpenAuditEvent) error
}

// SeenCache is an optional fast-path in front of the dedup ledger for hot
// duplicate deliveries. Misses are authoritative only at the ledger.
type SeenCache interface {
	Seen(ctx context.Context, eventID string) bool
	Mark(ctx context.Context, eventID string)
}

// Result reports what one event did to a lead.
type Result struct {
	Lead      *domain.Lead
	Duplicate bool
	Ignored   bool
	Verdict   *classifier.Verdict
	Scored    bool
}

// Service applies engagement events to leads.
type Service struct {
	store      Store
	audit      AuditLog
	seen       SeenCache
	thresholds classifier.Thresholds
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithSeenCache installs the duplicate fast-path cache.
func WithSeenCache(c SeenCache) Option {
	return func(s *Service) { s.seen = c }
}

// WithThresholds overrides the classifier timing gates.
func WithThresholds(t classifier.Thresholds) Option {
	return func(s *Service) { s.thresholds = t }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the engagement service.
func NewService(store Store, audit AuditLog, opts ...Option) *Service {
	s := &Service{
		store:      store,
		audit:      audit,
		thresholds: classifier.DefaultThresholds(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func secondsSince(baseline *time.Time, at time.Time) *float64 {
	if baseline == nil {
		return nil
	}
	secs := at.Sub(*baseline).Seconds()
	return &secs
}

func ensureLead(ops TxOps, email string) (*domain.Lead, error) {
	lead, found, err := ops.GetLeadForUpdate(email)
	if err != nil {
		return nil, err
	}
	if found {
		return lead, nil
	}
	lead, err = ops.CreateLead(email)
	if err != nil {
		return nil, err
	}
	logger.Info("lead created", "email", email)
	return lead, nil
}

// ProcessWebhookEvent applies one normalized webhook event. Duplicates and
// unrecognized event kinds are soft no-ops reported in the Result; primary
// storage failures propagate so the source can retry (the dedup insert
// rolls back with the transaction, keeping retries effective).
func (s *Service) ProcessWebhookEvent(ctx context.Context, evt *domain.EngagementEvent) (*Result, error) {
	if s.seen != nil && s.seen.Seen(ctx, evt.EventID) {
		return &Result{Duplicate: true}, nil
	}

	res := &Result{}
	var auditEvt *domain.OpenAuditEvent

	err := s.store.ProcessTx(ctx, func(ops TxOps) error {
		inserted, err := ops.InsertDedup(evt.EventID, evt.Email, evt.Kind)
		if err != nil {
			return err
		}
		if !inserted {
			res.Duplicate = true
			return nil
		}

		lead, err := ensureLead(ops, evt.Email)
		if err != nil {
			return err
		}

		update := &LeadUpdate{}
		switch evt.Kind {
		case domain.EventSent:
			update.SendDelta = 1
			update.LastSentAt = &evt.OccurredAt

		case domain.EventOpen:
			// The webhook channel is an activity log only: the pixel is
			// the scoring source of truth for opens.
			update.LastOpenAt = &evt.OccurredAt
			secs := secondsSince(lead.LastSentAt, evt.OccurredAt)
			auditEvt = &domain.OpenAuditEvent{
				Email:        evt.Email,
				MessageRef:   evt.MessageRef,
				ObservedAt:   evt.OccurredAt,
				UserAgent:    evt.UserAgent,
				ClientIP:     evt.ClientIP,
				IsSuspicious: classifier.WebhookOpenSuspicious(evt.UserAgent, evt.ClientIP, secs),
				Source:       domain.OpenSourceWebhook,
			}

		case domain.EventClick:
			update.ClickDelta = 1
			update.LastClickAt = &evt.OccurredAt
			update.ScoreDelta = domain.ScoreClick

		case domain.EventReply:
			update.ReplyDelta = 1
			update.LastReplyAt = &evt.OccurredAt
			update.ScoreDelta = domain.ScoreReply

		default:
			// Unrecognized kind: ledger entry recorded, lead untouched.
			res.Ignored = true
			res.Lead = lead
			return nil
		}

		update.ApplyTo(lead)
		update.SetSegment(lead.CurrentSegment())
		lead.Segment = *update.Segment

		if err := ops.ApplyLeadUpdate(evt.Email, update); err != nil {
			return err
		}
		res.Lead = lead
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.seen != nil && !res.Duplicate {
		s.seen.Mark(ctx, evt.EventID)
	}
	if auditEvt != nil {
		s.recordAudit(ctx, auditEvt)
	}
	if res.Lead != nil && !res.Duplicate && !res.Ignored {
		logger.Info("webhook event applied",
			"email", evt.Email, "kind", string(evt.Kind),
			"score", res.Lead.Score, "segment", string(res.Lead.Segment))
	}
	return res, nil
}

// ProcessPixelOpen applies one first-party pixel hit. Every hit is
// classified and audited; human verdicts not yet scored for this message
// also increment the open counters and score. Repeated hits for the same
// (email, message_ref) score at most once.
func (s *Service) ProcessPixelOpen(ctx context.Context, email, messageRef, userAgent, clientIP string) (*Result, error) {
	email = normalize.NormalizeEmail(email)
	now := s.now().UTC()
	res := &Result{}

	err := s.store.ProcessTx(ctx, func(ops TxOps) error {
		lead, err := ensureLead(ops, email)
		if err != nil {
			return err
		}

		verdict := classifier.ClassifyWith(s.thresholds, userAgent, clientIP, secondsSince(lead.LastSentAt, now))
		res.Verdict = &verdict

		update := &LeadUpdate{LastOpenAt: &now}
		if verdict.IsHuman {
			scored := true
			if messageRef != "" {
				scored, err = ops.InsertDedup(normalize.PixelScoreID(email, messageRef), email, domain.EventOpen)
				if err != nil {
					return err
				}
			}
			if scored {
				update.OpenDelta = 1
				update.HumanOpenDelta = 1
				update.ScoreDelta = domain.ScoreOpen
			}
			res.Scored = scored
		} else {
			update.SuspiciousDelta = 1
		}

		update.ApplyTo(lead)
		update.SetSegment(lead.CurrentSegment())
		lead.Segment = *update.Segment

		if err := ops.ApplyLeadUpdate(email, update); err != nil {
			return err
		}
		res.Lead = lead
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, &domain.OpenAuditEvent{
		Email:        email,
		MessageRef:   messageRef,
		ObservedAt:   now,
		UserAgent:    userAgent,
		ClientIP:     clientIP,
		IsSuspicious: res.Verdict.IsSuspicious,
		Source:       domain.OpenSourcePixel,
	})

	logger.Info("pixel open processed",
		"email", email, "human", res.Verdict.IsHuman,
		"reason", res.Verdict.Reason, "scored", res.Scored,
		"segment", string(res.Lead.Segment))
	return res, nil
}

func (s *Service) recordAudit(ctx context.Context, evt *domain.OpenAuditEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, evt); err != nil {
		logger.Warn("audit write failed", "email", evt.Email, "error", err.Error())
	}
}

package engagement

import (
	"time"

	"github.com/ignite/lead-engagement/internal/domain"
)

// LeadUpdate accumulates named field deltas for one lead mutation. The
// storage layer applies the whole set as a single atomic UPDATE; timestamp
// fields use max(existing, incoming) semantics so out-of-order delivery
// never regresses a baseline.
type LeadUpdate struct {
	SendDelta       int
	OpenDelta       int
	HumanOpenDelta  int
	SuspiciousDelta int
	ClickDelta      int
	ReplyDelta      int
	ScoreDelta      int

	LastSentAt  *time.Time
	LastOpenAt  *time.Time
	LastClickAt *time.Time
	LastReplyAt *time.Time

	Segment *domain.Segment
}

// IsZero reports whether the update carries no changes at all.
func (u *LeadUpdate) IsZero() bool {
	return u.SendDelta == 0 && u.OpenDelta == 0 && u.HumanOpenDelta == 0 &&
		u.SuspiciousDelta == 0 && u.ClickDelta == 0 && u.ReplyDelta == 0 &&
		u.ScoreDelta == 0 && u.LastSentAt == nil && u.LastOpenAt == nil &&
		u.LastClickAt == nil && u.LastReplyAt == nil && u.Segment == nil
}

func maxTime(existing *time.Time, incoming time.Time) *time.Time {
	if existing != nil && existing.After(incoming) {
		return existing
	}
	t := incoming
	return &t
}

// ApplyTo mirrors the update onto an in-memory lead so callers can derive
// the post-mutation segment before the storage write lands.
func (u *LeadUpdate) ApplyTo(l *domain.Lead) {
	l.SendCount += u.SendDelta
	l.OpenCount += u.OpenDelta
	l.HumanOpenCount += u.HumanOpenDelta
	l.SuspiciousOpenCount += u.SuspiciousDelta
	l.ClickCount += u.ClickDelta
	l.ReplyCount += u.ReplyDelta
	l.Score += u.ScoreDelta

	if u.LastSentAt != nil {
		l.LastSentAt = maxTime(l.LastSentAt, *u.LastSentAt)
	}
	if u.LastOpenAt != nil {
		l.LastOpenAt = maxTime(l.LastOpenAt, *u.LastOpenAt)
	}
	if u.LastClickAt != nil {
		l.LastClickAt = maxTime(l.LastClickAt, *u.LastClickAt)
	}
	if u.LastReplyAt != nil {
		l.LastReplyAt = maxTime(l.LastReplyAt, *u.LastReplyAt)
	}
	if u.Segment != nil {
		l.Segment = *u.Segment
	}
}

// SetSegment records the recomputed segment on the update.
func (u *LeadUpdate) SetSegment(s domain.Segment) {
	u.Segment = &s
}

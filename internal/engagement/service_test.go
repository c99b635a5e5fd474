package engagement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/lead-engagement/internal/domain"
)

// memStore is an in-memory Store/TxOps used to exercise the state machine
// without a database. Updates inside a callback that errors are discarded,
// mirroring transaction rollback.
type memStore struct {
	leads map[string]*domain.Lead
	dedup map[string]bool
}

func newMemStore() *memStore {
	return &memStore{leads: map[string]*domain.Lead{}, dedup: map[string]bool{}}
}

type memTx struct {
	store *memStore
	leads map[string]*domain.Lead
	dedup map[string]bool
}

func (s *memStore) ProcessTx(ctx context.Context, fn func(ops TxOps) error) error {
	tx := &memTx{store: s, leads: map[string]*domain.Lead{}, dedup: map[string]bool{}}
	for k, v := range s.leads {
		copied := *v
		tx.leads[k] = &copied
	}
	for k := range s.dedup {
		tx.dedup[k] = true
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.leads = tx.leads
	s.dedup = tx.dedup
	return nil
}

func (tx *memTx) InsertDedup(eventID, email string, kind domain.EventKind) (bool, error) {
	if tx.dedup[eventID] {
		return false, nil
	}
	tx.dedup[eventID] = true
	return true, nil
}

func (tx *memTx) GetLeadForUpdate(email string) (*domain.Lead, bool, error) {
	l, ok := tx.leads[email]
	if !ok {
		return nil, false, nil
	}
	copied := *l
	return &copied, true, nil
}

func (tx *memTx) CreateLead(email string) (*domain.Lead, error) {
	l := &domain.Lead{Email: email, Segment: domain.SegmentZombie}
	tx.leads[email] = l
	copied := *l
	return &copied, nil
}

func (tx *memTx) ApplyLeadUpdate(email string, u *LeadUpdate) error {
	l, ok := tx.leads[email]
	if !ok {
		l = &domain.Lead{Email: email, Segment: domain.SegmentZombie}
		tx.leads[email] = l
	}
	u.ApplyTo(l)
	return nil
}

type memAudit struct {
	events []domain.OpenAuditEvent
}

func (a *memAudit) Record(ctx context.Context, evt *domain.OpenAuditEvent) error {
	// Upsert semantics for keyed events, append otherwise.
	if evt.MessageRef != "" {
		for i := range a.events {
			if a.events[i].Email == evt.Email && a.events[i].MessageRef == evt.MessageRef {
				a.events[i] = *evt
				return nil
			}
		}
	}
	a.events = append(a.events, *evt)
	return nil
}

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(store *memStore, audit *memAudit, now time.Time) *Service {
	return NewService(store, audit, WithClock(func() time.Time { return now }))
}

func sentEvent(email string, at time.Time) *domain.EngagementEvent {
	return &domain.EngagementEvent{
		EventID:    "sent-" + email + at.String(),
		Email:      email,
		Kind:       domain.EventSent,
		OccurredAt: at,
	}
}

func TestWebhookSentThenHumanPixelOpen(t *testing.T) {
	store := newMemStore()
	audit := &memAudit{}
	svc := newTestService(store, audit, t0.Add(30*time.Second))

	_, err := svc.ProcessWebhookEvent(context.Background(), sentEvent("a@b.co", t0))
	require.NoError(t, err)

	// Chrome-class UA 30s after send: trusted provider class, past the gate.
	ua := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36"
	res, err := svc.ProcessPixelOpen(context.Background(), "a@b.co", "m1", ua, "203.0.113.9")
	require.NoError(t, err)
	require.True(t, res.Verdict.IsHuman, "verdict: %+v", res.Verdict)
	assert.True(t, res.Scored)

	lead := store.leads["a@b.co"]
	assert.Equal(t, 1, lead.OpenCount)
	assert.Equal(t, 1, lead.HumanOpenCount)
	assert.Equal(t, 1, lead.Score)
	// Score 1 is below the dormido floor.
	assert.Equal(t, domain.SegmentZombie, lead.Segment)

	// Second hit for the same message: audited again, scored never.
	res, err = svc.ProcessPixelOpen(context.Background(), "a@b.co", "m1", ua, "203.0.113.9")
	require.NoError(t, err)
	assert.True(t, res.Verdict.IsHuman)
	assert.False(t, res.Scored)

	lead = store.leads["a@b.co"]
	assert.Equal(t, 1, lead.OpenCount)
	assert.Equal(t, 1, lead.HumanOpenCount)
	assert.Equal(t, 1, lead.Score)
	assert.Len(t, audit.events, 1, "keyed audit rows collapse per message")
}

func TestReplyPlusHumanOpenReachesActivo(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &memAudit{}, t0.Add(60*time.Second))

	_, err := svc.ProcessWebhookEvent(context.Background(), sentEvent("a@b.co", t0))
	require.NoError(t, err)

	reply := &domain.EngagementEvent{
		EventID:    "evt-reply-1",
		Email:      "a@b.co",
		Kind:       domain.EventReply,
		OccurredAt: t0.Add(40 * time.Second),
	}
	_, err = svc.ProcessWebhookEvent(context.Background(), reply)
	require.NoError(t, err)

	res, err := svc.ProcessPixelOpen(context.Background(), "a@b.co", "m2", "GoogleImageProxy", "")
	require.NoError(t, err)
	require.True(t, res.Verdict.IsHuman)

	lead := store.leads["a@b.co"]
	assert.Equal(t, 11, lead.Score)
	assert.Equal(t, 1, lead.HumanOpenCount)
	assert.Equal(t, 1, lead.ReplyCount)
	// Human signal via reply, 6 <= score < 12.
	assert.Equal(t, domain.SegmentActivo, lead.Segment)
}

func TestWebhookReplayIsIdempotent(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &memAudit{}, t0)

	evt := &domain.EngagementEvent{
		EventID:    "evt-click-1",
		Email:      "a@b.co",
		Kind:       domain.EventClick,
		OccurredAt: t0,
	}
	res, err := svc.ProcessWebhookEvent(context.Background(), evt)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)

	snapshot := *store.leads["a@b.co"]

	for i := 0; i < 5; i++ {
		res, err = svc.ProcessWebhookEvent(context.Background(), evt)
		require.NoError(t, err)
		assert.True(t, res.Duplicate)
	}
	assert.Equal(t, snapshot, *store.leads["a@b.co"])
}

func TestWebhookOpenNeverScores(t *testing.T) {
	store := newMemStore()
	audit := &memAudit{}
	svc := newTestService(store, audit, t0)

	open := &domain.EngagementEvent{
		EventID:    "evt-open-1",
		Email:      "a@b.co",
		Kind:       domain.EventOpen,
		OccurredAt: t0,
		UserAgent:  "Mozilla/5.0 (Windows NT 10.0; rv:109.0) Gecko/20100101 Firefox/115.0",
		ClientIP:   "203.0.113.9",
	}
	_, err := svc.ProcessWebhookEvent(context.Background(), open)
	require.NoError(t, err)

	lead := store.leads["a@b.co"]
	assert.Equal(t, 0, lead.OpenCount)
	assert.Equal(t, 0, lead.HumanOpenCount)
	assert.Equal(t, 0, lead.Score)
	require.NotNil(t, lead.LastOpenAt)
	assert.True(t, lead.LastOpenAt.Equal(t0))
	require.Len(t, audit.events, 1)
	assert.Equal(t, domain.OpenSourceWebhook, audit.events[0].Source)
}

func TestSuspiciousPixelOpenDoesNotScore(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &memAudit{}, t0.Add(2*time.Second))

	_, err := svc.ProcessWebhookEvent(context.Background(), sentEvent("a@b.co", t0))
	require.NoError(t, err)

	// 2 seconds after send: below the minimum-human floor.
	res, err := svc.ProcessPixelOpen(context.Background(), "a@b.co", "m1", "GoogleImageProxy", "")
	require.NoError(t, err)
	assert.False(t, res.Verdict.IsHuman)
	assert.False(t, res.Scored)

	lead := store.leads["a@b.co"]
	assert.Equal(t, 0, lead.Score)
	assert.Equal(t, 1, lead.SuspiciousOpenCount)
	assert.Equal(t, domain.SegmentZombie, lead.Segment)
}

func TestUnknownKindIsIgnoredButDeduped(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &memAudit{}, t0)

	evt := &domain.EngagementEvent{
		EventID:    "evt-x-1",
		Email:      "a@b.co",
		Kind:       domain.EventKind("spam_complaint"),
		OccurredAt: t0,
	}
	res, err := svc.ProcessWebhookEvent(context.Background(), evt)
	require.NoError(t, err)
	assert.True(t, res.Ignored)
	assert.Equal(t, 0, store.leads["a@b.co"].Score)

	res, err = svc.ProcessWebhookEvent(context.Background(), evt)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
}

func TestCountersAreMonotonic(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &memAudit{}, t0.Add(90*time.Second))

	events := []*domain.EngagementEvent{
		sentEvent("a@b.co", t0),
		{EventID: "c1", Email: "a@b.co", Kind: domain.EventClick, OccurredAt: t0.Add(70 * time.Second)},
		{EventID: "r1", Email: "a@b.co", Kind: domain.EventReply, OccurredAt: t0.Add(80 * time.Second)},
		sentEvent("a@b.co", t0.Add(85*time.Second)),
	}

	var prev domain.Lead
	check := func() {
		l := store.leads["a@b.co"]
		assert.GreaterOrEqual(t, l.Score, prev.Score)
		assert.GreaterOrEqual(t, l.SendCount, prev.SendCount)
		assert.GreaterOrEqual(t, l.OpenCount, prev.OpenCount)
		assert.GreaterOrEqual(t, l.HumanOpenCount, prev.HumanOpenCount)
		assert.GreaterOrEqual(t, l.SuspiciousOpenCount, prev.SuspiciousOpenCount)
		assert.GreaterOrEqual(t, l.ClickCount, prev.ClickCount)
		assert.GreaterOrEqual(t, l.ReplyCount, prev.ReplyCount)
		prev = *l
	}

	for _, evt := range events {
		_, err := svc.ProcessWebhookEvent(context.Background(), evt)
		require.NoError(t, err)
		check()
	}
	for i := 0; i < 3; i++ {
		_, err := svc.ProcessPixelOpen(context.Background(), "a@b.co", "", "curl/8.0", "")
		require.NoError(t, err)
		check()
	}
}

func TestSegmentAlwaysDerivable(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &memAudit{}, t0.Add(120*time.Second))

	events := []*domain.EngagementEvent{
		sentEvent("a@b.co", t0),
		{EventID: "c1", Email: "a@b.co", Kind: domain.EventClick, OccurredAt: t0.Add(60 * time.Second)},
		{EventID: "c2", Email: "a@b.co", Kind: domain.EventClick, OccurredAt: t0.Add(70 * time.Second)},
		{EventID: "r1", Email: "a@b.co", Kind: domain.EventReply, OccurredAt: t0.Add(90 * time.Second)},
	}
	for _, evt := range events {
		_, err := svc.ProcessWebhookEvent(context.Background(), evt)
		require.NoError(t, err)
		l := store.leads["a@b.co"]
		assert.Equal(t, l.CurrentSegment(), l.Segment)
	}
	// 5+5+10 = 20 with click+reply signal.
	assert.Equal(t, domain.SegmentVIP, store.leads["a@b.co"].Segment)
}

func TestLastSentAtUsesMaxSemantics(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &memAudit{}, t0.Add(time.Hour))

	_, err := svc.ProcessWebhookEvent(context.Background(), sentEvent("a@b.co", t0.Add(10*time.Minute)))
	require.NoError(t, err)

	// Late-arriving earlier send must not regress the baseline.
	_, err = svc.ProcessWebhookEvent(context.Background(), sentEvent("a@b.co", t0))
	require.NoError(t, err)

	lead := store.leads["a@b.co"]
	require.NotNil(t, lead.LastSentAt)
	assert.True(t, lead.LastSentAt.Equal(t0.Add(10*time.Minute)))
	assert.Equal(t, 2, lead.SendCount)
}

func TestPixelOpenWithoutMessageRefScoresEachHumanHit(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &memAudit{}, t0)

	for i := 0; i < 2; i++ {
		res, err := svc.ProcessPixelOpen(context.Background(), "a@b.co", "", "GoogleImageProxy", "")
		require.NoError(t, err)
		assert.True(t, res.Verdict.IsHuman)
		assert.True(t, res.Scored)
	}
	lead := store.leads["a@b.co"]
	assert.Equal(t, 2, lead.HumanOpenCount)
	assert.Equal(t, 2, lead.Score)
	// Two human opens give signal but score 2 only reaches dormido.
	assert.Equal(t, domain.SegmentDormido, lead.Segment)
}

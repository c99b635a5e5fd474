package domain

import "time"

// Segment is the lifecycle label derived from a lead's score and
// accumulated human-signal evidence. It is never stored as independent
// truth: recomputing it from the counters must always reproduce it.
type Segment string

const (
	SegmentZombie  Segment = "zombie"
	SegmentDormido Segment = "dormido"
	SegmentActivo  Segment = "activo"
	SegmentVIP     Segment = "vip"
)

// Event score weights.
const (
	ScoreOpen  = 1
	ScoreClick = 5
	ScoreReply = 10
)

// Segment thresholds. VIP and activo additionally require human signal.
const (
	ScoreFloorVIP     = 12
	ScoreFloorActivo  = 6
	ScoreFloorDormido = 2
)

// Lead is one tracked email recipient and its engagement history.
// One row per unique, lowercased email address.
type Lead struct {
	Email string `json:"email" db:"email"`

	SendCount           int `json:"send_count" db:"send_count"`
	OpenCount           int `json:"open_count" db:"open_count"`
	HumanOpenCount      int `json:"human_open_count" db:"human_open_count"`
	SuspiciousOpenCount int `json:"suspicious_open_count" db:"suspicious_open_count"`
	ClickCount          int `json:"click_count" db:"click_count"`
	ReplyCount          int `json:"reply_count" db:"reply_count"`

	LastSentAt  *time.Time `json:"last_sent_at" db:"last_sent_at"`
	LastOpenAt  *time.Time `json:"last_open_at" db:"last_open_at"`
	LastClickAt *time.Time `json:"last_click_at" db:"last_click_at"`
	LastReplyAt *time.Time `json:"last_reply_at" db:"last_reply_at"`

	Score   int     `json:"score" db:"score"`
	Segment Segment `json:"segment" db:"segment"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasHumanSignal reports whether the lead has corroborating human evidence:
// a reply, a click, or at least two human-attributed opens. Score alone can
// never promote a lead into the high-value segments without this.
func (l *Lead) HasHumanSignal() bool {
	return l.ReplyCount > 0 || l.ClickCount > 0 || l.HumanOpenCount >= 2
}

// SegmentFor derives the lifecycle segment from a lead's counters.
// Pure function of (score, human_open_count, click_count, reply_count).
func SegmentFor(score, humanOpens, clicks, replies int) Segment {
	humanSignal := replies > 0 || clicks > 0 || humanOpens >= 2
	switch {
	case humanSignal && score >= ScoreFloorVIP:
		return SegmentVIP
	case humanSignal && score >= ScoreFloorActivo:
		return SegmentActivo
	case humanOpens >= 1 && score >= ScoreFloorDormido:
		return SegmentDormido
	default:
		return SegmentZombie
	}
}

// CurrentSegment recomputes the lead's segment from its counters.
func (l *Lead) CurrentSegment() Segment {
	return SegmentFor(l.Score, l.HumanOpenCount, l.ClickCount, l.ReplyCount)
}

package domain

import "time"

// EventKind enumerates the canonical engagement event kinds. Raw webhook
// types that match none of the known patterns pass through unchanged, so
// an EventKind may also hold an unrecognized raw string.
type EventKind string

const (
	EventSent  EventKind = "email_sent"
	EventOpen  EventKind = "email_open"
	EventClick EventKind = "email_click"
	EventReply EventKind = "email_reply"
)

// EngagementEvent is the canonical form of one inbound event after
// normalization, whatever shape it arrived in.
type EngagementEvent struct {
	EventID    string    `json:"event_id"`
	Email      string    `json:"email"`
	Kind       EventKind `json:"event_kind"`
	OccurredAt time.Time `json:"occurred_at"`
	UserAgent  string    `json:"user_agent,omitempty"`
	ClientIP   string    `json:"client_ip,omitempty"`
	MessageRef string    `json:"message_ref,omitempty"`
}

// OpenSource identifies which channel observed an open.
type OpenSource string

const (
	OpenSourcePixel   OpenSource = "pixel"
	OpenSourceWebhook OpenSource = "webhook"
)

// OpenAuditEvent is one observed open, pixel- or webhook-sourced, recorded
// regardless of whether it affected the lead's score. When MessageRef is
// set, at most one row exists per (email, message_ref) and later hits
// overwrite the observation fields; otherwise each hit appends.
type OpenAuditEvent struct {
	ID           string     `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	MessageRef   string     `json:"message_ref,omitempty" db:"message_ref"`
	ObservedAt   time.Time  `json:"observed_at" db:"observed_at"`
	UserAgent    string     `json:"user_agent" db:"user_agent"`
	ClientIP     string     `json:"client_ip" db:"client_ip"`
	IsSuspicious bool       `json:"is_suspicious" db:"is_suspicious"`
	Source       OpenSource `json:"source" db:"source"`
}

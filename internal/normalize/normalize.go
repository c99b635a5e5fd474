// Package normalize maps the heterogeneous inbound payload shapes (webhook
// JSON from the sending platform, pixel query parameters) into the
// canonical engagement event consumed by the state machine.
package normalize

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/lead-engagement/internal/domain"
)

// ValidationError reports a payload missing a required normalized field.
// Handlers map it to HTTP 400; no state is mutated.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

// Payload is one decoded webhook body. The upstream provider is loose about
// shapes, so everything is optional and read defensively.
type Payload map[string]any

func (p Payload) str(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

func (p Payload) nested(key string) Payload {
	if v, ok := p[key].(map[string]any); ok {
		return Payload(v)
	}
	return nil
}

// firstString returns the first populated value among keys.
func (p Payload) firstString(keys ...string) string {
	for _, k := range keys {
		if v := p.str(k); v != "" {
			return v
		}
	}
	return ""
}

// KindFor maps a raw provider event type onto the canonical kinds. Matching
// is ordered and case-insensitive; unrecognized raw types pass through
// unchanged as a forward-compatible escape hatch.
func KindFor(rawType string) domain.EventKind {
	s := strings.ToLower(rawType)
	switch {
	case strings.Contains(s, "open"):
		return domain.EventOpen
	case strings.Contains(s, "click"):
		return domain.EventClick
	case strings.Contains(s, "reply"), strings.Contains(s, "respond"):
		return domain.EventReply
	case strings.Contains(s, "sent"), strings.Contains(s, "delivered"):
		return domain.EventSent
	default:
		return domain.EventKind(s)
	}
}

// timestampFields is the preference-ordered list of raw timestamp keys.
var timestampFields = []string{"timestamp", "time_sent", "event_timestamp", "occurred_at"}

// timeFormats covers the shapes the provider has been observed to send.
var timeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func parseTime(raw string) (time.Time, bool) {
	for _, f := range timeFormats {
		if t, err := time.Parse(f, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ExtractUserAgent resolves the reader's user agent from the prioritized
// cascade: structured payload fields, then transport headers. The upstream
// webhook provider does not consistently place this field.
func ExtractUserAgent(p Payload, headers http.Header) string {
	candidates := []string{
		p.str("user_agent"),
		p.str("ua"),
		p.nested("client").firstString("user_agent", "ua"),
		p.nested("device").str("user_agent"),
		p.nested("context").str("userAgent"),
		p.nested("open").str("user_agent"),
		p.nested("headers").str("User-Agent"),
		headers.Get("X-Sl-User-Agent"),
		headers.Get("X-User-Agent"),
		headers.Get("User-Agent"),
	}
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}

// ExtractClientIP resolves the reader's IP from structured payload fields,
// then proxy headers, then the literal connection remote address.
func ExtractClientIP(p Payload, headers http.Header, remoteAddr string) string {
	candidates := []string{
		p.str("ip"),
		p.nested("client").str("ip"),
		p.nested("context").str("ip"),
		headers.Get("X-Real-Ip"),
		headers.Get("X-Forwarded-For"),
		remoteAddr,
	}
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}

// NormalizeEmail lowercases and trims an email address; leads are keyed by
// this canonical form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// WebhookEvent normalizes one webhook payload into a canonical event.
// now supplies both the ingestion-time default for occurred_at and the
// epoch used when synthesizing an event id.
func WebhookEvent(p Payload, headers http.Header, remoteAddr string, now time.Time) (*domain.EngagementEvent, error) {
	rawType := p.firstString("event_type", "eventType", "event")
	if rawType == "" {
		return nil, &ValidationError{Field: "event_type"}
	}

	email := NormalizeEmail(p.firstString("email", "to_email", "recipient"))
	if email == "" {
		return nil, &ValidationError{Field: "email"}
	}

	occurredAt := now.UTC()
	if raw := p.firstString(timestampFields...); raw != "" {
		if t, ok := parseTime(raw); ok {
			occurredAt = t
		}
	}

	kind := KindFor(rawType)

	eventID := p.firstString("event_id", "id")
	if eventID == "" {
		eventID = fmt.Sprintf("%s|%s|%d", email, kind, occurredAt.UnixMilli())
	}

	return &domain.EngagementEvent{
		EventID:    eventID,
		Email:      email,
		Kind:       kind,
		OccurredAt: occurredAt,
		UserAgent:  ExtractUserAgent(p, headers),
		ClientIP:   ExtractClientIP(p, headers, remoteAddr),
		MessageRef: p.firstString("message_id", "message_ref"),
	}, nil
}

// PixelScoreID synthesizes the dedup id that gates score mutation for a
// pixel open. Deliberately a distinct id space from webhook event ids so an
// open can be audited every time but scored once per message.
func PixelScoreID(email, messageRef string) string {
	return fmt.Sprintf("pixel-score|%s|%s", email, messageRef)
}

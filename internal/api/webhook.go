package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ignite/lead-engagement/internal/normalize"
	"github.com/ignite/lead-engagement/internal/pkg/httputil"
	"github.com/ignite/lead-engagement/internal/pkg/logger"
)

// webhookResponse is the ingestion acknowledgement returned to the
// platform. Duplicates and unrecognized kinds still acknowledge 200 so the
// sender does not retry them.
type webhookResponse struct {
	Status    string `json:"status"`
	Email     string `json:"email,omitempty"`
	Segment   string `json:"segment,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Ignored   bool   `json:"ignored,omitempty"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload normalize.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		httputil.BadRequest(w, "invalid JSON body")
		return
	}

	evt, err := normalize.WebhookEvent(payload, r.Header, realIP(r), time.Now())
	if err != nil {
		var verr *normalize.ValidationError
		if errors.As(err, &verr) {
			httputil.BadRequest(w, verr.Error())
			return
		}
		httputil.BadRequest(w, "malformed payload")
		return
	}

	result, err := s.processor.ProcessWebhookEvent(r.Context(), evt)
	if err != nil {
		logger.Error("webhook processing failed",
			"event_id", evt.EventID,
			"email", evt.Email,
			"error", err.Error())
		httputil.InternalError(w, err)
		return
	}

	resp := webhookResponse{
		Status:    "ok",
		Email:     evt.Email,
		Duplicate: result.Duplicate,
		Ignored:   result.Ignored,
	}
	if result.Lead != nil {
		resp.Segment = string(result.Lead.CurrentSegment())
	}
	httputil.OK(w, resp)
}

package api

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/lead-engagement/internal/domain"
	"github.com/ignite/lead-engagement/internal/normalize"
	"github.com/ignite/lead-engagement/internal/pkg/httputil"
	"github.com/ignite/lead-engagement/internal/repository/postgres"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{
		"service": "lead-engagement",
		"status":  "running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			httputil.JSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "degraded",
				"database": "unreachable",
			})
			return
		}
	}
	httputil.OK(w, map[string]string{"status": "healthy"})
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := s.leads.List(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"total": len(leads),
		"leads": leads,
	})
}

var leadsCSVHeader = []string{
	"email", "segment", "score",
	"send_count", "open_count", "human_open_count", "suspicious_open_count",
	"click_count", "reply_count",
	"last_sent_at", "last_open_at", "last_click_at", "last_reply_at",
}

func (s *Server) handleLeadsCSV(w http.ResponseWriter, r *http.Request) {
	leads, err := s.leads.List(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="leads.csv"`)

	cw := csv.NewWriter(w)
	cw.Write(leadsCSVHeader)
	for i := range leads {
		cw.Write(leadCSVRow(&leads[i]))
	}
	cw.Flush()
}

func leadCSVRow(l *domain.Lead) []string {
	return []string{
		l.Email,
		string(l.CurrentSegment()),
		strconv.Itoa(l.Score),
		strconv.Itoa(l.SendCount),
		strconv.Itoa(l.OpenCount),
		strconv.Itoa(l.HumanOpenCount),
		strconv.Itoa(l.SuspiciousOpenCount),
		strconv.Itoa(l.ClickCount),
		strconv.Itoa(l.ReplyCount),
		csvTime(l.LastSentAt),
		csvTime(l.LastOpenAt),
		csvTime(l.LastClickAt),
		csvTime(l.LastReplyAt),
	}
}

func csvTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	email := normalize.NormalizeEmail(chi.URLParam(r, "email"))
	lead, err := s.leads.Get(r.Context(), email)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) || errors.Is(err, sql.ErrNoRows) {
			httputil.NotFound(w, "lead not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, lead)
}

func (s *Server) handleListOpens(w http.ResponseWriter, r *http.Request) {
	email := normalize.NormalizeEmail(r.URL.Query().Get("email"))
	opens, err := s.audits.List(r.Context(), email)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"total": len(opens),
		"opens": opens,
	})
}

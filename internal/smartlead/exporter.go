package smartlead

import (
	"context"
	"strings"

	"github.com/ignite/lead-engagement/internal/domain"
	"github.com/ignite/lead-engagement/internal/pkg/logger"
)

// LeadAPI is the remote surface the exporter needs.
type LeadAPI interface {
	FindLeadByEmail(ctx context.Context, email string) (*Lead, error)
	CreateLead(ctx context.Context, req CreateLeadRequest) (int64, error)
	BulkCreateLeads(ctx context.Context, leads []CreateLeadRequest) error
	AddLeadsToCampaign(ctx context.Context, campaignID int64, leads []CreateLeadRequest) error
	UpdateLeadCategory(ctx context.Context, leadID int64, category string) error
}

// bulkChunkSize is the per-request lead cap on the bulk endpoints.
const bulkChunkSize = 100

// CategoryFor maps a segment to the title-cased category label the remote
// platform displays.
func CategoryFor(seg domain.Segment) string {
	s := string(seg)
	if s == "" {
		s = string(domain.SegmentZombie)
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// SyncStats summarizes one segment sync run.
type SyncStats struct {
	Updated int
	Created int
	Failed  int
}

// Exporter pushes locally derived segments to the remote platform.
type Exporter struct {
	api LeadAPI
}

// NewExporter creates an exporter over the given API client.
func NewExporter(api LeadAPI) *Exporter {
	return &Exporter{api: api}
}

// PushAll uploads the lead collection to the remote global list in chunks
// and, when campaignID is nonzero, attaches the same leads to that
// campaign. Each lead carries its current segment as a custom field.
func (e *Exporter) PushAll(ctx context.Context, leads []domain.Lead, campaignID int64) error {
	batch := make([]CreateLeadRequest, 0, len(leads))
	for i := range leads {
		batch = append(batch, CreateLeadRequest{
			Email:        leads[i].Email,
			CustomFields: map[string]string{"segment": string(leads[i].CurrentSegment())},
		})
	}

	for start := 0; start < len(batch); start += bulkChunkSize {
		end := start + bulkChunkSize
		if end > len(batch) {
			end = len(batch)
		}
		chunk := batch[start:end]

		if err := e.api.BulkCreateLeads(ctx, chunk); err != nil {
			return err
		}
		if campaignID != 0 {
			if err := e.api.AddLeadsToCampaign(ctx, campaignID, chunk); err != nil {
				return err
			}
		}
		logger.Info("lead batch uploaded", "count", len(chunk), "campaign_id", campaignID)
	}
	return nil
}

// SyncSegments pushes each lead's current segment as its remote category.
// Unknown remote leads are created first. Failures are logged and counted
// but never stop the run; the next run retries them.
func (e *Exporter) SyncSegments(ctx context.Context, leads []domain.Lead) SyncStats {
	var stats SyncStats
	for i := range leads {
		lead := &leads[i]
		category := CategoryFor(lead.CurrentSegment())

		remote, err := e.api.FindLeadByEmail(ctx, lead.Email)
		if err != nil {
			logger.Warn("segment sync lookup failed", "email", lead.Email, "error", err.Error())
			stats.Failed++
			continue
		}

		if remote == nil {
			id, err := e.api.CreateLead(ctx, CreateLeadRequest{
				Email:        lead.Email,
				CustomFields: map[string]string{"segment": string(lead.CurrentSegment())},
			})
			if err != nil {
				logger.Warn("segment sync create failed", "email", lead.Email, "error", err.Error())
				stats.Failed++
				continue
			}
			remote = &Lead{ID: id, Email: lead.Email}
			stats.Created++
		}

		if err := e.api.UpdateLeadCategory(ctx, remote.ID, category); err != nil {
			logger.Warn("segment sync update failed",
				"email", lead.Email,
				"category", category,
				"error", err.Error())
			stats.Failed++
			continue
		}
		stats.Updated++
	}
	return stats
}

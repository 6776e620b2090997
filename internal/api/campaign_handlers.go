package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/phishsim/internal/domain"
	"github.com/ignite/phishsim/internal/pkg/httputil"
	"github.com/ignite/phishsim/internal/service/campaign"
)

// ListCampaigns returns a page of campaigns.
//
//	GET /api/campaigns?status=&search=&page=&limit=
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r, 25, 200)
	q := r.URL.Query()
	status := q.Get("status")
	if status != "" && !domain.CampaignStatus(status).Valid() {
		httputil.BadRequest(w, "unknown status "+status)
		return
	}
	list, total, err := h.campaigns.List(r.Context(), campaign.ListFilter{
		Status: status,
		Search: q.Get("search"),
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	if list == nil {
		list = []domain.Campaign{}
	}
	httputil.OK(w, NewPaginatedResponse(list, p, total))
}

func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.CreateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.campaigns.Create(r.Context(), in)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, c)
}

func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), chi.URLParam(r, "campaignID"))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, c)
}

func (h *Handlers) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var u campaign.UpdateFields
	if !httputil.Decode(w, r, &u) {
		return
	}
	c, err := h.campaigns.Edit(r.Context(), chi.URLParam(r, "campaignID"), u)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, c)
}

func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.Delete(r.Context(), chi.URLParam(r, "campaignID")); err != nil {
		respondError(w, err)
		return
	}
	httputil.NoContent(w)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// LaunchCampaign freezes the targeting snapshot and starts delivery, or
// resumes a paused campaign.
//
//	POST /api/campaigns/{campaignID}/launch
func (h *Handlers) LaunchCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.LaunchInput
	if !decodeOptional(w, r, &in) {
		return
	}
	c, err := h.campaigns.Launch(r.Context(), chi.URLParam(r, "campaignID"), in)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, c)
}

func (h *Handlers) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.campaigns.Pause)
}

func (h *Handlers) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.campaigns.Cancel)
}

func (h *Handlers) UnscheduleCampaign(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.campaigns.Unschedule)
}

func (h *Handlers) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.ScheduleInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.campaigns.Schedule(r.Context(), chi.URLParam(r, "campaignID"), in)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, c)
}

func (h *Handlers) SendTestEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if err := h.campaigns.SendTest(r.Context(), chi.URLParam(r, "campaignID"), req.Email); err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "sent"})
}

type transitionFunc func(ctx context.Context, id string) (*domain.Campaign, error)

func (h *Handlers) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	c, err := fn(r.Context(), chi.URLParam(r, "campaignID"))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, c)
}

// =============================================================================
// ENGAGEMENT & ANALYTICS
// =============================================================================

func (h *Handlers) CampaignStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.analytics.CampaignStats(r.Context(), chi.URLParam(r, "campaignID"))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, st)
}

func (h *Handlers) CampaignDepartments(w http.ResponseWriter, r *http.Request) {
	depts, err := h.analytics.CampaignDepartmentBreakdown(r.Context(), chi.URLParam(r, "campaignID"))
	if err != nil {
		respondError(w, err)
		return
	}
	if depts == nil {
		depts = []domain.DepartmentRiskSummary{}
	}
	httputil.OK(w, map[string]any{"departments": depts})
}

func (h *Handlers) ListCampaignEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "campaignID")
	if _, err := h.campaigns.Get(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	events, err := h.events.Events(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if events == nil {
		events = []domain.EngagementEvent{}
	}
	httputil.OK(w, map[string]any{"events": events})
}

// CampaignTracking returns every targeted recipient with their events and
// the client each interaction came from.
//
//	GET /api/campaigns/{campaignID}/tracking
func (h *Handlers) CampaignTracking(w http.ResponseWriter, r *http.Request) {
	detail, err := h.events.TrackingDetail(r.Context(), chi.URLParam(r, "campaignID"))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"recipients": detail})
}

type recordEventRequest struct {
	RecipientID string           `json:"recipient_id"`
	Kind        domain.EventKind `json:"kind"`
	OccurredAt  *time.Time       `json:"occurred_at"`
}

// RecordCampaignEvent records an engagement reported out of band, such as a
// phish reported to the help desk by phone. Implied earlier stages are
// recorded too.
//
//	POST /api/campaigns/{campaignID}/events
func (h *Handlers) RecordCampaignEvent(w http.ResponseWriter, r *http.Request) {
	var req recordEventRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.RecipientID == "" {
		httputil.BadRequest(w, "recipient_id is required")
		return
	}
	ts := time.Now().UTC()
	if req.OccurredAt != nil {
		ts = req.OccurredAt.UTC()
	}
	kinds, err := h.events.RecordEvent(r.Context(), chi.URLParam(r, "campaignID"), req.RecipientID, req.Kind, ts)
	if err != nil {
		respondError(w, err)
		return
	}
	if kinds == nil {
		kinds = []domain.EventKind{}
	}
	httputil.OK(w, map[string]any{"recorded": kinds})
}

// CampaignArchive lists a campaign's audit documents.
//
//	GET /api/campaigns/{campaignID}/archive
func (h *Handlers) CampaignArchive(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		httputil.ErrorWithCode(w, http.StatusNotFound, "archive_disabled", "audit archive is not configured")
		return
	}
	id := chi.URLParam(r, "campaignID")
	if _, err := h.campaigns.Get(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	recs, err := h.archive.Records(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"records": recs})
}

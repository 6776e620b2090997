package api

import (
	"net/http"

	"github.com/ignite/phishsim/internal/domain"
	"github.com/ignite/phishsim/internal/pkg/httputil"
)

const (
	defaultActivityLimit = 20
	maxActivityLimit     = 200
)

// Dashboard returns organization-wide totals and rates.
//
//	GET /api/analytics/dashboard
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.analytics.OverallDashboard(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, d)
}

// DepartmentRisk ranks departments by credential-submission rate across
// every launched campaign.
//
//	GET /api/analytics/departments
func (h *Handlers) DepartmentRisk(w http.ResponseWriter, r *http.Request) {
	depts, err := h.analytics.DepartmentRisk(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	if depts == nil {
		depts = []domain.DepartmentRiskSummary{}
	}
	httputil.OK(w, map[string]any{"departments": depts})
}

// RecentActivity returns the latest engagement across all campaigns.
//
//	GET /api/analytics/activity?limit=
func (h *Handlers) RecentActivity(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultActivityLimit)
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}
	items, err := h.analytics.RecentActivity(r.Context(), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	if items == nil {
		items = []domain.Activity{}
	}
	httputil.OK(w, map[string]any{"activity": items})
}

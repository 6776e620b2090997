package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/ignite/phishsim/internal/pkg/httputil"
	"github.com/ignite/phishsim/internal/service/analytics"
	"github.com/ignite/phishsim/internal/service/campaign"
	"github.com/ignite/phishsim/internal/service/engagement"
	"github.com/ignite/phishsim/internal/service/recipient"
	"github.com/ignite/phishsim/internal/service/template"
	"github.com/ignite/phishsim/internal/storage"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	recipients *recipient.Service
	templates  *template.Service
	campaigns  *campaign.Service
	events     *engagement.Service
	analytics  *analytics.Service
	archive    *storage.Archiver
	tracking   http.Handler
	health     *HealthChecker
}

// NewHandlers creates a new Handlers instance
func NewHandlers(svc Services) *Handlers {
	return &Handlers{
		recipients: svc.Recipients,
		templates:  svc.Templates,
		campaigns:  svc.Campaigns,
		events:     svc.Events,
		analytics:  svc.Analytics,
		archive:    svc.Archive,
		tracking:   svc.Tracking,
		health:     svc.Health,
	}
}

// queryInt reads a positive integer query parameter, falling back to def.
func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 1 {
		return def
	}
	return v
}

// decodeOptional is httputil.Decode for endpoints whose body may be empty.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		httputil.BadRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

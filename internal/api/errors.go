package api

import (
	"errors"
	"net/http"

	"github.com/ignite/phishsim/internal/pkg/distlock"
	"github.com/ignite/phishsim/internal/pkg/httputil"
	"github.com/ignite/phishsim/internal/service/campaign"
	"github.com/ignite/phishsim/internal/service/engagement"
	"github.com/ignite/phishsim/internal/service/recipient"
	"github.com/ignite/phishsim/internal/service/template"
	"github.com/ignite/phishsim/internal/storage"
)

// =============================================================================
// ERROR MAPPING
// Service sentinels map to a status and a stable code. Anything unmapped is
// an internal error: logged in full, returned as a generic message.
// =============================================================================

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{campaign.ErrNotFound, http.StatusNotFound, "campaign_not_found"},
	{recipient.ErrNotFound, http.StatusNotFound, "recipient_not_found"},
	{recipient.ErrGroupNotFound, http.StatusNotFound, "group_not_found"},
	{template.ErrNotFound, http.StatusNotFound, "template_not_found"},
	{storage.ErrNotFound, http.StatusNotFound, "archive_not_found"},

	{campaign.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{engagement.ErrInvalidCampaignState, http.StatusConflict, "campaign_not_launched"},
	{recipient.ErrDuplicateEmail, http.StatusConflict, "duplicate_email"},
	{recipient.ErrDuplicateGroupName, http.StatusConflict, "duplicate_group_name"},
	{recipient.ErrReferencedByCampaign, http.StatusConflict, "recipient_in_use"},
	{template.ErrTemplateInUse, http.StatusConflict, "template_in_use"},

	{campaign.ErrEmptyTargetSet, http.StatusUnprocessableEntity, "empty_target_set"},
	{campaign.ErrNoTemplateBound, http.StatusUnprocessableEntity, "no_template_bound"},
	{campaign.ErrTooManyRecipients, http.StatusUnprocessableEntity, "too_many_recipients"},
	{engagement.ErrUnknownTarget, http.StatusUnprocessableEntity, "unknown_target"},
	{template.ErrUnsuppliedVariable, http.StatusUnprocessableEntity, "unsupplied_variable"},

	// another request holds the campaign; the client may retry
	{distlock.ErrLockTimeout, http.StatusServiceUnavailable, "lock_timeout"},

	{campaign.ErrInvalidTargetURL, http.StatusBadRequest, "invalid_target_url"},
	{campaign.ErrInvalidSchedule, http.StatusBadRequest, "invalid_schedule"},
	{campaign.ErrMissingName, http.StatusBadRequest, "missing_name"},
	{campaign.ErrMissingTestEmail, http.StatusBadRequest, "missing_test_email"},
	{recipient.ErrMissingRequiredField, http.StatusBadRequest, "missing_required_field"},
	{recipient.ErrMissingHeader, http.StatusBadRequest, "missing_header"},
	{recipient.ErrMissingGroupName, http.StatusBadRequest, "missing_group_name"},
	{template.ErrMissingField, http.StatusBadRequest, "missing_field"},
	{template.ErrUndeclaredVariable, http.StatusBadRequest, "undeclared_variable"},
	{template.ErrUnsupportedSyntax, http.StatusBadRequest, "unsupported_syntax"},
	{template.ErrMissingVariable, http.StatusBadRequest, "missing_variable"},
	{template.ErrInvalidVariableName, http.StatusBadRequest, "invalid_variable_name"},
	{engagement.ErrInvalidKind, http.StatusBadRequest, "invalid_event_kind"},
}

// statusFor returns the HTTP status and code for a service error, or 500.
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, ""
}

// respondError writes err with its mapped status. Client errors carry the
// service message; internal errors never leak it.
func respondError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	if status == http.StatusInternalServerError {
		httputil.InternalError(w, err)
		return
	}
	httputil.ErrorWithCode(w, status, code, err.Error())
}

package campaign

import (
	"errors"
	"fmt"

	"github.com/ignite/phishsim/internal/domain"
)

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound          = errors.New("campaign not found")
	ErrInvalidState      = errors.New("operation not allowed in current campaign state")
	ErrStatusConflict    = errors.New("campaign status changed concurrently")
	ErrEmptyTargetSet    = errors.New("resolved targeting set is empty")
	ErrNoTemplateBound   = errors.New("campaign has no template bound")
	ErrTooManyRecipients = errors.New("targeting set exceeds the per-campaign recipient limit")
	ErrInvalidTargetURL  = errors.New("delivery target url must be an absolute http(s) url")
	ErrInvalidSchedule   = errors.New("scheduled time must be in the future")
	ErrMissingName       = errors.New("name is required")
	ErrMissingTestEmail  = errors.New("test email address is required")
)

// InvalidStateError reports an operation attempted in a state that does not
// allow it. It unwraps to ErrInvalidState.
type InvalidStateError struct {
	CampaignID string
	Op         string
	Current    domain.CampaignStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("campaign %s: cannot %s while %s", e.CampaignID, e.Op, e.Current)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

package campaign

import (
	"context"
	"time"

	"github.com/ignite/phishsim/internal/domain"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign with its snapshot. Returns ErrNotFound if
	// it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns campaigns matching the given filter, ordered by created_at DESC.
	// Snapshots are not loaded.
	List(ctx context.Context, filter ListFilter) ([]domain.Campaign, int, error)

	// Create inserts a new campaign.
	Create(ctx context.Context, c *domain.Campaign) error

	// Update modifies the editable fields of a draft campaign.
	Update(ctx context.Context, id string, u UpdateFields) error

	// Delete removes a campaign.
	Delete(ctx context.Context, id string) error

	// Transition persists c's status, timestamps, delivery url, pending
	// targets and (when the stored campaign has none yet) snapshot, but only
	// if the stored status still equals expected. Returns ErrStatusConflict
	// otherwise.
	Transition(ctx context.Context, c *domain.Campaign, expected domain.CampaignStatus) error

	// MarkDeliveryFinished stamps delivery_finished_at if unset.
	MarkDeliveryFinished(ctx context.Context, id string, at time.Time) error

	// ListDue returns scheduled campaigns whose scheduled_at is at or before now.
	ListDue(ctx context.Context, now time.Time) ([]domain.Campaign, error)

	// ListDeliveredBefore returns active campaigns whose delivery finished at
	// or before cutoff.
	ListDeliveredBefore(ctx context.Context, cutoff time.Time) ([]domain.Campaign, error)

	// ListUndelivered returns active campaigns with no delivery_finished_at.
	ListUndelivered(ctx context.Context) ([]domain.Campaign, error)

	// IsRecipientTargeted reports whether any snapshot contains recipientID.
	IsRecipientTargeted(ctx context.Context, recipientID string) (bool, error)

	// CountByTemplate returns how many campaigns bind templateID and how many
	// of those are past draft.
	CountByTemplate(ctx context.Context, templateID string) (total, nonDraft int, err error)
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status string
	Search string
	Limit  int
	Offset int
}

// UpdateFields holds the mutable fields for a campaign update.
// Nil fields are not applied.
type UpdateFields struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	TemplateID  *string `json:"template_id"`
}

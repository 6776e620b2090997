package template

import (
	"context"

	"github.com/ignite/phishsim/internal/domain"
)

// Repository defines the data access contract for templates.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single template. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Template, error)

	// List returns templates matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]domain.Template, error)

	Create(ctx context.Context, t *domain.Template) error

	// Update overwrites an existing template in place.
	Update(ctx context.Context, t *domain.Template) error

	Delete(ctx context.Context, id string) error

	// MarkUsed locks the template against in-place edits and increments its
	// usage count.
	MarkUsed(ctx context.Context, id string) error

	// Categories returns the distinct non-empty categories.
	Categories(ctx context.Context) ([]string, error)
}

// CampaignRefs reports how campaigns reference a template.
type CampaignRefs interface {
	// CountByTemplate returns the number of campaigns bound to templateID and
	// how many of those have left the draft state.
	CountByTemplate(ctx context.Context, templateID string) (total, nonDraft int, err error)
}

// ListFilter narrows template lists.
type ListFilter struct {
	Category string
	Search   string
}

// UpdateFields holds the mutable fields for a template update.
// Nil fields are not applied.
type UpdateFields struct {
	Name      *string   `json:"name"`
	Subject   *string   `json:"subject"`
	Body      *string   `json:"body"`
	Variables *[]string `json:"variables"`
	Category  *string   `json:"category"`
}

package recipient

import (
	"context"

	"github.com/ignite/phishsim/internal/domain"
)

// Repository defines the data access contract for recipients and groups.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single recipient. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Recipient, error)

	// GetByEmail looks a recipient up by normalized email. Returns ErrNotFound
	// if no recipient has that address.
	GetByEmail(ctx context.Context, email string) (*domain.Recipient, error)

	// List returns recipients matching the filter, ordered by created_at.
	List(ctx context.Context, filter ListFilter) ([]domain.Recipient, int, error)

	// Create inserts a recipient. Returns ErrDuplicateEmail if the normalized
	// email is already taken.
	Create(ctx context.Context, r *domain.Recipient) error

	// Update overwrites the mutable fields of an existing recipient.
	Update(ctx context.Context, r *domain.Recipient) error

	// Delete removes a recipient and all of its group memberships.
	Delete(ctx context.Context, id string) error

	// CountByDepartment returns recipient counts keyed by department.
	CountByDepartment(ctx context.Context) (map[string]int, error)

	GetGroup(ctx context.Context, id string) (*domain.RecipientGroup, error)
	ListGroups(ctx context.Context) ([]domain.RecipientGroup, error)

	// CreateGroup inserts a group. Returns ErrDuplicateGroupName if the name
	// is already taken.
	CreateGroup(ctx context.Context, g *domain.RecipientGroup) error
	DeleteGroup(ctx context.Context, id string) error

	// AddMember and RemoveMember are no-ops when the membership is already
	// in the requested state.
	AddMember(ctx context.Context, groupID, recipientID string) error
	RemoveMember(ctx context.Context, groupID, recipientID string) error

	// Members returns the current members of a group in membership order.
	Members(ctx context.Context, groupID string) ([]domain.Recipient, error)
}

// SnapshotIndex answers whether any campaign snapshot references a recipient.
type SnapshotIndex interface {
	IsRecipientTargeted(ctx context.Context, recipientID string) (bool, error)
}

// ListFilter controls pagination and filtering for recipient lists.
type ListFilter struct {
	Department string
	GroupID    string
	Search     string
	Limit      int
	Offset     int
}

// UpdateFields holds the mutable fields for a recipient update.
// Nil fields are not applied.
type UpdateFields struct {
	Email      *string `json:"email"`
	Name       *string `json:"name"`
	Department *string `json:"department"`
	Position   *string `json:"position"`
	Phone      *string `json:"phone"`
}

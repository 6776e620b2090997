package engagement

import (
	"context"

	"github.com/ignite/phishsim/internal/domain"
)

// Repository is the append-only event store.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Append stores e unless an event with the same (campaign, recipient,
	// kind) exists. Returns false for a duplicate.
	Append(ctx context.Context, e domain.EngagementEvent) (bool, error)

	// KindsFor returns the kinds already recorded for one pair.
	KindsFor(ctx context.Context, campaignID, recipientID string) ([]domain.EventKind, error)

	// ListByCampaign returns every event of a campaign ordered by occurred_at.
	ListByCampaign(ctx context.Context, campaignID string) ([]domain.EngagementEvent, error)

	// Recent returns the latest events across all campaigns, newest first.
	Recent(ctx context.Context, limit int) ([]domain.EngagementEvent, error)
}

// CampaignLookup loads a campaign with its snapshot.
type CampaignLookup interface {
	Get(ctx context.Context, id string) (*domain.Campaign, error)
}

// Listener is told about kinds newly recorded for a snapshot entry.
type Listener interface {
	EventsRecorded(ctx context.Context, c *domain.Campaign, target domain.SnapshotEntry, kinds []domain.EventKind)
}

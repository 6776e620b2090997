package analytics

import (
	"context"

	"github.com/ignite/phishsim/internal/domain"
)

// CampaignReader loads campaigns with their snapshots.
type CampaignReader interface {
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	ListWithSnapshots(ctx context.Context) ([]domain.Campaign, error)
}

// EventReader reads recorded engagement events.
type EventReader interface {
	ListByCampaign(ctx context.Context, campaignID string) ([]domain.EngagementEvent, error)
	Recent(ctx context.Context, limit int) ([]domain.EngagementEvent, error)
}

// RecipientCounter reports the registry size.
type RecipientCounter interface {
	Count(ctx context.Context) (int, error)
}

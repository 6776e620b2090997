package campaign

import (
	"context"

	"github.com/ignite/phishsim/internal/domain"
)

// TargetResolver expands recipient and group ids into current recipients.
type TargetResolver interface {
	ResolveTargets(ctx context.Context, spec domain.TargetSpec) ([]domain.Recipient, error)
}

// TemplateBinder is the part of the template store the controller needs.
type TemplateBinder interface {
	Get(ctx context.Context, id string) (*domain.Template, error)
	MarkLaunched(ctx context.Context, id string) error
	CheckDeliverable(ctx context.Context, id string) error
}

// Dispatcher is the external delivery collaborator. Dispatch must return
// promptly; sending happens asynchronously. Stop is advisory: sends already
// issued are not recalled.
type Dispatcher interface {
	Dispatch(ctx context.Context, c *domain.Campaign) error
	Stop(campaignID string)
	SendTest(ctx context.Context, c *domain.Campaign, email string) error
}

// Locker serializes work per key. The returned release func must be called
// exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// Observer is notified after every committed lifecycle transition.
type Observer interface {
	CampaignTransitioned(ctx context.Context, c *domain.Campaign, from domain.CampaignStatus)
}

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(context.Context, *domain.Campaign) error { return nil }
func (noopDispatcher) Stop(string) {}
func (noopDispatcher) SendTest(context.Context, *domain.Campaign, string) error { return nil }

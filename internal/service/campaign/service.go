package campaign

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/phishsim/internal/domain"
	"github.com/ignite/phishsim/internal/pkg/distlock"
	"github.com/ignite/phishsim/internal/pkg/logger"
)

// Service implements the campaign controller. All public methods are safe
// for concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo          Repository
	targets       TargetResolver
	templates     TemplateBinder
	dispatcher    Dispatcher
	locks         Locker
	observers     []Observer
	maxRecipients int
	now           func() time.Time
}

// NewService creates a campaign controller. Delivery is a no-op and locking
// is in-process until SetDispatcher and SetLocker are called.
func NewService(repo Repository, targets TargetResolver, templates TemplateBinder) *Service {
	return &Service{
		repo:       repo,
		targets:    targets,
		templates:  templates,
		dispatcher: noopDispatcher{},
		locks:      distlock.NewKeyedMutex(),
		now:        time.Now,
	}
}

// SetDispatcher wires the delivery collaborator.
func (s *Service) SetDispatcher(d Dispatcher) { s.dispatcher = d }

// SetLocker replaces the per-campaign lock, e.g. with a Redis-backed one
// when several processes share the store.
func (s *Service) SetLocker(l Locker) { s.locks = l }

// AddObserver registers a listener for committed transitions.
func (s *Service) AddObserver(o Observer) { s.observers = append(s.observers, o) }

// SetMaxRecipients caps the size of a targeting snapshot. Zero means no cap.
func (s *Service) SetMaxRecipients(n int) { s.maxRecipients = n }

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	TemplateID  string `json:"template_id"`
}

// LaunchInput names the targeting set and the landing page for a launch.
type LaunchInput struct {
	RecipientIDs      []string `json:"recipient_ids"`
	GroupIDs          []string `json:"group_ids"`
	DeliveryTargetURL string   `json:"delivery_target_url"`
}

func (in LaunchInput) spec() domain.TargetSpec {
	return domain.TargetSpec{RecipientIDs: in.RecipientIDs, GroupIDs: in.GroupIDs}
}

// ScheduleInput is a LaunchInput deferred until At.
type ScheduleInput struct {
	LaunchInput
	At time.Time `json:"scheduled_at"`
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Campaign, int, error) {
	return s.repo.List(ctx, f)
}

// Create persists a new campaign in draft status. The template binding is
// optional until launch.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Campaign, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrMissingName
	}

	now := s.now().UTC()
	c := &domain.Campaign{
		ID:          uuid.New().String(),
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Status:      domain.CampaignDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if tid := strings.TrimSpace(input.TemplateID); tid != "" {
		if _, err := s.templates.Get(ctx, tid); err != nil {
			return nil, fmt.Errorf("bind template: %w", err)
		}
		c.TemplateID = &tid
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Edit modifies name, description or template binding. Only draft campaigns
// can be edited. An empty template id unbinds the template.
func (s *Service) Edit(ctx context.Context, id string, u UpdateFields) (*domain.Campaign, error) {
	release, err := s.locks.Lock(ctx, lockKey(id))
	if err != nil {
		return nil, err
	}
	defer release()

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.CampaignDraft {
		return nil, &InvalidStateError{CampaignID: id, Op: "edit", Current: c.Status}
	}
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, ErrMissingName
		}
		u.Name = &name
	}
	if u.TemplateID != nil {
		tid := strings.TrimSpace(*u.TemplateID)
		if tid != "" {
			if _, err := s.templates.Get(ctx, tid); err != nil {
				return nil, fmt.Errorf("bind template: %w", err)
			}
		}
		u.TemplateID = &tid
	}

	if err := s.repo.Update(ctx, id, u); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Delete removes a draft campaign. Campaigns with history are retained.
func (s *Service) Delete(ctx context.Context, id string) error {
	release, err := s.locks.Lock(ctx, lockKey(id))
	if err != nil {
		return err
	}
	defer release()

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignDraft {
		return &InvalidStateError{CampaignID: id, Op: "delete", Current: c.Status}
	}
	return s.repo.Delete(ctx, id)
}

// Launch starts or resumes delivery.
//
// From draft or scheduled the requested recipients and groups are resolved
// through the registry now, deduplicated and frozen as the snapshot, and the
// launch time is stamped. From paused the existing snapshot is reused and
// the requested targets are ignored. Delivery is requested for every
// snapshot recipient not yet sent; Launch does not wait for it.
func (s *Service) Launch(ctx context.Context, id string, in LaunchInput) (*domain.Campaign, error) {
	release, err := s.locks.Lock(ctx, lockKey(id))
	if err != nil {
		return nil, err
	}
	defer release()

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := c.Status
	if !from.CanTransitionTo(domain.CampaignActive) {
		return nil, &InvalidStateError{CampaignID: id, Op: "launch", Current: from}
	}
	if c.TemplateID == nil || *c.TemplateID == "" {
		return nil, ErrNoTemplateBound
	}
	if err := s.templates.CheckDeliverable(ctx, *c.TemplateID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	firstLaunch := from != domain.CampaignPaused
	if firstLaunch {
		spec := in.spec()
		if spec.Empty() && c.PendingTargets != nil {
			spec = *c.PendingTargets
		}
		target := strings.TrimSpace(in.DeliveryTargetURL)
		if target == "" {
			target = c.DeliveryTargetURL
		}
		if err := validateTargetURL(target); err != nil {
			return nil, err
		}

		resolved, err := s.targets.ResolveTargets(ctx, spec)
		if err != nil {
			return nil, err
		}
		if len(resolved) == 0 {
			return nil, ErrEmptyTargetSet
		}
		if s.maxRecipients > 0 && len(resolved) > s.maxRecipients {
			return nil, fmt.Errorf("%w: %d > %d", ErrTooManyRecipients, len(resolved), s.maxRecipients)
		}

		snapshot := make([]domain.SnapshotEntry, 0, len(resolved))
		for i := range resolved {
			snapshot = append(snapshot, resolved[i].SnapshotEntry())
		}
		c.Snapshot = snapshot
		c.DeliveryTargetURL = target
		c.PendingTargets = nil
		c.LaunchedAt = &now
	} else if len(c.Snapshot) == 0 {
		return nil, ErrEmptyTargetSet
	}

	c.Status = domain.CampaignActive
	c.UpdatedAt = now
	if err := s.commit(ctx, c, from, "launch"); err != nil {
		return nil, err
	}

	if firstLaunch {
		if err := s.templates.MarkLaunched(ctx, *c.TemplateID); err != nil {
			log.Printf("[campaign.Service] mark template %s launched: %v", *c.TemplateID, err)
		}
	}
	if err := s.dispatcher.Dispatch(context.WithoutCancel(ctx), c); err != nil {
		log.Printf("[campaign.Service] Campaign %s: dispatch request failed: %v", id, err)
	}

	log.Printf("[campaign.Service] Campaign %s: %s -> active (%d targets)", id, from, len(c.Snapshot))
	return c, nil
}

// Pause stops further sends for an active campaign. In-flight sends are not
// revoked.
func (s *Service) Pause(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.simpleTransition(ctx, id, "pause", domain.CampaignPaused, func(c *domain.Campaign) bool {
		return c.Status == domain.CampaignActive
	})
}

// Cancel ends a campaign that has not completed. Cancelled is absorbing.
func (s *Service) Cancel(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.simpleTransition(ctx, id, "cancel", domain.CampaignCancelled, nil)
}

// Complete marks an active campaign as finished. It is driven by the
// delivery side once sending and the observation window are over, and is
// not exposed as a user action.
func (s *Service) Complete(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.simpleTransition(ctx, id, "complete", domain.CampaignCompleted, func(c *domain.Campaign) bool {
		return c.Status == domain.CampaignActive
	})
}

// Schedule defers a draft launch until in.At. The targeting request is kept
// and resolved when the scheduler launches the campaign.
func (s *Service) Schedule(ctx context.Context, id string, in ScheduleInput) (*domain.Campaign, error) {
	release, err := s.locks.Lock(ctx, lockKey(id))
	if err != nil {
		return nil, err
	}
	defer release()

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := c.Status
	if from != domain.CampaignDraft {
		return nil, &InvalidStateError{CampaignID: id, Op: "schedule", Current: from}
	}
	if !in.At.After(s.now()) {
		return nil, ErrInvalidSchedule
	}
	if err := validateTargetURL(strings.TrimSpace(in.DeliveryTargetURL)); err != nil {
		return nil, err
	}
	spec := in.spec()
	if spec.Empty() {
		return nil, ErrEmptyTargetSet
	}
	if c.TemplateID == nil || *c.TemplateID == "" {
		return nil, ErrNoTemplateBound
	}
	if err := s.templates.CheckDeliverable(ctx, *c.TemplateID); err != nil {
		return nil, err
	}

	at := in.At.UTC()
	c.Status = domain.CampaignScheduled
	c.ScheduledAt = &at
	c.PendingTargets = &spec
	c.DeliveryTargetURL = strings.TrimSpace(in.DeliveryTargetURL)
	c.UpdatedAt = s.now().UTC()
	if err := s.commit(ctx, c, from, "schedule"); err != nil {
		return nil, err
	}
	return c, nil
}

// Unschedule returns a scheduled campaign to draft.
func (s *Service) Unschedule(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.simpleTransition(ctx, id, "unschedule", domain.CampaignDraft, func(c *domain.Campaign) bool {
		if c.Status != domain.CampaignScheduled {
			return false
		}
		c.ScheduledAt = nil
		c.PendingTargets = nil
		return true
	})
}

// DueForLaunch returns scheduled campaigns whose time has come.
func (s *Service) DueForLaunch(ctx context.Context) ([]domain.Campaign, error) {
	return s.repo.ListDue(ctx, s.now().UTC())
}

// DeliveredBefore returns active campaigns whose delivery finished at or
// before cutoff.
func (s *Service) DeliveredBefore(ctx context.Context, cutoff time.Time) ([]domain.Campaign, error) {
	return s.repo.ListDeliveredBefore(ctx, cutoff)
}

// Undelivered returns active campaigns whose delivery never finished, e.g.
// because the process stopped mid-run.
func (s *Service) Undelivered(ctx context.Context) ([]domain.Campaign, error) {
	return s.repo.ListUndelivered(ctx)
}

// ResumeDelivery asks the dispatcher to continue an active campaign whose
// delivery has not finished. Recipients already sent to are skipped by the
// dispatcher, so resuming a campaign that is still being delivered only
// restarts its run.
func (s *Service) ResumeDelivery(ctx context.Context, id string) error {
	release, err := s.locks.Lock(ctx, lockKey(id))
	if err != nil {
		return err
	}
	defer release()

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignActive {
		return &InvalidStateError{CampaignID: id, Op: "resume delivery", Current: c.Status}
	}
	if c.DeliveryFinishedAt != nil {
		return nil
	}
	if err := s.dispatcher.Dispatch(context.WithoutCancel(ctx), c); err != nil {
		return fmt.Errorf("dispatch campaign %s: %w", id, err)
	}
	log.Printf("[campaign.Service] Campaign %s: delivery resumed (%d targets)", id, len(c.Snapshot))
	return nil
}

// MarkDeliveryFinished records that the dispatcher has processed every
// snapshot recipient. It does not change the lifecycle state.
func (s *Service) MarkDeliveryFinished(ctx context.Context, id string) error {
	return s.repo.MarkDeliveryFinished(ctx, id, s.now().UTC())
}

// SendTest renders the campaign's template for a single address and sends
// it outside the campaign. No state changes and no events are recorded.
func (s *Service) SendTest(ctx context.Context, id, email string) error {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return ErrMissingTestEmail
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.TemplateID == nil || *c.TemplateID == "" {
		return ErrNoTemplateBound
	}
	if err := s.dispatcher.SendTest(ctx, c, email); err != nil {
		return fmt.Errorf("send test: %w", err)
	}
	log.Printf("[campaign.Service] Campaign %s: test message sent to %s", id, logger.RedactEmail(email))
	return nil
}

// simpleTransition moves a campaign to `to` when allow (if given) accepts the
// current campaign and the transition table permits it. allow may adjust
// fields on c before it is persisted.
func (s *Service) simpleTransition(ctx context.Context, id, op string, to domain.CampaignStatus, allow func(c *domain.Campaign) bool) (*domain.Campaign, error) {
	release, err := s.locks.Lock(ctx, lockKey(id))
	if err != nil {
		return nil, err
	}
	defer release()

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := c.Status
	if !from.CanTransitionTo(to) || (allow != nil && !allow(c)) {
		return nil, &InvalidStateError{CampaignID: id, Op: op, Current: from}
	}

	now := s.now().UTC()
	c.Status = to
	c.UpdatedAt = now
	if to == domain.CampaignCompleted {
		c.CompletedAt = &now
	}
	if err := s.commit(ctx, c, from, op); err != nil {
		return nil, err
	}
	if from == domain.CampaignActive {
		// still under the campaign lock, so a resume cannot slip in first
		s.dispatcher.Stop(id)
	}
	log.Printf("[campaign.Service] Campaign %s: %s -> %s", id, from, to)
	return c, nil
}

// commit persists a transition with a compare-and-swap on the previous
// status. Losing the race reports the status that won.
func (s *Service) commit(ctx context.Context, c *domain.Campaign, from domain.CampaignStatus, op string) error {
	if err := s.repo.Transition(ctx, c, from); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			cur, gerr := s.repo.Get(ctx, c.ID)
			if gerr != nil {
				return gerr
			}
			return &InvalidStateError{CampaignID: c.ID, Op: op, Current: cur.Status}
		}
		return fmt.Errorf("%s campaign %s: %w", op, c.ID, err)
	}
	for _, o := range s.observers {
		o.CampaignTransitioned(ctx, c, from)
	}
	return nil
}

func lockKey(id string) string { return "campaign:" + id }

func validateTargetURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidTargetURL
	}
	return nil
}

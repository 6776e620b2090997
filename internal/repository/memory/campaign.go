package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ignite/phishsim/internal/domain"
	"github.com/ignite/phishsim/internal/service/campaign"
	"github.com/ignite/phishsim/internal/service/recipient"
)

// CampaignRepo implements campaign.Repository in memory.
type CampaignRepo struct{ s *Store }

func copyCampaign(c *domain.Campaign, withSnapshot bool) domain.Campaign {
	cp := *c
	if c.TemplateID != nil {
		v := *c.TemplateID
		cp.TemplateID = &v
	}
	if c.PendingTargets != nil {
		pt := domain.TargetSpec{
			RecipientIDs: append([]string(nil), c.PendingTargets.RecipientIDs...),
			GroupIDs:     append([]string(nil), c.PendingTargets.GroupIDs...),
		}
		cp.PendingTargets = &pt
	}
	cp.ScheduledAt = copyTime(c.ScheduledAt)
	cp.LaunchedAt = copyTime(c.LaunchedAt)
	cp.DeliveryFinishedAt = copyTime(c.DeliveryFinishedAt)
	cp.CompletedAt = copyTime(c.CompletedAt)
	if withSnapshot {
		cp.Snapshot = append([]domain.SnapshotEntry(nil), c.Snapshot...)
	} else {
		cp.Snapshot = nil
	}
	return cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func (r *CampaignRepo) Get(_ context.Context, id string) (*domain.Campaign, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	cp := copyCampaign(c, true)
	return &cp, nil
}

func (r *CampaignRepo) sorted(filter func(*domain.Campaign) bool, withSnapshot bool) []domain.Campaign {
	var out []domain.Campaign
	for _, c := range r.s.campaigns {
		if filter != nil && !filter(c) {
			continue
		}
		out = append(out, copyCampaign(c, withSnapshot))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *CampaignRepo) List(_ context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := r.sorted(func(c *domain.Campaign) bool {
		if f.Status != "" && string(c.Status) != f.Status {
			return false
		}
		return search == "" || strings.Contains(strings.ToLower(c.Name), search)
	}, false)

	total := len(out)
	if f.Offset >= len(out) {
		return nil, total, nil
	}
	end := f.Offset + f.Limit
	if end > len(out) || f.Limit <= 0 {
		end = len(out)
	}
	return out[f.Offset:end], total, nil
}

// ListWithSnapshots returns every campaign with its snapshot loaded.
func (r *CampaignRepo) ListWithSnapshots(_ context.Context) ([]domain.Campaign, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.sorted(nil, true), nil
}

func (r *CampaignRepo) Create(_ context.Context, c *domain.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := copyCampaign(c, true)
	r.s.campaigns[cp.ID] = &cp
	return nil
}

func (r *CampaignRepo) Update(_ context.Context, id string, u campaign.UpdateFields) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.Description != nil {
		c.Description = *u.Description
	}
	if u.TemplateID != nil {
		if *u.TemplateID == "" {
			c.TemplateID = nil
		} else {
			v := *u.TemplateID
			c.TemplateID = &v
		}
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *CampaignRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.campaigns[id]; !ok {
		return campaign.ErrNotFound
	}
	delete(r.s.campaigns, id)
	return nil
}

func (r *CampaignRepo) Transition(_ context.Context, c *domain.Campaign, expected domain.CampaignStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.campaigns[c.ID]
	if !ok {
		return campaign.ErrNotFound
	}
	if cur.Status != expected {
		return campaign.ErrStatusConflict
	}
	next := copyCampaign(c, true)
	if len(cur.Snapshot) > 0 {
		// a frozen snapshot is never replaced
		next.Snapshot = cur.Snapshot
		next.LaunchedAt = cur.LaunchedAt
	} else {
		for _, e := range next.Snapshot {
			if _, ok := r.s.recipients[e.RecipientID]; !ok {
				return fmt.Errorf("snapshot recipient %s: %w", e.RecipientID, recipient.ErrNotFound)
			}
		}
	}
	next.Name = cur.Name
	next.Description = cur.Description
	next.TemplateID = cur.TemplateID
	next.CreatedAt = cur.CreatedAt
	next.DeliveryFinishedAt = cur.DeliveryFinishedAt
	r.s.campaigns[c.ID] = &next
	return nil
}

func (r *CampaignRepo) MarkDeliveryFinished(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return campaign.ErrNotFound
	}
	if c.DeliveryFinishedAt == nil {
		c.DeliveryFinishedAt = &at
	}
	return nil
}

func (r *CampaignRepo) ListDue(_ context.Context, now time.Time) ([]domain.Campaign, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.sorted(func(c *domain.Campaign) bool {
		return c.Status == domain.CampaignScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now)
	}, false), nil
}

func (r *CampaignRepo) ListDeliveredBefore(_ context.Context, cutoff time.Time) ([]domain.Campaign, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.sorted(func(c *domain.Campaign) bool {
		return c.Status == domain.CampaignActive && c.DeliveryFinishedAt != nil && !c.DeliveryFinishedAt.After(cutoff)
	}, false), nil
}

func (r *CampaignRepo) ListUndelivered(_ context.Context) ([]domain.Campaign, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.sorted(func(c *domain.Campaign) bool {
		return c.Status == domain.CampaignActive && c.DeliveryFinishedAt == nil
	}, false), nil
}

func (r *CampaignRepo) IsRecipientTargeted(_ context.Context, recipientID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.targetedLocked(recipientID), nil
}

// targetedLocked reports whether any snapshot holds recipientID. Callers
// hold s.mu.
func (s *Store) targetedLocked(recipientID string) bool {
	for _, c := range s.campaigns {
		for _, e := range c.Snapshot {
			if e.RecipientID == recipientID {
				return true
			}
		}
	}
	return false
}

func (r *CampaignRepo) CountByTemplate(_ context.Context, templateID string) (int, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var total, nonDraft int
	for _, c := range r.s.campaigns {
		if c.TemplateID == nil || *c.TemplateID != templateID {
			continue
		}
		total++
		if c.Status != domain.CampaignDraft {
			nonDraft++
		}
	}
	return total, nonDraft, nil
}

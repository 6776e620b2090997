package memory

import (
	"context"
	"sort"

	"github.com/ignite/phishsim/internal/domain"
)

// EventRepo implements engagement.Repository in memory.
type EventRepo struct{ s *Store }

func (r *EventRepo) Append(_ context.Context, e domain.EngagementEvent) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := eventKey{campaignID: e.CampaignID, recipientID: e.RecipientID, kind: e.Kind}
	if _, dup := r.s.events[key]; dup {
		return false, nil
	}
	if e.Client != nil {
		c := *e.Client
		e.Client = &c
	}
	r.s.events[key] = e
	r.s.eventLog = append(r.s.eventLog, e)
	return true, nil
}

func (r *EventRepo) KindsFor(_ context.Context, campaignID, recipientID string) ([]domain.EventKind, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.EventKind
	for _, k := range domain.AllEventKinds {
		if _, ok := r.s.events[eventKey{campaignID: campaignID, recipientID: recipientID, kind: k}]; ok {
			out = append(out, k)
		}
	}
	return out, nil
}

func (r *EventRepo) ListByCampaign(_ context.Context, campaignID string) ([]domain.EngagementEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.EngagementEvent
	for _, e := range r.s.eventLog {
		if e.CampaignID == campaignID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

func (r *EventRepo) Recent(_ context.Context, limit int) ([]domain.EngagementEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := append([]domain.EngagementEvent(nil), r.s.eventLog...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

package engagement

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ignite/phishsim/internal/domain"
	"github.com/ignite/phishsim/internal/pkg/distlock"
)

// Service implements the engagement tracker.
type Service struct {
	repo      Repository
	campaigns CampaignLookup
	locks     *distlock.KeyedMutex
	listeners []Listener
}

// NewService creates a tracker over the given event store.
func NewService(repo Repository, campaigns CampaignLookup) *Service {
	return &Service{repo: repo, campaigns: campaigns, locks: distlock.NewKeyedMutex()}
}

// AddListener registers a listener for newly recorded kinds.
func (s *Service) AddListener(l Listener) { s.listeners = append(s.listeners, l) }

// RecordEvent records kind for a snapshot recipient at ts, backfilling any
// earlier kinds that are missing at the same timestamp. It returns the kinds
// actually written, in stage order; a pure duplicate returns none and no
// error. A report never backfills.
func (s *Service) RecordEvent(ctx context.Context, campaignID, recipientID string, kind domain.EventKind, ts time.Time) ([]domain.EventKind, error) {
	return s.RecordObserved(ctx, campaignID, recipientID, kind, ts, domain.ClientInfo{})
}

// RecordObserved is RecordEvent for an interaction seen at the tracking
// edge. The client is stored on the observed kind only.
func (s *Service) RecordObserved(ctx context.Context, campaignID, recipientID string, kind domain.EventKind, ts time.Time, client domain.ClientInfo) ([]domain.EventKind, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	c, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !c.Launched() || len(c.Snapshot) == 0 {
		return nil, ErrInvalidCampaignState
	}
	target, ok := c.Target(recipientID)
	if !ok {
		return nil, ErrUnknownTarget
	}

	release, err := s.locks.Lock(ctx, campaignID+"|"+recipientID)
	if err != nil {
		return nil, err
	}
	recorded, err := s.record(ctx, campaignID, recipientID, kind, ts.UTC(), client)
	release()
	if err != nil {
		return recorded, err
	}

	if len(recorded) > 0 {
		for _, l := range s.listeners {
			l.EventsRecorded(ctx, c, target, recorded)
		}
	}
	return recorded, nil
}

func (s *Service) record(ctx context.Context, campaignID, recipientID string, kind domain.EventKind, ts time.Time, client domain.ClientInfo) ([]domain.EventKind, error) {
	existing, err := s.repo.KindsFor(ctx, campaignID, recipientID)
	if err != nil {
		return nil, fmt.Errorf("load recorded kinds: %w", err)
	}
	have := make(map[domain.EventKind]bool, len(existing))
	for _, k := range existing {
		have[k] = true
	}

	var recorded []domain.EventKind
	for _, k := range domain.KindsThrough(kind) {
		if have[k] {
			continue
		}
		e := domain.EngagementEvent{
			CampaignID:  campaignID,
			RecipientID: recipientID,
			Kind:        k,
			OccurredAt:  ts,
		}
		if k == kind && !client.Empty() {
			c := client
			e.Client = &c
		}
		inserted, err := s.repo.Append(ctx, e)
		if err != nil {
			return recorded, fmt.Errorf("append %s event: %w", k, err)
		}
		if inserted {
			recorded = append(recorded, k)
		}
	}
	if len(recorded) > 1 {
		log.Printf("[engagement.Service] campaign %s recipient %s: %s backfilled %v", campaignID, recipientID, kind, recorded[:len(recorded)-1])
	}
	return recorded, nil
}

// Events returns every recorded event of a campaign.
func (s *Service) Events(ctx context.Context, campaignID string) ([]domain.EngagementEvent, error) {
	return s.repo.ListByCampaign(ctx, campaignID)
}

// Recent returns the latest events across all campaigns.
func (s *Service) Recent(ctx context.Context, limit int) ([]domain.EngagementEvent, error) {
	return s.repo.Recent(ctx, limit)
}

// SentRecipients returns the ids of recipients already marked sent.
func (s *Service) SentRecipients(ctx context.Context, campaignID string) (map[string]bool, error) {
	events, err := s.repo.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	sent := make(map[string]bool)
	for _, e := range events {
		if e.Kind == domain.EventSent {
			sent[e.RecipientID] = true
		}
	}
	return sent, nil
}

// RecipientProgress returns the furthest stage a recipient reached in a
// campaign, or "" if nothing was recorded. Reports are not stages.
func (s *Service) RecipientProgress(ctx context.Context, campaignID, recipientID string) (domain.EventKind, error) {
	kinds, err := s.repo.KindsFor(ctx, campaignID, recipientID)
	if err != nil {
		return "", err
	}
	return furthest(kinds), nil
}

func furthest(kinds []domain.EventKind) domain.EventKind {
	var best domain.EventKind
	for _, k := range kinds {
		if k.Rank() < 0 {
			continue
		}
		if best == "" || k.Rank() > best.Rank() {
			best = k
		}
	}
	return best
}

// TrackingDetail returns one entry per snapshot recipient, in snapshot
// order, with the recipient's events and the client info captured for each.
// A campaign that was never launched has no detail.
func (s *Service) TrackingDetail(ctx context.Context, campaignID string) ([]domain.RecipientTracking, error) {
	c, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	events, err := s.repo.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	byRecipient := make(map[string][]domain.EngagementEvent, len(c.Snapshot))
	for _, e := range events {
		byRecipient[e.RecipientID] = append(byRecipient[e.RecipientID], e)
	}

	out := make([]domain.RecipientTracking, 0, len(c.Snapshot))
	for _, t := range c.Snapshot {
		rt := domain.RecipientTracking{
			RecipientID: t.RecipientID,
			Email:       t.Email,
			Name:        t.Name,
			Department:  t.Department,
			Events:      byRecipient[t.RecipientID],
		}
		if rt.Events == nil {
			rt.Events = []domain.EngagementEvent{}
		}
		kinds := make([]domain.EventKind, 0, len(rt.Events))
		for _, e := range rt.Events {
			kinds = append(kinds, e.Kind)
			if e.Kind == domain.EventReported {
				rt.Reported = true
			}
		}
		rt.Stage = furthest(kinds)
		out = append(out, rt)
	}
	return out, nil
}

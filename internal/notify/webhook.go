// Package notify posts campaign lifecycle and risk alerts to an operator
// webhook.
//
// WebhookNotifier is registered as a campaign Observer (completion) and as
// an engagement Listener (department crossing into high risk). Deliveries
// run in the background with retries; failures are logged and never reach
// the caller.
package notify

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ignite/phishsim/internal/domain"
	"github.com/ignite/phishsim/internal/pkg/httpretry"
	"github.com/ignite/phishsim/internal/service/analytics"
)

const (
	EventCampaignCompleted  = "campaign.completed"
	EventCampaignCancelled  = "campaign.cancelled"
	EventDepartmentHighRisk = "department.high_risk"
)

// Poster delivers a JSON payload. *httpretry.RetryClient implements it.
type Poster interface {
	PostJSON(ctx context.Context, url string, payload any) error
}

// RiskSource supplies analytics for alert payloads.
type RiskSource interface {
	CampaignStats(ctx context.Context, campaignID string) (*domain.CampaignStats, error)
	DepartmentRisk(ctx context.Context) ([]domain.DepartmentRiskSummary, error)
}

// Payload is the body of every webhook call.
type Payload struct {
	Event      string                        `json:"event"`
	OccurredAt time.Time                     `json:"occurred_at"`
	Campaign   *CampaignRef                  `json:"campaign,omitempty"`
	Stats      *domain.CampaignStats         `json:"stats,omitempty"`
	Department *domain.DepartmentRiskSummary `json:"department,omitempty"`
}

// CampaignRef identifies a campaign in a payload.
type CampaignRef struct {
	ID     string                `json:"id"`
	Name   string                `json:"name"`
	Status domain.CampaignStatus `json:"status"`
}

// WebhookNotifier implements campaign.Observer and engagement.Listener.
type WebhookNotifier struct {
	url    string
	poster Poster
	risk   RiskSource
	now    func() time.Time
	wg     sync.WaitGroup

	mu       sync.Mutex
	highRisk map[string]bool
}

// NewWebhookNotifier posts to url, retrying failed deliveries up to
// maxRetries times.
func NewWebhookNotifier(url string, maxRetries int, risk RiskSource) *WebhookNotifier {
	return NewWebhookNotifierWithPoster(url, httpretry.NewRetryClient(nil, maxRetries), risk)
}

func NewWebhookNotifierWithPoster(url string, poster Poster, risk RiskSource) *WebhookNotifier {
	return &WebhookNotifier{
		url:      url,
		poster:   poster,
		risk:     risk,
		now:      time.Now,
		highRisk: make(map[string]bool),
	}
}

// CampaignTransitioned reports completed and cancelled campaigns.
func (n *WebhookNotifier) CampaignTransitioned(ctx context.Context, c *domain.Campaign, from domain.CampaignStatus) {
	var event string
	switch c.Status {
	case domain.CampaignCompleted:
		event = EventCampaignCompleted
	case domain.CampaignCancelled:
		if !c.Launched() {
			return
		}
		event = EventCampaignCancelled
	default:
		return
	}
	ref := &CampaignRef{ID: c.ID, Name: c.Name, Status: c.Status}

	n.async(ctx, func(ctx context.Context) *Payload {
		p := &Payload{Event: event, OccurredAt: n.now().UTC(), Campaign: ref}
		stats, err := n.risk.CampaignStats(ctx, ref.ID)
		if err != nil {
			log.Printf("[notify.Webhook] stats for campaign %s: %v", ref.ID, err)
		} else {
			p.Stats = stats
		}
		return p
	})
}

// EventsRecorded re-evaluates department risk after a submission and alerts
// once per crossing into high risk.
func (n *WebhookNotifier) EventsRecorded(ctx context.Context, c *domain.Campaign, target domain.SnapshotEntry, kinds []domain.EventKind) {
	submitted := false
	for _, k := range kinds {
		if k == domain.EventSubmitted {
			submitted = true
		}
	}
	if !submitted {
		return
	}
	ref := &CampaignRef{ID: c.ID, Name: c.Name, Status: c.Status}
	dept := strings.TrimSpace(target.Department)
	if dept == "" {
		dept = analytics.Unassigned
	}

	n.async(ctx, func(ctx context.Context) *Payload {
		summaries, err := n.risk.DepartmentRisk(ctx)
		if err != nil {
			log.Printf("[notify.Webhook] department risk: %v", err)
			return nil
		}
		var alert *domain.DepartmentRiskSummary
		n.mu.Lock()
		for i := range summaries {
			s := summaries[i]
			switch {
			case s.RiskLevel != domain.RiskHigh:
				delete(n.highRisk, s.Department)
			case s.Department == dept && !n.highRisk[dept]:
				n.highRisk[dept] = true
				alert = &s
			}
		}
		n.mu.Unlock()

		if alert == nil {
			return nil
		}
		return &Payload{Event: EventDepartmentHighRisk, OccurredAt: n.now().UTC(), Campaign: ref, Department: alert}
	})
}

// Wait blocks until every pending delivery has finished.
func (n *WebhookNotifier) Wait() { n.wg.Wait() }

func (n *WebhookNotifier) async(ctx context.Context, build func(ctx context.Context) *Payload) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Minute)
		defer cancel()

		p := build(ctx)
		if p == nil {
			return
		}
		if err := n.poster.PostJSON(ctx, n.url, p); err != nil {
			log.Printf("[notify.Webhook] deliver %s: %v", p.Event, err)
			return
		}
		log.Printf("[notify.Webhook] delivered %s", p.Event)
	}()
}

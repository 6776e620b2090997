package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/ignite/phishsim/internal/domain"
)

// Risk thresholds are fixed policy, not configuration. A department whose
// success rate is strictly above HighRiskThreshold is high risk, strictly
// above MediumRiskThreshold is medium, otherwise low.
const (
	HighRiskThreshold   = 30.0
	MediumRiskThreshold = 15.0
)

// Unassigned labels recipients without a department.
const Unassigned = "Unassigned"

const defaultRecentLimit = 20

// Service implements the analytics aggregator. It never mutates state.
type Service struct {
	campaigns  CampaignReader
	events     EventReader
	recipients RecipientCounter
}

// NewService creates an aggregator over the given readers.
func NewService(campaigns CampaignReader, events EventReader, recipients RecipientCounter) *Service {
	return &Service{campaigns: campaigns, events: events, recipients: recipients}
}

// ClassifyRisk maps a success rate to its risk bucket.
func ClassifyRisk(successRate float64) domain.RiskLevel {
	switch {
	case successRate > HighRiskThreshold:
		return domain.RiskHigh
	case successRate > MediumRiskThreshold:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// Rate returns part/whole as a percentage in [0, 100], or 0 when whole is 0.
func Rate(part, whole int) float64 {
	if whole <= 0 || part <= 0 {
		return 0
	}
	r := float64(part) * 100 / float64(whole)
	if r > 100 {
		return 100
	}
	return r
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// CampaignStats counts each event kind for a campaign and derives its rates.
func (s *Service) CampaignStats(ctx context.Context, campaignID string) (*domain.CampaignStats, error) {
	c, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	events, err := s.events.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	var t tally
	for _, e := range events {
		t.add(e.Kind)
	}
	st := &domain.CampaignStats{
		CampaignID: campaignID,
		Targeted:   len(c.Snapshot),
		Sent:       t.sent,
		Opened:     t.opened,
		Clicked:    t.clicked,
		Submitted:  t.submitted,
		Reported:   t.reported,
	}
	st.OpenRate = round2(Rate(t.opened, t.sent))
	st.ClickRate = round2(Rate(t.clicked, t.sent))
	st.SuccessRate = round2(Rate(t.submitted, t.sent))
	st.ReportRate = round2(Rate(t.reported, t.sent))
	return st, nil
}

// DepartmentRisk groups every targeted recipient across all campaigns by
// the department frozen in the snapshot and classifies each department.
func (s *Service) DepartmentRisk(ctx context.Context) ([]domain.DepartmentRiskSummary, error) {
	campaigns, err := s.campaigns.ListWithSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("load campaigns: %w", err)
	}
	agg := newDepartmentAggregate()
	for i := range campaigns {
		if err := s.accumulate(ctx, agg, &campaigns[i]); err != nil {
			return nil, err
		}
	}
	return agg.summaries(), nil
}

// CampaignDepartmentBreakdown is DepartmentRisk restricted to one campaign.
func (s *Service) CampaignDepartmentBreakdown(ctx context.Context, campaignID string) ([]domain.DepartmentRiskSummary, error) {
	c, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	agg := newDepartmentAggregate()
	if err := s.accumulate(ctx, agg, c); err != nil {
		return nil, err
	}
	return agg.summaries(), nil
}

// OverallDashboard combines campaign counts, the registry size, event
// totals and the department breakdown.
func (s *Service) OverallDashboard(ctx context.Context) (*domain.Dashboard, error) {
	campaigns, err := s.campaigns.ListWithSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("load campaigns: %w", err)
	}
	recipients, err := s.recipients.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count recipients: %w", err)
	}

	d := &domain.Dashboard{
		TotalCampaigns:  len(campaigns),
		TotalRecipients: recipients,
	}
	agg := newDepartmentAggregate()
	for i := range campaigns {
		c := &campaigns[i]
		if c.Status == domain.CampaignActive {
			d.ActiveCampaigns++
		}
		if err := s.accumulate(ctx, agg, c); err != nil {
			return nil, err
		}
	}

	total := agg.total()
	d.TotalEmailsSent = total.sent
	d.TotalEmailsOpened = total.opened
	d.TotalLinksClicked = total.clicked
	d.TotalReported = total.reported
	d.OverallSuccessRate = round2(Rate(total.submitted, total.sent))
	d.OverallReportRate = round2(Rate(total.reported, total.sent))
	d.DepartmentStats = agg.summaries()
	return d, nil
}

// RecentActivity returns the latest events joined with campaign names and
// snapshot departments, newest first.
func (s *Service) RecentActivity(ctx context.Context, limit int) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	events, err := s.events.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load recent events: %w", err)
	}

	cache := make(map[string]*domain.Campaign)
	out := make([]domain.Activity, 0, len(events))
	for _, e := range events {
		c, ok := cache[e.CampaignID]
		if !ok {
			c, err = s.campaigns.Get(ctx, e.CampaignID)
			if err != nil {
				return nil, err
			}
			cache[e.CampaignID] = c
		}
		a := domain.Activity{
			CampaignID:   e.CampaignID,
			CampaignName: c.Name,
			RecipientID:  e.RecipientID,
			Department:   Unassigned,
			Kind:         e.Kind,
			OccurredAt:   e.OccurredAt,
		}
		if t, ok := c.Target(e.RecipientID); ok && t.Department != "" {
			a.Department = t.Department
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Service) accumulate(ctx context.Context, agg *departmentAggregate, c *domain.Campaign) error {
	if len(c.Snapshot) == 0 {
		return nil
	}
	deptOf := make(map[string]string, len(c.Snapshot))
	for _, e := range c.Snapshot {
		dept := e.Department
		if dept == "" {
			dept = Unassigned
		}
		deptOf[e.RecipientID] = dept
		agg.target(dept, e.RecipientID)
	}

	events, err := s.events.ListByCampaign(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("load events for campaign %s: %w", c.ID, err)
	}
	for _, e := range events {
		dept, ok := deptOf[e.RecipientID]
		if !ok {
			continue
		}
		agg.event(dept, e.Kind)
	}
	return nil
}

// =============================================================================
// Aggregation helpers
// =============================================================================

type tally struct {
	sent, opened, clicked, submitted, reported int
}

func (t *tally) add(k domain.EventKind) {
	switch k {
	case domain.EventSent:
		t.sent++
	case domain.EventOpened:
		t.opened++
	case domain.EventClicked:
		t.clicked++
	case domain.EventSubmitted:
		t.submitted++
	case domain.EventReported:
		t.reported++
	}
}

type departmentAggregate struct {
	recipients map[string]map[string]bool
	tallies    map[string]*tally
}

func newDepartmentAggregate() *departmentAggregate {
	return &departmentAggregate{
		recipients: make(map[string]map[string]bool),
		tallies:    make(map[string]*tally),
	}
}

func (a *departmentAggregate) target(dept, recipientID string) {
	if a.recipients[dept] == nil {
		a.recipients[dept] = make(map[string]bool)
		a.tallies[dept] = &tally{}
	}
	a.recipients[dept][recipientID] = true
}

func (a *departmentAggregate) event(dept string, k domain.EventKind) {
	if t := a.tallies[dept]; t != nil {
		t.add(k)
	}
}

func (a *departmentAggregate) total() tally {
	var sum tally
	for _, t := range a.tallies {
		sum.sent += t.sent
		sum.opened += t.opened
		sum.clicked += t.clicked
		sum.submitted += t.submitted
		sum.reported += t.reported
	}
	return sum
}

func (a *departmentAggregate) summaries() []domain.DepartmentRiskSummary {
	out := make([]domain.DepartmentRiskSummary, 0, len(a.tallies))
	for dept, t := range a.tallies {
		// classify the value that is reported
		rate := round2(Rate(t.submitted, t.sent))
		out = append(out, domain.DepartmentRiskSummary{
			Department:     dept,
			RecipientCount: len(a.recipients[dept]),
			Sent:           t.sent,
			Opened:         t.opened,
			Clicked:        t.clicked,
			Submitted:      t.submitted,
			Reported:       t.reported,
			SuccessRate:    rate,
			RiskLevel:      ClassifyRisk(rate),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SuccessRate != out[j].SuccessRate {
			return out[i].SuccessRate > out[j].SuccessRate
		}
		return out[i].Department < out[j].Department
	})
	return out
}

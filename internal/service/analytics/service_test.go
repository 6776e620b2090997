package analytics_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/phishsim/internal/domain"
	"github.com/ignite/phishsim/internal/repository/memory"
	"github.com/ignite/phishsim/internal/service/analytics"
)

type fixedCount int

func (n fixedCount) Count(context.Context) (int, error) { return int(n), nil }

var t0 = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

type fixture struct {
	store *memory.Store
	svc   *analytics.Service
}

func newFixture(registrySize int) *fixture {
	store := memory.NewStore()
	return &fixture{
		store: store,
		svc:   analytics.NewService(store.Campaigns(), store.Events(), fixedCount(registrySize)),
	}
}

// campaign seeds a launched campaign whose snapshot maps recipient id to
// department.
func (f *fixture) campaign(t *testing.T, id string, status domain.CampaignStatus, targets map[string]string) {
	t.Helper()
	at := t0
	c := &domain.Campaign{ID: id, Name: "Campaign " + id, Status: status, LaunchedAt: &at, CreatedAt: t0, UpdatedAt: t0}
	for rid, dept := range targets {
		c.Snapshot = append(c.Snapshot, domain.SnapshotEntry{RecipientID: rid, Email: rid + "@x.com", Name: rid, Department: dept})
	}
	require.NoError(t, f.store.Campaigns().Create(context.Background(), c))
}

// reach records every kind up to k for a recipient.
func (f *fixture) reach(t *testing.T, campaignID, recipientID string, k domain.EventKind, ts time.Time) {
	t.Helper()
	for _, kind := range domain.KindsThrough(k) {
		_, err := f.store.Events().Append(context.Background(), domain.EngagementEvent{
			CampaignID: campaignID, RecipientID: recipientID, Kind: kind, OccurredAt: ts,
		})
		require.NoError(t, err)
	}
}

func TestClassifyRisk(t *testing.T) {
	tests := []struct {
		rate float64
		want domain.RiskLevel
	}{
		{0, domain.RiskLow},
		{15, domain.RiskLow},
		{15.01, domain.RiskMedium},
		{30, domain.RiskMedium},
		{30.01, domain.RiskHigh},
		{100, domain.RiskHigh},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.rate), func(t *testing.T) {
			assert.Equal(t, tt.want, analytics.ClassifyRisk(tt.rate))
		})
	}
}

func TestRate(t *testing.T) {
	assert.Equal(t, 0.0, analytics.Rate(0, 0))
	assert.Equal(t, 0.0, analytics.Rate(5, 0))
	assert.Equal(t, 30.0, analytics.Rate(3, 10))
	assert.Equal(t, 100.0, analytics.Rate(12, 10))
}

func TestCampaignStats(t *testing.T) {
	f := newFixture(0)
	ctx := context.Background()
	f.campaign(t, "c1", domain.CampaignActive, map[string]string{"a": "IT", "b": "IT", "c": "IT", "d": "IT"})
	f.reach(t, "c1", "a", domain.EventSubmitted, t0)
	f.reach(t, "c1", "b", domain.EventClicked, t0)
	f.reach(t, "c1", "c", domain.EventSent, t0)

	st, err := f.svc.CampaignStats(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 4, st.Targeted)
	assert.Equal(t, 3, st.Sent)
	assert.Equal(t, 2, st.Opened)
	assert.Equal(t, 2, st.Clicked)
	assert.Equal(t, 1, st.Submitted)
	assert.Equal(t, 66.67, st.OpenRate)
	assert.Equal(t, 66.67, st.ClickRate)
	assert.Equal(t, 33.33, st.SuccessRate)
}

func TestCampaignStats_NothingSent(t *testing.T) {
	f := newFixture(0)
	f.campaign(t, "c1", domain.CampaignActive, map[string]string{"a": "IT"})

	st, err := f.svc.CampaignStats(context.Background(), "c1")
	require.NoError(t, err)
	assert.Zero(t, st.Sent)
	assert.Zero(t, st.OpenRate)
	assert.Zero(t, st.ClickRate)
	assert.Zero(t, st.SuccessRate)
}

func TestCampaignStats_ReportsCountedOutsideFunnel(t *testing.T) {
	f := newFixture(4)
	ctx := context.Background()
	f.campaign(t, "c1", domain.CampaignActive, map[string]string{"a": "IT", "b": "IT", "c": "Ops", "d": "Ops"})
	f.reach(t, "c1", "a", domain.EventOpened, t0)
	f.reach(t, "c1", "a", domain.EventReported, t0.Add(time.Minute))
	f.reach(t, "c1", "b", domain.EventSent, t0)
	f.reach(t, "c1", "c", domain.EventSent, t0)
	f.reach(t, "c1", "c", domain.EventReported, t0.Add(time.Minute))
	f.reach(t, "c1", "d", domain.EventSent, t0)

	st, err := f.svc.CampaignStats(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 4, st.Sent)
	assert.Equal(t, 1, st.Opened)
	assert.Equal(t, 2, st.Reported)
	assert.Equal(t, 50.0, st.ReportRate)
	assert.Zero(t, st.SuccessRate)

	d, err := f.svc.OverallDashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, d.TotalReported)
	assert.Equal(t, 50.0, d.OverallReportRate)
	for _, dept := range d.DepartmentStats {
		assert.Equal(t, 1, dept.Reported, dept.Department)
	}
}

func TestDepartmentRisk_BoundaryIsMedium(t *testing.T) {
	f := newFixture(10)
	targets := map[string]string{}
	for i := 0; i < 10; i++ {
		targets[fmt.Sprintf("s%d", i)] = "Sales"
	}
	f.campaign(t, "c1", domain.CampaignActive, targets)
	for i := 0; i < 10; i++ {
		kind := domain.EventSent
		if i < 3 {
			kind = domain.EventSubmitted
		}
		f.reach(t, "c1", fmt.Sprintf("s%d", i), kind, t0)
	}

	risk, err := f.svc.DepartmentRisk(context.Background())
	require.NoError(t, err)
	require.Len(t, risk, 1)
	assert.Equal(t, "Sales", risk[0].Department)
	assert.Equal(t, 10, risk[0].RecipientCount)
	assert.Equal(t, 30.0, risk[0].SuccessRate)
	assert.Equal(t, domain.RiskMedium, risk[0].RiskLevel)
}

func TestDepartmentRisk_AcrossCampaignsUsesSnapshotDepartment(t *testing.T) {
	f := newFixture(3)
	ctx := context.Background()
	f.campaign(t, "c1", domain.CampaignCompleted, map[string]string{"a": "Finance", "b": ""})
	f.campaign(t, "c2", domain.CampaignActive, map[string]string{"a": "Finance", "c": "HR"})

	f.reach(t, "c1", "a", domain.EventSubmitted, t0)
	f.reach(t, "c1", "b", domain.EventSent, t0)
	f.reach(t, "c2", "a", domain.EventSent, t0)
	f.reach(t, "c2", "c", domain.EventSent, t0)

	risk, err := f.svc.DepartmentRisk(ctx)
	require.NoError(t, err)
	require.Len(t, risk, 3)

	// Finance: one recipient, 2 sent, 1 submitted
	assert.Equal(t, "Finance", risk[0].Department)
	assert.Equal(t, 1, risk[0].RecipientCount)
	assert.Equal(t, 2, risk[0].Sent)
	assert.Equal(t, 50.0, risk[0].SuccessRate)
	assert.Equal(t, domain.RiskHigh, risk[0].RiskLevel)

	assert.Equal(t, "HR", risk[1].Department)
	assert.Equal(t, analytics.Unassigned, risk[2].Department)
	assert.Equal(t, domain.RiskLow, risk[2].RiskLevel)

	breakdown, err := f.svc.CampaignDepartmentBreakdown(ctx, "c2")
	require.NoError(t, err)
	require.Len(t, breakdown, 2)
	assert.Equal(t, 0.0, breakdown[0].SuccessRate)
}

func TestOverallDashboard(t *testing.T) {
	f := newFixture(25)
	ctx := context.Background()
	f.campaign(t, "c1", domain.CampaignActive, map[string]string{"a": "IT", "b": "IT"})
	f.campaign(t, "c2", domain.CampaignPaused, map[string]string{"c": "Ops"})
	require.NoError(t, f.store.Campaigns().Create(ctx, &domain.Campaign{ID: "draft", Status: domain.CampaignDraft, CreatedAt: t0}))

	f.reach(t, "c1", "a", domain.EventSubmitted, t0)
	f.reach(t, "c1", "b", domain.EventOpened, t0)
	f.reach(t, "c2", "c", domain.EventClicked, t0)

	d, err := f.svc.OverallDashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, d.TotalCampaigns)
	assert.Equal(t, 1, d.ActiveCampaigns)
	assert.Equal(t, 25, d.TotalRecipients)
	assert.Equal(t, 3, d.TotalEmailsSent)
	assert.Equal(t, 3, d.TotalEmailsOpened)
	assert.Equal(t, 2, d.TotalLinksClicked)
	assert.Equal(t, 33.33, d.OverallSuccessRate)
	assert.Len(t, d.DepartmentStats, 2)
}

func TestOverallDashboard_Empty(t *testing.T) {
	f := newFixture(0)
	d, err := f.svc.OverallDashboard(context.Background())
	require.NoError(t, err)
	assert.Zero(t, d.TotalCampaigns)
	assert.Zero(t, d.OverallSuccessRate)
	assert.NotNil(t, d.DepartmentStats)
}

func TestRecentActivity(t *testing.T) {
	f := newFixture(0)
	f.campaign(t, "c1", domain.CampaignActive, map[string]string{"a": "Legal", "b": ""})
	f.reach(t, "c1", "a", domain.EventSent, t0)
	f.reach(t, "c1", "b", domain.EventSent, t0.Add(time.Minute))
	f.reach(t, "c1", "a", domain.EventOpened, t0.Add(2*time.Minute))

	acts, err := f.svc.RecentActivity(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, acts, 2)
	assert.Equal(t, domain.EventOpened, acts[0].Kind)
	assert.Equal(t, "Legal", acts[0].Department)
	assert.Equal(t, "Campaign c1", acts[0].CampaignName)
	assert.Equal(t, analytics.Unassigned, acts[1].Department)
}

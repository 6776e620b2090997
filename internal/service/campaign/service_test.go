package campaign_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/phishsim/internal/domain"
	"github.com/ignite/phishsim/internal/pkg/distlock"
	"github.com/ignite/phishsim/internal/repository/memory"
	"github.com/ignite/phishsim/internal/service/campaign"
	"github.com/ignite/phishsim/internal/service/recipient"
	"github.com/ignite/phishsim/internal/service/template"
)

// fakeDispatcher records delivery requests instead of sending.
type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []string
	stopped    []string
	tests      []string
	running    map[string]bool
}

func (d *fakeDispatcher) Dispatch(_ context.Context, c *domain.Campaign) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatched = append(d.dispatched, c.ID)
	if d.running == nil {
		d.running = make(map[string]bool)
	}
	d.running[c.ID] = true
	return nil
}

func (d *fakeDispatcher) Stop(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = append(d.stopped, id)
	delete(d.running, id)
}

func (d *fakeDispatcher) isRunning(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running[id]
}

func (d *fakeDispatcher) SendTest(_ context.Context, _ *domain.Campaign, email string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tests = append(d.tests, email)
	return nil
}

type recordingObserver struct {
	mu    sync.Mutex
	moves []string
}

func (o *recordingObserver) CampaignTransitioned(_ context.Context, c *domain.Campaign, from domain.CampaignStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.moves = append(o.moves, fmt.Sprintf("%s->%s", from, c.Status))
}

// hookLocker runs afterRelease once, right after the first lock it hands
// out is released.
type hookLocker struct {
	inner        campaign.Locker
	mu           sync.Mutex
	afterRelease func()
}

func (l *hookLocker) Lock(ctx context.Context, key string) (func(), error) {
	release, err := l.inner.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	return func() {
		release()
		l.mu.Lock()
		hook := l.afterRelease
		l.afterRelease = nil
		l.mu.Unlock()
		if hook != nil {
			hook()
		}
	}, nil
}

type fixture struct {
	recipients *recipient.Service
	templates  *template.Service
	svc        *campaign.Service
	disp       *fakeDispatcher
	observer   *recordingObserver
	tmplID     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	campaigns := store.Campaigns()
	f := &fixture{
		recipients: recipient.NewService(store.Recipients(), campaigns),
		templates:  template.NewService(store.Templates(), campaigns),
		disp:       &fakeDispatcher{},
		observer:   &recordingObserver{},
	}
	f.svc = campaign.NewService(campaigns, f.recipients, f.templates)
	f.svc.SetDispatcher(f.disp)
	f.svc.AddObserver(f.observer)

	tmpl, err := f.templates.Create(context.Background(), template.CreateInput{
		Name:      "Password expiry",
		Subject:   "Action required, {{name}}",
		Body:      `<p>Hi {{name}}, reset at <a href="{{phishing_link}}">here</a></p>`,
		Variables: []string{"name", "phishing_link"},
	})
	require.NoError(t, err)
	f.tmplID = tmpl.ID
	return f
}

func (f *fixture) addRecipients(t *testing.T, n int, dept string) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		r, err := f.recipients.AddRecipient(context.Background(), recipient.RecipientInput{
			Name:       fmt.Sprintf("User %s %d", dept, i),
			Email:      fmt.Sprintf("user%d@%s.example", i, dept),
			Department: dept,
		})
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}
	return ids
}

func (f *fixture) draft(t *testing.T) *domain.Campaign {
	t.Helper()
	c, err := f.svc.Create(context.Background(), campaign.CreateInput{Name: "Q3 drill", TemplateID: f.tmplID})
	require.NoError(t, err)
	return c
}

const landing = "https://landing.example/login"

func snapshotIDs(c *domain.Campaign) []string {
	ids := make([]string, 0, len(c.Snapshot))
	for _, e := range c.Snapshot {
		ids = append(ids, e.RecipientID)
	}
	return ids
}

// =============================================================================
// Create / Edit / Delete
// =============================================================================

func TestCreate(t *testing.T) {
	f := newFixture(t)
	c, err := f.svc.Create(context.Background(), campaign.CreateInput{Name: " Drill ", Description: "d"})
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignDraft, c.Status)
	assert.Equal(t, "Drill", c.Name)
	assert.Nil(t, c.TemplateID)
	assert.Nil(t, c.LaunchedAt)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), campaign.CreateInput{Name: "  "})
	assert.ErrorIs(t, err, campaign.ErrMissingName)

	_, err = f.svc.Create(context.Background(), campaign.CreateInput{Name: "x", TemplateID: "missing"})
	assert.ErrorIs(t, err, template.ErrNotFound)
}

func TestEdit_OnlyDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.addRecipients(t, 2, "sales")
	c := f.draft(t)

	name := "Renamed"
	edited, err := f.svc.Edit(ctx, c.ID, campaign.UpdateFields{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", edited.Name)

	_, err = f.svc.Launch(ctx, c.ID, campaign.LaunchInput{RecipientIDs: ids, DeliveryTargetURL: landing})
	require.NoError(t, err)

	_, err = f.svc.Edit(ctx, c.ID, campaign.UpdateFields{Name: &name})
	require.Error(t, err)
	assert.ErrorIs(t, err, campaign.ErrInvalidState)

	var stateErr *campaign.InvalidStateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, c.ID, stateErr.CampaignID)
	assert.Equal(t, "edit", stateErr.Op)
	assert.Equal(t, domain.CampaignActive, stateErr.Current)
}

func TestEdit_UnbindTemplate(t *testing.T) {
	f := newFixture(t)
	c := f.draft(t)
	empty := ""
	edited, err := f.svc.Edit(context.Background(), c.ID, campaign.UpdateFields{TemplateID: &empty})
	require.NoError(t, err)
	assert.Nil(t, edited.TemplateID)
}

func TestDelete_OnlyDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.addRecipients(t, 1, "ops")

	d := f.draft(t)
	require.NoError(t, f.svc.Delete(ctx, d.ID))
	_, err := f.svc.Get(ctx, d.ID)
	assert.ErrorIs(t, err, campaign.ErrNotFound)

	launched := f.draft(t)
	_, err = f.svc.Launch(ctx, launched.ID, campaign.LaunchInput{RecipientIDs: ids, DeliveryTargetURL: landing})
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.Delete(ctx, launched.ID), campaign.ErrInvalidState)
}

// =============================================================================
// Launch
// =============================================================================

func TestLaunch_FreezesDeduplicatedSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.addRecipients(t, 3, "finance")

	g, err := f.recipients.CreateGroup(ctx, "Finance", "")
	require.NoError(t, err)
	require.NoError(t, f.recipients.AddToGroup(ctx, g.ID, ids[0]))
	require.NoError(t, f.recipients.AddToGroup(ctx, g.ID, ids[2]))

	c := f.draft(t)
	launched, err := f.svc.Launch(ctx, c.ID, campaign.LaunchInput{
		RecipientIDs:      []string{ids[0], ids[1], ids[0]},
		GroupIDs:          []string{g.ID},
		DeliveryTargetURL: landing,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignActive, launched.Status)
	require.NotNil(t, launched.LaunchedAt)
	assert.Equal(t, []string{ids[0], ids[1], ids[2]}, snapshotIDs(launched))
	assert.Equal(t, landing, launched.DeliveryTargetURL)
	assert.Equal(t, []string{c.ID}, f.disp.dispatched)
	assert.Equal(t, []string{"draft->active"}, f.observer.moves)

	tmpl, err := f.templates.Get(ctx, f.tmplID)
	require.NoError(t, err)
	assert.True(t, tmpl.Locked)
	assert.Equal(t, 1, tmpl.UsageCount)
}

func TestLaunch_RegistryEditsAfterLaunchDoNotChangeSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.addRecipients(t, 2, "hr")
	g, err := f.recipients.CreateGroup(ctx, "HR", "")
	require.NoError(t, err)
	require.NoError(t, f.recipients.AddToGroup(ctx, g.ID, ids[0]))

	c := f.draft(t)
	_, err = f.svc.Launch(ctx, c.ID, campaign.LaunchInput{GroupIDs: []string{g.ID}, DeliveryTargetURL: landing})
	require.NoError(t, err)

	require.NoError(t, f.recipients.AddToGroup(ctx, g.ID, ids[1]))
	got, err := f.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0]}, snapshotIDs(got))
}

func TestLaunch_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.addRecipients(t, 1, "it")
	emptyGroup, err := f.recipients.CreateGroup(ctx, "Empty", "")
	require.NoError(t, err)

	t.Run("empty target set", func(t *testing.T) {
		c := f.draft(t)
		_, err := f.svc.Launch(ctx, c.ID, campaign.LaunchInput{GroupIDs: []string{emptyGroup.ID}, DeliveryTargetURL: landing})
		assert.ErrorIs(t, err, campaign.ErrEmptyTargetSet)
		got, _ := f.svc.Get(ctx, c.ID)
		assert.Equal(t, domain.CampaignDraft, got.Status)
		assert.Empty(t, got.Snapshot)
	})

	t.Run("no template bound", func(t *testing.T) {
		c, err := f.svc.Create(ctx, campaign.CreateInput{Name: "bare"})
		require.NoError(t, err)
		_, err = f.svc.Launch(ctx, c.ID, campaign.LaunchInput{RecipientIDs: ids, DeliveryTargetURL: landing})
		assert.ErrorIs(t, err, campaign.ErrNoTemplateBound)
	})

	t.Run("bad delivery url", func(t *testing.T) {
		c := f.draft(t)
		_, err := f.svc.Launch(ctx, c.ID, campaign.LaunchInput{RecipientIDs: ids, DeliveryTargetURL: "not a url"})
		assert.ErrorIs(t, err, campaign.ErrInvalidTargetURL)
	})

	t.Run("unknown recipient", func(t *testing.T) {
		c := f.draft(t)
		_, err := f.svc.Launch(ctx, c.ID, campaign.LaunchInput{RecipientIDs: []string{"nope"}, DeliveryTargetURL: landing})
		assert.ErrorIs(t, err, recipient.ErrNotFound)
	})

	t.Run("too many recipients", func(t *testing.T) {
		more := f.addRecipients(t, 3, "legal")
		f.svc.SetMaxRecipients(2)
		defer f.svc.SetMaxRecipients(0)
		c := f.draft(t)
		_, err := f.svc.Launch(ctx, c.ID, campaign.LaunchInput{RecipientIDs: more, DeliveryTargetURL: landing})
		assert.ErrorIs(t, err, campaign.ErrTooManyRecipients)
	})

	t.Run("completed is absorbing", func(t *testing.T) {
		c := f.draft(t)
		_, err := f.svc.Launch(ctx, c.ID, campaign.LaunchInput{RecipientIDs: ids, DeliveryTargetURL: landing})
		require.NoError(t, err)
		_, err = f.svc.Complete(ctx, c.ID)
		require.NoError(t, err)
		_, err = f.svc.Launch(ctx, c.ID, campaign.LaunchInput{RecipientIDs: ids, DeliveryTargetURL: landing})
		assert.ErrorIs(t, err, campaign.ErrInvalidState)
		_, err = f.svc.Cancel(ctx, c.ID)
		assert.ErrorIs(t, err, campaign.ErrInvalidState)
	})
}

func TestPauseResume_KeepsSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.addRecipients(t, 3, "eng")
	g, err := f.recipients.CreateGroup(ctx, "Eng", "")
	require.NoError(t, err)
	require.NoError(t, f.recipients.AddToGroup(ctx, g.ID, ids[0]))

	c := f.draft(t)
	launched, err := f.svc.Launch(ctx, c.ID, campaign.LaunchInput{GroupIDs: []string{g.ID}, DeliveryTargetURL: landing})
	require.NoError(t, err)
	firstLaunch := *launched.LaunchedAt

	paused, err := f.svc.Pause(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignPaused, paused.Status)
	assert.Equal(t, []string{c.ID}, f.disp.stopped)

	// Group grows while paused and the resume call names other recipients.
	require.NoError(t, f.recipients.AddToGroup(ctx, g.ID, ids[1]))
	resumed, err := f.svc.Launch(ctx, c.ID, campaign.LaunchInput{RecipientIDs: ids[1:], DeliveryTargetURL: landing})
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignActive, resumed.Status)
	assert.Equal(t, []string{ids[0]}, snapshotIDs(resumed))
	assert.True(t, firstLaunch.Equal(*resumed.LaunchedAt))
	assert.Len(t, f.disp.dispatched, 2)
}

func TestPause_OnlyFromActive(t *testing.T) {
	f := newFixture(t)
	c := f.draft(t)
	_, err := f.svc.Pause(context.Background(), c.ID)
	assert.ErrorIs(t, err, campaign.ErrInvalidState)
}

func TestLaunch_ConcurrentDraftLaunchOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.addRecipients(t, 4, "sales")
	c := f.draft(t)

	sets := [][]string{{ids[0], ids[1], ids[2]}, {ids[1], ids[2], ids[3]}}
	var wg sync.WaitGroup
	results := make([]error, len(sets))
	for i := range sets {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.svc.Launch(ctx, c.ID, campaign.LaunchInput{RecipientIDs: sets[i], DeliveryTargetURL: landing})
		}(i)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, campaign.ErrInvalidState):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)

	got, err := f.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	snap := snapshotIDs(got)
	assert.True(t, assert.ObjectsAreEqual(sets[0], snap) || assert.ObjectsAreEqual(sets[1], snap))
}

// =============================================================================
// Complete / Cancel / Schedule
// =============================================================================

func TestComplete_OnlyFromActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.addRecipients(t, 1, "ops")
	c := f.draft(t)

	_, err := f.svc.Complete(ctx, c.ID)
	assert.ErrorIs(t, err, campaign.ErrInvalidState)

	_, err = f.svc.Launch(ctx, c.ID, campaign.LaunchInput{RecipientIDs: ids, DeliveryTargetURL: landing})
	require.NoError(t, err)
	_, err = f.svc.Pause(ctx, c.ID)
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, c.ID)
	assert.ErrorIs(t, err, campaign.ErrInvalidState, "paused campaigns cannot be completed")

	_, err = f.svc.Launch(ctx, c.ID, campaign.LaunchInput{})
	require.NoError(t, err)
	done, err := f.svc.Complete(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.draft(t)
	cancelled, err := f.svc.Cancel(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignCancelled, cancelled.Status)

	_, err = f.svc.Cancel(ctx, c.ID)
	assert.ErrorIs(t, err, campaign.ErrInvalidState)
	assert.ErrorIs(t, f.svc.Delete(ctx, c.ID), campaign.ErrInvalidState)
}

func TestSchedule_ThenLaunchWithPendingTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.addRecipients(t, 2, "support")
	c := f.draft(t)

	at := time.Now().Add(time.Hour)
	scheduled, err := f.svc.Schedule(ctx, c.ID, campaign.ScheduleInput{
		LaunchInput: campaign.LaunchInput{RecipientIDs: ids, DeliveryTargetURL: landing},
		At:          at,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignScheduled, scheduled.Status)
	require.NotNil(t, scheduled.PendingTargets)

	due, err := f.svc.DueForLaunch(ctx)
	require.NoError(t, err)
	assert.Empty(t, due)

	launched, err := f.svc.Launch(ctx, c.ID, campaign.LaunchInput{})
	require.NoError(t, err)
	assert.Equal(t, ids, snapshotIDs(launched))
	assert.Nil(t, launched.PendingTargets)
}

func TestSchedule_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.addRecipients(t, 1, "x")
	c := f.draft(t)

	_, err := f.svc.Schedule(ctx, c.ID, campaign.ScheduleInput{
		LaunchInput: campaign.LaunchInput{RecipientIDs: ids, DeliveryTargetURL: landing},
		At:          time.Now().Add(-time.Minute),
	})
	assert.ErrorIs(t, err, campaign.ErrInvalidSchedule)

	_, err = f.svc.Schedule(ctx, c.ID, campaign.ScheduleInput{
		LaunchInput: campaign.LaunchInput{DeliveryTargetURL: landing},
		At:          time.Now().Add(time.Hour),
	})
	assert.ErrorIs(t, err, campaign.ErrEmptyTargetSet)
}

func TestUnschedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.addRecipients(t, 1, "x")
	c := f.draft(t)
	_, err := f.svc.Schedule(ctx, c.ID, campaign.ScheduleInput{
		LaunchInput: campaign.LaunchInput{RecipientIDs: ids, DeliveryTargetURL: landing},
		At:          time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	back, err := f.svc.Unschedule(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignDraft, back.Status)
	assert.Nil(t, back.ScheduledAt)
	assert.Nil(t, back.PendingTargets)
}

func TestSendTest(t *testing.T) {
	f := newFixture(t)
	c := f.draft(t)
	require.NoError(t, f.svc.SendTest(context.Background(), c.ID, " Tester@Corp.Example "))
	assert.Equal(t, []string{"tester@corp.example"}, f.disp.tests)

	got, err := f.svc.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignDraft, got.Status)
}

func TestMarkDeliveryFinished_DrivesObservationQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.addRecipients(t, 1, "x")
	c := f.draft(t)
	_, err := f.svc.Launch(ctx, c.ID, campaign.LaunchInput{RecipientIDs: ids, DeliveryTargetURL: landing})
	require.NoError(t, err)

	none, err := f.svc.DeliveredBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, f.svc.MarkDeliveryFinished(ctx, c.ID))
	due, err := f.svc.DeliveredBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, c.ID, due[0].ID)
}

func TestPause_ResumeRightAfterKeepsNewRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.addRecipients(t, 2, "ops")
	c := f.draft(t)
	_, err := f.svc.Launch(ctx, c.ID, campaign.LaunchInput{RecipientIDs: ids, DeliveryTargetURL: landing})
	require.NoError(t, err)

	locker := &hookLocker{inner: distlock.NewKeyedMutex()}
	f.svc.SetLocker(locker)
	var resumeErr error
	locker.afterRelease = func() {
		_, resumeErr = f.svc.Launch(ctx, c.ID, campaign.LaunchInput{})
	}

	_, err = f.svc.Pause(ctx, c.ID)
	require.NoError(t, err)
	require.NoError(t, resumeErr)

	got, err := f.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignActive, got.Status)
	assert.True(t, f.disp.isRunning(c.ID), "resumed run must survive the pause")
}

func TestLaunch_RejectsUnsuppliedPlaceholders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.addRecipients(t, 1, "sales")
	tmpl, err := f.templates.Create(ctx, template.CreateInput{
		Name:      "Invoice",
		Subject:   "Invoice from {{company}}",
		Body:      `<a href="{{phishing_link}}">view</a>`,
		Variables: []string{"company", "phishing_link"},
	})
	require.NoError(t, err)
	c, err := f.svc.Create(ctx, campaign.CreateInput{Name: "Invoice drill", TemplateID: tmpl.ID})
	require.NoError(t, err)

	_, err = f.svc.Launch(ctx, c.ID, campaign.LaunchInput{RecipientIDs: ids, DeliveryTargetURL: landing})
	assert.ErrorIs(t, err, template.ErrUnsuppliedVariable)

	_, err = f.svc.Schedule(ctx, c.ID, campaign.ScheduleInput{
		LaunchInput: campaign.LaunchInput{RecipientIDs: ids, DeliveryTargetURL: landing},
		At:          time.Now().Add(time.Hour),
	})
	assert.ErrorIs(t, err, template.ErrUnsuppliedVariable)

	got, err := f.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignDraft, got.Status)
	assert.Empty(t, got.Snapshot)
	assert.Empty(t, f.disp.dispatched)
}

func TestSchedule_StateCheckedBeforeInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.addRecipients(t, 1, "x")
	c := f.draft(t)
	_, err := f.svc.Launch(ctx, c.ID, campaign.LaunchInput{RecipientIDs: ids, DeliveryTargetURL: landing})
	require.NoError(t, err)

	_, err = f.svc.Schedule(ctx, c.ID, campaign.ScheduleInput{
		LaunchInput: campaign.LaunchInput{DeliveryTargetURL: "not a url"},
		At:          time.Now().Add(-time.Hour),
	})
	var stateErr *campaign.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, domain.CampaignActive, stateErr.Current)
}

func TestResumeDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.addRecipients(t, 2, "x")

	pending := f.draft(t)
	_, err := f.svc.Launch(ctx, pending.ID, campaign.LaunchInput{RecipientIDs: ids, DeliveryTargetURL: landing})
	require.NoError(t, err)
	done := f.draft(t)
	_, err = f.svc.Launch(ctx, done.ID, campaign.LaunchInput{RecipientIDs: ids, DeliveryTargetURL: landing})
	require.NoError(t, err)
	require.NoError(t, f.svc.MarkDeliveryFinished(ctx, done.ID))
	paused := f.draft(t)
	_, err = f.svc.Launch(ctx, paused.ID, campaign.LaunchInput{RecipientIDs: ids, DeliveryTargetURL: landing})
	require.NoError(t, err)
	_, err = f.svc.Pause(ctx, paused.ID)
	require.NoError(t, err)

	undelivered, err := f.svc.Undelivered(ctx)
	require.NoError(t, err)
	require.Len(t, undelivered, 1)
	assert.Equal(t, pending.ID, undelivered[0].ID)

	f.disp.dispatched = nil
	require.NoError(t, f.svc.ResumeDelivery(ctx, pending.ID))
	require.NoError(t, f.svc.ResumeDelivery(ctx, done.ID))
	assert.Equal(t, []string{pending.ID}, f.disp.dispatched)

	assert.ErrorIs(t, f.svc.ResumeDelivery(ctx, paused.ID), campaign.ErrInvalidState)
}

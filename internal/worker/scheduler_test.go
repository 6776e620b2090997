package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ignite/phishsim/internal/domain"
	"github.com/ignite/phishsim/internal/service/campaign"
	"github.com/ignite/phishsim/internal/service/recipient"
)

type fakeRunner struct {
	due        []domain.Campaign
	launchErrs map[string]error
	launched   []string
	unschedule []string

	finished   []domain.Campaign
	cutoff     time.Time
	completed  []string
	completeOK map[string]bool

	undelivered []domain.Campaign
	resumeErrs  map[string]error
	resumed     []string
}

func (f *fakeRunner) Undelivered(context.Context) ([]domain.Campaign, error) { return f.undelivered, nil }

func (f *fakeRunner) ResumeDelivery(_ context.Context, id string) error {
	if err := f.resumeErrs[id]; err != nil {
		return err
	}
	f.resumed = append(f.resumed, id)
	return nil
}

func (f *fakeRunner) DueForLaunch(context.Context) ([]domain.Campaign, error) { return f.due, nil }

func (f *fakeRunner) Launch(_ context.Context, id string, _ campaign.LaunchInput) (*domain.Campaign, error) {
	if err := f.launchErrs[id]; err != nil {
		return nil, err
	}
	f.launched = append(f.launched, id)
	return &domain.Campaign{ID: id, Status: domain.CampaignActive}, nil
}

func (f *fakeRunner) Unschedule(_ context.Context, id string) (*domain.Campaign, error) {
	f.unschedule = append(f.unschedule, id)
	return &domain.Campaign{ID: id, Status: domain.CampaignDraft}, nil
}

func (f *fakeRunner) DeliveredBefore(_ context.Context, cutoff time.Time) ([]domain.Campaign, error) {
	f.cutoff = cutoff
	return f.finished, nil
}

func (f *fakeRunner) Complete(_ context.Context, id string) (*domain.Campaign, error) {
	if !f.completeOK[id] {
		return nil, &campaign.InvalidStateError{CampaignID: id, Op: "complete", Current: domain.CampaignPaused}
	}
	f.completed = append(f.completed, id)
	return &domain.Campaign{ID: id, Status: domain.CampaignCompleted}, nil
}

func TestScheduler_RunOnce(t *testing.T) {
	r := &fakeRunner{
		due: []domain.Campaign{{ID: "ok"}, {ID: "empty"}, {ID: "gone-recipient"}, {ID: "raced"}, {ID: "flaky"}},
		launchErrs: map[string]error{
			"empty":          campaign.ErrEmptyTargetSet,
			"gone-recipient": fmt.Errorf("resolve targets: %w", recipient.ErrNotFound),
			"raced":          &campaign.InvalidStateError{CampaignID: "raced", Op: "launch", Current: domain.CampaignCancelled},
			"flaky":          errors.New("connection refused"),
		},
	}

	n := NewScheduler(r, time.Minute).runOnce(context.Background())

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"ok"}, r.launched)
	assert.Equal(t, []string{"empty", "gone-recipient"}, r.unschedule)
}

func TestObservationWorker_RunOnce(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	r := &fakeRunner{
		finished:   []domain.Campaign{{ID: "a"}, {ID: "paused-meanwhile"}, {ID: "b"}},
		completeOK: map[string]bool{"a": true, "b": true},
	}
	w := NewObservationWorker(r, 48*time.Hour, time.Minute)
	w.now = func() time.Time { return now }

	n := w.runOnce(context.Background())

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b"}, r.completed)
	assert.Equal(t, now.Add(-48*time.Hour), r.cutoff)
}

func TestObservationWorker_Defaults(t *testing.T) {
	w := NewObservationWorker(&fakeRunner{}, 0, 0)
	assert.Equal(t, DefaultObservationWindow, w.window)
	assert.Equal(t, DefaultObservationPollInterval, w.poll.interval)
}

func TestPollLoop_StartStop(t *testing.T) {
	ticks := make(chan struct{}, 1)
	p := &pollLoop{name: "test", interval: time.Hour, tick: func(context.Context) {
		select {
		case ticks <- struct{}{}:
		default:
		}
	}}

	assert.NoError(t, p.start())
	assert.Error(t, p.start())
	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not tick on start")
	}
	p.stop()
	p.stop()
}

func TestScheduler_RecoverDelivery(t *testing.T) {
	r := &fakeRunner{
		undelivered: []domain.Campaign{{ID: "interrupted"}, {ID: "paused-meanwhile"}, {ID: "broken"}},
		resumeErrs: map[string]error{
			"paused-meanwhile": &campaign.InvalidStateError{CampaignID: "paused-meanwhile", Op: "resume delivery", Current: domain.CampaignPaused},
			"broken":           errors.New("campaign has no targeting snapshot"),
		},
	}

	n := NewScheduler(r, time.Minute).RecoverDelivery(context.Background())

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"interrupted"}, r.resumed)
}

func TestScheduler_RecoversOnlyOnFirstTick(t *testing.T) {
	r := &fakeRunner{undelivered: []domain.Campaign{{ID: "interrupted"}}}
	s := NewScheduler(r, time.Minute)

	s.tick(context.Background())
	s.tick(context.Background())

	assert.Equal(t, []string{"interrupted"}, r.resumed)
}

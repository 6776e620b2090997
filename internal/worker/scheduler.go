package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ignite/phishsim/internal/domain"
	"github.com/ignite/phishsim/internal/service/campaign"
	"github.com/ignite/phishsim/internal/service/recipient"
	"github.com/ignite/phishsim/internal/service/template"
)

const (
	DefaultSchedulerPollInterval   = 30 * time.Second
	DefaultObservationPollInterval = 5 * time.Minute
	DefaultObservationWindow       = 72 * time.Hour
)

// CampaignRunner is the slice of the campaign controller the background
// workers drive.
type CampaignRunner interface {
	DueForLaunch(ctx context.Context) ([]domain.Campaign, error)
	Launch(ctx context.Context, id string, in campaign.LaunchInput) (*domain.Campaign, error)
	Unschedule(ctx context.Context, id string) (*domain.Campaign, error)
	DeliveredBefore(ctx context.Context, cutoff time.Time) ([]domain.Campaign, error)
	Complete(ctx context.Context, id string) (*domain.Campaign, error)
	Undelivered(ctx context.Context) ([]domain.Campaign, error)
	ResumeDelivery(ctx context.Context, id string) error
}

// =============================================================================
// POLL LOOP
// =============================================================================

type pollLoop struct {
	name     string
	interval time.Duration
	tick     func(ctx context.Context)

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func (p *pollLoop) start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("%s already running", p.name)
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(context.Background())

	log.Printf("[%s] Starting with poll interval: %v", p.name, p.interval)
	p.wg.Add(1)
	go p.loop()
	return nil
}

func (p *pollLoop) stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	log.Printf("[%s] Stopped", p.name)
}

func (p *pollLoop) loop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(p.ctx)
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.tick(p.ctx)
		}
	}
}

// =============================================================================
// SCHEDULER
// =============================================================================

// Scheduler launches scheduled campaigns once their time arrives.
// Campaigns whose stored targeting can no longer be launched are returned
// to draft; transient failures are retried on the next poll. Its first poll
// also resumes delivery of active campaigns a previous process left
// unfinished.
type Scheduler struct {
	campaigns CampaignRunner
	poll      pollLoop
	recovered sync.Once
}

func NewScheduler(campaigns CampaignRunner, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultSchedulerPollInterval
	}
	s := &Scheduler{campaigns: campaigns}
	s.poll = pollLoop{name: "worker.Scheduler", interval: interval, tick: s.tick}
	return s
}

func (s *Scheduler) tick(ctx context.Context) {
	s.recovered.Do(func() { s.RecoverDelivery(ctx) })
	s.RunOnce(ctx)
}

// RecoverDelivery re-dispatches every active campaign whose delivery has not
// finished and returns how many were resumed.
func (s *Scheduler) RecoverDelivery(ctx context.Context) int {
	pending, err := s.campaigns.Undelivered(ctx)
	if err != nil {
		log.Printf("[worker.Scheduler] list undelivered campaigns: %v", err)
		return 0
	}
	resumed := 0
	for _, c := range pending {
		if err := s.campaigns.ResumeDelivery(ctx, c.ID); err != nil {
			if !errors.Is(err, campaign.ErrInvalidState) {
				log.Printf("[worker.Scheduler] Campaign %s resume delivery: %v", c.ID, err)
			}
			continue
		}
		resumed++
	}
	if resumed > 0 {
		log.Printf("[worker.Scheduler] resumed delivery for %d campaign(s)", resumed)
	}
	return resumed
}

func (s *Scheduler) Start() error { return s.poll.start() }
func (s *Scheduler) Stop()        { s.poll.stop() }

// RunOnce launches every due campaign.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.runOnce(ctx)
}

func (s *Scheduler) runOnce(ctx context.Context) int {
	due, err := s.campaigns.DueForLaunch(ctx)
	if err != nil {
		log.Printf("[worker.Scheduler] list due campaigns: %v", err)
		return 0
	}

	launched := 0
	for _, c := range due {
		_, err := s.campaigns.Launch(ctx, c.ID, campaign.LaunchInput{})
		switch {
		case err == nil:
			launched++
			log.Printf("[worker.Scheduler] Campaign %s launched on schedule", c.ID)
		case errors.Is(err, campaign.ErrInvalidState):
			// already launched, cancelled or unscheduled by someone else
		case isUnlaunchable(err):
			log.Printf("[worker.Scheduler] Campaign %s cannot launch, returning to draft: %v", c.ID, err)
			if _, uerr := s.campaigns.Unschedule(ctx, c.ID); uerr != nil && !errors.Is(uerr, campaign.ErrInvalidState) {
				log.Printf("[worker.Scheduler] Campaign %s unschedule: %v", c.ID, uerr)
			}
		default:
			log.Printf("[worker.Scheduler] Campaign %s launch failed, will retry: %v", c.ID, err)
		}
	}
	return launched
}

func isUnlaunchable(err error) bool {
	for _, target := range []error{
		campaign.ErrEmptyTargetSet,
		campaign.ErrNoTemplateBound,
		campaign.ErrInvalidTargetURL,
		campaign.ErrTooManyRecipients,
		recipient.ErrNotFound,
		recipient.ErrGroupNotFound,
		template.ErrNotFound,
		template.ErrUnsuppliedVariable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// =============================================================================
// OBSERVATION WORKER
// =============================================================================

// ObservationWorker completes active campaigns once delivery has finished
// and the observation window has elapsed.
type ObservationWorker struct {
	campaigns CampaignRunner
	window    time.Duration
	now       func() time.Time
	poll      pollLoop
}

func NewObservationWorker(campaigns CampaignRunner, window, interval time.Duration) *ObservationWorker {
	if window <= 0 {
		window = DefaultObservationWindow
	}
	if interval <= 0 {
		interval = DefaultObservationPollInterval
	}
	w := &ObservationWorker{campaigns: campaigns, window: window, now: time.Now}
	w.poll = pollLoop{name: "worker.ObservationWorker", interval: interval, tick: w.RunOnce}
	return w
}

func (w *ObservationWorker) Start() error { return w.poll.start() }
func (w *ObservationWorker) Stop()        { w.poll.stop() }

// RunOnce completes every campaign whose observation window has closed.
func (w *ObservationWorker) RunOnce(ctx context.Context) {
	w.runOnce(ctx)
}

func (w *ObservationWorker) runOnce(ctx context.Context) int {
	cutoff := w.now().UTC().Add(-w.window)
	ready, err := w.campaigns.DeliveredBefore(ctx, cutoff)
	if err != nil {
		log.Printf("[worker.ObservationWorker] list finished campaigns: %v", err)
		return 0
	}

	completed := 0
	for _, c := range ready {
		if _, err := w.campaigns.Complete(ctx, c.ID); err != nil {
			if !errors.Is(err, campaign.ErrInvalidState) {
				log.Printf("[worker.ObservationWorker] Campaign %s complete: %v", c.ID, err)
			}
			continue
		}
		completed++
	}
	if completed > 0 {
		log.Printf("[worker.ObservationWorker] completed %d campaign(s)", completed)
	}
	return completed
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/phishsim/internal/domain"
	"github.com/ignite/phishsim/internal/pkg/logger"
	"github.com/ignite/phishsim/internal/service/sending"
	"github.com/ignite/phishsim/internal/service/template"
	"github.com/ignite/phishsim/internal/tracking"
)

// =============================================================================
// CAMPAIGN DISPATCHER
// =============================================================================
// Delivers a launched campaign to every snapshot recipient that has not yet
// been sent to. Each campaign runs in its own goroutine so Launch returns
// immediately; Stop cancels the run but cannot recall messages already
// handed to the transport. A pass in which every send failed is retried
// after RetryDelay instead of marking delivery finished.

// DefaultRetryDelay spaces out passes that sent nothing.
const DefaultRetryDelay = time.Minute

// MessageRenderer personalizes a stored template.
type MessageRenderer interface {
	Render(ctx context.Context, templateID string, vars map[string]string) (*template.Rendered, error)
}

// DeliveryLog is the engagement tracker as seen by the dispatcher.
type DeliveryLog interface {
	SentRecipients(ctx context.Context, campaignID string) (map[string]bool, error)
	RecordEvent(ctx context.Context, campaignID, recipientID string, kind domain.EventKind, ts time.Time) ([]domain.EventKind, error)
}

// DeliveryFinisher is told when every snapshot recipient has been processed.
type DeliveryFinisher interface {
	MarkDeliveryFinished(ctx context.Context, id string) error
}

// DispatchConfig carries sender identity and parallelism.
type DispatchConfig struct {
	FromName   string
	FromEmail  string
	ReplyTo    string
	Workers    int
	RetryDelay time.Duration
}

// Dispatcher implements the campaign controller's delivery collaborator.
type Dispatcher struct {
	renderer MessageRenderer
	events   DeliveryLog
	finisher DeliveryFinisher
	signer   *tracking.Signer
	sender   sending.Sender
	limiter  sending.Limiter
	cfg      DispatchConfig

	mu      sync.Mutex
	running map[string]*dispatchRun
	seq     uint64
	wg      sync.WaitGroup
}

type dispatchRun struct {
	id     uint64
	cancel context.CancelFunc
}

// NewDispatcher creates a dispatcher. Sends are unthrottled until
// SetLimiter is called.
func NewDispatcher(renderer MessageRenderer, events DeliveryLog, finisher DeliveryFinisher,
	signer *tracking.Signer, sender sending.Sender, cfg DispatchConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	return &Dispatcher{
		renderer: renderer,
		events:   events,
		finisher: finisher,
		signer:   signer,
		sender:   sender,
		cfg:      cfg,
		running:  make(map[string]*dispatchRun),
	}
}

// SetLimiter throttles every send through l.
func (d *Dispatcher) SetLimiter(l sending.Limiter) { d.limiter = l }

// Dispatch starts delivering c in the background. A run already in
// progress for the same campaign is cancelled first.
func (d *Dispatcher) Dispatch(ctx context.Context, c *domain.Campaign) error {
	if c.TemplateID == nil || *c.TemplateID == "" {
		return errors.New("campaign has no template bound")
	}
	if len(c.Snapshot) == 0 {
		return errors.New("campaign has no targeting snapshot")
	}
	campaignID, templateID := c.ID, *c.TemplateID
	entries := append([]domain.SnapshotEntry(nil), c.Snapshot...)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.mu.Lock()
	if prev, ok := d.running[campaignID]; ok {
		prev.cancel()
	}
	d.seq++
	run := &dispatchRun{id: d.seq, cancel: cancel}
	d.running[campaignID] = run
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer d.release(campaignID, run)
		for !d.deliver(runCtx, campaignID, templateID, entries) {
			select {
			case <-runCtx.Done():
				return
			case <-time.After(d.cfg.RetryDelay):
			}
		}
	}()
	return nil
}

// Stop cancels the run for campaignID, if any.
func (d *Dispatcher) Stop(campaignID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if run, ok := d.running[campaignID]; ok {
		run.cancel()
		delete(d.running, campaignID)
		log.Printf("[worker.Dispatcher] Campaign %s: delivery stopped", campaignID)
	}
}

// Running reports whether a run for campaignID is in progress.
func (d *Dispatcher) Running(campaignID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.running[campaignID]
	return ok
}

// Wait blocks until every run has returned.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Shutdown cancels all runs and waits for them.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	for id, run := range d.running {
		run.cancel()
		delete(d.running, id)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) release(campaignID string, run *dispatchRun) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.running[campaignID]; ok && cur.id == run.id {
		delete(d.running, campaignID)
	}
	run.cancel()
}

// deliver makes one pass over the pending recipients and reports whether
// delivery is finished. Interrupted passes, passes where every send failed
// and bookkeeping errors report false.
func (d *Dispatcher) deliver(ctx context.Context, campaignID, templateID string, entries []domain.SnapshotEntry) bool {
	sent, err := d.events.SentRecipients(ctx, campaignID)
	if err != nil {
		log.Printf("[worker.Dispatcher] Campaign %s: load sent recipients: %v", campaignID, err)
		return false
	}
	pending := make([]domain.SnapshotEntry, 0, len(entries))
	for _, e := range entries {
		if !sent[e.RecipientID] {
			pending = append(pending, e)
		}
	}
	log.Printf("[worker.Dispatcher] Campaign %s: %d of %d recipients pending", campaignID, len(pending), len(entries))

	var delivered, failed int64
	jobs := make(chan domain.SnapshotEntry)
	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range jobs {
				if ctx.Err() != nil {
					continue
				}
				if err := d.deliverOne(ctx, campaignID, templateID, e); err != nil {
					if ctx.Err() == nil {
						atomic.AddInt64(&failed, 1)
						log.Printf("[worker.Dispatcher] Campaign %s: send to %s failed: %s",
							campaignID, logger.RedactEmail(e.Email), logger.RedactText(err.Error()))
					}
					continue
				}
				atomic.AddInt64(&delivered, 1)
			}
		}()
	}

feed:
	for _, e := range pending {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- e:
		}
	}
	close(jobs)
	wg.Wait()

	if ctx.Err() != nil {
		log.Printf("[worker.Dispatcher] Campaign %s: interrupted after %d sent", campaignID, delivered)
		return false
	}
	if failed > 0 && delivered == 0 {
		log.Printf("[worker.Dispatcher] Campaign %s: all %d sends failed, retrying in %v", campaignID, failed, d.cfg.RetryDelay)
		return false
	}
	if err := d.finisher.MarkDeliveryFinished(ctx, campaignID); err != nil {
		log.Printf("[worker.Dispatcher] Campaign %s: mark delivery finished: %v", campaignID, err)
		return false
	}
	log.Printf("[worker.Dispatcher] Campaign %s: delivery finished (sent=%d failed=%d)", campaignID, delivered, failed)
	return true
}

func (d *Dispatcher) deliverOne(ctx context.Context, campaignID, templateID string, e domain.SnapshotEntry) error {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	clickURL := d.signer.ClickURL(campaignID, e.RecipientID)
	pixelURL := d.signer.PixelURL(campaignID, e.RecipientID)
	reportURL := d.signer.ReportURL(campaignID, e.RecipientID)
	rendered, err := d.renderer.Render(ctx, templateID, template.RecipientVars(e, clickURL, pixelURL, reportURL))
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	body := rendered.Body
	if !strings.Contains(body, pixelURL) {
		body = template.InjectTrackingPixel(body, pixelURL)
	}

	res, err := d.sender.Send(ctx, &sending.Message{
		CampaignID:  campaignID,
		RecipientID: e.RecipientID,
		To:          e.Email,
		ToName:      e.Name,
		FromName:    d.cfg.FromName,
		FromEmail:   d.cfg.FromEmail,
		ReplyTo:     d.cfg.ReplyTo,
		Subject:     rendered.Subject,
		HTMLBody:    body,
	})
	if err != nil {
		return err
	}

	// the message is out; a failed record must not cause a resend
	if _, err := d.events.RecordEvent(context.WithoutCancel(ctx), campaignID, e.RecipientID, domain.EventSent, res.SentAt); err != nil {
		log.Printf("[worker.Dispatcher] Campaign %s: record sent for %s: %v", campaignID, e.RecipientID, err)
	}
	return nil
}

// SendTest renders c's template for a single address and sends it outside
// the campaign. The phishing link points straight at the landing page and
// nothing is recorded.
func (d *Dispatcher) SendTest(ctx context.Context, c *domain.Campaign, email string) error {
	if c.TemplateID == nil || *c.TemplateID == "" {
		return errors.New("campaign has no template bound")
	}
	link := c.DeliveryTargetURL
	if link == "" {
		link = "#"
	}
	entry := domain.SnapshotEntry{Email: email, Name: "Test Recipient", Department: "Test", Position: "Test"}
	rendered, err := d.renderer.Render(ctx, *c.TemplateID, template.RecipientVars(entry, link, "", "#"))
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	_, err = d.sender.Send(ctx, &sending.Message{
		To:        email,
		FromName:  d.cfg.FromName,
		FromEmail: d.cfg.FromEmail,
		ReplyTo:   d.cfg.ReplyTo,
		Subject:   "[TEST] " + rendered.Subject,
		HTMLBody:  rendered.Body,
	})
	return err
}

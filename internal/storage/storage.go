// Package storage archives campaign audit documents: the targeting snapshot
// at launch and the final stats once a campaign closes. Documents go to a
// Backend (local JSON files or S3 with a DynamoDB index).
package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"sync"
	"time"

	"github.com/ignite/phishsim/internal/config"
	"github.com/ignite/phishsim/internal/domain"
)

// ErrNotFound is returned by Load for a missing key.
var ErrNotFound = errors.New("archive document not found")

// Archive document kinds.
const (
	KindLaunch = "launch"
	KindFinal  = "final"
)

// Record indexes one archived document.
type Record struct {
	CampaignID string    `json:"campaign_id"`
	Kind       string    `json:"kind"`
	Key        string    `json:"key"`
	Status     string    `json:"status"`
	ArchivedAt time.Time `json:"archived_at"`
}

// Backend persists documents and their index.
type Backend interface {
	Save(ctx context.Context, key string, data any) error
	Load(ctx context.Context, key string, target any) error
	Index(ctx context.Context, rec Record) error
	Records(ctx context.Context, campaignID string) ([]Record, error)
}

// StatsSource supplies the analytics written into the final document.
type StatsSource interface {
	CampaignStats(ctx context.Context, campaignID string) (*domain.CampaignStats, error)
	CampaignDepartmentBreakdown(ctx context.Context, campaignID string) ([]domain.DepartmentRiskSummary, error)
}

// LaunchDocument freezes who was targeted and with what.
type LaunchDocument struct {
	Campaign   *domain.Campaign `json:"campaign"`
	ArchivedAt time.Time        `json:"archived_at"`
}

// FinalDocument captures a closed campaign's outcome.
type FinalDocument struct {
	Campaign    *domain.Campaign               `json:"campaign"`
	Stats       *domain.CampaignStats          `json:"stats,omitempty"`
	Departments []domain.DepartmentRiskSummary `json:"departments,omitempty"`
	ArchivedAt  time.Time                      `json:"archived_at"`
}

// New builds the backend selected by cfg. An empty type disables archiving
// and returns nil.
func New(ctx context.Context, cfg config.ArchiveConfig) (Backend, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "local":
		return NewLocalBackend(cfg.LocalPath)
	case "s3", "aws":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("archive type %q requires s3_bucket", cfg.Type)
		}
		return NewAWSBackend(ctx, cfg.DynamoDBTable, cfg.S3Bucket, cfg.AWSRegion, cfg.GetAWSProfile())
	default:
		return nil, fmt.Errorf("unknown archive type %q", cfg.Type)
	}
}

// DocumentKey is the backend key for a campaign document.
func DocumentKey(campaignID, kind string) string {
	return path.Join("campaigns", campaignID, kind+".json")
}

// =============================================================================
// ARCHIVER
// =============================================================================

// Archiver is a campaign Observer that writes audit documents in the
// background. Archive failures are logged and never affect the lifecycle.
// Documents are stamped at transition time and written one at a time per
// campaign, in transition order.
type Archiver struct {
	backend Backend
	stats   StatsSource
	now     func() time.Time
	wg      sync.WaitGroup

	mu    sync.Mutex
	tails map[string]chan struct{}
}

func NewArchiver(backend Backend, stats StatsSource) *Archiver {
	return &Archiver{backend: backend, stats: stats, now: time.Now, tails: make(map[string]chan struct{})}
}

// CampaignTransitioned archives the snapshot on the first launch and the
// outcome when a launched campaign completes or is cancelled.
func (a *Archiver) CampaignTransitioned(ctx context.Context, c *domain.Campaign, from domain.CampaignStatus) {
	// Writes run after the caller returns; archive a private copy.
	cp := *c
	cp.Snapshot = append([]domain.SnapshotEntry(nil), c.Snapshot...)
	c = &cp

	at := a.now().UTC()
	switch {
	case c.Status == domain.CampaignActive && (from == domain.CampaignDraft || from == domain.CampaignScheduled):
		doc := &LaunchDocument{Campaign: c, ArchivedAt: at}
		a.async(ctx, c, KindLaunch, at, func(context.Context) any { return doc })
	case c.IsTerminal() && c.Launched():
		a.async(ctx, c, KindFinal, at, func(ctx context.Context) any {
			doc := &FinalDocument{Campaign: c, ArchivedAt: at}
			if stats, err := a.stats.CampaignStats(ctx, c.ID); err != nil {
				log.Printf("[storage.Archiver] stats for campaign %s: %v", c.ID, err)
			} else {
				doc.Stats = stats
			}
			if depts, err := a.stats.CampaignDepartmentBreakdown(ctx, c.ID); err != nil {
				log.Printf("[storage.Archiver] breakdown for campaign %s: %v", c.ID, err)
			} else {
				doc.Departments = depts
			}
			return doc
		})
	}
}

// Records lists a campaign's archived documents, oldest first.
func (a *Archiver) Records(ctx context.Context, campaignID string) ([]Record, error) {
	return a.backend.Records(ctx, campaignID)
}

// LoadFinal reads a campaign's final document.
func (a *Archiver) LoadFinal(ctx context.Context, campaignID string) (*FinalDocument, error) {
	var doc FinalDocument
	if err := a.backend.Load(ctx, DocumentKey(campaignID, KindFinal), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Wait blocks until every pending archive write has finished.
func (a *Archiver) Wait() { a.wg.Wait() }

func (a *Archiver) async(ctx context.Context, c *domain.Campaign, kind string, at time.Time, build func(ctx context.Context) any) {
	rec := Record{CampaignID: c.ID, Kind: kind, Key: DocumentKey(c.ID, kind), Status: string(c.Status), ArchivedAt: at}

	a.mu.Lock()
	prev := a.tails[c.ID]
	done := make(chan struct{})
	a.tails[c.ID] = done
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.finish(c.ID, done)
		if prev != nil {
			<-prev
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		defer cancel()

		if err := a.backend.Save(ctx, rec.Key, build(ctx)); err != nil {
			log.Printf("[storage.Archiver] save %s: %v", rec.Key, err)
			return
		}
		if err := a.backend.Index(ctx, rec); err != nil {
			log.Printf("[storage.Archiver] index %s: %v", rec.Key, err)
			return
		}
		log.Printf("[storage.Archiver] archived %s", rec.Key)
	}()
}

func (a *Archiver) finish(campaignID string, done chan struct{}) {
	close(done)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tails[campaignID] == done {
		delete(a.tails, campaignID)
	}
}

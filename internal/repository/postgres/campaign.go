package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/phishsim/internal/domain"
	"github.com/ignite/phishsim/internal/service/campaign"
	"github.com/ignite/phishsim/internal/service/recipient"
)

// CampaignRepo implements campaign.Repository against PostgreSQL. The
// targeting snapshot lives in phish_campaign_targets and is written once.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `id, name, description, template_id, status, delivery_target_url,
	pending_targets, scheduled_at, launched_at, delivery_finished_at, completed_at,
	created_at, updated_at`

func scanCampaign(s rowScanner) (*domain.Campaign, error) {
	var c domain.Campaign
	var tmpl sql.NullString
	var pending []byte
	var scheduled, launched, finished, completed sql.NullTime
	if err := s.Scan(&c.ID, &c.Name, &c.Description, &tmpl, &c.Status, &c.DeliveryTargetURL,
		&pending, &scheduled, &launched, &finished, &completed,
		&c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if tmpl.Valid {
		v := tmpl.String
		c.TemplateID = &v
	}
	if len(pending) > 0 && string(pending) != "null" {
		var spec domain.TargetSpec
		if err := json.Unmarshal(pending, &spec); err != nil {
			return nil, fmt.Errorf("decode pending targets: %w", err)
		}
		c.PendingTargets = &spec
	}
	c.ScheduledAt = nullTime(scheduled)
	c.LaunchedAt = nullTime(launched)
	c.DeliveryFinishedAt = nullTime(finished)
	c.CompletedAt = nullTime(completed)
	return &c, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func encodePending(spec *domain.TargetSpec) (interface{}, error) {
	if spec == nil {
		return nil, nil
	}
	b, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("encode pending targets: %w", err)
	}
	return b, nil
}

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM phish_campaigns WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	snap, err := r.snapshots(ctx, `WHERE campaign_id = $1`, id)
	if err != nil {
		return nil, err
	}
	c.Snapshot = snap[id]
	return c, nil
}

// snapshots loads target rows matching where, keyed by campaign id.
func (r *CampaignRepo) snapshots(ctx context.Context, where string, args ...interface{}) (map[string][]domain.SnapshotEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT campaign_id, recipient_id, email, name, department, position
		FROM phish_campaign_targets `+where+`
		ORDER BY campaign_id, position_idx
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.SnapshotEntry)
	for rows.Next() {
		var cid string
		var e domain.SnapshotEntry
		if err := rows.Scan(&cid, &e.RecipientID, &e.Email, &e.Name, &e.Department, &e.Position); err != nil {
			return nil, fmt.Errorf("scan snapshot entry: %w", err)
		}
		out[cid] = append(out[cid], e)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	cond := "TRUE"
	args := []interface{}{}
	idx := 1
	if f.Status != "" {
		cond += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		cond += fmt.Sprintf(" AND name ILIKE $%d", idx)
		args = append(args, likePattern(s))
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM phish_campaigns WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	q := `SELECT ` + campaignColumns + ` FROM phish_campaigns WHERE ` + cond +
		fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	out, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *CampaignRepo) query(ctx context.Context, q string, args ...interface{}) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ListWithSnapshots returns every campaign with its snapshot loaded.
func (r *CampaignRepo) ListWithSnapshots(ctx context.Context) ([]domain.Campaign, error) {
	out, err := r.query(ctx, `SELECT `+campaignColumns+` FROM phish_campaigns ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	snaps, err := r.snapshots(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Snapshot = snaps[out[i].ID]
	}
	return out, nil
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	pending, err := encodePending(c.PendingTargets)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO phish_campaigns
			(id, name, description, template_id, status, delivery_target_url,
			 pending_targets, scheduled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, c.ID, c.Name, c.Description, c.TemplateID, c.Status, c.DeliveryTargetURL,
		pending, c.ScheduledAt, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepo) Update(ctx context.Context, id string, u campaign.UpdateFields) error {
	sets := []string{}
	args := []interface{}{}
	idx := 1
	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}

	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if u.TemplateID != nil {
		if *u.TemplateID == "" {
			add("template_id", nil)
		} else {
			add("template_id", *u.TemplateID)
		}
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = NOW()")

	q := fmt.Sprintf("UPDATE phish_campaigns SET %s WHERE id = $%d", joinComma(sets), idx)
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM phish_campaigns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// Transition is a compare-and-set on status. launched_at keeps its first
// value and target rows are only inserted when none exist yet.
func (r *CampaignRepo) Transition(ctx context.Context, c *domain.Campaign, expected domain.CampaignStatus) error {
	pending, err := encodePending(c.PendingTargets)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE phish_campaigns
		SET status = $1, delivery_target_url = $2, pending_targets = $3,
		    scheduled_at = $4, launched_at = COALESCE(launched_at, $5),
		    completed_at = $6, updated_at = $7
		WHERE id = $8 AND status = $9
	`, c.Status, c.DeliveryTargetURL, pending, c.ScheduledAt, c.LaunchedAt,
		c.CompletedAt, c.UpdatedAt, c.ID, expected)
	if err != nil {
		return fmt.Errorf("transition campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM phish_campaigns WHERE id = $1)`, c.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check campaign: %w", err)
		}
		if !exists {
			return campaign.ErrNotFound
		}
		return campaign.ErrStatusConflict
	}

	if len(c.Snapshot) > 0 {
		var frozen bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM phish_campaign_targets WHERE campaign_id = $1)`, c.ID).Scan(&frozen); err != nil {
			return fmt.Errorf("check snapshot: %w", err)
		}
		if !frozen {
			if err := lockSnapshotRecipients(ctx, tx, c.Snapshot); err != nil {
				return err
			}
			stmt, err := tx.PrepareContext(ctx, `
				INSERT INTO phish_campaign_targets
					(campaign_id, recipient_id, position_idx, email, name, department, position)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`)
			if err != nil {
				return fmt.Errorf("prepare snapshot insert: %w", err)
			}
			defer stmt.Close()
			for i, e := range c.Snapshot {
				if _, err := stmt.ExecContext(ctx, c.ID, e.RecipientID, i, e.Email, e.Name, e.Department, e.Position); err != nil {
					return fmt.Errorf("insert snapshot entry: %w", err)
				}
			}
		}
	}
	return tx.Commit()
}

// lockSnapshotRecipients share-locks every snapshot recipient until the
// transaction ends, so a concurrent delete either waits for the snapshot to
// commit or wins and fails the launch.
func lockSnapshotRecipients(ctx context.Context, tx *sql.Tx, entries []domain.SnapshotEntry) error {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.RecipientID
	}
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM phish_recipients WHERE id = ANY($1) FOR SHARE`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("lock snapshot recipients: %w", err)
	}
	defer rows.Close()
	found := make(map[string]bool, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan snapshot recipient: %w", err)
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, id := range ids {
		if !found[id] {
			return fmt.Errorf("snapshot recipient %s: %w", id, recipient.ErrNotFound)
		}
	}
	return nil
}

func (r *CampaignRepo) MarkDeliveryFinished(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE phish_campaigns SET delivery_finished_at = COALESCE(delivery_finished_at, $1)
		WHERE id = $2
	`, at, id)
	if err != nil {
		return fmt.Errorf("mark delivery finished: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) ListDue(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	return r.query(ctx, `
		SELECT `+campaignColumns+` FROM phish_campaigns
		WHERE status = 'scheduled' AND scheduled_at IS NOT NULL AND scheduled_at <= $1
		ORDER BY scheduled_at, id
	`, now)
}

func (r *CampaignRepo) ListDeliveredBefore(ctx context.Context, cutoff time.Time) ([]domain.Campaign, error) {
	return r.query(ctx, `
		SELECT `+campaignColumns+` FROM phish_campaigns
		WHERE status = 'active' AND delivery_finished_at IS NOT NULL AND delivery_finished_at <= $1
		ORDER BY delivery_finished_at, id
	`, cutoff)
}

func (r *CampaignRepo) ListUndelivered(ctx context.Context) ([]domain.Campaign, error) {
	return r.query(ctx, `
		SELECT `+campaignColumns+` FROM phish_campaigns
		WHERE status = 'active' AND delivery_finished_at IS NULL
		ORDER BY launched_at, id
	`)
}

func (r *CampaignRepo) IsRecipientTargeted(ctx context.Context, recipientID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM phish_campaign_targets WHERE recipient_id = $1)`,
		recipientID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check snapshot reference: %w", err)
	}
	return exists, nil
}

func (r *CampaignRepo) CountByTemplate(ctx context.Context, templateID string) (int, int, error) {
	var total, nonDraft int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status <> 'draft')
		FROM phish_campaigns WHERE template_id = $1
	`, templateID).Scan(&total, &nonDraft)
	if err != nil {
		return 0, 0, fmt.Errorf("count template references: %w", err)
	}
	return total, nonDraft, nil
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/phishsim/internal/domain"
)

// EventRepo implements engagement.Repository against PostgreSQL. The
// primary key (campaign_id, recipient_id, kind) enforces at most one event
// per stage.
type EventRepo struct{ db *sql.DB }

const eventColumns = `campaign_id, recipient_id, kind, occurred_at,
	ip_address, user_agent, device_type, os, browser`

// clientArgs maps a missing client, or an empty field, to NULL.
func clientArgs(c *domain.ClientInfo) []interface{} {
	if c == nil {
		return []interface{}{nil, nil, nil, nil, nil}
	}
	return []interface{}{nullable(c.IPAddress), nullable(c.UserAgent), nullable(c.DeviceType), nullable(c.OS), nullable(c.Browser)}
}

func nullable(s string) sql.NullString { return sql.NullString{String: s, Valid: s != ""} }

// NewEventRepo creates a Postgres-backed event store.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Append(ctx context.Context, e domain.EngagementEvent) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO phish_events (campaign_id, recipient_id, kind, occurred_at,
			ip_address, user_agent, device_type, os, browser)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT DO NOTHING
	`, append([]interface{}{e.CampaignID, e.RecipientID, e.Kind, e.OccurredAt}, clientArgs(e.Client)...)...)
	if err != nil {
		return false, fmt.Errorf("append event: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *EventRepo) KindsFor(ctx context.Context, campaignID, recipientID string) ([]domain.EventKind, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT kind FROM phish_events WHERE campaign_id = $1 AND recipient_id = $2
	`, campaignID, recipientID)
	if err != nil {
		return nil, fmt.Errorf("load event kinds: %w", err)
	}
	defer rows.Close()

	have := make(map[domain.EventKind]bool)
	for rows.Next() {
		var k domain.EventKind
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan event kind: %w", err)
		}
		have[k] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []domain.EventKind
	for _, k := range domain.AllEventKinds {
		if have[k] {
			out = append(out, k)
		}
	}
	return out, nil
}

func (r *EventRepo) ListByCampaign(ctx context.Context, campaignID string) ([]domain.EngagementEvent, error) {
	return r.list(ctx, `
		SELECT `+eventColumns+` FROM phish_events
		WHERE campaign_id = $1
		ORDER BY occurred_at, recipient_id
	`, campaignID)
}

func (r *EventRepo) Recent(ctx context.Context, limit int) ([]domain.EngagementEvent, error) {
	return r.list(ctx, `
		SELECT `+eventColumns+` FROM phish_events
		ORDER BY occurred_at DESC
		LIMIT $1
	`, limit)
}

func (r *EventRepo) list(ctx context.Context, q string, args ...interface{}) ([]domain.EngagementEvent, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []domain.EngagementEvent
	for rows.Next() {
		var (
			e                           domain.EngagementEvent
			ip, ua, device, os, browser sql.NullString
		)
		if err := rows.Scan(&e.CampaignID, &e.RecipientID, &e.Kind, &e.OccurredAt,
			&ip, &ua, &device, &os, &browser); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		client := domain.ClientInfo{
			IPAddress:  ip.String,
			UserAgent:  ua.String,
			DeviceType: device.String,
			OS:         os.String,
			Browser:    browser.String,
		}
		if !client.Empty() {
			e.Client = &client
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

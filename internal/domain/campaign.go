package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// campaignTransitions is the single source of truth for legal lifecycle
// moves. States without an entry are absorbing.
var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignDraft:     {CampaignScheduled, CampaignActive, CampaignCancelled},
	CampaignScheduled: {CampaignActive, CampaignDraft, CampaignCancelled},
	CampaignActive:    {CampaignPaused, CampaignCompleted, CampaignCancelled},
	CampaignPaused:    {CampaignActive, CampaignCancelled},
}

// Valid reports whether s is a known campaign status.
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignDraft, CampaignScheduled, CampaignActive,
		CampaignPaused, CampaignCompleted, CampaignCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal transition.
func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	for _, allowed := range campaignTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true for absorbing states.
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignCompleted || s == CampaignCancelled
}

// SnapshotEntry is one recipient frozen into a campaign's targeting snapshot.
// The copied fields record who was targeted at launch time, independent of
// later registry edits.
type SnapshotEntry struct {
	RecipientID string `json:"recipient_id" db:"recipient_id"`
	Email       string `json:"email" db:"email"`
	Name        string `json:"name" db:"name"`
	Department  string `json:"department" db:"department"`
	Position    string `json:"position" db:"position"`
}

// TargetSpec names the recipients and groups a launch should resolve.
type TargetSpec struct {
	RecipientIDs []string `json:"recipient_ids,omitempty"`
	GroupIDs     []string `json:"group_ids,omitempty"`
}

// Empty reports whether t names no recipients and no groups.
func (t TargetSpec) Empty() bool {
	return len(t.RecipientIDs) == 0 && len(t.GroupIDs) == 0
}

// Campaign represents a phishing simulation campaign and its lifecycle.
type Campaign struct {
	ID                string         `json:"id" db:"id"`
	Name              string         `json:"name" db:"name"`
	Description       string         `json:"description" db:"description"`
	TemplateID        *string        `json:"template_id" db:"template_id"`
	Status            CampaignStatus `json:"status" db:"status"`
	DeliveryTargetURL string         `json:"delivery_target_url" db:"delivery_target_url"`

	// Snapshot is frozen on the first successful launch and never changes
	// afterwards.
	Snapshot []SnapshotEntry `json:"snapshot,omitempty"`

	// PendingTargets holds the targeting requested by Schedule until the
	// scheduler launches the campaign.
	PendingTargets *TargetSpec `json:"pending_targets,omitempty" db:"pending_targets"`

	ScheduledAt        *time.Time `json:"scheduled_at" db:"scheduled_at"`
	LaunchedAt         *time.Time `json:"launched_at" db:"launched_at"`
	DeliveryFinishedAt *time.Time `json:"delivery_finished_at" db:"delivery_finished_at"`
	CompletedAt        *time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status.IsTerminal()
}

// Launched reports whether the campaign has ever been launched, i.e. whether
// a targeting snapshot exists.
func (c *Campaign) Launched() bool {
	return c.LaunchedAt != nil
}

// Target returns the snapshot entry for recipientID.
func (c *Campaign) Target(recipientID string) (SnapshotEntry, bool) {
	for _, e := range c.Snapshot {
		if e.RecipientID == recipientID {
			return e, true
		}
	}
	return SnapshotEntry{}, false
}

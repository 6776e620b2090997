package domain

import "time"

// EventKind enumerates the engagement stages a recipient can reach.
// Kinds are ordered: sent < opened < clicked < submitted.
type EventKind string

const (
	EventSent      EventKind = "sent"
	EventOpened    EventKind = "opened"
	EventClicked   EventKind = "clicked"
	EventSubmitted EventKind = "submitted"

	// EventReported marks a recipient who reported the simulation as
	// phishing. It sits outside the stage order and never backfills.
	EventReported EventKind = "reported"
)

// EventKinds lists every kind in stage order.
var EventKinds = []EventKind{EventSent, EventOpened, EventClicked, EventSubmitted}

// AllEventKinds is EventKinds plus the kinds outside the stage order.
var AllEventKinds = []EventKind{EventSent, EventOpened, EventClicked, EventSubmitted, EventReported}

// Rank returns the stage index of k, or -1 for an unknown kind.
func (k EventKind) Rank() int {
	for i, kind := range EventKinds {
		if kind == k {
			return i
		}
	}
	return -1
}

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool { return k.Rank() >= 0 || k == EventReported }

// KindsThrough returns every kind up to and including k, in stage order.
// A kind outside the stage order implies nothing and returns only itself.
func KindsThrough(k EventKind) []EventKind {
	if k == EventReported {
		return []EventKind{k}
	}
	r := k.Rank()
	if r < 0 {
		return nil
	}
	out := make([]EventKind, r+1)
	copy(out, EventKinds[:r+1])
	return out
}

// ClientInfo describes the client that triggered an event at the tracking
// edge.
type ClientInfo struct {
	IPAddress  string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent  string `json:"user_agent,omitempty" db:"user_agent"`
	DeviceType string `json:"device_type,omitempty" db:"device_type"`
	OS         string `json:"os,omitempty" db:"os"`
	Browser    string `json:"browser,omitempty" db:"browser"`
}

// Empty reports whether nothing about the client is known.
func (c ClientInfo) Empty() bool { return c == ClientInfo{} }

// EngagementEvent is one recorded interaction of a recipient with a campaign.
// At most one event exists per (campaign, recipient, kind). Client is set
// only on events observed at the tracking edge, never on sends or on kinds
// inferred by backfill.
type EngagementEvent struct {
	CampaignID  string      `json:"campaign_id" db:"campaign_id"`
	RecipientID string      `json:"recipient_id" db:"recipient_id"`
	Kind        EventKind   `json:"kind" db:"kind"`
	OccurredAt  time.Time   `json:"occurred_at" db:"occurred_at"`
	Client      *ClientInfo `json:"client,omitempty"`
}

// RecipientTracking is the per-recipient engagement view of one campaign.
type RecipientTracking struct {
	RecipientID string            `json:"recipient_id"`
	Email       string            `json:"email"`
	Name        string            `json:"name"`
	Department  string            `json:"department"`
	Stage       EventKind         `json:"stage,omitempty"`
	Reported    bool              `json:"reported"`
	Events      []EngagementEvent `json:"events"`
}

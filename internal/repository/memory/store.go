// Package memory provides in-process implementations of the service
// repositories. All repositories handed out by one Store share a single
// lock, so cross-entity operations (deleting a recipient drops its group
// memberships) are atomic. Values are copied on the way in and out.
package memory

import (
	"sync"

	"github.com/ignite/phishsim/internal/domain"
)

// Store holds every entity in memory.
type Store struct {
	mu sync.RWMutex

	recipients     map[string]*domain.Recipient
	recipientOrder []string
	byEmail        map[string]string

	groups     map[string]*domain.RecipientGroup
	groupOrder []string

	templates map[string]*domain.Template

	campaigns map[string]*domain.Campaign

	events   map[eventKey]domain.EngagementEvent
	eventLog []domain.EngagementEvent
}

type eventKey struct {
	campaignID, recipientID string
	kind                    domain.EventKind
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		recipients: make(map[string]*domain.Recipient),
		byEmail:    make(map[string]string),
		groups:     make(map[string]*domain.RecipientGroup),
		templates:  make(map[string]*domain.Template),
		campaigns:  make(map[string]*domain.Campaign),
		events:     make(map[eventKey]domain.EngagementEvent),
	}
}

// Recipients returns the recipient and group repository.
func (s *Store) Recipients() *RecipientRepo { return &RecipientRepo{s: s} }

// Templates returns the template repository.
func (s *Store) Templates() *TemplateRepo { return &TemplateRepo{s: s} }

// Campaigns returns the campaign repository.
func (s *Store) Campaigns() *CampaignRepo { return &CampaignRepo{s: s} }

// Events returns the engagement event repository.
func (s *Store) Events() *EventRepo { return &EventRepo{s: s} }

func removeString(list []string, v string) []string {
	out := list[:0]
	for _, x := range list {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

package domain

import (
	"strings"
	"time"
)

// Recipient is a member of staff who can be targeted by a campaign.
type Recipient struct {
	ID         string    `json:"id" db:"id"`
	Email      string    `json:"email" db:"email"`
	Name       string    `json:"name" db:"name"`
	Department string    `json:"department" db:"department"`
	Position   string    `json:"position" db:"position"`
	Phone      string    `json:"phone,omitempty" db:"phone"`
	GroupIDs   []string  `json:"group_ids"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// SnapshotEntry copies the fields a campaign freezes at launch.
func (r *Recipient) SnapshotEntry() SnapshotEntry {
	return SnapshotEntry{
		RecipientID: r.ID,
		Email:       r.Email,
		Name:        r.Name,
		Department:  r.Department,
		Position:    r.Position,
	}
}

// RecipientGroup is a named cohort. Membership does not imply ownership:
// a recipient may belong to any number of groups.
type RecipientGroup struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	MemberIDs   []string  `json:"member_ids"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// NormalizeEmail returns the canonical form used for uniqueness checks.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

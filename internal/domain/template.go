package domain

import "time"

// Template is a reusable phishing message with flat {{variable}} placeholders.
type Template struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Subject    string    `json:"subject" db:"subject"`
	Body       string    `json:"body" db:"body"`
	Variables  []string  `json:"variables" db:"variables"`
	Category   string    `json:"category" db:"category"`
	Version    int       `json:"version" db:"version"`
	ParentID   *string   `json:"parent_id,omitempty" db:"parent_id"`
	Locked     bool      `json:"locked" db:"locked"`
	UsageCount int       `json:"usage_count" db:"usage_count"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Declares reports whether name is in the template's declared variable list.
func (t *Template) Declares(name string) bool {
	for _, v := range t.Variables {
		if v == name {
			return true
		}
	}
	return false
}

// AngelaMos | 2026
// entity.go

package alert

import (
	"time"
)

const (
	PriorityLow      = "low"
	PriorityNormal   = "normal"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

const DefaultCategory = "general"

type Alert struct {
	ID        string    `db:"id"         json:"id"`
	Title     string    `db:"title"      json:"title"`
	Body      string    `db:"body"       json:"body"`
	Category  string    `db:"category"   json:"category"`
	Priority  string    `db:"priority"   json:"priority"`
	Premium   bool      `db:"premium"    json:"premium"`
	AuthorID  string    `db:"author_id"  json:"author_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Notice is the bus payload for a premium alert. It carries no title or
// body; subscribers fetch those through the gated GET /alerts/{id}.
type Notice struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Priority  string    `json:"priority"`
	Premium   bool      `json:"premium"`
	CreatedAt time.Time `json:"created_at"`
}

// announcement is what alert.created carries to every connected client.
func announcement(a *Alert) any {
	if !a.Premium {
		return a
	}
	return Notice{
		ID:        a.ID,
		Category:  a.Category,
		Priority:  a.Priority,
		Premium:   true,
		CreatedAt: a.CreatedAt,
	}
}

type CreateRequest struct {
	Title    string `json:"title"    validate:"required,min=1,max=200"`
	Body     string `json:"body"     validate:"required,max=5000"`
	Category string `json:"category" validate:"omitempty,max=50"`
	Priority string `json:"priority" validate:"omitempty,oneof=low normal high critical"`
	Premium  bool   `json:"premium"`
}

type ListFilter struct {
	Category string
	Premium  bool
}

type ListResponse struct {
	Alerts    []Alert `json:"alerts"`
	Total     int     `json:"total"`
	Truncated bool    `json:"truncated"`
}

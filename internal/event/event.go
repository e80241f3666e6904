// AngelaMos | 2026
// event.go

package event

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeAlertCreated Type = "alert.created"
	TypeAlertDeleted Type = "alert.deleted"
)

type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
	ActorID   string    `json:"actor_id,omitempty"`
}

func New(typ Type, actorID string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		ActorID:   actorID,
	}
}

// Bus delivers events to every current subscriber. Delivery is best effort:
// a subscriber that falls behind loses events rather than slowing Publish.
type Bus interface {
	Publish(ctx context.Context, e Event) error
	Subscribe() (<-chan Event, func())
}

package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pawhouse/apiserver/types"
)

// Adoption event types, also sent as the event_type message attribute.
const (
	EventAdoptionCreated = "adoption.created"
	EventAdoptionUpdated = "adoption.updated"
	EventAdoptionDeleted = "adoption.deleted"

	EventTypeAttribute = "event_type"
)

// AdoptionEvent is published after an adoption has been written.
type AdoptionEvent struct {
	Type       string         `json:"type"`
	Adoption   types.Adoption `json:"adoption"`
	ActorID    string         `json:"actorId"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// EventPublisher sends raw messages to a named channel.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// publish never fails the caller: the write it reports has already been
// committed.
func (s *AdoptionService) publish(ctx context.Context, eventType string, actor types.User, adoption types.Adoption) {
	if s.events == nil {
		return
	}

	data, err := json.Marshal(AdoptionEvent{
		Type:       eventType,
		Adoption:   adoption,
		ActorID:    actor.ID,
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "encode adoption event", "event_type", eventType, "error", err)
		return
	}

	id, err := s.events.Publish(ctx, s.channel, data, map[string]string{EventTypeAttribute: eventType})
	if err != nil {
		s.logger.ErrorContext(ctx, "publish adoption event",
			"event_type", eventType,
			"adoption_id", adoption.ID,
			"error", err,
		)
		return
	}
	s.logger.DebugContext(ctx, "adoption event published", "event_type", eventType, "message_id", id)
}

package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go_certhub/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Event names pushed to clients
const (
	EventCertificateIssued  = "certificate:issued"
	EventCertificateRevoked = "certificate:revoked"
	EventSessionUpdated     = "session:updated"
)

// Publish stores the event and broadcasts it to every connected client.
// event has the form "<topic>:<type>".
// Broadcast failure does not affect the caller, the stored row is replayed
// on the next request:events.
func (h *Hub) Publish(ctx context.Context, event string, payload interface{}) error {
	topic, eventType, ok := strings.Cut(event, ":")
	if !ok {
		return fmt.Errorf("malformed event name %q", event)
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	row := model.WSEvent{
		Topic:     topic,
		EventType: eventType,
		Payload:   string(payloadJSON),
	}
	if err := h.db.WithContext(ctx).Create(&row).Error; err != nil {
		h.logger.WithError(err).WithField("event", event).Warn("failed to store event")
		return fmt.Errorf("failed to write event to database: %w", err)
	}

	if h.broadcaster != nil {
		h.broadcaster.BroadcastToNamespace("/", event, map[string]interface{}{
			"eventId": row.ID,
			"type":    eventType,
			"data":    payload,
		})
	}

	h.logger.WithFields(logrus.Fields{"event_id": row.ID, "event": event}).Debug("event published")
	return nil
}

// IncrementalEvents returns events of topic with id > lastEventID, oldest first
func (h *Hub) IncrementalEvents(ctx context.Context, topic string, lastEventID int64, maxCount int) ([]model.WSEvent, error) {
	var events []model.WSEvent
	err := h.db.WithContext(ctx).
		Where("topic = ? AND id > ?", topic, lastEventID).
		Order("id ASC").
		Limit(maxCount).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query incremental events: %w", err)
	}
	return events, nil
}

// LatestEventID returns the newest event id of topic, 0 when there is none
func (h *Hub) LatestEventID(ctx context.Context, topic string) (int64, error) {
	var event model.WSEvent
	err := h.db.WithContext(ctx).
		Where("topic = ?", topic).
		Order("id DESC").
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query latest event: %w", err)
	}
	return event.ID, nil
}

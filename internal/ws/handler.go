package ws

import (
	"context"
	"encoding/json"
	"time"

	socketio "github.com/googollee/go-socket.io"
)

// replayLimit caps the events replayed to one client
const replayLimit = 500

// RequestEventsData is sent by a client to catch up on missed events
type RequestEventsData struct {
	Topic       string `json:"topic"`
	LastEventID int64  `json:"lastEventId"`
}

// handleRequestEvents replays stored events newer than the client's cursor.
// A client too far behind only receives the current cursor and must reload.
func (h *Hub) handleRequestEvents(s socketio.Conn, data RequestEventsData) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if data.Topic == "" {
		s.Emit("error", map[string]interface{}{"message": "topic is required"})
		return
	}

	events, err := h.IncrementalEvents(ctx, data.Topic, data.LastEventID, replayLimit)
	if err != nil {
		h.logger.WithError(err).Warn("failed to query incremental events")
		s.Emit("error", map[string]interface{}{"message": "failed to query events"})
		return
	}

	if len(events) >= replayLimit || len(events) == 0 {
		latest, err := h.LatestEventID(ctx, data.Topic)
		if err != nil {
			h.logger.WithError(err).Warn("failed to query latest event")
		}
		s.Emit("events:reset", map[string]interface{}{
			"topic":       data.Topic,
			"reload":      len(events) > 0,
			"lastEventId": latest,
		})
		return
	}

	for _, event := range events {
		var payload interface{}
		if err := json.Unmarshal([]byte(event.Payload), &payload); err != nil {
			h.logger.WithError(err).WithField("event_id", event.ID).Warn("failed to unmarshal event payload")
			continue
		}
		s.Emit(event.Topic+":"+event.EventType, map[string]interface{}{
			"eventId": event.ID,
			"type":    event.EventType,
			"data":    payload,
		})
	}
}

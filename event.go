package roomheat

import "time"

// Event types emitted by the control core. Consumers (dashboards, alerting)
// are external; the core only appends them to the event log.
const (
	EventTRVDegraded       = "TRV_DEGRADED"
	EventTRVUnresponsive   = "TRV_UNRESPONSIVE"
	EventRoomStatusChanged = "ROOM_STATUS_CHANGED"
)

// Event is a single append-only log entry.
type Event struct {
	EventID     string     `json:"event_id"`
	OccurredAt  time.Time  `json:"occurred_at"`
	Type        string     `json:"type"`
	RoomID      RoomID     `json:"room_id,omitempty"`
	ActuatorID  ActuatorID `json:"actuator_id,omitempty"`
	Description string     `json:"description"`
	Metadata    any        `json:"metadata,omitempty"`
}

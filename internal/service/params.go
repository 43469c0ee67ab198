package service

import (
	"time"

	"roomheat"
)

// timeNow is swapped out by tests that pin the clock.
var timeNow = time.Now

// LogFilter narrows an event log query. Zero fields match everything.
type LogFilter struct {
	From time.Time
	To   time.Time
	Type string
}

// RoomOverview is the operator-facing aggregate view of one room.
type RoomOverview struct {
	RoomID       roomheat.RoomID           `json:"room_id"`
	State        roomheat.RoomState        `json:"state"`
	AutoMode     bool                      `json:"auto_mode"`
	Booking      *roomheat.Booking         `json:"booking,omitempty"`
	Schedule     *roomheat.Schedule        `json:"schedule,omitempty"`
	CurrentNight int                       `json:"current_night"`
	TotalNights  int                       `json:"total_nights"`
	Flow         RoomFlow                  `json:"flow"`
	Actuators    []roomheat.HealthSnapshot `json:"actuators"`
}

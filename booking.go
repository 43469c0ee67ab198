package roomheat

import "time"

// RoomID identifies one guest room. Several actuators may belong to a room.
type RoomID string

// ActuatorID identifies one physically addressable radiator valve.
type ActuatorID string

// BookingStatus is the reservation system's view of a booking.
type BookingStatus string

const (
	StatusConfirmed     BookingStatus = "confirmed"
	StatusUnconfirmed   BookingStatus = "unconfirmed"
	StatusArrived       BookingStatus = "arrived"
	StatusDeparted      BookingStatus = "departed"
	StatusCancelled     BookingStatus = "cancelled"
	StatusNoShow        BookingStatus = "no_show"
	StatusQuote         BookingStatus = "quote"
	StatusWaitlist      BookingStatus = "waitlist"
	StatusOwnerOccupied BookingStatus = "owner_occupied"
)

// IsActive reports whether the status should ever trigger heating.
func (s BookingStatus) IsActive() bool {
	switch s {
	case StatusConfirmed, StatusUnconfirmed, StatusArrived:
		return true
	}
	return false
}

// Booking is an immutable snapshot of one reservation, owned by the external
// booking source and read-only to the control core. Zero Arrival/Departure
// times mean the source's timestamps could not be parsed.
type Booking struct {
	ID        string        `json:"booking_id"`
	RoomID    RoomID        `json:"room_id"`
	Arrival   time.Time     `json:"arrival"`
	Departure time.Time     `json:"departure"`
	Status    BookingStatus `json:"status"`
	GuestName string        `json:"guest_name,omitempty"`
	Occupants int           `json:"occupants,omitempty"`
}

// RoomState is the five-valued occupancy/heating lifecycle stage of a room.
type RoomState string

const (
	RoomVacant      RoomState = "vacant"
	RoomBooked      RoomState = "booked"
	RoomHeatingUp   RoomState = "heating_up"
	RoomOccupied    RoomState = "occupied"
	RoomCoolingDown RoomState = "cooling_down"
)

// Schedule is the derived heating window for one booking. It is recomputed on
// every evaluation and never persisted. HeatingStart > CoolingStart is
// possible for aggressive negative cooling offsets; callers interpret the
// ordering.
type Schedule struct {
	HeatingStart time.Time `json:"heating_start"`
	CoolingStart time.Time `json:"cooling_start"`
	Arrival      time.Time `json:"arrival"`
	Departure    time.Time `json:"departure"`
}

// IsZero reports whether the schedule could not be computed.
func (s Schedule) IsZero() bool {
	return s.HeatingStart.IsZero() || s.CoolingStart.IsZero()
}

// RoomInfo describes one room known to the booking source.
type RoomInfo struct {
	ID       RoomID `json:"room_id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

// FlowType classifies a room's booking traffic on a given date.
type FlowType string

const (
	FlowVacant       FlowType = "vacant"
	FlowArrive       FlowType = "arrive"
	FlowDepart       FlowType = "depart"
	FlowStayOver     FlowType = "stay_over"
	FlowDepartArrive FlowType = "depart_arrive"
)

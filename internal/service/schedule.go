package service

import (
	"time"

	"roomheat"
	"roomheat/internal/config"
	"roomheat/internal/logger"
)

// BookingProcessor holds the pure booking-interpretation logic: schedule
// calculation, room state classification and the heating decision policy.
type BookingProcessor struct {
	cfg *config.Settings
	log *logger.Logger
}

func NewBookingProcessor(cfg *config.Settings, log *logger.Logger) *BookingProcessor {
	return &BookingProcessor{cfg: cfg, log: log}
}

// StatusChange describes a detected booking status transition.
type StatusChange string

const (
	ChangeNone     StatusChange = ""
	ChangeArrived  StatusChange = "arrived"
	ChangeDeparted StatusChange = "departed"
	ChangeWalkIn   StatusChange = "walk_in"
)

// ScheduleFor computes the heating window for a booking.
//
// The effective arrival time-of-day is the earlier of the booking's actual
// arrival and the configured default (guests may show up before nominal
// check-in); the effective departure is the later of actual and default.
// Unparseable booking times yield a zero schedule, a soft failure the
// classifier degrades gracefully from.
func (p *BookingProcessor) ScheduleFor(roomID roomheat.RoomID, b roomheat.Booking) roomheat.Schedule {
	if b.Arrival.IsZero() || b.Departure.IsZero() {
		p.log.Warnw("invalid booking times", "room", roomID, "booking", b.ID)
		return roomheat.Schedule{}
	}

	defaultArrival := roomheat.ParseTimeOfDay(p.cfg.ArrivalTimeFor(roomID))
	defaultDeparture := roomheat.ParseTimeOfDay(p.cfg.DepartureTimeFor(roomID))

	arrivalTOD := roomheat.TimeOfDay(b.Arrival)
	if defaultArrival < arrivalTOD {
		arrivalTOD = defaultArrival
	}
	arrival := roomheat.AtTimeOfDay(b.Arrival, arrivalTOD)

	departureTOD := roomheat.TimeOfDay(b.Departure)
	if defaultDeparture > departureTOD {
		departureTOD = defaultDeparture
	}
	departure := roomheat.AtTimeOfDay(b.Departure, departureTOD)

	return roomheat.Schedule{
		HeatingStart: arrival.Add(-p.cfg.HeatingOffsetFor(roomID)),
		CoolingStart: departure.Add(p.cfg.CoolingOffsetFor(roomID)),
		Arrival:      arrival,
		Departure:    departure,
	}
}

// ClassifyRoom determines the room state. The rule order is load-bearing:
// explicit arrived/departed statuses override the time windows (early
// check-in, early check-out), and a booking without a computable schedule
// stays "booked" rather than failing the evaluation.
func (p *BookingProcessor) ClassifyRoom(now time.Time, booking *roomheat.Booking, sched roomheat.Schedule) roomheat.RoomState {
	if booking == nil {
		return roomheat.RoomVacant
	}
	switch booking.Status {
	case roomheat.StatusDeparted:
		return roomheat.RoomCoolingDown
	case roomheat.StatusArrived:
		return roomheat.RoomOccupied
	}
	if sched.IsZero() {
		return roomheat.RoomBooked
	}
	if now.Before(sched.HeatingStart) {
		return roomheat.RoomBooked
	}
	if now.Before(sched.Arrival) {
		return roomheat.RoomHeatingUp
	}
	if now.Before(sched.CoolingStart) {
		return roomheat.RoomOccupied
	}
	return roomheat.RoomCoolingDown
}

// ShouldHeat is the heating decision policy: auto mode on, an active booking
// status, and a room state inside the heating window.
func (p *BookingProcessor) ShouldHeat(booking *roomheat.Booking, state roomheat.RoomState, autoMode bool) bool {
	if !autoMode || booking == nil || !booking.Status.IsActive() {
		return false
	}
	return state == roomheat.RoomHeatingUp || state == roomheat.RoomOccupied
}

// TargetTemperature returns the setpoint the policy selects for a room.
func (p *BookingProcessor) TargetTemperature(roomID roomheat.RoomID, shouldHeat bool) float64 {
	if shouldHeat {
		return p.cfg.OccupiedTempFor(roomID)
	}
	return p.cfg.VacantTempFor(roomID)
}

// DetectStatusChange compares consecutive booking statuses and reports
// arrivals, departures and walk-ins (a booking that appears already
// arrived).
func (p *BookingProcessor) DetectStatusChange(old, new roomheat.BookingStatus) (bool, StatusChange) {
	if old == new {
		return false, ChangeNone
	}
	if old != "" && old != roomheat.StatusArrived && new == roomheat.StatusArrived {
		return true, ChangeArrived
	}
	if new == roomheat.StatusDeparted {
		return true, ChangeDeparted
	}
	if old == "" && new == roomheat.StatusArrived {
		return true, ChangeWalkIn
	}
	return false, ChangeNone
}

// CurrentNight returns which night of the stay "now" falls on: 1 on the
// first night, 0 for no/unparseable booking.
func (p *BookingProcessor) CurrentNight(now time.Time, booking *roomheat.Booking) int {
	if booking == nil || booking.Arrival.IsZero() {
		return 0
	}
	nights := daysBetween(booking.Arrival, now) + 1
	if nights < 0 {
		return 0
	}
	return nights
}

// TotalNights returns the booking's length of stay in nights.
func (p *BookingProcessor) TotalNights(booking *roomheat.Booking) int {
	if booking == nil || booking.Arrival.IsZero() || booking.Departure.IsZero() {
		return 0
	}
	nights := daysBetween(booking.Arrival, booking.Departure)
	if nights < 0 {
		return 0
	}
	return nights
}

// RoomFlow classifies a room's booking traffic on a date.
type RoomFlow struct {
	Type      roomheat.FlowType `json:"type"`
	Arriving  *roomheat.Booking `json:"arriving,omitempty"`
	Departing *roomheat.Booking `json:"departing,omitempty"`
	Staying   *roomheat.Booking `json:"staying,omitempty"`
}

// FlowFor determines the booking flow type for a room on the target date:
// arrival, departure, back-to-back turnover, stay-over or vacant.
func (p *BookingProcessor) FlowFor(target time.Time, bookings []roomheat.Booking) RoomFlow {
	var arriving, departing, staying *roomheat.Booking

	for i := range bookings {
		b := &bookings[i]
		if b.Arrival.IsZero() || b.Departure.IsZero() {
			continue
		}
		arrDays := daysBetween(b.Arrival, target)
		depDays := daysBetween(b.Departure, target)

		if arrDays == 0 {
			arriving = b
		}
		if depDays == 0 && arrDays > 0 {
			departing = b
		}
		if arrDays > 0 && depDays < 0 {
			staying = b
		}
	}

	switch {
	case arriving != nil && departing != nil:
		return RoomFlow{Type: roomheat.FlowDepartArrive, Arriving: arriving, Departing: departing}
	case arriving != nil:
		return RoomFlow{Type: roomheat.FlowArrive, Arriving: arriving}
	case departing != nil:
		return RoomFlow{Type: roomheat.FlowDepart, Departing: departing}
	case staying != nil:
		return RoomFlow{Type: roomheat.FlowStayOver, Staying: staying}
	}
	return RoomFlow{Type: roomheat.FlowVacant}
}

// daysBetween counts calendar-date boundaries from a to b (negative when b
// is before a's date).
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

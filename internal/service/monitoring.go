package service

import (
	"context"
	"fmt"

	"roomheat"
)

// MonitoringService assembles read-only views over the tracker and the
// heating controller.
type MonitoringService struct {
	tracker   *TRVTracker
	rooms     Rooms
	processor *BookingProcessor
	heating   *HeatingService
}

func NewMonitoringService(tracker *TRVTracker, rooms Rooms, processor *BookingProcessor, heating *HeatingService) *MonitoringService {
	return &MonitoringService{tracker: tracker, rooms: rooms, processor: processor, heating: heating}
}

func (s *MonitoringService) HealthSummary() roomheat.HealthSummary {
	return s.tracker.Summary(timeNow())
}

// ActuatorHealth returns the health snapshot for one actuator. The second
// result is false when the actuator has never been seen.
func (s *MonitoringService) ActuatorHealth(id roomheat.ActuatorID) (roomheat.HealthSnapshot, bool) {
	for _, h := range s.tracker.All() {
		if h.ID() == id {
			return h.Snapshot(timeNow()), true
		}
	}
	return roomheat.HealthSnapshot{}, false
}

// RoomOverview aggregates everything an operator asks about one room:
// current state, driving booking, heating schedule, stay arithmetic, booking
// flow for today and per-valve health.
func (s *MonitoringService) RoomOverview(ctx context.Context, roomID roomheat.RoomID) (RoomOverview, error) {
	now := timeNow()

	booking, err := s.rooms.CurrentOrNextBooking(ctx, roomID)
	if err != nil {
		return RoomOverview{}, fmt.Errorf("load booking for %s: %w", roomID, err)
	}

	ov := RoomOverview{
		RoomID:   roomID,
		State:    s.heating.RoomState(roomID),
		AutoMode: s.heating.AutoMode(roomID),
		Booking:  booking,
	}

	if booking != nil {
		sched := s.processor.ScheduleFor(roomID, *booking)
		if !sched.IsZero() {
			ov.Schedule = &sched
		}
		ov.CurrentNight = s.processor.CurrentNight(now, booking)
		ov.TotalNights = s.processor.TotalNights(booking)
	}

	all, err := s.rooms.RoomBookings(ctx, roomID)
	if err != nil {
		return RoomOverview{}, fmt.Errorf("list bookings for %s: %w", roomID, err)
	}
	ov.Flow = s.processor.FlowFor(now, all)

	for _, id := range s.heating.roomActuators(roomID, false) {
		ov.Actuators = append(ov.Actuators, s.tracker.Get(id).Snapshot(now))
	}
	return ov, nil
}

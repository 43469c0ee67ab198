package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"roomheat"
	"roomheat/internal/config"
	"roomheat/internal/logger"
)

// HeatingService is the room heating controller: it periodically re-derives
// each room's state from its bookings and issues actuator commands only when
// that state transitions, so a crash-restart converges without re-sending
// anything.
type HeatingService struct {
	cfg        *config.Settings
	log        *logger.Logger
	source     BookingSource
	processor  *BookingProcessor
	dispatcher *Dispatcher
	tracker    *TRVTracker
	events     EventSink

	mu         sync.Mutex
	batchCtx   context.Context
	roomStates map[roomheat.RoomID]roomheat.RoomState
	lastStatus map[roomheat.RoomID]roomheat.BookingStatus
	autoMode   map[roomheat.RoomID]bool

	wg sync.WaitGroup
}

func NewHeatingService(
	cfg *config.Settings,
	log *logger.Logger,
	source BookingSource,
	processor *BookingProcessor,
	dispatcher *Dispatcher,
	tracker *TRVTracker,
	events EventSink,
) *HeatingService {
	return &HeatingService{
		cfg:        cfg,
		log:        log,
		source:     source,
		processor:  processor,
		dispatcher: dispatcher,
		tracker:    tracker,
		events:     events,
		roomStates: make(map[roomheat.RoomID]roomheat.RoomState),
		lastStatus: make(map[roomheat.RoomID]roomheat.BookingStatus),
		autoMode:   make(map[roomheat.RoomID]bool),
	}
}

// Run is the evaluation loop: one immediate sweep, then one per tick, plus a
// daily reset of the per-actuator retry counters. Returns when ctx is done.
func (s *HeatingService) Run(ctx context.Context, tick time.Duration) {
	s.mu.Lock()
	s.batchCtx = ctx
	s.mu.Unlock()
	s.log.Infow("heating loop started", "interval", tick)

	s.EvaluateAll(ctx)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	daily := time.NewTicker(24 * time.Hour)
	defer daily.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Infow("heating loop stopped")
			return
		case <-ticker.C:
			s.EvaluateAll(ctx)
		case <-daily.C:
			s.tracker.ResetDailyCounts()
		}
	}
}

// EvaluateAll sweeps every configured room. A failing room never blocks the
// others.
func (s *HeatingService) EvaluateAll(ctx context.Context) {
	rooms, err := s.source.AllRooms(ctx)
	if err != nil {
		s.log.Errorw("room listing failed", "err", err)
		return
	}
	for id := range s.cfg.Rooms {
		delete(rooms, roomheat.RoomID(id))
		if err := s.EvaluateRoom(ctx, roomheat.RoomID(id)); err != nil {
			s.log.Errorw("room evaluation failed", "room", id, "err", err)
		}
	}
	for id := range rooms {
		if err := s.EvaluateRoom(ctx, id); err != nil {
			s.log.Errorw("room evaluation failed", "room", id, "err", err)
		}
	}
}

// EvaluateRoom recomputes one room's state from its current or next booking
// and reacts to what changed since the previous evaluation.
func (s *HeatingService) EvaluateRoom(ctx context.Context, roomID roomheat.RoomID) error {
	booking, err := s.source.CurrentOrNextBooking(ctx, roomID)
	if err != nil {
		return fmt.Errorf("load booking for %s: %w", roomID, err)
	}

	now := time.Now()
	var sched roomheat.Schedule
	if booking != nil {
		sched = s.processor.ScheduleFor(roomID, *booking)
	}
	state := s.processor.ClassifyRoom(now, booking, sched)

	var status roomheat.BookingStatus
	if booking != nil {
		status = booking.Status
	}

	s.mu.Lock()
	prevState, known := s.roomStates[roomID]
	prevStatus := s.lastStatus[roomID]
	auto, autoKnown := s.autoMode[roomID]
	if !autoKnown {
		auto = s.cfg.AutoModeDefault(roomID)
		s.autoMode[roomID] = auto
	}
	s.roomStates[roomID] = state
	s.lastStatus[roomID] = status
	s.mu.Unlock()

	// Arrival/departure detection runs on the raw status stream, independent
	// of the state machine and of auto mode, so a guest standing in a cold
	// room never waits for the next tick's transition.
	if changed, change := s.processor.DetectStatusChange(prevStatus, status); changed {
		s.onStatusChange(ctx, roomID, change, booking)
		return nil
	}

	if !known || prevState == state {
		return nil
	}
	s.log.Infow("room state changed", "room", roomID, "from", prevState, "to", state)

	if !auto {
		s.log.Debugw("auto mode off, skipping command", "room", roomID)
		return nil
	}

	heat := s.processor.ShouldHeat(booking, state, auto)
	s.dispatchRoom(roomID, s.processor.TargetTemperature(roomID, heat))
	return nil
}

// onStatusChange reacts to a booking status transition with an immediate
// command, logging and recording the event either way.
func (s *HeatingService) onStatusChange(ctx context.Context, roomID roomheat.RoomID, change StatusChange, booking *roomheat.Booking) {
	s.log.Infow("booking status changed", "room", roomID, "change", change)

	meta := map[string]any{"change": string(change)}
	if booking != nil {
		meta["booking_id"] = booking.ID
	}
	s.events.Emit(ctx, roomheat.Event{
		Type:        roomheat.EventRoomStatusChanged,
		RoomID:      roomID,
		Description: "booking status transition: " + string(change),
		Metadata:    meta,
	})

	switch change {
	case ChangeArrived, ChangeWalkIn:
		s.dispatchRoom(roomID, s.cfg.OccupiedTempFor(roomID))
	case ChangeDeparted:
		s.dispatchRoom(roomID, s.cfg.VacantTempFor(roomID))
	}
}

// dispatchRoom launches a room-wide command batch in the background. Batches
// can run for over an hour per actuator under failure; they must never block
// the evaluation loop.
func (s *HeatingService) dispatchRoom(roomID roomheat.RoomID, target float64) []roomheat.ActuatorID {
	return s.dispatchActuators(roomID, s.roomActuators(roomID, false), target)
}

// dispatchActuators runs the batch on the service's lifetime context rather
// than the caller's: an HTTP request context is cancelled once the 202 goes
// out, and a batch must keep retrying long after that.
func (s *HeatingService) dispatchActuators(roomID roomheat.RoomID, ids []roomheat.ActuatorID, target float64) []roomheat.ActuatorID {
	if len(ids) == 0 {
		s.log.Warnw("no actuators configured", "room", roomID)
		return nil
	}
	ctx := s.batchContext()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.dispatcher.SetRoomTemperature(ctx, roomID, ids, target)
	}()
	return ids
}

// batchContext is the context command batches run on: the Run context once
// the loop is up, so only service shutdown cancels in-flight deliveries.
func (s *HeatingService) batchContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batchCtx != nil {
		return s.batchCtx
	}
	return context.Background()
}

// roomActuators lists a room's actuator IDs, optionally excluding the
// bathroom valve (bathrooms keep their own setpoint during a guest sync).
func (s *HeatingService) roomActuators(roomID roomheat.RoomID, excludeBathroom bool) []roomheat.ActuatorID {
	trvs := s.cfg.TRVsFor(roomID)
	ids := make([]roomheat.ActuatorID, 0, len(trvs))
	for _, t := range trvs {
		if excludeBathroom && t.Location == config.LocationBathroom {
			continue
		}
		ids = append(ids, roomheat.ActuatorID(t.ID))
	}
	return ids
}

// ForceRoomTemperature is the operator override: it disables auto mode for
// the room and drives every valve to the requested setpoint.
func (s *HeatingService) ForceRoomTemperature(ctx context.Context, roomID roomheat.RoomID, temp float64) ([]roomheat.ActuatorID, error) {
	ids := s.roomActuators(roomID, false)
	if len(ids) == 0 {
		return nil, fmt.Errorf("room %s has no actuators", roomID)
	}

	s.mu.Lock()
	s.autoMode[roomID] = false
	s.mu.Unlock()
	s.log.Infow("force temperature", "room", roomID, "target", temp, "auto_mode", false)

	return s.dispatchActuators(roomID, ids, temp), nil
}

// SetRoomAutoMode flips automation for a room. Re-enabling converges the
// room immediately: the policy target is commanded even without a state
// transition, since a manual override may have left the valves anywhere.
func (s *HeatingService) SetRoomAutoMode(ctx context.Context, roomID roomheat.RoomID, enabled bool) error {
	s.mu.Lock()
	s.autoMode[roomID] = enabled
	s.mu.Unlock()
	s.log.Infow("auto mode set", "room", roomID, "enabled", enabled)

	if !enabled {
		return nil
	}

	booking, err := s.source.CurrentOrNextBooking(ctx, roomID)
	if err != nil {
		return fmt.Errorf("load booking for %s: %w", roomID, err)
	}
	var sched roomheat.Schedule
	if booking != nil {
		sched = s.processor.ScheduleFor(roomID, *booking)
	}
	state := s.processor.ClassifyRoom(time.Now(), booking, sched)

	var status roomheat.BookingStatus
	if booking != nil {
		status = booking.Status
	}
	s.mu.Lock()
	s.roomStates[roomID] = state
	s.lastStatus[roomID] = status
	s.mu.Unlock()

	heat := s.processor.ShouldHeat(booking, state, true)
	s.dispatchRoom(roomID, s.processor.TargetTemperature(roomID, heat))
	return nil
}

func (s *HeatingService) AutoMode(roomID roomheat.RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if auto, ok := s.autoMode[roomID]; ok {
		return auto
	}
	return s.cfg.AutoModeDefault(roomID)
}

// SyncRoomValves drives all of a room's valves (minus the bathroom, when the
// room is configured that way) to one setpoint. Used when a guest adjusts a
// single valve by hand.
func (s *HeatingService) SyncRoomValves(ctx context.Context, roomID roomheat.RoomID, temp float64) ([]roomheat.ActuatorID, error) {
	ids := s.roomActuators(roomID, s.cfg.ExcludeBathroomFor(roomID))
	if len(ids) == 0 {
		return nil, fmt.Errorf("room %s has no actuators", roomID)
	}
	s.log.Infow("valve sync", "room", roomID, "target", temp, "actuators", len(ids))
	return s.dispatchActuators(roomID, ids, temp), nil
}

// OnGuestAdjustment handles a manual setpoint change on a single valve: when
// the room opts into setpoint syncing, the whole room follows the guest's
// choice.
func (s *HeatingService) OnGuestAdjustment(ctx context.Context, id roomheat.ActuatorID, target float64) {
	roomID, ok := s.roomForActuator(id)
	if !ok {
		s.log.Debugw("guest adjustment on unmapped actuator", "actuator", id)
		return
	}
	s.log.Infow("guest adjustment", "room", roomID, "actuator", id, "target", target)
	if !s.cfg.SyncSetpointsFor(roomID) {
		return
	}
	if _, err := s.SyncRoomValves(ctx, roomID, target); err != nil {
		s.log.Warnw("guest sync failed", "room", roomID, "err", err)
	}
}

func (s *HeatingService) roomForActuator(id roomheat.ActuatorID) (roomheat.RoomID, bool) {
	for roomID := range s.cfg.Rooms {
		for _, t := range s.cfg.TRVsFor(roomheat.RoomID(roomID)) {
			if roomheat.ActuatorID(t.ID) == id {
				return roomheat.RoomID(roomID), true
			}
		}
	}
	return "", false
}

// RetryUnresponsive re-drives every unhealthy actuator toward its intended
// target, one background sequence per actuator. Returns the IDs retried.
func (s *HeatingService) RetryUnresponsive(ctx context.Context) []roomheat.ActuatorID {
	batchCtx := s.batchContext()
	candidates := s.dispatcher.RetryCandidates()
	ids := make([]roomheat.ActuatorID, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
		s.wg.Add(1)
		go func(c RetryTarget) {
			defer s.wg.Done()
			s.dispatcher.SetTemperatureWithRetry(batchCtx, c.ID, c.Temp)
		}(c)
	}
	s.log.Infow("retrying unresponsive actuators", "count", len(ids))
	return ids
}

func (s *HeatingService) RoomState(roomID roomheat.RoomID) roomheat.RoomState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.roomStates[roomID]; ok {
		return state
	}
	return roomheat.RoomVacant
}

func (s *HeatingService) StatesSummary() map[roomheat.RoomState]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[roomheat.RoomState]int, len(s.roomStates))
	for _, state := range s.roomStates {
		out[state]++
	}
	return out
}

// Wait blocks until every in-flight command batch has drained. Called during
// shutdown after cancelling the batches' context.
func (s *HeatingService) Wait() {
	s.wg.Wait()
}

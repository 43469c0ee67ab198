package service

import (
	"context"
	"math"
	"time"

	"roomheat"
	"roomheat/internal/config"
	"roomheat/internal/logger"
)

// Dispatcher delivers set-temperature commands to actuators with bounded,
// escalating effort, and staggers commands across a room's valves to keep
// the shared radio channel usable.
type Dispatcher struct {
	channel CommandChannel
	tracker *TRVTracker
	waker   Waker
	events  EventSink
	log     *logger.Logger

	delays       []time.Duration
	pollInterval time.Duration
	wakeWait     time.Duration
	stagger      time.Duration
}

func NewDispatcher(
	cfg *config.Settings,
	channel CommandChannel,
	tracker *TRVTracker,
	waker Waker,
	events EventSink,
	log *logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		channel:      channel,
		tracker:      tracker,
		waker:        waker,
		events:       events,
		log:          log,
		delays:       cfg.RetryDelays(),
		pollInterval: cfg.PollInterval(),
		wakeWait:     cfg.WakeWait(),
		stagger:      cfg.StaggerDelay(),
	}
}

// SetTemperatureWithRetry drives one logical set-temperature request:
// escalating attempts, each polling for the reported target to match, then a
// single out-of-band wake before giving up. Returns whether the command was
// acknowledged.
func (d *Dispatcher) SetTemperatureWithRetry(ctx context.Context, id roomheat.ActuatorID, target float64) bool {
	health := d.tracker.Get(id)
	health.RecordPending(target)
	start := time.Now()

	d.log.Infow("trv_set_temperature", "actuator", id, "target", target, "max_attempts", len(d.delays))

	for i, wait := range d.delays {
		attempt := i + 1
		sentAt := time.Now()
		health.RecordCommandSent()

		if err := d.channel.SendSetTemperature(ctx, id, target); err != nil {
			// A bad send must not abort an otherwise recoverable sequence.
			d.log.Warnw("trv_send_failed", "actuator", id, "attempt", attempt, "err", err)
			continue
		}

		if d.waitForMatch(ctx, id, target, wait) {
			d.recordSuccess(ctx, health, id, target, attempt, time.Since(sentAt))
			return true
		}

		d.log.Warnw("trv_no_ack",
			"actuator", id,
			"target", target,
			"attempt", attempt,
			"of", len(d.delays),
		)
		if ctx.Err() != nil {
			break
		}
	}

	if ctx.Err() == nil && d.wakeAndRetry(ctx, health, id, target) {
		return true
	}

	health.RecordCommandFailed(time.Since(start).Seconds())
	d.log.Errorw("trv_unresponsive", "actuator", id, "target", target, "attempts", len(d.delays))
	d.events.Emit(ctx, roomheat.Event{
		Type:        roomheat.EventTRVUnresponsive,
		ActuatorID:  id,
		Description: "actuator failed to acknowledge temperature command",
		Metadata: map[string]any{
			"target_temp": target,
			"attempts":    len(d.delays),
		},
	})
	return false
}

// wakeAndRetry performs the single out-of-band wake and, if the device
// answers, one extra command attempt with a short fixed wait.
func (d *Dispatcher) wakeAndRetry(ctx context.Context, health *TRVHealth, id roomheat.ActuatorID, target float64) bool {
	addr := health.DeviceAddr()
	if addr == "" {
		return false
	}

	st, err := d.waker.Wake(ctx, addr)
	if err != nil {
		d.log.Warnw("trv_wake_failed", "actuator", id, "addr", addr, "err", err)
		return false
	}
	d.log.Infow("trv_wake_ok", "actuator", id, "addr", addr)
	health.ApplyDeviceStatus(*st)

	sentAt := time.Now()
	health.RecordCommandSent()
	if err := d.channel.SendSetTemperature(ctx, id, target); err != nil {
		d.log.Warnw("trv_send_failed", "actuator", id, "attempt", "post-wake", "err", err)
		return false
	}
	if d.waitForMatch(ctx, id, target, d.wakeWait) {
		d.recordSuccess(ctx, health, id, target, len(d.delays)+1, time.Since(sentAt))
		return true
	}
	return false
}

func (d *Dispatcher) recordSuccess(ctx context.Context, health *TRVHealth, id roomheat.ActuatorID, target float64, attempt int, took time.Duration) {
	// The status feed may have acknowledged it first; don't double-count.
	health.CompletePending(took.Seconds())
	d.log.Infow("trv_ack",
		"actuator", id,
		"target", target,
		"attempt", attempt,
		"response_s", took.Seconds(),
	)

	if state := health.State(); state == roomheat.HealthDegraded || state == roomheat.HealthPoor {
		d.events.Emit(ctx, roomheat.Event{
			Type:        roomheat.EventTRVDegraded,
			ActuatorID:  id,
			Description: "actuator acknowledged but responsiveness is degraded",
			Metadata: map[string]any{
				"health_state": string(state),
				"attempts":     attempt,
			},
		})
	}
}

// waitForMatch polls the actuator's reported target until it matches within
// tolerance or the attempt's budget runs out. The poll sleep is a genuine
// yield; a silent valve parks this goroutine, not the process.
func (d *Dispatcher) waitForMatch(ctx context.Context, id roomheat.ActuatorID, target float64, budget time.Duration) bool {
	deadline := time.Now().Add(budget)
	for {
		if reported, ok := d.tracker.ReportedTarget(id); ok && math.Abs(reported-target) < tempMatchTolerance {
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		sleep := d.pollInterval
		if sleep > remaining {
			sleep = remaining
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(sleep):
		}
	}
}

// SetRoomTemperature applies one target across a room's actuators
// sequentially, inserting the stagger delay between the start of one
// sequence and the next. Per-actuator failures never abort the batch.
func (d *Dispatcher) SetRoomTemperature(ctx context.Context, roomID roomheat.RoomID, ids []roomheat.ActuatorID, target float64) map[roomheat.ActuatorID]bool {
	d.log.Infow("room_batch_set", "room", roomID, "actuators", len(ids), "target", target)

	results := make(map[roomheat.ActuatorID]bool, len(ids))
	for i, id := range ids {
		if i > 0 {
			select {
			case <-ctx.Done():
				results[id] = false
				continue
			case <-time.After(d.stagger):
			}
		}
		results[id] = d.SetTemperatureWithRetry(ctx, id, target)
	}

	ok := 0
	for _, success := range results {
		if success {
			ok++
		}
	}
	d.log.Infow("room_batch_done", "room", roomID, "ok", ok, "of", len(ids), "target", target)
	return results
}

// RetryTarget pairs an actuator with the temperature a retry should drive it
// to.
type RetryTarget struct {
	ID   roomheat.ActuatorID
	Temp float64
}

// RetryCandidates selects every tracked actuator whose classification is
// neither healthy nor calibration_error (a miscalibrated valve needs
// recalibration, not more commands), using its pending command's target or,
// failing that, its currently reported target.
func (d *Dispatcher) RetryCandidates() []RetryTarget {
	var out []RetryTarget
	for _, h := range d.tracker.All() {
		state := h.State()
		if state == roomheat.HealthHealthy || state == roomheat.HealthCalibrationError {
			continue
		}
		target, ok := h.PendingTarget()
		if !ok {
			target, ok = h.CurrentTarget()
		}
		if !ok {
			d.log.Warnw("retry_skipped_no_target", "actuator", h.ID())
			continue
		}
		out = append(out, RetryTarget{ID: h.ID(), Temp: target})
	}
	return out
}

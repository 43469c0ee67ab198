package service

import (
	"math"
	"sort"
	"sync"
	"time"

	"roomheat"
)

// Tuning constants for health tracking.
const (
	tempMatchTolerance  = 0.1              // °C; reported == commanded
	statusAckWindow     = 5 * time.Minute  // status report counts as ack
	staleAfter          = 30 * time.Minute // silent longer than this = unresponsive
	commandGracePeriod  = 5 * time.Minute  // commanded but never seen yet
	responseWindowSize  = 10               // sliding window of response times
	outcomeRetention    = 72 * time.Hour   // outcome log horizon
	valvePositionFault  = -1               // hardware calibration fault marker
	unresponsiveRetries = 10
	poorRetries         = 5
	degradedRetries     = 3
	poorRetries24h      = 10
	degradedRetries24h  = 5
)

type commandOutcome struct {
	at      time.Time
	seconds float64
	success bool
}

// TRVHealth is the mutable per-actuator health record. One dispatcher
// sequence writes it at a time; monitoring paths read it concurrently, so
// every public method locks.
type TRVHealth struct {
	id roomheat.ActuatorID

	mu              sync.Mutex
	lastSeen        time.Time
	lastCommandSent time.Time
	lastCommandAck  time.Time
	responseTimes   []float64
	outcomes        []commandOutcome
	currentAttempts int
	retryCount24h   int
	totalCommands   int
	failedCommands  int
	valvePosition   int
	isCalibrated    bool
	batteryLevel    int
	deviceAddr      string
	currentTarget   *float64
	pendingTarget   *float64
	pendingSince    time.Time
	ackedTarget     *float64
}

func newTRVHealth(id roomheat.ActuatorID) *TRVHealth {
	return &TRVHealth{
		id:           id,
		isCalibrated: true,
		batteryLevel: -1,
	}
}

// ID returns the actuator this record tracks.
func (h *TRVHealth) ID() roomheat.ActuatorID { return h.id }

// RecordPending marks a command as in flight for origin attribution. A newer
// command simply overwrites the marker; stale in-flight acknowledgments are
// harmless.
func (h *TRVHealth) RecordPending(target float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := target
	h.pendingTarget = &t
	h.pendingSince = time.Now()
}

// RecordCommandSent counts one delivery attempt.
func (h *TRVHealth) RecordCommandSent() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentAttempts++
	h.totalCommands++
	h.lastCommandSent = time.Now()
}

// RecordCommandAck records a successful acknowledgment: attempts reset to
// zero, the response time joins the sliding window and the 72 h log, and any
// pending command is promoted to last-acknowledged.
func (h *TRVHealth) RecordCommandAck(seconds float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ackLocked(seconds, time.Now())
}

// CompletePending acknowledges the in-flight command if one is still
// pending. Returns false when a concurrent status report already completed
// it.
func (h *TRVHealth) CompletePending(seconds float64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pendingTarget == nil {
		return false
	}
	h.ackLocked(seconds, time.Now())
	return true
}

func (h *TRVHealth) ackLocked(seconds float64, now time.Time) {
	h.lastCommandAck = now
	h.lastSeen = now
	h.currentAttempts = 0

	h.responseTimes = append(h.responseTimes, seconds)
	if len(h.responseTimes) > responseWindowSize {
		h.responseTimes = h.responseTimes[1:]
	}
	h.outcomes = append(h.outcomes, commandOutcome{at: now, seconds: seconds, success: true})

	if h.pendingTarget != nil {
		h.ackedTarget = h.pendingTarget
		h.pendingTarget = nil
	}
}

// RecordCommandFailed records an exhausted delivery sequence. The cumulative
// elapsed wait goes into the 72 h log as the failure duration.
func (h *TRVHealth) RecordCommandFailed(elapsedSeconds float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failedCommands++
	h.retryCount24h++
	h.outcomes = append(h.outcomes, commandOutcome{at: time.Now(), seconds: elapsedSeconds, success: false})
}

// UpdateFromStatus ingests a spontaneous target-temperature report. If it
// matches the pending command within tolerance and the ack window, it counts
// as the acknowledgment; either way it refreshes the reported target and
// last-seen.
func (h *TRVHealth) UpdateFromStatus(target float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now()

	if h.pendingTarget != nil &&
		math.Abs(target-*h.pendingTarget) < tempMatchTolerance &&
		now.Sub(h.pendingSince) < statusAckWindow {
		h.ackLocked(now.Sub(h.pendingSince).Seconds(), now)
	}

	t := target
	h.currentTarget = &t
	h.lastSeen = now
}

// ApplyDeviceStatus merges a device status/info payload: valve position,
// calibration, battery, network address, and optionally the target
// temperature (with the same ack semantics as UpdateFromStatus).
func (h *TRVHealth) ApplyDeviceStatus(st roomheat.DeviceStatus) {
	if st.TargetTemp != nil {
		h.UpdateFromStatus(*st.TargetTemp)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if st.ValvePosition != nil {
		h.valvePosition = *st.ValvePosition
	}
	if st.Calibrated != nil {
		h.isCalibrated = *st.Calibrated
	}
	if st.BatteryLevel != nil {
		h.batteryLevel = *st.BatteryLevel
	}
	if st.Address != "" {
		h.deviceAddr = st.Address
	}
	h.lastSeen = time.Now()
}

// State classifies current health. Pure function of the record's fields.
func (h *TRVHealth) State() roomheat.HealthState {
	return h.StateAt(time.Now())
}

// StateAt classifies health as of a given instant.
//
// A live-but-miscalibrated valve is a distinct failure mode from a silent
// one, so calibration is checked first. A device that was never commanded is
// optimistically healthy, and a freshly commanded one gets a short grace
// period before silence counts against it.
func (h *TRVHealth) StateAt(now time.Time) roomheat.HealthState {
	h.mu.Lock()
	defer h.mu.Unlock()

	reporting := !h.lastSeen.IsZero() && now.Sub(h.lastSeen) <= staleAfter
	if reporting && (h.valvePosition == valvePositionFault || !h.isCalibrated) {
		return roomheat.HealthCalibrationError
	}

	if h.totalCommands == 0 {
		return roomheat.HealthHealthy
	}
	if h.lastSeen.IsZero() && now.Sub(h.lastCommandSent) < commandGracePeriod {
		return roomheat.HealthHealthy
	}
	if !reporting {
		return roomheat.HealthUnresponsive
	}

	switch {
	case h.currentAttempts >= unresponsiveRetries:
		return roomheat.HealthUnresponsive
	case h.currentAttempts >= poorRetries || h.retryCount24h >= poorRetries24h:
		return roomheat.HealthPoor
	case h.currentAttempts >= degradedRetries || h.retryCount24h >= degradedRetries24h:
		return roomheat.HealthDegraded
	}
	return roomheat.HealthHealthy
}

// Origin attributes the currently reported target: automation when it
// matches the pending or last-acknowledged commanded value, guest otherwise,
// unknown when the device has never reported a target.
func (h *TRVHealth) Origin() roomheat.CommandOrigin {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.currentTarget == nil {
		return roomheat.OriginUnknown
	}
	return h.classifyLocked(*h.currentTarget)
}

// ClassifyTarget attributes an incoming reported target without recording
// it.
func (h *TRVHealth) ClassifyTarget(target float64) roomheat.CommandOrigin {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.classifyLocked(target)
}

func (h *TRVHealth) classifyLocked(target float64) roomheat.CommandOrigin {
	if h.pendingTarget != nil && math.Abs(target-*h.pendingTarget) < tempMatchTolerance {
		return roomheat.OriginAutomation
	}
	if h.ackedTarget != nil && math.Abs(target-*h.ackedTarget) < tempMatchTolerance {
		return roomheat.OriginAutomation
	}
	return roomheat.OriginGuest
}

// Stats aggregates the trailing 72 h of command outcomes. The log is pruned
// here, on read, never eagerly on write.
func (h *TRVHealth) Stats(now time.Time) roomheat.ResponseStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pruneLocked(now)

	var stats roomheat.ResponseStats
	var sum float64
	var succeeded int
	for _, o := range h.outcomes {
		stats.TotalCommands++
		if !o.success {
			stats.FailedCommands++
			continue
		}
		succeeded++
		sum += o.seconds
		if stats.MinResponseTime == 0 || o.seconds < stats.MinResponseTime {
			stats.MinResponseTime = o.seconds
		}
		if o.seconds > stats.MaxResponseTime {
			stats.MaxResponseTime = o.seconds
		}
	}
	if succeeded > 0 {
		stats.AvgResponseTime = sum / float64(succeeded)
	}
	if stats.TotalCommands > 0 {
		stats.SuccessRate = float64(succeeded) / float64(stats.TotalCommands) * 100
	}
	return stats
}

func (h *TRVHealth) pruneLocked(now time.Time) {
	cutoff := now.Add(-outcomeRetention)
	i := 0
	for ; i < len(h.outcomes); i++ {
		if h.outcomes[i].at.After(cutoff) {
			break
		}
	}
	if i > 0 {
		h.outcomes = append([]commandOutcome(nil), h.outcomes[i:]...)
	}
}

// ResetDailyCounts zeroes the 24-hour retry counter.
func (h *TRVHealth) ResetDailyCounts() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.retryCount24h = 0
}

// DeviceAddr returns the last known network address, if any.
func (h *TRVHealth) DeviceAddr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.deviceAddr
}

// CurrentTarget returns the last reported target temperature.
func (h *TRVHealth) CurrentTarget() (float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.currentTarget == nil {
		return 0, false
	}
	return *h.currentTarget, true
}

// PendingTarget returns the in-flight commanded temperature, if any.
func (h *TRVHealth) PendingTarget() (float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pendingTarget == nil {
		return 0, false
	}
	return *h.pendingTarget, true
}

// CurrentAttempts returns the consecutive unacknowledged attempt count.
func (h *TRVHealth) CurrentAttempts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentAttempts
}

// Snapshot copies the record for serialization.
func (h *TRVHealth) Snapshot(now time.Time) roomheat.HealthSnapshot {
	stats := h.Stats(now)
	state := h.StateAt(now)
	origin := h.Origin()

	h.mu.Lock()
	defer h.mu.Unlock()
	snap := roomheat.HealthSnapshot{
		ActuatorID:      h.id,
		State:           state,
		Origin:          origin,
		LastSeen:        h.lastSeen,
		LastCommandSent: h.lastCommandSent,
		LastCommandAck:  h.lastCommandAck,
		CurrentAttempts: h.currentAttempts,
		RetryCount24h:   h.retryCount24h,
		TotalCommands:   h.totalCommands,
		FailedCommands:  h.failedCommands,
		ValvePosition:   h.valvePosition,
		IsCalibrated:    h.isCalibrated,
		BatteryLevel:    h.batteryLevel,
		DeviceAddress:   h.deviceAddr,
		Stats:           stats,
	}
	if h.currentTarget != nil {
		v := *h.currentTarget
		snap.CurrentTarget = &v
	}
	if h.pendingTarget != nil {
		v := *h.pendingTarget
		snap.PendingTarget = &v
	}
	if h.ackedTarget != nil {
		v := *h.ackedTarget
		snap.AckedTarget = &v
	}
	return snap
}

// TRVTracker owns the per-actuator health records, created lazily on first
// reference and kept for the life of the process.
type TRVTracker struct {
	mu      sync.RWMutex
	records map[roomheat.ActuatorID]*TRVHealth
}

func NewTRVTracker() *TRVTracker {
	return &TRVTracker{records: make(map[roomheat.ActuatorID]*TRVHealth)}
}

// Get returns the health record for an actuator, creating it if needed.
func (t *TRVTracker) Get(id roomheat.ActuatorID) *TRVHealth {
	t.mu.RLock()
	h, ok := t.records[id]
	t.mu.RUnlock()
	if ok {
		return h
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.records[id]; ok {
		return h
	}
	h = newTRVHealth(id)
	t.records[id] = h
	return h
}

// All returns every tracked record, ordered by actuator id.
func (t *TRVTracker) All() []*TRVHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*TRVHealth, 0, len(t.records))
	for _, h := range t.records {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// ReportedTarget implements StateObserver over the tracked records. Only
// existing records answer; polling never creates one.
func (t *TRVTracker) ReportedTarget(id roomheat.ActuatorID) (float64, bool) {
	t.mu.RLock()
	h, ok := t.records[id]
	t.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return h.CurrentTarget()
}

// Summary aggregates classification counts and per-actuator snapshots.
func (t *TRVTracker) Summary(now time.Time) roomheat.HealthSummary {
	all := t.All()
	summary := roomheat.HealthSummary{
		Total:   len(all),
		Details: make([]roomheat.HealthSnapshot, 0, len(all)),
	}
	for _, h := range all {
		snap := h.Snapshot(now)
		summary.Details = append(summary.Details, snap)
		switch snap.State {
		case roomheat.HealthHealthy:
			summary.Healthy++
		case roomheat.HealthDegraded:
			summary.Degraded++
		case roomheat.HealthPoor:
			summary.Poor++
		case roomheat.HealthUnresponsive:
			summary.Unresponsive++
		case roomheat.HealthCalibrationError:
			summary.CalibrationError++
		}
	}
	return summary
}

// ResetDailyCounts zeroes every record's 24-hour retry counter.
func (t *TRVTracker) ResetDailyCounts() {
	for _, h := range t.All() {
		h.ResetDailyCounts()
	}
}

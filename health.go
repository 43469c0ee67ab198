package roomheat

import "time"

// HealthState is the derived, non-persisted responsiveness classification of
// one actuator.
type HealthState string

const (
	HealthHealthy          HealthState = "healthy"
	HealthDegraded         HealthState = "degraded"
	HealthPoor             HealthState = "poor"
	HealthUnresponsive     HealthState = "unresponsive"
	HealthCalibrationError HealthState = "calibration_error"
)

// CommandOrigin attributes an actuator's currently reported setpoint to the
// automation system or to direct guest action.
type CommandOrigin string

const (
	OriginAutomation CommandOrigin = "automation"
	OriginGuest      CommandOrigin = "guest"
	OriginUnknown    CommandOrigin = "unknown"
)

// ResponseStats aggregates an actuator's trailing 72-hour command outcomes.
type ResponseStats struct {
	AvgResponseTime float64 `json:"avg_response_time"`
	MinResponseTime float64 `json:"min_response_time"`
	MaxResponseTime float64 `json:"max_response_time"`
	TotalCommands   int     `json:"total_commands_72h"`
	FailedCommands  int     `json:"failed_commands_72h"`
	SuccessRate     float64 `json:"success_rate"`
}

// HealthSnapshot is a read-only copy of one actuator's health record, safe to
// serialize while the record keeps mutating.
type HealthSnapshot struct {
	ActuatorID      ActuatorID    `json:"actuator_id"`
	State           HealthState   `json:"health_state"`
	Origin          CommandOrigin `json:"origin"`
	LastSeen        time.Time     `json:"last_seen,omitempty"`
	LastCommandSent time.Time     `json:"last_command_sent,omitempty"`
	LastCommandAck  time.Time     `json:"last_command_ack,omitempty"`
	CurrentAttempts int           `json:"current_attempts"`
	RetryCount24h   int           `json:"retry_count_24h"`
	TotalCommands   int           `json:"total_commands"`
	FailedCommands  int           `json:"failed_commands"`
	ValvePosition   int           `json:"valve_position"`
	IsCalibrated    bool          `json:"is_calibrated"`
	BatteryLevel    int           `json:"battery_level"` // -1 when unknown
	DeviceAddress   string        `json:"device_address,omitempty"`
	CurrentTarget   *float64      `json:"current_target,omitempty"`
	PendingTarget   *float64      `json:"pending_target,omitempty"`
	AckedTarget     *float64      `json:"acked_target,omitempty"`
	Stats           ResponseStats `json:"stats_72h"`
}

// HealthSummary aggregates classification counts across all tracked
// actuators.
type HealthSummary struct {
	Total            int              `json:"total"`
	Healthy          int              `json:"healthy"`
	Degraded         int              `json:"degraded"`
	Poor             int              `json:"poor"`
	Unresponsive     int              `json:"unresponsive"`
	CalibrationError int              `json:"calibration_error"`
	Details          []HealthSnapshot `json:"details"`
}

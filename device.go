package roomheat

// DeviceStatus is a partial report of an actuator's externally observed
// state. Nil fields were absent from the payload. Sources: MQTT status/info
// messages and out-of-band wake responses.
type DeviceStatus struct {
	TargetTemp    *float64 `json:"target_temp,omitempty"`
	ValvePosition *int     `json:"valve_position,omitempty"`
	Calibrated    *bool    `json:"calibrated,omitempty"`
	BatteryLevel  *int     `json:"battery_level,omitempty"`
	Address       string   `json:"address,omitempty"`
}

package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"roomheat"
)

// Built-in defaults, used when configs/config.yml leaves a key unset.
const (
	DefaultArrivalTime      = "15:00:00"
	DefaultDepartureTime    = "10:00:00"
	DefaultHeatingOffsetMin = 120
	DefaultCoolingOffsetMin = -30 // negative = start cooling before checkout
	DefaultOccupiedTempC    = 22.0
	DefaultVacantTempC      = 16.0
	DefaultMaxRetryAttempts = 10
	DefaultPollIntervalSec  = 5
	DefaultStaggerDelaySec  = 10
	DefaultWakeWaitSec      = 30
	DefaultScanIntervalMin  = 10
)

// defaultRetryDelays is the escalating per-attempt acknowledgment budget in
// seconds. Short waits first: early failures are usually a sleeping device,
// persistent ones warrant long backoff to keep the radio channel clear.
var defaultRetryDelays = []int{30, 60, 120, 300, 300, 600, 600, 900, 900, 1800}

// LocationBathroom marks a valve that keeps its own setpoint during guest
// deviation sync.
const LocationBathroom = "bathroom"

// TRV declares one valve actuator belonging to a room.
type TRV struct {
	ID       string `mapstructure:"id"`
	Location string `mapstructure:"location"` // e.g. "bedroom", "bathroom"
}

// RoomOverride carries per-room settings; nil fields fall back to the global
// defaults.
type RoomOverride struct {
	DefaultArrivalTime      *string  `mapstructure:"default_arrival_time"`
	DefaultDepartureTime    *string  `mapstructure:"default_departure_time"`
	HeatingOffsetMinutes    *int     `mapstructure:"heating_offset_minutes"`
	CoolingOffsetMinutes    *int     `mapstructure:"cooling_offset_minutes"`
	OccupiedTemperature     *float64 `mapstructure:"occupied_temperature"`
	VacantTemperature       *float64 `mapstructure:"vacant_temperature"`
	AutoMode                *bool    `mapstructure:"auto_mode"`
	SyncSetpoints           *bool    `mapstructure:"sync_setpoints"`
	ExcludeBathroomFromSync *bool    `mapstructure:"exclude_bathroom_from_sync"`
	TRVs                    []TRV    `mapstructure:"trvs"`
}

// MQTT holds broker connection settings for the actuator command channel.
type MQTT struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Settings is the full, typed application configuration. It is read once at
// startup and read-only afterwards.
type Settings struct {
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	DBPath   string `mapstructure:"db_path"`

	SigningKey string `mapstructure:"signing_key"`

	MQTTConn MQTT `mapstructure:"mqtt"`

	DefaultArrival       string  `mapstructure:"default_arrival_time"`
	DefaultDeparture     string  `mapstructure:"default_departure_time"`
	HeatingOffsetMinutes int     `mapstructure:"heating_offset_minutes"`
	CoolingOffsetMinutes int     `mapstructure:"cooling_offset_minutes"`
	OccupiedTemperature  float64 `mapstructure:"occupied_temperature"`
	VacantTemperature    float64 `mapstructure:"vacant_temperature"`

	MaxRetryAttempts  int   `mapstructure:"max_retry_attempts"`
	RetryDelaySeconds []int `mapstructure:"retry_delay_seconds"`
	PollIntervalSec   int   `mapstructure:"poll_interval_seconds"`
	StaggerDelaySec   int   `mapstructure:"stagger_delay_seconds"`
	WakeWaitSec       int   `mapstructure:"wake_wait_seconds"`
	ScanIntervalMin   int   `mapstructure:"scan_interval_minutes"`

	Rooms map[string]RoomOverride `mapstructure:"rooms"`
}

// Load reads configs/config.yml into a typed Settings value.
func Load() (*Settings, error) {
	viper.AddConfigPath("configs")
	viper.SetConfigName("config")
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return fromViper()
}

func fromViper() (*Settings, error) {
	viper.SetDefault("port", "8080")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("db_path", "app.db")
	viper.SetDefault("default_arrival_time", DefaultArrivalTime)
	viper.SetDefault("default_departure_time", DefaultDepartureTime)
	viper.SetDefault("heating_offset_minutes", DefaultHeatingOffsetMin)
	viper.SetDefault("cooling_offset_minutes", DefaultCoolingOffsetMin)
	viper.SetDefault("occupied_temperature", DefaultOccupiedTempC)
	viper.SetDefault("vacant_temperature", DefaultVacantTempC)
	viper.SetDefault("max_retry_attempts", DefaultMaxRetryAttempts)
	viper.SetDefault("retry_delay_seconds", defaultRetryDelays)
	viper.SetDefault("poll_interval_seconds", DefaultPollIntervalSec)
	viper.SetDefault("stagger_delay_seconds", DefaultStaggerDelaySec)
	viper.SetDefault("wake_wait_seconds", DefaultWakeWaitSec)
	viper.SetDefault("scan_interval_minutes", DefaultScanIntervalMin)

	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(s.RetryDelaySeconds) == 0 {
		s.RetryDelaySeconds = defaultRetryDelays
	}
	return &s, nil
}

// Defaults returns Settings populated with built-in values only. Used by
// tests and as a safe fallback when no config file is present.
func Defaults() *Settings {
	return &Settings{
		Port:                 "8080",
		LogLevel:             "info",
		DBPath:               "app.db",
		DefaultArrival:       DefaultArrivalTime,
		DefaultDeparture:     DefaultDepartureTime,
		HeatingOffsetMinutes: DefaultHeatingOffsetMin,
		CoolingOffsetMinutes: DefaultCoolingOffsetMin,
		OccupiedTemperature:  DefaultOccupiedTempC,
		VacantTemperature:    DefaultVacantTempC,
		MaxRetryAttempts:     DefaultMaxRetryAttempts,
		RetryDelaySeconds:    defaultRetryDelays,
		PollIntervalSec:      DefaultPollIntervalSec,
		StaggerDelaySec:      DefaultStaggerDelaySec,
		WakeWaitSec:          DefaultWakeWaitSec,
		ScanIntervalMin:      DefaultScanIntervalMin,
	}
}

func (s *Settings) room(id roomheat.RoomID) (RoomOverride, bool) {
	ov, ok := s.Rooms[string(id)]
	return ov, ok
}

// ArrivalTimeFor returns the configured default check-in time-of-day for a
// room.
func (s *Settings) ArrivalTimeFor(id roomheat.RoomID) string {
	if ov, ok := s.room(id); ok && ov.DefaultArrivalTime != nil {
		return *ov.DefaultArrivalTime
	}
	return s.DefaultArrival
}

// DepartureTimeFor returns the configured default check-out time-of-day for a
// room.
func (s *Settings) DepartureTimeFor(id roomheat.RoomID) string {
	if ov, ok := s.room(id); ok && ov.DefaultDepartureTime != nil {
		return *ov.DefaultDepartureTime
	}
	return s.DefaultDeparture
}

// HeatingOffsetFor returns the pre-heat lead time for a room.
func (s *Settings) HeatingOffsetFor(id roomheat.RoomID) time.Duration {
	m := s.HeatingOffsetMinutes
	if ov, ok := s.room(id); ok && ov.HeatingOffsetMinutes != nil {
		m = *ov.HeatingOffsetMinutes
	}
	return time.Duration(m) * time.Minute
}

// CoolingOffsetFor returns the cool-down offset for a room. Negative values
// start cooling before the effective departure.
func (s *Settings) CoolingOffsetFor(id roomheat.RoomID) time.Duration {
	m := s.CoolingOffsetMinutes
	if ov, ok := s.room(id); ok && ov.CoolingOffsetMinutes != nil {
		m = *ov.CoolingOffsetMinutes
	}
	return time.Duration(m) * time.Minute
}

// OccupiedTempFor returns the comfort setpoint for a room.
func (s *Settings) OccupiedTempFor(id roomheat.RoomID) float64 {
	if ov, ok := s.room(id); ok && ov.OccupiedTemperature != nil {
		return *ov.OccupiedTemperature
	}
	return s.OccupiedTemperature
}

// VacantTempFor returns the setback setpoint for a room.
func (s *Settings) VacantTempFor(id roomheat.RoomID) float64 {
	if ov, ok := s.room(id); ok && ov.VacantTemperature != nil {
		return *ov.VacantTemperature
	}
	return s.VacantTemperature
}

// AutoModeDefault returns the initial auto-mode flag for a room. The flag is
// mutable at runtime; this is only the starting value.
func (s *Settings) AutoModeDefault(id roomheat.RoomID) bool {
	if ov, ok := s.room(id); ok && ov.AutoMode != nil {
		return *ov.AutoMode
	}
	return true
}

// SyncSetpointsFor reports whether guest-deviation valve sync is enabled for
// a room.
func (s *Settings) SyncSetpointsFor(id roomheat.RoomID) bool {
	if ov, ok := s.room(id); ok && ov.SyncSetpoints != nil {
		return *ov.SyncSetpoints
	}
	return true
}

// ExcludeBathroomFor reports whether bathroom valves are excluded from guest
// deviation sync for a room.
func (s *Settings) ExcludeBathroomFor(id roomheat.RoomID) bool {
	if ov, ok := s.room(id); ok && ov.ExcludeBathroomFromSync != nil {
		return *ov.ExcludeBathroomFromSync
	}
	return true
}

// TRVsFor returns the declared actuators of a room, in configured order.
func (s *Settings) TRVsFor(id roomheat.RoomID) []TRV {
	if ov, ok := s.room(id); ok {
		return ov.TRVs
	}
	return nil
}

// RetryDelays returns the per-attempt acknowledgment budgets, capped at
// MaxRetryAttempts entries.
func (s *Settings) RetryDelays() []time.Duration {
	n := s.MaxRetryAttempts
	if n <= 0 || n > len(s.RetryDelaySeconds) {
		n = len(s.RetryDelaySeconds)
	}
	out := make([]time.Duration, 0, n)
	for _, sec := range s.RetryDelaySeconds[:n] {
		out = append(out, time.Duration(sec)*time.Second)
	}
	return out
}

// PollInterval is the acknowledgment polling cadence inside one attempt.
func (s *Settings) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSec) * time.Second
}

// StaggerDelay is the gap between successive actuators in a room batch.
func (s *Settings) StaggerDelay() time.Duration {
	return time.Duration(s.StaggerDelaySec) * time.Second
}

// WakeWait is the acknowledgment budget for the single post-wake attempt.
func (s *Settings) WakeWait() time.Duration {
	return time.Duration(s.WakeWaitSec) * time.Second
}

// ScanInterval is the periodic evaluation tick for the control loop.
func (s *Settings) ScanInterval() time.Duration {
	return time.Duration(s.ScanIntervalMin) * time.Minute
}

package service

import (
	"context"
	"time"

	"roomheat"
	"roomheat/internal/config"
	"roomheat/internal/logger"
	"roomheat/internal/repository"
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Rooms is the booking-source boundary: ingest endpoints push reservation
// snapshots in, the control core reads current/next bookings out.
type Rooms interface {
	IngestRooms(ctx context.Context, rooms []roomheat.RoomInfo) error
	IngestBookings(ctx context.Context, bookings []roomheat.Booking) error
	CurrentOrNextBooking(ctx context.Context, roomID roomheat.RoomID) (*roomheat.Booking, error)
	AllRooms(ctx context.Context) (map[roomheat.RoomID]roomheat.RoomInfo, error)
	RoomBookings(ctx context.Context, roomID roomheat.RoomID) ([]roomheat.Booking, error)
}

// Heating drives the per-room state machine and actuator commands.
// Long-running command sequences are dispatched on background goroutines;
// Wait drains them on shutdown.
type Heating interface {
	Run(ctx context.Context, tick time.Duration)
	EvaluateAll(ctx context.Context)
	EvaluateRoom(ctx context.Context, roomID roomheat.RoomID) error
	ForceRoomTemperature(ctx context.Context, roomID roomheat.RoomID, temp float64) ([]roomheat.ActuatorID, error)
	SetRoomAutoMode(ctx context.Context, roomID roomheat.RoomID, enabled bool) error
	AutoMode(roomID roomheat.RoomID) bool
	SyncRoomValves(ctx context.Context, roomID roomheat.RoomID, temp float64) ([]roomheat.ActuatorID, error)
	RetryUnresponsive(ctx context.Context) []roomheat.ActuatorID
	RoomState(roomID roomheat.RoomID) roomheat.RoomState
	StatesSummary() map[roomheat.RoomState]int
	Wait()
}

// Monitoring exposes read-only health and room overviews.
type Monitoring interface {
	HealthSummary() roomheat.HealthSummary
	ActuatorHealth(id roomheat.ActuatorID) (roomheat.HealthSnapshot, bool)
	RoomOverview(ctx context.Context, roomID roomheat.RoomID) (RoomOverview, error)
}

// EventLog exposes the append-only event history with filtering.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]roomheat.Event, error)
}

// EventSink receives the core's outward events (degraded, unresponsive,
// room-status-changed).
type EventSink interface {
	Emit(ctx context.Context, e roomheat.Event)
}

// CommandChannel delivers fire-and-forget set-temperature commands to an
// actuator. No delivery guarantee.
type CommandChannel interface {
	SendSetTemperature(ctx context.Context, id roomheat.ActuatorID, temp float64) error
}

// StateObserver reads an actuator's last reported target temperature,
// eventually consistent with the physical device.
type StateObserver interface {
	ReportedTarget(id roomheat.ActuatorID) (float64, bool)
}

// Waker is the out-of-band last-resort query to a device's network address.
type Waker interface {
	Wake(ctx context.Context, addr string) (*roomheat.DeviceStatus, error)
}

// BookingSource is the subset of Rooms the heating controller depends on.
type BookingSource interface {
	CurrentOrNextBooking(ctx context.Context, roomID roomheat.RoomID) (*roomheat.Booking, error)
	AllRooms(ctx context.Context) (map[roomheat.RoomID]roomheat.RoomInfo, error)
}

// Service aggregates all sub-services.
type Service struct {
	Rooms
	Heating
	Monitoring
	EventLog
	Authorization

	// Feed receives actuator telemetry from the transport layer.
	Feed *TRVFeed
}

// Deps carries the external collaborators NewService wires together.
type Deps struct {
	Repos   *repository.Repository
	Cfg     *config.Settings
	Log     *logger.Logger
	Channel CommandChannel
	Waker   Waker
}

// NewService wires the repository and transport layers into concrete
// services.
func NewService(d Deps) *Service {
	tracker := NewTRVTracker()
	events := NewEventRecorder(d.Repos.Events, d.Log)
	dispatcher := NewDispatcher(d.Cfg, d.Channel, tracker, d.Waker, events, d.Log)
	processor := NewBookingProcessor(d.Cfg, d.Log)
	rooms := NewRoomsService(d.Repos.Bookings, d.Repos.Rooms, d.Log)
	heating := NewHeatingService(d.Cfg, d.Log, rooms, processor, dispatcher, tracker, events)
	return &Service{
		Rooms:         rooms,
		Heating:       heating,
		Monitoring:    NewMonitoringService(tracker, rooms, processor, heating),
		EventLog:      NewEventLogService(d.Repos.Events),
		Authorization: NewAuthService(d.Repos.Auth, d.Cfg.SigningKey),
		Feed:          NewTRVFeed(tracker, heating, d.Log),
	}
}

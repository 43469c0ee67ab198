package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"roomheat"
	"roomheat/internal/service"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockRooms struct {
	rooms    map[roomheat.RoomID]roomheat.RoomInfo
	bookings []roomheat.Booking
	err      error

	lastIngestedRooms    []roomheat.RoomInfo
	lastIngestedBookings []roomheat.Booking
}

func (m *mockRooms) IngestRooms(ctx context.Context, rooms []roomheat.RoomInfo) error {
	m.lastIngestedRooms = rooms
	return m.err
}
func (m *mockRooms) IngestBookings(ctx context.Context, bookings []roomheat.Booking) error {
	m.lastIngestedBookings = bookings
	return m.err
}
func (m *mockRooms) CurrentOrNextBooking(ctx context.Context, roomID roomheat.RoomID) (*roomheat.Booking, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.bookings {
		if m.bookings[i].RoomID == roomID {
			return &m.bookings[i], nil
		}
	}
	return nil, nil
}
func (m *mockRooms) AllRooms(ctx context.Context) (map[roomheat.RoomID]roomheat.RoomInfo, error) {
	return m.rooms, m.err
}
func (m *mockRooms) RoomBookings(ctx context.Context, roomID roomheat.RoomID) ([]roomheat.Booking, error) {
	return m.bookings, m.err
}

type mockHeating struct {
	forceIDs  []roomheat.ActuatorID
	forceErr  error
	syncIDs   []roomheat.ActuatorID
	syncErr   error
	retryIDs  []roomheat.ActuatorID
	autoErr   error
	state     roomheat.RoomState
	auto      bool
	states    map[roomheat.RoomState]int
	lastForce float64
	lastSync  float64
	lastAuto  bool
	lastRoom  roomheat.RoomID
}

func (m *mockHeating) Run(ctx context.Context, tick time.Duration) {}
func (m *mockHeating) EvaluateAll(ctx context.Context)             {}

func (m *mockHeating) EvaluateRoom(ctx context.Context, roomID roomheat.RoomID) error {
	m.lastRoom = roomID
	return nil
}
func (m *mockHeating) ForceRoomTemperature(ctx context.Context, roomID roomheat.RoomID, temp float64) ([]roomheat.ActuatorID, error) {
	m.lastRoom = roomID
	m.lastForce = temp
	return m.forceIDs, m.forceErr
}
func (m *mockHeating) SetRoomAutoMode(ctx context.Context, roomID roomheat.RoomID, enabled bool) error {
	m.lastRoom = roomID
	m.lastAuto = enabled
	return m.autoErr
}
func (m *mockHeating) AutoMode(roomID roomheat.RoomID) bool { return m.auto }
func (m *mockHeating) SyncRoomValves(ctx context.Context, roomID roomheat.RoomID, temp float64) ([]roomheat.ActuatorID, error) {
	m.lastRoom = roomID
	m.lastSync = temp
	return m.syncIDs, m.syncErr
}
func (m *mockHeating) RetryUnresponsive(ctx context.Context) []roomheat.ActuatorID {
	return m.retryIDs
}
func (m *mockHeating) RoomState(roomID roomheat.RoomID) roomheat.RoomState { return m.state }
func (m *mockHeating) StatesSummary() map[roomheat.RoomState]int           { return m.states }
func (m *mockHeating) Wait()                                               {}

type mockMonitoring struct {
	summary  roomheat.HealthSummary
	snapshot roomheat.HealthSnapshot
	known    bool
	overview service.RoomOverview
	err      error
}

func (m *mockMonitoring) HealthSummary() roomheat.HealthSummary { return m.summary }
func (m *mockMonitoring) ActuatorHealth(id roomheat.ActuatorID) (roomheat.HealthSnapshot, bool) {
	return m.snapshot, m.known
}
func (m *mockMonitoring) RoomOverview(ctx context.Context, roomID roomheat.RoomID) (service.RoomOverview, error) {
	return m.overview, m.err
}

type mockEventLog struct {
	resp     []roomheat.Event
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]roomheat.Event, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

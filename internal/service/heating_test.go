package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"roomheat"
	"roomheat/internal/config"
	"roomheat/internal/logger"
)

type fakeBookingSource struct {
	mu       sync.Mutex
	bookings map[roomheat.RoomID]*roomheat.Booking
	rooms    map[roomheat.RoomID]roomheat.RoomInfo
	err      error
}

func newFakeSource() *fakeBookingSource {
	return &fakeBookingSource{
		bookings: make(map[roomheat.RoomID]*roomheat.Booking),
		rooms:    make(map[roomheat.RoomID]roomheat.RoomInfo),
	}
}

func (f *fakeBookingSource) set(roomID roomheat.RoomID, b *roomheat.Booking) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookings[roomID] = b
}

func (f *fakeBookingSource) CurrentOrNextBooking(ctx context.Context, roomID roomheat.RoomID) (*roomheat.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.bookings[roomID]
	if !ok || b == nil {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBookingSource) AllRooms(ctx context.Context) (map[roomheat.RoomID]roomheat.RoomInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[roomheat.RoomID]roomheat.RoomInfo, len(f.rooms))
	for id, r := range f.rooms {
		out[id] = r
	}
	return out, nil
}

// heatingFixture wires a HeatingService over fakes with an always-confirming
// command channel.
type heatingFixture struct {
	svc     *HeatingService
	source  *fakeBookingSource
	channel *fakeChannel
	sink    *fakeSink
	tracker *TRVTracker
}

func newHeatingFixture(t *testing.T, cfg *config.Settings) *heatingFixture {
	t.Helper()
	log := logger.Get(logger.ErrorLevel)
	source := newFakeSource()
	ch := &fakeChannel{}
	sink := &fakeSink{}
	tracker := NewTRVTracker()
	dispatcher := NewDispatcher(cfg, ch, tracker, &fakeWaker{}, sink, log)
	ch.onSend = func(id roomheat.ActuatorID, temp float64) {
		tracker.Get(id).UpdateFromStatus(temp)
	}
	processor := NewBookingProcessor(cfg, log)
	svc := NewHeatingService(cfg, log, source, processor, dispatcher, tracker, sink)
	return &heatingFixture{svc: svc, source: source, channel: ch, sink: sink, tracker: tracker}
}

func roomConfig() *config.Settings {
	cfg := fastConfig(2)
	cfg.Rooms = map[string]config.RoomOverride{
		"101": {
			TRVs: []config.TRV{
				{ID: "trv-bed", Location: "bedroom"},
				{ID: "trv-bath", Location: config.LocationBathroom},
			},
		},
	}
	return cfg
}

// bookingInWindow returns a confirmed booking whose stay covers "now".
func bookingInWindow(roomID roomheat.RoomID) *roomheat.Booking {
	now := time.Now()
	return &roomheat.Booking{
		ID:        "b1",
		RoomID:    roomID,
		Arrival:   now.Add(-24 * time.Hour),
		Departure: now.Add(24 * time.Hour),
		Status:    roomheat.StatusConfirmed,
	}
}

// bookingFarFuture returns a confirmed booking days away, classifying the
// room as booked.
func bookingFarFuture(roomID roomheat.RoomID) *roomheat.Booking {
	now := time.Now()
	return &roomheat.Booking{
		ID:        "b1",
		RoomID:    roomID,
		Arrival:   now.Add(5 * 24 * time.Hour),
		Departure: now.Add(7 * 24 * time.Hour),
		Status:    roomheat.StatusConfirmed,
	}
}

func TestHeating_CommandsOnlyOnTransition(t *testing.T) {
	fx := newHeatingFixture(t, roomConfig())
	ctx := context.Background()

	// First evaluation records the state without commanding; a restart must
	// not replay commands.
	fx.source.set("101", bookingFarFuture("101"))
	if err := fx.svc.EvaluateRoom(ctx, "101"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	fx.svc.Wait()
	if got := len(fx.channel.sent()); got != 0 {
		t.Fatalf("sends after first evaluation = %d, want 0", got)
	}
	if got := fx.svc.RoomState("101"); got != roomheat.RoomBooked {
		t.Fatalf("state = %s, want booked", got)
	}

	// The stay moves into its window: one batch to both valves.
	fx.source.set("101", bookingInWindow("101"))
	if err := fx.svc.EvaluateRoom(ctx, "101"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	fx.svc.Wait()

	sent := fx.channel.sent()
	if len(sent) != 2 {
		t.Fatalf("sends = %d, want 2", len(sent))
	}
	for _, s := range sent {
		if s.temp != config.DefaultOccupiedTempC {
			t.Fatalf("commanded %.1f, want %.1f", s.temp, config.DefaultOccupiedTempC)
		}
	}
	if got := fx.svc.RoomState("101"); got != roomheat.RoomOccupied {
		t.Fatalf("state = %s, want occupied", got)
	}

	// Steady state: no further commands.
	if err := fx.svc.EvaluateRoom(ctx, "101"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	fx.svc.Wait()
	if got := len(fx.channel.sent()); got != 2 {
		t.Fatalf("sends after steady evaluation = %d, want 2", got)
	}
}

func TestHeating_ArrivalTriggersImmediateCommand(t *testing.T) {
	fx := newHeatingFixture(t, roomConfig())
	ctx := context.Background()

	b := bookingFarFuture("101")
	fx.source.set("101", b)
	if err := fx.svc.EvaluateRoom(ctx, "101"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	fx.svc.Wait()

	// Guest checks in early; the room is still outside its heating window.
	arrived := *b
	arrived.Status = roomheat.StatusArrived
	fx.source.set("101", &arrived)
	if err := fx.svc.EvaluateRoom(ctx, "101"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	fx.svc.Wait()

	sent := fx.channel.sent()
	if len(sent) != 2 {
		t.Fatalf("sends = %d, want 2", len(sent))
	}
	for _, s := range sent {
		if s.temp != config.DefaultOccupiedTempC {
			t.Fatalf("commanded %.1f, want occupied temp", s.temp)
		}
	}
	if got := len(fx.sink.byType(roomheat.EventRoomStatusChanged)); got != 1 {
		t.Fatalf("status events = %d, want 1", got)
	}
}

func TestHeating_DepartureTriggersSetback(t *testing.T) {
	fx := newHeatingFixture(t, roomConfig())
	ctx := context.Background()

	b := bookingInWindow("101")
	b.Status = roomheat.StatusArrived
	fx.source.set("101", b)
	if err := fx.svc.EvaluateRoom(ctx, "101"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	fx.svc.Wait()
	before := len(fx.channel.sent())

	departed := *b
	departed.Status = roomheat.StatusDeparted
	fx.source.set("101", &departed)
	if err := fx.svc.EvaluateRoom(ctx, "101"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	fx.svc.Wait()

	sent := fx.channel.sent()[before:]
	if len(sent) != 2 {
		t.Fatalf("setback sends = %d, want 2", len(sent))
	}
	for _, s := range sent {
		if s.temp != config.DefaultVacantTempC {
			t.Fatalf("commanded %.1f, want vacant temp", s.temp)
		}
	}
}

func TestHeating_ForceTemperatureDisablesAutoMode(t *testing.T) {
	fx := newHeatingFixture(t, roomConfig())
	ctx := context.Background()

	ids, err := fx.svc.ForceRoomTemperature(ctx, "101", 25.0)
	if err != nil {
		t.Fatalf("force: %v", err)
	}
	fx.svc.Wait()

	if len(ids) != 2 {
		t.Fatalf("actuators = %d, want 2", len(ids))
	}
	if fx.svc.AutoMode("101") {
		t.Fatalf("auto mode should be disabled")
	}
	for _, s := range fx.channel.sent() {
		if s.temp != 25.0 {
			t.Fatalf("commanded %.1f, want 25.0", s.temp)
		}
	}

	// With auto mode off, transitions no longer command.
	fx.source.set("101", bookingInWindow("101"))
	before := len(fx.channel.sent())
	if err := fx.svc.EvaluateRoom(ctx, "101"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if err := fx.svc.EvaluateRoom(ctx, "101"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	fx.svc.Wait()
	if got := len(fx.channel.sent()); got != before {
		t.Fatalf("sends with auto off = %d, want %d", got, before)
	}
}

func TestHeating_ReenablingAutoModeConverges(t *testing.T) {
	fx := newHeatingFixture(t, roomConfig())
	ctx := context.Background()

	fx.source.set("101", bookingInWindow("101"))
	if _, err := fx.svc.ForceRoomTemperature(ctx, "101", 25.0); err != nil {
		t.Fatalf("force: %v", err)
	}
	fx.svc.Wait()
	before := len(fx.channel.sent())

	if err := fx.svc.SetRoomAutoMode(ctx, "101", true); err != nil {
		t.Fatalf("enable auto: %v", err)
	}
	fx.svc.Wait()

	sent := fx.channel.sent()[before:]
	if len(sent) != 2 {
		t.Fatalf("convergence sends = %d, want 2", len(sent))
	}
	for _, s := range sent {
		if s.temp != config.DefaultOccupiedTempC {
			t.Fatalf("commanded %.1f, want occupied temp", s.temp)
		}
	}
	if !fx.svc.AutoMode("101") {
		t.Fatalf("auto mode should be enabled")
	}
}

func TestHeating_GuestAdjustmentSyncsRoomExceptBathroom(t *testing.T) {
	fx := newHeatingFixture(t, roomConfig())
	ctx := context.Background()

	fx.svc.OnGuestAdjustment(ctx, "trv-bed", 19.0)
	fx.svc.Wait()

	sent := fx.channel.sent()
	if len(sent) != 1 {
		t.Fatalf("sends = %d, want 1 (bathroom excluded)", len(sent))
	}
	if sent[0].id != "trv-bed" || sent[0].temp != 19.0 {
		t.Fatalf("sync send = %+v", sent[0])
	}
}

func TestHeating_GuestAdjustmentSyncDisabled(t *testing.T) {
	cfg := roomConfig()
	ov := cfg.Rooms["101"]
	ov.SyncSetpoints = boolPtr(false)
	cfg.Rooms["101"] = ov

	fx := newHeatingFixture(t, cfg)
	fx.svc.OnGuestAdjustment(context.Background(), "trv-bed", 19.0)
	fx.svc.Wait()

	if got := len(fx.channel.sent()); got != 0 {
		t.Fatalf("sends = %d, want 0", got)
	}
}

func TestHeating_RetryUnresponsive(t *testing.T) {
	fx := newHeatingFixture(t, roomConfig())

	bad := fx.tracker.Get("trv-bed")
	bad.UpdateFromStatus(18.0)
	for i := 0; i < degradedRetries; i++ {
		bad.RecordCommandSent()
	}

	ids := fx.svc.RetryUnresponsive(context.Background())
	fx.svc.Wait()

	if len(ids) != 1 || ids[0] != "trv-bed" {
		t.Fatalf("retried = %v", ids)
	}
	if got := len(fx.channel.sent()); got == 0 {
		t.Fatalf("expected retry sends")
	}
}

// A forced setpoint is acknowledged with a 202 before delivery finishes, and
// the HTTP layer cancels the request context at that point. The batch must
// run to a clean ack anyway.
func TestHeating_BatchSurvivesCallerCancel(t *testing.T) {
	fx := newHeatingFixture(t, roomConfig())
	fx.svc.dispatcher.delays = []time.Duration{2 * time.Second}
	fx.svc.dispatcher.pollInterval = 5 * time.Millisecond

	// The valve acks shortly after the send, like a real radio hop.
	fx.channel.onSend = func(id roomheat.ActuatorID, temp float64) {
		go func() {
			time.Sleep(50 * time.Millisecond)
			fx.tracker.Get(id).UpdateFromStatus(temp)
		}()
	}

	reqCtx, cancel := context.WithCancel(context.Background())
	ids, err := fx.svc.ForceRoomTemperature(reqCtx, "101", 21.5)
	if err != nil {
		t.Fatalf("force: %v", err)
	}
	cancel()
	fx.svc.Wait()

	if got := len(fx.sink.byType(roomheat.EventTRVUnresponsive)); got != 0 {
		t.Fatalf("unresponsive events = %d, want 0", got)
	}
	for _, id := range ids {
		snap := fx.tracker.Get(id).Snapshot(time.Now())
		if snap.FailedCommands != 0 || snap.CurrentAttempts != 0 {
			t.Fatalf("%s: failed=%d attempts=%d, want clean ack", id, snap.FailedCommands, snap.CurrentAttempts)
		}
	}
}

// Shutdown still cancels in-flight batches: once Run's context is cancelled,
// Wait must return promptly even with a long attempt budget outstanding.
func TestHeating_ShutdownCancelsBatches(t *testing.T) {
	fx := newHeatingFixture(t, roomConfig())
	fx.svc.dispatcher.delays = []time.Duration{time.Minute}
	fx.svc.dispatcher.pollInterval = 5 * time.Millisecond
	fx.channel.onSend = nil // never acks

	runCtx, cancel := context.WithCancel(context.Background())
	go fx.svc.Run(runCtx, time.Hour)
	time.Sleep(20 * time.Millisecond) // let Run pin the batch context

	if _, err := fx.svc.ForceRoomTemperature(context.Background(), "101", 21.5); err != nil {
		t.Fatalf("force: %v", err)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		fx.svc.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("batches did not stop on shutdown")
	}
}

func TestHeating_StatesSummary(t *testing.T) {
	fx := newHeatingFixture(t, roomConfig())
	ctx := context.Background()

	fx.source.set("101", bookingInWindow("101"))
	if err := fx.svc.EvaluateRoom(ctx, "101"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	fx.svc.Wait()

	sum := fx.svc.StatesSummary()
	if sum[roomheat.RoomOccupied] != 1 {
		t.Fatalf("summary = %v", sum)
	}
}

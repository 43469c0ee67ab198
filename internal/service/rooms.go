package service

import (
	"context"
	"fmt"

	"roomheat"
	"roomheat/internal/logger"
	"roomheat/internal/repository"
)

// RoomsService persists reservation snapshots pushed by the booking source
// and answers booking queries for the control core.
type RoomsService struct {
	bookings repository.BookingRepo
	rooms    repository.RoomRepo
	log      *logger.Logger
}

func NewRoomsService(bookings repository.BookingRepo, rooms repository.RoomRepo, log *logger.Logger) *RoomsService {
	return &RoomsService{bookings: bookings, rooms: rooms, log: log}
}

func (s *RoomsService) IngestRooms(ctx context.Context, rooms []roomheat.RoomInfo) error {
	for _, r := range rooms {
		if r.ID == "" {
			return fmt.Errorf("room with empty id")
		}
	}
	if err := s.rooms.Upsert(ctx, rooms); err != nil {
		return fmt.Errorf("upsert rooms: %w", err)
	}
	s.log.Infow("rooms ingested", "count", len(rooms))
	return nil
}

// IngestBookings upserts a batch of reservation records. Records with
// unparseable times are stored as-is; the schedule calculator treats their
// zero times as a soft failure.
func (s *RoomsService) IngestBookings(ctx context.Context, bookings []roomheat.Booking) error {
	for _, b := range bookings {
		if b.ID == "" || b.RoomID == "" {
			return fmt.Errorf("booking with empty id or room")
		}
	}
	if err := s.bookings.Upsert(ctx, bookings); err != nil {
		return fmt.Errorf("upsert bookings: %w", err)
	}
	s.log.Infow("bookings ingested", "count", len(bookings))
	return nil
}

// CurrentOrNextBooking returns the booking that should drive the room right
// now: an arrived guest wins, otherwise the earliest active booking that has
// not yet ended. Nil when the room has none.
func (s *RoomsService) CurrentOrNextBooking(ctx context.Context, roomID roomheat.RoomID) (*roomheat.Booking, error) {
	return s.bookings.CurrentOrNext(ctx, roomID, timeNow())
}

func (s *RoomsService) AllRooms(ctx context.Context) (map[roomheat.RoomID]roomheat.RoomInfo, error) {
	return s.rooms.All(ctx)
}

func (s *RoomsService) RoomBookings(ctx context.Context, roomID roomheat.RoomID) ([]roomheat.Booking, error) {
	return s.bookings.ListForRoom(ctx, roomID)
}

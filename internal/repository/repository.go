package repository

import (
	"context"
	"database/sql"
	"time"

	"roomheat"
)

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*User, error)
}

// User is an operator account row.
type User struct {
	ID           int
	Username     string
	PasswordHash string
}

// BookingRepo stores reservation snapshots pushed by the booking source.
type BookingRepo interface {
	Upsert(ctx context.Context, bookings []roomheat.Booking) error
	CurrentOrNext(ctx context.Context, roomID roomheat.RoomID, now time.Time) (*roomheat.Booking, error)
	ListForRoom(ctx context.Context, roomID roomheat.RoomID) ([]roomheat.Booking, error)
}

// RoomRepo stores the set of known rooms.
type RoomRepo interface {
	Upsert(ctx context.Context, rooms []roomheat.RoomInfo) error
	All(ctx context.Context) (map[roomheat.RoomID]roomheat.RoomInfo, error)
}

// EventRepo is the append-only event log.
type EventRepo interface {
	Append(ctx context.Context, e roomheat.Event) error
	List(ctx context.Context, from, to time.Time, typ string) ([]roomheat.Event, error)
}

type Repository struct {
	Bookings BookingRepo
	Rooms    RoomRepo
	Events   EventRepo
	Auth     Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Bookings: NewBookingSQLite(db),
		Rooms:    NewRoomSQLite(db),
		Events:   NewEventSQLite(db),
		Auth:     NewUserRepository(db),
	}
}

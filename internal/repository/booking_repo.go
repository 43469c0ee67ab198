package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"roomheat"
)

type BookingSQLite struct {
	db *sql.DB
}

func NewBookingSQLite(db *sql.DB) *BookingSQLite { return &BookingSQLite{db: db} }

const upsertBookingSQL = `
	INSERT INTO bookings (id, room_id, arrival, departure, status, guest_name, occupants, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		room_id=excluded.room_id,
		arrival=excluded.arrival,
		departure=excluded.departure,
		status=excluded.status,
		guest_name=excluded.guest_name,
		occupants=excluded.occupants,
		updated_at=excluded.updated_at
`

const selectBookingCols = `
	SELECT id, room_id, arrival, departure, status, guest_name, occupants FROM bookings
`

// timestampOrNil formats a time for SQLite, mapping zero times (unparseable
// source values) to NULL.
func timestampOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(roomheat.TimestampLayout)
}

// Upsert stores a refresh cycle's booking snapshots.
func (r *BookingSQLite) Upsert(ctx context.Context, bookings []roomheat.Booking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, b := range bookings {
		if _, err := tx.ExecContext(ctx, upsertBookingSQL,
			b.ID,
			string(b.RoomID),
			timestampOrNil(b.Arrival),
			timestampOrNil(b.Departure),
			string(b.Status),
			b.GuestName,
			b.Occupants,
			now,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func scanBooking(scan func(dest ...any) error) (roomheat.Booking, error) {
	var (
		b         roomheat.Booking
		roomID    string
		status    string
		guestName sql.NullString
		arrival   sql.NullString
		departure sql.NullString
	)
	if err := scan(&b.ID, &roomID, &arrival, &departure, &status, &guestName, &b.Occupants); err != nil {
		return roomheat.Booking{}, err
	}
	b.RoomID = roomheat.RoomID(roomID)
	b.Status = roomheat.BookingStatus(status)
	b.GuestName = guestName.String
	if arrival.Valid {
		b.Arrival = roomheat.ParseTimestamp(arrival.String)
	}
	if departure.Valid {
		b.Departure = roomheat.ParseTimestamp(departure.String)
	}
	return b, nil
}

// CurrentOrNext returns the room's arrived booking if one exists, else the
// soonest confirmed/unconfirmed booking that has not yet ended.
func (r *BookingSQLite) CurrentOrNext(ctx context.Context, roomID roomheat.RoomID, now time.Time) (*roomheat.Booking, error) {
	row := r.db.QueryRowContext(ctx,
		selectBookingCols+` WHERE room_id = ? AND status = ? ORDER BY arrival DESC LIMIT 1`,
		string(roomID), string(roomheat.StatusArrived),
	)
	b, err := scanBooking(row.Scan)
	if err == nil {
		return &b, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	row = r.db.QueryRowContext(ctx,
		selectBookingCols+` WHERE room_id = ? AND status IN (?, ?)
			AND (departure IS NULL OR departure >= ?)
			ORDER BY arrival ASC LIMIT 1`,
		string(roomID),
		string(roomheat.StatusConfirmed), string(roomheat.StatusUnconfirmed),
		now.Format(roomheat.TimestampLayout),
	)
	b, err = scanBooking(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// ListForRoom returns all stored bookings for a room ordered by arrival.
func (r *BookingSQLite) ListForRoom(ctx context.Context, roomID roomheat.RoomID) ([]roomheat.Booking, error) {
	rows, err := r.db.QueryContext(ctx,
		selectBookingCols+` WHERE room_id = ? ORDER BY arrival ASC`,
		string(roomID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]roomheat.Booking, 0, 8)
	for rows.Next() {
		b, err := scanBooking(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

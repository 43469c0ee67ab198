package repository

import (
	"context"
	"database/sql"

	"roomheat"
)

type RoomSQLite struct {
	db *sql.DB
}

func NewRoomSQLite(db *sql.DB) *RoomSQLite { return &RoomSQLite{db: db} }

const upsertRoomSQL = `
	INSERT INTO rooms (id, name, category)
	VALUES (?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name=excluded.name,
		category=excluded.category
`

// Upsert stores the room directory from a refresh cycle.
func (r *RoomSQLite) Upsert(ctx context.Context, rooms []roomheat.RoomInfo) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, room := range rooms {
		if _, err := tx.ExecContext(ctx, upsertRoomSQL,
			string(room.ID), room.Name, room.Category,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// All returns every known room keyed by id.
func (r *RoomSQLite) All(ctx context.Context) (map[roomheat.RoomID]roomheat.RoomInfo, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, category FROM rooms ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[roomheat.RoomID]roomheat.RoomInfo)
	for rows.Next() {
		var (
			id       string
			name     string
			category sql.NullString
		)
		if err := rows.Scan(&id, &name, &category); err != nil {
			return nil, err
		}
		out[roomheat.RoomID(id)] = roomheat.RoomInfo{
			ID:       roomheat.RoomID(id),
			Name:     name,
			Category: category.String,
		}
	}
	return out, rows.Err()
}

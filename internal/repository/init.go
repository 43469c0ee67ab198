package repository

import (
	"database/sql"

	"roomheat/internal/repository/db"
)

// InitDB opens the SQLite database and applies the schema.
func InitDB(path string) (*sql.DB, error) {
	return db.InitDB(path)
}

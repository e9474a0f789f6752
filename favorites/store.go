// Package favorites owns the NTP favorites widget: a user-ordered list of
// saved sites, persisted in SQLite and editable from every open NTP.
package favorites

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hazyhaar/ntab/idgen"
)

// Favorite is one saved site. Position is the 0-based render index.
type Favorite struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Position int    `json:"position"`
}

// Schema defines the favorites table.
const Schema = `
CREATE TABLE IF NOT EXISTS ntp_favorites (
    id       TEXT PRIMARY KEY,
    title    TEXT NOT NULL,
    url      TEXT NOT NULL,
    position INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ntp_favorites_position ON ntp_favorites(position);
`

// ErrNotFound is returned when an operation targets a favorite that does
// not exist.
type ErrNotFound struct {
	ID string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("favorites: not found: %s", e.ID)
}

// Store is the SQLite-backed favorites list.
type Store struct {
	db    *sql.DB
	newID idgen.Generator
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithIDGenerator sets a custom ID generator for new favorites.
func WithIDGenerator(gen idgen.Generator) StoreOption {
	return func(s *Store) { s.newID = gen }
}

// NewStore wraps an open database.
func NewStore(db *sql.DB, opts ...StoreOption) *Store {
	s := &Store{db: db, newID: idgen.Prefixed("fav_", idgen.Default)}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init creates the favorites table if it doesn't exist.
func (s *Store) Init() error {
	_, err := s.db.Exec(Schema)
	return err
}

// List returns all favorites in position order.
func (s *Store) List(ctx context.Context) ([]Favorite, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, url, position FROM ntp_favorites ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("favorites: list: %w", err)
	}
	defer rows.Close()

	var out []Favorite
	for rows.Next() {
		var f Favorite
		if err := rows.Scan(&f.ID, &f.Title, &f.URL, &f.Position); err != nil {
			return nil, fmt.Errorf("favorites: scan: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("favorites: rows: %w", err)
	}
	return out, nil
}

// Add appends a favorite at the end of the list.
func (s *Store) Add(ctx context.Context, title, url string) (Favorite, error) {
	f := Favorite{ID: s.newID(), Title: title, URL: url}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var maxPos sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			`SELECT MAX(position) FROM ntp_favorites`).Scan(&maxPos); err != nil {
			return err
		}
		if maxPos.Valid {
			f.Position = int(maxPos.Int64) + 1
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO ntp_favorites (id, title, url, position) VALUES (?,?,?,?)`,
			f.ID, f.Title, f.URL, f.Position)
		return err
	})
	if err != nil {
		return Favorite{}, fmt.Errorf("favorites: add: %w", err)
	}
	return f, nil
}

// Remove deletes a favorite and closes the position gap.
func (s *Store) Remove(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM ntp_favorites WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("favorites: remove: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &ErrNotFound{ID: id}
		}
		return s.reindex(ctx, tx)
	})
}

// Move places a favorite at the given 0-based index, shifting the rest.
// An out-of-range index clamps to the list bounds.
func (s *Store) Move(ctx context.Context, id string, to int) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM ntp_favorites ORDER BY position ASC`)
		if err != nil {
			return fmt.Errorf("favorites: move: %w", err)
		}
		var ids []string
		for rows.Next() {
			var rowID string
			if err := rows.Scan(&rowID); err != nil {
				rows.Close()
				return fmt.Errorf("favorites: move scan: %w", err)
			}
			ids = append(ids, rowID)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("favorites: move rows: %w", err)
		}

		from := -1
		for i, rowID := range ids {
			if rowID == id {
				from = i
				break
			}
		}
		if from == -1 {
			return &ErrNotFound{ID: id}
		}
		if to < 0 {
			to = 0
		}
		if to >= len(ids) {
			to = len(ids) - 1
		}
		if to == from {
			return nil
		}

		ids = append(ids[:from], ids[from+1:]...)
		ids = append(ids[:to], append([]string{id}, ids[to:]...)...)

		for pos, rowID := range ids {
			if _, err := tx.ExecContext(ctx,
				`UPDATE ntp_favorites SET position = ? WHERE id = ?`, pos, rowID); err != nil {
				return fmt.Errorf("favorites: move update: %w", err)
			}
		}
		return nil
	})
}

// reindex rewrites positions 0..n-1 in current order, used after deletes.
func (s *Store) reindex(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM ntp_favorites ORDER BY position ASC`)
	if err != nil {
		return err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for pos, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`UPDATE ntp_favorites SET position = ? WHERE id = ?`, pos, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("favorites: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

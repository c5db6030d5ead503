// Package store saves and restores the session state kept by --persist:
// which files are tracked, the lenses and the active lens. File content and
// token counts are not stored; they are re-read on startup.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/localchat/localchat/internal/db"
)

const activeLensKey = "active_lens"

// Lens is a saved lens definition.
type Lens struct {
	Name  string
	Paths []string
}

// State is everything --persist keeps between runs.
type State struct {
	// Tracked holds canonical paths in registry order.
	Tracked    []string
	Lenses     []Lens
	ActiveLens string
}

// Store provides read/write access to the session state database.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given DB.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Save replaces the stored state with st in a single transaction.
func (s *Store) Save(st State) (err error) {
	tx, err := s.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range []string{
		`DELETE FROM lens_files`,
		`DELETE FROM lenses`,
		`DELETE FROM tracked_files`,
		`DELETE FROM state WHERE key = '` + activeLensKey + `'`,
	} {
		if _, err = tx.Exec(stmt); err != nil {
			return fmt.Errorf("store: clear: %w", err)
		}
	}

	for i, p := range st.Tracked {
		if _, err = tx.Exec(`INSERT INTO tracked_files (path, position) VALUES (?, ?)`, p, i); err != nil {
			return fmt.Errorf("store: save file %s: %w", p, err)
		}
	}

	for i, l := range st.Lenses {
		if _, err = tx.Exec(`INSERT INTO lenses (name, position) VALUES (?, ?)`, l.Name, i); err != nil {
			return fmt.Errorf("store: save lens %s: %w", l.Name, err)
		}
		for _, p := range l.Paths {
			if _, err = tx.Exec(`INSERT OR IGNORE INTO lens_files (lens, path) VALUES (?, ?)`, l.Name, p); err != nil {
				return fmt.Errorf("store: save lens %s: %w", l.Name, err)
			}
		}
	}

	if st.ActiveLens != "" {
		if _, err = tx.Exec(`INSERT INTO state (key, value) VALUES (?, ?)`, activeLensKey, st.ActiveLens); err != nil {
			return fmt.Errorf("store: save active lens: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// Load returns the stored state. An empty database yields the zero State.
func (s *Store) Load() (State, error) {
	var st State
	conn := s.db.Conn()

	rows, err := conn.Query(`SELECT path FROM tracked_files ORDER BY position`)
	if err != nil {
		return st, fmt.Errorf("store: load files: %w", err)
	}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return st, fmt.Errorf("store: scan file: %w", err)
		}
		st.Tracked = append(st.Tracked, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("store: load files: %w", err)
	}

	names, err := s.lensNames()
	if err != nil {
		return st, err
	}
	for _, name := range names {
		paths, err := s.lensPaths(name)
		if err != nil {
			return st, err
		}
		st.Lenses = append(st.Lenses, Lens{Name: name, Paths: paths})
	}

	err = conn.QueryRow(`SELECT value FROM state WHERE key = ?`, activeLensKey).Scan(&st.ActiveLens)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return st, fmt.Errorf("store: load active lens: %w", err)
	}
	return st, nil
}

func (s *Store) lensNames() ([]string, error) {
	rows, err := s.db.Conn().Query(`SELECT name FROM lenses ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("store: load lenses: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("store: scan lens: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// lensPaths returns a lens's members in tracked-file order; members that are
// no longer tracked sort last.
func (s *Store) lensPaths(name string) ([]string, error) {
	rows, err := s.db.Conn().Query(`
		SELECT lf.path FROM lens_files lf
		LEFT JOIN tracked_files tf ON tf.path = lf.path
		WHERE lf.lens = ?
		ORDER BY tf.position IS NULL, tf.position, lf.path`, name)
	if err != nil {
		return nil, fmt.Errorf("store: load lens %s: %w", name, err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("store: scan lens %s: %w", name, err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

package state

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/riptide-dl/riptide/internal/engine/types"
)

// Insert creates a fresh download row with zero progress.
func (s *Store) Insert(row types.Row) error {
	_, err := s.db.Exec(`
		INSERT INTO downloads (id, url, filename, folder, status, downloaded_bytes, total_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, ?)
	`, row.ID, row.URL, row.Filename, row.Folder, string(row.Status), row.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert download: %w", err)
	}
	return nil
}

// UpdateProgress atomically overwrites the progress-bearing fields of one row.
// A zero completedAt stores NULL.
func (s *Store) UpdateProgress(id string, downloaded, total int64, status types.Status, errMsg string, completedAt time.Time) error {
	var completed, errVal any
	if !completedAt.IsZero() {
		completed = completedAt.UnixMilli()
	}
	if errMsg != "" {
		errVal = errMsg
	}

	_, err := s.db.Exec(`
		UPDATE downloads
		SET downloaded_bytes = ?, total_bytes = ?, status = ?, error_message = ?, completed_at = ?
		WHERE id = ?
	`, downloaded, total, string(status), errVal, completed, id)
	if err != nil {
		return fmt.Errorf("failed to update download %s: %w", id, err)
	}
	return nil
}

// Delete removes a row. Deleting an unknown id is not an error.
func (s *Store) Delete(id string) error {
	if _, err := s.db.Exec("DELETE FROM downloads WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete download %s: %w", id, err)
	}
	return nil
}

// ListNonterminal returns every row whose status is queued, downloading or
// paused, ordered by creation time with id as tiebreak.
func (s *Store) ListNonterminal() ([]types.Row, error) {
	rows, err := s.db.Query(`
		SELECT id, url, filename, folder, status, downloaded_bytes, total_bytes, error_message, created_at, completed_at
		FROM downloads
		WHERE status IN ('queued', 'downloading', 'paused')
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query downloads: %w", err)
	}
	defer rows.Close()

	var out []types.Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns a single row, or nil when the id is unknown.
func (s *Store) Get(id string) (*types.Row, error) {
	row := s.db.QueryRow(`
		SELECT id, url, filename, folder, status, downloaded_bytes, total_bytes, error_message, created_at, completed_at
		FROM downloads
		WHERE id = ?
	`, id)

	r, err := scanRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(sc scanner) (types.Row, error) {
	var r types.Row
	var status string
	var errMsg sql.NullString
	var createdAt int64
	var completedAt sql.NullInt64

	err := sc.Scan(&r.ID, &r.URL, &r.Filename, &r.Folder, &status,
		&r.Downloaded, &r.Total, &errMsg, &createdAt, &completedAt)
	if err != nil {
		return r, err
	}

	r.Status = types.Status(status)
	if errMsg.Valid {
		r.Error = errMsg.String
	}
	r.CreatedAt = time.UnixMilli(createdAt)
	if completedAt.Valid {
		r.CompletedAt = time.UnixMilli(completedAt.Int64)
	}
	return r, nil
}

// seedSettings initializes the recognized keys if absent.
func (s *Store) seedSettings() error {
	return s.withTx(func(tx *sql.Tx) error {
		defaults := map[string]string{
			types.SettingRateLimit:     strconv.Itoa(types.DefaultRateLimit),
			types.SettingMaxConcurrent: strconv.Itoa(types.DefaultMaxConcurrent),
		}
		for key, value := range defaults {
			if _, err := tx.Exec(
				"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING",
				key, value,
			); err != nil {
				return fmt.Errorf("failed to seed setting %s: %w", key, err)
			}
		}
		return nil
	})
}

// GetSettings returns the full settings table.
func (s *Store) GetSettings() (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// GetIntSetting reads one setting as an integer, falling back to def when the
// key is missing or malformed.
func (s *Store) GetIntSetting(key string, def int64) int64 {
	var v string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&v)
	if err != nil {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// SetSetting upserts one settings key.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

package relational

import (
	"database/sql"
	"time"

	"github.com/synapsevault/memoryengine/internal/memerr"
)

// GetWatermark returns the stored timestamp for key, or the zero time if
// unset.
func (d *Database) GetWatermark(key string) (time.Time, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var value string
	err := d.db.QueryRow(`SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, memerr.StorageErr("GetWatermark", err)
	}

	t, err := parseTime(value)
	if err != nil {
		return time.Time{}, memerr.StorageErr("GetWatermark", err)
	}
	return t, nil
}

// SetWatermark records now as the value for key.
func (d *Database) SetWatermark(key string, now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.Exec(`
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, formatTime(now))
	if err != nil {
		return memerr.StorageErr("SetWatermark", err)
	}
	return nil
}

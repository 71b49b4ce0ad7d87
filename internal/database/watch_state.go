package database

import (
	"database/sql"
	"fmt"
	"time"
)

// WatchState is the locally mirrored playback position for one item and user.
type WatchState struct {
	ItemID        string
	UserID        string
	PositionTicks int64
	DurationTicks int64
	PlayCount     int
	UpdatedAt     time.Time
}

// RecordPlay upserts the watch state for an item when a playback session is
// committed, bumping the play count.
func (db *DB) RecordPlay(itemID, userID string, positionTicks, durationTicks int64) error {
	_, err := db.Exec(`
		INSERT INTO watch_state (item_id, user_id, position_ticks, duration_ticks, play_count, updated_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT(item_id, user_id) DO UPDATE SET
			position_ticks = excluded.position_ticks,
			duration_ticks = excluded.duration_ticks,
			play_count = play_count + 1,
			updated_at = excluded.updated_at
	`, itemID, userID, positionTicks, durationTicks, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record play for %s: %w", itemID, err)
	}
	return nil
}

// UpdatePosition stores a progress update without touching the play count.
func (db *DB) UpdatePosition(itemID, userID string, positionTicks int64) error {
	_, err := db.Exec(`
		UPDATE watch_state SET position_ticks = ?, updated_at = ?
		WHERE item_id = ? AND user_id = ?
	`, positionTicks, time.Now(), itemID, userID)
	if err != nil {
		return fmt.Errorf("failed to update position for %s: %w", itemID, err)
	}
	return nil
}

// GetWatchState returns the stored state for an item, or nil when none exists.
func (db *DB) GetWatchState(itemID, userID string) (*WatchState, error) {
	var ws WatchState
	err := db.QueryRow(`
		SELECT item_id, user_id, position_ticks, duration_ticks, play_count, updated_at
		FROM watch_state WHERE item_id = ? AND user_id = ?
	`, itemID, userID).Scan(&ws.ItemID, &ws.UserID, &ws.PositionTicks, &ws.DurationTicks, &ws.PlayCount, &ws.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get watch state for %s: %w", itemID, err)
	}
	return &ws, nil
}

// LastPosition returns the locally mirrored resume position for an item, or
// 0 when nothing is stored. Feeds playback start positions when the server
// sends no user data.
func (db *DB) LastPosition(itemID, userID string) (int64, error) {
	ws, err := db.GetWatchState(itemID, userID)
	if err != nil {
		return 0, err
	}
	if ws == nil {
		return 0, nil
	}
	return ws.PositionTicks, nil
}

// RecentWatchStates returns the most recently updated states for a user,
// newest first.
func (db *DB) RecentWatchStates(userID string, limit int) ([]WatchState, error) {
	rows, err := db.Query(`
		SELECT item_id, user_id, position_ticks, duration_ticks, play_count, updated_at
		FROM watch_state WHERE user_id = ?
		ORDER BY updated_at DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list watch states: %w", err)
	}
	defer rows.Close()

	var states []WatchState
	for rows.Next() {
		var ws WatchState
		if err := rows.Scan(&ws.ItemID, &ws.UserID, &ws.PositionTicks, &ws.DurationTicks, &ws.PlayCount, &ws.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan watch state: %w", err)
		}
		states = append(states, ws)
	}

	return states, rows.Err()
}

// PruneWatchStates deletes states not updated within retainDays. Returns the
// number of rows removed.
func (db *DB) PruneWatchStates(retainDays int) (int64, error) {
	if retainDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retainDays)

	result, err := db.Exec("DELETE FROM watch_state WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune watch states: %w", err)
	}
	return result.RowsAffected()
}

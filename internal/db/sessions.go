package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hdsemg/hdsemg-select/internal/labels"
	"github.com/hdsemg/hdsemg-select/internal/selection"
)

// ErrSessionNotFound is returned when no session has the requested id.
var ErrSessionNotFound = errors.New("session not found")

// SessionSummary is one row of ListSessions.
type SessionSummary struct {
	ID            string    `json:"id"`
	FileName      string    `json:"file_name"`
	GridKey       string    `json:"grid_key,omitempty"`
	ChannelCount  int       `json:"channel_count"`
	SelectedCount int       `json:"selected_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// StoredSession is a saved snapshot with its metadata.
type StoredSession struct {
	SessionSummary
	Snapshot selection.Snapshot `json:"snapshot"`
}

// SaveSession stores snap under a new id and returns the id.
func (db *DB) SaveSession(snap selection.Snapshot) (string, error) {
	if len(snap.Status) != len(snap.Descriptions) {
		return "", fmt.Errorf("snapshot has %d status flags for %d channels", len(snap.Status), len(snap.Descriptions))
	}
	id := uuid.NewString()
	selected := 0
	for _, on := range snap.Status {
		if on {
			selected++
		}
	}

	tx, err := db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO sessions (session_id, file_name, grid_key, channel_count, selected_count, created_unix_nanos)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, snap.FileName, snap.GridKey, len(snap.Descriptions), selected, time.Now().UnixNano(),
	); err != nil {
		return "", fmt.Errorf("failed to insert session: %w", err)
	}

	chStmt, err := tx.Prepare(`
		INSERT INTO session_channels (session_id, channel, description, selected, labels)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare channel insert: %w", err)
	}
	defer chStmt.Close()

	for ch, desc := range snap.Descriptions {
		ls := snap.Labels[ch]
		if ls == nil {
			ls = []labels.Label{}
		}
		encoded, err := json.Marshal(ls)
		if err != nil {
			return "", fmt.Errorf("failed to encode labels for channel %d: %w", ch, err)
		}
		if _, err := chStmt.Exec(id, ch, desc, snap.Status[ch], string(encoded)); err != nil {
			return "", fmt.Errorf("failed to insert channel %d: %w", ch, err)
		}
	}

	for ch, cs := range snap.Custom {
		for _, c := range cs {
			if _, err := tx.Exec(`
				INSERT INTO session_custom_labels (session_id, channel, label_id, name, color)
				VALUES (?, ?, ?, ?, ?)`,
				id, ch, c.ID.String(), c.Name, c.Color,
			); err != nil {
				return "", fmt.Errorf("failed to insert custom label for channel %d: %w", ch, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit session: %w", err)
	}
	return id, nil
}

// GetSession loads a saved session.
func (db *DB) GetSession(id string) (*StoredSession, error) {
	var (
		out   StoredSession
		nanos int64
	)
	err := db.QueryRow(`
		SELECT session_id, file_name, grid_key, channel_count, selected_count, created_unix_nanos
		FROM sessions WHERE session_id = ?`, id,
	).Scan(&out.ID, &out.FileName, &out.GridKey, &out.ChannelCount, &out.SelectedCount, &nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	out.CreatedAt = time.Unix(0, nanos).UTC()

	snap := selection.Snapshot{
		FileName:     out.FileName,
		GridKey:      out.GridKey,
		Descriptions: make([]string, 0, out.ChannelCount),
		Status:       make([]bool, 0, out.ChannelCount),
		Labels:       map[int][]labels.Label{},
		Custom:       map[int][]labels.Custom{},
	}

	rows, err := db.Query(`
		SELECT channel, description, selected, labels
		FROM session_channels WHERE session_id = ? ORDER BY channel`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			ch       int
			desc     string
			selected bool
			encoded  string
		)
		if err := rows.Scan(&ch, &desc, &selected, &encoded); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		if ch != len(snap.Descriptions) {
			return nil, fmt.Errorf("session %s: channel %d missing", id, len(snap.Descriptions))
		}
		snap.Descriptions = append(snap.Descriptions, desc)
		snap.Status = append(snap.Status, selected)
		var ls []labels.Label
		if err := json.Unmarshal([]byte(encoded), &ls); err != nil {
			return nil, fmt.Errorf("failed to decode labels for channel %d: %w", ch, err)
		}
		if len(ls) > 0 {
			snap.Labels[ch] = ls
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	crows, err := db.Query(`
		SELECT channel, label_id, name, color
		FROM session_custom_labels WHERE session_id = ? ORDER BY channel, rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query custom labels: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var (
			ch    int
			rawID string
			c     labels.Custom
		)
		if err := crows.Scan(&ch, &rawID, &c.Name, &c.Color); err != nil {
			return nil, fmt.Errorf("failed to scan custom label: %w", err)
		}
		if c.ID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("invalid custom label id %q: %w", rawID, err)
		}
		snap.Custom[ch] = append(snap.Custom[ch], c)
	}
	if err := crows.Err(); err != nil {
		return nil, err
	}

	out.Snapshot = snap
	return &out, nil
}

// ListSessions returns all saved sessions, newest first.
func (db *DB) ListSessions() ([]SessionSummary, error) {
	rows, err := db.Query(`
		SELECT session_id, file_name, grid_key, channel_count, selected_count, created_unix_nanos
		FROM sessions ORDER BY created_unix_nanos DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			s     SessionSummary
			nanos int64
		)
		if err := rows.Scan(&s.ID, &s.FileName, &s.GridKey, &s.ChannelCount, &s.SelectedCount, &nanos); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.CreatedAt = time.Unix(0, nanos).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its channels.
func (db *DB) DeleteSession(id string) error {
	res, err := db.Exec(`DELETE FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package roomsim

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver
)

const schemaVersion = 1

// ErrRoomNotFound is returned when no room exists under the given ID.
var ErrRoomNotFound = errors.New("roomsim: room not found")

// RoomStore persists rooms in SQLite. Settings travel as a JSON column;
// the running flag is a separate column because it changes on every
// start while settings stay put.
type RoomStore struct {
	db *sql.DB
}

// OpenRoomStore opens (or creates) the room database at dbPath with WAL
// mode and busy_timeout applied to every pooled connection.
func OpenRoomStore(dbPath string) (*RoomStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		dbPath, (5 * time.Second).Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("room store: open failed: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("room store: ping failed: %w", err)
	}

	s := &RoomStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("room store: migration failed: %w", err)
	}
	return s, nil
}

func (s *RoomStore) Close() error {
	return s.db.Close()
}

func (s *RoomStore) migrate() error {
	var currentVersion int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		room_id TEXT PRIMARY KEY,
		settings_json TEXT NOT NULL,
		meeting_running INTEGER NOT NULL DEFAULT 0,
		updated_at_ms INTEGER NOT NULL
	);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// Upsert writes the full room record, including the running flag.
func (s *RoomStore) Upsert(ctx context.Context, rec RoomRecord) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("room store: marshal %s: %w", rec.ID, err)
	}
	running := 0
	if rec.MeetingRunning {
		running = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rooms (room_id, settings_json, meeting_running, updated_at_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(room_id) DO UPDATE SET
			settings_json = excluded.settings_json,
			meeting_running = excluded.meeting_running,
			updated_at_ms = excluded.updated_at_ms
	`, rec.ID, string(buf), running, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("room store: upsert %s: %w", rec.ID, err)
	}
	return nil
}

// Get loads one room.
func (s *RoomStore) Get(ctx context.Context, roomID string) (RoomRecord, error) {
	var (
		settings string
		running  int
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT settings_json, meeting_running FROM rooms WHERE room_id = ?", roomID,
	).Scan(&settings, &running)
	if errors.Is(err, sql.ErrNoRows) {
		return RoomRecord{}, ErrRoomNotFound
	}
	if err != nil {
		return RoomRecord{}, fmt.Errorf("room store: get %s: %w", roomID, err)
	}

	var rec RoomRecord
	if err := json.Unmarshal([]byte(settings), &rec); err != nil {
		return RoomRecord{}, fmt.Errorf("room store: decode %s: %w", roomID, err)
	}
	rec.MeetingRunning = running != 0
	return rec, nil
}

// List returns all rooms, used by fixture export.
func (s *RoomStore) List(ctx context.Context) ([]RoomRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT settings_json, meeting_running FROM rooms ORDER BY room_id")
	if err != nil {
		return nil, fmt.Errorf("room store: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RoomRecord
	for rows.Next() {
		var (
			settings string
			running  int
		)
		if err := rows.Scan(&settings, &running); err != nil {
			return nil, fmt.Errorf("room store: list scan: %w", err)
		}
		var rec RoomRecord
		if err := json.Unmarshal([]byte(settings), &rec); err != nil {
			return nil, fmt.Errorf("room store: list decode: %w", err)
		}
		rec.MeetingRunning = running != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SetMeetingRunning flips the running flag without touching settings.
func (s *RoomStore) SetMeetingRunning(ctx context.Context, roomID string, running bool) error {
	v := 0
	if running {
		v = 1
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE rooms SET meeting_running = ?, updated_at_ms = ? WHERE room_id = ?",
		v, time.Now().UnixMilli(), roomID)
	if err != nil {
		return fmt.Errorf("room store: set running %s: %w", roomID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRoomNotFound
	}
	return nil
}

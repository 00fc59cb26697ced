// SPDX-License-Identifier: MIT

package roomsim

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// FixtureFile is the YAML document describing seed rooms.
type FixtureFile struct {
	Rooms []RoomRecord `yaml:"rooms"`
}

// LoadFixtures reads room fixtures from a YAML file.
func LoadFixtures(path string) ([]RoomRecord, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("fixtures: read %s: %w", path, err)
	}
	var doc FixtureFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("fixtures: parse %s: %w", path, err)
	}
	for i, r := range doc.Rooms {
		if r.ID == "" {
			return nil, fmt.Errorf("fixtures: room %d has no id", i)
		}
		switch r.Protection {
		case "", "none", "access_code", "personal_token":
		default:
			return nil, fmt.Errorf("fixtures: room %s: unknown protection %q", r.ID, r.Protection)
		}
	}
	return doc.Rooms, nil
}

// SaveFixtures writes room fixtures atomically. The temp file is fsynced
// before the rename so a crash never leaves a torn file behind.
func SaveFixtures(path string, rooms []RoomRecord) error {
	buf, err := yaml.Marshal(FixtureFile{Rooms: rooms})
	if err != nil {
		return fmt.Errorf("fixtures: marshal: %w", err)
	}

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("fixtures: create pending file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(buf); err != nil {
		return fmt.Errorf("fixtures: write: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("fixtures: atomically replace: %w", err)
	}
	return nil
}

// WatchFixtures watches the fixture file and invokes apply with the new
// room set on every change. Editors replace files rather than writing in
// place, so the parent directory is watched and events are filtered by
// name. Invalid files are logged and skipped; the previous rooms stay
// live.
func WatchFixtures(ctx context.Context, path string, logger zerolog.Logger, apply func([]RoomRecord)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fixtures: watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("fixtures: watch %s: %w", dir, err)
	}

	go func() {
		defer func() { _ = watcher.Close() }()

		// Debounce: editors fire several events per save.
		var pending <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				pending = time.After(200 * time.Millisecond)

			case <-pending:
				pending = nil
				rooms, err := LoadFixtures(path)
				if err != nil {
					logger.Error().Err(err).
						Str("event", "fixtures.reload_failed").
						Str("path", path).
						Msg("fixture reload failed, keeping previous rooms")
					continue
				}
				apply(rooms)
				logger.Info().
					Str("event", "fixtures.reloaded").
					Int("rooms", len(rooms)).
					Msg("fixture rooms reloaded")

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Str("event", "fixtures.watch_error").Msg("fixture watcher error")
			}
		}
	}()

	return nil
}

// SPDX-License-Identifier: MIT

package roomsim

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/roomgate/internal/log"
)

const fixtureYAML = `
rooms:
  - id: demo
    name: Demo Room
    protection: access_code
    accessCode: s3cret
    guestsAllowed: true
    recordingAvailable: true
  - id: board
    name: Board Room
    protection: personal_token
    inviteTokens: [tok-1]
    startUsers: [alice]
`

func TestLoadFixtures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureYAML), 0o600))

	rooms, err := LoadFixtures(path)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "demo", rooms[0].ID)
	assert.Equal(t, "s3cret", rooms[0].AccessCode)
	assert.True(t, rooms[0].RecordingAvailable)
	assert.Equal(t, []string{"tok-1"}, rooms[1].InviteTokens)
}

func TestLoadFixtures_MissingID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rooms:\n  - name: No ID\n"), 0o600))

	_, err := LoadFixtures(path)
	assert.Error(t, err)
}

func TestLoadFixtures_UnknownProtection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rooms:\n  - id: x\n    protection: biometric\n"), 0o600))

	_, err := LoadFixtures(path)
	assert.Error(t, err)
}

func TestSaveFixtures_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms.yaml")
	rooms := []RoomRecord{
		{ID: "demo", Name: "Demo", Protection: "none", GuestsAllowed: true, MeetingRunning: true},
	}
	require.NoError(t, SaveFixtures(path, rooms))

	got, err := LoadFixtures(path)
	require.NoError(t, err)
	assert.Equal(t, rooms, got)
}

func TestWatchFixtures_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rooms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureYAML), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var latest []RoomRecord
	err := WatchFixtures(ctx, path, log.WithComponent("test"), func(rooms []RoomRecord) {
		mu.Lock()
		latest = rooms
		mu.Unlock()
	})
	require.NoError(t, err)

	// Atomic replace, as an editor would do it.
	require.NoError(t, SaveFixtures(path, []RoomRecord{{ID: "only", Name: "Only"}}))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(latest)
		mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("timed out waiting for fixture reload")
}

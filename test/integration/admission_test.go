// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package integration runs the admission controller against roomsim
// over a real HTTP listener.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/roomgate/internal/admission"
	"github.com/ManuGH/roomgate/internal/classify"
	"github.com/ManuGH/roomgate/internal/log"
	"github.com/ManuGH/roomgate/internal/roomapi"
	"github.com/ManuGH/roomgate/internal/roomsim"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// Badger runs background compaction goroutines for the life of
		// the process-wide test binary.
		goleak.IgnoreTopFunction("github.com/dgraph-io/badger/v4/y.(*WaterMark).process"),
		goleak.IgnoreTopFunction("github.com/dgraph-io/ristretto.(*defaultPolicy).processItems"),
		goleak.IgnoreTopFunction("github.com/dgraph-io/ristretto.(*Cache).processItems"),
	)
}

type world struct {
	ts    *httptest.Server
	rooms *roomsim.RoomStore
}

func newWorld(t *testing.T) *world {
	t.Helper()

	dir := t.TempDir()
	rooms, err := roomsim.OpenRoomStore(filepath.Join(dir, "rooms.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rooms.Close() })

	mr := miniredis.RunT(t)
	sessions, err := roomsim.NewSessionStore(roomsim.SessionConfig{Addr: mr.Addr()}, log.WithComponent("test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sessions.Close() })

	tickets, err := roomsim.OpenTicketStore(filepath.Join(dir, "tickets"), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tickets.Close() })

	seed := []roomsim.RoomRecord{
		{ID: "open", Name: "Open Room", Protection: "none", GuestsAllowed: true, MeetingRunning: true},
		{ID: "consented", Name: "Consented Room", Protection: "none", GuestsAllowed: true,
			MeetingRunning: true, RecordingAvailable: true},
		{ID: "coded", Name: "Coded Room", Protection: "access_code", AccessCode: "s3cret",
			GuestsAllowed: true, MeetingRunning: true},
		{ID: "tokened", Name: "Tokened Room", Protection: "personal_token",
			InviteTokens: []string{"tok-1"}, MeetingRunning: true},
		{ID: "members", Name: "Members Room", Protection: "none",
			StartUsers: []string{"alice"}},
		{ID: "running", Name: "Running Room", Protection: "none", GuestsAllowed: true,
			StartUsers: []string{"alice"}, MeetingRunning: true},
	}
	for _, rec := range seed {
		require.NoError(t, rooms.Upsert(context.Background(), rec))
	}

	srv := roomsim.NewServer(rooms, sessions, tickets, "https://meet.example.com")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &world{ts: ts, rooms: rooms}
}

func (w *world) login(t *testing.T, user string) string {
	t.Helper()
	res, err := http.Post(w.ts.URL+"/api/v1/auth/session", "application/json",
		bytes.NewReader([]byte(`{"user":"`+user+`"}`)))
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return out.Token
}

type attempt struct {
	ctrl     *admission.Controller
	client   *roomapi.Client
	redirect string
}

func (w *world) newAttempt(t *testing.T, roomID string, clientOpts []roomapi.Option, ctrlOpts ...admission.Option) *attempt {
	t.Helper()

	client := roomapi.New(w.ts.URL, clientOpts...)

	cred := roomapi.NoCredential()
	a := &attempt{client: client}

	room, err := client.RoomDetail(context.Background(), roomID, cred)
	require.NoError(t, err)

	opts := append([]admission.Option{
		admission.WithNavigator(func(url string) { a.redirect = url }),
	}, ctrlOpts...)
	a.ctrl = admission.New(client, room, opts...)
	return a
}

func TestGuestJoin_OpenRoom(t *testing.T) {
	w := newWorld(t)
	a := w.newAttempt(t, "open", nil)
	ctx := context.Background()

	require.NoError(t, a.ctrl.RequestJoin(ctx))
	require.Equal(t, admission.StateAwaitingConsent, a.ctrl.State())

	form := a.ctrl.Form()
	require.True(t, form.Requirements().DisplayName)
	form.SetDisplayName("Ada")

	require.NoError(t, a.ctrl.Confirm(ctx))
	assert.Equal(t, admission.StateRedirecting, a.ctrl.State())
	assert.True(t, strings.HasPrefix(a.redirect, "https://meet.example.com/meet/"))
}

func TestMemberJoin_AutoSubmit(t *testing.T) {
	w := newWorld(t)
	session := w.login(t, "carol")
	a := w.newAttempt(t, "open", []roomapi.Option{roomapi.WithSession(session)})

	// Members have no required fields in a consent-free room: the form
	// is bypassed entirely.
	require.NoError(t, a.ctrl.RequestJoin(context.Background()))
	assert.Equal(t, admission.StateRedirecting, a.ctrl.State())
	assert.NotEmpty(t, a.redirect)
}

func TestGuestJoin_WithConsent(t *testing.T) {
	w := newWorld(t)
	a := w.newAttempt(t, "consented", nil)
	ctx := context.Background()

	require.NoError(t, a.ctrl.RequestJoin(ctx))
	require.Equal(t, admission.StateAwaitingConsent, a.ctrl.State())

	form := a.ctrl.Form()
	req := form.Requirements()
	require.True(t, req.ConsentRecord)
	require.False(t, req.ConsentRecordVideo)

	form.SetDisplayName("Ada")
	form.SetConsentRecord(true)
	// Granting recording makes video consent required too.
	require.True(t, form.Requirements().ConsentRecordVideo)
	form.SetConsentRecordVideo(true)

	require.NoError(t, a.ctrl.Confirm(ctx))
	assert.Equal(t, admission.StateRedirecting, a.ctrl.State())
}

func TestAccessCode_Flow(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	// Wrong code blocks the attempt and clears the credential.
	a := w.newAttempt(t, "coded", nil, admission.WithAccessCode("wrong"))
	require.NoError(t, a.ctrl.RequestJoin(ctx))
	require.Equal(t, admission.StateBlocked, a.ctrl.State())
	assert.Equal(t, classify.KindInvalidCode, a.ctrl.BlockedReason())
	assert.True(t, a.ctrl.Credential().IsZero())

	// Entering the right code recovers without rebuilding the controller.
	require.NoError(t, a.ctrl.SetAccessCode("s3cret"))
	require.NoError(t, a.ctrl.RequestJoin(ctx))
	require.Equal(t, admission.StateAwaitingConsent, a.ctrl.State())

	a.ctrl.Form().SetDisplayName("Ada")
	require.NoError(t, a.ctrl.Confirm(ctx))
	assert.Equal(t, admission.StateRedirecting, a.ctrl.State())
}

func TestTokenHolder_Join(t *testing.T) {
	w := newWorld(t)
	a := w.newAttempt(t, "tokened", nil, admission.WithPersonalToken("tok-1"))

	// Token holders need no display name; nothing is required here so
	// the submission goes straight through.
	require.NoError(t, a.ctrl.RequestJoin(context.Background()))
	assert.Equal(t, admission.StateRedirecting, a.ctrl.State())
}

func TestInvalidToken_Blocks(t *testing.T) {
	w := newWorld(t)
	a := w.newAttempt(t, "tokened", nil, admission.WithPersonalToken("forged"))

	require.NoError(t, a.ctrl.RequestJoin(context.Background()))
	require.Equal(t, admission.StateBlocked, a.ctrl.State())
	assert.Equal(t, classify.KindInvalidToken, a.ctrl.BlockedReason())
}

func TestConsentConflict_Reprobe(t *testing.T) {
	w := newWorld(t)
	a := w.newAttempt(t, "open", nil)
	ctx := context.Background()

	require.NoError(t, a.ctrl.RequestJoin(ctx))
	require.Equal(t, admission.StateAwaitingConsent, a.ctrl.State())
	a.ctrl.Form().SetDisplayName("Ada")

	// Room settings change between probe and submit: recording consent
	// becomes required while the form is open.
	room, err := w.rooms.Get(ctx, "open")
	require.NoError(t, err)
	room.RecordingAvailable = true
	require.NoError(t, w.rooms.Upsert(ctx, room))

	require.NoError(t, a.ctrl.Confirm(ctx))

	// The 422 triggered a silent re-probe: back on the form with the new
	// requirement visible and the entered name preserved.
	require.Equal(t, admission.StateAwaitingConsent, a.ctrl.State())
	form := a.ctrl.Form()
	assert.True(t, form.Requirements().ConsentRecord)
	assert.Equal(t, "Ada", form.Values().DisplayName)
	assert.Contains(t, form.FieldErrors(), "consent_record")

	form.SetConsentRecord(true)
	form.SetConsentRecordVideo(true)
	require.NoError(t, a.ctrl.Confirm(ctx))
	assert.Equal(t, admission.StateRedirecting, a.ctrl.State())
}

func TestStart_Lifecycle(t *testing.T) {
	w := newWorld(t)
	session := w.login(t, "alice")
	a := w.newAttempt(t, "members", []roomapi.Option{roomapi.WithSession(session)})
	ctx := context.Background()

	require.NoError(t, a.ctrl.RequestStart(ctx))
	assert.Equal(t, admission.StateRedirecting, a.ctrl.State())
	assert.NotEmpty(t, a.redirect)

	room, err := w.rooms.Get(ctx, "members")
	require.NoError(t, err)
	assert.True(t, room.MeetingRunning)
}

func TestStart_AlreadyRunningRewritesToJoin(t *testing.T) {
	w := newWorld(t)
	session := w.login(t, "alice")
	a := w.newAttempt(t, "running", []roomapi.Option{roomapi.WithSession(session)})
	ctx := context.Background()

	require.NoError(t, a.ctrl.RequestStart(ctx))

	// The 474 rewrote the attempt to a join, which succeeded silently.
	assert.Equal(t, admission.StateRedirecting, a.ctrl.State())
	assert.Equal(t, classify.ActionJoin, a.ctrl.Action())
	require.NotNil(t, a.ctrl.Notice())
	assert.Equal(t, admission.NoticeAlreadyRunning, a.ctrl.Notice().Kind)
	assert.NotEmpty(t, a.redirect)
}

func TestStart_Forbidden(t *testing.T) {
	w := newWorld(t)
	session := w.login(t, "mallory")
	a := w.newAttempt(t, "members", []roomapi.Option{roomapi.WithSession(session)})

	require.NoError(t, a.ctrl.RequestStart(context.Background()))
	// Start-forbidden returns to Idle with a notice, not Blocked: the
	// user may still join.
	assert.Equal(t, admission.StateIdle, a.ctrl.State())
	require.NotNil(t, a.ctrl.Notice())
	assert.Equal(t, admission.NoticeStartForbidden, a.ctrl.Notice().Kind)
}

func TestSessionExpiry_NavigatesToReauth(t *testing.T) {
	w := newWorld(t)
	a := w.newAttempt(t, "open", []roomapi.Option{roomapi.WithSession("expired")})

	require.NoError(t, a.ctrl.RequestJoin(context.Background()))
	require.Equal(t, admission.StateBlocked, a.ctrl.State())
	assert.Equal(t, classify.KindSessionExpired, a.ctrl.BlockedReason())
	assert.Contains(t, a.redirect, "/auth/login")
}

func TestMeetingClosed_ReturnsToIdle(t *testing.T) {
	w := newWorld(t)
	a := w.newAttempt(t, "open", nil)
	ctx := context.Background()

	require.NoError(t, a.ctrl.RequestJoin(ctx))
	require.Equal(t, admission.StateAwaitingConsent, a.ctrl.State())
	a.ctrl.Form().SetDisplayName("Ada")

	// The meeting ends while the form is open.
	require.NoError(t, w.rooms.SetMeetingRunning(ctx, "open", false))

	require.NoError(t, a.ctrl.Confirm(ctx))
	assert.Equal(t, admission.StateIdle, a.ctrl.State())
	require.NotNil(t, a.ctrl.Notice())
	assert.Equal(t, admission.NoticeMeetingClosed, a.ctrl.Notice().Kind)
	assert.Equal(t, roomapi.MeetingNotRunning, a.ctrl.Room().MeetingStatus)
}

func TestGuestsForbidden_Blocks(t *testing.T) {
	w := newWorld(t)
	a := w.newAttempt(t, "tokened", nil)

	require.NoError(t, a.ctrl.RequestJoin(context.Background()))
	require.Equal(t, admission.StateBlocked, a.ctrl.State())
	assert.Equal(t, classify.KindGuestsForbidden, a.ctrl.BlockedReason())
}

func TestRedeemedURL_IsSingleUse(t *testing.T) {
	w := newWorld(t)
	a := w.newAttempt(t, "open", nil)
	ctx := context.Background()

	require.NoError(t, a.ctrl.RequestJoin(ctx))
	a.ctrl.Form().SetDisplayName("Ada")
	require.NoError(t, a.ctrl.Confirm(ctx))
	require.Equal(t, admission.StateRedirecting, a.ctrl.State())

	path := strings.TrimPrefix(a.redirect, "https://meet.example.com")
	res, err := http.Get(w.ts.URL + path)
	require.NoError(t, err)
	_ = res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(w.ts.URL + path)
	require.NoError(t, err)
	_ = res.Body.Close()
	assert.Equal(t, http.StatusGone, res.StatusCode)
}

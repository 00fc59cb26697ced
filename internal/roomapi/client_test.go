// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package roomapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ManuGH/roomgate/internal/classify"
	"github.com/ManuGH/roomgate/internal/consent"
)

func newTestClient(base string, opts ...Option) *Client {
	opts = append([]Option{WithHTTPClient(&http.Client{Timeout: 500 * time.Millisecond})}, opts...)
	return New(base, opts...)
}

func TestProbeDecodesDescriptor(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/rooms/r1/meeting/requirements" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("intent"); got != "join" {
			t.Errorf("intent = %q, want join", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{
			"recording_available":            true,
			"attendance_recording_available": false,
			"streaming_available":            true,
		})
	}))
	defer s.Close()

	c := newTestClient(s.URL)
	desc, err := c.Probe(context.Background(), "r1", classify.ActionJoin, NoCredential())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := consent.CapabilityDescriptor{RecordingAvailable: true, StreamingAvailable: true}
	if desc != want {
		t.Errorf("descriptor = %+v, want %+v", desc, want)
	}
}

func TestCredentialTravelsAsHeaderOnly(t *testing.T) {
	var gotCode, gotToken string
	var hadBody bool
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCode = r.Header.Get(HeaderAccessCode)
		gotToken = r.Header.Get(HeaderInviteToken)
		hadBody = r.ContentLength > 0
		_ = json.NewEncoder(w).Encode(consent.CapabilityDescriptor{})
	}))
	defer s.Close()

	c := newTestClient(s.URL)
	if _, err := c.Probe(context.Background(), "r1", classify.ActionJoin, AccessCode("s3cret")); err != nil {
		t.Fatal(err)
	}
	if gotCode != "s3cret" || gotToken != "" {
		t.Errorf("access code header = %q, token header = %q", gotCode, gotToken)
	}
	if hadBody {
		t.Error("probe must not carry a body")
	}

	if _, err := c.Probe(context.Background(), "r1", classify.ActionJoin, PersonalToken("tok")); err != nil {
		t.Fatal(err)
	}
	if gotToken != "tok" || gotCode != "" {
		t.Errorf("token header = %q, access code header = %q", gotToken, gotCode)
	}
}

func TestSubmitPostsBitExactBody(t *testing.T) {
	var raw []byte
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/api/v1/rooms/r1/meeting/start" {
			t.Errorf("path = %s", r.URL.Path)
		}
		raw, _ = io.ReadAll(r.Body)
		_ = json.NewEncoder(w).Encode(JoinTicket{URL: "https://meet.example.com/abc"})
	}))
	defer s.Close()

	form := consent.NewForm(consent.CapabilityDescriptor{}, consent.IdentityMember)
	c := newTestClient(s.URL)
	ticket, err := c.Submit(context.Background(), "r1", classify.ActionStart, NoCredential(), form.Body())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ticket.URL != "https://meet.example.com/abc" {
		t.Errorf("ticket URL = %q", ticket.URL)
	}
	want := `{"name":"","consent_record_attendance":false,"consent_record":false,"consent_record_video":false,"consent_streaming":false}`
	if string(raw) != want {
		t.Errorf("body = %s, want %s", raw, want)
	}
}

func TestFailureEnvelopeIsReturnedUninterpreted(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(422)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": "validation failed",
			"errors":  map[string][]string{"name": {"is invalid"}},
		})
	}))
	defer s.Close()

	c := newTestClient(s.URL)
	_, err := c.Submit(context.Background(), "r1", classify.ActionJoin, NoCredential(), consent.SubmissionBody{})
	if err == nil {
		t.Fatal("expected error on 422")
	}
	raw := RawFailure(err)
	if raw == nil {
		t.Fatal("expected a RawFailure in the chain")
	}
	if raw.Status != 422 || raw.Message != "validation failed" {
		t.Errorf("raw = %+v", raw)
	}
	if len(raw.Errors["name"]) != 1 {
		t.Errorf("errors = %v", raw.Errors)
	}
}

func TestNonJSONFailureDegradesToStatusOnly(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer s.Close()

	c := newTestClient(s.URL)
	_, err := c.RoomDetail(context.Background(), "r1", NoCredential())
	raw := RawFailure(err)
	if raw == nil || raw.Status != http.StatusBadGateway {
		t.Fatalf("raw = %+v, err = %v", raw, err)
	}
	if raw.Errors != nil {
		t.Errorf("expected no errors map, got %v", raw.Errors)
	}
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer s.Close()

	c := newTestClient(s.URL)
	_, err := c.Probe(context.Background(), "r1", classify.ActionJoin, NoCredential())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if RawFailure(err) != nil {
		t.Error("transport failures must not carry a RawFailure")
	}
}

func TestSessionCookieAttached(t *testing.T) {
	var got string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(SessionCookieName); err == nil {
			got = cookie.Value
		}
		_ = json.NewEncoder(w).Encode(Room{})
	}))
	defer s.Close()

	c := newTestClient(s.URL, WithSession("sess-1"))
	if _, err := c.RoomDetail(context.Background(), "r1", NoCredential()); err != nil {
		t.Fatal(err)
	}
	if got != "sess-1" {
		t.Errorf("session cookie = %q", got)
	}
}

func TestRoomIdentityMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wire string
		want consent.Identity
	}{
		{"member", consent.IdentityMember},
		{"token_holder", consent.IdentityTokenHolder},
		{"guest", consent.IdentityGuest},
		{"", consent.IdentityGuest},
	}
	for _, tt := range tests {
		if got := (Room{ActorIdentity: tt.wire}).Identity(); got != tt.want {
			t.Errorf("Identity(%q) = %v, want %v", tt.wire, got, tt.want)
		}
	}
}

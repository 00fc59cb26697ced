// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package admission drives the meeting-admission negotiation flow: probe
// the room for the currently required consents, collect them, submit the
// join or start request, and run every failure through the closed
// classification taxonomy to pick the matching recovery.
package admission

import (
	"context"
	"errors"

	"github.com/ManuGH/roomgate/internal/classify"
	"github.com/ManuGH/roomgate/internal/consent"
	"github.com/ManuGH/roomgate/internal/roomapi"
)

// State is the lifecycle state of the current admission attempt.
type State string

const (
	StateIdle            State = "idle"
	StateProbing         State = "probing"
	StateAwaitingConsent State = "awaiting_consent"
	StateSubmitting      State = "submitting"
	StateRedirecting     State = "redirecting"
	StateBlocked         State = "blocked"
)

// Sentinel errors for the controller's public contract.
var (
	// ErrAttemptInFlight: an attempt is already pending; the trigger is a
	// no-op until it concludes.
	ErrAttemptInFlight = errors.New("admission: attempt already in flight")
	// ErrNotCancellable: cancellation is cooperative only while awaiting
	// consent.
	ErrNotCancellable = errors.New("admission: cancel is only valid while awaiting consent")
	// ErrNotAwaitingConsent: confirm requires an open consent form.
	ErrNotAwaitingConsent = errors.New("admission: no consent form awaiting confirmation")
	// ErrFormIncomplete: required fields block confirmation.
	ErrFormIncomplete = errors.New("admission: consent form is incomplete")
)

// NoticeKind names the toast-style notices the controller surfaces.
type NoticeKind string

const (
	NoticeInvalidCode     NoticeKind = "invalid_code"
	NoticeCodeRequired    NoticeKind = "code_required"
	NoticeInvalidToken    NoticeKind = "invalid_token"
	NoticeGuestsForbidden NoticeKind = "guests_forbidden"
	NoticeStartForbidden  NoticeKind = "start_forbidden"
	NoticeSessionExpired  NoticeKind = "session_expired"
	NoticeMeetingClosed   NoticeKind = "meeting_closed"
	NoticeAlreadyRunning  NoticeKind = "already_running"
	NoticeServiceError    NoticeKind = "service_error"
)

// Notice is the latest non-field notice for toast-style display. Status is
// the HTTP status when the notice stems from a service response, zero
// otherwise.
type Notice struct {
	Kind    NoticeKind
	Message string
	Status  int
}

// Service is the admission surface of the room service the controller
// drives. *roomapi.Client satisfies it.
type Service interface {
	RoomDetail(ctx context.Context, roomID string, cred roomapi.Credential) (roomapi.Room, error)
	Probe(ctx context.Context, roomID string, action classify.Action, cred roomapi.Credential) (consent.CapabilityDescriptor, error)
	Submit(ctx context.Context, roomID string, action classify.Action, cred roomapi.Credential, body consent.SubmissionBody) (roomapi.JoinTicket, error)
}

// Attempt outcome labels for metrics.
const (
	outcomeRedirected = "redirected"
	outcomeBlocked    = "blocked"
	outcomeCancelled  = "cancelled"
	outcomeAborted    = "aborted"
	outcomeAbandoned  = "abandoned"
)

var noticeForKind = map[classify.Kind]Notice{
	classify.KindInvalidCode:     {Kind: NoticeInvalidCode, Message: "The access code was not accepted."},
	classify.KindCodeRequired:    {Kind: NoticeCodeRequired, Message: "This room now requires an access code."},
	classify.KindInvalidToken:    {Kind: NoticeInvalidToken, Message: "The invite link is no longer valid."},
	classify.KindGuestsForbidden: {Kind: NoticeGuestsForbidden, Message: "Guests are not allowed in this room."},
	classify.KindStartForbidden:  {Kind: NoticeStartForbidden, Message: "You are no longer allowed to start this meeting."},
	classify.KindSessionExpired:  {Kind: NoticeSessionExpired, Message: "Your session has expired. Please sign in again."},
	classify.KindMeetingClosed:   {Kind: NoticeMeetingClosed, Message: "The meeting has ended."},
	classify.KindAlreadyRunning:  {Kind: NoticeAlreadyRunning, Message: "The meeting is already running. Joining instead."},
}

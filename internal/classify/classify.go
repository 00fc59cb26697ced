// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package classify maps raw admission-service failures into a closed
// taxonomy of error kinds. Classification is a pure pattern match on
// status code and payload shape; it performs no I/O.
package classify

import (
	"fmt"

	"github.com/ManuGH/roomgate/internal/consent"
)

// Phase identifies which request produced the failure.
type Phase string

const (
	PhaseProbe  Phase = "probe"
	PhaseSubmit Phase = "submit"
)

// Action is the admission action the failure belongs to.
type Action string

const (
	ActionJoin  Action = "join"
	ActionStart Action = "start"
)

// Kind is one member of the closed failure taxonomy. Nothing outside this
// package interprets raw status codes.
type Kind string

const (
	// KindInvalidCode: the supplied access code was rejected.
	KindInvalidCode Kind = "invalid_code"
	// KindCodeRequired: the room became access-code protected mid-flight.
	KindCodeRequired Kind = "code_required"
	// KindInvalidToken: the personal join token was rejected or expired.
	KindInvalidToken Kind = "invalid_token"
	// KindGuestsForbidden: unauthenticated actors are not allowed.
	KindGuestsForbidden Kind = "guests_forbidden"
	// KindStartForbidden: the actor lost the privilege to start a meeting.
	KindStartForbidden Kind = "start_forbidden"
	// KindNameInvalid: the guest display name failed validation.
	KindNameInvalid Kind = "name_invalid"
	// KindConsentMissing: room settings changed and the consent
	// requirements grew since the last probe.
	KindConsentMissing Kind = "consent_missing"
	// KindMeetingClosed: the meeting closed between probe and submit.
	KindMeetingClosed Kind = "meeting_closed"
	// KindAlreadyRunning: a Start raced a meeting that is already running.
	KindAlreadyRunning Kind = "already_running"
	// KindSessionExpired: the actor session expired (bare 401).
	KindSessionExpired Kind = "session_expired"
	// KindTransient: any other 4xx/5xx, treated as opaque and retryable.
	KindTransient Kind = "transient"
)

// Message discriminators used by the admission service on status-only
// failures.
const (
	MsgInvalidCode      = "invalid_code"
	MsgRequireCode      = "require_code"
	MsgInvalidToken     = "invalid_token"
	MsgGuestsNotAllowed = "guests_not_allowed"
	MsgUnauthorized     = "unauthorized"
)

// Non-standard status codes the service uses for start-time races.
const (
	StatusMeetingClosed  = 460
	StatusAlreadyRunning = 474
)

// RawFailure is the uninterpreted failure of a probe or admission request:
// the HTTP status plus the decoded payload, if any.
type RawFailure struct {
	Status  int
	Message string
	Errors  map[string][]string
}

func (f *RawFailure) Error() string {
	if f.Message != "" {
		return fmt.Sprintf("room service: %s (HTTP %d)", f.Message, f.Status)
	}
	return fmt.Sprintf("room service: HTTP %d", f.Status)
}

// Classify maps a raw failure to its kind for the given phase and action.
func Classify(raw *RawFailure, phase Phase, action Action) Kind {
	if raw == nil {
		return KindTransient
	}

	switch raw.Status {
	case 401:
		switch raw.Message {
		case MsgInvalidCode:
			return KindInvalidCode
		case MsgInvalidToken:
			return KindInvalidToken
		default:
			// Session-level 401 carries no room-specific discriminator.
			return KindSessionExpired
		}
	case 403:
		switch raw.Message {
		case MsgRequireCode:
			return KindCodeRequired
		case MsgGuestsNotAllowed:
			return KindGuestsForbidden
		case MsgUnauthorized:
			if phase == PhaseSubmit && action == ActionStart {
				return KindStartForbidden
			}
		}
		return KindTransient
	case 422:
		if phase == PhaseSubmit {
			return classifyValidation(raw.Errors)
		}
		return KindTransient
	case StatusMeetingClosed:
		if phase == PhaseSubmit {
			return KindMeetingClosed
		}
		return KindTransient
	case StatusAlreadyRunning:
		if phase == PhaseSubmit && action == ActionStart {
			return KindAlreadyRunning
		}
		return KindTransient
	}
	return KindTransient
}

// classifyValidation splits 422 payloads by the fields they name. A payload
// naming any consent key classifies as consent-missing even when the name
// is also rejected: the consent path re-probes, and the caller preserves
// the name error across the rebuilt form.
func classifyValidation(errs map[string][]string) Kind {
	hasConsent := false
	hasName := false
	for field := range errs {
		switch {
		case field == consent.FieldName:
			hasName = true
		case consent.IsConsentField(field):
			hasConsent = true
		}
	}
	switch {
	case hasConsent:
		return KindConsentMissing
	case hasName:
		return KindNameInvalid
	default:
		return KindTransient
	}
}

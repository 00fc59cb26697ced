// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldAttemptID = "attempt_id"
	FieldRoomID    = "room_id"
	FieldSessionID = "session_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// State-machine fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldAction   = "action"
	FieldKind     = "kind"
	FieldPhase    = "phase"

	// Network fields
	FieldBaseURL = "base_url"
	FieldStatus  = "status"
)

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package classify

import "testing"

func TestClassify_Taxonomy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		raw    *RawFailure
		phase  Phase
		action Action
		want   Kind
	}{
		{
			name:  "401 invalid_code on probe",
			raw:   &RawFailure{Status: 401, Message: MsgInvalidCode},
			phase: PhaseProbe, action: ActionJoin,
			want: KindInvalidCode,
		},
		{
			name:  "401 invalid_code on submit",
			raw:   &RawFailure{Status: 401, Message: MsgInvalidCode},
			phase: PhaseSubmit, action: ActionJoin,
			want: KindInvalidCode,
		},
		{
			name:  "401 invalid_token",
			raw:   &RawFailure{Status: 401, Message: MsgInvalidToken},
			phase: PhaseSubmit, action: ActionJoin,
			want: KindInvalidToken,
		},
		{
			name:  "bare 401 is session expiry",
			raw:   &RawFailure{Status: 401},
			phase: PhaseProbe, action: ActionJoin,
			want: KindSessionExpired,
		},
		{
			name:  "401 with unknown message is session expiry",
			raw:   &RawFailure{Status: 401, Message: "nope"},
			phase: PhaseSubmit, action: ActionStart,
			want: KindSessionExpired,
		},
		{
			name:  "403 require_code",
			raw:   &RawFailure{Status: 403, Message: MsgRequireCode},
			phase: PhaseProbe, action: ActionJoin,
			want: KindCodeRequired,
		},
		{
			name:  "403 guests_not_allowed",
			raw:   &RawFailure{Status: 403, Message: MsgGuestsNotAllowed},
			phase: PhaseSubmit, action: ActionJoin,
			want: KindGuestsForbidden,
		},
		{
			name:  "403 unauthorized on submit start is start-forbidden",
			raw:   &RawFailure{Status: 403, Message: MsgUnauthorized},
			phase: PhaseSubmit, action: ActionStart,
			want: KindStartForbidden,
		},
		{
			name:  "403 unauthorized on submit join is opaque",
			raw:   &RawFailure{Status: 403, Message: MsgUnauthorized},
			phase: PhaseSubmit, action: ActionJoin,
			want: KindTransient,
		},
		{
			name:  "403 unauthorized on probe is opaque",
			raw:   &RawFailure{Status: 403, Message: MsgUnauthorized},
			phase: PhaseProbe, action: ActionStart,
			want: KindTransient,
		},
		{
			name: "422 naming only the name",
			raw: &RawFailure{Status: 422, Message: "validation failed", Errors: map[string][]string{
				"name": {"is invalid"},
			}},
			phase: PhaseSubmit, action: ActionJoin,
			want: KindNameInvalid,
		},
		{
			name: "422 naming only consent keys",
			raw: &RawFailure{Status: 422, Message: "validation failed", Errors: map[string][]string{
				"consent_record":       {"is required"},
				"consent_record_video": {"is required"},
			}},
			phase: PhaseSubmit, action: ActionJoin,
			want: KindConsentMissing,
		},
		{
			name: "422 naming name and consent keys takes the consent path",
			raw: &RawFailure{Status: 422, Message: "validation failed", Errors: map[string][]string{
				"name":           {"is invalid"},
				"consent_record": {"is required"},
			}},
			phase: PhaseSubmit, action: ActionJoin,
			want: KindConsentMissing,
		},
		{
			name: "422 naming unknown fields is opaque",
			raw: &RawFailure{Status: 422, Message: "validation failed", Errors: map[string][]string{
				"topic": {"is invalid"},
			}},
			phase: PhaseSubmit, action: ActionJoin,
			want: KindTransient,
		},
		{
			name:  "460 on submit is meeting closed",
			raw:   &RawFailure{Status: 460, Message: "meeting closed"},
			phase: PhaseSubmit, action: ActionStart,
			want: KindMeetingClosed,
		},
		{
			name:  "460 on probe is opaque",
			raw:   &RawFailure{Status: 460},
			phase: PhaseProbe, action: ActionJoin,
			want: KindTransient,
		},
		{
			name:  "474 on submit start is already running",
			raw:   &RawFailure{Status: 474, Message: "already running"},
			phase: PhaseSubmit, action: ActionStart,
			want: KindAlreadyRunning,
		},
		{
			name:  "474 on submit join is opaque",
			raw:   &RawFailure{Status: 474},
			phase: PhaseSubmit, action: ActionJoin,
			want: KindTransient,
		},
		{
			name:  "500 is opaque",
			raw:   &RawFailure{Status: 500, Message: "boom"},
			phase: PhaseSubmit, action: ActionJoin,
			want: KindTransient,
		},
		{
			name:  "418 is opaque",
			raw:   &RawFailure{Status: 418},
			phase: PhaseProbe, action: ActionJoin,
			want: KindTransient,
		},
		{
			name:  "nil failure is opaque",
			raw:   nil,
			phase: PhaseSubmit, action: ActionJoin,
			want: KindTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tt.raw, tt.phase, tt.action); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRawFailure_Error(t *testing.T) {
	t.Parallel()

	withMsg := &RawFailure{Status: 502, Message: "bad gateway"}
	if got := withMsg.Error(); got != "room service: bad gateway (HTTP 502)" {
		t.Errorf("Error() = %q", got)
	}
	bare := &RawFailure{Status: 500}
	if got := bare.Error(); got != "room service: HTTP 500" {
		t.Errorf("Error() = %q", got)
	}
}

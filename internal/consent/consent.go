// Package consent models the agreement and identity fields a meeting
// admission attempt may require, and validates user-entered values.
package consent

// Wire field names shared by the submission body and server-side
// validation errors.
const (
	FieldName                    = "name"
	FieldConsentRecordAttendance = "consent_record_attendance"
	FieldConsentRecord           = "consent_record"
	FieldConsentRecordVideo      = "consent_record_video"
	FieldConsentStreaming        = "consent_streaming"
)

// ConsentFields lists the boolean consent keys in wire order.
var ConsentFields = []string{
	FieldConsentRecordAttendance,
	FieldConsentRecord,
	FieldConsentRecordVideo,
	FieldConsentStreaming,
}

// IsConsentField reports whether the given wire field name is one of the
// boolean consent keys.
func IsConsentField(name string) bool {
	for _, f := range ConsentFields {
		if f == name {
			return true
		}
	}
	return false
}

// Identity describes how the current actor authenticates against the room
// service for the purposes of an admission attempt.
type Identity int

const (
	// IdentityMember is an authenticated member with a service session.
	IdentityMember Identity = iota
	// IdentityGuest is an unauthenticated actor without a personal token.
	IdentityGuest
	// IdentityTokenHolder is an actor admitted through a personal join
	// token sourced from the route.
	IdentityTokenHolder
)

func (i Identity) String() string {
	switch i {
	case IdentityMember:
		return "member"
	case IdentityGuest:
		return "guest"
	case IdentityTokenHolder:
		return "token_holder"
	default:
		return "unknown"
	}
}

// CapabilityDescriptor reports which consent categories currently apply to
// a room. It is immutable once fetched; a fresh probe is required for every
// new attempt because room settings may change between attempts.
type CapabilityDescriptor struct {
	RecordingAvailable           bool `json:"recording_available"`
	AttendanceRecordingAvailable bool `json:"attendance_recording_available"`
	StreamingAvailable           bool `json:"streaming_available"`
}

// Values holds the user-entered form values. The zero value is a blank form.
type Values struct {
	DisplayName             string
	ConsentRecordAttendance bool
	ConsentRecord           bool
	ConsentRecordVideo      bool
	ConsentStreaming        bool
}

// Requirements states which fields are required for a given attempt.
type Requirements struct {
	DisplayName             bool
	ConsentRecordAttendance bool
	ConsentRecord           bool
	ConsentRecordVideo      bool
	ConsentStreaming        bool
}

// Any reports whether at least one field is required.
func (r Requirements) Any() bool {
	return r.DisplayName || r.ConsentRecordAttendance || r.ConsentRecord ||
		r.ConsentRecordVideo || r.ConsentStreaming
}

// RequirementsFor derives the required fields from the descriptor, the
// actor identity and the current values. The derivation is pure: video
// consent is only required once recording consent itself is given, so
// required-ness tracks the live values without cross-field event handlers.
func RequirementsFor(desc CapabilityDescriptor, identity Identity, values Values) Requirements {
	return Requirements{
		DisplayName:             identity == IdentityGuest,
		ConsentRecordAttendance: desc.AttendanceRecordingAvailable,
		ConsentRecord:           desc.RecordingAvailable,
		ConsentRecordVideo:      desc.RecordingAvailable && values.ConsentRecord,
		ConsentStreaming:        desc.StreamingAvailable,
	}
}

package consent

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Form is the consent form for one admission attempt. It is created after a
// successful capability probe and discarded when the attempt concludes; a
// fresh form with possibly different required fields replaces it when the
// service reports that the consent requirements grew.
type Form struct {
	desc     CapabilityDescriptor
	identity Identity
	values   Values

	fieldErrors map[string][]string
}

// NewForm builds a blank form for the given descriptor and actor identity.
func NewForm(desc CapabilityDescriptor, identity Identity) *Form {
	return &Form{
		desc:     desc,
		identity: identity,
	}
}

// Descriptor returns the capability descriptor the form was built from.
func (f *Form) Descriptor() CapabilityDescriptor { return f.desc }

// Identity returns the actor identity mode the form was built for.
func (f *Form) Identity() Identity { return f.identity }

// Requirements derives the currently required fields from the descriptor
// and the live values.
func (f *Form) Requirements() Requirements {
	return RequirementsFor(f.desc, f.identity, f.values)
}

// Values returns the effective values: a video consent given while
// recording consent is off is masked, mirroring the hidden control.
func (f *Form) Values() Values {
	v := f.values
	if !v.ConsentRecord {
		v.ConsentRecordVideo = false
	}
	return v
}

// SetDisplayName records the entered display name, NFC-normalized and
// trimmed.
func (f *Form) SetDisplayName(name string) {
	f.values.DisplayName = NormalizeDisplayName(name)
}

// SetConsentRecordAttendance records the attendance-recording consent.
func (f *Form) SetConsentRecordAttendance(v bool) { f.values.ConsentRecordAttendance = v }

// SetConsentRecord records the recording consent. Turning it off hides the
// video consent; the stored video value is reset so a later re-enable
// starts from an unchecked control.
func (f *Form) SetConsentRecord(v bool) {
	f.values.ConsentRecord = v
	if !v {
		f.values.ConsentRecordVideo = false
	}
}

// SetConsentRecordVideo records the recording-with-video consent.
func (f *Form) SetConsentRecordVideo(v bool) { f.values.ConsentRecordVideo = v }

// SetConsentStreaming records the streaming consent.
func (f *Form) SetConsentStreaming(v bool) { f.values.ConsentStreaming = v }

// Seed copies previously collected values onto the form where they are
// still applicable under the new descriptor. Used when a Start attempt is
// rewritten to Join and the form is rebuilt from a fresh probe.
func (f *Form) Seed(prev Values) {
	if f.identity == IdentityGuest {
		f.values.DisplayName = prev.DisplayName
	}
	if f.desc.AttendanceRecordingAvailable {
		f.values.ConsentRecordAttendance = prev.ConsentRecordAttendance
	}
	if f.desc.RecordingAvailable {
		f.values.ConsentRecord = prev.ConsentRecord
		f.values.ConsentRecordVideo = prev.ConsentRecordVideo && prev.ConsentRecord
	}
	if f.desc.StreamingAvailable {
		f.values.ConsentStreaming = prev.ConsentStreaming
	}
}

// Complete reports whether every currently-required field is populated.
func (f *Form) Complete() bool {
	req := f.Requirements()
	v := f.Values()
	if req.DisplayName && strings.TrimSpace(v.DisplayName) == "" {
		return false
	}
	if req.ConsentRecordAttendance && !v.ConsentRecordAttendance {
		return false
	}
	if req.ConsentRecord && !v.ConsentRecord {
		return false
	}
	if req.ConsentRecordVideo && !v.ConsentRecordVideo {
		return false
	}
	if req.ConsentStreaming && !v.ConsentStreaming {
		return false
	}
	return true
}

// Body builds the wire submission body. Fields whose requirement is not
// active are still transmitted with their boolean default; absence never
// means "not applicable". The name is the empty string except for
// personal-token admission, which sends a literal null.
func (f *Form) Body() SubmissionBody {
	v := f.Values()
	req := f.Requirements()

	body := SubmissionBody{
		ConsentRecordAttendance: req.ConsentRecordAttendance && v.ConsentRecordAttendance,
		ConsentRecord:           req.ConsentRecord && v.ConsentRecord,
		ConsentRecordVideo:      req.ConsentRecordVideo && v.ConsentRecordVideo,
		ConsentStreaming:        req.ConsentStreaming && v.ConsentStreaming,
	}

	if f.identity == IdentityTokenHolder {
		body.Name = nil
		return body
	}
	name := ""
	if req.DisplayName {
		name = v.DisplayName
	}
	body.Name = &name
	return body
}

// FieldErrors returns the server-side validation errors currently merged
// onto the form, keyed by wire field name.
func (f *Form) FieldErrors() map[string][]string {
	return f.fieldErrors
}

// MergeFieldErrors merges server-side validation errors onto the form by
// key for display.
func (f *Form) MergeFieldErrors(errs map[string][]string) {
	if len(errs) == 0 {
		return
	}
	if f.fieldErrors == nil {
		f.fieldErrors = make(map[string][]string, len(errs))
	}
	for k, v := range errs {
		f.fieldErrors[k] = v
	}
}

// ClearFieldErrors drops all merged validation errors. Called
// unconditionally at the start of every new submission attempt; errors are
// never carried across attempts.
func (f *Form) ClearFieldErrors() {
	f.fieldErrors = nil
}

// SubmissionBody is the bit-exact admission request body.
type SubmissionBody struct {
	Name                    *string `json:"name"`
	ConsentRecordAttendance bool    `json:"consent_record_attendance"`
	ConsentRecord           bool    `json:"consent_record"`
	ConsentRecordVideo      bool    `json:"consent_record_video"`
	ConsentStreaming        bool    `json:"consent_streaming"`
}

// NormalizeDisplayName canonicalizes a user-entered display name: NFC
// normalization plus surrounding whitespace removal. The room service
// applies the same normalization before validating.
func NormalizeDisplayName(name string) string {
	return strings.TrimSpace(norm.NFC.String(name))
}

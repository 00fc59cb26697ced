// Package roomapi is the HTTP client for the room service's admission
// surface: room detail, the capability probe, and the join/start
// submission. The client interprets no failure meaning; raw failures are
// returned unmodified for classification.
package roomapi

import "github.com/ManuGH/roomgate/internal/consent"

// MeetingStatus is the lifecycle state of a room's meeting as reported by
// the room-detail endpoint. A closed meeting is a transient terminal state
// observed only through a failed admission attempt, never steady state.
type MeetingStatus string

const (
	MeetingNotRunning MeetingStatus = "not_running"
	MeetingRunning    MeetingStatus = "running"
)

// AccessProtection describes how a room gates admission. The variants are
// mutually exclusive and determine which credential is relevant.
type AccessProtection string

const (
	ProtectionNone          AccessProtection = "none"
	ProtectionAccessCode    AccessProtection = "access_code"
	ProtectionPersonalToken AccessProtection = "personal_token"
)

// Room is the admission-relevant view of a room, owned by the room-detail
// collaborator and read-only to the admission engine.
type Room struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	MeetingStatus    MeetingStatus    `json:"meeting_status"`
	ActorCanStart    bool             `json:"actor_can_start"`
	AccessProtection AccessProtection `json:"access_protection"`
	ActorIdentity    string           `json:"actor_identity"`
}

// Identity maps the wire actor-identity mode onto the consent identity.
func (r Room) Identity() consent.Identity {
	switch r.ActorIdentity {
	case "member":
		return consent.IdentityMember
	case "token_holder":
		return consent.IdentityTokenHolder
	default:
		return consent.IdentityGuest
	}
}

// JoinTicket is the successful admission response: an opaque absolute URL
// to navigate to. The ticket is single-use; no further local processing is
// attempted.
type JoinTicket struct {
	URL string `json:"url"`
}

// CredentialKind discriminates the credential variants.
type CredentialKind int

const (
	CredentialNone CredentialKind = iota
	CredentialAccessCode
	CredentialPersonalToken
)

// Credential is the access code or personal token attached to probe and
// submit requests. At most one credential is attached to any request; it
// travels as a header, never as a body field.
type Credential struct {
	kind  CredentialKind
	value string
}

// NoCredential returns the empty credential.
func NoCredential() Credential { return Credential{} }

// AccessCode returns an access-code credential.
func AccessCode(code string) Credential {
	return Credential{kind: CredentialAccessCode, value: code}
}

// PersonalToken returns a personal-token credential. Tokens are sourced
// from the route, never user-entered.
func PersonalToken(token string) Credential {
	return Credential{kind: CredentialPersonalToken, value: token}
}

// Kind returns the credential variant.
func (c Credential) Kind() CredentialKind { return c.kind }

// IsZero reports whether no credential is held.
func (c Credential) IsZero() bool { return c.kind == CredentialNone }

// Request headers carrying the credential variants.
const (
	HeaderAccessCode  = "X-Access-Code"
	HeaderInviteToken = "X-Invite-Token"
)

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package roomsim is a reference room service implementing the admission
// wire contract: room detail, the capability probe, and the join/start
// submission with the full failure taxonomy. It exists so the admission
// engine can be exercised end to end against a real HTTP surface.
package roomsim

import (
	"github.com/ManuGH/roomgate/internal/consent"
	"github.com/ManuGH/roomgate/internal/roomapi"
)

// RoomRecord is the service-side view of a room, including the secrets
// and policy the public detail view never exposes.
type RoomRecord struct {
	ID             string `yaml:"id" json:"id"`
	Name           string `yaml:"name" json:"name"`
	MeetingRunning bool   `yaml:"meetingRunning" json:"meeting_running"`

	// Protection is one of "none", "access_code", "personal_token".
	Protection   string   `yaml:"protection" json:"protection"`
	AccessCode   string   `yaml:"accessCode,omitempty" json:"access_code,omitempty"`
	InviteTokens []string `yaml:"inviteTokens,omitempty" json:"invite_tokens,omitempty"`

	GuestsAllowed bool     `yaml:"guestsAllowed" json:"guests_allowed"`
	StartUsers    []string `yaml:"startUsers,omitempty" json:"start_users,omitempty"`

	RecordingAvailable           bool `yaml:"recordingAvailable" json:"recording_available"`
	AttendanceRecordingAvailable bool `yaml:"attendanceRecordingAvailable" json:"attendance_recording_available"`
	StreamingAvailable           bool `yaml:"streamingAvailable" json:"streaming_available"`
}

// Descriptor derives the capability probe response from the room's
// current settings.
func (r RoomRecord) Descriptor() consent.CapabilityDescriptor {
	return consent.CapabilityDescriptor{
		RecordingAvailable:           r.RecordingAvailable,
		AttendanceRecordingAvailable: r.AttendanceRecordingAvailable,
		StreamingAvailable:           r.StreamingAvailable,
	}
}

// HasInviteToken reports whether token is one of the room's personal
// join tokens.
func (r RoomRecord) HasInviteToken(token string) bool {
	for _, t := range r.InviteTokens {
		if t == token {
			return true
		}
	}
	return false
}

// CanStart reports whether the given user may start this room's meeting.
func (r RoomRecord) CanStart(user string) bool {
	for _, u := range r.StartUsers {
		if u == user {
			return true
		}
	}
	return false
}

// Detail builds the public room view for the given actor.
func (r RoomRecord) Detail(actor Actor) roomapi.Room {
	status := roomapi.MeetingNotRunning
	if r.MeetingRunning {
		status = roomapi.MeetingRunning
	}
	return roomapi.Room{
		ID:               r.ID,
		Name:             r.Name,
		MeetingStatus:    status,
		ActorCanStart:    actor.Identity == consent.IdentityMember && r.CanStart(actor.User),
		AccessProtection: roomapi.AccessProtection(r.Protection),
		ActorIdentity:    actor.Identity.String(),
	}
}

// Actor is the resolved identity of a request against a room.
type Actor struct {
	Identity consent.Identity
	User     string // set for members only
}

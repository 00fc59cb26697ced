// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package roomsim

import (
	"encoding/json"
	"errors"
	"net/http"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/roomgate/internal/classify"
	"github.com/ManuGH/roomgate/internal/consent"
	"github.com/ManuGH/roomgate/internal/log"
	"github.com/ManuGH/roomgate/internal/roomapi"
	"github.com/ManuGH/roomgate/internal/telemetry"
)

// maxDisplayNameLen caps guest display names in runes.
const maxDisplayNameLen = 100

// wireError is a deferred failure response. A nil body with a non-zero
// status writes the status alone; the bare 401 session signal depends on
// carrying no discriminator.
type wireError struct {
	status  int
	message string
	errors  map[string][]string
	bare    bool
}

func (e *wireError) write(w http.ResponseWriter) {
	if e.bare {
		w.WriteHeader(e.status)
		return
	}
	writeError(w, e.status, e.message, e.errors)
}

func bareError(status int) *wireError {
	return &wireError{status: status, bare: true}
}

func messageError(status int, message string) *wireError {
	return &wireError{status: status, message: message}
}

// authorize resolves the request's actor against the room and enforces
// the room's access policy. Credential sources are checked in a fixed
// order: member session, then invite token, then access code. Start
// permission is deliberately not checked here: the probe must stay
// answerable for actors who may only join, so the start-permission check
// lives in the submission handler alone.
func (s *Server) authorize(r *http.Request, room RoomRecord) (Actor, *wireError) {
	ctx := r.Context()

	if cookie, err := r.Cookie(roomapi.SessionCookieName); err == nil {
		user, err := s.sessions.Lookup(ctx, cookie.Value)
		if errors.Is(err, ErrSessionNotFound) {
			return Actor{}, bareError(http.StatusUnauthorized)
		}
		if err != nil {
			s.logger.Error().Err(err).Msg("session lookup failed")
			return Actor{}, messageError(http.StatusServiceUnavailable, "session_store_unavailable")
		}
		return Actor{Identity: consent.IdentityMember, User: user}, nil
	}

	if token := r.Header.Get(roomapi.HeaderInviteToken); token != "" {
		if room.Protection != "personal_token" || !room.HasInviteToken(token) {
			return Actor{}, messageError(http.StatusUnauthorized, classify.MsgInvalidToken)
		}
		return Actor{Identity: consent.IdentityTokenHolder}, nil
	}

	// Guest path.
	if room.Protection == "access_code" {
		code := r.Header.Get(roomapi.HeaderAccessCode)
		if code == "" {
			return Actor{}, messageError(http.StatusForbidden, classify.MsgRequireCode)
		}
		if code != room.AccessCode {
			return Actor{}, messageError(http.StatusUnauthorized, classify.MsgInvalidCode)
		}
	}
	if !room.GuestsAllowed {
		return Actor{}, messageError(http.StatusForbidden, classify.MsgGuestsNotAllowed)
	}
	return Actor{Identity: consent.IdentityGuest}, nil
}

// resolveActor is the lenient variant used by the room-detail view: bad
// credentials degrade to the guest view instead of failing, so the
// unauthenticated state of a room is always observable.
func (s *Server) resolveActor(r *http.Request) Actor {
	if cookie, err := r.Cookie(roomapi.SessionCookieName); err == nil {
		if user, err := s.sessions.Lookup(r.Context(), cookie.Value); err == nil {
			return Actor{Identity: consent.IdentityMember, User: user}
		}
	}
	return Actor{Identity: consent.IdentityGuest}
}

func (s *Server) loadRoom(w http.ResponseWriter, r *http.Request) (RoomRecord, bool) {
	roomID := chi.URLParam(r, "roomID")
	room, err := s.rooms.Get(r.Context(), roomID)
	if errors.Is(err, ErrRoomNotFound) {
		writeError(w, http.StatusNotFound, "room_not_found", nil)
		return RoomRecord{}, false
	}
	if err != nil {
		s.logger.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("room load failed")
		writeError(w, http.StatusInternalServerError, "internal_error", nil)
		return RoomRecord{}, false
	}
	return room, true
}

func (s *Server) handleRoomDetail(w http.ResponseWriter, r *http.Request) {
	room, ok := s.loadRoom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, room.Detail(s.resolveActor(r)))
}

func intentFromQuery(r *http.Request) (classify.Action, bool) {
	switch r.URL.Query().Get("intent") {
	case "", string(classify.ActionJoin):
		return classify.ActionJoin, true
	case string(classify.ActionStart):
		return classify.ActionStart, true
	default:
		return "", false
	}
}

func (s *Server) handleRequirements(w http.ResponseWriter, r *http.Request) {
	room, ok := s.loadRoom(w, r)
	if !ok {
		return
	}
	if _, ok := intentFromQuery(r); !ok {
		writeError(w, http.StatusBadRequest, "unknown_intent", nil)
		return
	}
	if _, werr := s.authorize(r, room); werr != nil {
		werr.write(w)
		return
	}
	writeJSON(w, http.StatusOK, room.Descriptor())
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	room, ok := s.loadRoom(w, r)
	if !ok {
		return
	}
	actor, werr := s.authorize(r, room)
	if werr != nil {
		werr.write(w)
		return
	}

	if !room.MeetingRunning {
		writeError(w, classify.StatusMeetingClosed, "meeting_closed", nil)
		return
	}

	name, werr := s.decodeSubmission(r, room, actor)
	if werr != nil {
		werr.write(w)
		return
	}

	s.admit(w, r, room, actor, name, false)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	room, ok := s.loadRoom(w, r)
	if !ok {
		return
	}
	actor, werr := s.authorize(r, room)
	if werr != nil {
		werr.write(w)
		return
	}

	if actor.Identity != consent.IdentityMember || !room.CanStart(actor.User) {
		writeError(w, http.StatusForbidden, classify.MsgUnauthorized, nil)
		return
	}

	if room.MeetingRunning {
		writeError(w, classify.StatusAlreadyRunning, "already_running", nil)
		return
	}

	name, werr := s.decodeSubmission(r, room, actor)
	if werr != nil {
		werr.write(w)
		return
	}

	s.admit(w, r, room, actor, name, true)
}

// decodeSubmission parses and validates the admission body against the
// room's live settings. Consent requirements are re-derived here rather
// than trusted from the client: a descriptor fetched before a settings
// change must fail, not slip through.
func (s *Server) decodeSubmission(r *http.Request, room RoomRecord, actor Actor) (string, *wireError) {
	var body consent.SubmissionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return "", messageError(http.StatusBadRequest, "malformed_body")
	}

	name := ""
	if body.Name != nil {
		name = consent.NormalizeDisplayName(*body.Name)
	}

	values := consent.Values{
		DisplayName:             name,
		ConsentRecordAttendance: body.ConsentRecordAttendance,
		ConsentRecord:           body.ConsentRecord,
		ConsentRecordVideo:      body.ConsentRecordVideo,
		ConsentStreaming:        body.ConsentStreaming,
	}
	req := consent.RequirementsFor(room.Descriptor(), actor.Identity, values)

	fieldErrors := map[string][]string{}
	if req.DisplayName {
		switch {
		case name == "":
			fieldErrors[consent.FieldName] = []string{"required"}
		case utf8.RuneCountInString(name) > maxDisplayNameLen:
			fieldErrors[consent.FieldName] = []string{"too_long"}
		}
	}
	if req.ConsentRecordAttendance && !values.ConsentRecordAttendance {
		fieldErrors[consent.FieldConsentRecordAttendance] = []string{"required"}
	}
	if req.ConsentRecord && !values.ConsentRecord {
		fieldErrors[consent.FieldConsentRecord] = []string{"required"}
	}
	if req.ConsentRecordVideo && !values.ConsentRecordVideo {
		fieldErrors[consent.FieldConsentRecordVideo] = []string{"required"}
	}
	if req.ConsentStreaming && !values.ConsentStreaming {
		fieldErrors[consent.FieldConsentStreaming] = []string{"required"}
	}

	if len(fieldErrors) > 0 {
		return name, &wireError{
			status:  http.StatusUnprocessableEntity,
			message: "validation_failed",
			errors:  fieldErrors,
		}
	}
	return name, nil
}

func (s *Server) admit(w http.ResponseWriter, r *http.Request, room RoomRecord, actor Actor, name string, started bool) {
	actorLabel := actor.Identity.String()
	if actor.User != "" {
		actorLabel = actor.User
	} else if name != "" {
		actorLabel = name
	}

	ticket, err := s.tickets.Issue(room.ID, actorLabel)
	if err != nil {
		s.logger.Error().Err(err).Str(log.FieldRoomID, room.ID).Msg("ticket issue failed")
		writeError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}

	if started {
		// Ticket first, running flag second: an unredeemed ticket ages out
		// with its TTL, while a running flag persisted ahead of a failed
		// issue would strand the room answering 474 to every retry.
		if err := s.rooms.SetMeetingRunning(r.Context(), room.ID, true); err != nil {
			s.logger.Error().Err(err).Str(log.FieldRoomID, room.ID).Msg("start persist failed")
			writeError(w, http.StatusInternalServerError, "internal_error", nil)
			return
		}
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		telemetry.TicketAttributes(ticket.ID, "issued")...)

	logger := log.WithComponentFromContext(r.Context(), "roomsim")
	logger.Info().
		Str(log.FieldRoomID, room.ID).
		Str("actor", actorLabel).
		Bool("started", started).
		Msg("admission granted")

	writeJSON(w, http.StatusOK, roomapi.JoinTicket{URL: s.externalURL + "/meet/" + ticket.ID})
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ticketID")
	ticket, err := s.tickets.Redeem(id)
	if errors.Is(err, ErrTicketUnknown) {
		trace.SpanFromContext(r.Context()).SetAttributes(
			telemetry.TicketAttributes(id, "replayed")...)
		writeError(w, http.StatusGone, "ticket_invalid", nil)
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("ticket redeem failed")
		writeError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	trace.SpanFromContext(r.Context()).SetAttributes(
		telemetry.TicketAttributes(id, "redeemed")...)
	writeJSON(w, http.StatusOK, map[string]string{
		"room_id": ticket.RoomID,
		"actor":   ticket.Actor,
	})
}

type loginRequest struct {
	User string `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.User == "" {
		writeError(w, http.StatusBadRequest, "malformed_body", nil)
		return
	}
	token, err := s.sessions.Create(r.Context(), req.User)
	if err != nil {
		s.logger.Error().Err(err).Msg("session create failed")
		writeError(w, http.StatusServiceUnavailable, "session_store_unavailable", nil)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     roomapi.SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.logger.Debug().Str("user", req.User).Str(log.FieldSessionID, token).Msg("session created")
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(roomapi.SessionCookieName); err == nil {
		if err := s.sessions.Revoke(r.Context(), cookie.Value); err != nil {
			s.logger.Warn().Err(err).Str(log.FieldSessionID, cookie.Value).Msg("session revoke failed")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

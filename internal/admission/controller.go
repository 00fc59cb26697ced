// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package admission

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/roomgate/internal/classify"
	"github.com/ManuGH/roomgate/internal/consent"
	"github.com/ManuGH/roomgate/internal/log"
	"github.com/ManuGH/roomgate/internal/metrics"
	"github.com/ManuGH/roomgate/internal/roomapi"
	"github.com/ManuGH/roomgate/internal/telemetry"
)

// Controller owns one admission attempt per room view. It holds the
// credential across attempts and is the only writer of that credential;
// all other state is attempt-scoped. Probe and submit calls block the
// calling goroutine; at most one attempt is pending at a time.
type Controller struct {
	mu sync.Mutex

	svc  Service
	room roomapi.Room
	cred roomapi.Credential

	state         State
	action        classify.Action
	form          *consent.Form
	notice        *Notice
	blockedReason classify.Kind

	// generation invalidates late results: a result observed under a
	// stale generation is dropped without touching controller state.
	generation  uint64
	attemptOpen bool
	attemptID   string

	navigate  func(url string)
	onRoom    func(roomapi.Room)
	reauthURL func(roomID string) string
	logger    zerolog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithAccessCode seeds the controller with a user-entered access code.
func WithAccessCode(code string) Option {
	return func(c *Controller) { c.cred = roomapi.AccessCode(code) }
}

// WithPersonalToken seeds the controller with the personal join token from
// the route.
func WithPersonalToken(token string) Option {
	return func(c *Controller) { c.cred = roomapi.PersonalToken(token) }
}

// WithNavigator sets the full-navigation hook invoked with the redirect
// URL on success and with the re-authentication URL on session expiry.
func WithNavigator(fn func(url string)) Option {
	return func(c *Controller) { c.navigate = fn }
}

// WithRoomObserver sets the hook receiving refetched room state after
// blocking recoveries.
func WithRoomObserver(fn func(roomapi.Room)) Option {
	return func(c *Controller) { c.onRoom = fn }
}

// WithReauthURL overrides how the re-authentication URL is built from the
// room ID.
func WithReauthURL(fn func(roomID string) string) Option {
	return func(c *Controller) { c.reauthURL = fn }
}

// WithLogger sets the controller's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New creates a controller for the given room view.
func New(svc Service, room roomapi.Room, opts ...Option) *Controller {
	c := &Controller{
		svc:      svc,
		room:     room,
		state:    StateIdle,
		navigate: func(string) {},
		onRoom:   func(roomapi.Room) {},
		reauthURL: func(roomID string) string {
			return "/auth/login?return_to=/rooms/" + roomID
		},
		logger: log.WithComponent("admission"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current attempt state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Action returns the current attempt's action. Meaningful only while an
// attempt is pending; a Start may have been silently rewritten to Join.
func (c *Controller) Action() classify.Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.action
}

// Form returns the current consent form, or nil outside an attempt.
func (c *Controller) Form() *consent.Form {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.form
}

// Notice returns the latest non-field notice, or nil.
func (c *Controller) Notice() *Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notice
}

// BlockedReason returns the classified kind that blocked the last attempt.
// Meaningful only in StateBlocked.
func (c *Controller) BlockedReason() classify.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blockedReason
}

// Room returns the controller's current view of the room.
func (c *Controller) Room() roomapi.Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Credential returns the held credential. Mutated exclusively by the
// controller in response to classified failures, and by SetAccessCode.
func (c *Controller) Credential() roomapi.Credential {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cred
}

// SetAccessCode records a user-entered access code for the next attempt.
func (c *Controller) SetAccessCode(code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingLocked() {
		return ErrAttemptInFlight
	}
	c.cred = roomapi.AccessCode(code)
	return nil
}

// RequestJoin starts a Join attempt. No-op if an attempt is pending.
func (c *Controller) RequestJoin(ctx context.Context) error {
	return c.trigger(ctx, classify.ActionJoin)
}

// RequestStart starts a Start attempt. No-op if an attempt is pending.
func (c *Controller) RequestStart(ctx context.Context) error {
	return c.trigger(ctx, classify.ActionStart)
}

// Confirm submits the consent form. Valid only while awaiting consent and
// with every required field populated.
func (c *Controller) Confirm(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateAwaitingConsent {
		c.mu.Unlock()
		return ErrNotAwaitingConsent
	}
	if !c.form.Complete() {
		c.mu.Unlock()
		return ErrFormIncomplete
	}
	gen := c.generation
	c.setStateLocked(StateSubmitting)
	c.mu.Unlock()

	return c.submit(ctx, gen)
}

// Cancel abandons the attempt while awaiting consent. The form is
// discarded and no request is sent.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAwaitingConsent {
		return ErrNotCancellable
	}
	c.form = nil
	c.concludeLocked(outcomeCancelled)
	c.setStateLocked(StateIdle)
	return nil
}

// Reset abandons whatever attempt is pending and invalidates late
// results. Intended for the hosting UI when the room view goes away; an
// in-flight request still runs to completion but its result is dropped.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.form = nil
	c.concludeLocked(outcomeAbandoned)
	c.setStateLocked(StateIdle)
}

func (c *Controller) trigger(ctx context.Context, action classify.Action) error {
	c.mu.Lock()
	if c.pendingLocked() {
		c.mu.Unlock()
		return ErrAttemptInFlight
	}
	c.generation++
	gen := c.generation
	c.action = action
	c.form = nil
	c.notice = nil
	c.blockedReason = ""
	c.attemptOpen = true
	c.attemptID = uuid.NewString()
	metrics.RecordAttempt(string(action))
	c.logger.Debug().
		Str(log.FieldAttemptID, c.attemptID).
		Str(log.FieldRoomID, c.room.ID).
		Str(log.FieldAction, string(action)).
		Msg("admission attempt started")
	c.setStateLocked(StateProbing)
	attemptID, roomID := c.attemptID, c.room.ID
	c.mu.Unlock()

	// Correlation IDs ride the context so every log line and span inside
	// this attempt carries them.
	ctx = log.ContextWithAttemptID(ctx, attemptID)
	ctx = log.ContextWithRoomID(ctx, roomID)
	return c.probe(ctx, gen, nil, nil, true)
}

// pendingLocked reports whether an attempt is between trigger and a
// terminal outcome. Blocked and Idle permit a new trigger.
func (c *Controller) pendingLocked() bool {
	switch c.state {
	case StateIdle, StateBlocked:
		return false
	default:
		return true
	}
}

// probe runs the capability probe and builds the consent form. seed, when
// non-nil, pre-fills the form with previously collected values; mergeErrs
// carries validation errors to preserve across a rebuild. autoSubmit
// enables the immediate-submission bypass for forms with no required
// fields.
func (c *Controller) probe(ctx context.Context, gen uint64, seed *consent.Values, mergeErrs map[string][]string, autoSubmit bool) error {
	c.mu.Lock()
	roomID, action, cred := c.room.ID, c.action, c.cred
	c.mu.Unlock()

	desc, err := c.svc.Probe(ctx, roomID, action, cred)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		reauth := c.handleProbeFailureLocked(ctx, err)
		c.mu.Unlock()
		if reauth != "" {
			c.navigate(reauth)
		}
		return nil
	}

	form := consent.NewForm(desc, c.identityLocked())
	if seed != nil {
		form.Seed(*seed)
	}
	form.MergeFieldErrors(mergeErrs)
	c.form = form

	if autoSubmit && form.Complete() {
		// No field is required: bypass user interaction entirely.
		c.setStateLocked(StateSubmitting)
		c.mu.Unlock()
		return c.submit(ctx, gen)
	}
	c.setStateLocked(StateAwaitingConsent)
	c.mu.Unlock()
	return nil
}

func (c *Controller) submit(ctx context.Context, gen uint64) error {
	c.mu.Lock()
	// Reset may have landed between the caller's handoff and this lock;
	// a stale generation means the form is gone and the attempt is over.
	if gen != c.generation {
		c.mu.Unlock()
		return nil
	}
	// Validation errors are attempt-scoped per submission: never carried
	// into a new submission regardless of outcome.
	c.form.ClearFieldErrors()
	roomID, action, cred := c.room.ID, c.action, c.cred
	body := c.form.Body()
	c.mu.Unlock()

	ticket, err := c.svc.Submit(ctx, roomID, action, cred, body)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return nil
	}
	if err == nil {
		c.concludeLocked(outcomeRedirected)
		c.setStateLocked(StateRedirecting)
		c.form = nil
		c.mu.Unlock()
		// Full navigation; the join payload is single-use and no further
		// local processing is attempted.
		c.navigate(ticket.URL)
		return nil
	}
	return c.handleSubmitFailure(ctx, gen, err)
}

// handleSubmitFailure executes the recovery matching the classified kind.
// Callers hold the lock; it is released before any follow-up I/O.
func (c *Controller) handleSubmitFailure(ctx context.Context, gen uint64, err error) error {
	raw := roomapi.RawFailure(err)
	kind := classify.Classify(raw, classify.PhaseSubmit, c.action)
	metrics.RecordFailure(string(classify.PhaseSubmit), string(kind))
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(telemetry.AdmissionAttributes(
		c.room.ID, string(c.action), string(classify.PhaseSubmit), string(kind))...)
	span.SetAttributes(telemetry.ErrorAttributes(err, string(kind))...)
	logger := log.WithContext(ctx, c.logger)
	logger.Debug().
		Str(log.FieldKind, string(kind)).
		Str(log.FieldPhase, string(classify.PhaseSubmit)).
		Msg("submission failed")

	switch kind {
	case classify.KindNameInvalid:
		// Keep the dialog open; no re-probe.
		c.form.MergeFieldErrors(raw.Errors)
		c.setStateLocked(StateAwaitingConsent)
		c.mu.Unlock()
		return nil

	case classify.KindConsentMissing:
		// Room settings changed concurrently: exactly one fresh probe,
		// rebuilt form, preserved field errors. The one re-entrant
		// consent edge.
		metrics.RecordReprobe("consent_conflict")
		prev := c.form.Values()
		savedErrs := raw.Errors
		c.setStateLocked(StateProbing)
		c.mu.Unlock()
		return c.probe(ctx, gen, &prev, savedErrs, false)

	case classify.KindInvalidCode, classify.KindCodeRequired:
		c.cred = roomapi.NoCredential()
		c.form = nil
		c.blockLocked(kind, raw)
		c.mu.Unlock()
		// Refetch without the credential so the caller observes the
		// now-unauthenticated view.
		c.refreshRoom(ctx, gen, roomapi.NoCredential())
		return nil

	case classify.KindInvalidToken, classify.KindGuestsForbidden:
		c.cred = roomapi.NoCredential()
		c.form = nil
		c.blockLocked(kind, raw)
		c.mu.Unlock()
		return nil

	case classify.KindSessionExpired:
		c.form = nil
		c.blockLocked(kind, raw)
		roomID := c.room.ID
		c.mu.Unlock()
		c.navigate(c.reauthURL(roomID))
		return nil

	case classify.KindStartForbidden:
		c.form = nil
		c.setNoticeLocked(kind, raw)
		c.concludeLocked(outcomeBlocked)
		c.setStateLocked(StateIdle)
		c.mu.Unlock()
		c.refreshRoom(ctx, gen, c.Credential())
		return nil

	case classify.KindMeetingClosed:
		c.form = nil
		c.setNoticeLocked(kind, raw)
		c.concludeLocked(outcomeAborted)
		c.setStateLocked(StateIdle)
		c.mu.Unlock()
		// The refreshed meetingStatus flips to NotRunning, so the room
		// view's available action changes from Join to Start.
		c.refreshRoom(ctx, gen, c.Credential())
		return nil

	case classify.KindAlreadyRunning:
		// Start raced a meeting that is already running: rewrite the
		// action and run the machine again without a new user click.
		metrics.RecordReprobe("action_rewrite")
		c.action = classify.ActionJoin
		c.setNoticeLocked(kind, raw)
		prev := c.form.Values()
		c.setStateLocked(StateProbing)
		c.mu.Unlock()
		return c.probe(ctx, gen, &prev, nil, true)

	default: // classify.KindTransient
		// Opaque failure: keep the dialog and the entered values, clear
		// only the validation errors, and let the user retry in place.
		c.form.ClearFieldErrors()
		c.notice = transientNotice(raw, err)
		c.setStateLocked(StateAwaitingConsent)
		c.mu.Unlock()
		return nil
	}
}

// handleProbeFailureLocked maps a failed probe to its recovery. The
// credential-entry opportunity precedes the probe, so no dialog is shown.
// The returned URL, when non-empty, is the re-authentication target to
// navigate to once the lock is released.
func (c *Controller) handleProbeFailureLocked(ctx context.Context, err error) string {
	raw := roomapi.RawFailure(err)
	kind := classify.Classify(raw, classify.PhaseProbe, c.action)
	metrics.RecordFailure(string(classify.PhaseProbe), string(kind))
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(telemetry.AdmissionAttributes(
		c.room.ID, string(c.action), string(classify.PhaseProbe), string(kind))...)
	span.SetAttributes(telemetry.ErrorAttributes(err, string(kind))...)
	logger := log.WithContext(ctx, c.logger)
	logger.Debug().
		Str(log.FieldKind, string(kind)).
		Str(log.FieldPhase, string(classify.PhaseProbe)).
		Msg("probe failed")

	switch kind {
	case classify.KindInvalidCode, classify.KindCodeRequired,
		classify.KindInvalidToken, classify.KindGuestsForbidden:
		c.cred = roomapi.NoCredential()
		c.blockLocked(kind, raw)
	case classify.KindSessionExpired:
		c.blockLocked(kind, raw)
		return c.reauthURL(c.room.ID)
	default:
		c.form = nil
		c.notice = transientNotice(raw, err)
		c.concludeLocked(outcomeAborted)
		c.setStateLocked(StateIdle)
	}
	return ""
}

func (c *Controller) blockLocked(kind classify.Kind, raw *classify.RawFailure) {
	c.blockedReason = kind
	c.setNoticeLocked(kind, raw)
	c.concludeLocked(outcomeBlocked)
	c.setStateLocked(StateBlocked)
}

func (c *Controller) setNoticeLocked(kind classify.Kind, raw *classify.RawFailure) {
	n, ok := noticeForKind[kind]
	if !ok {
		n = Notice{Kind: NoticeServiceError, Message: "The request failed."}
	}
	if raw != nil {
		n.Status = raw.Status
	}
	c.notice = &n
}

func transientNotice(raw *classify.RawFailure, err error) *Notice {
	n := &Notice{Kind: NoticeServiceError}
	if raw != nil {
		n.Status = raw.Status
		n.Message = raw.Message
	}
	if n.Message == "" && err != nil {
		n.Message = err.Error()
	}
	return n
}

// refreshRoom refetches the room-detail collaborator's state and hands it
// to the observer. Failures only log; the stale view stays in place.
func (c *Controller) refreshRoom(ctx context.Context, gen uint64, cred roomapi.Credential) {
	c.mu.Lock()
	roomID := c.room.ID
	c.mu.Unlock()

	room, err := c.svc.RoomDetail(ctx, roomID, cred)
	if err != nil {
		c.logger.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("room refresh failed")
		return
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.room = room
	c.mu.Unlock()
	c.onRoom(room)
}

// identityLocked derives the actor identity for form building: a held
// personal token wins over the room detail's view.
func (c *Controller) identityLocked() consent.Identity {
	if c.cred.Kind() == roomapi.CredentialPersonalToken {
		return consent.IdentityTokenHolder
	}
	return c.room.Identity()
}

func (c *Controller) concludeLocked(outcome string) {
	if !c.attemptOpen {
		return
	}
	c.attemptOpen = false
	metrics.RecordOutcome(string(c.action), outcome)
	c.logger.Debug().
		Str(log.FieldAttemptID, c.attemptID).
		Str("outcome", outcome).
		Msg("admission attempt concluded")
}

func (c *Controller) setStateLocked(s State) {
	if s == c.state {
		return
	}
	c.logger.Debug().
		Str(log.FieldOldState, string(c.state)).
		Str(log.FieldNewState, string(s)).
		Msg("state transition")
	c.state = s
}

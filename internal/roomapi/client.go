package roomapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/ManuGH/roomgate/internal/classify"
	"github.com/ManuGH/roomgate/internal/consent"
)

// SessionCookieName is the cookie carrying the member session.
const SessionCookieName = "roomgate_session"

// Client talks to the room service's admission surface.
type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	session string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRateLimit caps the client at rps requests per second with the given
// burst. Zero rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithTracing wraps the transport with OpenTelemetry HTTP instrumentation.
func WithTracing() Option {
	return func(c *Client) {
		base := c.http.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		c.http.Transport = otelhttp.NewTransport(base)
	}
}

// WithSession attaches a member session to every request.
func WithSession(token string) Option {
	return func(c *Client) { c.session = token }
}

// New creates a client for the service at base.
func New(base string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RoomDetail fetches the admission-relevant room state. The credential is
// attached when held; callers refetch with NoCredential() to observe the
// unauthenticated view.
func (c *Client) RoomDetail(ctx context.Context, roomID string, cred Credential) (Room, error) {
	var room Room
	err := c.do(ctx, "room detail", http.MethodGet, c.roomPath(roomID), cred, nil, &room)
	return room, err
}

// Probe asks which consent categories currently apply for the given action.
// Side-effect free on the room; safe to repeat.
func (c *Client) Probe(ctx context.Context, roomID string, action classify.Action, cred Credential) (consent.CapabilityDescriptor, error) {
	var desc consent.CapabilityDescriptor
	u := c.roomPath(roomID) + "/meeting/requirements?intent=" + url.QueryEscape(string(action))
	err := c.do(ctx, "capability probe", http.MethodGet, u, cred, nil, &desc)
	return desc, err
}

// Submit performs the admission call for the given action.
func (c *Client) Submit(ctx context.Context, roomID string, action classify.Action, cred Credential, body consent.SubmissionBody) (JoinTicket, error) {
	var ticket JoinTicket
	u := c.roomPath(roomID) + "/meeting/" + string(action)
	err := c.do(ctx, "admission submit", http.MethodPost, u, cred, &body, &ticket)
	return ticket, err
}

func (c *Client) roomPath(roomID string) string {
	return c.base + "/api/v1/rooms/" + url.PathEscape(roomID)
}

func (c *Client) do(ctx context.Context, op, method, u string, cred Credential, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &APIError{Operation: op, Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
		}
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return &APIError{Operation: op, Err: err}
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return &APIError{Operation: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	applyCredential(req, cred)
	if c.session != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: c.session})
	}

	res, err := c.http.Do(req)
	if err != nil {
		return &APIError{Operation: op, Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &APIError{Operation: op, Raw: decodeFailure(res)}
	}

	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return &APIError{Operation: op, Err: fmt.Errorf("%w: decode: %v", ErrUnavailable, err)}
		}
	}
	return nil
}

func applyCredential(req *http.Request, cred Credential) {
	switch cred.kind {
	case CredentialAccessCode:
		req.Header.Set(HeaderAccessCode, cred.value)
	case CredentialPersonalToken:
		req.Header.Set(HeaderInviteToken, cred.value)
	}
}

// decodeFailure reads a non-2xx response into a RawFailure. Payloads that
// are not the service's JSON error envelope degrade to a status-only
// failure so classification still applies.
func decodeFailure(res *http.Response) *classify.RawFailure {
	raw := &classify.RawFailure{Status: res.StatusCode}
	payload, err := io.ReadAll(io.LimitReader(res.Body, 1<<16))
	if err != nil || len(payload) == 0 {
		return raw
	}
	var envelope struct {
		Message string              `json:"message"`
		Errors  map[string][]string `json:"errors"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return raw
	}
	raw.Message = envelope.Message
	raw.Errors = envelope.Errors
	return raw
}

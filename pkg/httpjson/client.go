// Package httpjson is the JSON-over-HTTP client shared by the outbound
// gateways. Every call gets a per-attempt timeout and is retried according
// to a retry.Policy.
package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/860844175/review-system/pkg/cerr"
	"github.com/860844175/review-system/pkg/retry"
)

var (
	// ErrTransport covers network errors, timeouts, non-2xx statuses and
	// undecodable bodies.
	ErrTransport = errors.New("transport failure")
	// ErrRemoteRejected means the remote answered but its body reported failure.
	ErrRemoteRejected = errors.New("remote rejected")
)

const maxErrorBody = 512

type Client struct {
	name    string
	baseURL string
	http    *http.Client
	header  http.Header
	timeout time.Duration
	policy  retry.Policy
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithHeader sets a header on every request. Empty values are ignored.
func WithHeader(key, value string) Option {
	return func(cl *Client) {
		if value != "" {
			cl.header.Set(key, value)
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.timeout = d
	}
}

func WithRetry(p retry.Policy) Option {
	return func(cl *Client) {
		cl.policy = p
	}
}

// New returns a client for baseURL. name identifies the remote in logs and
// error messages.
func New(name, baseURL string, opts ...Option) *Client {
	c := &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		header:  http.Header{},
		timeout: 30 * time.Second,
		policy:  retry.Policy{MaxAttempts: 3, BaseDelay: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string {
	return c.name
}

// Call describes one logical operation.
type Call struct {
	Operation string
	Path      string
	Body      any
	// Out receives the decoded response body. It must be a pointer; it is
	// reset to its zero value before every attempt decodes into it.
	Out any
	// Accept, when set, inspects the decoded Out and returns a non-nil error
	// when the body reports failure.
	Accept func() error
	// Timeout overrides the client timeout for this call.
	Timeout time.Duration
}

// Post sends call.Body as JSON and decodes the reply into call.Out, retrying
// per the client policy. The returned error is a *cerr.Error wrapping
// ErrTransport (Unavailable) or ErrRemoteRejected (Aborted).
func (c *Client) Post(ctx context.Context, call Call) error {
	payload, err := json.Marshal(call.Body)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to encode %s %s request: %w", c.name, call.Operation, err))
	}
	timeout := call.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	err = retry.Do(ctx, c.policy, func(ctx context.Context, attempt int) error {
		err := c.attempt(ctx, call, payload, timeout)
		if err != nil {
			slog.WarnContext(ctx, "outbound call failed",
				"gateway", c.name,
				"operation", call.Operation,
				"attempt", attempt+1,
				"max_attempts", c.policy.MaxAttempts,
				"error", err,
			)
		}
		return err
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRemoteRejected) {
		return cerr.NewError(cerr.Aborted, fmt.Sprintf("%s rejected %s", c.name, call.Operation), err)
	}
	return cerr.NewError(cerr.Unavailable, fmt.Sprintf("%s unavailable for %s", c.name, call.Operation), err)
}

func (c *Client) attempt(ctx context.Context, call Call, payload []byte, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+call.Path, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(fmt.Errorf("%w: %w", ErrTransport, err))
	}
	req.Header = c.header.Clone()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read body: %w", ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d: %s", ErrTransport, resp.StatusCode, truncate(body))
	}
	if call.Out != nil {
		resetOut(call.Out)
		if err := json.Unmarshal(body, call.Out); err != nil {
			return fmt.Errorf("%w: failed to decode body: %w", ErrTransport, err)
		}
	}
	if call.Accept != nil {
		if err := call.Accept(); err != nil {
			return fmt.Errorf("%w: %w", ErrRemoteRejected, err)
		}
	}
	return nil
}

// resetOut clears what an earlier attempt decoded so fields the current
// body omits do not carry over.
func resetOut(out any) {
	v := reflect.ValueOf(out)
	if v.Kind() == reflect.Pointer && !v.IsNil() {
		v.Elem().SetZero()
	}
}

// truncate cuts b to maxErrorBody bytes on a rune boundary.
func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= maxErrorBody {
		return s
	}
	cut := maxErrorBody
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

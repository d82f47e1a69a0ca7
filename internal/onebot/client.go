package onebot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultHTTPTimeout sets the maximum duration of a single action call.
const DefaultHTTPTimeout = 15 * time.Second

// Caller is the remote call bridge contract: invoke a named OneBot action
// with JSON-encodable params and get back the raw "data" payload.
type Caller interface {
	Call(ctx context.Context, action string, params any) (json.RawMessage, error)
}

// Client is a thin wrapper over the OneBot v11 HTTP API.
// It handles: auth header, base URL, rate limiting and envelope decoding.
// No retries here; callers decide whether a failure is fatal for them.
// Safe for concurrent use; calls queue on the limiter.
//
// Example:
//
//	cli := onebot.New(
//	    onebot.WithBaseURL("http://127.0.0.1:3000"),
//	    onebot.WithRateLimit(5, 5),
//	    onebot.WithLogger(log),
//	)
//	raw, err := cli.Call(ctx, "get_login_info", nil)
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	token      string
	limiter    *rate.Limiter
	log        *zap.SugaredLogger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a OneBot HTTP server. Unparsable or
// empty values keep the default.
func WithBaseURL(raw string) Option {
	return func(c *Client) {
		if raw == "" {
			return
		}
		u, err := url.Parse(raw)
		if err == nil {
			c.baseURL = u
		}
	}
}

// WithAccessToken sets the OneBot access token.
func WithAccessToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithRateLimit caps outgoing actions at rps per second with the given
// burst. rps <= 0 leaves calls unlimited.
func WithRateLimit(rps, burst int) Option {
	return func(c *Client) {
		if rps > 0 {
			if burst <= 0 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger; nil keeps the no-op default.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New constructs a Client pointed at a local OneBot implementation unless
// overridden by options.
func New(opts ...Option) *Client {
	base, _ := url.Parse("http://127.0.0.1:3000")
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		baseURL:    base,
		limiter:    rate.NewLimiter(rate.Inf, 0),
		log:        zap.NewNop().Sugar(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Call posts params to /{action} and unwraps the response envelope.
// A nil params value is sent as an empty JSON object.
//
// Errors: *HTTPError for transport status >= 400, *ActionError for a failed
// envelope, ErrNoData when the action succeeded but carried no data.
func (c *Client) Call(ctx context.Context, action string, params any) (json.RawMessage, error) {
	if params == nil {
		params = struct{}{}
	}
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(params); err != nil {
		return nil, fmt.Errorf("encode %s params: %w", action, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(action), buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	var env envelope
	if err := c.do(req, &env); err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	c.log.Debugw("onebot action", "action", action, "status", env.Status, "retcode", env.Retcode)

	if env.Status != "ok" || env.Retcode != 0 {
		return nil, &ActionError{Action: action, Status: env.Status, Retcode: env.Retcode, Message: env.message()}
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return nil, fmt.Errorf("%s: %w", action, ErrNoData)
	}
	return env.Data, nil
}

// --- internal helpers ---

func (c *Client) do(req *http.Request, out any) error {
	if err := c.wait(req.Context()); err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) resolve(p string) string {
	u := *c.baseURL // copy
	u.Path = path.Join(u.Path, p)
	return u.String()
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil || c.limiter.Limit() == rate.Inf {
		return nil
	}
	return c.limiter.Wait(ctx)
}

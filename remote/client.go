// Package remote talks to the companion WordPress plugin's management REST
// API. A Client is scoped to one website's URL and API key. Every call walks
// an ordered list of namespace strategies, normalizes the payload, and maps
// every failure onto a Kind before returning.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"

	"wp-fleet-manager/metrics"
	"wp-fleet-manager/utils"
)

// Strategy is one namespace and credential header pair the remote plugin
// may expose. Plugin builds do not always pair them the same way, so every
// attempt carries the key under the header names of all strategies.
type Strategy struct {
	Name      string
	Namespace string
	KeyHeader string
}

// DefaultStrategies lists the secure namespace first, then the legacy one.
var DefaultStrategies = []Strategy{
	{Name: "secure", Namespace: "wrms/v1", KeyHeader: "X-WRMS-API-Key"},
	{Name: "legacy", Namespace: "wrm/v1", KeyHeader: "X-WRM-API-Key"},
}

const (
	defaultTimeout       = 15 * time.Second
	defaultUpdateTimeout = 120 * time.Second
	defaultMaxBodyBytes  = 4 << 20
	defaultUserAgent     = "wp-fleet-manager/1.0"
)

// Options tunes a Client. Zero values fall back to defaults.
type Options struct {
	HTTPClient    *http.Client
	Timeout       time.Duration
	UpdateTimeout time.Duration
	MaxBodyBytes  int64
	UserAgent     string
	Strategies    []Strategy
	Logger        *zap.SugaredLogger
}

type Client struct {
	baseURL       *url.URL
	apiKey        string
	http          *http.Client
	timeout       time.Duration
	updateTimeout time.Duration
	maxBody       int64
	userAgent     string
	strategies    []Strategy
	keyHeaders    []string
	log           *zap.SugaredLogger
}

// NewClient validates the stored credential and returns a client for one
// website. A malformed URL or key is reported as KindInvalidCredential.
func NewClient(siteURL, apiKey string, opts Options) (*Client, error) {
	u, err := ParseSiteURL(siteURL)
	if err != nil {
		return nil, NewError(KindInvalidCredential, "", err.Error(), nil)
	}
	if err := validateKey(apiKey); err != nil {
		return nil, NewError(KindInvalidCredential, "", err.Error(), nil)
	}

	c := &Client{
		baseURL:       u,
		apiKey:        apiKey,
		http:          opts.HTTPClient,
		timeout:       opts.Timeout,
		updateTimeout: opts.UpdateTimeout,
		maxBody:       opts.MaxBodyBytes,
		userAgent:     opts.UserAgent,
		strategies:    opts.Strategies,
		log:           opts.Logger,
	}
	if c.http == nil {
		c.http = cleanhttp.DefaultPooledClient()
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.updateTimeout <= 0 {
		c.updateTimeout = defaultUpdateTimeout
	}
	if c.maxBody <= 0 {
		c.maxBody = defaultMaxBodyBytes
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	if len(c.strategies) == 0 {
		c.strategies = DefaultStrategies
	}
	c.keyHeaders = keyHeaders(c.strategies)
	if c.log == nil {
		c.log = utils.Named("remote")
	}
	c.log = c.log.With("site", u.Host)
	return c, nil
}

// keyHeaders lists the distinct credential header names, in strategy order.
func keyHeaders(strategies []Strategy) []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range strategies {
		canonical := http.CanonicalHeaderKey(s.KeyHeader)
		if s.KeyHeader == "" || seen[canonical] {
			continue
		}
		seen[canonical] = true
		out = append(out, s.KeyHeader)
	}
	return out
}

// ParseSiteURL checks that a website URL is absolute http(s) and strips any
// trailing slash so REST paths can be appended.
func ParseSiteURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("site URL is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("site URL is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("site URL must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("site URL has no host")
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func validateKey(key string) error {
	if key == "" {
		return errors.New("API key is empty")
	}
	for _, r := range key {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return errors.New("API key contains whitespace or control characters")
		}
	}
	return nil
}

// BaseURL returns the normalized site URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

//
// Attempt classification
//

type outcome int

const (
	outcomeOK outcome = iota
	outcomeNotFound
	outcomeAuth
	outcomeMalformed
	outcomeRemoteError
	outcomeNetwork
)

func (o outcome) String() string {
	switch o {
	case outcomeOK:
		return "ok"
	case outcomeNotFound:
		return "not_found"
	case outcomeAuth:
		return "auth"
	case outcomeMalformed:
		return "malformed"
	case outcomeRemoteError:
		return "remote_error"
	default:
		return "network"
	}
}

// attempt is the result of trying one strategy.
type attempt struct {
	strategy Strategy
	outcome  outcome
	status   int
	payload  any
	message  string
	err      error
}

type request struct {
	method   string
	endpoint string
	body     any
	mutating bool
	timeout  time.Duration
}

func (r request) op() string {
	return r.method + " " + r.endpoint
}

// response is a successful call: the decoded payload and the strategy that
// served it.
type response struct {
	payload  any
	strategy Strategy
}

// call runs the strategy state machine: trying(i) until one attempt
// succeeds, or every strategy is exhausted and the attempts are classified.
// Network failures stop the machine at once since every strategy targets
// the same host.
func (c *Client) call(ctx context.Context, req request) (*response, error) {
	attempts := make([]attempt, 0, len(c.strategies))
	for i, s := range c.strategies {
		a := c.try(ctx, s, req)
		attempts = append(attempts, a)
		c.log.Debugw("remote attempt", "op", req.op(), "strategy", s.Name, "step", i, "outcome", a.outcome.String(), "status", a.status)

		switch a.outcome {
		case outcomeOK:
			return &response{payload: a.payload, strategy: s}, nil
		case outcomeNetwork, outcomeRemoteError:
			return nil, c.classify(req, attempts)
		case outcomeMalformed:
			if req.mutating {
				// The mutation may already have run; never replay it.
				return nil, c.classify(req, attempts)
			}
		}
	}
	return nil, c.classify(req, attempts)
}

// classify maps exhausted attempts onto one error kind. Auth rejections win
// over malformed bodies, which win over JSON errors, and only an all-404 run
// means the plugin is missing.
func (c *Client) classify(req request, attempts []attempt) error {
	last := attempts[len(attempts)-1]
	if last.outcome == outcomeNetwork {
		if isTimeout(last.err) {
			return TimeoutError(req.op(), last.err)
		}
		return &Error{Kind: KindSiteUnreachable, Op: req.op(), Message: "connection failed", Err: last.err}
	}

	pick := func(o outcome) *attempt {
		for i := range attempts {
			if attempts[i].outcome == o {
				return &attempts[i]
			}
		}
		return nil
	}
	if a := pick(outcomeAuth); a != nil {
		return &Error{Kind: KindInvalidAPIKey, Op: req.op(), Message: a.message, StatusCode: a.status}
	}
	if a := pick(outcomeMalformed); a != nil {
		return &Error{Kind: KindUnexpectedResponseFormat, Op: req.op(), Message: a.message, StatusCode: a.status, Err: a.err}
	}
	if a := pick(outcomeRemoteError); a != nil {
		return &Error{Kind: KindRemoteError, Op: req.op(), Message: a.message, StatusCode: a.status}
	}
	return &Error{Kind: KindPluginNotInstalled, Op: req.op(), Message: "no companion plugin namespace answered", StatusCode: last.status}
}

// try performs one HTTP round trip against one strategy.
func (c *Client) try(ctx context.Context, s Strategy, req request) (a attempt) {
	a.strategy = s
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.RemoteRequestDuration, req.endpoint)
		metrics.RemoteRequestsTotal.WithLabelValues(req.endpoint, s.Name, a.outcome.String()).Inc()
	}()

	timeout := req.timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		if err != nil {
			a.outcome = outcomeRemoteError
			a.message = fmt.Sprintf("encode request: %v", err)
			return a
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.endpointURL(s, req.endpoint), body)
	if err != nil {
		a.outcome = outcomeNetwork
		a.err = err
		return a
	}
	for _, h := range c.keyHeaders {
		httpReq.Header.Set(h, c.apiKey)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		a.outcome = outcomeNetwork
		a.err = err
		return a
	}
	defer resp.Body.Close()
	a.status = resp.StatusCode

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		a.outcome = outcomeNetwork
		a.err = err
		return a
	}
	if int64(len(raw)) > c.maxBody {
		a.outcome = outcomeMalformed
		a.message = fmt.Sprintf("response exceeds %d bytes", c.maxBody)
		return a
	}
	return classifyResponse(a, resp.Header.Get("Content-Type"), raw)
}

// classifyResponse sorts one HTTP answer into an outcome.
func classifyResponse(a attempt, contentType string, raw []byte) attempt {
	trimmed := bytes.TrimSpace(raw)
	var payload any
	var decodeErr error
	if len(trimmed) > 0 {
		payload, decodeErr = decodeJSON(trimmed)
	}
	isJSON := len(trimmed) > 0 && decodeErr == nil

	switch {
	case a.status == http.StatusNotFound:
		// WordPress answers unknown routes with rest_no_route. Any other
		// JSON 404 comes from the plugin itself and is a real error.
		if m, ok := payload.(map[string]any); ok {
			if code := str(m, "code"); code != "" && code != "rest_no_route" {
				a.outcome = outcomeRemoteError
				a.message = remoteMessage(m, code)
				return a
			}
		}
		a.outcome = outcomeNotFound
		a.message = "route not found"
	case a.status == http.StatusUnauthorized || a.status == http.StatusForbidden:
		a.outcome = outcomeAuth
		a.message = "API key rejected"
		if m, ok := payload.(map[string]any); ok {
			a.message = remoteMessage(m, a.message)
		}
	case len(trimmed) > 0 && !isJSON:
		a.outcome = outcomeMalformed
		a.err = decodeErr
		a.message = describeBody(contentType, trimmed)
	case a.status < 200 || a.status > 299:
		a.outcome = outcomeRemoteError
		a.message = fmt.Sprintf("HTTP %d", a.status)
		if m, ok := payload.(map[string]any); ok {
			a.message = remoteMessage(m, a.message)
		}
	default:
		a.outcome = outcomeOK
		a.payload = payload
		if m, ok := payload.(map[string]any); ok {
			if ok, found := boolean(m, "success"); found && !ok {
				a.outcome = outcomeRemoteError
				a.message = remoteMessage(m, "remote reported failure")
			}
		}
	}
	return a
}

func remoteMessage(m map[string]any, fallback string) string {
	if msg := str(m, "message", "error", "msg"); msg != "" {
		return msg
	}
	return fallback
}

func describeBody(contentType string, body []byte) string {
	if strings.Contains(contentType, "text/html") || bytes.HasPrefix(body, []byte("<")) {
		return "received an HTML page instead of JSON"
	}
	return "response body is not valid JSON"
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *Client) endpointURL(s Strategy, endpoint string) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/wp-json/" + s.Namespace + endpoint
	return u.String()
}

// get is the common read path.
func (c *Client) get(ctx context.Context, endpoint string) (*response, error) {
	return c.call(ctx, request{method: http.MethodGet, endpoint: endpoint})
}

// post is the common mutation path; mutations use the longer update timeout.
func (c *Client) post(ctx context.Context, endpoint string, body any) (*response, error) {
	return c.call(ctx, request{method: http.MethodPost, endpoint: endpoint, body: body, mutating: true, timeout: c.updateTimeout})
}

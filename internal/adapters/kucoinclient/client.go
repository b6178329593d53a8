// Package kucoinclient implements the ports.ExchangeClient interface against
// the KuCoin futures REST API using signed HTTP requests.
package kucoinclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"signalArmyBot/internal/domain"
	"signalArmyBot/internal/ports"
)

const (
	baseURLProduction = "https://api-futures.kucoin.com"
	baseURLSandbox    = "https://api-sandbox-futures.kucoin.com"

	defaultHTTPTimeout = 10 * time.Second
)

// Declared endpoints. Path segments in {braces} are filled from request
// params; remaining params become the query string (GET/DELETE) or the JSON
// body (POST).
type endpoint struct {
	method string
	path   string
}

var endpoints = map[string]endpoint{
	"get_account_overview":            {http.MethodGet, "/api/v1/account-overview"},
	"place_order":                     {http.MethodPost, "/api/v1/orders"},
	"cancel_order":                    {http.MethodDelete, "/api/v1/orders/{order_id}"},
	"get_order_list":                  {http.MethodGet, "/api/v1/orders"},
	"limit_order_mass_cancellation":   {http.MethodDelete, "/api/v1/orders"},
	"stop_order_mass_cancellation":    {http.MethodDelete, "/api/v1/stopOrders"},
	"get_open_contract_list":          {http.MethodGet, "/api/v1/contracts/active"},
	"get_contract_info":               {http.MethodGet, "/api/v1/contracts/{symbol}"},
	"get_position_list":               {http.MethodGet, "/api/v1/positions"},
	"get_untriggered_stop_order_list": {http.MethodGet, "/api/v1/stopOrders"},
}

var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

// Client is a signed KuCoin futures REST client bound to one credential.
// Request signing is serialized per instance: the exchange ties signatures to
// a millisecond timestamp, so overlapping in-flight requests from one client
// risk clock-skew rejections. Use one instance per credential.
type Client struct {
	cred    domain.Credential
	baseURL string
	logger  ports.Logger
	limiter *rate.Limiter
	now     func() time.Time

	mu         sync.Mutex // in-flight guard: held from signing until the response is read
	httpClient *http.Client
}

// Config holds configuration for the KuCoin client adapter.
type Config struct {
	Credential  domain.Credential
	UseSandbox  bool
	Logger      ports.Logger
	HTTPTimeout time.Duration
	BaseURL     string           // overrides the production/sandbox URL, used in tests
	Now         func() time.Time // injectable clock for deterministic signing in tests
}

// New creates a new KuCoin client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for KuCoin client", ports.ErrConfiguration)
	}
	if cfg.Credential.APIKey == "" || cfg.Credential.APISecret == "" || cfg.Credential.APIPassphrase == "" {
		return nil, fmt.Errorf("%w: incomplete KuCoin credential", ports.ErrConfiguration)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		if cfg.UseSandbox {
			baseURL = baseURLSandbox
		} else {
			baseURL = baseURLProduction
		}
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	clock := cfg.Now
	if clock == nil {
		clock = time.Now
	}

	return &Client{
		cred:    cfg.Credential,
		baseURL: baseURL,
		logger:  cfg.Logger,
		// The exchange caps trade endpoints at 30 requests per 3 seconds.
		limiter:    rate.NewLimiter(rate.Every(100*time.Millisecond), 30),
		now:        clock,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// RefreshSession discards the underlying connection pool and starts a fresh
// one. It is a no-op while a request is in flight.
func (c *Client) RefreshSession() {
	if !c.mu.TryLock() {
		return
	}
	defer c.mu.Unlock()
	timeout := c.httpClient.Timeout
	c.httpClient.CloseIdleConnections()
	c.httpClient = &http.Client{Timeout: timeout}
}

// sign produces base64(HMAC-SHA256(secret, payload)).
func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// signature signs one request: the payload is the millisecond timestamp, the
// upper-cased method, the endpoint including any query string, and the body if
// present. Timestamps are generated fresh per request; signed requests are not
// reusable.
func (c *Client) signature(method, endpointPath, body string) (string, int64) {
	ts := c.now().UnixMilli()
	payload := strconv.FormatInt(ts, 10) + strings.ToUpper(method) + endpointPath + body
	return sign(c.cred.APISecret, payload), ts
}

// headers assembles the authentication headers. The passphrase itself is
// signed with the API secret (credential version 2). A JSON content type is
// set only when a body accompanies the request.
func (c *Client) headers(signatureB64 string, ts int64, hasBody bool) http.Header {
	h := http.Header{}
	h.Set("KC-API-SIGN", signatureB64)
	h.Set("KC-API-TIMESTAMP", strconv.FormatInt(ts, 10))
	h.Set("KC-API-KEY", c.cred.APIKey)
	h.Set("KC-API-PASSPHRASE", sign(c.cred.APISecret, c.cred.APIPassphrase))
	h.Set("KC-API-KEY-VERSION", "2")
	if hasBody {
		h.Set("Content-Type", "application/json")
	}
	return h
}

// fillPath substitutes {placeholder} segments from params and returns the
// resolved path plus the params that were not consumed.
func fillPath(path string, params map[string]interface{}) (string, map[string]interface{}, error) {
	rest := make(map[string]interface{}, len(params))
	for k, v := range params {
		rest[k] = v
	}
	var missing string
	resolved := placeholderPattern.ReplaceAllStringFunc(path, func(match string) string {
		key := match[1 : len(match)-1]
		v, ok := rest[key]
		if !ok {
			missing = key
			return match
		}
		delete(rest, key)
		return fmt.Sprintf("%v", v)
	})
	if missing != "" {
		return "", nil, fmt.Errorf("%w: endpoint %s missing path param %q", ports.ErrInvalidInput, path, missing)
	}
	return resolved, rest, nil
}

func encodeQuery(params map[string]interface{}) string {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, fmt.Sprintf("%v", v))
	}
	return values.Encode()
}

// Response is the raw outcome of one exchange call. A non-2xx status is data,
// not an error: callers must inspect StatusCode explicitly.
type Response struct {
	StatusCode int
	Body       json.RawMessage
}

// envelope is KuCoin's standard response wrapper.
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Request resolves a declared endpoint, signs and executes it. Network-level
// faults are returned as *ports.TransportError; exchange rejections come back
// as a Response carrying the non-2xx status.
func (c *Client) Request(ctx context.Context, point string, params map[string]interface{}) (*Response, error) {
	ep, ok := endpoints[point]
	if !ok {
		return nil, fmt.Errorf("%w: unknown endpoint %q", ports.ErrConfiguration, point)
	}

	path, rest, err := fillPath(ep.path, params)
	if err != nil {
		return nil, err
	}

	var body []byte
	if ep.method == http.MethodPost {
		if len(rest) > 0 {
			body, err = json.Marshal(rest)
			if err != nil {
				return nil, fmt.Errorf("marshal request body for %s: %w", point, err)
			}
		}
	} else if len(rest) > 0 {
		path += "?" + encodeQuery(rest)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &ports.TransportError{Op: point, Err: err}
	}

	// Hold the in-flight guard from signature generation until the response
	// is read: the timestamp inside the signature must not race a second
	// request on the same instance.
	c.mu.Lock()
	defer c.mu.Unlock()

	signatureB64, ts := c.signature(ep.method, path, string(body))

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, ep.method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", point, err)
	}
	req.Header = c.headers(signatureB64, ts, len(body) > 0)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ports.TransportError{Op: point, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ports.TransportError{Op: point, Err: err}
	}

	c.logger.Debug(ctx, "exchange request completed", map[string]interface{}{
		"point":  point,
		"method": ep.method,
		"path":   path,
		"status": resp.StatusCode,
	})
	return &Response{StatusCode: resp.StatusCode, Body: raw}, nil
}

// call executes a declared endpoint and unwraps the response envelope,
// translating non-2xx statuses into *ports.ExchangeError.
func (c *Client) call(ctx context.Context, point string, params map[string]interface{}) (json.RawMessage, error) {
	resp, err := c.Request(ctx, point, params)
	if err != nil {
		return nil, err
	}

	var env envelope
	_ = json.Unmarshal(resp.Body, &env) // tolerate non-JSON error bodies

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Msg
		if msg == "" {
			msg = strings.TrimSpace(string(resp.Body))
		}
		return nil, &ports.ExchangeError{HTTPStatus: resp.StatusCode, Code: env.Code, Message: msg}
	}
	return env.Data, nil
}

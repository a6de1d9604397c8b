package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const defaultTimeout = 15 * time.Second

// ErrUnexpectedStatus wraps non-2xx responses.
var ErrUnexpectedStatus = errors.New("directory: unexpected status")

// Client talks to the clinic directory over HTTP. It implements
// PractitionerSource, ServiceCatalog, SlotSource and AccountLookup.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *zap.Logger
	validate   *validator.Validate
	headers    http.Header
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHeader adds a header sent on every request, e.g. an API key.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Set(key, value)
	}
}

// NewClient builds a Client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("directory: parse base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("directory: base url %q must be absolute", baseURL)
	}
	c := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zap.NewNop(),
		validate:   validator.New(),
		headers:    http.Header{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Practitioners lists every practitioner of the clinic.
func (c *Client) Practitioners(ctx context.Context) ([]Practitioner, error) {
	var out []Practitioner
	if err := c.getList(ctx, "/practitioners", nil, &out); err != nil {
		return nil, err
	}
	for i := range out {
		if err := c.validate.Struct(out[i]); err != nil {
			return nil, fmt.Errorf("directory: practitioner %d: %w", i, err)
		}
	}
	return out, nil
}

// Services lists services, filtered to one practitioner when practitionerID
// is set.
func (c *Client) Services(ctx context.Context, practitionerID string) ([]Service, error) {
	params := url.Values{}
	if practitionerID != "" {
		params.Set("practitionerId", practitionerID)
	}
	var out []Service
	if err := c.getList(ctx, "/services", params, &out); err != nil {
		return nil, err
	}
	for i := range out {
		if err := c.validate.Struct(out[i]); err != nil {
			return nil, fmt.Errorf("directory: service %d: %w", i, err)
		}
	}
	return out, nil
}

// AvailableSlots queries availability for one practitioner and date.
func (c *Client) AvailableSlots(ctx context.Context, q SlotQuery) (SlotResult, error) {
	if q.PractitionerID == "" || q.Date == "" {
		return SlotResult{}, errors.New("directory: slot query needs practitioner and date")
	}
	params := url.Values{}
	params.Set("practitionerId", q.PractitionerID)
	params.Set("date", q.Date)
	if q.ConsultationType != ConsultationAny {
		params.Set("type", string(q.ConsultationType))
	}
	if q.TimeZone != "" {
		params.Set("timeZone", q.TimeZone)
	}

	var out SlotResult
	if err := c.get(ctx, "/slots", params, &out); err != nil {
		return SlotResult{}, err
	}
	if err := c.validate.Struct(out); err != nil {
		return SlotResult{}, fmt.Errorf("directory: slots: %w", err)
	}
	return out, nil
}

// LookupEmail checks whether an account exists for email.
func (c *Client) LookupEmail(ctx context.Context, email, clinicID string) (LookupResult, error) {
	params := url.Values{}
	params.Set("email", email)
	if clinicID != "" {
		params.Set("clinicId", clinicID)
	}
	var out LookupResult
	if err := c.get(ctx, "/accounts/lookup", params, &out); err != nil {
		return LookupResult{}, err
	}
	return out, nil
}

func (c *Client) getList(ctx context.Context, path string, params url.Values, dst any) error {
	var raw json.RawMessage
	if err := c.get(ctx, path, params, &raw); err != nil {
		return err
	}
	return decodeList(raw, dst)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, dst any) error {
	reqURL := *c.baseURL
	reqURL.Path = reqURL.Path + path
	reqURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return fmt.Errorf("directory: request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, values := range c.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("directory: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("directory request",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w %d from %s: %s", ErrUnexpectedStatus, resp.StatusCode, path, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("directory: decode %s: %w", path, err)
	}
	return nil
}

// decodeList accepts a bare JSON array or an envelope carrying the array
// under "data" or "results".
func decodeList(raw json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '[' {
		return json.Unmarshal(trimmed, dst)
	}
	var envelope struct {
		Data    json.RawMessage `json:"data"`
		Results json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return fmt.Errorf("directory: decode list: %w", err)
	}
	switch {
	case len(envelope.Data) > 0:
		return json.Unmarshal(envelope.Data, dst)
	case len(envelope.Results) > 0:
		return json.Unmarshal(envelope.Results, dst)
	}
	return nil
}

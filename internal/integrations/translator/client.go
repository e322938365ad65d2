package translator

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
	"sync"
	"time"
)

const apiVersion = "3.0"

// translateRequest is the request shape for the translate endpoint, which
// accepts a batch; this client always sends a batch of one.
type translateRequest struct {
	Text string `json:"Text"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("translator: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a stateless proxy to one remote text-translation service. It
// returns response bodies verbatim; interpreting the payload shape is the
// caller's job, so a remote schema change touches a single parsing point
// upstream.
type Client struct {
	baseURL     string
	region      string
	httpClient  *http.Client
	getter      Getter
	paramPrefix string

	keyOnce sync.Once
	apiKey  string
	keyErr  error
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client for the translation API at baseURL. The
// subscription key is fetched from Parameter Store on the first call and
// reused for the lifetime of the process; region is sent alongside it on
// every request.
func NewClient(ps Getter, paramPrefix, baseURL, region string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("translator: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("translator: parameter prefix must not be empty")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("translator: base URL must not be empty")
	}
	c := &Client{
		baseURL:     baseURL,
		region:      strings.TrimSpace(region),
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolveAPIKey fetches the subscription key from Parameter Store on the
// first call and returns the cached result on every subsequent call.
func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyOnce.Do(func() {
		c.apiKey, c.keyErr = fetchKeyFromParamStore(ctx, c.getter, c.keyParameterName())
	})
	return c.apiKey, c.keyErr
}

func (c *Client) keyParameterName() string {
	return c.paramPrefix + "/translator-subscription-key"
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// Languages returns the remote service's raw language-catalog payload.
func (c *Client) Languages(ctx context.Context) ([]byte, error) {
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return nil, err
	}

	reqURL := c.baseURL + "/languages?api-version=" + apiVersion

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if reqErr != nil {
		return nil, fmt.Errorf("translator: create languages request: %w", reqErr)
	}
	c.setAuthHeaders(req, apiKey)

	raw, err := c.doJSONRequest(req, reqURL)
	if err != nil {
		return nil, fmt.Errorf("translator: languages request failed: %w", err)
	}
	return raw, nil
}

// Translate sends exactly one request translating text from one language
// tag to another and returns the response body verbatim. All three
// arguments are checked before any network round-trip.
func (c *Client) Translate(ctx context.Context, text, from, to string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("translator: text must not be empty")
	}
	if strings.TrimSpace(from) == "" {
		return nil, errors.New("translator: source language must not be empty")
	}
	if strings.TrimSpace(to) == "" {
		return nil, errors.New("translator: target language must not be empty")
	}

	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal([]translateRequest{{Text: text}})
	if err != nil {
		return nil, fmt.Errorf("translator: marshal request: %w", err)
	}

	query := url.Values{}
	query.Set("api-version", apiVersion)
	query.Set("from", from)
	query.Set("to", to)
	reqURL := c.baseURL + "/translate?" + query.Encode()

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if reqErr != nil {
		return nil, fmt.Errorf("translator: create translate request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuthHeaders(req, apiKey)

	raw, err := c.doJSONRequest(req, reqURL)
	if err != nil {
		return nil, fmt.Errorf("translator: translate request failed: %w", err)
	}
	return raw, nil
}

func (c *Client) setAuthHeaders(req *http.Request, apiKey string) {
	req.Header.Set("Ocp-Apim-Subscription-Key", apiKey)
	if c.region != "" {
		req.Header.Set("Ocp-Apim-Subscription-Region", c.region)
	}
}

func (c *Client) doJSONRequest(req *http.Request, reqURL string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        reqURL,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

func fetchKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("translator: paramstore getter is nil")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("translator: fetch subscription key from paramstore: %w", err)
	}
	key := strings.TrimSpace(raw)
	if key == "" {
		return "", errors.New("translator: subscription key is empty")
	}
	return key, nil
}

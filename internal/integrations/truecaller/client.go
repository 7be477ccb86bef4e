package truecaller

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

	"caller-lookup-bot/internal/domain"
)

// loginRequest is the request shape for the onboarding-OTP endpoint.
type loginRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

// loginChallenge is the subset of the login response the client itself needs
// to complete OTP verification. The full raw body is what callers store and
// round-trip; this struct is only used to pull verification inputs back out.
type loginChallenge struct {
	RequestID         string `json:"requestId"`
	ParsedCountryCode string `json:"parsedCountryCode"`
}

// verifyRequest is the request shape for the verify-OTP endpoint.
type verifyRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	RequestID   string `json:"requestId"`
	Token       string `json:"token"`
}

// verifyResponse is the minimal response shape for the verify-OTP endpoint.
// InstallationID is empty when the provider rejects the code.
type verifyResponse struct {
	Status         int    `json:"status"`
	Message        string `json:"message"`
	InstallationID string `json:"installationId"`
}

// searchResponse is the minimal response shape for the search endpoint.
type searchResponse struct {
	Data []struct {
		Name string `json:"name"`
	} `json:"data"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("truecaller: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client talks to the caller-ID provider. The account base serves login
// initiation and OTP verification; the search base serves lookups.
type Client struct {
	accountBaseURL string
	searchBaseURL  string
	httpClient     *http.Client
}

type Option func(*Client)

func WithAccountBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.accountBaseURL = strings.TrimSpace(baseURL)
	}
}

func WithSearchBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.searchBaseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a provider client with default endpoints.
func NewClient(opts ...Option) *Client {
	c := &Client{
		accountBaseURL: "https://account.asia.truecaller.com/v1",
		searchBaseURL:  "https://search5-noneu.truecaller.com/v2",
		httpClient:     &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// resolvedHTTPClient returns the configured HTTP client, or a default with a
// 10s timeout if none was set (e.g. in tests that nil out the field).
func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// InitiateLogin asks the provider to send an OTP to phoneNumber and returns
// the raw response body as the opaque login challenge. Callers must pass the
// challenge back to VerifyOtp unmodified.
func (c *Client) InitiateLogin(ctx context.Context, phoneNumber string) (string, error) {
	if strings.TrimSpace(phoneNumber) == "" {
		return "", errors.New("truecaller: phone number must not be empty")
	}

	body, err := json.Marshal(loginRequest{PhoneNumber: phoneNumber})
	if err != nil {
		return "", fmt.Errorf("truecaller: marshal login request: %w", err)
	}

	reqURL := joinURL(c.accountBaseURL, "/sendOnboardingOtp")
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if reqErr != nil {
		return "", fmt.Errorf("truecaller: create login request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.doJSONRequest(req, reqURL)
	if err != nil {
		return "", fmt.Errorf("truecaller: login request failed: %w", err)
	}

	// The challenge must carry a request id or verification can never
	// succeed; reject early so the user is not prompted for a dead OTP.
	var challenge loginChallenge
	if decErr := json.Unmarshal(raw, &challenge); decErr != nil {
		return "", fmt.Errorf("truecaller: decode login response: %w", decErr)
	}
	if challenge.RequestID == "" {
		return "", errors.New("truecaller: login response missing request id")
	}
	return string(raw), nil
}

// VerifyOtp completes the login started by InitiateLogin. The challenge is
// the exact string InitiateLogin returned; the client parses its own inputs
// back out of it. A successful response with an empty installation id is
// returned as-is — the caller decides what rejection means.
func (c *Client) VerifyOtp(ctx context.Context, phoneNumber, challenge, otpCode string) (domain.Credentials, error) {
	var parsed loginChallenge
	if err := json.Unmarshal([]byte(challenge), &parsed); err != nil {
		return domain.Credentials{}, fmt.Errorf("truecaller: decode login challenge: %w", err)
	}
	if parsed.RequestID == "" {
		return domain.Credentials{}, errors.New("truecaller: login challenge missing request id")
	}

	body, err := json.Marshal(verifyRequest{
		PhoneNumber: phoneNumber,
		RequestID:   parsed.RequestID,
		Token:       otpCode,
	})
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("truecaller: marshal verify request: %w", err)
	}

	reqURL := joinURL(c.accountBaseURL, "/verifyOnboardingOtp")
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if reqErr != nil {
		return domain.Credentials{}, fmt.Errorf("truecaller: create verify request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.doJSONRequest(req, reqURL)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("truecaller: verify request failed: %w", err)
	}

	var payload verifyResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return domain.Credentials{}, fmt.Errorf("truecaller: decode verify response: %w", decErr)
	}

	return domain.Credentials{
		InstallationID: payload.InstallationID,
		CountryCode:    parsed.ParsedCountryCode,
	}, nil
}

// Lookup searches the provider directory for query. NotFound is reported as
// found=false with a nil error; only transport and provider errors are errors.
func (c *Client) Lookup(ctx context.Context, query, installationID, countryCode string) (string, bool, error) {
	if strings.TrimSpace(installationID) == "" {
		return "", false, errors.New("truecaller: installation id must not be empty")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("countryCode", countryCode)
	params.Set("type", "4")
	reqURL := joinURL(c.searchBaseURL, "/search") + "?" + params.Encode()

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if reqErr != nil {
		return "", false, fmt.Errorf("truecaller: create search request: %w", reqErr)
	}
	req.Header.Set("Authorization", "Bearer "+installationID)

	raw, err := c.doJSONRequest(req, reqURL)
	if err != nil {
		return "", false, fmt.Errorf("truecaller: search request failed: %w", err)
	}

	var payload searchResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return "", false, fmt.Errorf("truecaller: decode search response: %w", decErr)
	}
	if len(payload.Data) == 0 || strings.TrimSpace(payload.Data[0].Name) == "" {
		return "", false, nil
	}
	return payload.Data[0].Name, true, nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

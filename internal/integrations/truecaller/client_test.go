package truecaller

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(
		WithAccountBaseURL(srv.URL),
		WithSearchBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
	)
}

// ---------------------------------------------------------------------------
// InitiateLogin
// ---------------------------------------------------------------------------

func TestInitiateLogin_HappyPath(t *testing.T) {
	var gotPath string
	var gotBody loginRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		_, _ = io.WriteString(w, `{"status":1,"requestId":"req-1","parsedPhoneNumber":919999999999,"parsedCountryCode":"IN"}`)
	})

	challenge, err := c.InitiateLogin(context.Background(), "+919999999999")
	require.NoError(t, err)
	require.Equal(t, "/sendOnboardingOtp", gotPath)
	require.Equal(t, "+919999999999", gotBody.PhoneNumber)
	// The challenge is the raw body, preserved byte for byte.
	require.JSONEq(t, `{"status":1,"requestId":"req-1","parsedPhoneNumber":919999999999,"parsedCountryCode":"IN"}`, challenge)
}

func TestInitiateLogin_EmptyPhone(t *testing.T) {
	c := NewClient()
	_, err := c.InitiateLogin(context.Background(), "  ")
	require.Error(t, err)
}

func TestInitiateLogin_MissingRequestID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status":6,"message":"limit exceeded"}`)
	})
	_, err := c.InitiateLogin(context.Background(), "+919999999999")
	require.Error(t, err)
	require.Contains(t, err.Error(), "request id")
}

func TestInitiateLogin_UpstreamStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := c.InitiateLogin(context.Background(), "+919999999999")
	require.Error(t, err)
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusTooManyRequests, statusErr.HTTPStatusCode())
}

// ---------------------------------------------------------------------------
// VerifyOtp
// ---------------------------------------------------------------------------

const testChallenge = `{"status":1,"requestId":"req-1","parsedCountryCode":"IN"}`

func TestVerifyOtp_HappyPath(t *testing.T) {
	var gotBody verifyRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/verifyOnboardingOtp", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		_, _ = io.WriteString(w, `{"status":2,"installationId":"inst-abc"}`)
	})

	creds, err := c.VerifyOtp(context.Background(), "+919999999999", testChallenge, "123456")
	require.NoError(t, err)
	require.Equal(t, "req-1", gotBody.RequestID)
	require.Equal(t, "123456", gotBody.Token)
	require.Equal(t, "inst-abc", creds.InstallationID)
	require.Equal(t, "IN", creds.CountryCode)
}

func TestVerifyOtp_EmptyInstallationID_NotAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status":11,"message":"invalid token"}`)
	})

	creds, err := c.VerifyOtp(context.Background(), "+919999999999", testChallenge, "000000")
	require.NoError(t, err)
	require.Empty(t, creds.InstallationID)
}

func TestVerifyOtp_MalformedChallenge(t *testing.T) {
	c := NewClient()
	_, err := c.VerifyOtp(context.Background(), "+919999999999", "not-json", "123456")
	require.Error(t, err)
	require.Contains(t, err.Error(), "challenge")
}

func TestVerifyOtp_ChallengeMissingRequestID(t *testing.T) {
	c := NewClient()
	_, err := c.VerifyOtp(context.Background(), "+919999999999", `{"status":1}`, "123456")
	require.Error(t, err)
	require.Contains(t, err.Error(), "request id")
}

func TestVerifyOtp_UpstreamStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := c.VerifyOtp(context.Background(), "+919999999999", testChallenge, "123456")
	require.Error(t, err)
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}

// ---------------------------------------------------------------------------
// Lookup
// ---------------------------------------------------------------------------

func TestLookup_HappyPath(t *testing.T) {
	var gotAuth, gotQuery, gotCountry string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("q")
		gotCountry = r.URL.Query().Get("countryCode")
		_, _ = io.WriteString(w, `{"data":[{"name":"Jane Doe"}]}`)
	})

	name, found, err := c.Lookup(context.Background(), "+911234512345", "inst-abc", "IN")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "Jane Doe", name)
	require.Equal(t, "Bearer inst-abc", gotAuth)
	require.Equal(t, "+911234512345", gotQuery)
	require.Equal(t, "IN", gotCountry)
}

func TestLookup_NotFound(t *testing.T) {
	cases := []string{
		`{"data":[]}`,
		`{}`,
		`{"data":[{"name":""}]}`,
	}
	for _, body := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, body)
		})
		name, found, err := c.Lookup(context.Background(), "+911234512345", "inst-abc", "IN")
		require.NoError(t, err, "body=%s", body)
		require.False(t, found, "body=%s", body)
		require.Empty(t, name)
	}
}

func TestLookup_MissingInstallationID(t *testing.T) {
	c := NewClient()
	_, _, err := c.Lookup(context.Background(), "+911234512345", " ", "IN")
	require.Error(t, err)
}

func TestLookup_UpstreamStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, _, err := c.Lookup(context.Background(), "+911234512345", "inst-abc", "IN")
	require.Error(t, err)
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}

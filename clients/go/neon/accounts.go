package neon

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Credential headers understood by the relay's account endpoints.
const (
	AliasHeader       = "X-Neon-Alias"
	RecoveryKeyHeader = "X-Neon-Recovery-Key"
)

// APIError is a non-2xx response from the relay's HTTP API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("neonchat error %d: %s", e.Status, e.Message)
}

// AccountClient talks to the relay's account and payment endpoints.
type AccountClient struct {
	BaseURL     string
	Alias       string
	RecoveryKey string
	HTTPClient  *http.Client
}

// NewAccountClient creates a client for baseURL, e.g. "http://localhost:8080".
func NewAccountClient(baseURL string) *AccountClient {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &AccountClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GenerateRecoveryKey returns 16 random bytes, hex-encoded.
func GenerateRecoveryKey() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// doRequest performs an HTTP request and decodes a JSON response into out.
func (c *AccountClient) doRequest(ctx context.Context, method, path string, body interface{}, signed bool, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if signed {
		req.Header.Set(AliasHeader, c.Alias)
		req.Header.Set(RecoveryKeyHeader, c.RecoveryKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &errResp)
		if errResp.Error == "" {
			errResp.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

type registerRequest struct {
	Alias       string `json:"alias"`
	RecoveryKey string `json:"recoveryKey"`
}

type registerResponse struct {
	Success bool   `json:"success"`
	Alias   string `json:"alias"`
	Error   string `json:"error"`
}

// Register claims alias with a freshly generated recovery key. On success the
// client keeps both for signed calls; the caller must store the key, it cannot
// be recovered from the relay.
func (c *AccountClient) Register(ctx context.Context, alias string) (string, error) {
	key, err := GenerateRecoveryKey()
	if err != nil {
		return "", err
	}

	var resp registerResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/users/register", registerRequest{Alias: alias, RecoveryKey: key}, false, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", &APIError{Status: http.StatusOK, Message: resp.Error}
	}

	c.Alias = resp.Alias
	c.RecoveryKey = key
	return key, nil
}

// CheckAlias reports whether alias is already registered.
func (c *AccountClient) CheckAlias(ctx context.Context, alias string) (bool, error) {
	var resp struct {
		Exists bool `json:"exists"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/api/users/check/"+url.PathEscape(alias), nil, false, &resp); err != nil {
		return false, err
	}
	return resp.Exists, nil
}

// Plan returns the subscription plan of alias ("free" or "pro").
func (c *AccountClient) Plan(ctx context.Context, alias string) (string, error) {
	var resp struct {
		Plan string `json:"plan"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/api/subscription/"+url.PathEscape(alias), nil, false, &resp); err != nil {
		return "", err
	}
	return resp.Plan, nil
}

// PaymentSession is a signed checkout form for the payment gateway.
type PaymentSession struct {
	PayUURL string            `json:"payuURL"`
	Params  map[string]string `json:"params"`
}

// CreatePaymentSession starts a Pro upgrade for the client's own alias.
func (c *AccountClient) CreatePaymentSession(ctx context.Context, amount, email string) (*PaymentSession, error) {
	body := map[string]string{"alias": c.Alias, "amount": amount, "email": email}

	var resp PaymentSession
	if err := c.doRequest(ctx, http.MethodPost, "/api/payments/session", body, true, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthResponse is the relay's health report.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Checks  map[string]struct {
		Status  string `json:"status"`
		Latency string `json:"latency,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"checks"`
	Timestamp string `json:"timestamp"`
}

// Health checks relay health. A degraded relay answers 503, which is
// returned as an *APIError.
func (c *AccountClient) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/health", nil, false, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

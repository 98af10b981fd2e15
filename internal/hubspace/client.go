package hubspace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	aferoAPI           = "https://api2.afero.net/v1"
	aferoHost          = "api2.afero.net"
	aferoSemanticsHost = "semantics2.afero.net"

	// The vendor gates its API on the mobile app's user agent.
	userAgent = "Dart/2.15 (dart:io)"
)

// TokenSource supplies a fresh bearer token for a vendor API call. It is
// consulted on every request; caching is the provider's business.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client talks to the Afero cloud API. All calls are synchronous and carry a
// bearer token from the TokenSource; a shared rate limiter caps the request
// rate across all devices polled through this client.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a vendor API client.
func NewClient(tokens TokenSource, timeout time.Duration, rps float64) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		baseURL: aferoAPI,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// SetBaseURL overrides the API endpoint. Used by tests.
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

// AccountID resolves the caller's account id via /users/me.
func (c *Client) AccountID(ctx context.Context) (string, error) {
	resp, err := c.request(ctx, http.MethodGet, "/users/me", aferoHost, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", responseError("resolve account", resp)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("decode account response: %w", err)
	}
	if len(info.AccountAccess) == 0 {
		return "", fmt.Errorf("account response carries no account access")
	}
	return info.AccountAccess[0].Account.AccountID, nil
}

// Metadevices fetches the account's device list with state expanded, the
// bootstrap call the adapters are built from.
func (c *Client) Metadevices(ctx context.Context, accountID string) ([]Metadevice, error) {
	path := fmt.Sprintf("/accounts/%s/metadevices?expansions=state", accountID)
	resp, err := c.request(ctx, http.MethodGet, path, aferoSemanticsHost, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError("list metadevices", resp)
	}

	var devices []Metadevice
	if err := json.NewDecoder(resp.Body).Decode(&devices); err != nil {
		return nil, fmt.Errorf("decode metadevice list: %w", err)
	}
	log.Debug().Int("devices", len(devices)).Msg("Fetched metadevice list")
	return devices, nil
}

// DeviceState fetches the current state of one metadevice.
func (c *Client) DeviceState(ctx context.Context, accountID, deviceID string) (*StatePayload, error) {
	path := fmt.Sprintf("/accounts/%s/metadevices/%s/state", accountID, deviceID)
	resp, err := c.request(ctx, http.MethodGet, path, aferoSemanticsHost, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError("get device state", resp)
	}

	var payload StatePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode device state: %w", err)
	}
	return &payload, nil
}

// SetDeviceState uploads a full replacement value list for one metadevice.
// The response echoes the accepted state in the same shape as DeviceState.
func (c *Client) SetDeviceState(ctx context.Context, accountID, deviceID string, payload *StatePayload) (*StatePayload, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode state payload: %w", err)
	}

	path := fmt.Sprintf("/accounts/%s/metadevices/%s/state", accountID, deviceID)
	resp, err := c.request(ctx, http.MethodPut, path, aferoSemanticsHost, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError("put device state", resp)
	}

	var accepted StatePayload
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		return nil, fmt.Errorf("decode accepted state: %w", err)
	}
	return &accepted, nil
}

// request performs one authenticated API call: waits for the rate limiter,
// fetches a fresh token and sets the headers the vendor expects.
func (c *Client) request(ctx context.Context, method, path, host string, body io.Reader) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtain auth token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Host = host
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	return c.httpClient.Do(req)
}

func responseError(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode, bytes.TrimSpace(data))
}

// Package auth implements the Hubspace credential provider: the OAuth2
// refresh-token grant used on every API call, and the one-time PKCE login
// flow that produces a refresh token from account credentials.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	authSessionURL = "https://accounts.hubspaceconnect.com/auth/realms/thd/protocol/openid-connect/auth"
	authURL        = "https://accounts.hubspaceconnect.com/auth/realms/thd/login-actions/authenticate"
	tokenURL       = "https://accounts.hubspaceconnect.com/auth/realms/thd/protocol/openid-connect/token"

	clientID    = "hubspace_android"
	redirectURI = "hubspace-app://loginredirect"
	userAgent   = "Dart/2.15 (dart:io)"

	// The login form is posted with a browser user agent, like the app does.
	loginUserAgent = "Mozilla/5.0 (Linux; Android 7.1.1; Android SDK built for x86_64 Build/NYC) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/69.0.3497.100 Safari/537.36"
)

var (
	sessionCodeRe = regexp.MustCompile(`session_code=(.+?)&`)
	executionRe   = regexp.MustCompile(`execution=(.+?)&`)
	tabIDRe       = regexp.MustCompile(`tab_id=(.+?)&`)
	authCodeRe    = regexp.MustCompile(`&code=(.+?)$`)
)

// TokenProvider exchanges a long-lived refresh token for a short-lived id
// token. It is stateless: every Token call hits the token endpoint, matching
// the sync protocol's fetch-per-operation contract.
type TokenProvider struct {
	tokenURL     string
	refreshToken string
	httpClient   *http.Client
}

// NewTokenProvider creates a provider around a stored refresh token.
func NewTokenProvider(refreshToken string, timeout time.Duration) *TokenProvider {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &TokenProvider{
		tokenURL:     tokenURL,
		refreshToken: refreshToken,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// SetTokenURL overrides the token endpoint. Used by tests.
func (p *TokenProvider) SetTokenURL(url string) {
	p.tokenURL = url
}

// Token performs the refresh-token grant and returns the id token used as
// the API bearer token. Failures propagate; there is no retry here.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {p.refreshToken},
		"scope":         {"openid email offline_access profile"},
		"client_id":     {clientID},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("token request: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var payload struct {
		IDToken string `json:"id_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if payload.IDToken == "" {
		return "", fmt.Errorf("token response carries no id_token")
	}
	return payload.IDToken, nil
}

// Login runs the PKCE authorization-code flow against the Hubspace Keycloak
// realm and returns the refresh token to persist. Endpoints can be overridden
// for tests via LoginEndpoints.
func Login(ctx context.Context, username, password string, timeout time.Duration) (string, error) {
	return LoginEndpoints{
		AuthSessionURL: authSessionURL,
		AuthURL:        authURL,
		TokenURL:       tokenURL,
	}.Login(ctx, username, password, timeout)
}

// LoginEndpoints carries the three Keycloak endpoints of the login flow.
type LoginEndpoints struct {
	AuthSessionURL string
	AuthURL        string
	TokenURL       string
}

// Login scrapes an authorization session, posts the credentials, captures the
// redirect code and exchanges it for a refresh token.
func (e LoginEndpoints) Login(ctx context.Context, username, password string, timeout time.Duration) (string, error) {
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return "", err
	}
	client := &http.Client{
		Timeout: timeout,
		Jar:     jar,
		// The authenticate response redirects to the app scheme; the code is
		// read off the Location header instead of following it.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	challenge, verifier, err := codeChallenge()
	if err != nil {
		return "", err
	}

	session, err := e.openAuthSession(ctx, client, challenge)
	if err != nil {
		return "", err
	}

	code, err := e.authenticate(ctx, client, session, username, password)
	if err != nil {
		return "", err
	}

	return e.exchangeCode(ctx, client, code, verifier)
}

// authSession holds the form parameters scraped from the login page.
type authSession struct {
	sessionCode string
	execution   string
	tabID       string
}

func (e LoginEndpoints) openAuthSession(ctx context.Context, client *http.Client, challenge string) (*authSession, error) {
	params := url.Values{
		"response_type":         {"code"},
		"client_id":             {clientID},
		"redirect_uri":          {redirectURI},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
		"scope":                 {"openid offline_access"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.AuthSessionURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open auth session: %w", err)
	}
	defer resp.Body.Close()

	page, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read auth session page: %w", err)
	}

	session := &authSession{}
	for _, f := range []struct {
		re   *regexp.Regexp
		dest *string
		name string
	}{
		{sessionCodeRe, &session.sessionCode, "session_code"},
		{executionRe, &session.execution, "execution"},
		{tabIDRe, &session.tabID, "tab_id"},
	} {
		m := f.re.FindSubmatch(page)
		if m == nil {
			return nil, fmt.Errorf("auth session page carries no %s", f.name)
		}
		*f.dest = string(m[1])
	}
	return session, nil
}

func (e LoginEndpoints) authenticate(ctx context.Context, client *http.Client, session *authSession, username, password string) (string, error) {
	target := fmt.Sprintf("%s?client_id=%s&session_code=%s&execution=%s&tab_id=%s",
		e.AuthURL, clientID, session.sessionCode, session.execution, session.tabID)

	form := url.Values{
		"username":     {username},
		"password":     {password},
		"credentialId": {""},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", loginUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}
	defer resp.Body.Close()

	location := resp.Header.Get("Location")
	m := authCodeRe.FindStringSubmatch(location)
	if m == nil {
		return "", fmt.Errorf("authenticate: no authorization code in redirect (bad credentials?)")
	}
	return m[1], nil
}

func (e LoginEndpoints) exchangeCode(ctx context.Context, client *http.Client, code, verifier string) (string, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"code_verifier": {verifier},
		"client_id":     {clientID},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("exchange code: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("exchange code: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode code exchange response: %w", err)
	}
	if payload.RefreshToken == "" {
		return "", fmt.Errorf("code exchange response carries no refresh_token")
	}

	log.Info().Msg("Obtained refresh token")
	return payload.RefreshToken, nil
}

// codeChallenge generates a PKCE verifier and its S256 challenge.
func codeChallenge() (challenge, verifier string, err error) {
	buf := make([]byte, 40)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate code verifier: %w", err)
	}
	verifier = base64.RawURLEncoding.EncodeToString(buf)
	verifier = strings.NewReplacer("-", "", "_", "").Replace(verifier)

	sum := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(sum[:])
	return challenge, verifier, nil
}

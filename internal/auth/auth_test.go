package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenProviderRefreshGrant(t *testing.T) {
	var gotGrant, gotToken, gotClient string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotGrant = r.PostFormValue("grant_type")
		gotToken = r.PostFormValue("refresh_token")
		gotClient = r.PostFormValue("client_id")
		json.NewEncoder(w).Encode(map[string]string{"id_token": "id-abc"})
	}))
	defer srv.Close()

	p := NewTokenProvider("refresh-xyz", 5*time.Second)
	p.SetTokenURL(srv.URL)

	token, err := p.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if token != "id-abc" {
		t.Fatalf("Token() = %q, want id-abc", token)
	}
	if gotGrant != "refresh_token" {
		t.Fatalf("grant_type = %q", gotGrant)
	}
	if gotToken != "refresh-xyz" {
		t.Fatalf("refresh_token = %q", gotToken)
	}
	if gotClient != "hubspace_android" {
		t.Fatalf("client_id = %q", gotClient)
	}
}

func TestTokenProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_grant", http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewTokenProvider("stale", 5*time.Second)
	p.SetTokenURL(srv.URL)

	if _, err := p.Token(context.Background()); err == nil {
		t.Fatal("expected error on 400")
	}
}

func TestTokenProviderMissingIDToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": "not-the-one"})
	}))
	defer srv.Close()

	p := NewTokenProvider("refresh", 5*time.Second)
	p.SetTokenURL(srv.URL)

	if _, err := p.Token(context.Background()); err == nil {
		t.Fatal("expected error for response without id_token")
	}
}

func TestLoginFlow(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var sessionChallenge string
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		sessionChallenge = r.URL.Query().Get("code_challenge")
		if r.URL.Query().Get("code_challenge_method") != "S256" {
			t.Errorf("code_challenge_method = %q", r.URL.Query().Get("code_challenge_method"))
		}
		// A login page whose form action carries the session parameters.
		fmt.Fprintf(w, `<form action="%s/auth?session_code=sess-1&execution=exec-1&tab_id=tab-1&foo=bar">`, srv.URL)
	})

	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.URL.Query().Get("session_code") != "sess-1" {
			t.Errorf("session_code = %q", r.URL.Query().Get("session_code"))
		}
		if r.PostFormValue("username") != "user@example.com" || r.PostFormValue("password") != "hunter2" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Location", "hubspace-app://loginredirect?session_state=abc&code=code-99")
		w.WriteHeader(http.StatusFound)
	})

	var gotVerifier, gotCode string
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotVerifier = r.PostFormValue("code_verifier")
		gotCode = r.PostFormValue("code")
		json.NewEncoder(w).Encode(map[string]string{"refresh_token": "refresh-final"})
	})

	endpoints := LoginEndpoints{
		AuthSessionURL: srv.URL + "/session",
		AuthURL:        srv.URL + "/auth",
		TokenURL:       srv.URL + "/token",
	}

	refresh, err := endpoints.Login(context.Background(), "user@example.com", "hunter2", 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if refresh != "refresh-final" {
		t.Fatalf("Login() = %q, want refresh-final", refresh)
	}
	if gotCode != "code-99" {
		t.Fatalf("exchanged code = %q, want code-99", gotCode)
	}
	if sessionChallenge == "" || gotVerifier == "" {
		t.Fatal("PKCE challenge and verifier must be sent")
	}
}

func TestLoginBadCredentials(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<form action="/auth?session_code=s&execution=e&tab_id=t&x=y">`)
	})
	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		// Keycloak re-renders the login page without a redirect.
		fmt.Fprint(w, `<html>Invalid username or password.</html>`)
	})

	endpoints := LoginEndpoints{
		AuthSessionURL: srv.URL + "/session",
		AuthURL:        srv.URL + "/auth",
		TokenURL:       srv.URL + "/token",
	}

	if _, err := endpoints.Login(context.Background(), "user", "wrong", 5*time.Second); err == nil {
		t.Fatal("expected error when no authorization code is issued")
	}
}

func TestCodeChallenge(t *testing.T) {
	challenge, verifier, err := codeChallenge()
	if err != nil {
		t.Fatal(err)
	}
	if challenge == "" || verifier == "" {
		t.Fatal("empty challenge or verifier")
	}
	for _, c := range verifier {
		if c == '-' || c == '_' {
			t.Fatalf("verifier %q carries stripped characters", verifier)
		}
	}

	c2, v2, err := codeChallenge()
	if err != nil {
		t.Fatal(err)
	}
	if c2 == challenge || v2 == verifier {
		t.Fatal("consecutive challenges must differ")
	}
}

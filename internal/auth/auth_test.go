package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"chatsync/internal/content"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL + "/"}, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestClient(t *testing.T) {
	ctx := context.Background()

	t.Run("Login_Success", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/auth/login" || r.Method != http.MethodPost {
				http.Error(w, "wrong route", http.StatusNotFound)
				return
			}
			var creds Credentials
			if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
				http.Error(w, "bad body", http.StatusBadRequest)
				return
			}
			if creds.Username != "alice" || creds.Password != "pass1" {
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"message": "Invalid credentials"})
				return
			}
			_ = json.NewEncoder(w).Encode(LoginResponse{Token: "tok", Username: "alice"})
		})

		resp, err := c.Login(ctx, Credentials{Username: "alice", Password: "pass1"})
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if resp.Token != "tok" || resp.Username != "alice" {
			t.Errorf("unexpected response: %+v", resp)
		}

		_, err = c.Login(ctx, Credentials{Username: "alice", Password: "wrong"})
		if !errors.Is(err, ErrAuthFailed) {
			t.Fatalf("expected ErrAuthFailed, got %v", err)
		}
		if got := err.Error(); got != "authentication failed: Invalid credentials" {
			t.Errorf("server message should be surfaced, got %q", got)
		}
	})

	t.Run("Login_ErrorField", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "User not found"})
		})

		_, err := c.Login(ctx, Credentials{Username: "ghost", Password: "x"})
		if err == nil || err.Error() != "authentication failed: User not found" {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Login_MissingToken", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]string{"username": "alice"})
		})

		if _, err := c.Login(ctx, Credentials{Username: "alice", Password: "x"}); !errors.Is(err, ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
	})

	t.Run("Login_InvalidUsername", func(t *testing.T) {
		called := false
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			called = true
		})

		_, err := c.Login(ctx, Credentials{Username: "bad name", Password: "x"})
		if !errors.Is(err, content.ErrInvalidUsername) {
			t.Errorf("expected ErrInvalidUsername, got %v", err)
		}
		if called {
			t.Error("invalid username must not reach the server")
		}
	})

	t.Run("Register", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/auth/register" {
				http.Error(w, "wrong route", http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(RegisterResponse{Message: "User registered"})
		})

		resp, err := c.Register(ctx, Credentials{Username: "bob", Password: "pw"})
		if err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		if resp.Username != "bob" || resp.Message != "User registered" {
			t.Errorf("unexpected response: %+v", resp)
		}
	})

	t.Run("Logout", func(t *testing.T) {
		var gotAuth string
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusOK)
		})

		if err := c.Logout(ctx, "tok"); err != nil {
			t.Fatalf("Logout failed: %v", err)
		}
		if gotAuth != "Bearer tok" {
			t.Errorf("expected bearer token, got %q", gotAuth)
		}
		if err := c.Logout(ctx, ""); err != nil {
			t.Errorf("Logout without token should be a no-op, got %v", err)
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty base URL")
	}

	cfg = Config{BaseURL: "http://localhost:3000/"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BaseURL != "http://localhost:3000" || cfg.Timeout != DefaultTimeout {
		t.Errorf("unexpected normalized config: %+v", cfg)
	}
}

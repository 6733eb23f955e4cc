package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aprendizaje-adaptativo/aprendizaje/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c := New(Config{
		BaseURL:      srv.URL,
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return c, &hits
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestRefresh_Success(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/auth/refresh" {
			t.Errorf("request = %s %s, want POST /v1/auth/refresh", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer old" {
			t.Errorf("Authorization = %q, want Bearer old", got)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token": "new",
			"user":  map[string]string{"nombre": "Ana María"},
		})
	})

	res, err := c.Refresh(context.Background(), "old")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if res.Token != "new" {
		t.Errorf("Token = %q, want new", res.Token)
	}
	if res.User == nil || res.User.Nombre != "Ana María" {
		t.Errorf("User = %+v, want partial user", res.User)
	}
}

func TestRefresh_Rejected(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
	})

	_, err := c.Refresh(context.Background(), "bad")
	if !errors.Is(err, ErrRefreshRejected) {
		t.Fatalf("Refresh() error = %v, want ErrRefreshRejected", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized || se.Message != "invalid token" {
		t.Errorf("StatusError = %+v", se)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1 (4xx is not retried)", hits.Load())
	}
}

func TestRefresh_MalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>"},
		{"missing token", `{"user": {"id": "1"}}`},
		{"empty token", `{"token": ""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(tt.body))
			})

			_, err := c.Refresh(context.Background(), "tok")
			if !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("Refresh() error = %v, want ErrMalformedResponse", err)
			}
		})
	}
}

func TestRefresh_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "busy"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": "new"})
	})

	res, err := c.Refresh(context.Background(), "old")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if res.Token != "new" {
		t.Errorf("Token = %q, want new", res.Token)
	}
	if hits.Load() != 2 {
		t.Errorf("hits = %d, want 2", hits.Load())
	}
}

func TestRefresh_CircuitBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{
		BaseURL:      srv.URL,
		MaxAttempts:  1,
		InitialDelay: time.Millisecond,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	for i := 0; i < 3; i++ {
		if _, err := c.Refresh(context.Background(), "tok"); err == nil {
			t.Fatalf("Refresh() #%d error = nil, want failure", i+1)
		}
	}
	before := hits.Load()

	if _, err := c.Refresh(context.Background(), "tok"); err == nil {
		t.Fatal("Refresh() with open breaker error = nil")
	}
	if hits.Load() != before {
		t.Errorf("open breaker let a request through: hits %d -> %d", before, hits.Load())
	}
}

func TestLogin(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/auth/login" {
			t.Errorf("path = %s, want /v1/auth/login", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "ana@example.com" || body["password"] != "secreto123" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, AuthResponse{
			Token: "tok",
			User:  &domain.User{ID: "1", Nombre: "Ana", Email: "ana@example.com", Rol: domain.RoleEstudiante},
		})
	})

	resp, err := c.Login(context.Background(), "ana@example.com", "secreto123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if resp.Token != "tok" || resp.User == nil || resp.User.ID != "1" {
		t.Errorf("Login() = %+v", resp)
	}

	if _, err := c.Login(context.Background(), "ana@example.com", "wrong"); !errors.Is(err, ErrLoginRejected) {
		t.Errorf("Login() wrong password error = %v, want ErrLoginRejected", err)
	}
}

func TestMe(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing token"})
			return
		}
		writeJSON(w, http.StatusOK, domain.User{ID: "1", Nombre: "Ana", Rol: domain.RoleAdmin})
	})

	u, err := c.Me(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Me() error = %v", err)
	}
	if u.Rol != domain.RoleAdmin {
		t.Errorf("Rol = %q, want admin", u.Rol)
	}

	if _, err := c.Me(context.Background(), "other"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Me() error = %v, want ErrUnauthorized", err)
	}
}

func TestStatusError_Retryable(t *testing.T) {
	for code, want := range map[int]bool{400: false, 401: false, 429: true, 500: true, 503: true} {
		if got := (&StatusError{StatusCode: code}).Retryable(); got != want {
			t.Errorf("Retryable(%d) = %v, want %v", code, got, want)
		}
	}
}

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"reelsmith/internal/models"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		remoteAddr string
		want       string
	}{
		{
			name:       "forwarded single ip",
			header:     "203.0.113.1",
			remoteAddr: "198.51.100.10:1234",
			want:       "203.0.113.1",
		},
		{
			name:       "forwarded list uses first",
			header:     "203.0.113.1, 198.51.100.2",
			remoteAddr: "198.51.100.10:1234",
			want:       "203.0.113.1",
		},
		{
			name:       "no header uses remote host",
			header:     "",
			remoteAddr: "198.51.100.10:1234",
			want:       "198.51.100.10",
		},
		{
			name:       "remote without port",
			header:     "",
			remoteAddr: "198.51.100.10",
			want:       "198.51.100.10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.header != "" {
				r.Header.Set("X-Forwarded-For", tt.header)
			}
			if got := clientIP(r); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func requestWithUser(user *models.User) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	if user == nil {
		return r
	}
	return r.WithContext(context.WithValue(r.Context(), userContextKey, user))
}

func TestRequireAdmin(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	gate := RequireAdmin(next)

	tests := []struct {
		name string
		user *models.User
		want int
	}{
		{"admin passes", &models.User{ID: uuid.New(), Role: models.RoleAdmin}, http.StatusOK},
		{"regular user blocked", &models.User{ID: uuid.New(), Role: models.RoleUser}, http.StatusForbidden},
		{"no user blocked", nil, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			gate.ServeHTTP(rec, requestWithUser(tt.user))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestCurrentUserMissingContext(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if CurrentUser(r) != nil {
		t.Error("expected nil user for request without auth context")
	}
}

package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

func TestKeyFromURL(t *testing.T) {
	s := New("https://store.example.com", "key", "media", zerolog.Nop())

	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "own public url",
			url:  "https://store.example.com/storage/v1/object/public/media/uploads/123-photo.jpg",
			want: "uploads/123-photo.jpg",
		},
		{
			name: "foreign host",
			url:  "https://cdn.vendor.example/out.mp4",
			want: "",
		},
		{
			name: "own host wrong bucket",
			url:  "https://store.example.com/storage/v1/object/public/other/uploads/x.jpg",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.KeyFromURL(tt.url); got != tt.want {
				t.Errorf("KeyFromURL(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestKeyFromURLRoundTrip(t *testing.T) {
	s := New("https://store.example.com/", "key", "media", zerolog.Nop())

	key := "generated/abc.mp4"
	if got := s.KeyFromURL(s.GetPublicURL(key)); got != key {
		t.Errorf("round trip = %q, want %q", got, key)
	}
}

func TestGenerateUploadKeySanitizesFilename(t *testing.T) {
	s := New("https://store.example.com", "key", "media", zerolog.Nop())

	key := s.GenerateUploadKey("uploads", "../weird name?.jpg")

	if !strings.HasPrefix(key, "uploads/") {
		t.Errorf("key %q missing folder prefix", key)
	}
	if strings.Contains(key, "..") || strings.Contains(key, " ") || strings.Contains(key, "?") {
		t.Errorf("key %q contains unsanitized characters", key)
	}
	if !strings.HasSuffix(key, ".jpg") {
		t.Errorf("key %q lost its extension", key)
	}
}

func TestUploadRetriesOnServerError(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-upsert") != "true" {
			t.Error("missing x-upsert header")
		}
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := New(server.URL, "key", "media", zerolog.Nop())

	if err := s.Upload(context.Background(), "uploads/a.jpg", []byte("data"), "image/jpeg"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestUploadDoesNotRetryClientError(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	s := New(server.URL, "key", "media", zerolog.Nop())

	if err := s.Upload(context.Background(), "uploads/a.jpg", []byte("data"), "image/jpeg"); err == nil {
		t.Fatal("expected error for 403")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on 403)", got)
	}
}

func TestDeleteTreatsMissingAsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	s := New(server.URL, "key", "media", zerolog.Nop())

	if err := s.Delete(context.Background(), "uploads/gone.jpg"); err != nil {
		t.Fatalf("Delete of missing object should succeed, got %v", err)
	}
}

package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

func TestRunwayGenerateVideo(t *testing.T) {
	fastPolls(t)

	var polls int32
	mux := http.NewServeMux()

	mux.HandleFunc("/image_to_video", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Runway-Version"); got != runwayAPIVersion {
			t.Errorf("version header = %q", got)
		}

		var payload map[string]interface{}
		json.NewDecoder(r.Body).Decode(&payload)
		// 7s rounds up to the long clip
		if payload["duration"].(float64) != 10 {
			t.Errorf("duration = %v, want 10", payload["duration"])
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(runwayTaskCreated{ID: "task-1"})
	})
	mux.HandleFunc("/tasks/task-1", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&polls, 1) < 2 {
			json.NewEncoder(w).Encode(runwayTask{ID: "task-1", Status: "RUNNING"})
			return
		}
		json.NewEncoder(w).Encode(runwayTask{
			ID:     "task-1",
			Status: "SUCCEEDED",
			Output: []string{"https://cdn.runway.example/out.mp4"},
		})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	p := NewRunwayProvider("test-key", zerolog.Nop())
	p.baseURL = server.URL

	url, err := p.GenerateVideo(context.Background(), "https://cdn.example.com/img.png", "slow pan", 7)
	if err != nil {
		t.Fatalf("GenerateVideo failed: %v", err)
	}
	if url != "https://cdn.runway.example/out.mp4" {
		t.Errorf("url = %q", url)
	}
}

func TestRunwayFailedTask(t *testing.T) {
	fastPolls(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/text_to_image", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(runwayTaskCreated{ID: "task-2"})
	})
	mux.HandleFunc("/tasks/task-2", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(runwayTask{ID: "task-2", Status: "FAILED", Failure: "moderation"})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	p := NewRunwayProvider("test-key", zerolog.Nop())
	p.baseURL = server.URL

	_, err := p.TransformImage(context.Background(), "https://cdn.example.com/src.jpg", "x")
	if err == nil {
		t.Fatal("expected error for failed task")
	}

	var ge *GenerationError
	if !errors.As(err, &ge) {
		t.Fatalf("error %v is not a GenerationError", err)
	}
	if ge.Provider != "runway" {
		t.Errorf("provider = %q", ge.Provider)
	}
}

func TestRunwayCancelledContext(t *testing.T) {
	fastPolls(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/text_to_image", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(runwayTaskCreated{ID: "task-3"})
	})
	mux.HandleFunc("/tasks/task-3", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(runwayTask{ID: "task-3", Status: "RUNNING"})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	p := NewRunwayProvider("test-key", zerolog.Nop())
	p.baseURL = server.URL

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.TransformImage(ctx, "https://cdn.example.com/src.jpg", "x")
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error %v does not wrap context.Canceled", err)
	}
}

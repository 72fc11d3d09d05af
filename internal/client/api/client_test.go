package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SofieTorch/cbba-mobility/internal/recording"
)

func TestStartSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/recordings/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected authorization header %q", got)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(recording.Session{ID: "session-1", Status: recording.StatusInProgress})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token", time.Second)
	session, err := client.StartSession(context.Background(), recording.SessionCreate{DeviceModel: "Pixel 7"})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if session.ID != "session-1" || session.Status != recording.StatusInProgress {
		t.Fatalf("unexpected session: %+v", session)
	}
}

func TestUploadLocationBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/recordings/session-1/locations/batch" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var batch recording.LocationBatch
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			t.Errorf("decode batch: %v", err)
		}
		json.NewEncoder(w).Encode(recording.BatchResult{Added: len(batch.Points), SessionID: "session-1"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	result, err := client.UploadLocationBatch(context.Background(), "session-1",
		[]recording.LocationPointInput{
			{Timestamp: time.Now(), Latitude: -17.39, Longitude: -66.15},
			{Timestamp: time.Now(), Latitude: -17.40, Longitude: -66.16},
		})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if result.Added != 2 {
		t.Fatalf("expected 2 added, got %+v", result)
	}
}

func TestEndSessionConflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "illegal transition completed -> completed", http.StatusConflict)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	_, err := client.EndSession(context.Background(), "session-1", recording.EndRequest{LineName: "Linea 130"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 StatusError, got %v", err)
	}
}

func TestIsConflictIgnoresOtherErrors(t *testing.T) {
	if IsConflict(errors.New("connection refused")) {
		t.Fatalf("plain errors are not conflicts")
	}
	if IsConflict(&StatusError{StatusCode: http.StatusNotFound}) {
		t.Fatalf("404 is not a conflict")
	}
	if !IsConflict(&StatusError{StatusCode: http.StatusConflict}) {
		t.Fatalf("409 is a conflict")
	}
}

func TestServerErrorSurfacesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	_, err := client.CancelSession(context.Background(), "session-1")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusInternalServerError || statusErr.Message == "" {
		t.Fatalf("unexpected error: %+v", statusErr)
	}
}

func TestContextCancellation(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)

	client := NewClient(server.URL, "", time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := client.ResumeSession(ctx, "session-1"); err == nil {
		t.Fatalf("expected context deadline error")
	}
}

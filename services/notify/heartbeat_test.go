package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHeartbeatRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hb.txt")
	if err := WriteHeartbeat(path); err != nil {
		t.Fatal(err)
	}
	age, err := HeartbeatAge(path)
	if err != nil {
		t.Fatal(err)
	}
	if age < 0 || age > time.Minute {
		t.Fatalf("age = %v, want a fresh stamp", age)
	}
}

func TestHeartbeatMissingFile(t *testing.T) {
	if _, err := HeartbeatAge(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Fatal("missing heartbeat must error")
	}
}

func TestHeartbeatEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hb.txt")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := HeartbeatAge(path); err == nil {
		t.Fatal("empty heartbeat must error")
	}
}

func TestDiscordSend(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		got = string(body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	if !s.Configured() {
		t.Fatal("sender with URL must report configured")
	}
	if err := s.Send(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if got != `{"content":"hello"}` {
		t.Fatalf("payload = %s", got)
	}
}

func TestDiscordSendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	if err := s.Send(context.Background(), "hello"); err == nil {
		t.Fatal("non-2xx status must surface as an error")
	}
}

func TestDiscordUnconfigured(t *testing.T) {
	s := NewDiscordSender("")
	if s.Configured() {
		t.Fatal("empty URL must report unconfigured")
	}
	if err := s.Send(context.Background(), "hello"); err == nil {
		t.Fatal("sending without a webhook must error")
	}
}

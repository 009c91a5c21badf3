package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/slack-go/slack"

	"github.com/toolkit-community/helpdesk/pkg/protocol"
)

func TestNewSlack_RequiresURL(t *testing.T) {
	if _, err := NewSlack("", "", nil); err == nil {
		t.Fatal("expected error for empty webhook url")
	}
}

func TestEscalate(t *testing.T) {
	var got slack.WebhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n, err := NewSlack(srv.URL, "guild-1", nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	err = n.Escalate(context.Background(), protocol.Escalation{
		ThreadID:   "th-1",
		ThreadName: "Ollama refuses connections",
		OwnerID:    "alice",
		ReporterID: "alice",
		Issues:     []string{"Ollama Connection Refused"},
		At:         time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}

	if len(got.Attachments) != 1 {
		t.Fatalf("attachments = %d", len(got.Attachments))
	}
	att := got.Attachments[0]
	if att.Title != "Ollama refuses connections" {
		t.Errorf("title = %q", att.Title)
	}
	if att.TitleLink != "https://discord.com/channels/guild-1/th-1" {
		t.Errorf("title link = %q", att.TitleLink)
	}
	if len(att.Fields) != 3 || att.Fields[2].Value != "Ollama Connection Refused" {
		t.Errorf("fields = %+v", att.Fields)
	}
}

func TestEscalate_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	n, _ := NewSlack(srv.URL, "", nil)
	if err := n.Escalate(context.Background(), protocol.Escalation{ThreadID: "th-1"}); err == nil {
		t.Fatal("expected error on 400")
	}
}

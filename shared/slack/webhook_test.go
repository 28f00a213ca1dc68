package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"rawci/shared/chat"
)

func TestSendPostsJSON(t *testing.T) {
	var got chat.Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	msg := chat.Message{
		Text:        ":white_check_mark: build passed",
		Attachments: []chat.Attachment{{Title: "unit-tests", Fields: []chat.Field{{Title: "State", Value: "success"}}}},
	}
	if err := NewWebhook(server.URL, server.Client()).Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Text != msg.Text || len(got.Attachments) != 1 || got.Attachments[0].Fields[0].Value != "success" {
		t.Errorf("got %+v", got)
	}
}

func TestSendReportsNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer server.Close()

	if err := NewWebhook(server.URL, nil).Send(context.Background(), chat.Message{Text: "x"}); err == nil {
		t.Fatal("expected error for 400")
	}
}

package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReportPostsStatus(t *testing.T) {
	var got StatusRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/repos/acme/widgets/statuses/abc123" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "token secret-pat" {
			t.Errorf("Authorization = %q", auth)
		}
		if ua := r.Header.Get("User-Agent"); ua != "rawci-test" {
			t.Errorf("User-Agent = %q", ua)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":1}`))
	}))
	defer server.Close()

	reporter := NewReporter(server.URL+"/", "secret-pat", "rawci-test", "raw-ci/unit-tests", server.Client())
	out := reporter.Report(context.Background(), "acme/widgets", "abc123", "pending", "https://logs/abc123.log", "3s from initial receipt to 'pending'")
	if out.Err != nil {
		t.Fatalf("Report: %v", out.Err)
	}
	if out.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d", out.StatusCode)
	}

	want := StatusRequest{
		State:       "pending",
		TargetURL:   "https://logs/abc123.log",
		Description: "3s from initial receipt to 'pending' [RAWCI]",
		Context:     "raw-ci/unit-tests",
	}
	if got != want {
		t.Errorf("body = %+v, want %+v", got, want)
	}
}

func TestReportErrorStatusIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Bad credentials"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	out := NewReporter(server.URL, "bad", "", "ctx", nil).Report(context.Background(), "a/b", "sha", "success", "", "")
	if out.Err != nil {
		t.Fatalf("Err = %v, want logged status only", out.Err)
	}
	if out.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d", out.StatusCode)
	}
	out.Log()
}

func TestReportTransportError(t *testing.T) {
	out := NewReporter("http://127.0.0.1:0", "t", "", "ctx", nil).Report(context.Background(), "a/b", "sha", "success", "", "")
	if out.Err == nil {
		t.Fatal("expected transport error")
	}
}

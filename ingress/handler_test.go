package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rawci/shared/model"
	"rawci/shared/objectstore"
	"rawci/shared/pipeline"
	"rawci/shared/records"
	"rawci/shared/stage"
)

const sha = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

const pushBody = `{
  "ref": "refs/heads/master",
  "base_ref": null,
  "before": "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
  "after": "` + sha + `",
  "repository": {"full_name": "acme/widgets"},
  "head_commit": {"message": "Ship it", "committer": {"username": "octocat"}}
}`

type published struct {
	topic, key, payload string
}

type fakeQueue struct {
	sent []published
	err  error
}

func (q *fakeQueue) Publish(_ context.Context, topic, key string, payload []byte) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.sent = append(q.sent, published{topic, key, string(payload)})
	return "1-0", nil
}

// failingStore rejects every write.
type failingStore struct{ *objectstore.MemoryStore }

func (failingStore) Put(context.Context, string, []byte, string) error {
	return errors.New("bucket unavailable")
}

var testLocations = stage.Locations{Inbox: "inbox", InProgress: "in-progress", Success: "success", Failure: "failure"}

type fixture struct {
	store   *objectstore.MemoryStore
	queue   *fakeQueue
	handler *PushHandler
}

func newFixture(secret string) *fixture {
	store := objectstore.NewMemoryStore("ci-bucket")
	queue := &fakeQueue{}
	h := NewPushHandler(records.NewRegister(store, testLocations), pipeline.NewPublisher(queue, "unit-tests-topic", ""), []byte(secret))
	h.Now = func() time.Time { return time.UnixMilli(1_500_000_000_000) }
	return &fixture{store: store, queue: queue, handler: h}
}

func post(h http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/github/push", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPushCreatesInboxRecordAndPublishes(t *testing.T) {
	f := newFixture("")
	rec := post(f.handler, pushBody, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d body = %s", rec.Code, rec.Body)
	}
	if got := rec.Body.String(); got != "bucket=ci-bucket gitShaFilePath=inbox/"+sha {
		t.Errorf("body = %q", got)
	}

	data, err := f.store.Get(context.Background(), "inbox/"+sha, "")
	if err != nil {
		t.Fatalf("inbox record missing: %v", err)
	}
	record, err := model.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if record.GithubRepoFullName != "acme/widgets" || record.PushReceivedAtMillis != 1_500_000_000_000 {
		t.Errorf("record = %+v", record)
	}
	if record.GitRef == nil || *record.GitRef != "refs/heads/master" || record.GitBaseRef != nil {
		t.Errorf("refs = %v / %v", record.GitRef, record.GitBaseRef)
	}
	if record.HeadCommiterUsername != "octocat" || record.HeadCommitMessage != "Ship it" {
		t.Errorf("commit fields = %+v", record)
	}

	if len(f.queue.sent) != 1 {
		t.Fatalf("published %d messages, want 1", len(f.queue.sent))
	}
	msg := f.queue.sent[0]
	if msg.topic != "unit-tests-topic" || msg.payload != "mem://ci-bucket/inbox/"+sha {
		t.Errorf("published %+v", msg)
	}
}

func TestPushRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":       "{",
		"short sha":      strings.Replace(pushBody, sha, "abc", 1),
		"no head commit": strings.Replace(pushBody, `"head_commit": {"message": "Ship it", "committer": {"username": "octocat"}}`, `"head_commit": null`, 1),
		"no refs":        strings.Replace(pushBody, `"ref": "refs/heads/master",`, "", 1),
		"no repository":  strings.Replace(pushBody, `"repository": {"full_name": "acme/widgets"},`, "", 1),
	}
	for name, body := range cases {
		f := newFixture("")
		rec := post(f.handler, body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: code = %d, want 400", name, rec.Code)
		}
		if len(f.store.Keys()) != 0 || len(f.queue.sent) != 0 {
			t.Errorf("%s: side effects on malformed input", name)
		}
	}
}

func TestPushWriteFailureIs500(t *testing.T) {
	store := failingStore{objectstore.NewMemoryStore("ci-bucket")}
	queue := &fakeQueue{}
	h := NewPushHandler(records.NewRegister(store, testLocations), pipeline.NewPublisher(queue, "t", ""), nil)

	rec := post(h, pushBody, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("code = %d, want 500", rec.Code)
	}
	if len(queue.sent) != 0 {
		t.Error("published without a record")
	}
}

func TestPushPublishFailureStillResponds(t *testing.T) {
	f := newFixture("")
	f.queue.err = errors.New("broker down")

	rec := post(f.handler, pushBody, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("code = %d, want 200", rec.Code)
	}
	if len(f.store.Keys()) != 1 {
		t.Errorf("keys = %v", f.store.Keys())
	}
}

func TestPushSignature(t *testing.T) {
	secret := "hook-secret"
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(pushBody))
	good := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	f := newFixture(secret)
	if rec := post(f.handler, pushBody, map[string]string{"X-Hub-Signature-256": "sha256=00"}); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad signature code = %d", rec.Code)
	}
	if rec := post(f.handler, pushBody, map[string]string{"X-Hub-Signature-256": good}); rec.Code != http.StatusOK {
		t.Errorf("good signature code = %d", rec.Code)
	}
}

func TestPing(t *testing.T) {
	f := newFixture("")
	rec := post(f.handler, `{"zen":"Keep it logically awesome."}`, map[string]string{"X-GitHub-Event": "ping"})
	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Errorf("ping = %d %q", rec.Code, rec.Body)
	}
	if len(f.store.Keys()) != 0 {
		t.Error("ping wrote a record")
	}
}

func TestRouter(t *testing.T) {
	f := newFixture("")
	_ = f.store.Put(context.Background(), "build-logs/"+sha+".log", []byte("PASS\n"), "text/plain")
	router := newRouter(f.handler, NewLogServer(f.store, "build-logs"))

	cases := []struct {
		method, path string
		want         int
		body         string
	}{
		{http.MethodGet, "/health", http.StatusOK, ""},
		{http.MethodGet, "/ci-bucket/build-logs/" + sha + ".log", http.StatusOK, "PASS\n"},
		{http.MethodGet, "/ci-bucket/build-logs/" + strings.Repeat("b", 40) + ".log", http.StatusNotFound, ""},
		{http.MethodGet, "/other-bucket/build-logs/" + sha + ".log", http.StatusNotFound, ""},
		{http.MethodGet, "/ci-bucket/build-logs/nothex.log", http.StatusBadRequest, ""},
		{http.MethodGet, "/github/push", http.StatusMethodNotAllowed, ""},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != tc.want {
			t.Errorf("%s %s = %d, want %d", tc.method, tc.path, rec.Code, tc.want)
		}
		if tc.body != "" && rec.Body.String() != tc.body {
			t.Errorf("%s body = %q", tc.path, rec.Body)
		}
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/github/push", strings.NewReader(pushBody)))
	if rec.Code != http.StatusOK {
		t.Errorf("POST /github/push = %d", rec.Code)
	}
}

package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"rawci/shared/model"
	"rawci/shared/template"
)

const sha = "0123456789abcdef0123456789abcdef01234567"

type recordingSender struct {
	sent []Message
	err  error
}

func (s *recordingSender) Name() string { return "recording" }

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	s.sent = append(s.sent, msg)
	return s.err
}

func strPtr(s string) *string { return &s }

func testSettings() Settings {
	return Settings{
		MessageTemplate: "{{buildEmojiShortcode}} {{gitRefEmojiShortcode}} {{buildStatusEmojiShortcode}} " +
			"<{{githubGitShowUrl}}|{{shortGitSha}}> {{timingSeconds}} {{gitRefTruncated}} " +
			"\"{{headCommitMessage}}\" {{headCommiterUsername}} {{buildLogUrl}}",
		BuildEmojiShortcode: ":hammer:",
		GitRefEmojiMatchers: []template.EmojiMatcher{
			{StartsWith: "refs/heads/master", EmojiShortcode: ":star:"},
			{StartsWith: "refs/heads/", EmojiShortcode: ":seedling:"},
		},
		BuildStatusEmojiShortcodes: map[string]string{
			"inProgress": ":hourglass:",
			"success":    ":white_check_mark:",
			"failure":    ":x:",
		},
	}
}

func testRecord() *model.BuildRecord {
	return &model.BuildRecord{
		GithubRepoFullName:   "acme/widgets",
		GitSha:               sha,
		GitShaBefore:         strPtr("ffffffffffffffffffffffffffffffffffffffff"),
		GitRef:               strPtr("refs/heads/feature/long-branch-name-that-keeps-going"),
		HeadCommitMessage:    "Make the widget spin faster\n\nand document it",
		HeadCommiterUsername: "octocat",
		PushReceivedAtMillis: 1_500_000_000_000,
	}
}

func newTestNotifier(rich bool, senders ...Sender) *Notifier {
	n := NewNotifier(testSettings(), "unit-tests", rich, func(s string) string {
		return "https://storage.googleapis.com/ci/build-logs/" + s + ".log"
	}, senders...)
	n.Now = func() time.Time { return time.UnixMilli(1_500_000_004_500) }
	return n
}

func TestRender(t *testing.T) {
	msg, err := newTestNotifier(false).Render(model.StageSuccess, testRecord())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := ":hammer: :seedling: :white_check_mark: " +
		"<https://github.com/acme/widgets/compare/ffffffffffffffffffffffffffffffffffffffff..." + sha + "|0123456> 5s " +
		"feature/long-branch-name-that- \"Make the widget spin faster ...\" octocat " +
		"https://storage.googleapis.com/ci/build-logs/" + sha + ".log"
	if msg.Text != want {
		t.Errorf("Text =\n%q\nwant\n%q", msg.Text, want)
	}
	if len(msg.Attachments) != 0 {
		t.Errorf("plain mode produced attachments: %+v", msg.Attachments)
	}
}

func TestRenderRichAttachments(t *testing.T) {
	msg, err := newTestNotifier(true).Render(model.StageInProgress, testRecord())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("attachments = %d", len(msg.Attachments))
	}
	a := msg.Attachments[0]
	if !strings.HasPrefix(a.Title, "unit-tests ") || !strings.HasSuffix(a.TitleLink, sha+".log") {
		t.Errorf("attachment = %+v", a)
	}
	if a.Fields[0].Value != "inProgress" {
		t.Errorf("state field = %q", a.Fields[0].Value)
	}
}

func TestRenderErrors(t *testing.T) {
	n := newTestNotifier(false)

	noRef := testRecord()
	noRef.GitRef = nil
	if _, err := n.Render(model.StageSuccess, noRef); !errors.Is(err, model.ErrNoGitRef) {
		t.Errorf("no ref err = %v", err)
	}

	tag := testRecord()
	tag.GitRef = strPtr("refs/tags/v1")
	if _, err := n.Render(model.StageSuccess, tag); !errors.Is(err, template.ErrNoEmojiMatch) {
		t.Errorf("unmatched ref err = %v", err)
	}

	n.settings.MessageTemplate = "{{notAToken}}"
	if _, err := n.Render(model.StageSuccess, testRecord()); !errors.Is(err, template.ErrMissingToken) {
		t.Errorf("missing token err = %v", err)
	}
}

func TestNotifyFansOutAndKeepsGoing(t *testing.T) {
	broken := &recordingSender{err: errors.New("webhook down")}
	ok := &recordingSender{}
	outcomes, err := newTestNotifier(false, broken, ok).Notify(context.Background(), model.StageFailure, testRecord())
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(outcomes) != 2 || outcomes[0].Err == nil || outcomes[1].Err != nil {
		t.Errorf("outcomes = %+v", outcomes)
	}
	if len(ok.sent) != 1 || !strings.Contains(ok.sent[0].Text, ":x:") {
		t.Errorf("sent = %+v", ok.sent)
	}
	LogOutcomes(sha, outcomes)
}

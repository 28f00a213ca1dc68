// Package chat renders and sends build-transition notifications.
package chat

import (
	"context"
	"fmt"
	"log"
	"time"

	"rawci/shared/model"
	"rawci/shared/template"
)

// Settings mirror NOTIFICATION_MESSAGE_SETTINGS.
type Settings struct {
	MessageTemplate            string                  `yaml:"messageTemplate" json:"messageTemplate"`
	BuildEmojiShortcode        string                  `yaml:"buildEmojiShortcode" json:"buildEmojiShortcode"`
	GitRefEmojiMatchers        []template.EmojiMatcher `yaml:"gitRefEmojiMatchers" json:"gitRefEmojiMatchers"`
	BuildStatusEmojiShortcodes map[string]string       `yaml:"buildStatusEmojiShortcodes" json:"buildStatusEmojiShortcodes"`
}

// Outcome of one transport send.
type Outcome struct {
	Transport string
	Err       error
}

func LogOutcomes(sha string, outcomes []Outcome) {
	for _, o := range outcomes {
		if o.Err != nil {
			log.Printf("❌ chat notification via %s for %s failed: %v", o.Transport, sha, o.Err)
			continue
		}
		log.Printf("✅ chat notification via %s for %s sent", o.Transport, sha)
	}
}

type Notifier struct {
	settings        Settings
	buildName       string
	richAttachments bool
	buildLogURL     func(sha string) string
	senders         []Sender
	Now             func() time.Time
}

func NewNotifier(settings Settings, buildName string, richAttachments bool, buildLogURL func(string) string, senders ...Sender) *Notifier {
	return &Notifier{
		settings:        settings,
		buildName:       buildName,
		richAttachments: richAttachments,
		buildLogURL:     buildLogURL,
		senders:         senders,
		Now:             time.Now,
	}
}

// Tokens derives the notification context for a record in the given stage.
func (n *Notifier) Tokens(s model.Stage, record *model.BuildRecord) (map[string]string, error) {
	ref, err := record.Ref()
	if err != nil {
		return nil, err
	}
	refEmoji, err := template.EmojiForRef(ref, n.settings.GitRefEmojiMatchers)
	if err != nil {
		return nil, err
	}
	before := ""
	if record.GitShaBefore != nil {
		before = *record.GitShaBefore
	}

	tokens := map[string]string{
		"buildName":             n.buildName,
		"buildState":            s.String(),
		"buildEmojiShortcode":   n.settings.BuildEmojiShortcode,
		"gitRefEmojiShortcode":  refEmoji,
		"githubGitShowUrl":      template.CompareURL(record.GithubRepoFullName, before, record.GitSha),
		"githubDiffVsMasterUrl": template.CompareURL(record.GithubRepoFullName, "master", record.GitSha),
		"shortGitSha":           template.ShortSHA(record.GitSha),
		"timingSeconds":         template.SecondsSince(n.Now(), record.PushReceivedAtMillis),
		"gitRefTruncated":       template.TruncateRef(ref),
		"headCommitMessage":     template.TruncateCommitMessage(record.HeadCommitMessage),
		"headCommiterUsername":  record.HeadCommiterUsername,
		"buildLogUrl":           n.buildLogURL(record.GitSha),
	}
	// a state without a configured emoji is left out so templates using it fail loudly
	if emoji, ok := n.settings.BuildStatusEmojiShortcodes[s.String()]; ok {
		tokens["buildStatusEmojiShortcode"] = emoji
	}
	return tokens, nil
}

// Render builds the message for a record in the given stage.
func (n *Notifier) Render(s model.Stage, record *model.BuildRecord) (Message, error) {
	tokens, err := n.Tokens(s, record)
	if err != nil {
		return Message{}, err
	}
	text, err := template.Interpolate(n.settings.MessageTemplate, tokens)
	if err != nil {
		return Message{}, err
	}

	msg := Message{Text: text}
	if n.richAttachments {
		msg.Attachments = []Attachment{{
			Title:     fmt.Sprintf("%s %s@%s", n.buildName, tokens["gitRefTruncated"], tokens["shortGitSha"]),
			TitleLink: tokens["buildLogUrl"],
			Fields: []Field{
				{Title: "State", Value: s.String(), Short: true},
				{Title: "Elapsed", Value: tokens["timingSeconds"], Short: true},
				{Title: "Committer", Value: record.HeadCommiterUsername, Short: true},
				{Title: "Commit", Value: tokens["headCommitMessage"], Short: true},
				{Title: "Changes", Value: tokens["githubGitShowUrl"]},
			},
		}}
	}
	return msg, nil
}

// Notify renders the message and hands it to every transport. Render errors
// (missing token, unmatched ref) are returned; transport failures are only
// reported in the outcomes.
func (n *Notifier) Notify(ctx context.Context, s model.Stage, record *model.BuildRecord) ([]Outcome, error) {
	msg, err := n.Render(s, record)
	if err != nil {
		return nil, err
	}
	log.Printf("💬 sendCommitStatusNotification %s %s: %s", s, record.GitSha, msg.Text)

	outcomes := make([]Outcome, 0, len(n.senders))
	for _, sender := range n.senders {
		outcomes = append(outcomes, Outcome{Transport: sender.Name(), Err: sender.Send(ctx, msg)})
	}
	return outcomes, nil
}

package chat

import "context"

// Message is the Slack incoming-webhook payload shape. Attachments are only
// filled when rich attachments are enabled.
type Message struct {
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type Attachment struct {
	Title     string  `json:"title"`
	TitleLink string  `json:"title_link,omitempty"`
	Fields    []Field `json:"fields,omitempty"`
}

type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Sender delivers a rendered message over one transport.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

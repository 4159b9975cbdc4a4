package transport

import "context"

type Update struct {
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

// ChatTarget addresses a shared chat (report channel, fallback channel).
type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Adapter abstracts the chat platform. Recipient ids are strings end to
// end; the adapter parses them into whatever the platform needs.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	// SendText delivers to a shared chat.
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)

	// SendDirect delivers a private message to a single recipient.
	// Failures carry an ErrorKind so callers can branch on unreachable
	// versus transient versus permanent.
	SendDirect(ctx context.Context, recipientID string, text string, opt *SendOptions) (MessageRef, error)

	// Mention renders a platform mention for the given recipient id, used
	// to annotate fallback deliveries.
	Mention(recipientID string) string
}

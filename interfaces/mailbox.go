package interfaces

import (
	"context"
	"time"
)

// MailboxClient is one live connection to a remote mailbox. Close must always
// be called, success or failure.
type MailboxClient interface {
	// FetchNewEmails returns all messages with a UID strictly greater than
	// sinceUID, in provider order. An empty result is not an error.
	FetchNewEmails(ctx context.Context, sinceUID uint32) ([]*EmailMessage, error)
	MarkSeen(ctx context.Context, uid uint32) error
	Close()
}

// MailboxClientFactory opens a connection for the given mailbox credentials.
type MailboxClientFactory func(ctx context.Context, username, password string) (MailboxClient, error)

type EmailMessage struct {
	MessageID     string
	UID           uint32
	Subject       string
	From          string
	To            []string
	Cc            []string
	Date          time.Time
	BodyText      string
	BodyHTML      string
	HasAttachment bool
}

// Package imap implements the mailbox client against Zoho-style IMAP servers
// using emersion/go-imap. One client instance is one live connection; the sync
// engine opens a connection per run and always closes it.
package imap

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/jhillyerd/enmime"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/noyaclicks-jpg/crmhost/config"
	"github.com/noyaclicks-jpg/crmhost/interfaces"
	"github.com/noyaclicks-jpg/crmhost/internal/logger"
	"github.com/noyaclicks-jpg/crmhost/internal/tracing"
	"github.com/noyaclicks-jpg/crmhost/internal/utils"
)

const (
	connectTimeout = 30 * time.Second
	fetchTimeout   = 60 * time.Second
	logoutTimeout  = 5 * time.Second
)

type mailboxClient struct {
	c        *client.Client
	log      logger.Logger
	username string
}

// NewMailboxClientFactory returns a factory that dials the configured IMAP
// host over TLS, logs in and selects INBOX read-only. Credentials come in per
// call; the factory holds none.
func NewMailboxClientFactory(cfg *config.ImapConfig, log logger.Logger) interfaces.MailboxClientFactory {
	return func(ctx context.Context, username, password string) (interfaces.MailboxClient, error) {
		return connect(ctx, cfg, log, username, password)
	}
}

func connect(ctx context.Context, cfg *config.ImapConfig, log logger.Logger, username, password string) (interfaces.MailboxClient, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "MailboxClient.Connect")
	defer span.Finish()
	span.SetTag("server", cfg.Host)
	span.SetTag("port", cfg.Port)
	span.SetTag("username", username)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: connectTimeout,
	}
	tlsConfig := &tls.Config{
		ServerName: cfg.Host,
	}

	c, err := client.DialWithDialerTLS(dialer, serverAddr, tlsConfig)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "failed to connect to %s", serverAddr)
	}

	c.Timeout = connectTimeout
	if err := c.Login(username, password); err != nil {
		c.Logout()
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "failed to login as %s", username)
	}

	// read-only select so fetching never touches flags; MarkSeen
	// re-selects read-write when it has to store
	if _, err := c.Select("INBOX", true); err != nil {
		c.Logout()
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to select INBOX")
	}
	c.Timeout = 0

	return &mailboxClient{c: c, log: log, username: username}, nil
}

func (m *mailboxClient) FetchNewEmails(ctx context.Context, sinceUID uint32) ([]*interfaces.EmailMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "MailboxClient.FetchNewEmails")
	defer span.Finish()
	span.SetTag("username", m.username)
	span.LogKV("sinceUid", sinceUID)

	uidRange := new(goimap.SeqSet)
	uidRange.AddRange(sinceUID+1, 0)

	criteria := goimap.NewSearchCriteria()
	criteria.Uid = uidRange

	uids, err := m.c.UidSearch(criteria)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "uid search failed")
	}

	// servers answer an out-of-range "n:*" with the highest existing message,
	// so already-seen UIDs have to be filtered out again here
	newUIDs := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		if uid > sinceUID {
			newUIDs = append(newUIDs, uid)
		}
	}
	span.LogFields(tracingLog.Int("result.newUids", len(newUIDs)))
	if len(newUIDs) == 0 {
		return nil, nil
	}

	seqSet := new(goimap.SeqSet)
	for _, uid := range newUIDs {
		seqSet.AddNum(uid)
	}

	items := []goimap.FetchItem{
		goimap.FetchEnvelope,
		goimap.FetchFlags,
		goimap.FetchUid,
		"BODY.PEEK[]",
	}

	messages := make(chan *goimap.Message, len(newUIDs))
	done := make(chan error, 1)

	m.c.Timeout = fetchTimeout
	defer func() { m.c.Timeout = 0 }()

	go func() {
		done <- m.c.UidFetch(seqSet, items, messages)
	}()

	var result []*interfaces.EmailMessage
	for msg := range messages {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		parsed := m.parseMessage(msg)
		if parsed != nil {
			result = append(result, parsed)
		}
	}

	if err := <-done; err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "uid fetch failed")
	}

	span.LogFields(tracingLog.Int("result.fetched", len(result)))
	return result, nil
}

func (m *mailboxClient) parseMessage(msg *goimap.Message) *interfaces.EmailMessage {
	if msg == nil || msg.Envelope == nil {
		return nil
	}

	email := &interfaces.EmailMessage{
		UID:     msg.Uid,
		Subject: msg.Envelope.Subject,
		Date:    msg.Envelope.Date,
		From:    firstAddress(msg.Envelope.From),
		To:      addressList(msg.Envelope.To),
		Cc:      addressList(msg.Envelope.Cc),
	}

	email.MessageID = utils.NormalizeMessageID(msg.Envelope.MessageId)
	if email.MessageID == "" {
		// some providers omit Message-ID; derive a stable substitute so the
		// dedup key still holds across runs
		email.MessageID = utils.GenerateFallbackMessageID(email.From, email.Date, email.Subject)
	}

	if raw := extractFullMessage(msg); len(raw) > 0 {
		env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
		if err != nil {
			m.log.Warnf("failed to parse message %s: %v", email.MessageID, err)
		} else {
			email.BodyText = env.Text
			email.BodyHTML = env.HTML
			email.HasAttachment = len(env.Attachments) > 0
		}
	}

	return email
}

// extractFullMessage pulls the entire RFC822 body out of the fetch response.
func extractFullMessage(msg *goimap.Message) []byte {
	for section, literal := range msg.Body {
		if section.Peek {
			continue
		}
		if len(section.Path) == 0 && section.Specifier == goimap.EntireSpecifier {
			data, err := io.ReadAll(literal)
			if err == nil {
				return data
			}
		}
	}
	return nil
}

func (m *mailboxClient) MarkSeen(ctx context.Context, uid uint32) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "MailboxClient.MarkSeen")
	defer span.Finish()
	span.LogKV("uid", uid)

	// the connection selects INBOX read-only, flag changes need a
	// read-write select first
	if _, err := m.c.Select("INBOX", false); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to re-select INBOX read-write")
	}

	seqSet := new(goimap.SeqSet)
	seqSet.AddNum(uid)

	item := goimap.FormatFlagsOp(goimap.AddFlags, true)
	flags := []interface{}{goimap.SeenFlag}

	if err := m.c.UidStore(seqSet, item, flags, nil); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "uid store failed")
	}
	return nil
}

// Close logs out with a bound so a wedged server cannot hold the sync run.
func (m *mailboxClient) Close() {
	done := make(chan error, 1)
	go func() {
		done <- m.c.Logout()
	}()

	select {
	case <-done:
	case <-time.After(logoutTimeout):
		m.log.Warnf("imap logout timed out for %s, dropping connection", m.username)
	}
}

func firstAddress(addrs []*goimap.Address) string {
	if len(addrs) == 0 {
		return ""
	}
	return addrs[0].Address()
}

func addressList(addrs []*goimap.Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Address())
	}
	return out
}

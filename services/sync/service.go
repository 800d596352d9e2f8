// Package sync implements the incremental mailbox sync engine. Each run pulls
// messages with a UID above the stored watermark, inserts them exactly once
// and advances the watermark monotonically.
package sync

import (
	"context"
	"strings"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/noyaclicks-jpg/crmhost/interfaces"
	"github.com/noyaclicks-jpg/crmhost/internal/enum"
	er "github.com/noyaclicks-jpg/crmhost/internal/errors"
	"github.com/noyaclicks-jpg/crmhost/internal/logger"
	"github.com/noyaclicks-jpg/crmhost/internal/models"
	"github.com/noyaclicks-jpg/crmhost/internal/repository"
	"github.com/noyaclicks-jpg/crmhost/internal/tracing"
	"github.com/noyaclicks-jpg/crmhost/internal/utils"
)

type syncService struct {
	repositories  *repository.Repositories
	clientFactory interfaces.MailboxClientFactory
	events        interfaces.EventPublisher
	log           logger.Logger
}

func NewSyncService(
	repositories *repository.Repositories,
	clientFactory interfaces.MailboxClientFactory,
	events interfaces.EventPublisher,
	log logger.Logger,
) interfaces.SyncService {
	return &syncService{
		repositories:  repositories,
		clientFactory: clientFactory,
		events:        events,
		log:           log,
	}
}

// SyncMailbox runs one incremental sync pass for the organization's mailbox.
//
// The watermark only ever advances; it reflects the highest UID that was
// either inserted or recognized as a duplicate. A message whose insert fails
// does not move the watermark past itself, so the next run retries it. The
// message-id dedup makes that retry safe for everything already stored.
func (s *syncService) SyncMailbox(ctx context.Context, organizationID string, credential *models.ProviderCredential) (*interfaces.SyncReport, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SyncService.SyncMailbox")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagOrganization(span, organizationID)

	if credential == nil || credential.Username == "" || credential.Password == "" {
		tracing.TraceErr(span, er.ErrCredentialsMissing)
		return nil, er.ErrCredentialsMissing
	}
	span.SetTag("mailbox", credential.Username)

	state, err := s.claimSyncState(ctx, organizationID, credential)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	report, runErr := s.runSync(ctx, organizationID, credential, state)

	// the completion update is conditional on the row still being in
	// syncing, so a run that lost its claim cannot clobber a newer one
	finalUID := state.LastUID
	status := enum.SyncStatusSuccess
	errMsg := ""
	if runErr != nil {
		status = enum.SyncStatusError
		errMsg = runErr.Error()
	} else if report.LastUID > finalUID {
		finalUID = report.LastUID
	}

	if completeErr := s.repositories.SyncStateRepository.CompleteSync(ctx, state.ID, finalUID, status, errMsg); completeErr != nil {
		s.log.Errorf("failed to finalize sync state %s: %v", state.ID, completeErr)
		if runErr == nil {
			runErr = completeErr
		}
	}

	if runErr != nil {
		tracing.TraceErr(span, runErr)
		return nil, runErr
	}

	span.LogFields(
		tracingLog.Int("result.fetched", report.Fetched),
		tracingLog.Int("result.inserted", report.Inserted),
		tracingLog.Int("result.duplicates", report.Duplicates),
		tracingLog.Int("result.failed", report.Failed),
		tracingLog.Uint32("result.lastUid", finalUID),
	)
	report.LastUID = finalUID
	return report, nil
}

// claimSyncState lazily creates the state row and transitions it to syncing.
// A refused claim means another run is in flight for the same mailbox.
func (s *syncService) claimSyncState(ctx context.Context, organizationID string, credential *models.ProviderCredential) (*models.SyncState, error) {
	state, err := s.repositories.SyncStateRepository.GetByMailbox(ctx, organizationID, credential.Username, enum.ProviderServiceZohoImap)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = &models.SyncState{
			OrganizationID: organizationID,
			EmailAddress:   credential.Username,
			Provider:       enum.ProviderServiceZohoImap,
			LastUID:        0,
			SyncStatus:     enum.SyncStatusIdle,
		}
		if err := s.repositories.SyncStateRepository.Create(ctx, state); err != nil {
			return nil, err
		}
	}

	claimed, err := s.repositories.SyncStateRepository.BeginSync(ctx, state.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, er.ErrSyncInProgress
	}
	return state, nil
}

func (s *syncService) runSync(ctx context.Context, organizationID string, credential *models.ProviderCredential, state *models.SyncState) (*interfaces.SyncReport, error) {
	report := &interfaces.SyncReport{LastUID: state.LastUID}

	client, err := s.clientFactory(ctx, credential.Username, credential.Password)
	if err != nil {
		return report, errors.Wrap(err, "failed to open mailbox connection")
	}
	defer client.Close()

	messages, err := client.FetchNewEmails(ctx, state.LastUID)
	if err != nil {
		return report, errors.Wrap(err, "failed to fetch new messages")
	}
	report.Fetched = len(messages)
	if len(messages) == 0 {
		return report, nil
	}

	// cache the organization's domains once per run for recipient linking
	domains, err := s.repositories.DomainRepository.ListByOrganization(ctx, organizationID)
	if err != nil {
		return report, errors.Wrap(err, "failed to load domains for linking")
	}
	domainsByName := make(map[string]string, len(domains))
	for i := range domains {
		domainsByName[strings.ToLower(domains[i].DomainName)] = domains[i].ID
	}

	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		s.processMessage(ctx, organizationID, msg, domainsByName, report)
	}

	return report, nil
}

// processMessage handles one fetched message. Insert failures are contained
// here; they mark the report but never abort the batch.
func (s *syncService) processMessage(ctx context.Context, organizationID string, msg *interfaces.EmailMessage, domainsByName map[string]string, report *interfaces.SyncReport) {
	exists, err := s.repositories.EmailRepository.ExistsByMessageID(ctx, organizationID, msg.MessageID)
	if err != nil {
		s.log.Errorf("dedup lookup failed for message %s: %v", msg.MessageID, err)
		report.Failed++
		return
	}
	if exists {
		report.Duplicates++
		if msg.UID > report.LastUID {
			report.LastUID = msg.UID
		}
		return
	}

	email := &models.Email{
		OrganizationID: organizationID,
		MessageID:      msg.MessageID,
		ImapUID:        msg.UID,
		Subject:        msg.Subject,
		FromAddress:    msg.From,
		ToAddresses:    msg.To,
		CcAddresses:    msg.Cc,
		BodyText:       msg.BodyText,
		BodyHTML:       msg.BodyHTML,
		HasAttachment:  msg.HasAttachment,
		ReceivedAt:     utils.Ptr(msg.Date),
	}
	if err := s.repositories.EmailRepository.Create(ctx, email); err != nil {
		s.log.Errorf("failed to store message %s: %v", msg.MessageID, err)
		report.Failed++
		return
	}
	report.Inserted++
	if msg.UID > report.LastUID {
		report.LastUID = msg.UID
	}

	s.linkRecipientDomains(ctx, email, msg, domainsByName)

	if s.events != nil {
		if err := s.events.PublishEmailReceived(ctx, organizationID, email.ID, email.MessageID); err != nil {
			s.log.Warnf("failed to publish email received event for %s: %v", email.ID, err)
		}
	}
}

// linkRecipientDomains connects the email to every locally known domain that
// appears in a recipient address. Unknown domains are simply not linked.
func (s *syncService) linkRecipientDomains(ctx context.Context, email *models.Email, msg *interfaces.EmailMessage, domainsByName map[string]string) {
	recipients := append(append([]string{}, msg.To...), msg.Cc...)
	linked := make(map[string]struct{})

	for _, recipient := range recipients {
		hostname := utils.ExtractDomainFromEmail(recipient)
		if hostname == "" {
			continue
		}
		domainID, ok := domainsByName[hostname]
		if !ok {
			continue
		}
		if _, done := linked[domainID]; done {
			continue
		}
		linked[domainID] = struct{}{}

		if err := s.repositories.EmailRepository.LinkDomain(ctx, email.ID, domainID); err != nil {
			s.log.Warnf("failed to link email %s to domain %s: %v", email.ID, domainID, err)
		}
	}
}

// Run is the batch driver: one sequential pass over every organization with
// mailbox credentials. A failing mailbox is logged and skipped.
func (s *syncService) Run(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SyncService.Run")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	credentials, err := s.repositories.CredentialRepository.ListByService(ctx, enum.ProviderServiceZohoImap)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	span.LogFields(tracingLog.Int("mailboxes", len(credentials)))

	for i := range credentials {
		credential := &credentials[i]
		if err := ctx.Err(); err != nil {
			tracing.TraceErr(span, err)
			return err
		}

		report, err := s.SyncMailbox(ctx, credential.OrganizationID, credential)
		if err != nil {
			if errors.Is(err, er.ErrSyncInProgress) {
				s.log.Infof("mailbox %s already syncing, skipped", credential.Username)
				continue
			}
			s.log.Errorf("mailbox sync failed for org %s: %v", credential.OrganizationID, err)
			continue
		}
		s.log.Infof("mailbox %s synced: fetched=%d inserted=%d duplicates=%d failed=%d lastUid=%d",
			credential.Username, report.Fetched, report.Inserted, report.Duplicates, report.Failed, report.LastUID)
	}

	return nil
}

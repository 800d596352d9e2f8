package domain

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

// aliasService manages forwarding aliases under a provisioned domain. The
// remote call always happens first; the local row mirrors what the provider
// accepted, keyed by the provider's alias id.
type aliasService struct {
	repositories *repository.Repositories
	forwarding   interfaces.ForwardingProviderService
	log          logger.Logger
}

func NewAliasService(repositories *repository.Repositories, forwarding interfaces.ForwardingProviderService, log logger.Logger) interfaces.AliasService {
	return &aliasService{
		repositories: repositories,
		forwarding:   forwarding,
		log:          log,
	}
}

func (s *aliasService) forwardingToken(ctx context.Context, organizationID string) (string, error) {
	cred, err := s.repositories.CredentialRepository.GetByOrgAndService(ctx, organizationID, enum.ProviderServiceForwardEmail)
	if err != nil {
		return "", err
	}
	if cred == nil || cred.APIToken == "" {
		return "", er.ErrCredentialsMissing
	}
	return cred.APIToken, nil
}

// ownedDomain resolves the alias's domain and enforces organization scoping.
func (s *aliasService) ownedDomain(ctx context.Context, organizationID, domainID string) (*models.Domain, error) {
	domain, err := s.repositories.DomainRepository.GetByID(ctx, organizationID, domainID)
	if err != nil {
		return nil, err
	}
	if domain == nil {
		return nil, er.ErrDomainNotFound
	}
	return domain, nil
}

func (s *aliasService) CreateAlias(ctx context.Context, domainID, aliasName string, recipients []string, description string) (*models.EmailAlias, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AliasService.CreateAlias")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("request.domainId", domainID, "request.alias", aliasName)

	if err := utils.ValidateOrganization(ctx); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	organizationID := utils.GetOrganizationIDFromContext(ctx)

	aliasName = strings.ToLower(strings.TrimSpace(aliasName))
	if aliasName == "" {
		err := errors.New("alias name is required")
		tracing.TraceErr(span, err)
		return nil, err
	}
	recipients = utils.UniqueEmails(recipients)
	if len(recipients) == 0 {
		return nil, er.ErrRecipientsRequired
	}

	domain, err := s.ownedDomain(ctx, organizationID, domainID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	token, err := s.forwardingToken(ctx, organizationID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	created, err := s.forwarding.CreateAlias(ctx, token, domain.DomainName, interfaces.AliasRequest{
		Name:        aliasName,
		Recipients:  recipients,
		Description: description,
	})
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "remote alias creation failed"))
		return nil, err
	}

	alias := &models.EmailAlias{
		DomainID:        domain.ID,
		AliasName:       aliasName,
		Recipients:      recipients,
		Description:     description,
		IsEnabled:       created.IsEnabled,
		ProviderAliasID: created.ID,
	}
	if err := s.repositories.AliasRepository.Create(ctx, alias); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	s.writeAuditEntry(ctx, organizationID, "alias.create", alias.ID, models.JSONMap{
		"alias":  aliasName,
		"domain": domain.DomainName,
	})

	span.LogFields(tracingLog.String("result.aliasId", alias.ID))
	return alias, nil
}

func (s *aliasService) UpdateAlias(ctx context.Context, aliasID string, recipients []string, description string, isEnabled *bool) (*models.EmailAlias, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AliasService.UpdateAlias")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, aliasID)

	if err := utils.ValidateOrganization(ctx); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	organizationID := utils.GetOrganizationIDFromContext(ctx)

	alias, err := s.repositories.AliasRepository.GetByID(ctx, aliasID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if alias == nil {
		return nil, er.ErrAliasNotFound
	}

	domain, err := s.ownedDomain(ctx, organizationID, alias.DomainID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	recipients = utils.UniqueEmails(recipients)
	if len(recipients) == 0 {
		return nil, er.ErrRecipientsRequired
	}

	token, err := s.forwardingToken(ctx, organizationID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	updated, err := s.forwarding.UpdateAlias(ctx, token, domain.DomainName, alias.ProviderAliasID, interfaces.AliasRequest{
		Name:        alias.AliasName,
		Recipients:  recipients,
		Description: description,
		IsEnabled:   isEnabled,
	})
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "remote alias update failed"))
		return nil, err
	}

	alias.Recipients = recipients
	alias.Description = description
	alias.IsEnabled = updated.IsEnabled
	if err := s.repositories.AliasRepository.Update(ctx, alias); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	return alias, nil
}

func (s *aliasService) DeleteAlias(ctx context.Context, aliasID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AliasService.DeleteAlias")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, aliasID)

	if err := utils.ValidateOrganization(ctx); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	organizationID := utils.GetOrganizationIDFromContext(ctx)

	alias, err := s.repositories.AliasRepository.GetByID(ctx, aliasID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if alias == nil {
		return er.ErrAliasNotFound
	}

	domain, err := s.ownedDomain(ctx, organizationID, alias.DomainID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	token, err := s.forwardingToken(ctx, organizationID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if err := s.forwarding.DeleteAlias(ctx, token, domain.DomainName, alias.ProviderAliasID); err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "remote alias deletion failed"))
		return err
	}

	if err := s.repositories.AliasRepository.Delete(ctx, alias.ID); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	s.writeAuditEntry(ctx, organizationID, "alias.delete", alias.ID, models.JSONMap{
		"alias":  alias.AliasName,
		"domain": domain.DomainName,
	})

	return nil
}

func (s *aliasService) ListAliases(ctx context.Context, domainID string) ([]models.EmailAlias, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AliasService.ListAliases")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("request.domainId", domainID)

	if err := utils.ValidateOrganization(ctx); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	organizationID := utils.GetOrganizationIDFromContext(ctx)

	domain, err := s.ownedDomain(ctx, organizationID, domainID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	aliases, err := s.repositories.AliasRepository.ListByDomain(ctx, domain.ID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return aliases, nil
}

func (s *aliasService) writeAuditEntry(ctx context.Context, organizationID, action, resourceID string, details models.JSONMap) {
	entry := &models.AuditLogEntry{
		OrganizationID: organizationID,
		UserID:         utils.GetUserIDFromContext(ctx),
		Action:         action,
		ResourceType:   "alias",
		ResourceID:     resourceID,
		Details:        details,
	}
	if err := s.repositories.AuditLogRepository.Create(ctx, entry); err != nil {
		s.log.Warnf("failed to write audit entry %s for %s: %v", action, resourceID, err)
	}
}

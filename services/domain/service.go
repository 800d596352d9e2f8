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
	"github.com/noyaclicks-jpg/crmhost/services/gateway"
)

// domainService drives the domain lifecycle across the DNS-hosting and
// mail-forwarding providers. A domain is active only while both providers
// report it verified; everything in between stays pending.
type domainService struct {
	repositories *repository.Repositories
	dns          interfaces.DNSProviderService
	forwarding   interfaces.ForwardingProviderService
	events       interfaces.EventPublisher
	log          logger.Logger
}

func NewDomainService(
	repositories *repository.Repositories,
	dns interfaces.DNSProviderService,
	forwarding interfaces.ForwardingProviderService,
	events interfaces.EventPublisher,
	log logger.Logger,
) interfaces.DomainService {
	return &domainService{
		repositories: repositories,
		dns:          dns,
		forwarding:   forwarding,
		events:       events,
		log:          log,
	}
}

// providerTokens loads both provider credentials for the organization.
// Tokens are read fresh on every operation so a rotated credential takes
// effect immediately.
func (s *domainService) providerTokens(ctx context.Context, organizationID string) (dnsToken, forwardingToken string, err error) {
	dnsCred, err := s.repositories.CredentialRepository.GetByOrgAndService(ctx, organizationID, enum.ProviderServiceNetlify)
	if err != nil {
		return "", "", err
	}
	forwardingCred, err := s.repositories.CredentialRepository.GetByOrgAndService(ctx, organizationID, enum.ProviderServiceForwardEmail)
	if err != nil {
		return "", "", err
	}
	if dnsCred == nil || dnsCred.APIToken == "" || forwardingCred == nil || forwardingCred.APIToken == "" {
		return "", "", er.ErrCredentialsMissing
	}
	return dnsCred.APIToken, forwardingCred.APIToken, nil
}

func (s *domainService) CreateDomain(ctx context.Context, domainName string) (*models.Domain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.CreateDomain")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("request.domain", domainName)

	if err := utils.ValidateOrganization(ctx); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	organizationID := utils.GetOrganizationIDFromContext(ctx)

	domainName = strings.ToLower(strings.TrimSpace(domainName))
	if domainName == "" {
		err := errors.New("domain name is required")
		tracing.TraceErr(span, err)
		return nil, err
	}

	existing, err := s.repositories.DomainRepository.GetByName(ctx, organizationID, domainName)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if existing != nil {
		return nil, er.ErrDomainExists
	}

	// both credentials must be present before any remote call is made
	dnsToken, forwardingToken, err := s.providerTokens(ctx, organizationID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	// hostnames are globally unique at the provider, so look up before
	// creating to avoid a duplicate-zone conflict from a stale local view
	zone, err := s.dns.GetZoneByName(ctx, dnsToken, domainName)
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "dns zone lookup failed"))
		return nil, err
	}
	if zone == nil {
		zone, err = s.dns.CreateZone(ctx, dnsToken, domainName)
		if err != nil {
			tracing.TraceErr(span, errors.Wrap(err, "dns zone creation failed"))
			return nil, err
		}
	}

	// forwarding registration is idempotent: a concurrent or earlier partial
	// run may have registered the hostname already
	_, err = s.forwarding.CreateDomain(ctx, forwardingToken, domainName)
	if err != nil && !gateway.IsConflict(err) {
		tracing.TraceErr(span, errors.Wrap(err, "forwarding registration failed"))
		return nil, err
	}

	// the local row exists only once both remote counterparts do
	domain := &models.Domain{
		OrganizationID: organizationID,
		DomainName:     domainName,
		DNSZoneID:      utils.Ptr(zone.ID),
		Nameservers:    zone.DNSServers,
		DNSConfigured:  false,
		Status:         enum.DomainStatusPending,
	}
	if err := s.repositories.DomainRepository.Create(ctx, domain); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	s.writeAudit(ctx, organizationID, "domain.create", "domain", domain.ID, models.JSONMap{
		"domainName": domainName,
		"dnsZoneId":  zone.ID,
	})

	span.LogFields(tracingLog.String("result.domainId", domain.ID))
	return domain, nil
}

func (s *domainService) GetDomain(ctx context.Context, domainID string) (*models.Domain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.GetDomain")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, domainID)

	if err := utils.ValidateOrganization(ctx); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	organizationID := utils.GetOrganizationIDFromContext(ctx)

	domain, err := s.repositories.DomainRepository.GetByID(ctx, organizationID, domainID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if domain == nil {
		return nil, er.ErrDomainNotFound
	}
	return domain, nil
}

func (s *domainService) ListDomains(ctx context.Context) ([]models.Domain, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.ListDomains")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if err := utils.ValidateOrganization(ctx); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	organizationID := utils.GetOrganizationIDFromContext(ctx)

	domains, err := s.repositories.DomainRepository.ListByOrganization(ctx, organizationID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return domains, nil
}

// VerifyDomain re-reads both providers and settles the local row. The verdict
// is binary per provider; a domain that is not yet verified stays pending,
// it is never marked error just for being slow to propagate.
func (s *domainService) VerifyDomain(ctx context.Context, domainID string) (*interfaces.VerificationResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.VerifyDomain")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, domainID)

	if err := utils.ValidateOrganization(ctx); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	organizationID := utils.GetOrganizationIDFromContext(ctx)

	domain, err := s.repositories.DomainRepository.GetByID(ctx, organizationID, domainID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if domain == nil {
		return nil, er.ErrDomainNotFound
	}

	dnsToken, forwardingToken, err := s.providerTokens(ctx, organizationID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	dnsVerified, err := s.checkDNSZone(ctx, dnsToken, domain)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	forwardingVerified, err := s.checkForwarding(ctx, forwardingToken, domain.DomainName)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	result := &interfaces.VerificationResult{
		Verified:           dnsVerified && forwardingVerified,
		DNSVerified:        dnsVerified,
		ForwardingVerified: forwardingVerified,
	}

	status := enum.DomainStatusPending
	if result.Verified {
		status = enum.DomainStatusActive
	}
	if err := s.repositories.DomainRepository.UpdateVerification(ctx, domain.ID, status, result.Verified); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if status != domain.Status {
		s.publishStatusChange(ctx, organizationID, domain.ID, status)
	}

	span.LogFields(
		tracingLog.Bool("result.verified", result.Verified),
		tracingLog.Bool("result.dnsVerified", result.DNSVerified),
		tracingLog.Bool("result.forwardingVerified", result.ForwardingVerified),
	)
	return result, nil
}

// checkDNSZone is an existence check on the persisted zone id, not a full
// DNS correctness check.
func (s *domainService) checkDNSZone(ctx context.Context, dnsToken string, domain *models.Domain) (bool, error) {
	if domain.DNSZoneID == nil || *domain.DNSZoneID == "" {
		return false, nil
	}
	zone, err := s.dns.GetZoneByID(ctx, dnsToken, *domain.DNSZoneID)
	if err != nil {
		if gateway.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return zone != nil, nil
}

// checkForwarding reads the verification flag, self-healing a missing
// registration. Not-found followed by already-exists on re-register is a
// benign race with another operator, resolved by re-reading.
func (s *domainService) checkForwarding(ctx context.Context, forwardingToken, domainName string) (bool, error) {
	fd, err := s.forwarding.GetDomain(ctx, forwardingToken, domainName)
	if err == nil {
		return fd.IsVerified, nil
	}
	if !gateway.IsNotFound(err) {
		return false, err
	}

	s.log.Infof("domain %s missing at forwarding provider, re-registering", domainName)
	if _, err := s.forwarding.CreateDomain(ctx, forwardingToken, domainName); err != nil && !gateway.IsConflict(err) {
		return false, err
	}

	fd, err = s.forwarding.GetDomain(ctx, forwardingToken, domainName)
	if err != nil {
		return false, err
	}
	return fd.IsVerified, nil
}

// SyncFromProvider reconciles every non-active domain against the forwarding
// provider's verification flag. One domain's failed lookup is logged and
// skipped so the rest of the batch still converges.
func (s *domainService) SyncFromProvider(ctx context.Context) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.SyncFromProvider")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if err := utils.ValidateOrganization(ctx); err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	organizationID := utils.GetOrganizationIDFromContext(ctx)

	_, forwardingToken, err := s.providerTokens(ctx, organizationID)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}

	domains, err := s.repositories.DomainRepository.ListNotActive(ctx, organizationID)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}

	synced := 0
	for i := range domains {
		domain := &domains[i]

		fd, err := s.forwarding.GetDomain(ctx, forwardingToken, domain.DomainName)
		if err != nil {
			s.log.Warnf("skipping domain %s during reconciliation: %v", domain.DomainName, err)
			span.LogFields(tracingLog.String("skipped", domain.DomainName))
			continue
		}
		if !fd.IsVerified {
			continue
		}

		if err := s.repositories.DomainRepository.UpdateVerification(ctx, domain.ID, enum.DomainStatusActive, true); err != nil {
			s.log.Warnf("failed to activate domain %s: %v", domain.DomainName, err)
			continue
		}
		s.publishStatusChange(ctx, organizationID, domain.ID, enum.DomainStatusActive)
		synced++
	}

	span.LogFields(tracingLog.Int("result.synced", synced))
	return synced, nil
}

// DeleteDomain removes the remote zone best-effort, then the local record. An
// orphaned remote zone is preferable to a local record that cannot be deleted.
func (s *domainService) DeleteDomain(ctx context.Context, domainID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DomainService.DeleteDomain")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, domainID)

	if err := utils.ValidateOrganization(ctx); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	organizationID := utils.GetOrganizationIDFromContext(ctx)

	domain, err := s.repositories.DomainRepository.GetByID(ctx, organizationID, domainID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if domain == nil {
		return er.ErrDomainNotFound
	}

	if domain.DNSZoneID != nil && *domain.DNSZoneID != "" {
		dnsCred, credErr := s.repositories.CredentialRepository.GetByOrgAndService(ctx, organizationID, enum.ProviderServiceNetlify)
		if credErr == nil && dnsCred != nil && dnsCred.APIToken != "" {
			if err := s.dns.DeleteZone(ctx, dnsCred.APIToken, *domain.DNSZoneID); err != nil {
				s.log.Warnf("failed to delete remote zone %s for domain %s: %v", *domain.DNSZoneID, domain.DomainName, err)
			}
		}
	}

	if err := s.repositories.DomainRepository.Delete(ctx, organizationID, domain.ID); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	s.writeAudit(ctx, organizationID, "domain.delete", "domain", domain.ID, models.JSONMap{
		"domainName": domain.DomainName,
	})

	return nil
}

func (s *domainService) publishStatusChange(ctx context.Context, organizationID, domainID string, status enum.DomainStatus) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishDomainStatusChanged(ctx, organizationID, domainID, status); err != nil {
		s.log.Warnf("failed to publish domain status change for %s: %v", domainID, err)
	}
}

func (s *domainService) writeAudit(ctx context.Context, organizationID, action, resourceType, resourceID string, details models.JSONMap) {
	entry := &models.AuditLogEntry{
		OrganizationID: organizationID,
		UserID:         utils.GetUserIDFromContext(ctx),
		Action:         action,
		ResourceType:   resourceType,
		ResourceID:     resourceID,
		Details:        details,
	}
	if err := s.repositories.AuditLogRepository.Create(ctx, entry); err != nil {
		s.log.Warnf("failed to write audit entry %s for %s: %v", action, resourceID, err)
	}
}

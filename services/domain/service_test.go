package domain

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noyaclicks-jpg/crmhost/interfaces"
	"github.com/noyaclicks-jpg/crmhost/internal/enum"
	er "github.com/noyaclicks-jpg/crmhost/internal/errors"
	"github.com/noyaclicks-jpg/crmhost/internal/logger"
	"github.com/noyaclicks-jpg/crmhost/internal/models"
	"github.com/noyaclicks-jpg/crmhost/internal/repository"
	"github.com/noyaclicks-jpg/crmhost/internal/utils"
	"github.com/noyaclicks-jpg/crmhost/services/gateway"
)

const testOrgID = "org_test1"

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func orgContext() context.Context {
	return utils.WithCustomContext(context.Background(), &utils.CustomContext{
		AppSource:      "test",
		OrganizationID: testOrgID,
		UserID:         "user_test1",
	})
}

// in-memory repository fakes

type fakeDomainRepo struct {
	mu      sync.Mutex
	domains map[string]*models.Domain
}

func newFakeDomainRepo() *fakeDomainRepo {
	return &fakeDomainRepo{domains: make(map[string]*models.Domain)}
}

func (r *fakeDomainRepo) Create(ctx context.Context, domain *models.Domain) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if domain.ID == "" {
		domain.ID = utils.GenerateNanoIDWithPrefix("dom", 21)
	}
	copied := *domain
	r.domains[domain.ID] = &copied
	return nil
}

func (r *fakeDomainRepo) GetByID(ctx context.Context, organizationID, id string) (*models.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	domain, ok := r.domains[id]
	if !ok || domain.OrganizationID != organizationID {
		return nil, nil
	}
	copied := *domain
	return &copied, nil
}

func (r *fakeDomainRepo) GetByName(ctx context.Context, organizationID, domainName string) (*models.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, domain := range r.domains {
		if domain.OrganizationID == organizationID && domain.DomainName == domainName {
			copied := *domain
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeDomainRepo) ListByOrganization(ctx context.Context, organizationID string) ([]models.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Domain
	for _, domain := range r.domains {
		if domain.OrganizationID == organizationID {
			out = append(out, *domain)
		}
	}
	return out, nil
}

func (r *fakeDomainRepo) ListNotActive(ctx context.Context, organizationID string) ([]models.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Domain
	for _, domain := range r.domains {
		if domain.OrganizationID == organizationID && domain.Status != enum.DomainStatusActive {
			out = append(out, *domain)
		}
	}
	return out, nil
}

func (r *fakeDomainRepo) UpdateVerification(ctx context.Context, id string, status enum.DomainStatus, dnsConfigured bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	domain, ok := r.domains[id]
	if !ok {
		return nil
	}
	domain.Status = status
	domain.DNSConfigured = dnsConfigured
	return nil
}

func (r *fakeDomainRepo) Delete(ctx context.Context, organizationID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.domains, id)
	return nil
}

type fakeCredentialRepo struct {
	credentials map[enum.ProviderService]*models.ProviderCredential
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{credentials: map[enum.ProviderService]*models.ProviderCredential{
		enum.ProviderServiceNetlify:      {OrganizationID: testOrgID, Service: enum.ProviderServiceNetlify, APIToken: "nl-token"},
		enum.ProviderServiceForwardEmail: {OrganizationID: testOrgID, Service: enum.ProviderServiceForwardEmail, APIToken: "fe-token"},
	}}
}

func (r *fakeCredentialRepo) GetByOrgAndService(ctx context.Context, organizationID string, service enum.ProviderService) (*models.ProviderCredential, error) {
	cred, ok := r.credentials[service]
	if !ok || cred.OrganizationID != organizationID {
		return nil, nil
	}
	return cred, nil
}

func (r *fakeCredentialRepo) Upsert(ctx context.Context, credential *models.ProviderCredential) error {
	r.credentials[credential.Service] = credential
	return nil
}

func (r *fakeCredentialRepo) ListByService(ctx context.Context, service enum.ProviderService) ([]models.ProviderCredential, error) {
	cred, ok := r.credentials[service]
	if !ok {
		return nil, nil
	}
	return []models.ProviderCredential{*cred}, nil
}

func (r *fakeCredentialRepo) Delete(ctx context.Context, organizationID string, service enum.ProviderService) error {
	delete(r.credentials, service)
	return nil
}

type fakeAuditRepo struct {
	entries []*models.AuditLogEntry
}

func (r *fakeAuditRepo) Create(ctx context.Context, entry *models.AuditLogEntry) error {
	r.entries = append(r.entries, entry)
	return nil
}

// provider fakes

type fakeDNSProvider struct {
	mu          sync.Mutex
	zones       map[string]*interfaces.DNSZone
	createCalls int
	deleteCalls int
}

func newFakeDNSProvider() *fakeDNSProvider {
	return &fakeDNSProvider{zones: make(map[string]*interfaces.DNSZone)}
}

func (p *fakeDNSProvider) GetZoneByName(ctx context.Context, apiToken, domainName string) (*interfaces.DNSZone, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, zone := range p.zones {
		if zone.Name == domainName {
			return zone, nil
		}
	}
	return nil, nil
}

func (p *fakeDNSProvider) CreateZone(ctx context.Context, apiToken, domainName string) (*interfaces.DNSZone, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createCalls++
	zone := &interfaces.DNSZone{
		ID:         "zone-" + domainName,
		Name:       domainName,
		DNSServers: []string{"dns1.p01.nsone.net", "dns2.p01.nsone.net"},
	}
	p.zones[zone.ID] = zone
	return zone, nil
}

func (p *fakeDNSProvider) GetZoneByID(ctx context.Context, apiToken, zoneID string) (*interfaces.DNSZone, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	zone, ok := p.zones[zoneID]
	if !ok {
		return nil, gateway.NewProviderError(enum.ProviderServiceNetlify, http.StatusNotFound, "zone not found")
	}
	return zone, nil
}

func (p *fakeDNSProvider) DeleteZone(ctx context.Context, apiToken, zoneID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleteCalls++
	delete(p.zones, zoneID)
	return nil
}

func (p *fakeDNSProvider) TestConnection(ctx context.Context, apiToken string) error {
	return nil
}

type fakeForwardingProvider struct {
	mu          sync.Mutex
	domains     map[string]*interfaces.ForwardingDomain
	createCalls int
	getErr      error
}

func newFakeForwardingProvider() *fakeForwardingProvider {
	return &fakeForwardingProvider{domains: make(map[string]*interfaces.ForwardingDomain)}
}

func (p *fakeForwardingProvider) GetDomain(ctx context.Context, apiToken, domainName string) (*interfaces.ForwardingDomain, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return nil, p.getErr
	}
	domain, ok := p.domains[domainName]
	if !ok {
		return nil, gateway.NewProviderError(enum.ProviderServiceForwardEmail, http.StatusNotFound, "domain does not exist")
	}
	return domain, nil
}

func (p *fakeForwardingProvider) CreateDomain(ctx context.Context, apiToken, domainName string) (*interfaces.ForwardingDomain, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createCalls++
	if _, ok := p.domains[domainName]; ok {
		return nil, gateway.NewProviderError(enum.ProviderServiceForwardEmail, http.StatusConflict, "domain already exists")
	}
	domain := &interfaces.ForwardingDomain{
		ID:   "fd-" + domainName,
		Name: domainName,
	}
	p.domains[domainName] = domain
	return domain, nil
}

func (p *fakeForwardingProvider) setVerified(domainName string, verified bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if domain, ok := p.domains[domainName]; ok {
		domain.IsVerified = verified
	}
}

func (p *fakeForwardingProvider) ListAliases(ctx context.Context, apiToken, domainName string) ([]interfaces.ForwardingAlias, error) {
	return nil, nil
}

func (p *fakeForwardingProvider) CreateAlias(ctx context.Context, apiToken, domainName string, alias interfaces.AliasRequest) (*interfaces.ForwardingAlias, error) {
	return &interfaces.ForwardingAlias{
		ID:         "fa-" + alias.Name,
		Name:       alias.Name,
		Recipients: alias.Recipients,
		IsEnabled:  true,
	}, nil
}

func (p *fakeForwardingProvider) UpdateAlias(ctx context.Context, apiToken, domainName, aliasID string, alias interfaces.AliasRequest) (*interfaces.ForwardingAlias, error) {
	enabled := true
	if alias.IsEnabled != nil {
		enabled = *alias.IsEnabled
	}
	return &interfaces.ForwardingAlias{
		ID:         aliasID,
		Name:       alias.Name,
		Recipients: alias.Recipients,
		IsEnabled:  enabled,
	}, nil
}

func (p *fakeForwardingProvider) DeleteAlias(ctx context.Context, apiToken, domainName, aliasID string) error {
	return nil
}

func (p *fakeForwardingProvider) TestConnection(ctx context.Context, apiToken string) error {
	return nil
}

type fakeEventPublisher struct {
	mu            sync.Mutex
	statusChanges []enum.DomainStatus
}

func (p *fakeEventPublisher) PublishEmailReceived(ctx context.Context, organizationID, emailID, messageID string) error {
	return nil
}

func (p *fakeEventPublisher) PublishDomainStatusChanged(ctx context.Context, organizationID, domainID string, status enum.DomainStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusChanges = append(p.statusChanges, status)
	return nil
}

func (p *fakeEventPublisher) Close() error {
	return nil
}

type domainFixture struct {
	service    interfaces.DomainService
	domains    *fakeDomainRepo
	creds      *fakeCredentialRepo
	audit      *fakeAuditRepo
	dns        *fakeDNSProvider
	forwarding *fakeForwardingProvider
	events     *fakeEventPublisher
}

func newDomainFixture() *domainFixture {
	f := &domainFixture{
		domains:    newFakeDomainRepo(),
		creds:      newFakeCredentialRepo(),
		audit:      &fakeAuditRepo{},
		dns:        newFakeDNSProvider(),
		forwarding: newFakeForwardingProvider(),
		events:     &fakeEventPublisher{},
	}
	repos := &repository.Repositories{
		DomainRepository:     f.domains,
		CredentialRepository: f.creds,
		AuditLogRepository:   f.audit,
	}
	f.service = NewDomainService(repos, f.dns, f.forwarding, f.events, getLogger())
	return f
}

func TestCreateDomain_ProvisionsBothProviders(t *testing.T) {
	f := newDomainFixture()

	domain, err := f.service.CreateDomain(orgContext(), "Example.COM ")

	require.NoError(t, err)
	assert.Equal(t, "example.com", domain.DomainName)
	assert.Equal(t, enum.DomainStatusPending, domain.Status)
	require.NotNil(t, domain.DNSZoneID)
	assert.Equal(t, "zone-example.com", *domain.DNSZoneID)
	assert.NotEmpty(t, domain.Nameservers)
	assert.False(t, domain.DNSConfigured)
	assert.Equal(t, 1, f.dns.createCalls)
	assert.Equal(t, 1, f.forwarding.createCalls)
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, "domain.create", f.audit.entries[0].Action)
}

func TestCreateDomain_ReusesExistingZone(t *testing.T) {
	f := newDomainFixture()
	existing, err := f.dns.CreateZone(context.Background(), "nl-token", "example.com")
	require.NoError(t, err)
	f.dns.createCalls = 0

	domain, err := f.service.CreateDomain(orgContext(), "example.com")

	require.NoError(t, err)
	assert.Equal(t, 0, f.dns.createCalls)
	require.NotNil(t, domain.DNSZoneID)
	assert.Equal(t, existing.ID, *domain.DNSZoneID)
}

func TestCreateDomain_ForwardingConflictIsBenign(t *testing.T) {
	f := newDomainFixture()
	_, err := f.forwarding.CreateDomain(context.Background(), "fe-token", "example.com")
	require.NoError(t, err)

	domain, err := f.service.CreateDomain(orgContext(), "example.com")

	require.NoError(t, err)
	assert.Equal(t, enum.DomainStatusPending, domain.Status)
}

func TestCreateDomain_DuplicateLocalRowRejected(t *testing.T) {
	f := newDomainFixture()
	_, err := f.service.CreateDomain(orgContext(), "example.com")
	require.NoError(t, err)

	_, err = f.service.CreateDomain(orgContext(), "example.com")

	assert.ErrorIs(t, err, er.ErrDomainExists)
}

func TestCreateDomain_MissingCredentialsBlocksRemoteCalls(t *testing.T) {
	f := newDomainFixture()
	delete(f.creds.credentials, enum.ProviderServiceForwardEmail)

	_, err := f.service.CreateDomain(orgContext(), "example.com")

	assert.ErrorIs(t, err, er.ErrCredentialsMissing)
	assert.Equal(t, 0, f.dns.createCalls)
	assert.Equal(t, 0, f.forwarding.createCalls)
}

func TestCreateDomain_MissingOrganizationRejected(t *testing.T) {
	f := newDomainFixture()

	_, err := f.service.CreateDomain(context.Background(), "example.com")

	assert.Error(t, err)
}

func TestVerifyDomain_BothVerifiedActivates(t *testing.T) {
	f := newDomainFixture()
	domain, err := f.service.CreateDomain(orgContext(), "example.com")
	require.NoError(t, err)
	f.forwarding.setVerified("example.com", true)

	result, err := f.service.VerifyDomain(orgContext(), domain.ID)

	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.True(t, result.DNSVerified)
	assert.True(t, result.ForwardingVerified)

	stored, err := f.domains.GetByID(orgContext(), testOrgID, domain.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.DomainStatusActive, stored.Status)
	assert.True(t, stored.DNSConfigured)
	assert.Equal(t, []enum.DomainStatus{enum.DomainStatusActive}, f.events.statusChanges)
}

func TestVerifyDomain_PendingWhileForwardingUnverified(t *testing.T) {
	f := newDomainFixture()
	domain, err := f.service.CreateDomain(orgContext(), "example.com")
	require.NoError(t, err)

	result, err := f.service.VerifyDomain(orgContext(), domain.ID)

	require.NoError(t, err)
	assert.False(t, result.Verified)
	assert.True(t, result.DNSVerified)
	assert.False(t, result.ForwardingVerified)

	stored, err := f.domains.GetByID(orgContext(), testOrgID, domain.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.DomainStatusPending, stored.Status)
	assert.Empty(t, f.events.statusChanges)
}

func TestVerifyDomain_SelfHealsMissingForwardingRegistration(t *testing.T) {
	f := newDomainFixture()
	domain, err := f.service.CreateDomain(orgContext(), "example.com")
	require.NoError(t, err)

	// the registration vanished out-of-band
	delete(f.forwarding.domains, "example.com")
	f.forwarding.createCalls = 0

	result, err := f.service.VerifyDomain(orgContext(), domain.ID)

	require.NoError(t, err)
	assert.False(t, result.ForwardingVerified)
	assert.Equal(t, 1, f.forwarding.createCalls)
	assert.Contains(t, f.forwarding.domains, "example.com")
}

func TestVerifyDomain_ActiveDomainFallsBackToPending(t *testing.T) {
	f := newDomainFixture()
	domain, err := f.service.CreateDomain(orgContext(), "example.com")
	require.NoError(t, err)
	f.forwarding.setVerified("example.com", true)

	_, err = f.service.VerifyDomain(orgContext(), domain.ID)
	require.NoError(t, err)

	// the provider flag flipped back, the local row must follow
	f.forwarding.setVerified("example.com", false)

	result, err := f.service.VerifyDomain(orgContext(), domain.ID)
	require.NoError(t, err)
	assert.False(t, result.Verified)

	stored, err := f.domains.GetByID(orgContext(), testOrgID, domain.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.DomainStatusPending, stored.Status)
	assert.False(t, stored.DNSConfigured)
	assert.Equal(t, []enum.DomainStatus{enum.DomainStatusActive, enum.DomainStatusPending}, f.events.statusChanges)
}

func TestVerifyDomain_UnknownDomainNotFound(t *testing.T) {
	f := newDomainFixture()

	_, err := f.service.VerifyDomain(orgContext(), "dom_missing")

	assert.ErrorIs(t, err, er.ErrDomainNotFound)
}

func TestSyncFromProvider_ActivatesVerifiedDomains(t *testing.T) {
	f := newDomainFixture()
	first, err := f.service.CreateDomain(orgContext(), "one.com")
	require.NoError(t, err)
	second, err := f.service.CreateDomain(orgContext(), "two.com")
	require.NoError(t, err)
	f.forwarding.setVerified("one.com", true)

	synced, err := f.service.SyncFromProvider(orgContext())

	require.NoError(t, err)
	assert.Equal(t, 1, synced)

	stored, err := f.domains.GetByID(orgContext(), testOrgID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.DomainStatusActive, stored.Status)

	stored, err = f.domains.GetByID(orgContext(), testOrgID, second.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.DomainStatusPending, stored.Status)
}

func TestSyncFromProvider_FailedLookupIsolated(t *testing.T) {
	f := newDomainFixture()
	_, err := f.service.CreateDomain(orgContext(), "one.com")
	require.NoError(t, err)
	f.forwarding.getErr = gateway.NewProviderError(enum.ProviderServiceForwardEmail, http.StatusServiceUnavailable, "down")

	synced, err := f.service.SyncFromProvider(orgContext())

	require.NoError(t, err)
	assert.Equal(t, 0, synced)
}

func TestDeleteDomain_RemovesRemoteZoneAndLocalRow(t *testing.T) {
	f := newDomainFixture()
	domain, err := f.service.CreateDomain(orgContext(), "example.com")
	require.NoError(t, err)

	err = f.service.DeleteDomain(orgContext(), domain.ID)

	require.NoError(t, err)
	assert.Equal(t, 1, f.dns.deleteCalls)
	assert.Empty(t, f.dns.zones)

	stored, err := f.domains.GetByID(orgContext(), testOrgID, domain.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
	require.Len(t, f.audit.entries, 2)
	assert.Equal(t, "domain.delete", f.audit.entries[1].Action)
}

func TestDomainLifecycle_EndToEnd(t *testing.T) {
	f := newDomainFixture()

	domain, err := f.service.CreateDomain(orgContext(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, enum.DomainStatusPending, domain.Status)

	// first check, nothing verified yet at the forwarding provider
	result, err := f.service.VerifyDomain(orgContext(), domain.ID)
	require.NoError(t, err)
	assert.False(t, result.Verified)

	// DNS records propagated, provider flips the flag
	f.forwarding.setVerified("example.com", true)
	result, err = f.service.VerifyDomain(orgContext(), domain.ID)
	require.NoError(t, err)
	assert.True(t, result.Verified)

	listed, err := f.service.ListDomains(orgContext())
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, enum.DomainStatusActive, listed[0].Status)

	err = f.service.DeleteDomain(orgContext(), domain.ID)
	require.NoError(t, err)

	listed, err = f.service.ListDomains(orgContext())
	require.NoError(t, err)
	assert.Empty(t, listed)
}

package interfaces

import (
	"context"

	"github.com/noyaclicks-jpg/crmhost/internal/enum"
	"github.com/noyaclicks-jpg/crmhost/internal/models"
)

type DomainRepository interface {
	Create(ctx context.Context, domain *models.Domain) error
	GetByID(ctx context.Context, organizationID, id string) (*models.Domain, error)
	GetByName(ctx context.Context, organizationID, domainName string) (*models.Domain, error)
	ListByOrganization(ctx context.Context, organizationID string) ([]models.Domain, error)
	ListNotActive(ctx context.Context, organizationID string) ([]models.Domain, error)
	UpdateVerification(ctx context.Context, id string, status enum.DomainStatus, dnsConfigured bool) error
	Delete(ctx context.Context, organizationID, id string) error
}

type CredentialRepository interface {
	GetByOrgAndService(ctx context.Context, organizationID string, service enum.ProviderService) (*models.ProviderCredential, error)
	Upsert(ctx context.Context, credential *models.ProviderCredential) error
	ListByService(ctx context.Context, service enum.ProviderService) ([]models.ProviderCredential, error)
	Delete(ctx context.Context, organizationID string, service enum.ProviderService) error
}

type AliasRepository interface {
	Create(ctx context.Context, alias *models.EmailAlias) error
	GetByID(ctx context.Context, id string) (*models.EmailAlias, error)
	ListByDomain(ctx context.Context, domainID string) ([]models.EmailAlias, error)
	Update(ctx context.Context, alias *models.EmailAlias) error
	Delete(ctx context.Context, id string) error
}

type EmailRepository interface {
	Create(ctx context.Context, email *models.Email) error
	ExistsByMessageID(ctx context.Context, organizationID, messageID string) (bool, error)
	GetByID(ctx context.Context, organizationID, id string) (*models.Email, error)
	ListByOrganization(ctx context.Context, organizationID string, limit, offset int) ([]*models.Email, int64, error)
	MarkRead(ctx context.Context, organizationID, id string, read bool) error
	SetStarred(ctx context.Context, organizationID, id string, starred bool) error
	LinkDomain(ctx context.Context, emailID, domainID string) error
}

type SyncStateRepository interface {
	GetByMailbox(ctx context.Context, organizationID, emailAddress string, provider enum.ProviderService) (*models.SyncState, error)
	Create(ctx context.Context, state *models.SyncState) error
	// BeginSync conditionally transitions the row to syncing; it reports false
	// when another run already holds the syncing state.
	BeginSync(ctx context.Context, id string) (bool, error)
	// CompleteSync transitions out of syncing; the update is conditional on the
	// row still being in syncing so two runs cannot interleave.
	CompleteSync(ctx context.Context, id string, lastUID uint32, status enum.SyncStatus, errMsg string) error
	Reset(ctx context.Context, id string) error
}

type AuditLogRepository interface {
	Create(ctx context.Context, entry *models.AuditLogEntry) error
}

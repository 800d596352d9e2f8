package interfaces

import (
	"context"

	"github.com/noyaclicks-jpg/crmhost/internal/models"
)

type DomainService interface {
	CreateDomain(ctx context.Context, domainName string) (*models.Domain, error)
	GetDomain(ctx context.Context, domainID string) (*models.Domain, error)
	ListDomains(ctx context.Context) ([]models.Domain, error)
	VerifyDomain(ctx context.Context, domainID string) (*VerificationResult, error)
	SyncFromProvider(ctx context.Context) (int, error)
	DeleteDomain(ctx context.Context, domainID string) error
}

// VerificationResult carries the aggregate verdict together with the two
// provider-level signals so a caller can tell which provider is still pending.
type VerificationResult struct {
	Verified           bool `json:"verified"`
	DNSVerified        bool `json:"dnsVerified"`
	ForwardingVerified bool `json:"forwardingVerified"`
}

type AliasService interface {
	CreateAlias(ctx context.Context, domainID, aliasName string, recipients []string, description string) (*models.EmailAlias, error)
	UpdateAlias(ctx context.Context, aliasID string, recipients []string, description string, isEnabled *bool) (*models.EmailAlias, error)
	DeleteAlias(ctx context.Context, aliasID string) error
	ListAliases(ctx context.Context, domainID string) ([]models.EmailAlias, error)
}

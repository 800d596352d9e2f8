package interfaces

import "context"

// ForwardingProviderService is the mail-forwarding provider boundary
// (ForwardEmail API). Not-found and already-exists conditions are surfaced as
// typed provider errors so callers can reconcile benign divergence in-flow.
type ForwardingProviderService interface {
	GetDomain(ctx context.Context, apiToken, domainName string) (*ForwardingDomain, error)
	CreateDomain(ctx context.Context, apiToken, domainName string) (*ForwardingDomain, error)
	ListAliases(ctx context.Context, apiToken, domainName string) ([]ForwardingAlias, error)
	CreateAlias(ctx context.Context, apiToken, domainName string, alias AliasRequest) (*ForwardingAlias, error)
	UpdateAlias(ctx context.Context, apiToken, domainName, aliasID string, alias AliasRequest) (*ForwardingAlias, error)
	DeleteAlias(ctx context.Context, apiToken, domainName, aliasID string) error
	TestConnection(ctx context.Context, apiToken string) error
}

type ForwardingDomain struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	VerificationRecord string `json:"verification_record"`
	HasMXRecord        bool   `json:"has_mx_record"`
	HasTXTRecord       bool   `json:"has_txt_record"`
	IsVerified         bool   `json:"is_verified"`
	CreatedAt          string `json:"created_at"`
}

type ForwardingAlias struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Recipients  []string `json:"recipients"`
	Description string   `json:"description"`
	IsEnabled   bool     `json:"is_enabled"`
}

type AliasRequest struct {
	Name        string   `json:"name"`
	Recipients  []string `json:"recipients"`
	Description string   `json:"description,omitempty"`
	IsEnabled   *bool    `json:"is_enabled,omitempty"`
}

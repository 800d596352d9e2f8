package interfaces

import "context"

// DNSProviderService is the DNS-hosting provider boundary (Netlify DNS API).
// The API token is passed per call; credentials are never cached across calls.
type DNSProviderService interface {
	// GetZoneByName returns the zone matching the hostname, or nil when absent.
	GetZoneByName(ctx context.Context, apiToken, domainName string) (*DNSZone, error)
	CreateZone(ctx context.Context, apiToken, domainName string) (*DNSZone, error)
	GetZoneByID(ctx context.Context, apiToken, zoneID string) (*DNSZone, error)
	DeleteZone(ctx context.Context, apiToken, zoneID string) error
	TestConnection(ctx context.Context, apiToken string) error
}

type DNSZone struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	DNSServers  []string `json:"dns_servers"`
	AccountSlug string   `json:"account_slug"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

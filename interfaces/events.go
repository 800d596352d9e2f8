package interfaces

import (
	"context"

	"github.com/noyaclicks-jpg/crmhost/internal/enum"
)

// EventPublisher announces state changes to interested consumers. Publishing
// is fire-and-forget from the caller's point of view; a broker outage must
// never fail the operation that produced the event.
type EventPublisher interface {
	PublishEmailReceived(ctx context.Context, organizationID, emailID, messageID string) error
	PublishDomainStatusChanged(ctx context.Context, organizationID, domainID string, status enum.DomainStatus) error
	Close() error
}

package events

import (
	"context"

	"github.com/noyaclicks-jpg/crmhost/interfaces"
	"github.com/noyaclicks-jpg/crmhost/internal/enum"
)

// noopPublisher stands in when no broker is configured.
type noopPublisher struct{}

func NewNoopPublisher() interfaces.EventPublisher {
	return noopPublisher{}
}

func (noopPublisher) PublishEmailReceived(ctx context.Context, organizationID, emailID, messageID string) error {
	return nil
}

func (noopPublisher) PublishDomainStatusChanged(ctx context.Context, organizationID, domainID string, status enum.DomainStatus) error {
	return nil
}

func (noopPublisher) Close() error { return nil }

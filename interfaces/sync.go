package interfaces

import (
	"context"

	"github.com/noyaclicks-jpg/crmhost/internal/models"
)

type SyncService interface {
	// SyncMailbox runs one incremental sync for a single organization's mailbox.
	SyncMailbox(ctx context.Context, organizationID string, credential *models.ProviderCredential) (*SyncReport, error)
	// Run iterates every organization with mailbox credentials; one mailbox's
	// failure does not prevent the others from being attempted.
	Run(ctx context.Context) error
}

type SyncReport struct {
	Fetched    int
	Inserted   int
	Duplicates int
	Failed     int
	LastUID    uint32
}

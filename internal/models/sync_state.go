package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/noyaclicks-jpg/crmhost/internal/enum"
	"github.com/noyaclicks-jpg/crmhost/internal/utils"
)

// SyncState tracks incremental mailbox synchronization for one
// (organization, mailbox address, provider) triple. LastUID is the watermark:
// the highest remote sequence number successfully processed. It only moves
// forward; a manual reset is the single exception.
type SyncState struct {
	ID             string               `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	OrganizationID string               `gorm:"column:organization_id;type:varchar(50);not null;uniqueIndex:idx_org_mailbox" json:"organizationId"`
	EmailAddress   string               `gorm:"column:email_address;type:varchar(255);not null;uniqueIndex:idx_org_mailbox" json:"emailAddress"`
	Provider       enum.ProviderService `gorm:"column:provider;type:varchar(50);not null;uniqueIndex:idx_org_mailbox" json:"provider"`
	LastUID        uint32               `gorm:"column:last_uid;not null;default:0" json:"lastUid"`
	SyncStatus     enum.SyncStatus      `gorm:"column:sync_status;type:varchar(20);not null;default:'idle'" json:"syncStatus"`
	LastError      string               `gorm:"column:last_error;type:text" json:"lastError"`
	LastSyncAt     *time.Time           `gorm:"column:last_sync_at;type:timestamp" json:"lastSyncAt"`
	CreatedAt      time.Time            `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (SyncState) TableName() string {
	return "sync_states"
}

func (s *SyncState) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = utils.GenerateNanoIDWithPrefix("sync", 21)
	}
	s.CreatedAt = utils.Now()
	return nil
}

package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/noyaclicks-jpg/crmhost/internal/utils"
)

// AuditLogEntry is an append-only record of a mutating action. The core only
// ever writes these.
type AuditLogEntry struct {
	ID             string    `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	OrganizationID string    `gorm:"column:organization_id;type:varchar(50);index;not null" json:"organizationId"`
	UserID         string    `gorm:"column:user_id;type:varchar(50);index" json:"userId"`
	Action         string    `gorm:"column:action;type:varchar(100);not null" json:"action"`
	ResourceType   string    `gorm:"column:resource_type;type:varchar(50)" json:"resourceType"`
	ResourceID     string    `gorm:"column:resource_id;type:varchar(50)" json:"resourceId"`
	Details        JSONMap   `gorm:"column:details;type:jsonb" json:"details"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
}

func (AuditLogEntry) TableName() string {
	return "audit_logs"
}

func (a *AuditLogEntry) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("audit", 21)
	}
	a.CreatedAt = utils.Now()
	return nil
}

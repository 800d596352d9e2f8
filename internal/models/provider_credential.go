package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/noyaclicks-jpg/crmhost/internal/enum"
	"github.com/noyaclicks-jpg/crmhost/internal/utils"
)

// ProviderCredential is the single API credential an organization holds for one
// external service. Rotation overwrites the row in place; there is no history.
type ProviderCredential struct {
	ID             string               `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	OrganizationID string               `gorm:"column:organization_id;type:varchar(50);not null;uniqueIndex:idx_org_service" json:"organizationId"`
	Service        enum.ProviderService `gorm:"column:service;type:varchar(50);not null;uniqueIndex:idx_org_service" json:"service"`
	APIToken       string               `gorm:"column:api_token;type:text" json:"-"`
	Username       string               `gorm:"column:username;type:varchar(255)" json:"username"`
	Password       string               `gorm:"column:password;type:text" json:"-"`
	CreatedAt      time.Time            `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (ProviderCredential) TableName() string {
	return "provider_credentials"
}

func (c *ProviderCredential) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = utils.GenerateNanoIDWithPrefix("cred", 21)
	}
	c.CreatedAt = utils.Now()
	return nil
}

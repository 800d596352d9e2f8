package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/noyaclicks-jpg/crmhost/internal/utils"
)

// EmailAlias is a forwarding rule owned by a Domain. ProviderAliasID is the id
// the mail-forwarding provider assigned when the alias was created remotely.
type EmailAlias struct {
	ID              string         `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	DomainID        string         `gorm:"column:domain_id;type:varchar(50);index;not null" json:"domainId"`
	AliasName       string         `gorm:"column:alias_name;type:varchar(255);not null" json:"aliasName"`
	Recipients      pq.StringArray `gorm:"column:recipients;type:text[];not null" json:"recipients"`
	Description     string         `gorm:"column:description;type:varchar(1000)" json:"description"`
	IsEnabled       bool           `gorm:"column:is_enabled;type:boolean;not null;default:true" json:"isEnabled"`
	ProviderAliasID string         `gorm:"column:provider_alias_id;type:varchar(255)" json:"providerAliasId"`
	CreatedAt       time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (EmailAlias) TableName() string {
	return "email_aliases"
}

func (a *EmailAlias) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("alias", 21)
	}
	a.CreatedAt = utils.Now()
	return nil
}

package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/noyaclicks-jpg/crmhost/internal/enum"
	"github.com/noyaclicks-jpg/crmhost/internal/utils"
)

// Domain is one hostname owned by an organization, provisioned across the
// DNS-hosting provider and the mail-forwarding provider.
type Domain struct {
	ID             string            `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	OrganizationID string            `gorm:"column:organization_id;type:varchar(50);index;not null;uniqueIndex:idx_org_domain" json:"organizationId"`
	DomainName     string            `gorm:"column:domain_name;type:varchar(255);not null;uniqueIndex:idx_org_domain" json:"domainName"`
	DNSZoneID      *string           `gorm:"column:dns_zone_id;type:varchar(255)" json:"dnsZoneId"`
	Nameservers    pq.StringArray    `gorm:"column:nameservers;type:text[]" json:"nameservers"`
	DNSConfigured  bool              `gorm:"column:dns_configured;type:boolean;not null;default:false" json:"dnsConfigured"`
	Status         enum.DomainStatus `gorm:"column:status;type:varchar(20);index;not null;default:'pending'" json:"status"`
	CreatedAt      time.Time         `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Domain) TableName() string {
	return "domains"
}

func (d *Domain) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = utils.GenerateNanoIDWithPrefix("dom", 21)
	}
	d.CreatedAt = utils.Now()
	return nil
}

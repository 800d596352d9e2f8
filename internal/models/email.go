package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/noyaclicks-jpg/crmhost/internal/utils"
)

// Email is one message pulled from a remote mailbox. (OrganizationID, MessageID)
// is unique; the sync engine treats a duplicate as a no-op.
type Email struct {
	ID             string         `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	OrganizationID string         `gorm:"column:organization_id;type:varchar(50);not null;uniqueIndex:idx_org_message" json:"organizationId"`
	MessageID      string         `gorm:"column:message_id;type:varchar(255);not null;uniqueIndex:idx_org_message" json:"messageId"`
	ImapUID        uint32         `gorm:"column:imap_uid;index" json:"imapUid"`

	Subject     string         `gorm:"column:subject;type:varchar(1000)" json:"subject"`
	FromAddress string         `gorm:"column:from_address;type:varchar(255);index" json:"fromAddress"`
	ToAddresses pq.StringArray `gorm:"column:to_addresses;type:text[]" json:"toAddresses"`
	CcAddresses pq.StringArray `gorm:"column:cc_addresses;type:text[]" json:"ccAddresses"`

	BodyText      string `gorm:"column:body_text;type:text" json:"bodyText"`
	BodyHTML      string `gorm:"column:body_html;type:text" json:"bodyHtml"`
	HasAttachment bool   `gorm:"column:has_attachment;default:false" json:"hasAttachment"`

	ReceivedAt *time.Time `gorm:"column:received_at;type:timestamp;index" json:"receivedAt"`
	IsRead     bool       `gorm:"column:is_read;type:boolean;not null;default:false" json:"isRead"`
	IsStarred  bool       `gorm:"column:is_starred;type:boolean;not null;default:false" json:"isStarred"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Email) TableName() string {
	return "emails"
}

func (e *Email) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = utils.GenerateNanoIDWithPrefix("email", 24)
	}
	e.CreatedAt = utils.Now()
	return nil
}

// EmailDomainLink connects a fetched email to a locally known Domain whose
// hostname matches one of the recipients.
type EmailDomainLink struct {
	EmailID   string    `gorm:"column:email_id;type:varchar(50);primaryKey" json:"emailId"`
	DomainID  string    `gorm:"column:domain_id;type:varchar(50);primaryKey" json:"domainId"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
}

func (EmailDomainLink) TableName() string {
	return "email_domain_links"
}

package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/noyaclicks-jpg/crmhost/internal/enum"
	"github.com/noyaclicks-jpg/crmhost/internal/models"
	"github.com/noyaclicks-jpg/crmhost/internal/utils"
)

const testOrgID = "org_test1"

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// a single connection keeps every session on the same in-memory database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Domain{},
		&models.ProviderCredential{},
		&models.EmailAlias{},
		&models.Email{},
		&models.EmailDomainLink{},
		&models.SyncState{},
		&models.AuditLogEntry{},
	))
	return db
}

func TestDomainRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDomainRepository(db)
	ctx := context.Background()

	domain := &models.Domain{
		OrganizationID: testOrgID,
		DomainName:     "example.com",
		DNSZoneID:      utils.Ptr("zone-1"),
		Nameservers:    []string{"dns1.p01.nsone.net", "dns2.p01.nsone.net"},
		Status:         enum.DomainStatusPending,
	}
	require.NoError(t, repo.Create(ctx, domain))
	assert.NotEmpty(t, domain.ID)
	assert.Contains(t, domain.ID, "dom_")

	byName, err := repo.GetByName(ctx, testOrgID, "example.com")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, domain.ID, byName.ID)
	assert.Equal(t, []string{"dns1.p01.nsone.net", "dns2.p01.nsone.net"}, []string(byName.Nameservers))

	byID, err := repo.GetByID(ctx, testOrgID, domain.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)

	// another organization must not see the row
	other, err := repo.GetByID(ctx, "org_other", domain.ID)
	require.NoError(t, err)
	assert.Nil(t, other)

	missing, err := repo.GetByName(ctx, testOrgID, "missing.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDomainRepository_UpdateVerificationAndListNotActive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDomainRepository(db)
	ctx := context.Background()

	pending := &models.Domain{OrganizationID: testOrgID, DomainName: "pending.com", Status: enum.DomainStatusPending}
	active := &models.Domain{OrganizationID: testOrgID, DomainName: "active.com", Status: enum.DomainStatusPending}
	require.NoError(t, repo.Create(ctx, pending))
	require.NoError(t, repo.Create(ctx, active))

	require.NoError(t, repo.UpdateVerification(ctx, active.ID, enum.DomainStatusActive, true))

	notActive, err := repo.ListNotActive(ctx, testOrgID)
	require.NoError(t, err)
	require.Len(t, notActive, 1)
	assert.Equal(t, "pending.com", notActive[0].DomainName)

	stored, err := repo.GetByID(ctx, testOrgID, active.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.DomainStatusActive, stored.Status)
	assert.True(t, stored.DNSConfigured)
}

func TestDomainRepository_DeleteCascades(t *testing.T) {
	db := setupTestDB(t)
	domainRepo := NewDomainRepository(db)
	aliasRepo := NewAliasRepository(db)
	emailRepo := NewEmailRepository(db)
	ctx := context.Background()

	domain := &models.Domain{OrganizationID: testOrgID, DomainName: "example.com"}
	require.NoError(t, domainRepo.Create(ctx, domain))

	alias := &models.EmailAlias{DomainID: domain.ID, AliasName: "sales", Recipients: []string{"a@other.com"}}
	require.NoError(t, aliasRepo.Create(ctx, alias))

	email := &models.Email{OrganizationID: testOrgID, MessageID: "m1"}
	require.NoError(t, emailRepo.Create(ctx, email))
	require.NoError(t, emailRepo.LinkDomain(ctx, email.ID, domain.ID))

	require.NoError(t, domainRepo.Delete(ctx, testOrgID, domain.ID))

	gone, err := domainRepo.GetByID(ctx, testOrgID, domain.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	aliases, err := aliasRepo.ListByDomain(ctx, domain.ID)
	require.NoError(t, err)
	assert.Empty(t, aliases)

	var links int64
	require.NoError(t, db.Model(&models.EmailDomainLink{}).Where("domain_id = ?", domain.ID).Count(&links).Error)
	assert.Zero(t, links)

	// the email itself survives the domain deletion
	stored, err := emailRepo.GetByID(ctx, testOrgID, email.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored)
}

func TestCredentialRepository_UpsertRotatesInPlace(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepository(db)
	ctx := context.Background()

	first := &models.ProviderCredential{
		OrganizationID: testOrgID,
		Service:        enum.ProviderServiceNetlify,
		APIToken:       "token-1",
	}
	require.NoError(t, repo.Upsert(ctx, first))

	stored, err := repo.GetByOrgAndService(ctx, testOrgID, enum.ProviderServiceNetlify)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "token-1", stored.APIToken)

	rotated := &models.ProviderCredential{
		OrganizationID: testOrgID,
		Service:        enum.ProviderServiceNetlify,
		APIToken:       "token-2",
	}
	require.NoError(t, repo.Upsert(ctx, rotated))

	stored, err = repo.GetByOrgAndService(ctx, testOrgID, enum.ProviderServiceNetlify)
	require.NoError(t, err)
	assert.Equal(t, "token-2", stored.APIToken)

	var count int64
	require.NoError(t, db.Model(&models.ProviderCredential{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCredentialRepository_ListByServiceAndDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &models.ProviderCredential{
		OrganizationID: "org_a", Service: enum.ProviderServiceZohoImap, Username: "a@example.com", Password: "pw",
	}))
	require.NoError(t, repo.Upsert(ctx, &models.ProviderCredential{
		OrganizationID: "org_b", Service: enum.ProviderServiceZohoImap, Username: "b@example.com", Password: "pw",
	}))
	require.NoError(t, repo.Upsert(ctx, &models.ProviderCredential{
		OrganizationID: "org_a", Service: enum.ProviderServiceNetlify, APIToken: "t",
	}))

	mailboxes, err := repo.ListByService(ctx, enum.ProviderServiceZohoImap)
	require.NoError(t, err)
	assert.Len(t, mailboxes, 2)

	require.NoError(t, repo.Delete(ctx, "org_a", enum.ProviderServiceZohoImap))
	mailboxes, err = repo.ListByService(ctx, enum.ProviderServiceZohoImap)
	require.NoError(t, err)
	require.Len(t, mailboxes, 1)
	assert.Equal(t, "org_b", mailboxes[0].OrganizationID)
}

func TestSyncStateRepository_BeginSyncClaimsOnce(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSyncStateRepository(db)
	ctx := context.Background()

	state := &models.SyncState{
		OrganizationID: testOrgID,
		EmailAddress:   "inbox@example.com",
		Provider:       enum.ProviderServiceZohoImap,
		SyncStatus:     enum.SyncStatusIdle,
	}
	require.NoError(t, repo.Create(ctx, state))

	claimed, err := repo.BeginSync(ctx, state.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	// a second claim while syncing is refused
	claimed, err = repo.BeginSync(ctx, state.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, repo.CompleteSync(ctx, state.ID, 42, enum.SyncStatusSuccess, ""))

	stored, err := repo.GetByMailbox(ctx, testOrgID, "inbox@example.com", enum.ProviderServiceZohoImap)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), stored.LastUID)
	assert.Equal(t, enum.SyncStatusSuccess, stored.SyncStatus)
	assert.NotNil(t, stored.LastSyncAt)

	// released, so the next run can claim again
	claimed, err = repo.BeginSync(ctx, state.ID)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestSyncStateRepository_CompleteSyncRequiresClaim(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSyncStateRepository(db)
	ctx := context.Background()

	state := &models.SyncState{
		OrganizationID: testOrgID,
		EmailAddress:   "inbox@example.com",
		Provider:       enum.ProviderServiceZohoImap,
		LastUID:        10,
		SyncStatus:     enum.SyncStatusIdle,
	}
	require.NoError(t, repo.Create(ctx, state))

	// no claim held, the completion must not touch the row
	require.NoError(t, repo.CompleteSync(ctx, state.ID, 99, enum.SyncStatusSuccess, ""))

	stored, err := repo.GetByMailbox(ctx, testOrgID, "inbox@example.com", enum.ProviderServiceZohoImap)
	require.NoError(t, err)
	assert.Equal(t, uint32(10), stored.LastUID)
	assert.Equal(t, enum.SyncStatusIdle, stored.SyncStatus)
}

func TestSyncStateRepository_Reset(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSyncStateRepository(db)
	ctx := context.Background()

	state := &models.SyncState{
		OrganizationID: testOrgID,
		EmailAddress:   "inbox@example.com",
		Provider:       enum.ProviderServiceZohoImap,
		LastUID:        77,
		SyncStatus:     enum.SyncStatusError,
		LastError:      "boom",
	}
	require.NoError(t, repo.Create(ctx, state))

	require.NoError(t, repo.Reset(ctx, state.ID))

	stored, err := repo.GetByMailbox(ctx, testOrgID, "inbox@example.com", enum.ProviderServiceZohoImap)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), stored.LastUID)
	assert.Equal(t, enum.SyncStatusIdle, stored.SyncStatus)
	assert.Empty(t, stored.LastError)
}

func TestEmailRepository_DuplicateMessageIDRejected(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEmailRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Email{OrganizationID: testOrgID, MessageID: "m1"}))

	exists, err := repo.ExistsByMessageID(ctx, testOrgID, "m1")
	require.NoError(t, err)
	assert.True(t, exists)

	err = repo.Create(ctx, &models.Email{OrganizationID: testOrgID, MessageID: "m1"})
	assert.Error(t, err)

	// the same message id under another organization is a different email
	require.NoError(t, repo.Create(ctx, &models.Email{OrganizationID: "org_other", MessageID: "m1"}))

	exists, err = repo.ExistsByMessageID(ctx, testOrgID, "m2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestEmailRepository_ListFlagsAndLinks(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEmailRepository(db)
	ctx := context.Background()

	first := &models.Email{OrganizationID: testOrgID, MessageID: "m1", ReceivedAt: utils.NowPtr()}
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, &models.Email{OrganizationID: testOrgID, MessageID: "m2", ReceivedAt: utils.NowPtr()}))

	emails, total, err := repo.ListByOrganization(ctx, testOrgID, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, emails, 1)

	require.NoError(t, repo.MarkRead(ctx, testOrgID, first.ID, true))
	require.NoError(t, repo.SetStarred(ctx, testOrgID, first.ID, true))

	stored, err := repo.GetByID(ctx, testOrgID, first.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsRead)
	assert.True(t, stored.IsStarred)

	// linking twice keeps a single join row
	require.NoError(t, repo.LinkDomain(ctx, first.ID, "dom_1"))
	require.NoError(t, repo.LinkDomain(ctx, first.ID, "dom_1"))

	var links int64
	require.NoError(t, db.Model(&models.EmailDomainLink{}).Where("email_id = ?", first.ID).Count(&links).Error)
	assert.Equal(t, int64(1), links)
}

func TestAuditLogRepository_Create(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAuditLogRepository(db)
	ctx := context.Background()

	entry := &models.AuditLogEntry{
		OrganizationID: testOrgID,
		UserID:         "user_1",
		Action:         "domain.create",
		ResourceType:   "domain",
		ResourceID:     "dom_1",
		Details:        models.JSONMap{"domainName": "example.com"},
	}
	require.NoError(t, repo.Create(ctx, entry))
	assert.NotEmpty(t, entry.ID)

	var stored models.AuditLogEntry
	require.NoError(t, db.First(&stored, "id = ?", entry.ID).Error)
	assert.Equal(t, "domain.create", stored.Action)
	assert.Equal(t, "example.com", stored.Details["domainName"])
}

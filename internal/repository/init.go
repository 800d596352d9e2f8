package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/noyaclicks-jpg/crmhost/config"
	"github.com/noyaclicks-jpg/crmhost/interfaces"
	"github.com/noyaclicks-jpg/crmhost/internal/models"
)

type Repositories struct {
	DomainRepository     interfaces.DomainRepository
	CredentialRepository interfaces.CredentialRepository
	AliasRepository      interfaces.AliasRepository
	EmailRepository      interfaces.EmailRepository
	SyncStateRepository  interfaces.SyncStateRepository
	AuditLogRepository   interfaces.AuditLogRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		DomainRepository:     NewDomainRepository(db),
		CredentialRepository: NewCredentialRepository(db),
		AliasRepository:      NewAliasRepository(db),
		EmailRepository:      NewEmailRepository(db),
		SyncStateRepository:  NewSyncStateRepository(db),
		AuditLogRepository:   NewAuditLogRepository(db),
	}
}

func Migrate(dbConfig *config.DatabaseConfig, gormDB *gorm.DB) error {
	db, err := gormDB.DB()
	if err != nil {
		return err
	}

	// migrations run with a small pool, the real limits are applied after
	db.SetMaxOpenConns(5)

	err = gormDB.AutoMigrate(
		&models.Domain{},
		&models.ProviderCredential{},
		&models.EmailAlias{},
		&models.Email{},
		&models.EmailDomainLink{},
		&models.SyncState{},
		&models.AuditLogEntry{},
	)
	if err != nil {
		return err
	}

	db.SetMaxIdleConns(dbConfig.MaxIdleConn)
	db.SetMaxOpenConns(dbConfig.MaxConn)
	db.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Minute)

	return nil
}

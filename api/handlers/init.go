package handlers

import (
	"github.com/noyaclicks-jpg/crmhost/internal/repository"
	"github.com/noyaclicks-jpg/crmhost/services"
)

type Handlers struct {
	Domains     *DomainHandler
	Aliases     *AliasHandler
	Emails      *EmailHandler
	Credentials *CredentialHandler
	Sync        *SyncHandler
}

func InitHandlers(s *services.Services, repos *repository.Repositories) *Handlers {
	return &Handlers{
		Domains:     NewDomainHandler(s.DomainService),
		Aliases:     NewAliasHandler(s.AliasService),
		Emails:      NewEmailHandler(repos.EmailRepository, repos.CredentialRepository, s.MailboxFactory),
		Credentials: NewCredentialHandler(repos.CredentialRepository, s.DNSProviderService, s.ForwardingService),
		Sync:        NewSyncHandler(s.SyncService, repos.CredentialRepository, repos.SyncStateRepository),
	}
}

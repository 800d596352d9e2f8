package services

import (
	"github.com/noyaclicks-jpg/crmhost/config"
	"github.com/noyaclicks-jpg/crmhost/interfaces"
	"github.com/noyaclicks-jpg/crmhost/internal/logger"
	"github.com/noyaclicks-jpg/crmhost/internal/repository"
	"github.com/noyaclicks-jpg/crmhost/services/domain"
	"github.com/noyaclicks-jpg/crmhost/services/events"
	"github.com/noyaclicks-jpg/crmhost/services/forwardemail"
	"github.com/noyaclicks-jpg/crmhost/services/imap"
	"github.com/noyaclicks-jpg/crmhost/services/netlify"
	"github.com/noyaclicks-jpg/crmhost/services/sync"
)

type Services struct {
	DNSProviderService interfaces.DNSProviderService
	ForwardingService  interfaces.ForwardingProviderService
	DomainService      interfaces.DomainService
	AliasService       interfaces.AliasService
	SyncService        interfaces.SyncService
	MailboxFactory     interfaces.MailboxClientFactory
	EventPublisher     interfaces.EventPublisher
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	var publisher interfaces.EventPublisher
	if cfg.AppConfig.RabbitMQURL != "" {
		p, err := events.NewRabbitMQPublisher(cfg.AppConfig.RabbitMQURL, log)
		if err != nil {
			return nil, err
		}
		publisher = p
	} else {
		publisher = events.NewNoopPublisher()
	}

	dnsService := netlify.NewNetlifyService(cfg.NetlifyConfig, cfg.GatewayConfig, log)
	forwardingService := forwardemail.NewForwardEmailService(cfg.ForwardEmail, cfg.GatewayConfig, log)
	mailboxFactory := imap.NewMailboxClientFactory(cfg.ImapConfig, log)

	return &Services{
		DNSProviderService: dnsService,
		ForwardingService:  forwardingService,
		DomainService:      domain.NewDomainService(repos, dnsService, forwardingService, publisher, log),
		AliasService:       domain.NewAliasService(repos, forwardingService, log),
		SyncService:        sync.NewSyncService(repos, mailboxFactory, publisher, log),
		MailboxFactory:     mailboxFactory,
		EventPublisher:     publisher,
	}, nil
}

package cron

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/caarlos0/env/v6"
	cronv3 "github.com/robfig/cron/v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/noyaclicks-jpg/crmhost/config"
	"github.com/noyaclicks-jpg/crmhost/interfaces"
	cron_config "github.com/noyaclicks-jpg/crmhost/internal/cron/config"
	"github.com/noyaclicks-jpg/crmhost/internal/enum"
	"github.com/noyaclicks-jpg/crmhost/internal/logger"
	"github.com/noyaclicks-jpg/crmhost/internal/repository"
	"github.com/noyaclicks-jpg/crmhost/internal/tracing"
	"github.com/noyaclicks-jpg/crmhost/internal/utils"
)

const (
	// GroupProvisioning serializes jobs touching provider state
	GroupProvisioning = "provisioning"

	// LeaseDuration is how long a lease lasts before needing renewal
	LeaseDuration = 15 * time.Second
	// RenewDeadline is how long a leader has to renew its lease
	RenewDeadline = 10 * time.Second
	// RetryPeriod is how long to wait between leadership attempts
	RetryPeriod = 2 * time.Second
)

var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupProvisioning: new(sync.Mutex),
	},
}

type CronManager struct {
	cfg          *config.Config
	log          logger.Logger
	cron         *cronv3.Cron
	k8s          kubernetes.Interface
	stopCh       chan struct{}
	jobIDs       map[string]cronv3.EntryID
	repositories *repository.Repositories
	domain       interfaces.DomainService
	sync         interfaces.SyncService
}

func NewCronManager(
	cfg *config.Config,
	log logger.Logger,
	k8s kubernetes.Interface,
	repositories *repository.Repositories,
	domain interfaces.DomainService,
	syncService interfaces.SyncService,
) *CronManager {
	return &CronManager{
		cfg:          cfg,
		log:          log,
		k8s:          k8s,
		stopCh:       make(chan struct{}),
		jobIDs:       make(map[string]cronv3.EntryID),
		repositories: repositories,
		domain:       domain,
		sync:         syncService,
	}
}

// Start runs the scheduler behind k8s leader election so only one replica
// drives the jobs. Without a k8s client it starts in local mode.
func (cm *CronManager) Start(podName, namespace string) error {
	if cm.k8s == nil || os.Getenv("LOCAL_DEV") == "true" {
		cm.log.Info("Starting cron manager in local mode")
		cm.StartCron()
		return nil
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      "crmhost-cron-leader",
			Namespace: namespace,
		},
		Client: cm.k8s.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: podName,
		},
	}

	errCh := make(chan error, 1)

	go func() {
		le, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
			Lock:            lock,
			ReleaseOnCancel: true,
			LeaseDuration:   LeaseDuration,
			RenewDeadline:   RenewDeadline,
			RetryPeriod:     RetryPeriod,
			Callbacks: leaderelection.LeaderCallbacks{
				OnStartedLeading: func(ctx context.Context) {
					cm.StartCron()
				},
				OnStoppedLeading: func() {
					cm.log.Info("Leader lost - stopping crons")
					cm.Stop()
				},
				OnNewLeader: func(identity string) {
					cm.log.Infof("New leader elected: %s", identity)
				},
			},
		})
		if err != nil {
			errCh <- err
			return
		}
		le.Run(context.Background())
	}()

	select {
	case err := <-errCh:
		cm.log.Warnf("Leader election failed, falling back to local mode: %v", err)
		cm.StartCron()
	case <-time.After(5 * time.Second):
	}

	return nil
}

// Stop gracefully stops the cron manager.
func (cm *CronManager) Stop() {
	if cm.cron != nil {
		cm.log.Info("Stopping cron manager")
		ctx := cm.cron.Stop()
		<-ctx.Done()
	}
	close(cm.stopCh)
}

// StartCron initializes and starts the cron scheduler.
func (cm *CronManager) StartCron() {
	cm.log.Info("Starting cron manager")
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	}
	c := cronv3.New(cronOptions...)
	cm.registerJobs(c)
	c.Start()
	cm.cron = c
}

func (cm *CronManager) registerJobs(c *cronv3.Cron) {
	var cronConfig cron_config.Config
	if err := env.Parse(&cronConfig); err != nil {
		cm.log.Fatalf("Failed to parse cron config from environment: %v", err)
	}

	if cronConfig.CronScheduleHeartbeat != "" {
		podName := os.Getenv("POD_NAME")
		if podName == "" {
			podName = "local"
		}
		id, err := c.AddFunc(cronConfig.CronScheduleHeartbeat, func() {
			defer tracing.RecoverAndLog(cm.log)
			cm.log.Infof("Cron heartbeat from pod: %s", podName)
		})
		if err != nil {
			cm.log.Fatalf("Could not add heartbeat cron job: %v", err)
		}
		cm.jobIDs["heartbeat"] = id
		cm.log.Infof("Registered heartbeat job with schedule: %s", cronConfig.CronScheduleHeartbeat)
	}

	if cronConfig.CronScheduleMailboxSync != "" {
		id, err := c.AddFunc(cronConfig.CronScheduleMailboxSync, func() {
			defer tracing.RecoverAndLog(cm.log)
			cm.runMailboxSync()
		})
		if err != nil {
			cm.log.Fatalf("Could not add mailbox sync cron job: %v", err)
		}
		cm.jobIDs["mailbox_sync"] = id
		cm.log.Infof("Registered mailbox sync job with schedule: %s", cronConfig.CronScheduleMailboxSync)
	}

	if cronConfig.CronScheduleDomainReconciliation != "" {
		id, err := c.AddFunc(cronConfig.CronScheduleDomainReconciliation, func() {
			defer tracing.RecoverAndLog(cm.log)
			jobLocks.locks[GroupProvisioning].Lock()
			defer jobLocks.locks[GroupProvisioning].Unlock()
			cm.runDomainReconciliation()
		})
		if err != nil {
			cm.log.Fatalf("Could not add domain reconciliation cron job: %v", err)
		}
		cm.jobIDs["domain_reconciliation"] = id
		cm.log.Infof("Registered domain reconciliation job with schedule: %s", cronConfig.CronScheduleDomainReconciliation)
	}
}

func (cm *CronManager) runMailboxSync() {
	ctx := context.Background()
	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.runMailboxSync")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	if err := cm.sync.Run(ctx); err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Mailbox sync run failed: %v", err)
		return
	}
	cm.log.Info("Mailbox sync run completed")
}

// runDomainReconciliation walks every organization with forwarding
// credentials and reconciles its non-active domains.
func (cm *CronManager) runDomainReconciliation() {
	ctx := context.Background()
	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.runDomainReconciliation")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	credentials, err := cm.repositories.CredentialRepository.ListByService(ctx, enum.ProviderServiceForwardEmail)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to list organizations for reconciliation: %v", err)
		return
	}

	for i := range credentials {
		orgCtx := utils.SetOrganizationIDInContext(ctx, credentials[i].OrganizationID)
		synced, err := cm.domain.SyncFromProvider(orgCtx)
		if err != nil {
			cm.log.Warnf("Domain reconciliation failed for org %s: %v", credentials[i].OrganizationID, err)
			continue
		}
		if synced > 0 {
			cm.log.Infof("Domain reconciliation activated %d domains for org %s", synced, credentials[i].OrganizationID)
		}
	}
}

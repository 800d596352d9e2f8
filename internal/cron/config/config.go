package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Mailbox sync, every 5 minutes
	CronScheduleMailboxSync string `env:"CRON_SCHEDULE_MAILBOX_SYNC" envDefault:"0 */5 * * * *"`
	// Domain reconciliation against the forwarding provider, every 15 minutes
	CronScheduleDomainReconciliation string `env:"CRON_SCHEDULE_DOMAIN_RECONCILIATION" envDefault:"0 */15 * * * *"`
}

// Package jobs holds the scheduled maintenance work of warden.
//
// StaleOverrideScanner reports, and optionally prunes, override entries
// that name permissions the catalog has since dropped. AuditCleanup deletes
// audit events past the retention period. Scheduler runs both on cron
// schedules:
//
//	sched := jobs.NewScheduler(log, 5*time.Minute)
//	sched.Add("@hourly", jobs.NewStaleOverrideScanner(store, catalog, auditLog, metrics, log, false))
//	sched.Add("@daily", jobs.NewAuditCleanup(dbAudit, 90*24*time.Hour, log))
//	sched.Start()
//	defer sched.Stop()
package jobs

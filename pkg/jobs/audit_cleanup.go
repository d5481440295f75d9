package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// AuditPurger deletes audit events older than a retention period
type AuditPurger interface {
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

// AuditCleanup enforces the audit retention period
type AuditCleanup struct {
	purger    AuditPurger
	retention time.Duration
	log       *logrus.Logger
}

// NewAuditCleanup creates the retention job
func NewAuditCleanup(purger AuditPurger, retention time.Duration, log *logrus.Logger) *AuditCleanup {
	return &AuditCleanup{purger: purger, retention: retention, log: log}
}

// Name implements Job
func (c *AuditCleanup) Name() string {
	return "audit-retention"
}

// Run implements Job
func (c *AuditCleanup) Run(ctx context.Context) error {
	deleted, err := c.purger.Cleanup(ctx, c.retention)
	if err != nil {
		return err
	}
	c.log.WithFields(logrus.Fields{
		"deleted":   deleted,
		"retention": c.retention.String(),
	}).Info("audit retention applied")
	return nil
}

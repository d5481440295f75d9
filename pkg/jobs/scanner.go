package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/apperrors"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/permissions"
	"github.com/platinummonkey/warden/pkg/rbac"
)

// OverrideStore is the part of the rbac store the scanner needs
type OverrideStore interface {
	ListOrganizationIDs(ctx context.Context) ([]int64, error)
	ListOverrides(ctx context.Context, orgID int64) ([]rbac.OverrideRecord, error)
	ReplaceOverrides(ctx context.Context, orgID, userID int64, o permissions.Override, expectedVersion *int64) (int64, error)
}

// ScanReport summarizes one scanner run
type ScanReport struct {
	Organizations int
	Overrides     int
	// StaleUsers counts users whose override references retired keys
	StaleUsers int
	StaleKeys  int
	Pruned     int
	// Conflicts counts prunes skipped because the override changed while
	// the scan ran
	Conflicts int
}

// StaleOverrideScanner finds stored overrides that reference keys the
// catalog no longer has. Such keys are inert for resolution; pruning only
// keeps the stored data tidy.
type StaleOverrideScanner struct {
	store   OverrideStore
	catalog permissions.CatalogProvider
	audit   audit.Logger
	metrics *observability.Metrics
	log     *logrus.Logger
	prune   bool
}

// NewStaleOverrideScanner creates a scanner. auditLogger and metrics may be
// nil. With prune set, retired keys are removed from the stored override.
func NewStaleOverrideScanner(store OverrideStore, catalog permissions.CatalogProvider, auditLogger audit.Logger, metrics *observability.Metrics, log *logrus.Logger, prune bool) *StaleOverrideScanner {
	return &StaleOverrideScanner{
		store:   store,
		catalog: catalog,
		audit:   auditLogger,
		metrics: metrics,
		log:     log,
		prune:   prune,
	}
}

// Name implements Job
func (s *StaleOverrideScanner) Name() string {
	return "stale-override-scan"
}

// Run implements Job
func (s *StaleOverrideScanner) Run(ctx context.Context) error {
	_, err := s.Scan(ctx)
	return err
}

// Scan walks every active organization once
func (s *StaleOverrideScanner) Scan(ctx context.Context) (*ScanReport, error) {
	orgIDs, err := s.store.ListOrganizationIDs(ctx)
	if err != nil {
		return nil, err
	}

	catalog := s.catalog.Catalog()
	report := &ScanReport{}
	for _, orgID := range orgIDs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := s.scanOrganization(ctx, catalog, orgID, report); err != nil {
			return report, fmt.Errorf("organization %d: %w", orgID, err)
		}
		report.Organizations++
	}

	s.log.WithFields(logrus.Fields{
		"organizations": report.Organizations,
		"overrides":     report.Overrides,
		"stale_users":   report.StaleUsers,
		"stale_keys":    report.StaleKeys,
		"pruned":        report.Pruned,
		"conflicts":     report.Conflicts,
	}).Info("stale override scan finished")

	return report, nil
}

func (s *StaleOverrideScanner) scanOrganization(ctx context.Context, catalog *permissions.Catalog, orgID int64, report *ScanReport) error {
	records, err := s.store.ListOverrides(ctx, orgID)
	if err != nil {
		return err
	}
	report.Overrides += len(records)

	remaining := 0
	for _, rec := range records {
		stale := catalog.Unknown(rec.Override.Grant).Union(catalog.Unknown(rec.Override.Revoke))
		if stale.Len() == 0 {
			continue
		}
		report.StaleUsers++
		report.StaleKeys += stale.Len()

		entry := s.log.WithFields(logrus.Fields{
			"organization_id": orgID,
			"user_id":         rec.UserID,
			"keys":            stale.Strings(),
		})

		if !s.prune {
			entry.Warn("override references retired permissions")
			remaining += stale.Len()
			continue
		}

		pruned, err := s.pruneRecord(ctx, catalog, rec)
		switch {
		case errors.Is(err, apperrors.ErrConflict), errors.Is(err, apperrors.ErrNotFound):
			entry.WithError(err).Info("override changed during scan, skipping")
			report.Conflicts++
			remaining += stale.Len()
		case err != nil:
			return err
		default:
			entry.Info("pruned retired permissions from override")
			report.Pruned += pruned
		}
	}

	s.metrics.SetStaleOverrideKeys(orgID, remaining)
	return nil
}

// pruneRecord rewrites the override without the retired keys, guarded by
// the version the scan read
func (s *StaleOverrideScanner) pruneRecord(ctx context.Context, catalog *permissions.Catalog, rec rbac.OverrideRecord) (int, error) {
	cleaned := permissions.Override{
		Grant:  catalog.Known(rec.Override.Grant),
		Revoke: catalog.Known(rec.Override.Revoke),
	}
	removed := rec.Override.Grant.Len() + rec.Override.Revoke.Len() - cleaned.Grant.Len() - cleaned.Revoke.Len()

	version := rec.Version
	if _, err := s.store.ReplaceOverrides(ctx, rec.OrganizationID, rec.UserID, cleaned, &version); err != nil {
		return 0, err
	}

	audit.Record(ctx, s.audit, &audit.Event{
		EventType:      audit.EventCatalogPrune,
		OrganizationID: rec.OrganizationID,
		ResourceType:   audit.ResourceUser,
		ResourceID:     strconv.FormatInt(rec.UserID, 10),
		Message:        fmt.Sprintf("removed %d retired permission key(s)", removed),
		Changes:        &audit.Changes{Before: rec.Override, After: cleaned},
	})
	return removed, nil
}

// Package cleanup runs the periodic orphaned-record audit. Deleting a vehicle
// leaves its maintenance records behind; the audit only counts and reports
// them, it never deletes.
package cleanup

import (
	"context"
	"sort"
	"time"

	"garage-backend/internal/metrics"
	"garage-backend/internal/repository"
	"garage-backend/pkg/logger"
)

type Report struct {
	CheckedVehicles int       `json:"checkedVehicles"`
	OrphanedIDs     []string  `json:"orphanedVehicleIds"`
	RanAt           time.Time `json:"ranAt"`
}

type OrphanAudit struct {
	vehicles repository.VehicleRepository
	records  repository.MaintenanceRepository
	metrics  *metrics.Metrics
	log      *logger.Logger
	interval time.Duration
	stopChan chan struct{}
	done     chan struct{}
}

func NewOrphanAudit(vehicles repository.VehicleRepository, records repository.MaintenanceRepository, interval time.Duration, log *logger.Logger) *OrphanAudit {
	if log == nil {
		log = logger.Discard()
	}
	return &OrphanAudit{
		vehicles: vehicles,
		records:  records,
		log:      log.WithField("component", "orphan_audit"),
		interval: interval,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (a *OrphanAudit) SetMetrics(m *metrics.Metrics) {
	a.metrics = m
}

// Start runs the audit immediately and then on every tick until Stop. It
// blocks, so callers run it in its own goroutine.
func (a *OrphanAudit) Start() {
	defer close(a.done)
	a.log.WithField("interval", a.interval.String()).Info("Starting orphaned record audit")

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.runOnce()
	for {
		select {
		case <-ticker.C:
			a.runOnce()
		case <-a.stopChan:
			a.log.Info("Stopping orphaned record audit")
			return
		}
	}
}

// Stop ends the loop and waits for a running audit to finish.
func (a *OrphanAudit) Stop() {
	close(a.stopChan)
	<-a.done
}

func (a *OrphanAudit) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := a.Run(ctx); err != nil {
		a.log.WithError(err).Error("Orphaned record audit failed")
	}
}

// Run lists vehicle ids referenced by maintenance records and reports those
// with no vehicle document.
func (a *OrphanAudit) Run(ctx context.Context) (*Report, error) {
	ids, err := a.records.DistinctVehicleIDs(ctx)
	if err != nil {
		return nil, err
	}

	existing, err := a.vehicles.ExistingIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	report := &Report{CheckedVehicles: len(ids), OrphanedIDs: []string{}, RanAt: time.Now()}
	for _, id := range ids {
		if !existing[id] {
			report.OrphanedIDs = append(report.OrphanedIDs, id)
		}
	}
	sort.Strings(report.OrphanedIDs)

	a.metrics.SetOrphanedVehicles(len(report.OrphanedIDs))
	if n := len(report.OrphanedIDs); n > 0 {
		a.log.WithFields(map[string]interface{}{
			"orphaned_vehicles": n,
			"checked_vehicles":  report.CheckedVehicles,
		}).Warn("Maintenance records reference deleted vehicles")
	}
	return report, nil
}

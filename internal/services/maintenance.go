package services

import (
	"context"
	"errors"
	"time"

	"garage-backend/internal/catalog"
	"garage-backend/internal/maintenance"
	"garage-backend/internal/metrics"
	"garage-backend/internal/models"
	"garage-backend/internal/repository"
	"garage-backend/internal/watch"
	"garage-backend/pkg/cache"
	"garage-backend/pkg/logger"
)

type MaintenanceService struct {
	records      repository.MaintenanceRepository
	vehicles     *VehicleService
	cacheManager cache.CacheManager
	cacheConfig  cache.CacheConfig
	metrics      *metrics.Metrics
	log          *logger.Logger
	now          func() time.Time
}

func NewMaintenanceService(records repository.MaintenanceRepository, vehicles *VehicleService, log *logger.Logger) *MaintenanceService {
	if log == nil {
		log = logger.Discard()
	}
	return &MaintenanceService{
		records:     records,
		vehicles:    vehicles,
		cacheConfig: cache.DefaultCacheConfig(),
		log:         log.WithField("service", "maintenance"),
		now:         time.Now,
	}
}

// SetCacheManager enables caching of history summaries.
func (s *MaintenanceService) SetCacheManager(cacheManager cache.CacheManager) {
	s.cacheManager = cacheManager
}

func (s *MaintenanceService) SetCacheConfig(config cache.CacheConfig) {
	s.cacheConfig = config
}

func (s *MaintenanceService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Submit validates draft and writes it as a record of the vehicle. After the
// record is stored the vehicle's mileage is set to the record's mileage even
// when that is lower. A failed mileage update is logged and does not fail the
// submission.
func (s *MaintenanceService) Submit(ctx context.Context, actor Actor, vehicleID string, draft maintenance.Draft) (*models.MaintenanceRecord, error) {
	vehicle, err := s.vehicles.Authorize(ctx, actor, vehicleID, AccessLog)
	if err != nil {
		return nil, err
	}
	if errs := maintenance.Validate(draft); len(errs) > 0 {
		return nil, errs
	}

	record := &models.MaintenanceRecord{
		VehicleID:  vehicleID,
		Type:       draft.Type,
		Date:       draft.Date,
		Mileage:    draft.Mileage,
		LaborCost:  maintenance.Cost(draft.LaborCost),
		PartsCost:  maintenance.Cost(draft.PartsCost),
		TotalCost:  maintenance.TotalCost(draft.LaborCost, draft.PartsCost),
		Notes:      draft.Notes,
		Details:    draft.Details,
		MechanicID: vehicle.MechanicID,
		CreatedBy:  actor.UserID,
		CreatedAt:  s.now(),
	}

	log := s.log.WithUserID(actor.UserID).WithVehicleID(vehicleID)

	created, err := s.records.Create(ctx, record)
	if err != nil {
		s.metrics.RecordWriteFailed()
		log.WithError(err).Error("Failed to save maintenance record")
		return nil, saveError("maintenance", err)
	}
	s.metrics.RecordCreated(string(created.Type))

	s.syncMileage(ctx, log, vehicle, created.Mileage)
	s.invalidateSummary(ctx, vehicleID)

	log.WithFields(map[string]interface{}{
		"record_id": created.ID.Hex(),
		"type":      created.Type,
		"total":     created.TotalCost,
	}).Info("Maintenance record saved")
	return created, nil
}

func (s *MaintenanceService) syncMileage(ctx context.Context, log *logger.Logger, vehicle *models.Vehicle, mileage int) {
	decreased, err := s.vehicles.SyncMileage(ctx, vehicle, mileage)
	switch {
	case err != nil:
		s.metrics.MileageSynced("failed")
		log.WithError(err).WithField("mileage", mileage).Error("Failed to update vehicle mileage; record kept")
	case decreased:
		s.metrics.MileageSynced("decreased")
		log.WithFields(map[string]interface{}{
			"previous": vehicle.Mileage,
			"mileage":  mileage,
		}).Warn("Vehicle mileage decreased by new record")
	default:
		s.metrics.MileageSynced("ok")
	}
}

// SubmitterFor binds actor so a maintenance.Composer can submit through the
// service.
func (s *MaintenanceService) SubmitterFor(actor Actor) maintenance.Submitter {
	return maintenance.SubmitterFunc(func(ctx context.Context, vehicleID string, draft maintenance.Draft) (*models.MaintenanceRecord, error) {
		return s.Submit(ctx, actor, vehicleID, draft)
	})
}

// Compose starts a composer for the vehicle prefilled with today's date and
// the vehicle's current mileage.
func (s *MaintenanceService) Compose(ctx context.Context, actor Actor, vehicleID string) (*maintenance.Composer, error) {
	vehicle, err := s.vehicles.Authorize(ctx, actor, vehicleID, AccessLog)
	if err != nil {
		return nil, err
	}
	return maintenance.NewComposer(vehicleID, vehicle.Mileage, s.now()), nil
}

// History returns the vehicle's records newest first.
func (s *MaintenanceService) History(ctx context.Context, actor Actor, vehicleID string) ([]*models.MaintenanceRecord, error) {
	if _, err := s.vehicles.Authorize(ctx, actor, vehicleID, AccessRead); err != nil {
		return nil, err
	}
	return s.history(ctx, vehicleID)
}

// history runs the store-ordered query. When the store reports that it cannot
// sort, it falls back once to an unordered read sorted in memory.
func (s *MaintenanceService) history(ctx context.Context, vehicleID string) ([]*models.MaintenanceRecord, error) {
	records, err := s.records.ListByVehicleOrdered(ctx, vehicleID)
	if err == nil {
		return records, nil
	}
	if !errors.Is(err, repository.ErrIndexUnavailable) {
		return nil, err
	}

	s.metrics.IndexFallback()
	s.log.WithVehicleID(vehicleID).WithError(err).Warn("Ordered history query unavailable, sorting in memory")

	records, err = s.records.ListByVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	maintenance.SortByDateDesc(records)
	return records, nil
}

// Summary aggregates the vehicle's history.
func (s *MaintenanceService) Summary(ctx context.Context, actor Actor, vehicleID string) (maintenance.Summary, error) {
	if _, err := s.vehicles.Authorize(ctx, actor, vehicleID, AccessRead); err != nil {
		return maintenance.Summary{}, err
	}
	return s.summary(ctx, vehicleID)
}

func (s *MaintenanceService) summary(ctx context.Context, vehicleID string) (maintenance.Summary, error) {
	if s.cacheManager != nil {
		cached, err := s.cacheManager.GetSummary(ctx, vehicleID)
		if err != nil {
			s.log.WithVehicleID(vehicleID).WithError(err).Warn("Summary cache read failed")
		}
		s.metrics.CacheLookup("summary", cached != nil)
		if cached != nil {
			return *cached, nil
		}
	}

	records, err := s.history(ctx, vehicleID)
	if err != nil {
		return maintenance.Summary{}, err
	}
	summary := maintenance.Summarize(records)

	if s.cacheManager != nil {
		ttl := s.cacheConfig.GetTTLForDataType("summary")
		if err := s.cacheManager.SetSummary(ctx, vehicleID, summary, ttl); err != nil {
			s.log.WithVehicleID(vehicleID).WithError(err).Warn("Failed to cache summary")
		}
	}
	return summary, nil
}

// Overview is the vehicle detail view: the vehicle, its summary and the most
// recent records.
type Overview struct {
	Vehicle *models.Vehicle             `json:"vehicle"`
	Logo    string                      `json:"logo"`
	Summary maintenance.Summary         `json:"summary"`
	Recent  []*models.MaintenanceRecord `json:"recent"`
	HasMore bool                        `json:"hasMore"`
}

func (s *MaintenanceService) Overview(ctx context.Context, actor Actor, vehicleID string) (*Overview, error) {
	vehicle, err := s.vehicles.Authorize(ctx, actor, vehicleID, AccessRead)
	if err != nil {
		return nil, err
	}
	records, err := s.history(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	return buildOverview(vehicle, records), nil
}

func buildOverview(vehicle *models.Vehicle, records []*models.MaintenanceRecord) *Overview {
	recent, more := maintenance.Recent(records, maintenance.RecentLimit)
	if recent == nil {
		recent = []*models.MaintenanceRecord{}
	}
	return &Overview{
		Vehicle: vehicle,
		Logo:    catalog.LogoFor(vehicle.Make),
		Summary: maintenance.Summarize(records),
		Recent:  recent,
		HasMore: more,
	}
}

// HistoryView is what a live history subscription delivers.
type HistoryView struct {
	Records []*models.MaintenanceRecord `json:"records"`
	Summary maintenance.Summary         `json:"summary"`
}

// Watch delivers the vehicle's history now and after every new record until
// the subscription is cancelled. A caller without access gets an error
// instead of a subscription, or an error snapshot once access is lost.
func (s *MaintenanceService) Watch(ctx context.Context, actor Actor, vehicleID string, deliver func(*HistoryView, error)) (*watch.Subscription, error) {
	if _, err := s.vehicles.Authorize(ctx, actor, vehicleID, AccessRead); err != nil {
		return nil, err
	}

	// Access is rechecked on every snapshot; an unassigned mechanic stops
	// receiving history at the next write.
	return s.records.WatchByVehicle(vehicleID, func() {
		if _, err := s.vehicles.Authorize(context.Background(), actor, vehicleID, AccessRead); err != nil {
			deliver(nil, err)
			return
		}
		records, err := s.history(context.Background(), vehicleID)
		if err != nil {
			deliver(nil, err)
			return
		}
		if records == nil {
			records = []*models.MaintenanceRecord{}
		}
		deliver(&HistoryView{Records: records, Summary: maintenance.Summarize(records)}, nil)
	}), nil
}

func (s *MaintenanceService) invalidateSummary(ctx context.Context, vehicleID string) {
	if s.cacheManager == nil {
		return
	}
	if err := s.cacheManager.InvalidateByTag(ctx, cache.VehicleTag(vehicleID)); err != nil {
		s.log.WithVehicleID(vehicleID).WithError(err).Warn("Failed to invalidate summary cache")
	}
}

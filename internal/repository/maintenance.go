package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"garage-backend/internal/models"
	"garage-backend/internal/watch"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MaintenanceIndexName names the compound index the ordered history query is
// hinted to.
const MaintenanceIndexName = "vehicle_date_desc"

// Server error codes for an ordered query the store cannot serve: BadValue
// for a hint naming no index, IndexNotFound, and an in-memory sort that ran
// past its limit without the index.
var indexErrorCodes = map[int32]bool{
	2:   true,
	27:  true,
	292: true,
}

// maintenanceDocument is the stored shape of a record. Details stay raw until
// the type is known.
type maintenanceDocument struct {
	ID         primitive.ObjectID     `bson:"_id,omitempty"`
	VehicleID  string                 `bson:"vehicle_id"`
	Type       models.MaintenanceType `bson:"type"`
	Date       string                 `bson:"date"`
	Mileage    int                    `bson:"mileage"`
	LaborCost  float64                `bson:"labor_cost"`
	PartsCost  float64                `bson:"parts_cost"`
	TotalCost  float64                `bson:"total_cost"`
	Notes      string                 `bson:"notes,omitempty"`
	Details    bson.Raw               `bson:"details,omitempty"`
	MechanicID string                 `bson:"mechanic_id,omitempty"`
	CreatedBy  string                 `bson:"created_by"`
	CreatedAt  time.Time              `bson:"created_at"`
}

func toDocument(r *models.MaintenanceRecord) (*maintenanceDocument, error) {
	doc := &maintenanceDocument{
		ID:         r.ID,
		VehicleID:  r.VehicleID,
		Type:       r.Type,
		Date:       r.Date,
		Mileage:    r.Mileage,
		LaborCost:  r.LaborCost,
		PartsCost:  r.PartsCost,
		TotalCost:  r.TotalCost,
		Notes:      r.Notes,
		MechanicID: r.MechanicID,
		CreatedBy:  r.CreatedBy,
		CreatedAt:  r.CreatedAt,
	}
	if r.Details != nil {
		raw, err := bson.Marshal(r.Details)
		if err != nil {
			return nil, fmt.Errorf("encode %s details: %w", r.Type, err)
		}
		doc.Details = raw
	}
	return doc, nil
}

func (d *maintenanceDocument) toRecord() (*models.MaintenanceRecord, error) {
	record := &models.MaintenanceRecord{
		ID:         d.ID,
		VehicleID:  d.VehicleID,
		Type:       d.Type,
		Date:       d.Date,
		Mileage:    d.Mileage,
		LaborCost:  d.LaborCost,
		PartsCost:  d.PartsCost,
		TotalCost:  d.TotalCost,
		Notes:      d.Notes,
		MechanicID: d.MechanicID,
		CreatedBy:  d.CreatedBy,
		CreatedAt:  d.CreatedAt,
	}
	if len(d.Details) == 0 {
		return record, nil
	}

	details, err := models.NewDetails(d.Type)
	if err != nil {
		return nil, err
	}
	if err := bson.Unmarshal(d.Details, details); err != nil {
		return nil, fmt.Errorf("decode %s details: %w", d.Type, err)
	}
	record.Details = details
	return record, nil
}

type MongoMaintenanceRepository struct {
	collection *mongo.Collection
	hub        *watch.Hub
}

func NewMaintenanceRepository(db *mongo.Database, hub *watch.Hub) *MongoMaintenanceRepository {
	return &MongoMaintenanceRepository{
		collection: db.Collection("maintenance"),
		hub:        hub,
	}
}

func (r *MongoMaintenanceRepository) Create(ctx context.Context, record *models.MaintenanceRecord) (*models.MaintenanceRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	record.ID = primitive.NewObjectID()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	doc, err := toDocument(record)
	if err != nil {
		return nil, err
	}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return nil, err
	}

	r.hub.Publish(watch.MaintenanceTopic(record.VehicleID))
	return record, nil
}

func (r *MongoMaintenanceRepository) ListByVehicleOrdered(ctx context.Context, vehicleID string) ([]*models.MaintenanceRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: -1}, {Key: "created_at", Value: -1}}).
		SetHint(MaintenanceIndexName)

	records, err := r.find(ctx, bson.M{"vehicle_id": vehicleID}, opts)
	if err != nil && isIndexError(err) {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	return records, err
}

func (r *MongoMaintenanceRepository) ListByVehicle(ctx context.Context, vehicleID string) ([]*models.MaintenanceRecord, error) {
	return r.find(ctx, bson.M{"vehicle_id": vehicleID}, options.Find())
}

func (r *MongoMaintenanceRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.MaintenanceRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	records := []*models.MaintenanceRecord{}
	for cursor.Next(ctx) {
		var doc maintenanceDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		record, err := doc.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, cursor.Err()
}

func (r *MongoMaintenanceRepository) CountByVehicle(ctx context.Context, vehicleID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return r.collection.CountDocuments(ctx, bson.M{"vehicle_id": vehicleID})
}

func (r *MongoMaintenanceRepository) DistinctVehicleIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	values, err := r.collection.Distinct(ctx, "vehicle_id", bson.M{})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *MongoMaintenanceRepository) WatchByVehicle(vehicleID string, fn func()) *watch.Subscription {
	return watch.Watch(r.hub, watch.MaintenanceTopic(vehicleID), fn)
}

// CreateIndexes creates the compound index backing the ordered history query.
func (r *MongoMaintenanceRepository) CreateIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "vehicle_id", Value: 1},
				{Key: "date", Value: -1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName(MaintenanceIndexName),
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func isIndexError(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return indexErrorCodes[cmdErr.Code]
	}
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		for code := range indexErrorCodes {
			if serverErr.HasErrorCode(int(code)) {
				return true
			}
		}
	}
	return false
}

package repository

import (
	"context"
	"errors"
	"time"

	"garage-backend/internal/models"
	"garage-backend/internal/watch"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const queryTimeout = 10 * time.Second

type MongoVehicleRepository struct {
	collection *mongo.Collection
	hub        *watch.Hub
}

func NewVehicleRepository(db *mongo.Database, hub *watch.Hub) *MongoVehicleRepository {
	return &MongoVehicleRepository{
		collection: db.Collection("vehicles"),
		hub:        hub,
	}
}

func (r *MongoVehicleRepository) Create(ctx context.Context, vehicle *models.Vehicle) (*models.Vehicle, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	now := time.Now()
	vehicle.ID = primitive.NewObjectID()
	vehicle.CreatedAt = now
	vehicle.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, vehicle); err != nil {
		return nil, err
	}

	r.publish(vehicle)
	return vehicle, nil
}

func (r *MongoVehicleRepository) FindByID(ctx context.Context, id string) (*models.Vehicle, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}

	var vehicle models.Vehicle
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&vehicle)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrVehicleNotFound
		}
		return nil, err
	}

	return &vehicle, nil
}

func (r *MongoVehicleRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Vehicle, error) {
	return r.list(ctx, bson.M{"owner_id": ownerID})
}

func (r *MongoVehicleRepository) ListByMechanic(ctx context.Context, mechanicID string) ([]*models.Vehicle, error) {
	return r.list(ctx, bson.M{"mechanic_id": mechanicID})
}

func (r *MongoVehicleRepository) list(ctx context.Context, filter bson.M) ([]*models.Vehicle, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	vehicles := []*models.Vehicle{}
	for cursor.Next(ctx) {
		var vehicle models.Vehicle
		if err := cursor.Decode(&vehicle); err != nil {
			return nil, err
		}
		vehicles = append(vehicles, &vehicle)
	}

	return vehicles, cursor.Err()
}

func (r *MongoVehicleRepository) Replace(ctx context.Context, id string, vehicle *models.Vehicle) (*models.Vehicle, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}

	previous, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	update := bson.M{
		"$set": bson.M{
			"make":         vehicle.Make,
			"model":        vehicle.Model,
			"year":         vehicle.Year,
			"vin":          vehicle.VIN,
			"plate_number": vehicle.PlateNumber,
			"engine_type":  vehicle.EngineType,
			"transmission": vehicle.Transmission,
			"drivetrain":   vehicle.Drivetrain,
			"mileage":      vehicle.Mileage,
			"mechanic_id":  vehicle.MechanicID,
			"updated_at":   time.Now(),
		},
	}

	result := r.collection.FindOneAndUpdate(
		ctx,
		bson.M{"_id": objectID},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)

	var updated models.Vehicle
	if err := result.Decode(&updated); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrVehicleNotFound
		}
		return nil, err
	}

	// a reassigned vehicle leaves the old mechanic's list
	if previous.MechanicID != updated.MechanicID && previous.MechanicID != "" {
		r.hub.Publish(watch.MechanicVehiclesTopic(previous.MechanicID))
	}
	r.publish(&updated)
	return &updated, nil
}

func (r *MongoVehicleRepository) UpdateMileage(ctx context.Context, id string, mileage int) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrInvalidID
	}

	result := r.collection.FindOneAndUpdate(
		ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": bson.M{"mileage": mileage, "updated_at": time.Now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)

	var updated models.Vehicle
	if err := result.Decode(&updated); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrVehicleNotFound
		}
		return err
	}

	r.publish(&updated)
	return nil
}

func (r *MongoVehicleRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrInvalidID
	}

	var deleted models.Vehicle
	err = r.collection.FindOneAndDelete(ctx, bson.M{"_id": objectID}).Decode(&deleted)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrVehicleNotFound
		}
		return err
	}

	r.publish(&deleted)
	return nil
}

// ExistingIDs reports which of ids still name a stored vehicle.
func (r *MongoVehicleRepository) ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	objectIDs := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			objectIDs = append(objectIDs, oid)
		}
	}

	existing := make(map[string]bool, len(ids))
	if len(objectIDs) == 0 {
		return existing, nil
	}

	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": objectIDs}}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		existing[doc.ID.Hex()] = true
	}

	return existing, cursor.Err()
}

func (r *MongoVehicleRepository) WatchByOwner(ownerID string, fn func([]*models.Vehicle, error)) *watch.Subscription {
	return watch.Query(r.hub, watch.OwnerVehiclesTopic(ownerID), func() ([]*models.Vehicle, error) {
		return r.ListByOwner(context.Background(), ownerID)
	}, fn)
}

func (r *MongoVehicleRepository) WatchByMechanic(mechanicID string, fn func([]*models.Vehicle, error)) *watch.Subscription {
	return watch.Query(r.hub, watch.MechanicVehiclesTopic(mechanicID), func() ([]*models.Vehicle, error) {
		return r.ListByMechanic(context.Background(), mechanicID)
	}, fn)
}

func (r *MongoVehicleRepository) WatchVehicle(id string, fn func(*models.Vehicle, error)) *watch.Subscription {
	return watch.Query(r.hub, watch.VehicleTopic(id), func() (*models.Vehicle, error) {
		return r.FindByID(context.Background(), id)
	}, fn)
}

func (r *MongoVehicleRepository) publish(v *models.Vehicle) {
	topics := []string{watch.VehicleTopic(v.ID.Hex()), watch.OwnerVehiclesTopic(v.OwnerID)}
	if v.MechanicID != "" {
		topics = append(topics, watch.MechanicVehiclesTopic(v.MechanicID))
	}
	r.hub.Publish(topics...)
}

// CreateIndexes creates the indexes the vehicle list queries rely on.
func (r *MongoVehicleRepository) CreateIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "mechanic_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

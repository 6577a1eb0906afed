package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mgoSrv "github.com/ivanros02/los4Fantasticos/service/mgo"
	"github.com/ivanros02/los4Fantasticos/service/relay"
)

const locationsCollection = "locations"

// LocationRecord is the persisted shape: one document per member, current
// snapshot only, overwritten in place.
type LocationRecord struct {
	UID       string    `bson:"_id"`
	Lat       float64   `bson:"lat"`
	Lng       float64   `bson:"lng"`
	Timestamp int64     `bson:"timestamp"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// MongoStore writes throttled last-known positions to mongo. Fails (and the
// caller skips the write) while the async mongo manager is not ready.
type MongoStore struct{}

func NewMongoStore() *MongoStore { return &MongoStore{} }

func (s *MongoStore) Save(ctx context.Context, uid string, loc relay.Location) error {
	db, ok := mgoSrv.TryGetDB()
	if !ok {
		return errors.New("mongo not ready")
	}

	rec := LocationRecord{
		UID:       uid,
		Lat:       loc.Lat,
		Lng:       loc.Lng,
		Timestamp: loc.Timestamp,
		UpdatedAt: time.Now(),
	}

	_, err := db.Collection(locationsCollection).ReplaceOne(
		ctx,
		bson.M{"_id": uid},
		rec,
		options.Replace().SetUpsert(true),
	)
	return errors.Wrapf(err, "save location uid=%s", uid)
}

// Last reads a member's persisted position, the read side used by local
// tooling and the HTTP surface.
func (s *MongoStore) Last(ctx context.Context, uid string) (*relay.Location, error) {
	db, ok := mgoSrv.TryGetDB()
	if !ok {
		return nil, errors.New("mongo not ready")
	}

	var rec LocationRecord
	err := db.Collection(locationsCollection).FindOne(ctx, bson.M{"_id": uid}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load location uid=%s", uid)
	}
	return &relay.Location{Lat: rec.Lat, Lng: rec.Lng, Timestamp: rec.Timestamp}, nil
}

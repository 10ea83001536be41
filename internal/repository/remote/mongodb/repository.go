package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/dairysync/internal/domain/models"
	"github.com/mamadbah2/dairysync/internal/repository/remote"
)

const (
	fieldID      = "_id"
	fieldOwnerID = "owner_id"
	fieldDocID   = "doc_id"
)

var collectionNames = map[models.EntityType]string{
	models.EntityUser:          "users",
	models.EntityFarmer:        "farmers",
	models.EntityPriceBracket:  "fat_table",
	models.EntityCollection:    "milk_collection",
	models.EntityBillingCycle:  "billing_cycle",
	models.EntityBillingDetail: "billing_cycle_farmers",
}

// MongoDBRepository implements remote.Store. Each entity type lives in its own
// collection; documents use their hierarchical path as _id and carry owner_id.
type MongoDBRepository struct {
	client *mongo.Client
	dbName string
	logger *zap.Logger
}

// NewMongoDBRepository connects to uri and verifies the connection.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string, logger *zap.Logger) (*MongoDBRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoDBRepository{
		client: client,
		dbName: dbName,
		logger: logger,
	}, nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *MongoDBRepository) collection(kind models.EntityType) (*mongo.Collection, error) {
	name, ok := collectionNames[kind]
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", kind)
	}
	return r.client.Database(r.dbName).Collection(name), nil
}

// FetchAll implements remote.Store.
func (r *MongoDBRepository) FetchAll(ctx context.Context, kind models.EntityType, ownerID string) ([]remote.Document, error) {
	coll, err := r.collection(kind)
	if err != nil {
		return nil, err
	}

	cursor, err := coll.Find(ctx, bson.M{fieldOwnerID: ownerID})
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", kind, err)
	}

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("read %s cursor: %w", kind, err)
	}

	docs := make([]remote.Document, 0, len(raw))
	for _, m := range raw {
		docs = append(docs, fromBSON(kind, ownerID, m))
	}
	return docs, nil
}

// Put implements remote.Store as an upsert keyed by the document path.
func (r *MongoDBRepository) Put(ctx context.Context, doc remote.Document) error {
	coll, err := r.collection(doc.Kind)
	if err != nil {
		return err
	}

	body := bson.M{}
	for k, v := range doc.Fields {
		body[k] = v
	}
	body[fieldID] = doc.Path()
	body[fieldOwnerID] = doc.OwnerID
	body[fieldDocID] = doc.ID

	filter := bson.M{fieldID: doc.Path(), fieldOwnerID: doc.OwnerID}
	if _, err := coll.ReplaceOne(ctx, filter, body, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("put %s: %w", doc.Path(), err)
	}
	return nil
}

// Delete implements remote.Store.
func (r *MongoDBRepository) Delete(ctx context.Context, kind models.EntityType, ownerID, id string) error {
	coll, err := r.collection(kind)
	if err != nil {
		return err
	}

	path := remote.Path(kind, ownerID, id)
	match := bson.A{bson.M{fieldID: path}, bson.M{fieldDocID: id}}
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		match = append(match, bson.M{fieldID: oid})
	}
	if _, err := coll.DeleteMany(ctx, bson.M{"$or": match, fieldOwnerID: ownerID}); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// Subscribe implements remote.Store with a change stream filtered to the
// owner's path prefix. Every event triggers a fresh FetchAll.
func (r *MongoDBRepository) Subscribe(ctx context.Context, kind models.EntityType, ownerID string) (<-chan remote.Snapshot, error) {
	coll, err := r.collection(kind)
	if err != nil {
		return nil, err
	}

	pattern := "^" + regexp.QuoteMeta("users/"+ownerID) + "(/|$)"
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: bson.D{{Key: "$regex", Value: pattern}}}}}},
	}

	stream, err := coll.Watch(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", kind, err)
	}

	out := make(chan remote.Snapshot, 1)
	go func() {
		defer close(out)
		defer func() { _ = stream.Close(context.Background()) }()

		if !r.emit(ctx, out, kind, ownerID) {
			return
		}
		for stream.Next(ctx) {
			if !r.emit(ctx, out, kind, ownerID) {
				return
			}
		}
		if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn("change stream closed", zap.String("kind", string(kind)), zap.Error(err))
		}
	}()

	return out, nil
}

func (r *MongoDBRepository) emit(ctx context.Context, out chan<- remote.Snapshot, kind models.EntityType, ownerID string) bool {
	docs, err := r.FetchAll(ctx, kind, ownerID)
	if err != nil {
		r.logger.Warn("snapshot fetch failed", zap.String("kind", string(kind)), zap.Error(err))
		return ctx.Err() == nil
	}

	select {
	case out <- remote.Snapshot{Kind: kind, OwnerID: ownerID, Docs: docs}:
		return true
	case <-ctx.Done():
		return false
	}
}

func fromBSON(kind models.EntityType, ownerID string, m bson.M) remote.Document {
	id, _ := m[fieldDocID].(string)
	fields := make(map[string]any, len(m))
	for k, v := range m {
		switch k {
		case fieldID, fieldOwnerID, fieldDocID:
			continue
		}
		fields[k] = v
	}
	if id == "" {
		// Legacy documents were stored under generated ids.
		switch v := m[fieldID].(type) {
		case primitive.ObjectID:
			id = v.Hex()
		default:
			id = fmt.Sprint(v)
		}
	}
	return remote.Document{Kind: kind, OwnerID: ownerID, ID: id, Fields: fields}
}

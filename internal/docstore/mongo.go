package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Mongo implements Store on a MongoDB database. Each service's documents
// live in their own collection; the entity identifier is the document's
// _id, which makes ReplaceOne-with-upsert the natural idempotent write.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// OpenMongo connects to the MongoDB deployment at uri and binds to the
// named database. The connection is verified with a ping so wiring errors
// surface at startup rather than on the first flush cycle.
func OpenMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("docstore: connect %q: %w", uri, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("docstore: ping: %w", err)
	}
	return &Mongo{client: client, db: client.Database(database)}, nil
}

// Upsert replaces the document under (collection, id), inserting it when
// absent. The JSON doc is stored as a real document under the "data"
// field so it remains queryable server-side.
func (m *Mongo) Upsert(ctx context.Context, collection, id string, doc []byte) error {
	var data bson.M
	if err := json.Unmarshal(doc, &data); err != nil {
		return fmt.Errorf("docstore: upsert %s/%s: decode doc: %w", collection, id, err)
	}

	replacement := bson.M{"_id": id, "data": data}
	_, err := m.db.Collection(collection).ReplaceOne(
		ctx,
		bson.M{"_id": id},
		replacement,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("docstore: upsert %s/%s: %w", collection, id, err)
	}
	return nil
}

// Load reads the document under (collection, id) back as JSON.
func (m *Mongo) Load(ctx context.Context, collection, id string) ([]byte, bool, error) {
	var stored struct {
		Data bson.M `bson:"data"`
	}
	err := m.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&stored)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("docstore: load %s/%s: %w", collection, id, err)
	}

	doc, err := json.Marshal(stored.Data)
	if err != nil {
		return nil, false, fmt.Errorf("docstore: load %s/%s: encode doc: %w", collection, id, err)
	}
	return doc, true, nil
}

// Close disconnects from the deployment.
func (m *Mongo) Close(ctx context.Context) error {
	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("docstore: disconnect: %w", err)
	}
	return nil
}

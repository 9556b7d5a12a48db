package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoDBTable implements Table on a MongoDB collection.
// Counter updates use FindOneAndUpdate with the predicate in the filter.
type MongoDBTable struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type mongoItem struct {
	PK    string                 `bson:"pk"`
	SK    string                 `bson:"sk"`
	Type  string                 `bson:"type"`
	Attrs map[string]interface{} `bson:"attrs"`
}

func (d mongoItem) item() Item {
	return Item{PK: d.PK, SK: d.SK, Type: d.Type, Attrs: normalizeAttrs(d.Attrs)}
}

// NewMongoDBTable connects to MongoDB and ensures the (pk, sk) unique index.
func NewMongoDBTable(uri, database, collection string, logger *zap.Logger) (*MongoDBTable, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	coll := client.Database(database).Collection(collection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "pk", Value: 1}, {Key: "sk", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "sk", Value: 1}}},
		{Keys: bson.D{{Key: "type", Value: 1}}},
	}
	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		logger.Warn("failed to create mongodb indexes", zap.Error(err))
	}

	logger.Info("mongodb table ready", zap.String("database", database), zap.String("collection", collection))
	return &MongoDBTable{client: client, collection: coll}, nil
}

func keyFilter(key Key) bson.M {
	return bson.M{"pk": key.PK, "sk": key.SK}
}

func prefixRegex(prefix string) bson.M {
	return bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}
}

// Get returns the item stored at key.
func (t *MongoDBTable) Get(ctx context.Context, key Key) (*Item, error) {
	var doc mongoItem
	err := t.collection.FindOne(ctx, keyFilter(key)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get item %s: %w", key, err)
	}
	item := doc.item()
	return &item, nil
}

// Query returns the partition's items with the given SK prefix, ordered by SK.
func (t *MongoDBTable) Query(ctx context.Context, pk, skPrefix string) ([]Item, error) {
	filter := bson.M{"pk": pk}
	if skPrefix != "" {
		filter["sk"] = prefixRegex(skPrefix)
	}
	opts := options.Find().SetSort(bson.D{{Key: "sk", Value: 1}})
	return t.find(ctx, filter, opts)
}

// Scan returns every item matching the filter.
func (t *MongoDBTable) Scan(ctx context.Context, filter Filter) ([]Item, error) {
	q := bson.M{}
	if filter.Type != "" {
		q["type"] = filter.Type
	}
	switch {
	case filter.SK != "":
		q["sk"] = filter.SK
	case filter.SKPrefix != "":
		q["sk"] = prefixRegex(filter.SKPrefix)
	}
	items, err := t.find(ctx, q, options.Find())
	if err != nil {
		return nil, err
	}
	if filter.SK != "" && filter.SKPrefix != "" {
		out := items[:0]
		for _, item := range items {
			if filter.Match(item) {
				out = append(out, item)
			}
		}
		items = out
	}
	return items, nil
}

func (t *MongoDBTable) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]Item, error) {
	cursor, err := t.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find items: %w", err)
	}
	defer cursor.Close(ctx)

	var items []Item
	for cursor.Next(ctx) {
		var doc mongoItem
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode item: %w", err)
		}
		items = append(items, doc.item())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}

// Put writes the item with an upserting replace.
func (t *MongoDBTable) Put(ctx context.Context, item Item) error {
	doc := mongoItem{PK: item.PK, SK: item.SK, Type: item.Type, Attrs: normalizeAttrs(item.Attrs)}
	opts := options.Replace().SetUpsert(true)
	if _, err := t.collection.ReplaceOne(ctx, keyFilter(item.Key()), doc, opts); err != nil {
		return fmt.Errorf("failed to put item %s: %w", item.Key(), err)
	}
	return nil
}

// Delete removes the item.
func (t *MongoDBTable) Delete(ctx context.Context, key Key) error {
	if _, err := t.collection.DeleteOne(ctx, keyFilter(key)); err != nil {
		return fmt.Errorf("failed to delete item %s: %w", key, err)
	}
	return nil
}

// maxCounterRetries bounds the re-attempts of a counter update that raced a concurrent change.
const maxCounterRetries = 3

// UpdateCounter increments the attribute with $inc, guarded by a $gte filter.
func (t *MongoDBTable) UpdateCounter(ctx context.Context, key Key, upd CounterUpdate) (*Item, error) {
	if err := upd.Validate(); err != nil {
		return nil, err
	}

	field := "attrs." + upd.Attr
	filter := keyFilter(key)
	if upd.Min != nil {
		filter[field] = bson.M{"$gte": *upd.Min}
	}
	update := bson.M{"$inc": bson.M{field: upd.Delta}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	// The failed update and the re-read are separate operations. When the re-read
	// shows a value that satisfies the predicate the counter moved in between, so retry.
	for attempt := 0; ; attempt++ {
		var doc mongoItem
		err := t.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
		if err == nil {
			item := doc.item()
			return &item, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("failed to update counter on %s: %w", key, err)
		}

		existing, err := t.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if upd.Min == nil || existing.Int(upd.Attr) < *upd.Min || attempt == maxCounterRetries {
			return existing, ErrConditionFailed
		}
	}
}

// Stats returns item counts per type.
func (t *MongoDBTable) Stats(ctx context.Context) (map[string]interface{}, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$type"}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
	}
	cursor, err := t.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate stats: %w", err)
	}
	defer cursor.Close(ctx)

	var groups []struct {
		Type  string `bson:"_id"`
		Count int    `bson:"count"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("failed to decode stats: %w", err)
	}

	byType := make(map[string]int, len(groups))
	total := 0
	for _, g := range groups {
		byType[g.Type] = g.Count
		total += g.Count
	}
	return map[string]interface{}{
		"backend":     "mongodb",
		"total_items": total,
		"by_type":     byType,
	}, nil
}

// Close disconnects from MongoDB.
func (t *MongoDBTable) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return t.client.Disconnect(ctx)
}

// Ensure MongoDBTable implements Table
var _ Table = (*MongoDBTable)(nil)

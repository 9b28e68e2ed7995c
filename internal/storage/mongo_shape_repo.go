package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/annel0/microblock/internal/vec"
)

// MongoConfig contains connection settings for MongoDB shape repository.
type MongoConfig struct {
	URI        string // e.g. mongodb://localhost:27017
	Database   string // e.g. microblock
	Collection string // e.g. shapes
}

// MongoShapeRepo хранит дерево формы поддокументом, чтобы его можно было
// читать запросами Mongo. Сжатые данные хранятся двоичным полем blob.
type MongoShapeRepo struct {
	client     *mongo.Client
	collection *mongo.Collection
	ctxTimeout time.Duration
}

type mongoShapeDoc struct {
	ID    string   `bson:"_id"`
	X     int      `bson:"x"`
	Y     int      `bson:"y"`
	Z     int      `bson:"z"`
	Shape bson.Raw `bson:"shape,omitempty"`
	Blob  []byte   `bson:"blob,omitempty"`
}

// NewMongoShapeRepo establishes connection and returns repository.
func NewMongoShapeRepo(cfg MongoConfig) (*MongoShapeRepo, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "microblock"
	}
	if cfg.Collection == "" {
		cfg.Collection = "shapes"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MongoDB: %w", err)
	}
	// ping
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("MongoDB не отвечает: %w", err)
	}

	repo := &MongoShapeRepo{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		ctxTimeout: 5 * time.Second,
	}
	if err := repo.ensureIndexes(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (m *MongoShapeRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()
	posIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "x", Value: 1}, {Key: "y", Value: 1}, {Key: "z", Value: 1}},
		Options: options.Index().SetName("pos"),
	}
	_, err := m.collection.Indexes().CreateOne(ctx, posIdx)
	return err
}

func (m *MongoShapeRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.ctxTimeout)
}

// toMongoDoc кладёт корректный BSON поддокументом, остальное двоичным полем
func toMongoDoc(pos vec.Vec3, blob []byte) mongoShapeDoc {
	doc := mongoShapeDoc{ID: pos.Key(), X: pos.X, Y: pos.Y, Z: pos.Z}
	if raw := bson.Raw(blob); len(blob) > 0 && raw.Validate() == nil {
		doc.Shape = raw
	} else {
		doc.Blob = blob
	}
	return doc
}

// Save implements ShapeRepo.
func (m *MongoShapeRepo) Save(ctx context.Context, pos vec.Vec3, blob []byte) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	doc := toMongoDoc(pos, blob)
	_, err := m.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("ошибка сохранения %s в MongoDB: %w", pos, err)
	}
	return nil
}

// Load implements ShapeRepo.
func (m *MongoShapeRepo) Load(ctx context.Context, pos vec.Vec3) ([]byte, bool, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var doc mongoShapeDoc
	err := m.collection.FindOne(ctx, bson.M{"_id": pos.Key()}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения %s из MongoDB: %w", pos, err)
	}
	if doc.Shape != nil {
		return []byte(doc.Shape), true, nil
	}
	return doc.Blob, true, nil
}

// Delete implements ShapeRepo.
func (m *MongoShapeRepo) Delete(ctx context.Context, pos vec.Vec3) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	res, err := m.collection.DeleteOne(ctx, bson.M{"_id": pos.Key()})
	if err != nil {
		return fmt.Errorf("ошибка удаления %s из MongoDB: %w", pos, err)
	}
	if res.DeletedCount == 0 {
		return notFound(pos)
	}
	return nil
}

// BatchSave implements ShapeRepo through an unordered bulk upsert.
func (m *MongoShapeRepo) BatchSave(ctx context.Context, blobs map[vec.Vec3][]byte) error {
	if len(blobs) == 0 {
		return nil
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	models := make([]mongo.WriteModel, 0, len(blobs))
	for pos, blob := range blobs {
		doc := toMongoDoc(pos, blob)
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.ID}).
			SetReplacement(doc).
			SetUpsert(true))
	}

	if _, err := m.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("ошибка пакетной записи в MongoDB: %w", err)
	}
	return nil
}

// Positions implements ShapeRepo.
func (m *MongoShapeRepo) Positions(ctx context.Context) ([]vec.Vec3, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	opts := options.Find().
		SetProjection(bson.M{"x": 1, "y": 1, "z": 1}).
		SetSort(bson.D{{Key: "x", Value: 1}, {Key: "y", Value: 1}, {Key: "z", Value: 1}})
	cur, err := m.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения позиций из MongoDB: %w", err)
	}

	var docs []mongoShapeDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("ошибка разбора позиций: %w", err)
	}

	out := make([]vec.Vec3, len(docs))
	for i, d := range docs {
		out[i] = vec.Vec3{X: d.X, Y: d.Y, Z: d.Z}
	}
	return out, nil
}

// Close disconnects the client.
func (m *MongoShapeRepo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// Package mongodb stores products in a MongoDB collection. Compare-and-set filters the
// replacement on the document version field.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"productservice/internal/product"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const collectionName = "products"

var createdAsc = bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}

type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// Connect dials uri and pings the primary. Failures wrap product.ErrStoreUnavailable.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%w: connect mongo: %v", product.ErrStoreUnavailable, err)
	}
	s := &Store{
		client:     client,
		collection: client.Database(database).Collection(collectionName),
	}
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: ping mongo: %v", product.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Insert(ctx context.Context, p product.Product) error {
	if _, err := s.collection.InsertOne(ctx, p); err != nil {
		return fmt.Errorf("insert product %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (product.Product, error) {
	var p product.Product
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return product.Product{}, product.ErrNotFound
	}
	if err != nil {
		return product.Product{}, fmt.Errorf("get product %s: %w", id, err)
	}
	return p, nil
}

func (s *Store) Update(ctx context.Context, p product.Product, expectedVersion int64) error {
	res, err := s.collection.ReplaceOne(ctx, bson.M{"_id": p.ID, "__v": expectedVersion}, p)
	if err != nil {
		return fmt.Errorf("update product %s: %w", p.ID, err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := s.collection.CountDocuments(ctx, bson.M{"_id": p.ID})
	if err != nil {
		return fmt.Errorf("update product %s: %w", p.ID, err)
	}
	if n == 0 {
		return product.ErrNotFound
	}
	return product.ErrVersionConflict
}

func (s *Store) Delete(ctx context.Context, id string) (product.Product, error) {
	var p product.Product
	err := s.collection.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return product.Product{}, product.ErrNotFound
	}
	if err != nil {
		return product.Product{}, fmt.Errorf("delete product %s: %w", id, err)
	}
	return p, nil
}

func (s *Store) List(ctx context.Context) ([]product.Product, error) {
	return s.find(ctx, bson.M{}, options.Find().SetSort(createdAsc))
}

func (s *Store) Search(ctx context.Context, query string) ([]product.Product, error) {
	pattern := bson.M{"$regex": regexp.QuoteMeta(query), "$options": "i"}
	filter := bson.M{"$or": bson.A{
		bson.M{"name": pattern},
		bson.M{"description": pattern},
	}}
	return s.find(ctx, filter, options.Find().SetSort(createdAsc))
}

func (s *Store) Paginate(ctx context.Context, skip, limit int) ([]product.Product, int64, error) {
	total, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}
	products, err := s.find(ctx, bson.M{}, options.Find().
		SetSort(createdAsc).
		SetSkip(int64(skip)).
		SetLimit(int64(limit)))
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (s *Store) LowStock(ctx context.Context, threshold int) ([]product.Product, error) {
	return s.find(ctx, bson.M{"stock": bson.M{"$lte": threshold}}, options.Find().SetSort(createdAsc))
}

func (s *Store) find(ctx context.Context, filter any, opts *options.FindOptions) ([]product.Product, error) {
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	products := []product.Product{}
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return products, nil
}

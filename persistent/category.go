package persistent

import (
	"context"
	"fmt"
	"time"

	"github.com/blogsphare/sphare"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Category struct {
	Id          primitive.ObjectID `bson:"_id,omitempty"`
	Name        string             `bson:"categoryName"`
	Description string             `bson:"description"`
	CreatedAt   time.Time          `bson:"createdAt"`
}

func (c Category) ToDomain() sphare.Category {
	return sphare.Category{
		Id:          c.Id.Hex(),
		Name:        c.Name,
		Description: c.Description,
		CreatedAt:   c.CreatedAt,
	}
}

type CategoryStore struct {
	Collection *mongo.Collection
}

var _ sphare.CategoryStore = (*CategoryStore)(nil)

func NewCategoryStore(db *mongo.Database) *CategoryStore {
	return &CategoryStore{Collection: db.Collection(categoryCollection)}
}

func (s *CategoryStore) CreateIndexes(ctx context.Context) error {
	_, err := s.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "categoryName", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create name index: %w", err)
	}
	return nil
}

func (s *CategoryStore) All(ctx context.Context) ([]sphare.Category, error) {
	cursor, err := s.Collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "categoryName", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find categories: %w", err)
	}
	defer cursor.Close(ctx)

	categories := make([]sphare.Category, 0)
	for cursor.Next(ctx) {
		var doc Category
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode category: %w", err)
		}
		categories = append(categories, doc.ToDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("category cursor: %w", err)
	}
	return categories, nil
}

func (s *CategoryStore) Add(ctx context.Context, category sphare.Category) (sphare.Category, error) {
	doc := Category{
		Name:        category.Name,
		Description: category.Description,
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
	res, err := s.Collection.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return sphare.Category{}, sphare.ErrCategoryExists
		}
		return sphare.Category{}, fmt.Errorf("insert category: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		doc.Id = id
	}
	return doc.ToDomain(), nil
}

func (s *CategoryStore) AddMany(ctx context.Context, categories []sphare.Category) ([]sphare.Category, error) {
	added := make([]sphare.Category, 0, len(categories))
	for _, c := range categories {
		inserted, err := s.Add(ctx, c)
		if err == sphare.ErrCategoryExists {
			continue
		}
		if err != nil {
			return added, err
		}
		added = append(added, inserted)
	}
	return added, nil
}

package persistent

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/blogsphare/sphare"
	"github.com/uptrace/bun"
)

type PgCategory struct {
	bun.BaseModel `bun:"table:blog_category"`

	Id          int64     `bun:",pk,autoincrement"`
	Name        string    `bun:",unique,notnull"`
	Description string    `bun:",notnull"`
	CreatedAt   time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

func (c PgCategory) ToDomain() sphare.Category {
	return sphare.Category{
		Id:          strconv.FormatInt(c.Id, 10),
		Name:        c.Name,
		Description: c.Description,
		CreatedAt:   c.CreatedAt,
	}
}

type PgCategoryStore struct {
	DB bun.IDB
}

var _ sphare.CategoryStore = (*PgCategoryStore)(nil)

func (s *PgCategoryStore) All(ctx context.Context) ([]sphare.Category, error) {
	var models []PgCategory
	err := s.DB.NewSelect().
		Model(&models).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	categories := make([]sphare.Category, 0, len(models))
	for _, m := range models {
		categories = append(categories, m.ToDomain())
	}
	return categories, nil
}

func (s *PgCategoryStore) Add(ctx context.Context, category sphare.Category) (sphare.Category, error) {
	model := &PgCategory{Name: category.Name, Description: category.Description}
	_, err := s.DB.NewInsert().
		Model(model).
		Returning("*").
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return sphare.Category{}, sphare.ErrCategoryExists
		}
		return sphare.Category{}, fmt.Errorf("insert category: %w", err)
	}
	return model.ToDomain(), nil
}

func (s *PgCategoryStore) AddMany(ctx context.Context, categories []sphare.Category) ([]sphare.Category, error) {
	if len(categories) == 0 {
		return []sphare.Category{}, nil
	}
	models := make([]PgCategory, 0, len(categories))
	for _, c := range categories {
		models = append(models, PgCategory{Name: c.Name, Description: c.Description})
	}
	var inserted []PgCategory
	err := s.DB.NewInsert().
		Model(&models).
		On("CONFLICT (name) DO NOTHING").
		Returning("*").
		Scan(ctx, &inserted)
	if err != nil {
		return nil, fmt.Errorf("insert categories: %w", err)
	}
	added := make([]sphare.Category, 0, len(inserted))
	for _, m := range inserted {
		added = append(added, m.ToDomain())
	}
	return added, nil
}

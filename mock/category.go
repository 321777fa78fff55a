package mock

import (
	"context"

	"github.com/blogsphare/sphare"
)

type CategoryStore struct {
	AllFn func(ctx context.Context) ([]sphare.Category, error)

	AddFn func(ctx context.Context, category sphare.Category) (sphare.Category, error)

	AddManyFn func(ctx context.Context, categories []sphare.Category) ([]sphare.Category, error)
}

func (s CategoryStore) All(ctx context.Context) ([]sphare.Category, error) {
	return s.AllFn(ctx)
}

func (s CategoryStore) Add(ctx context.Context, category sphare.Category) (sphare.Category, error) {
	return s.AddFn(ctx, category)
}

func (s CategoryStore) AddMany(ctx context.Context, categories []sphare.Category) ([]sphare.Category, error) {
	return s.AddManyFn(ctx, categories)
}

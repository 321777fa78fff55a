package inmem

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/blogsphare/sphare"
)

type CategoryStore struct {
	lastId     int64
	categories map[string]sphare.Category
	mutex      sync.RWMutex
}

var _ sphare.CategoryStore = (*CategoryStore)(nil)

func NewCategoryStore() *CategoryStore {
	return &CategoryStore{categories: map[string]sphare.Category{}}
}

func (s *CategoryStore) All(ctx context.Context) ([]sphare.Category, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	categories := make([]sphare.Category, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool {
		return categories[i].Name < categories[j].Name
	})
	return categories, nil
}

func (s *CategoryStore) Add(ctx context.Context, category sphare.Category) (sphare.Category, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.categories[category.Name]; ok {
		return sphare.Category{}, sphare.ErrCategoryExists
	}
	return s.add(category), nil
}

func (s *CategoryStore) AddMany(ctx context.Context, categories []sphare.Category) ([]sphare.Category, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	added := make([]sphare.Category, 0, len(categories))
	for _, c := range categories {
		if _, ok := s.categories[c.Name]; ok {
			continue
		}
		added = append(added, s.add(c))
	}
	return added, nil
}

func (s *CategoryStore) add(category sphare.Category) sphare.Category {
	s.lastId++
	category.Id = strconv.FormatInt(s.lastId, 10)
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	s.categories[category.Name] = category
	return category
}

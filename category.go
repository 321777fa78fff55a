package sphare

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrCategoryExists = errors.New("category already exists")

type Category struct {
	Id          string
	Name        string
	Description string
	CreatedAt   time.Time
}

type CategoryStore interface {
	// All returns categories sorted by name.
	All(ctx context.Context) ([]Category, error)

	// Add returns ErrCategoryExists when the name is taken.
	Add(ctx context.Context, category Category) (Category, error)

	// AddMany inserts categories whose names are not taken yet and returns the inserted ones.
	AddMany(ctx context.Context, categories []Category) ([]Category, error)
}

// SeedCategories inserts DefaultCategories when the store is empty. It reports
// whether anything was inserted together with the resulting categories.
func SeedCategories(ctx context.Context, store CategoryStore) (bool, []Category, error) {
	existing, err := store.All(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("list categories: %w", err)
	}
	if len(existing) > 0 {
		return false, existing, nil
	}
	created, err := store.AddMany(ctx, DefaultCategories())
	if err != nil {
		return false, nil, fmt.Errorf("insert default categories: %w", err)
	}
	return true, created, nil
}

func DefaultCategories() []Category {
	return []Category{
		{Name: "Technology", Description: "Posts about technology, coding, and software development"},
		{Name: "Travel", Description: "Travel experiences, tips, and destinations"},
		{Name: "Food", Description: "Recipes, restaurant reviews, and culinary experiences"},
		{Name: "Lifestyle", Description: "Lifestyle tips, habits, and personal development"},
		{Name: "Health", Description: "Health tips, fitness, and wellness"},
		{Name: "Business", Description: "Business insights, entrepreneurship, and finance"},
		{Name: "Education", Description: "Learning resources, tutorials, and educational content"},
		{Name: "Entertainment", Description: "Movies, music, games, and entertainment"},
		{Name: "Politics", Description: "Political news, analysis, and current events"},
		{Name: "Science", Description: "Science news, research, and discoveries"},
		{Name: "Sports", Description: "Sports news, highlights, and competitions"},
		{Name: "Spirituality", Description: "All content related to God, worship, prayer, meditation, and spiritual growth"},
		{Name: "Environment", Description: "Posts about climate change, sustainability, and nature conservation"},
		{Name: "History", Description: "Historical events, cultures, and stories from the past"},
		{Name: "Parenting", Description: "Tips, experiences, and guides for parenting and family life"},
		{Name: "Fashion", Description: "Trends, style tips, and clothing inspiration"},
		{Name: "Finance", Description: "Personal finance, saving, investing, and budgeting"},
		{Name: "SelfHelp", Description: "Motivational and self-improvement articles"},
		{Name: "Philosophy", Description: "Deep thoughts, ideas, and discussions about life and existence"},
		{Name: "Relationships", Description: "Advice and experiences on love, friendships, and human connection"},
		{Name: "Culture", Description: "Cultural traditions, festivals, customs, and societal topics"},
		{Name: "Art", Description: "Painting, digital art, photography, and visual creativity"},
	}
}

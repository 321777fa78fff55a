package rest

import (
	"context"
	"fmt"
	"time"

	"github.com/blogsphare/sphare"
	"github.com/gofiber/fiber/v2"
)

type CategoryResponse struct {
	Id           string    `json:"id"`
	CategoryName string    `json:"categoryName"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"createdAt"`
}

func newCategoryResponses(categories []sphare.Category) []CategoryResponse {
	responses := make([]CategoryResponse, 0, len(categories))
	for _, c := range categories {
		responses = append(responses, CategoryResponse{
			Id:           c.Id,
			CategoryName: c.Name,
			Description:  c.Description,
			CreatedAt:    c.CreatedAt,
		})
	}
	return responses
}

type categoriesMessage struct {
	Message    string             `json:"message"`
	Categories []CategoryResponse `json:"categories"`
}

type CategoryController struct {
	Store sphare.CategoryStore
}

func (c *CategoryController) InstallTo(app fiber.Router) {
	app.Get("/categories", c.serveAll)
	app.Post("/init-categories", c.serveInit)
	app.Post("/add-category", combineHandlers(requireJSON, c.serveAdd))
	app.Post("/add-multiple-categories", combineHandlers(requireJSON, c.serveAddMany))
}

func (c *CategoryController) serveAll(ctx *fiber.Ctx) error {
	dbCtx, cancel := context.WithTimeout(ctx.UserContext(), 10*time.Second)
	categories, err := c.Store.All(dbCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}
	return ctx.JSON(newCategoryResponses(categories))
}

func (c *CategoryController) serveInit(ctx *fiber.Ctx) error {
	dbCtx, cancel := context.WithTimeout(ctx.UserContext(), 30*time.Second)
	seeded, categories, err := sphare.SeedCategories(dbCtx, c.Store)
	cancel()
	if err != nil {
		return err
	}
	if !seeded {
		return ctx.JSON(categoriesMessage{
			Message:    "Categories already exist",
			Categories: newCategoryResponses(categories),
		})
	}
	return ctx.Status(fiber.StatusCreated).JSON(categoriesMessage{
		Message:    "Categories initialized successfully",
		Categories: newCategoryResponses(categories),
	})
}

type categoryRequest struct {
	CategoryName string `json:"categoryName" validate:"required,max=64"`
	Description  string `json:"description" validate:"max=512"`
}

func (c *CategoryController) serveAdd(ctx *fiber.Ctx) error {
	var body categoryRequest
	if err := parseBody(ctx, &body); err != nil {
		return err
	}

	dbCtx, cancel := context.WithTimeout(ctx.UserContext(), 10*time.Second)
	category, err := c.Store.Add(dbCtx, sphare.Category{Name: body.CategoryName, Description: body.Description})
	cancel()
	if err != nil {
		return fmt.Errorf("add category: %w", err)
	}

	type AddResponse struct {
		Message  string           `json:"message"`
		Category CategoryResponse `json:"category"`
	}
	return ctx.Status(fiber.StatusCreated).JSON(AddResponse{
		Message:  "Category added successfully",
		Category: newCategoryResponses([]sphare.Category{category})[0],
	})
}

func (c *CategoryController) serveAddMany(ctx *fiber.Ctx) error {
	body := struct {
		Categories []categoryRequest `json:"categories" validate:"required,min=1,dive"`
	}{}
	if err := parseBody(ctx, &body); err != nil {
		return err
	}

	categories := make([]sphare.Category, 0, len(body.Categories))
	for _, c := range body.Categories {
		categories = append(categories, sphare.Category{Name: c.CategoryName, Description: c.Description})
	}
	dbCtx, cancel := context.WithTimeout(ctx.UserContext(), 30*time.Second)
	added, err := c.Store.AddMany(dbCtx, categories)
	cancel()
	if err != nil {
		return fmt.Errorf("add categories: %w", err)
	}
	if len(added) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "All categories already exist")
	}
	return ctx.Status(fiber.StatusCreated).JSON(categoriesMessage{
		Message:    fmt.Sprintf("%d categories added successfully", len(added)),
		Categories: newCategoryResponses(added),
	})
}

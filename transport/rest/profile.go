package rest

import (
	"context"
	"fmt"
	"time"

	"github.com/blogsphare/sphare"
	"github.com/gofiber/fiber/v2"
)

type ProfileResponse struct {
	Email      string    `json:"email"`
	Username   string    `json:"username"`
	Bio        string    `json:"bio"`
	ProfilePic string    `json:"profilePic"`
	Follower   []string  `json:"follower"`
	Following  []string  `json:"following"`
	Blogs      []string  `json:"blogs"`
	CreatedAt  time.Time `json:"createdAt"`
}

func NewProfileResponse(p sphare.Profile) ProfileResponse {
	blogs := make([]string, len(p.Blogs))
	copy(blogs, p.Blogs)
	return ProfileResponse{
		Email:      string(p.Email),
		Username:   p.Username,
		Bio:        p.Bio,
		ProfilePic: p.ProfilePic,
		Follower:   emailStrings(p.Follower),
		Following:  emailStrings(p.Following),
		Blogs:      blogs,
		CreatedAt:  p.CreatedAt,
	}
}

func newProfileResponses(profiles []sphare.Profile) []ProfileResponse {
	responses := make([]ProfileResponse, 0, len(profiles))
	for _, p := range profiles {
		responses = append(responses, NewProfileResponse(p))
	}
	return responses
}

func emailStrings(emails []sphare.Email) []string {
	s := make([]string, 0, len(emails))
	for _, e := range emails {
		s = append(s, string(e))
	}
	return s
}

func toEmails(s []string) []sphare.Email {
	emails := make([]sphare.Email, 0, len(s))
	for _, e := range s {
		emails = append(emails, sphare.NormalizeEmail(e))
	}
	return emails
}

type ProfileController struct {
	Store sphare.ProfileStore
	// Per request store timeout, 10s when zero.
	Timeout time.Duration
}

func (c *ProfileController) InstallTo(app fiber.Router) {
	app.Get("/usersprofile", c.serveAll)
	app.Post("/myprofiledata", combineHandlers(requireJSON, c.serveMyProfile))
	app.Post("/followerProfiles", combineHandlers(requireJSON, c.serveProfilesByEmails))
	app.Post("/followingProfiles", combineHandlers(requireJSON, c.serveProfilesByEmails))
	app.Post("/updateprofile", combineHandlers(requireJSON, c.serveUpdate))
	app.Post("/createprofile", combineHandlers(requireJSON, c.serveCreate))
}

func (c *ProfileController) dbContext(ctx *fiber.Ctx) (context.Context, context.CancelFunc) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx.UserContext(), timeout)
}

func (c *ProfileController) serveAll(ctx *fiber.Ctx) error {
	dbCtx, cancel := c.dbContext(ctx)
	profiles, err := c.Store.All(dbCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("list profiles: %w", err)
	}
	return ctx.JSON(newProfileResponses(profiles))
}

// serveMyProfile answers with a list holding the profile, or an empty list
// when the email has no profile yet.
func (c *ProfileController) serveMyProfile(ctx *fiber.Ctx) error {
	body := struct {
		Email string `json:"email" validate:"required"`
	}{}
	if err := parseBody(ctx, &body); err != nil {
		return err
	}

	dbCtx, cancel := c.dbContext(ctx)
	profiles, err := c.Store.ByEmails(dbCtx, []sphare.Email{sphare.NormalizeEmail(body.Email)})
	cancel()
	if err != nil {
		return fmt.Errorf("lookup profile: %w", err)
	}
	return ctx.JSON(newProfileResponses(profiles))
}

func (c *ProfileController) serveProfilesByEmails(ctx *fiber.Ctx) error {
	body := struct {
		Emails []string `json:"emails"`
	}{}
	if err := parseBody(ctx, &body); err != nil {
		return err
	}

	dbCtx, cancel := c.dbContext(ctx)
	profiles, err := c.Store.ByEmails(dbCtx, toEmails(body.Emails))
	cancel()
	if err != nil {
		return fmt.Errorf("lookup profiles: %w", err)
	}
	return ctx.JSON(newProfileResponses(profiles))
}

func (c *ProfileController) serveUpdate(ctx *fiber.Ctx) error {
	body := struct {
		Email string `json:"email" validate:"required"`
		Data  *struct {
			Username   string `json:"username" validate:"max=64"`
			Bio        string `json:"bio" validate:"max=1024"`
			ProfilePic string `json:"profilePic" validate:"omitempty,url"`
		} `json:"data" validate:"required"`
	}{}
	if err := parseBody(ctx, &body); err != nil {
		return err
	}

	dbCtx, cancel := c.dbContext(ctx)
	profile, err := c.Store.Update(dbCtx, sphare.NormalizeEmail(body.Email), sphare.ProfileUpdate{
		Username:   body.Data.Username,
		Bio:        body.Data.Bio,
		ProfilePic: body.Data.ProfilePic,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}

	type UpdateResponse struct {
		Success bool            `json:"success"`
		Profile ProfileResponse `json:"profile"`
	}
	return ctx.JSON(UpdateResponse{Success: true, Profile: NewProfileResponse(profile)})
}

func (c *ProfileController) serveCreate(ctx *fiber.Ctx) error {
	body := struct {
		Email      string `json:"email" validate:"required,email"`
		Username   string `json:"username" validate:"required,max=64"`
		Bio        string `json:"bio" validate:"max=1024"`
		ProfilePic string `json:"profilePic" validate:"omitempty,url"`
	}{}
	if err := parseBody(ctx, &body); err != nil {
		return err
	}

	dbCtx, cancel := c.dbContext(ctx)
	profile, err := c.Store.Create(dbCtx, sphare.Profile{
		Email:      sphare.NormalizeEmail(body.Email),
		Username:   body.Username,
		Bio:        body.Bio,
		ProfilePic: body.ProfilePic,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return ctx.Status(fiber.StatusCreated).JSON(NewProfileResponse(profile))
}

package rest

import (
	"fmt"

	"github.com/blogsphare/sphare"
	"github.com/gofiber/fiber/v2"
)

type FollowRequest struct {
	CurrentUserEmail string `json:"currentUserEmail" validate:"required"`
	ProfileUserEmail string `json:"profileUserEmail" validate:"required"`
	Action           string `json:"action" validate:"required"`
}

type FollowResponse struct {
	Message            string          `json:"message"`
	IsFollowing        bool            `json:"isFollowing"`
	CurrentUserProfile ProfileResponse `json:"currentUserProfile"`
	TargetProfile      ProfileResponse `json:"targetProfile"`
}

type FollowController struct {
	Service *sphare.FollowService
}

func (c *FollowController) InstallTo(app fiber.Router) {
	app.Post("/followfollowing", combineHandlers(requireJSON, c.serveFollow))
}

func (c *FollowController) serveFollow(ctx *fiber.Ctx) error {
	var body FollowRequest
	if err := parseBody(ctx, &body); err != nil {
		return err
	}

	intent, err := sphare.ParseIntent(body.Action)
	if err != nil {
		return err
	}
	actor := sphare.NormalizeEmail(body.CurrentUserEmail)
	target := sphare.NormalizeEmail(body.ProfileUserEmail)

	result, err := c.Service.Apply(ctx.UserContext(), actor, target, intent)
	if err != nil {
		return fmt.Errorf("apply %s intent: %w", intent, err)
	}

	requestLog(ctx).
		WithField("actor", actor).
		WithField("target", target).
		WithField("intent", intent).
		Debugln("Follow intent applied.")
	return ctx.JSON(FollowResponse{
		Message:            fmt.Sprintf("Successfully %sed user.", intent),
		IsFollowing:        result.IsFollowing,
		CurrentUserProfile: NewProfileResponse(result.Actor),
		TargetProfile:      NewProfileResponse(result.Target),
	})
}

package rest

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/blogsphare/sphare"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func requestLog(ctx *fiber.Ctx) *logrus.Entry {
	return logrus.
		WithField("remote_addr", ctx.Context().RemoteAddr()).
		WithField("path", ctx.Path()).
		WithField("z_referer", string(ctx.Request().Header.Peek("Referer"))).
		WithField("z_user_agent", string(ctx.Request().Header.Peek("User-Agent"))).
		WithField("z_x_forwared_for", string(ctx.Request().Header.Peek("X-Forwarded-For")))
}

// ErrorHandler maps domain errors to status codes. Anything unknown is logged
// and answered with a generic 500.
func ErrorHandler(ctx *fiber.Ctx, err error) error {
	var fe *fiber.Error
	var verr *sphare.ValidationError
	var nf *sphare.NotFoundError
	switch {
	case errors.As(err, &fe):
		return ctx.Status(fe.Code).JSON(&ErrorResponse{Error: fe.Message})
	case errors.As(err, &verr):
		return ctx.Status(fiber.StatusBadRequest).JSON(&ErrorResponse{Error: verr.Error()})
	case errors.As(err, &nf) && !errors.Is(err, sphare.ErrHalfApplied):
		return ctx.Status(fiber.StatusNotFound).JSON(&ErrorResponse{Error: nf.Error()})
	case errors.Is(err, sphare.ErrProfileNotFound) && !errors.Is(err, sphare.ErrHalfApplied):
		return ctx.Status(fiber.StatusNotFound).JSON(&ErrorResponse{Error: "Profile not found."})
	case errors.Is(err, sphare.ErrProfileExists):
		return ctx.Status(fiber.StatusConflict).JSON(&ErrorResponse{Error: "Profile already exists."})
	case errors.Is(err, sphare.ErrCategoryExists):
		return ctx.Status(fiber.StatusConflict).JSON(&ErrorResponse{Error: "Category already exists."})
	default:
		requestLog(ctx).WithError(err).Errorln("Internal server error.")
		// keep internal server errors private. reply with generic error message.
		return ctx.
			Status(fiber.ErrInternalServerError.Code).
			JSON(&ErrorResponse{Error: fiber.ErrInternalServerError.Message})
	}
}

func NotFoundHandler(c *fiber.Ctx) error {
	return fiber.NewError(fiber.StatusNotFound)
}

func combineHandlers(handlers ...fiber.Handler) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		for _, handler := range handlers {
			err := handler(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	}
}

// requireJSON rejects bodies the json body parser would not accept.
func requireJSON(ctx *fiber.Ctx) error {
	contentType := strings.ToLower(string(ctx.Request().Header.ContentType()))
	if !strings.HasPrefix(contentType, fiber.MIMEApplicationJSON) {
		return fiber.NewError(fiber.StatusBadRequest, "Expected a JSON body.")
	}
	return nil
}

func JsonErrorMessageResponse(message string) string {
	bytes, err := json.Marshal(ErrorResponse{Error: message})
	if err != nil {
		panic(err)
	}
	return string(bytes)
}

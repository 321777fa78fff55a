package rest

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// LogHandler logs every request once it has been handled, errors included.
func LogHandler() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		start := time.Now()
		err := ctx.Next()
		if err != nil {
			// let the error handler pick the status before it is logged
			if herr := ctx.App().ErrorHandler(ctx, err); herr != nil {
				_ = ctx.SendStatus(fiber.StatusInternalServerError)
			}
		}
		requestLog(ctx).
			WithField("method", ctx.Method()).
			WithField("status", ctx.Response().StatusCode()).
			WithField("latency", time.Since(start).Round(time.Microsecond)).
			Infoln("Handled request.")
		return nil
	}
}

package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

func GetUserID(c *fiber.Ctx) string {
	userID, _ := c.Locals("user_id").(string)
	return userID
}

func GetPlatform(c *fiber.Ctx) (models.Platform, error) {
	return models.ParsePlatform(c.Params("platform"))
}

// errorStatus maps service errors onto HTTP status codes.
func errorStatus(err error) int {
	var pe *models.PublishError
	switch {
	case errors.Is(err, models.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, models.ErrNotCancelable), errors.Is(err, models.ErrVersionConflict):
		return fiber.StatusConflict
	case errors.As(err, &pe) && pe.Kind == models.KindValidation:
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

func sendError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(transfer.ErrorResponse{Error: msg})
}

package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
)

var errImageTooLarge = errors.New("image too large")

type ScheduleHandler struct {
	s            service.ScheduleService
	maxImageSize int64
}

func NewScheduleHandler(service service.ScheduleService, maxImageSize int64) *ScheduleHandler {
	return &ScheduleHandler{s: service, maxImageSize: maxImageSize}
}

func (h *ScheduleHandler) Schedule(c *fiber.Ctx) error {
	platform, err := GetPlatform(c)
	if err != nil {
		return sendError(c, fiber.StatusBadRequest, err.Error())
	}

	scheduledTime, err := time.Parse(time.RFC3339, c.FormValue("scheduled_time"))
	if err != nil {
		return sendError(c, fiber.StatusBadRequest, "scheduled_time must be an RFC3339 timestamp")
	}

	image, err := readImage(c, h.maxImageSize)
	if errors.Is(err, errImageTooLarge) {
		return sendError(c, fiber.StatusBadRequest, err.Error())
	}
	if err != nil {
		slog.Error(err.Error())
		return sendError(c, fiber.StatusBadRequest, "Unable to read image")
	}

	post, err := h.s.SchedulePost(c.Context(), &transfer.ScheduleRequest{
		Platform:      platform,
		UserID:        GetUserID(c),
		Text:          c.FormValue("text"),
		Image:         image,
		ScheduledTime: scheduledTime,
	})
	if err != nil {
		return sendError(c, errorStatus(err), err.Error())
	}

	return c.Status(fiber.StatusCreated).JSON(transfer.ScheduleResponse{
		JobID:         post.ID,
		Platform:      string(post.Platform),
		Status:        post.Status,
		ScheduledTime: post.ScheduledTime,
		ImageFormat:   string(post.ImageFormat),
	})
}

func (h *ScheduleHandler) List(c *fiber.Ctx) error {
	platform, err := GetPlatform(c)
	if err != nil {
		return sendError(c, fiber.StatusBadRequest, err.Error())
	}

	posts, err := h.s.List(c.Context(), platform, GetUserID(c))
	if err != nil {
		return sendError(c, errorStatus(err), "Unable to list scheduled posts")
	}
	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *ScheduleHandler) Get(c *fiber.Ctx) error {
	platform, err := GetPlatform(c)
	if err != nil {
		return sendError(c, fiber.StatusBadRequest, err.Error())
	}

	post, err := h.s.Get(c.Context(), platform, GetUserID(c), c.Params("id"))
	if err != nil {
		return sendError(c, errorStatus(err), err.Error())
	}
	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *ScheduleHandler) Cancel(c *fiber.Ctx) error {
	platform, err := GetPlatform(c)
	if err != nil {
		return sendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.s.Cancel(c.Context(), platform, GetUserID(c), c.Params("id")); err != nil {
		return sendError(c, errorStatus(err), err.Error())
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ScheduleHandler) History(c *fiber.Ctx) error {
	platform, err := GetPlatform(c)
	if err != nil {
		return sendError(c, fiber.StatusBadRequest, err.Error())
	}

	history, err := h.s.History(c.Context(), platform, GetUserID(c))
	if err != nil {
		return sendError(c, errorStatus(err), "Unable to list published posts")
	}
	return c.Status(fiber.StatusOK).JSON(history)
}

// readImage returns the optional "image" part of a multipart request,
// rejecting parts longer than limit bytes.
func readImage(c *fiber.Ctx, limit int64) ([]byte, error) {
	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		return nil, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return nil, err
	}

	files := form.File["image"]
	if len(files) == 0 {
		return nil, nil
	}

	f, err := files[0].Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: exceeds %d bytes", errImageTooLarge, limit)
	}
	return data, nil
}

func (h *ScheduleHandler) Register(r fiber.Router) {
	r.Post("/schedule/:platform", h.Schedule)
	r.Get("/schedule/:platform", h.List)
	r.Get("/schedule/:platform/:id", h.Get)
	r.Delete("/schedule/:platform/:id", h.Cancel)
	r.Get("/history/:platform", h.History)
}

package handler

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/codegrade-labs/codegrade-api/internal/dto"
	"github.com/codegrade-labs/codegrade-api/internal/service"
	"github.com/codegrade-labs/codegrade-api/internal/utils"
)

// SubmissionHandler manages submission endpoints.
type SubmissionHandler struct {
	service   service.SubmissionService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(service service.SubmissionService, validator *validator.Validate, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Post("", h.create)
	router.Get("/:id", h.get)
	router.Get("/:id/status", h.status)
	router.Get("/:id/results", h.results)
	router.Patch("/:id/review", h.review)
	router.Delete("/:id", h.remove)
}

func (h *SubmissionHandler) list(c *fiber.Ctx) error {
	filter := dto.SubmissionFilter{}
	if projectID, err := parseQueryUint(c, "project_id"); err == nil && projectID != nil {
		filter.ProjectID = projectID
	}
	if userID, err := parseQueryUint(c, "user_id"); err == nil && userID != nil {
		filter.UserID = userID
	}
	if status := c.Query("status"); status != "" {
		filter.Status = &status
	}

	submissions, err := h.service.List(c.Context(), filter)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submissions retrieved", submissions)
}

// create accepts the multipart upload and acknowledges with 202 while the
// analysis pipeline runs in the background.
func (h *SubmissionHandler) create(c *fiber.Ctx) error {
	var payload dto.SubmissionCreateRequest
	projectID, err := parseFormUint(c, "project_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	userID, err := parseFormUint(c, "user_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	payload.ProjectID = *projectID
	payload.UserID = *userID

	if taskValue := c.FormValue("task_id"); taskValue != "" {
		taskID, err := parseFormUint(c, "task_id")
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		payload.TaskID = taskID
	}

	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	ack, err := h.service.Submit(c.Context(), payload, file)
	if err != nil {
		return h.handleError(c, err)
	}

	requestLogger(h.logger, c).Info().
		Str("submission_id", ack.PublicID).
		Uint("project_id", payload.ProjectID).
		Msg("submission accepted")

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "submission accepted", ack)
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	submission, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) status(c *fiber.Ctx) error {
	status, err := h.service.Status(c.Context(), c.Params("id"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission status retrieved", status)
}

func (h *SubmissionHandler) results(c *fiber.Ctx) error {
	results, err := h.service.Results(c.Context(), c.Params("id"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "analysis results retrieved", results)
}

func (h *SubmissionHandler) review(c *fiber.Ctx) error {
	var payload dto.SubmissionReviewRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if payload.ReviewerID == 0 {
		payload.ReviewerID = userIDFromContext(c)
	}

	submission, err := h.service.Review(c.Context(), c.Params("id"), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission reviewed", submission)
}

func (h *SubmissionHandler) remove(c *fiber.Ctx) error {
	if err := h.service.Delete(c.Context(), c.Params("id")); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission deleted", nil)
}

func (h *SubmissionHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, service.ErrSubmissionNotReviewable):
		return utils.SendError(c, fiber.StatusConflict, "submission is not awaiting review")
	case errors.Is(err, service.ErrUnsupportedUpload):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

func parseQueryUint(c *fiber.Ctx, key string) (*uint, error) {
	value := c.Query(key)
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return nil, err
	}
	result := uint(parsed)
	return &result, nil
}

func parseFormUint(c *fiber.Ctx, key string) (*uint, error) {
	value := c.FormValue(key)
	if value == "" {
		return nil, errors.New("missing " + key)
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return nil, errors.New("invalid " + key)
	}
	result := uint(parsed)
	return &result, nil
}

package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/haiminhvu/mailflow/internal/domain"
	"github.com/haiminhvu/mailflow/internal/repository"
	"github.com/haiminhvu/mailflow/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type BatchService interface {
	Enqueue(ctx context.Context, req service.BatchRequest) (*service.BatchResult, error)
	ListJobs(ctx context.Context, params repository.JobListParams) ([]domain.Job, int64, error)
	ClearQueue(ctx context.Context) (int64, error)
	ListLog(ctx context.Context, params repository.SendLogListParams) ([]domain.SendLogEntry, int64, error)
	PurgeLog(ctx context.Context) (int64, error)
}

type BatchHandler struct {
	service BatchService
}

func NewBatchHandler(service BatchService) (*BatchHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("batch service is required")
	}
	return &BatchHandler{service: service}, nil
}

func RegisterBatchRoutes(router fiber.Router, service BatchService) error {
	h, err := NewBatchHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/batches", h.CreateBatch)
	v1.Get("/jobs", h.ListJobs)
	v1.Delete("/jobs", h.ClearQueue)
	v1.Get("/send-log", h.ListSendLog)
	v1.Delete("/send-log", h.PurgeSendLog)

	return nil
}

type customerRequest struct {
	Company    string   `json:"company"`
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	DomainTags []string `json:"domainTags"`
}

type attachmentRequest struct {
	Name      string `json:"name"`
	MIMEType  string `json:"mimeType"`
	Base64    string `json:"base64"`
	SizeBytes int64  `json:"sizeBytes"`
}

type createBatchRequest struct {
	Customers    []customerRequest   `json:"customers"`
	Subject      string              `json:"subject"`
	TemplateBody string              `json:"templateBody"`
	Attachments  []attachmentRequest `json:"attachments"`
	TargetCount  int                 `json:"targetCount"`
}

type createBatchResponse struct {
	Enqueued int `json:"enqueued"`
	Skipped  int `json:"skipped"`
}

type jobResponse struct {
	ID        string     `json:"id"`
	Seq       int64      `json:"seq"`
	Company   string     `json:"company"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Subject   string     `json:"subject"`
	Status    string     `json:"status"`
	Error     *string    `json:"error,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	SentAt    *time.Time `json:"sentAt,omitempty"`
}

type listJobsResponse struct {
	Data []jobResponse `json:"data"`
	Meta listMeta      `json:"meta"`
}

type sendLogEntryResponse struct {
	ID        string    `json:"id"`
	JobID     string    `json:"jobId"`
	Recipient string    `json:"recipient"`
	Status    string    `json:"status"`
	Error     *string   `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type listSendLogResponse struct {
	Data []sendLogEntryResponse `json:"data"`
	Meta listMeta               `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *BatchHandler) CreateBatch(c *fiber.Ctx) error {
	var req createBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	customers := make([]domain.Customer, 0, len(req.Customers))
	for _, item := range req.Customers {
		customers = append(customers, domain.Customer{
			Company:    strings.TrimSpace(item.Company),
			Name:       strings.TrimSpace(item.Name),
			Email:      strings.TrimSpace(item.Email),
			DomainTags: item.DomainTags,
		})
	}

	attachments := make([]domain.Attachment, 0, len(req.Attachments))
	for _, item := range req.Attachments {
		size := item.SizeBytes
		if size == 0 {
			// The extension reports decoded sizes; fall back to an
			// estimate from the payload when it does not.
			size = int64(len(item.Base64)) * 3 / 4
		}
		attachments = append(attachments, domain.Attachment{
			Name:      item.Name,
			MIMEType:  item.MIMEType,
			Base64:    item.Base64,
			SizeBytes: size,
		})
	}

	result, err := h.service.Enqueue(c.Context(), service.BatchRequest{
		Customers:    customers,
		Subject:      req.Subject,
		TemplateBody: req.TemplateBody,
		Attachments:  attachments,
		TargetCount:  req.TargetCount,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(createBatchResponse{
		Enqueued: result.Enqueued,
		Skipped:  result.Skipped,
	})
}

func (h *BatchHandler) ListJobs(c *fiber.Ctx) error {
	params, err := parseJobListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	jobs, total, err := h.service.ListJobs(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		data = append(data, toJobResponse(&jobs[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listJobsResponse{
		Data: data,
		Meta: listMeta{Page: params.Page, PageSize: params.PageSize, Total: total},
	})
}

func (h *BatchHandler) ClearQueue(c *fiber.Ctx) error {
	removed, err := h.service.ClearQueue(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"removed": removed,
	})
}

func (h *BatchHandler) ListSendLog(c *fiber.Ctx) error {
	params, err := parseSendLogListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	entries, total, err := h.service.ListLog(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]sendLogEntryResponse, 0, len(entries))
	for _, entry := range entries {
		data = append(data, sendLogEntryResponse{
			ID:        entry.ID,
			JobID:     entry.JobID,
			Recipient: entry.Recipient,
			Status:    entry.Status.String(),
			Error:     entry.Error,
			CreatedAt: entry.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(listSendLogResponse{
		Data: data,
		Meta: listMeta{Page: params.Page, PageSize: params.PageSize, Total: total},
	})
}

func (h *BatchHandler) PurgeSendLog(c *fiber.Ctx) error {
	purged, err := h.service.PurgeLog(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"purged": purged,
	})
}

func parseJobListParams(c *fiber.Ctx) (repository.JobListParams, error) {
	params := repository.JobListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.JobListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.JobListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseJobStatusFromString(rawStatus)
		if err != nil {
			return repository.JobListParams{}, err
		}
		params.Status = &status
	}

	return params, nil
}

func parseSendLogListParams(c *fiber.Ctx) (repository.SendLogListParams, error) {
	params := repository.SendLogListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.SendLogListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.SendLogListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		switch domain.SendStatus(rawStatus) {
		case domain.SendSuccess, domain.SendFailed:
			status := domain.SendStatus(rawStatus)
			params.Status = &status
		default:
			return repository.SendLogListParams{}, fmt.Errorf("%w: invalid send status %q", domain.ErrValidation, rawStatus)
		}
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.SendLogListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.SendLogListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func toJobResponse(j *domain.Job) jobResponse {
	if j == nil {
		return jobResponse{}
	}

	return jobResponse{
		ID:        j.ID,
		Seq:       j.Seq,
		Company:   j.Customer.Company,
		Name:      j.Customer.Name,
		Email:     j.Customer.Email,
		Subject:   j.Subject,
		Status:    j.Status.String(),
		Error:     j.Error,
		CreatedAt: j.CreatedAt,
		SentAt:    j.SentAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}

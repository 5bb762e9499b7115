package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/haiminhvu/mailflow/internal/domain"
	"github.com/haiminhvu/mailflow/internal/ratelimit"
)

type WorkerService interface {
	Start(ctx context.Context, delay domain.DelayConfig) error
	Stop(ctx context.Context)
	Running() bool
	Status(ctx context.Context) (*domain.WorkerState, error)
}

type WorkerHandler struct {
	service WorkerService
	limiter ratelimit.DailyLimiter
}

func NewWorkerHandler(service WorkerService, limiter ratelimit.DailyLimiter) (*WorkerHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("worker service is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("daily limiter is required")
	}
	return &WorkerHandler{service: service, limiter: limiter}, nil
}

func RegisterWorkerRoutes(router fiber.Router, service WorkerService, limiter ratelimit.DailyLimiter) error {
	h, err := NewWorkerHandler(service, limiter)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/worker/start", h.StartWorker)
	v1.Post("/worker/stop", h.StopWorker)
	v1.Get("/worker/status", h.WorkerStatus)

	return nil
}

type startWorkerRequest struct {
	Mode    string `json:"mode"`
	FixedMs int    `json:"fixedMs"`
	MinMs   int    `json:"minMs"`
	MaxMs   int    `json:"maxMs"`
}

type delayResponse struct {
	Mode    string `json:"mode"`
	FixedMs int    `json:"fixedMs,omitempty"`
	MinMs   int    `json:"minMs,omitempty"`
	MaxMs   int    `json:"maxMs,omitempty"`
}

type workerStatusResponse struct {
	IsRunning    bool          `json:"isRunning"`
	Delay        delayResponse `json:"delay"`
	Total        int           `json:"total"`
	Sent         int           `json:"sent"`
	Failed       int           `json:"failed"`
	NextSendInMs int           `json:"nextSendInMs"`
	LastLogLine  string        `json:"lastLogLine,omitempty"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	DailySent    int64         `json:"dailySent"`
	DailyCap     int64         `json:"dailyCap"`
}

func (h *WorkerHandler) StartWorker(c *fiber.Ctx) error {
	var req startWorkerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	delay := domain.DelayConfig{
		Mode:    domain.DelayMode(strings.ToUpper(strings.TrimSpace(req.Mode))),
		FixedMs: req.FixedMs,
		MinMs:   req.MinMs,
		MaxMs:   req.MaxMs,
	}
	if delay.Mode == "" {
		delay.Mode = domain.DelayFixed
	}

	if err := h.service.Start(c.Context(), delay); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "started",
	})
}

func (h *WorkerHandler) StopWorker(c *fiber.Ctx) error {
	h.service.Stop(c.Context())

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "stopped",
	})
}

func (h *WorkerHandler) WorkerStatus(c *fiber.Ctx) error {
	state, err := h.service.Status(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	dailySent, err := h.limiter.Count(c.Context())
	if err != nil {
		// The counter being down should not hide queue state.
		dailySent = -1
	}

	return c.Status(fiber.StatusOK).JSON(workerStatusResponse{
		IsRunning: state.IsRunning,
		Delay: delayResponse{
			Mode:    string(state.Delay.Mode),
			FixedMs: state.Delay.FixedMs,
			MinMs:   state.Delay.MinMs,
			MaxMs:   state.Delay.MaxMs,
		},
		Total:        state.Total,
		Sent:         state.Sent,
		Failed:       state.Failed,
		NextSendInMs: state.NextSendInMs,
		LastLogLine:  state.LastLogLine,
		UpdatedAt:    state.UpdatedAt,
		DailySent:    dailySent,
		DailyCap:     h.limiter.Cap(),
	})
}

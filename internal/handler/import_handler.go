package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/haiminhvu/mailflow/internal/domain"
	"github.com/haiminhvu/mailflow/internal/service"
)

type ImportService interface {
	ImportCustomers(ctx context.Context, spreadsheetID, rangeA1 string) (*service.ImportResult, error)
}

type ImportHandler struct {
	service ImportService
}

func NewImportHandler(service ImportService) (*ImportHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("import service is required")
	}
	return &ImportHandler{service: service}, nil
}

func RegisterImportRoutes(router fiber.Router, service ImportService) error {
	h, err := NewImportHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/imports/sheet", h.ImportSheet)

	return nil
}

type importSheetRequest struct {
	SpreadsheetID string `json:"spreadsheetId"`
	Range         string `json:"range"`
}

type importSheetResponse struct {
	Customers []customerRequest `json:"customers"`
	Skipped   int               `json:"skipped"`
}

// ImportSheet parses a spreadsheet range into customers for the caller to
// review before posting a batch.
func (h *ImportHandler) ImportSheet(c *fiber.Ctx) error {
	var req importSheetRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.SpreadsheetID) == "" {
		return toHTTPError(fmt.Errorf("%w: spreadsheetId is required", domain.ErrValidation))
	}

	result, err := h.service.ImportCustomers(c.Context(), req.SpreadsheetID, req.Range)
	if err != nil {
		return toHTTPError(err)
	}

	customers := make([]customerRequest, 0, len(result.Customers))
	for _, customer := range result.Customers {
		customers = append(customers, customerRequest{
			Company:    customer.Company,
			Name:       customer.Name,
			Email:      customer.Email,
			DomainTags: customer.DomainTags,
		})
	}

	return c.Status(fiber.StatusOK).JSON(importSheetResponse{
		Customers: customers,
		Skipped:   result.Skipped,
	})
}

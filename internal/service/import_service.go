package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/haiminhvu/mailflow/internal/domain"
	"github.com/haiminhvu/mailflow/internal/provider"
)

// Spreadsheet column order expected by the importer.
const (
	colCompany = iota
	colName
	colEmail
	colDomainTags
)

// ImportResult carries the parsed rows plus how many the importer had to
// drop.
type ImportResult struct {
	Customers []domain.Customer
	Skipped   int
}

// ImportService turns spreadsheet rows into customers ready for a batch
// request. It only parses; nothing is enqueued here.
type ImportService struct {
	sheets provider.SheetReader
	logger *zap.Logger
}

func NewImportService(sheets provider.SheetReader, logger *zap.Logger) (*ImportService, error) {
	if sheets == nil {
		return nil, fmt.Errorf("sheet reader is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{sheets: sheets, logger: logger}, nil
}

// ImportCustomers reads the given range and parses each row as
// company, name, email, comma-separated domain tags. A header row is
// recognized by its missing @ in the email column and skipped, as are
// blank rows.
func (s *ImportService) ImportCustomers(ctx context.Context, spreadsheetID, rangeA1 string) (*ImportResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.sheets.ReadTabular(ctx, spreadsheetID, rangeA1)
	if err != nil {
		return nil, fmt.Errorf("failed to read spreadsheet: %w", err)
	}

	result := &ImportResult{Customers: make([]domain.Customer, 0, len(rows))}
	for _, row := range rows {
		customer, ok := parseCustomerRow(row)
		if !ok {
			result.Skipped++
			continue
		}
		result.Customers = append(result.Customers, customer)
	}

	s.logger.Info("spreadsheet imported",
		zap.String("spreadsheetId", spreadsheetID),
		zap.Int("customers", len(result.Customers)),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

func parseCustomerRow(row []string) (domain.Customer, bool) {
	if len(row) <= colEmail {
		return domain.Customer{}, false
	}

	customer := domain.Customer{
		Company: strings.TrimSpace(cell(row, colCompany)),
		Name:    strings.TrimSpace(cell(row, colName)),
		Email:   strings.TrimSpace(cell(row, colEmail)),
	}
	if customer.Validate() != nil {
		return domain.Customer{}, false
	}

	if raw := strings.TrimSpace(cell(row, colDomainTags)); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(tag); trimmed != "" {
				customer.DomainTags = append(customer.DomainTags, trimmed)
			}
		}
	}

	return customer, true
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return row[idx]
}

package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultSheetsBaseURL = "https://sheets.googleapis.com"
	defaultSheetsTimeout = 15 * time.Second
)

// SheetsScopes is the read-only access the importer needs.
var SheetsScopes = []string{
	"https://www.googleapis.com/auth/spreadsheets.readonly",
}

type sheetsValuesResponse struct {
	Values [][]string `json:"values"`
}

// SheetsReader pulls raw rows from the Google Sheets values endpoint.
type SheetsReader struct {
	client  *resty.Client
	creds   CredentialProvider
	baseURL string
}

func NewSheetsReader(baseURL string, creds CredentialProvider) (*SheetsReader, error) {
	client := resty.New()
	client.SetTimeout(defaultSheetsTimeout)
	client.SetRetryCount(0)

	return NewSheetsReaderWithClient(baseURL, creds, client)
}

func NewSheetsReaderWithClient(baseURL string, creds CredentialProvider, client *resty.Client) (*SheetsReader, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		trimmed = defaultSheetsBaseURL
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid sheets base url: %w", err)
	}
	if creds == nil {
		return nil, fmt.Errorf("credential provider is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultSheetsTimeout)
	}
	client.SetRetryCount(0)

	return &SheetsReader{
		client:  client,
		creds:   creds,
		baseURL: strings.TrimRight(trimmed, "/"),
	}, nil
}

func (r *SheetsReader) ReadTabular(ctx context.Context, spreadsheetID, rangeA1 string) ([][]string, error) {
	if r == nil || r.client == nil {
		return nil, fmt.Errorf("sheet reader is not initialized")
	}
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	if strings.TrimSpace(rangeA1) == "" {
		rangeA1 = "A:Z"
	}

	token, err := r.creds.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire token: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s",
		r.baseURL, url.PathEscape(spreadsheetID), url.PathEscape(rangeA1))

	response, err := r.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&sheetsValuesResponse{}).
		Get(endpoint)
	if err != nil {
		return nil, &ProviderError{
			Message:   "sheets read request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, &ProviderError{
			StatusCode: statusCode,
			Message:    fmt.Sprintf("sheets returned status %d: %s", statusCode, strings.TrimSpace(response.String())),
			Transient:  isTransientHTTPStatus(statusCode),
		}
	}

	result, ok := response.Result().(*sheetsValuesResponse)
	if !ok || result == nil {
		return nil, fmt.Errorf("unexpected sheets response shape")
	}
	return result.Values, nil
}

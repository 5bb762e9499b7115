package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/haiminhvu/mailflow/internal/domain"
	"github.com/haiminhvu/mailflow/internal/repository"
	"github.com/haiminhvu/mailflow/internal/service"
	"github.com/haiminhvu/mailflow/internal/transport"
)

func TestCreateBatch(t *testing.T) {
	t.Parallel()

	svc := &stubBatchService{
		enqueueFn: func(_ context.Context, req service.BatchRequest) (*service.BatchResult, error) {
			if len(req.Customers) != 2 {
				t.Fatalf("got %d customers, want 2", len(req.Customers))
			}
			if req.Customers[0].Email != "tanaka@acme.co.jp" {
				t.Fatalf("first email = %q", req.Customers[0].Email)
			}
			if req.Subject != "ご案内" {
				t.Fatalf("subject = %q", req.Subject)
			}
			return &service.BatchResult{Enqueued: 2, Skipped: 0}, nil
		},
	}

	app := newBatchTestApp(t, svc)

	body := `{
		"customers": [
			{"company":"Acme","name":"田中","email":"tanaka@acme.co.jp","domainTags":["EC"]},
			{"company":"Globex","name":"佐藤","email":"sato@globex.co.jp"}
		],
		"subject": "ご案内",
		"templateBody": "{{会社名}}様"
	}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/batches", body)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", resp.StatusCode, string(respBody))
	}

	var parsed map[string]any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if parsed["enqueued"] != float64(2) {
		t.Fatalf("enqueued = %v, want 2", parsed["enqueued"])
	}
}

func TestCreateBatchRejectsBadInput(t *testing.T) {
	t.Parallel()

	svc := &stubBatchService{
		enqueueFn: func(context.Context, service.BatchRequest) (*service.BatchResult, error) {
			return nil, fmt.Errorf("%w: subject is required", domain.ErrValidation)
		},
	}
	app := newBatchTestApp(t, svc)

	resp, _ := performRequest(t, app, http.MethodPost, "/v1/batches", `{"customers":[{"email":"a@b.com"}]}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a validation error", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/batches", `not json`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for malformed JSON", resp.StatusCode)
	}
}

func TestListJobs(t *testing.T) {
	t.Parallel()

	sentAt := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	svc := &stubBatchService{
		listJobsFn: func(_ context.Context, params repository.JobListParams) ([]domain.Job, int64, error) {
			if params.Status == nil || *params.Status != domain.StatusDone {
				t.Fatalf("status filter = %v, want DONE", params.Status)
			}
			return []domain.Job{{
				ID:       "j1",
				Seq:      1,
				Customer: domain.Customer{Company: "Acme", Name: "田中", Email: "tanaka@acme.co.jp"},
				Subject:  "ご案内",
				Status:   domain.StatusDone,
				SentAt:   &sentAt,
			}}, 1, nil
		},
	}
	app := newBatchTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/jobs?status=done", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var parsed listJobsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if len(parsed.Data) != 1 || parsed.Data[0].ID != "j1" {
		t.Fatalf("data = %+v, want the single job", parsed.Data)
	}
	if parsed.Meta.Total != 1 {
		t.Fatalf("meta.total = %d, want 1", parsed.Meta.Total)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/jobs?status=bogus", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for an unknown status", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/jobs?pageSize=9999", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for an oversized page", resp.StatusCode)
	}
}

func TestClearQueueConflict(t *testing.T) {
	t.Parallel()

	svc := &stubBatchService{
		clearQueueFn: func(context.Context) (int64, error) {
			return 0, fmt.Errorf("%w: cannot clear the queue while the worker is running", domain.ErrConflict)
		},
	}
	app := newBatchTestApp(t, svc)

	resp, _ := performRequest(t, app, http.MethodDelete, "/v1/jobs", "")
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409 while the worker runs", resp.StatusCode)
	}
}

func TestListSendLog(t *testing.T) {
	t.Parallel()

	svc := &stubBatchService{
		listLogFn: func(_ context.Context, params repository.SendLogListParams) ([]domain.SendLogEntry, int64, error) {
			if params.Status == nil || *params.Status != domain.SendFailed {
				t.Fatalf("status filter = %v, want Failed", params.Status)
			}
			if params.From == nil {
				t.Fatal("from filter must be parsed")
			}
			errMsg := "transport error"
			return []domain.SendLogEntry{{
				ID:        "e1",
				JobID:     "j1",
				Recipient: "tanaka@acme.co.jp",
				Status:    domain.SendFailed,
				Error:     &errMsg,
			}}, 1, nil
		},
	}
	app := newBatchTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodGet,
		"/v1/send-log?status=Failed&from=2026-08-30T00:00:00Z", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var parsed listSendLogResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if len(parsed.Data) != 1 || parsed.Data[0].Error == nil {
		t.Fatalf("data = %+v, want the failed entry with its error", parsed.Data)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/send-log?from=yesterday", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a malformed time filter", resp.StatusCode)
	}
}

func TestWorkerStart(t *testing.T) {
	t.Parallel()

	var gotDelay domain.DelayConfig
	svc := &stubWorkerService{
		startFn: func(_ context.Context, delay domain.DelayConfig) error {
			gotDelay = delay
			return delay.Validate()
		},
	}
	app := newWorkerTestApp(t, svc, &stubLimiter{})

	body := `{"mode":"random","minMs":500,"maxMs":2000}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/worker/start", body)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", resp.StatusCode, string(respBody))
	}
	if gotDelay.Mode != domain.DelayRandom || gotDelay.MinMs != 500 || gotDelay.MaxMs != 2000 {
		t.Fatalf("delay = %+v, want the parsed random config", gotDelay)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/worker/start", `{"mode":"random","minMs":9,"maxMs":1}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for an inverted range", resp.StatusCode)
	}

	// An empty body defaults to fixed pacing.
	resp, _ = performRequest(t, app, http.MethodPost, "/v1/worker/start", `{}`)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202 for the default config", resp.StatusCode)
	}
	if gotDelay.Mode != domain.DelayFixed {
		t.Fatalf("delay mode = %s, want FIXED by default", gotDelay.Mode)
	}
}

func TestWorkerStopAndStatus(t *testing.T) {
	t.Parallel()

	stopped := false
	svc := &stubWorkerService{
		stopFn: func(context.Context) { stopped = true },
		statusFn: func(context.Context) (*domain.WorkerState, error) {
			return &domain.WorkerState{
				ID:          domain.WorkerStateID,
				IsRunning:   true,
				Delay:       domain.DelayConfig{Mode: domain.DelayFixed, FixedMs: 3000},
				Total:       10,
				Sent:        4,
				Failed:      1,
				LastLogLine: "sent to tanaka@acme.co.jp",
			}, nil
		},
	}
	app := newWorkerTestApp(t, svc, &stubLimiter{count: 5, cap: 100})

	resp, _ := performRequest(t, app, http.MethodPost, "/v1/worker/stop", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("stop status = %d, want 200", resp.StatusCode)
	}
	if !stopped {
		t.Fatal("stop must reach the service")
	}

	resp, body := performRequest(t, app, http.MethodGet, "/v1/worker/status", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var parsed workerStatusResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if !parsed.IsRunning || parsed.Sent != 4 || parsed.Failed != 1 {
		t.Fatalf("status body = %+v", parsed)
	}
	if parsed.DailySent != 5 || parsed.DailyCap != 100 {
		t.Fatalf("daily counters = %d/%d, want 5/100", parsed.DailySent, parsed.DailyCap)
	}
}

func TestImportSheet(t *testing.T) {
	t.Parallel()

	svc := &stubImportService{
		importFn: func(_ context.Context, spreadsheetID, rangeA1 string) (*service.ImportResult, error) {
			if spreadsheetID != "sheet-1" || rangeA1 != "Sheet1!A2:D" {
				t.Fatalf("got %q %q", spreadsheetID, rangeA1)
			}
			return &service.ImportResult{
				Customers: []domain.Customer{
					{Company: "Acme", Name: "田中", Email: "tanaka@acme.co.jp", DomainTags: []string{"EC"}},
				},
				Skipped: 1,
			}, nil
		},
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})
	if err := RegisterImportRoutes(app, svc); err != nil {
		t.Fatalf("RegisterImportRoutes() error = %v", err)
	}

	body := `{"spreadsheetId":"sheet-1","range":"Sheet1!A2:D"}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/imports/sheet", body)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(respBody))
	}

	var parsed importSheetResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if len(parsed.Customers) != 1 || parsed.Customers[0].Email != "tanaka@acme.co.jp" {
		t.Fatalf("customers = %+v", parsed.Customers)
	}
	if parsed.Skipped != 1 {
		t.Fatalf("skipped = %d, want 1", parsed.Skipped)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/imports/sheet", `{"range":"A:D"}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a missing spreadsheet id", resp.StatusCode)
	}
}

func newBatchTestApp(t *testing.T, svc BatchService) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})
	if err := RegisterBatchRoutes(app, svc); err != nil {
		t.Fatalf("RegisterBatchRoutes() error = %v", err)
	}
	return app
}

func newWorkerTestApp(t *testing.T, svc WorkerService, limiter *stubLimiter) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})
	if err := RegisterWorkerRoutes(app, svc, limiter); err != nil {
		t.Fatalf("RegisterWorkerRoutes() error = %v", err)
	}
	return app
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

type stubBatchService struct {
	enqueueFn    func(ctx context.Context, req service.BatchRequest) (*service.BatchResult, error)
	listJobsFn   func(ctx context.Context, params repository.JobListParams) ([]domain.Job, int64, error)
	clearQueueFn func(ctx context.Context) (int64, error)
	listLogFn    func(ctx context.Context, params repository.SendLogListParams) ([]domain.SendLogEntry, int64, error)
	purgeLogFn   func(ctx context.Context) (int64, error)
}

func (s *stubBatchService) Enqueue(ctx context.Context, req service.BatchRequest) (*service.BatchResult, error) {
	if s.enqueueFn != nil {
		return s.enqueueFn(ctx, req)
	}
	return &service.BatchResult{}, nil
}

func (s *stubBatchService) ListJobs(ctx context.Context, params repository.JobListParams) ([]domain.Job, int64, error) {
	if s.listJobsFn != nil {
		return s.listJobsFn(ctx, params)
	}
	return nil, 0, nil
}

func (s *stubBatchService) ClearQueue(ctx context.Context) (int64, error) {
	if s.clearQueueFn != nil {
		return s.clearQueueFn(ctx)
	}
	return 0, nil
}

func (s *stubBatchService) ListLog(ctx context.Context, params repository.SendLogListParams) ([]domain.SendLogEntry, int64, error) {
	if s.listLogFn != nil {
		return s.listLogFn(ctx, params)
	}
	return nil, 0, nil
}

func (s *stubBatchService) PurgeLog(ctx context.Context) (int64, error) {
	if s.purgeLogFn != nil {
		return s.purgeLogFn(ctx)
	}
	return 0, nil
}

type stubWorkerService struct {
	startFn  func(ctx context.Context, delay domain.DelayConfig) error
	stopFn   func(ctx context.Context)
	statusFn func(ctx context.Context) (*domain.WorkerState, error)
	running  bool
}

func (s *stubWorkerService) Start(ctx context.Context, delay domain.DelayConfig) error {
	if s.startFn != nil {
		return s.startFn(ctx, delay)
	}
	return nil
}

func (s *stubWorkerService) Stop(ctx context.Context) {
	if s.stopFn != nil {
		s.stopFn(ctx)
	}
}

func (s *stubWorkerService) Running() bool {
	return s.running
}

func (s *stubWorkerService) Status(ctx context.Context) (*domain.WorkerState, error) {
	if s.statusFn != nil {
		return s.statusFn(ctx)
	}
	return &domain.WorkerState{ID: domain.WorkerStateID}, nil
}

type stubImportService struct {
	importFn func(ctx context.Context, spreadsheetID, rangeA1 string) (*service.ImportResult, error)
}

func (s *stubImportService) ImportCustomers(ctx context.Context, spreadsheetID, rangeA1 string) (*service.ImportResult, error) {
	if s.importFn != nil {
		return s.importFn(ctx, spreadsheetID, rangeA1)
	}
	return &service.ImportResult{}, nil
}

type stubLimiter struct {
	count int64
	cap   int64
}

func (s *stubLimiter) Count(context.Context) (int64, error) {
	return s.count, nil
}

func (s *stubLimiter) Remaining(context.Context) (int64, error) {
	remaining := s.cap - s.count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (s *stubLimiter) Increment(context.Context) (int64, error) {
	s.count++
	return s.count, nil
}

func (s *stubLimiter) Cap() int64 {
	return s.cap
}

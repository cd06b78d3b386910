package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/domain"
	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"
	"github.com/core-tools/hsu-supervisor/pkg/monitoring"

	"github.com/google/uuid"
)

// Bulk commands wait for every worker; the client timeout must outlast them.
const DefaultClientTimeout = 2 * time.Minute

type clientGateway struct {
	baseURL    string
	operator   string
	httpClient *http.Client
	logger     logging.Logger
}

// NewClientGateway calls a remote supervisor's HTTP API as operator.
func NewClientGateway(baseURL, operator string, httpClient *http.Client, logger logging.Logger) domain.Contract {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultClientTimeout}
	}
	return &clientGateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		operator:   operator,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (gw *clientGateway) Status(ctx context.Context) (monitoring.StatusView, error) {
	var view monitoring.StatusView
	err := gw.call(ctx, http.MethodGet, "/api/status", &view, nil)
	return view, err
}

func (gw *clientGateway) SystemInfo(ctx context.Context) (domain.SystemInfo, error) {
	var info domain.SystemInfo
	err := gw.call(ctx, http.MethodGet, "/api/system", &info, nil)
	return info, err
}

func (gw *clientGateway) StartWorker(ctx context.Context, id string) (domain.WorkerResult, error) {
	return gw.worker(ctx, id, "start")
}

func (gw *clientGateway) StopWorker(ctx context.Context, id string) (domain.WorkerResult, error) {
	return gw.worker(ctx, id, "stop")
}

func (gw *clientGateway) RestartWorker(ctx context.Context, id string) (domain.WorkerResult, error) {
	return gw.worker(ctx, id, "restart")
}

func (gw *clientGateway) StartAll(ctx context.Context) (domain.BatchSummary, error) {
	return gw.batch(ctx, "start-all")
}

func (gw *clientGateway) StopAll(ctx context.Context) (domain.BatchSummary, error) {
	return gw.batch(ctx, "stop-all")
}

func (gw *clientGateway) RestartAll(ctx context.Context) (domain.BatchSummary, error) {
	return gw.batch(ctx, "restart-all")
}

func (gw *clientGateway) worker(ctx context.Context, id, action string) (domain.WorkerResult, error) {
	var result domain.WorkerResult
	var partial *domain.WorkerResult
	err := gw.call(ctx, http.MethodPost, "/api/workers/"+url.PathEscape(id)+"/"+action, &result, &partial)
	if err != nil && partial != nil {
		return *partial, err
	}
	return result, err
}

func (gw *clientGateway) batch(ctx context.Context, action string) (domain.BatchSummary, error) {
	var summary domain.BatchSummary
	err := gw.call(ctx, http.MethodPost, "/api/workers/"+action, &summary, nil)
	return summary, err
}

// call decodes a 2xx body into out. Any other status becomes a DomainError of
// the type the server reported; partial receives the worker result if present.
func (gw *clientGateway) call(ctx context.Context, method, path string, out interface{}, partial **domain.WorkerResult) error {
	request, err := http.NewRequestWithContext(ctx, method, gw.baseURL+path, nil)
	if err != nil {
		return errors.NewValidationError("invalid request", err)
	}
	requestID := logging.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	request.Header.Set(OperatorHeader, gw.operator)
	request.Header.Set(RequestIDHeader, requestID)
	request.Header.Set("Accept", "application/json")

	response, err := gw.httpClient.Do(request)
	if err != nil {
		gw.logger.Errorf("%s %s client gateway: %v", method, path, err)
		return errors.NewNetworkError("request failed", err).WithContext("path", path)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return errors.NewNetworkError("failed to read response", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		if err := json.Unmarshal(body, out); err != nil {
			return errors.NewInternalError("malformed response", err)
		}
		gw.logger.Debugf("%s %s client gateway done", method, path)
		return nil
	}

	var failure ErrorResponse
	if err := json.Unmarshal(body, &failure); err != nil || failure.Error == "" {
		return errors.NewNetworkError("unexpected response: "+response.Status, nil)
	}
	if partial != nil {
		*partial = failure.Result
	}
	gw.logger.Debugf("%s %s client gateway: %s (%s)", method, path, failure.Error, failure.Message)
	return errors.NewDomainError(errors.ErrorType(failure.Error), failure.Message, nil)
}

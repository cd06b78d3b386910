// Package rest serves the supervisor's control surface as a JSON HTTP API and
// provides the matching client gateway.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/core-tools/hsu-supervisor/pkg/control"
	"github.com/core-tools/hsu-supervisor/pkg/domain"
	"github.com/core-tools/hsu-supervisor/pkg/errors"
	"github.com/core-tools/hsu-supervisor/pkg/logging"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	OperatorHeader  = "X-Operator-ID"
	RequestIDHeader = "X-Request-ID"
)

type ErrorResponse struct {
	Error   string               `json:"error"`
	Message string               `json:"message"`
	Result  *domain.WorkerResult `json:"result,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

type handler struct {
	contract domain.Contract
	allow    *control.AllowList
	logger   logging.Logger
}

// NewHandler routes the control API onto contract. Every /api route requires
// an operator id present in allow.
func NewHandler(contract domain.Contract, allow *control.AllowList, logger logging.Logger) http.Handler {
	h := &handler{
		contract: contract,
		allow:    allow,
		logger:   logger,
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.authorize)
	api.HandleFunc("/status", h.status).Methods(http.MethodGet)
	api.HandleFunc("/system", h.system).Methods(http.MethodGet)
	api.HandleFunc("/workers/start-all", h.batch(h.contract.StartAll)).Methods(http.MethodPost)
	api.HandleFunc("/workers/stop-all", h.batch(h.contract.StopAll)).Methods(http.MethodPost)
	api.HandleFunc("/workers/restart-all", h.batch(h.contract.RestartAll)).Methods(http.MethodPost)
	api.HandleFunc("/workers/{id}/start", h.worker(h.contract.StartWorker)).Methods(http.MethodPost)
	api.HandleFunc("/workers/{id}/stop", h.worker(h.contract.StopWorker)).Methods(http.MethodPost)
	api.HandleFunc("/workers/{id}/restart", h.worker(h.contract.RestartWorker)).Methods(http.MethodPost)

	r.Use(h.recovery)
	r.Use(h.requestID)

	return r
}

func (h *handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		start := time.Now()
		ctx := logging.ContextWithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
		logging.ForContext(ctx, h.logger).Debugf("HTTP %s %s done in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func (h *handler) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Errorf("HTTP handler panic, path: %s, panic: %v", r.URL.Path, rec)
				h.writeError(w, errors.NewInternalError(fmt.Sprintf("panic: %v", rec), nil), nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *handler) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		operator := r.Header.Get(OperatorHeader)
		if !h.allow.Allowed(operator) {
			logging.ForContext(r.Context(), h.logger).Warnf("HTTP refused operator, operator: %q, path: %s", operator, r.URL.Path)
			h.writeError(w, errors.NewPermissionError("operator is not allowed: "+operator, nil), nil)
			return
		}
		logging.ForContext(r.Context(), h.logger).Infof("HTTP %s %s, operator: %s", r.Method, r.URL.Path, operator)
		next.ServeHTTP(w, r)
	})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Time: time.Now().Format(time.RFC3339)})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	view, err := h.contract.Status(r.Context())
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *handler) system(w http.ResponseWriter, r *http.Request) {
	info, err := h.contract.SystemInfo(r.Context())
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

func (h *handler) worker(op func(ctx context.Context, id string) (domain.WorkerResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		result, err := op(r.Context(), id)
		if err != nil {
			var partial *domain.WorkerResult
			if result.Outcome != "" {
				partial = &result
			}
			h.writeError(w, err, partial)
			return
		}
		h.writeJSON(w, http.StatusOK, result)
	}
}

func (h *handler) batch(op func(ctx context.Context) (domain.BatchSummary, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := op(r.Context())
		if err != nil {
			h.writeError(w, err, nil)
			return
		}
		h.writeJSON(w, http.StatusOK, summary)
	}
}

// StatusCode maps an error's classification onto an HTTP status.
func StatusCode(err error) int {
	switch errors.TypeOf(err) {
	case errors.ErrorTypeNotFound:
		return http.StatusNotFound
	case errors.ErrorTypeInProgress, errors.ErrorTypeConflict:
		return http.StatusConflict
	case errors.ErrorTypeValidation:
		return http.StatusBadRequest
	case errors.ErrorTypePermission:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Errorf("Error encoding JSON response: %v", err)
	}
}

func (h *handler) writeError(w http.ResponseWriter, err error, result *domain.WorkerResult) {
	errType := errors.TypeOf(err)
	if errType == "" {
		errType = errors.ErrorTypeInternal
	}
	h.writeJSON(w, StatusCode(err), ErrorResponse{
		Error:   string(errType),
		Message: errors.ReasonOf(err),
		Result:  result,
	})
}

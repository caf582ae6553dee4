package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/PavelAgarkov/lease-lock/dlock"
	"github.com/PavelAgarkov/lease-lock/inventory"
	"github.com/go-chi/chi/v5"
)

type InventoryService interface {
	Decrement(ctx context.Context, product string) (int64, error)
	SetStock(ctx context.Context, product string, qty int64) error
	Stock(ctx context.Context, product string) (int64, error)
}

type ReadinessChecker interface {
	IsReady() bool
}

type stockResponse struct {
	Product string `json:"product"`
	Stock   int64  `json:"stock"`
}

type stockRequest struct {
	Stock *int64 `json:"stock"`
}

type errorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// InventoryRoutes регистрирует API остатков и служебные ручки. metrics может быть nil.
func InventoryRoutes(svc InventoryService, ready ReadinessChecker, metrics http.Handler) func(*HTTPServerChi) {
	return func(s *HTTPServerChi) {
		s.Router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		s.Router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
			if !ready.IsReady() {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("not ready"))
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
		})
		if metrics != nil {
			s.Router.Method(http.MethodGet, "/metrics", metrics)
		}

		s.Router.Route("/products/{id}", func(r chi.Router) {
			r.Post("/decrement", func(w http.ResponseWriter, r *http.Request) {
				product := chi.URLParam(r, "id")
				left, err := svc.Decrement(r.Context(), product)
				if err != nil {
					writeError(w, r, err)
					return
				}
				writeJSON(w, http.StatusOK, stockResponse{Product: product, Stock: left})
			})
			r.Get("/stock", func(w http.ResponseWriter, r *http.Request) {
				product := chi.URLParam(r, "id")
				qty, err := svc.Stock(r.Context(), product)
				if err != nil {
					writeError(w, r, err)
					return
				}
				writeJSON(w, http.StatusOK, stockResponse{Product: product, Stock: qty})
			})
			r.Put("/stock", func(w http.ResponseWriter, r *http.Request) {
				product := chi.URLParam(r, "id")
				var req stockRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Stock == nil {
					writeJSON(w, http.StatusBadRequest, errorResponse{
						Error:         `body must be {"stock": <int>}`,
						CorrelationID: CorrelationID(r.Context()),
					})
					return
				}
				if err := svc.SetStock(r.Context(), product, *req.Stock); err != nil {
					writeError(w, r, err)
					return
				}
				writeJSON(w, http.StatusOK, stockResponse{Product: product, Stock: *req.Stock})
			})
		})
	}
}

// statusFor сопоставляет ошибки блокировки и склада с HTTP-кодами.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, dlock.ErrLockContended):
		return http.StatusTooManyRequests, "too many requests, retry later"
	case errors.Is(err, inventory.ErrStockNotFound):
		return http.StatusNotFound, "stock is not set"
	case errors.Is(err, inventory.ErrOutOfStock):
		return http.StatusConflict, "out of stock"
	case errors.Is(err, inventory.ErrInvalidStock):
		return http.StatusBadRequest, "invalid stock value"
	case errors.Is(err, dlock.ErrLockAlreadyLost):
		return http.StatusInternalServerError, "lock lost during update, result unknown"
	case errors.Is(err, dlock.ErrBackendUnavailable):
		return http.StatusServiceUnavailable, "lock backend unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timed out"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := statusFor(err)
	if code == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, code, errorResponse{Error: msg, CorrelationID: CorrelationID(r.Context())})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

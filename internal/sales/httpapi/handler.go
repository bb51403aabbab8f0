package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Mrprince0421/microsservi-os/internal/auth"
	"github.com/Mrprince0421/microsservi-os/internal/clients"
	"github.com/Mrprince0421/microsservi-os/internal/logging"
	"github.com/Mrprince0421/microsservi-os/internal/middleware"
	"github.com/Mrprince0421/microsservi-os/internal/sales"
)

// Placer is satisfied by *sales.Orchestrator.
type Placer interface {
	PlaceOrder(ctx context.Context, id auth.Identity, items []sales.Item) (*sales.Order, error)
}

type SaleHandler struct {
	placer Placer
	repo   sales.Repository
	now    func() time.Time
}

func NewSaleHandler(placer Placer, repo sales.Repository) *SaleHandler {
	return &SaleHandler{placer: placer, repo: repo, now: time.Now}
}

const maxBodyBytes = 1 << 20

type createSaleRequest struct {
	Items []sales.Item `json:"items"`
}

func (h *SaleHandler) CreateSale(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())

	var req createSaleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		middleware.WriteError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}

	o, err := h.placer.PlaceOrder(r.Context(), id, req.Items)
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *SaleHandler) ListSales(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	orders, err := h.repo.ListByUser(ctx, ownerID(r))
	if err != nil {
		h.internal(w, r, "list sales", err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *SaleHandler) GetSale(w http.ResponseWriter, r *http.Request) {
	saleID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		middleware.WriteError(w, r, http.StatusBadRequest, "sale id must be an integer")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.repo.GetByID(ctx, ownerID(r), saleID)
	if errors.Is(err, sales.ErrNotFound) {
		middleware.WriteError(w, r, http.StatusNotFound, "Sale not found")
		return
	}
	if err != nil {
		h.internal(w, r, "get sale", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// DailyReport defaults to the current UTC day.
func (h *SaleHandler) DailyReport(w http.ResponseWriter, r *http.Request) {
	day := h.now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			middleware.WriteError(w, r, http.StatusBadRequest, "date must be formatted as YYYY-MM-DD")
			return
		}
		day = d
	}

	rep, err := h.repo.DailyReport(r.Context(), ownerID(r), day)
	if err != nil {
		h.internal(w, r, "daily report", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *SaleHandler) BestSelling(w http.ResponseWriter, r *http.Request) {
	limit := sales.DefaultBestSellingLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			middleware.WriteError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	rep, err := h.repo.BestSelling(r.Context(), ownerID(r), limit)
	if err != nil {
		h.internal(w, r, "best selling report", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// writeOrderError maps a failed placement to a status code. Catalog outages
// surface as 503 so they are not mistaken for a bad request.
func (h *SaleHandler) writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, sales.ErrInvalidOrder) {
		middleware.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var oe *sales.OrderError
	if !errors.As(err, &oe) {
		h.internal(w, r, "place order", err)
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(oe.Kind, sales.ErrProductNotFound):
		status = http.StatusNotFound
	case errors.Is(oe.Kind, sales.ErrInsufficientStock):
		status = http.StatusBadRequest
	case errors.Is(err, clients.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("place order failed", zap.Error(err))
	}
	middleware.WriteError(w, r, status, oe.Detail())
}

func (h *SaleHandler) internal(w http.ResponseWriter, r *http.Request, op string, err error) {
	logging.FromContext(r.Context()).Error(op+" failed", zap.Error(err))
	middleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
}

func ownerID(r *http.Request) int64 {
	id, _ := middleware.IdentityFrom(r.Context())
	return id.SubjectID
}

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Mrprince0421/microsservi-os/internal/catalog"
	"github.com/Mrprince0421/microsservi-os/internal/logging"
	"github.com/Mrprince0421/microsservi-os/internal/middleware"
)

const detailNotFound = "Product not found"

type Handler struct {
	repo catalog.Repository
}

func NewHandler(repo catalog.Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "catalog-service"})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)

	var in catalog.NewProduct
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		middleware.WriteError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := in.Validate(); err != nil {
		middleware.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.repo.Create(r.Context(), owner, in)
	if err != nil {
		h.internal(w, r, "create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := catalog.ListFilter{Name: q.Get("name"), Limit: catalog.DefaultListLimit}

	var err error
	if f.Skip, err = intParam(q.Get("skip"), 0); err != nil || f.Skip < 0 {
		middleware.WriteError(w, r, http.StatusBadRequest, "skip must be a non-negative integer")
		return
	}
	if f.Limit, err = intParam(q.Get("limit"), catalog.DefaultListLimit); err != nil || f.Limit < 1 {
		middleware.WriteError(w, r, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	if raw := q.Get("product_id"); raw != "" {
		if f.ProductID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			middleware.WriteError(w, r, http.StatusBadRequest, "product_id must be an integer")
			return
		}
	}

	res, err := h.repo.List(r.Context(), ownerID(r), f)
	if err != nil {
		h.internal(w, r, "list products", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	p, err := h.repo.Get(r.Context(), ownerID(r), id)
	if err != nil {
		h.fail(w, r, "get product", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	var patch catalog.ProductPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		middleware.WriteError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := patch.Validate(); err != nil {
		middleware.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var (
		p   catalog.Product
		err error
	)
	if patch.Empty() {
		p, err = h.repo.Get(r.Context(), ownerID(r), id)
	} else {
		p, err = h.repo.Update(r.Context(), ownerID(r), id, patch)
	}
	if err != nil {
		h.fail(w, r, "update product", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	if err := h.repo.Delete(r.Context(), ownerID(r), id); err != nil {
		h.fail(w, r, "delete product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reserveRequest struct {
	Quantity int `json:"quantity"`
}

// Reserve decrements stock only when enough is available.
func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity <= 0 {
		middleware.WriteError(w, r, http.StatusBadRequest, "quantity must be a positive integer")
		return
	}

	p, err := h.repo.Decrement(r.Context(), ownerID(r), id, req.Quantity)
	if errors.Is(err, catalog.ErrInsufficientStock) {
		middleware.WriteError(w, r, http.StatusConflict, "insufficient stock")
		return
	}
	if err != nil {
		h.fail(w, r, "reserve product", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, catalog.ErrNotFound) {
		middleware.WriteError(w, r, http.StatusNotFound, detailNotFound)
		return
	}
	h.internal(w, r, op, err)
}

func (h *Handler) internal(w http.ResponseWriter, r *http.Request, op string, err error) {
	logging.FromContext(r.Context()).Error(op+" failed", zap.Error(err))
	middleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
}

func ownerID(r *http.Request) int64 {
	id, _ := middleware.IdentityFrom(r.Context())
	return id.SubjectID
}

func productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		middleware.WriteError(w, r, http.StatusBadRequest, "product id must be an integer")
		return 0, false
	}
	return id, true
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

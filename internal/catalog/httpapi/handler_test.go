package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mrprince0421/microsservi-os/internal/catalog"
	"github.com/Mrprince0421/microsservi-os/internal/metrics"
)

type fakeRepo struct {
	products map[int64]catalog.Product
	nextID   int64
	lastList catalog.ListFilter
	err      error
}

func newFakeRepo(ps ...catalog.Product) *fakeRepo {
	r := &fakeRepo{products: map[int64]catalog.Product{}, nextID: 100}
	for _, p := range ps {
		r.products[p.ID] = p
	}
	return r
}

func (r *fakeRepo) owned(ownerID, id int64) (catalog.Product, error) {
	p, ok := r.products[id]
	if !ok || p.UserID != ownerID {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

func (r *fakeRepo) Create(ctx context.Context, ownerID int64, in catalog.NewProduct) (catalog.Product, error) {
	if r.err != nil {
		return catalog.Product{}, r.err
	}
	r.nextID++
	p := catalog.Product{ID: r.nextID, UserID: ownerID, Name: in.Name, Description: in.Description, Price: in.Price, Quantity: in.Quantity}
	r.products[p.ID] = p
	return p, nil
}

func (r *fakeRepo) List(ctx context.Context, ownerID int64, f catalog.ListFilter) (catalog.ListResult, error) {
	r.lastList = f
	res := catalog.ListResult{Products: []catalog.Product{}}
	for _, p := range r.products {
		if p.UserID == ownerID {
			res.Products = append(res.Products, p)
		}
	}
	res.TotalCount = len(res.Products)
	return res, r.err
}

func (r *fakeRepo) Get(ctx context.Context, ownerID, id int64) (catalog.Product, error) {
	return r.owned(ownerID, id)
}

func (r *fakeRepo) Update(ctx context.Context, ownerID, id int64, patch catalog.ProductPatch) (catalog.Product, error) {
	p, err := r.owned(ownerID, id)
	if err != nil {
		return p, err
	}
	if patch.Quantity != nil {
		p.Quantity = *patch.Quantity
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	r.products[id] = p
	return p, nil
}

func (r *fakeRepo) Delete(ctx context.Context, ownerID, id int64) error {
	if _, err := r.owned(ownerID, id); err != nil {
		return err
	}
	delete(r.products, id)
	return nil
}

func (r *fakeRepo) Decrement(ctx context.Context, ownerID, id int64, quantity int) (catalog.Product, error) {
	p, err := r.owned(ownerID, id)
	if err != nil {
		return p, err
	}
	if p.Quantity < quantity {
		return catalog.Product{}, catalog.ErrInsufficientStock
	}
	p.Quantity -= quantity
	r.products[id] = p
	return p, nil
}

func serve(t *testing.T, h http.Handler, method, target, body, userID string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

var mug = catalog.Product{ID: 1, UserID: 42, Name: "Mug", Price: 10.0, Quantity: 5}

func TestHealth(t *testing.T) {
	r := NewRouter(NewHandler(newFakeRepo()), Options{})
	rec := serve(t, r, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProductsRequireGatewayIdentity(t *testing.T) {
	r := NewRouter(NewHandler(newFakeRepo(mug)), Options{})

	rec := serve(t, r, http.MethodGet, "/products/1", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetProduct(t *testing.T) {
	r := NewRouter(NewHandler(newFakeRepo(mug)), Options{})

	rec := serve(t, r, http.MethodGet, "/products/1", "", "42")
	require.Equal(t, http.StatusOK, rec.Code)
	var got catalog.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, mug, got)

	rec = serve(t, r, http.MethodGet, "/products/1", "", "7")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Product not found")

	rec = serve(t, r, http.MethodGet, "/products/abc", "", "42")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateProduct(t *testing.T) {
	repo := newFakeRepo()
	r := NewRouter(NewHandler(repo), Options{})

	rec := serve(t, r, http.MethodPost, "/products/", `{"name":"Lamp","price":12.5,"quantity":3}`, "42")
	require.Equal(t, http.StatusCreated, rec.Code)
	var got catalog.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(42), got.UserID)
	assert.Equal(t, "Lamp", got.Name)

	rec = serve(t, r, http.MethodPost, "/products/", `{"name":"","price":0,"quantity":-1}`, "42")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, r, http.MethodPost, "/products/", `{`, "42")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListProductsParsesQuery(t *testing.T) {
	repo := newFakeRepo(mug)
	r := NewRouter(NewHandler(repo), Options{})

	rec := serve(t, r, http.MethodGet, "/products/?skip=2&limit=5&name=Mu&product_id=1", "", "42")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, catalog.ListFilter{Name: "Mu", ProductID: 1, Skip: 2, Limit: 5}, repo.lastList)

	var got catalog.ListResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.TotalCount)

	rec = serve(t, r, http.MethodGet, "/products/?limit=-1", "", "42")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateReplacesQuantity(t *testing.T) {
	repo := newFakeRepo(mug)
	r := NewRouter(NewHandler(repo), Options{})

	rec := serve(t, r, http.MethodPut, "/products/1", `{"quantity":3}`, "42")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, repo.products[1].Quantity)

	rec = serve(t, r, http.MethodPut, "/products/1", `{"quantity":-3}`, "42")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteProduct(t *testing.T) {
	repo := newFakeRepo(mug)
	r := NewRouter(NewHandler(repo), Options{})

	assert.Equal(t, http.StatusNoContent, serve(t, r, http.MethodDelete, "/products/1", "", "42").Code)
	assert.Equal(t, http.StatusNotFound, serve(t, r, http.MethodDelete, "/products/1", "", "42").Code)
}

func TestReserveEndpoint(t *testing.T) {
	repo := newFakeRepo(mug)
	r := NewRouter(NewHandler(repo), Options{})

	rec := serve(t, r, http.MethodPost, "/products/1/reserve", `{"quantity":2}`, "42")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, repo.products[1].Quantity)

	rec = serve(t, r, http.MethodPost, "/products/1/reserve", `{"quantity":4}`, "42")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 3, repo.products[1].Quantity)

	rec = serve(t, r, http.MethodPost, "/products/9/reserve", `{"quantity":1}`, "42")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, r, http.MethodPost, "/products/1/reserve", `{"quantity":0}`, "42")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRepositoryErrorIs500(t *testing.T) {
	repo := newFakeRepo()
	repo.err = errors.New("db down")
	r := NewRouter(NewHandler(repo), Options{})

	rec := serve(t, r, http.MethodPost, "/products/", `{"name":"Lamp","price":1,"quantity":1}`, "42")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestMetricsUseRouteTemplate(t *testing.T) {
	m := metrics.New("catalog_test")
	r := NewRouter(NewHandler(newFakeRepo(mug)), Options{Metrics: m})

	serve(t, r, http.MethodGet, "/products/1", "", "42")

	rec := serve(t, r, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/products/{id}"`)
}

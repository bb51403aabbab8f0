package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Mrprince0421/microsservi-os/internal/auth"
	"github.com/Mrprince0421/microsservi-os/internal/middleware"
)

// Product is the catalog representation the sales service reads.
type Product struct {
	ID          int64   `json:"id"`
	UserID      int64   `json:"user_id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
}

type quantityBody struct {
	Quantity int `json:"quantity"`
}

// CatalogClient calls the catalog service as the caller identified by the
// Identity passed to each method. The identity is forwarded exactly as
// received.
type CatalogClient struct{ c *Client }

func NewCatalogClient(c *Client) *CatalogClient { return &CatalogClient{c: c} }

// Fetch returns ErrNotFound for a 404 and a *StatusError for any other
// non-2xx answer. Timeouts wrap ErrUnavailable.
func (cc *CatalogClient) Fetch(ctx context.Context, productID int64, id auth.Identity) (Product, error) {
	resp, err := cc.c.Do(ctx, http.MethodGet, productPath(productID), "", nil, identityHeaders(id))
	if err != nil {
		return Product{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Product{}, fmt.Errorf("product %d: %w", productID, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Product{}, newStatusError(cc.c.Name, resp)
	}

	var p Product
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return Product{}, fmt.Errorf("decode product %d: %w", productID, err)
	}
	return p, nil
}

// Reserve replaces the stored quantity with newQuantity.
func (cc *CatalogClient) Reserve(ctx context.Context, productID int64, newQuantity int, id auth.Identity) error {
	resp, err := cc.sendQuantity(ctx, http.MethodPut, productPath(productID), newQuantity, id)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(cc.c.Name, resp)
	}
	return nil
}

// Decrement subtracts quantity in a single conditional update on the catalog
// side. A 409 maps to ErrInsufficientStock and a 404 to ErrNotFound.
func (cc *CatalogClient) Decrement(ctx context.Context, productID int64, quantity int, id auth.Identity) (Product, error) {
	resp, err := cc.sendQuantity(ctx, http.MethodPost, productPath(productID)+"/reserve", quantity, id)
	if err != nil {
		return Product{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Product{}, fmt.Errorf("product %d: %w", productID, ErrNotFound)
	case resp.StatusCode == http.StatusConflict:
		return Product{}, fmt.Errorf("product %d: %w", productID, ErrInsufficientStock)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Product{}, newStatusError(cc.c.Name, resp)
	}

	var p Product
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return Product{}, fmt.Errorf("decode product %d: %w", productID, err)
	}
	return p, nil
}

func (cc *CatalogClient) sendQuantity(ctx context.Context, method, path string, quantity int, id auth.Identity) (*http.Response, error) {
	payload, err := json.Marshal(quantityBody{Quantity: quantity})
	if err != nil {
		return nil, err
	}
	h := identityHeaders(id)
	h.Set("Content-Type", "application/json")
	return cc.c.Do(ctx, method, path, "", bytes.NewReader(payload), h)
}

func productPath(id int64) string {
	return "/products/" + strconv.FormatInt(id, 10)
}

func identityHeaders(id auth.Identity) http.Header {
	h := http.Header{}
	h.Set(middleware.HeaderUserID, strconv.FormatInt(id.SubjectID, 10))
	if id.Credential != "" {
		h.Set(middleware.HeaderAuthorization, id.BearerHeader())
	}
	h.Set("Accept", "application/json")
	return h
}

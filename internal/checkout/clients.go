package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// CartClient reads the buyer's cart snapshot from the cart store. The
// snapshot is read-only here; the cart is never mutated by checkout.
type CartClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewCartClient(baseURL string, client *http.Client) *CartClient {
	return &CartClient{baseURL: baseURL, httpClient: client}
}

func (c *CartClient) Snapshot(ctx context.Context, buyerID string) ([]CartLine, error) {
	url := fmt.Sprintf("%s/carts/%s", c.baseURL, buyerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create cart request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch cart snapshot: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cart store returned status %d", resp.StatusCode)
	}

	var lines []CartLine
	if err := json.NewDecoder(resp.Body).Decode(&lines); err != nil {
		return nil, fmt.Errorf("decode cart snapshot: %w", err)
	}

	return lines, nil
}

// CatalogClient resolves products by id. Checkout treats catalog facts as
// read-only; the price read here is frozen into the order.
type CatalogClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewCatalogClient(baseURL string, client *http.Client) *CatalogClient {
	return &CatalogClient{baseURL: baseURL, httpClient: client}
}

func (c *CatalogClient) Product(ctx context.Context, productID string) (*Product, error) {
	url := fmt.Sprintf("%s/products/%s", c.baseURL, productID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create catalog request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch product: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog service returned status %d", resp.StatusCode)
	}

	var product Product
	if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
		return nil, fmt.Errorf("decode product: %w", err)
	}

	return &product, nil
}

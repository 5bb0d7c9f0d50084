package collaborator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/parcelhq/parceld/internal/core/ports"
)

// saleListingClient queries the sale-listing collaborator over HTTP. Any
// transport or decoding failure is returned to the caller, which treats it as
// a conflict.
type saleListingClient struct {
	baseURL string
	client  *http.Client
}

func NewSaleListingClient(baseURL string) (ports.SaleListingClient, error) {
	if _, err := url.Parse(baseURL); err != nil || baseURL == "" {
		return nil, fmt.Errorf("invalid sale-listing URL: %s", baseURL)
	}
	return &saleListingClient{baseURL: baseURL, client: &http.Client{}}, nil
}

func (c *saleListingClient) IsListedForSale(
	ctx context.Context, propertyID uint64,
) (bool, error) {
	endpoint, err := url.JoinPath(c.baseURL, "v1", "listings", fmt.Sprintf("%d", propertyID))
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("sale-listing collaborator returned %s", resp.Status)
	}

	var body struct {
		Listed bool `json:"listed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("invalid sale-listing response: %s", err)
	}
	return body.Listed, nil
}

// disabledSaleListingClient reports no listings. It is wired only when the
// operator explicitly disables the sale-listing integration.
type disabledSaleListingClient struct{}

func NewDisabledSaleListingClient() ports.SaleListingClient {
	return disabledSaleListingClient{}
}

func (disabledSaleListingClient) IsListedForSale(context.Context, uint64) (bool, error) {
	return false, nil
}

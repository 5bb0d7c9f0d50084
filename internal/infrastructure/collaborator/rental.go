package collaborator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/parcelhq/parceld/internal/core/ports"
)

type rentalClient struct {
	baseURL string
	client  *http.Client
}

func NewRentalClient(baseURL string) (ports.RentalClient, error) {
	if _, err := url.Parse(baseURL); err != nil || baseURL == "" {
		return nil, fmt.Errorf("invalid rental URL: %s", baseURL)
	}
	return &rentalClient{baseURL: baseURL, client: &http.Client{}}, nil
}

func (c *rentalClient) HasActiveAgreement(
	ctx context.Context, propertyID uint64,
) (bool, error) {
	endpoint, err := url.JoinPath(c.baseURL, "v1", "agreements", fmt.Sprintf("%d", propertyID))
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
		return false, fmt.Errorf("rental collaborator returned %s", resp.Status)
	}

	var body struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("invalid rental response: %s", err)
	}
	return body.Active, nil
}

// disabledRentalClient reports no agreements. It is wired only when the
// operator explicitly disables the rental integration.
type disabledRentalClient struct{}

func NewDisabledRentalClient() ports.RentalClient {
	return disabledRentalClient{}
}

func (disabledRentalClient) HasActiveAgreement(context.Context, uint64) (bool, error) {
	return false, nil
}

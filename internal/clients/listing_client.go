package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"casanexus/internal/listing"
)

// ListingClient reads listings from the listing service. It satisfies
// reservation.ListingReader.
type ListingClient struct {
	baseURL    string
	httpClient *http.Client
	maxTries   uint
}

func NewListingClient(baseURL string, timeout time.Duration) *ListingClient {
	return &ListingClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxTries:   3,
	}
}

// Get fetches one listing. A 404 is listing.ErrNotFound; transport errors
// and 5xx answers are retried with exponential backoff.
func (c *ListingClient) Get(ctx context.Context, id uuid.UUID) (*listing.Listing, error) {
	url := fmt.Sprintf("%s/listings/%s", c.baseURL, id)

	return backoff.Retry(ctx, func() (*listing.Listing, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, backoff.Permanent(listing.ErrNotFound)
		case resp.StatusCode >= http.StatusInternalServerError:
			return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return nil, backoff.Permanent(fmt.Errorf("unexpected status code: %d", resp.StatusCode))
		}

		var l listing.Listing
		if err := json.NewDecoder(resp.Body).Decode(&l); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("decode listing: %w", err))
		}
		return &l, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxTries),
	)
}

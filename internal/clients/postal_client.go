package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"casanexus/internal/postal"
)

// PostalClient resolves Brazilian postal codes (CEP) through ViaCEP.
type PostalClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewPostalClient(baseURL string, timeout time.Duration) *PostalClient {
	return &PostalClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type viaCEPResponse struct {
	CEP        string `json:"cep"`
	Logradouro string `json:"logradouro"`
	Bairro     string `json:"bairro"`
	Localidade string `json:"localidade"`
	UF         string `json:"uf"`
	// true on unknown codes; older deployments send the string "true"
	Erro any `json:"erro"`
}

func (r viaCEPResponse) notFound() bool {
	switch v := r.Erro.(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

// Lookup returns postal.ErrNotFound for malformed or unknown codes. A
// malformed code never reaches the network.
func (c *PostalClient) Lookup(ctx context.Context, code string) (*postal.Address, error) {
	digits, ok := postal.Normalize(code)
	if !ok {
		return nil, postal.ErrNotFound
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/ws/%s/json/", c.baseURL, digits), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusBadRequest:
		return nil, postal.ErrNotFound
	default:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var body viaCEPResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}
	if body.notFound() {
		return nil, postal.ErrNotFound
	}

	return &postal.Address{
		PostalCode: digits,
		Street:     body.Logradouro,
		District:   body.Bairro,
		City:       body.Localidade,
		State:      body.UF,
	}, nil
}

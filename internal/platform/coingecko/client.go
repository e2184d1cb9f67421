// Package coingecko is the price oracle client used to convert USD offer
// amounts into native-token wei.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/floorbot/internal/domain"
)

// Client is a minimal CoinGecko simple-price client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates an oracle client. baseURL is the API root, e.g.
// "https://api.coingecko.com/api/v3".
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// GetUSDPrice returns the USD price of one unit of the given CoinGecko asset
// id (e.g. "apecoin").
func (c *Client) GetUSDPrice(ctx context.Context, assetID string) (float64, error) {
	params := url.Values{}
	params.Set("ids", assetID)
	params.Set("vs_currencies", "usd")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/simple/price?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("coingecko: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("coingecko: %w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("coingecko: %w: read response: %v", domain.ErrUpstream, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return 0, fmt.Errorf("coingecko: %w: %s", domain.ErrRateLimited, body)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("coingecko: %w: HTTP %d: %s", domain.ErrUpstream, resp.StatusCode, body)
	}

	var prices map[string]map[string]float64
	if err := json.Unmarshal(body, &prices); err != nil {
		return 0, fmt.Errorf("coingecko: decode price: %w", err)
	}

	price, ok := prices[assetID]["usd"]
	if !ok || price <= 0 {
		return 0, fmt.Errorf("coingecko: no usd price for %s: %w", assetID, domain.ErrUpstream)
	}
	return price, nil
}

// UsdToWei converts a USD amount into wei of a token priced at usdPerToken,
// rounding down. It errors on non-positive inputs.
func UsdToWei(amountUsd, usdPerToken float64) (*big.Int, error) {
	if amountUsd <= 0 {
		return nil, fmt.Errorf("coingecko: non-positive usd amount %f", amountUsd)
	}
	if usdPerToken <= 0 {
		return nil, fmt.Errorf("coingecko: non-positive token price %f", usdPerToken)
	}

	tokens := new(big.Float).Quo(big.NewFloat(amountUsd), big.NewFloat(usdPerToken))
	wei := new(big.Float).Mul(tokens, big.NewFloat(1e18))

	out, _ := wei.Int(nil)
	return out, nil
}

// Package magiceden is the REST client for the Magic Eden router API
// (reservoir-compatible), which provides listings, bids, and the execute
// endpoints that return transaction plans.
package magiceden

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/floorbot/internal/domain"
)

// Pacer spaces outbound requests. A nil Pacer disables pacing.
type Pacer interface {
	Wait(ctx context.Context, key string) error
}

// Client is the marketplace API client for a single chain.
type Client struct {
	baseURL    string
	rootURL    string // API host without the router prefix, for unifiedSearch
	apiKey     string
	chain      domain.ChainID
	pacer      Pacer
	httpClient *http.Client
}

// NewClient creates a marketplace client.
//
// baseURL is the router API root, e.g. "https://api-mainnet.magiceden.dev/v3/rtp".
// The chain segment is appended per request. The cross-chain search endpoints
// live above the router prefix, so the host root is derived from baseURL.
func NewClient(baseURL, apiKey string, chain domain.ChainID, pacer Pacer) *Client {
	return &Client{
		baseURL: baseURL,
		rootURL: strings.TrimSuffix(baseURL, "/v3/rtp"),
		apiKey:  apiKey,
		chain:   chain,
		pacer:   pacer,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SearchCollections resolves a human collection name to the contracts listed
// on the client's chain, via the cross-chain unified search endpoint. An
// unknown name yields an empty slice, not an error.
func (c *Client) SearchCollections(ctx context.Context, name string) ([]domain.Collection, error) {
	params := url.Values{}
	params.Set("sortBy", "floorAskPrice")
	params.Set("sortDirection", "asc")
	params.Set("limit", "100")

	path := "/v2/unifiedSearch/xchain/collection/" + url.PathEscape(name) + "?" + params.Encode()
	body, err := c.doRootGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("magiceden: search collections %q: %w", name, err)
	}

	// The response is keyed by chain; only the client's chain is relevant.
	var resp map[string][]apiCollection
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("magiceden: decode collection search: %w", err)
	}

	matches := resp[string(c.chain)]
	cols := make([]domain.Collection, 0, len(matches))
	for _, m := range matches {
		if m.Contract == "" {
			continue
		}
		cols = append(cols, domain.Collection{
			Contract: m.Contract,
			Name:     m.Name,
			ImageURI: m.Image,
		})
	}
	return cols, nil
}

// GetListings returns the cheapest current listings for a collection,
// ascending by floor ask price. A non-zero filter narrows the result to one
// token or to tokens carrying the given trait values.
func (c *Client) GetListings(ctx context.Context, collection string, limit int, filter domain.ListingFilter) ([]domain.Listing, error) {
	if limit <= 0 {
		limit = 20
	}
	params := url.Values{}
	params.Set("collection", collection)
	params.Set("sortBy", "floorAskPrice")
	params.Set("sortDirection", "asc")
	params.Set("limit", strconv.Itoa(limit))

	switch {
	case filter.TokenID != "":
		params.Set("tokenName", filter.TokenID)
		params.Set("includeAttributes", "true")
	case len(filter.Attributes) > 0:
		if err := c.addAttributeParams(ctx, collection, filter.Attributes, params); err != nil {
			return nil, fmt.Errorf("magiceden: get listings %s: %w", collection, err)
		}
		params.Set("includeAttributes", "true")
	}

	body, err := c.doGet(ctx, "/tokens/v6?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("magiceden: get listings %s: %w", collection, err)
	}

	var resp tokensResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("magiceden: decode listings: %w", err)
	}

	listings := make([]domain.Listing, 0, len(resp.Tokens))
	for i := range resp.Tokens {
		listings = append(listings, resp.Tokens[i].ToDomainListing())
	}
	return listings, nil
}

// addAttributeParams resolves free-form trait values against the collection's
// attribute metadata and adds attributes[Key]=Value pairs to params. Values
// that match no known trait are dropped rather than sent verbatim.
func (c *Client) addAttributeParams(ctx context.Context, collection string, values []string, params url.Values) error {
	body, err := c.doGet(ctx, "/collections/"+url.PathEscape(collection)+"/attributes/all/v4")
	if err != nil {
		return fmt.Errorf("collection attributes: %w", err)
	}

	var resp collectionAttributesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode collection attributes: %w", err)
	}

	// Trait values are unique enough in practice to look keys up by value.
	byValue := make(map[string]attributePair)
	for _, attr := range resp.Attributes {
		for _, v := range attr.Values {
			byValue[strings.ToLower(v.Value)] = attributePair{Key: attr.Key, Value: v.Value}
		}
	}

	for _, v := range values {
		if pair, ok := byValue[strings.ToLower(strings.TrimSpace(v))]; ok {
			params.Add(fmt.Sprintf("attributes[%s]", pair.Key), pair.Value)
		}
	}
	return nil
}

// GetToken returns the listing view of a single asset.
func (c *Client) GetToken(ctx context.Context, assetID string) (domain.Listing, error) {
	params := url.Values{}
	params.Set("tokens", assetID)

	body, err := c.doGet(ctx, "/tokens/v6?"+params.Encode())
	if err != nil {
		return domain.Listing{}, fmt.Errorf("magiceden: get token %s: %w", assetID, err)
	}

	var resp tokensResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Listing{}, fmt.Errorf("magiceden: decode token: %w", err)
	}
	if len(resp.Tokens) == 0 {
		return domain.Listing{}, fmt.Errorf("magiceden: token %s: %w", assetID, domain.ErrNotFound)
	}
	return resp.Tokens[0].ToDomainListing(), nil
}

// GetUserTokens returns the asset IDs a user holds in a collection.
func (c *Client) GetUserTokens(ctx context.Context, user, collection string) ([]string, error) {
	params := url.Values{}
	params.Set("collection", collection)
	params.Set("limit", "200")

	path := fmt.Sprintf("/users/%s/tokens/v7?%s", url.PathEscape(user), params.Encode())
	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("magiceden: get user tokens %s: %w", user, err)
	}

	var resp userTokensResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("magiceden: decode user tokens: %w", err)
	}

	ids := make([]string, 0, len(resp.Tokens))
	for _, t := range resp.Tokens {
		ids = append(ids, t.Token.Contract+":"+t.Token.TokenID)
	}
	return ids, nil
}

// GetBids returns the active bids on an asset, highest price first.
func (c *Client) GetBids(ctx context.Context, assetID string) ([]domain.Bid, error) {
	params := url.Values{}
	params.Set("token", assetID)
	params.Set("status", "active")
	params.Set("sortBy", "price")

	body, err := c.doGet(ctx, "/orders/bids/v6?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("magiceden: get bids %s: %w", assetID, err)
	}

	var resp bidsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("magiceden: decode bids: %w", err)
	}

	bids := make([]domain.Bid, 0, len(resp.Orders))
	for i := range resp.Orders {
		bids = append(bids, resp.Orders[i].ToDomainBid(assetID))
	}
	return bids, nil
}

// SellSteps asks the router how to fill a specific bid with the taker's
// asset. The returned steps carry raw plan arrays that must pass validation
// before execution.
func (c *Client) SellSteps(ctx context.Context, orderID, assetID, taker string) ([]domain.SettlementStep, error) {
	reqBody := map[string]any{
		"items": []map[string]any{
			{"token": assetID, "orderId": orderID, "quantity": 1},
		},
		"taker": taker,
	}

	body, err := c.doPost(ctx, "/execute/sell/v7", reqBody)
	if err != nil {
		return nil, fmt.Errorf("magiceden: sell steps order %s: %w", orderID, err)
	}
	return decodeSteps(body)
}

// BuySteps asks the router how to buy the given listings for the taker.
func (c *Client) BuySteps(ctx context.Context, orderIDs []string, taker string) ([]domain.SettlementStep, error) {
	items := make([]map[string]any, 0, len(orderIDs))
	for _, id := range orderIDs {
		items = append(items, map[string]any{"orderId": id, "quantity": 1})
	}
	reqBody := map[string]any{
		"items": items,
		"taker": taker,
	}

	body, err := c.doPost(ctx, "/execute/buy/v7", reqBody)
	if err != nil {
		return nil, fmt.Errorf("magiceden: buy steps: %w", err)
	}
	return decodeSteps(body)
}

// BidSteps asks the router to prepare an offer: currency approval plans if
// the wrapped-native allowance is short, plus the order to sign and submit.
func (c *Client) BidSteps(ctx context.Context, p BidParams) (BidFlow, error) {
	param := map[string]any{
		"token":     p.Token,
		"weiPrice":  p.WeiPrice,
		"orderKind": "seaport-v1.6",
		"orderbook": "reservoir",
	}
	if p.ExpirationTime > 0 {
		param["expirationTime"] = strconv.FormatInt(p.ExpirationTime, 10)
	}
	reqBody := map[string]any{
		"maker":  p.Maker,
		"params": []map[string]any{param},
	}

	body, err := c.doPost(ctx, "/execute/bid/v5", reqBody)
	if err != nil {
		return BidFlow{}, fmt.Errorf("magiceden: bid steps %s: %w", p.Token, err)
	}

	var resp executeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return BidFlow{}, fmt.Errorf("magiceden: decode bid steps: %w", err)
	}

	var flow BidFlow
	for i := range resp.Steps {
		step := &resp.Steps[i]
		switch step.Kind {
		case "transaction":
			ss, err := step.ToSettlementStep()
			if err != nil {
				return BidFlow{}, fmt.Errorf("magiceden: flatten step %s: %w", step.ID, err)
			}
			flow.ApprovalPlans = ss.Plans
		case "signature":
			if len(step.Items) == 0 {
				continue
			}
			var data signStepData
			if err := json.Unmarshal(step.Items[0].Data, &data); err != nil {
				return BidFlow{}, fmt.Errorf("magiceden: decode signature step: %w", err)
			}
			flow.TypedData = data.Sign
			flow.PostEndpoint = data.Post.Endpoint
			flow.PostBody = data.Post.Body
		}
	}
	if len(flow.TypedData) == 0 {
		return BidFlow{}, fmt.Errorf("magiceden: bid steps %s: no signature step: %w", p.Token, domain.ErrUpstream)
	}
	return flow, nil
}

// SubmitOrder posts a signed order to the endpoint named by the bid flow.
func (c *Client) SubmitOrder(ctx context.Context, endpoint string, body json.RawMessage, signature string) error {
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	path := endpoint + sep + "signature=" + url.QueryEscape(signature)

	if _, err := c.doPostRaw(ctx, path, body); err != nil {
		return fmt.Errorf("magiceden: submit order: %w", err)
	}
	return nil
}

func decodeSteps(body []byte) ([]domain.SettlementStep, error) {
	var resp executeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("magiceden: decode steps: %w", err)
	}

	steps := make([]domain.SettlementStep, 0, len(resp.Steps))
	for i := range resp.Steps {
		ss, err := resp.Steps[i].ToSettlementStep()
		if err != nil {
			return nil, fmt.Errorf("magiceden: flatten step %s: %w", resp.Steps[i].ID, err)
		}
		steps = append(steps, ss)
	}
	return steps, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet issues a GET against the chain-scoped router API.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, c.baseURL+"/"+string(c.chain)+path, nil)
}

// doRootGet issues a GET against the API host root, bypassing the router
// prefix and chain segment.
func (c *Client) doRootGet(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, c.rootURL+path, nil)
}

func (c *Client) doPost(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.baseURL+"/"+string(c.chain)+path, data)
}

func (c *Client) doPostRaw(ctx context.Context, path string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, c.baseURL+"/"+string(c.chain)+path, body)
}

func (c *Client) do(ctx context.Context, method, u string, payload []byte) ([]byte, error) {
	if c.pacer != nil {
		if err := c.pacer.Wait(ctx, "magiceden"); err != nil {
			return nil, err
		}
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrUpstream, err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrUpstream, statusCode, bodyStr)
	}
}

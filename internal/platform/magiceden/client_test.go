package magiceden

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/floorbot/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "", domain.ChainApechain, nil)
}

func TestGetListingsMapsFloorAsk(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/apechain/tokens/v6", r.URL.Path)
		assert.Equal(t, "floorAskPrice", r.URL.Query().Get("sortBy"))
		w.Write([]byte(`{"tokens":[
			{"token":{"contract":"0xabc","tokenId":"1","name":"Ape #1"},
			 "market":{"floorAsk":{"id":"order-1","price":{"currency":{"symbol":"APE"},"amount":{"decimal":12.5,"usd":8.4}}}}},
			{"token":{"contract":"0xabc","tokenId":"2","name":"Ape #2"},
			 "market":{"floorAsk":{"id":"","price":null}}}
		]}`))
	})

	listings, err := c.GetListings(context.Background(), "0xabc", 20, domain.ListingFilter{})
	require.NoError(t, err)
	require.Len(t, listings, 2)

	assert.Equal(t, "0xabc:1", listings[0].AssetID)
	assert.Equal(t, 8.4, listings[0].FloorPriceUsd)
	assert.Equal(t, "order-1", listings[0].OrderID)
	assert.True(t, listings[0].HasPrice())

	assert.True(t, math.IsInf(listings[1].FloorPriceUsd, 1), "unpriced token carries +Inf")
	assert.Empty(t, listings[1].OrderID)
}

func TestSearchCollectionsPicksClientChain(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/unifiedSearch/xchain/collection/cool%20apes", r.URL.EscapedPath())
		assert.Equal(t, "floorAskPrice", r.URL.Query().Get("sortBy"))
		w.Write([]byte(`{
			"apechain":[{"contract":"0xabc","name":"Cool Apes","image":"ipfs://x"}],
			"ethereum":[{"contract":"0xeee","name":"Cool Apes ETH"}]
		}`))
	})

	cols, err := c.SearchCollections(context.Background(), "cool apes")
	require.NoError(t, err)
	require.Len(t, cols, 1, "only the client's chain is returned")
	assert.Equal(t, "0xabc", cols[0].Contract)
	assert.Equal(t, "Cool Apes", cols[0].Name)
}

func TestSearchCollectionsUnknownName(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	cols, err := c.SearchCollections(context.Background(), "no such thing")
	require.NoError(t, err)
	assert.Empty(t, cols)
}

func TestGetListingsTokenIDFilter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/apechain/tokens/v6", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("tokenName"))
		w.Write([]byte(`{"tokens":[]}`))
	})

	_, err := c.GetListings(context.Background(), "0xabc", 20, domain.ListingFilter{TokenID: "42"})
	require.NoError(t, err)
}

func TestGetListingsResolvesAttributeFilter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/apechain/collections/0xabc/attributes/all/v4":
			w.Write([]byte(`{"attributes":[
				{"key":"Fur","values":[{"value":"Gold"},{"value":"Brown"}]},
				{"key":"Eyes","values":[{"value":"Laser"}]}
			]}`))
		case "/apechain/tokens/v6":
			// User values resolve to their trait keys; unknown ones drop out.
			assert.Equal(t, "Gold", r.URL.Query().Get("attributes[Fur]"))
			assert.Equal(t, "Laser", r.URL.Query().Get("attributes[Eyes]"))
			assert.Empty(t, r.URL.Query().Get("attributes[]"))
			w.Write([]byte(`{"tokens":[]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	_, err := c.GetListings(context.Background(), "0xabc", 20, domain.ListingFilter{
		Attributes: []string{"gold", "laser", "nonexistent"},
	})
	require.NoError(t, err)
}

func TestGetBidsMapsOrders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/apechain/orders/bids/v6", r.URL.Path)
		assert.Equal(t, "0xabc:7", r.URL.Query().Get("token"))
		w.Write([]byte(`{"orders":[
			{"id":"bid-1","maker":"0xm1","price":{"amount":{"decimal":15,"usd":12.0}}},
			{"id":"bid-2","maker":"0xm2","price":{"amount":{"decimal":10,"usd":9.0}}}
		]}`))
	})

	bids, err := c.GetBids(context.Background(), "0xabc:7")
	require.NoError(t, err)
	require.Len(t, bids, 2)
	assert.Equal(t, "0xm1", bids[0].Maker)
	assert.Equal(t, 12.0, bids[0].PriceUsd)
	assert.Equal(t, "0xabc:7", bids[0].AssetID)
}

func TestSellStepsFlattensItemData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/apechain/execute/sell/v7", r.URL.Path)
		w.Write([]byte(`{"steps":[
			{"id":"nft-approval","kind":"transaction","items":[
				{"data":{"to":"0x1111111111111111111111111111111111111111","data":"0x01"}}]},
			{"id":"sale","kind":"transaction","items":[
				{"data":{"to":"0x2222222222222222222222222222222222222222","data":"0x02","value":"100"}}]}
		]}`))
	})

	steps, err := c.SellSteps(context.Background(), "bid-1", "0xabc:7", "0xtaker")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, domain.StepApproval, steps[0].ID)
	assert.Equal(t, domain.StepSale, steps[1].ID)
	assert.JSONEq(t,
		`[{"to":"0x2222222222222222222222222222222222222222","data":"0x02","value":"100"}]`,
		string(steps[1].Plans))
}

func TestBidStepsRequiresSignatureStep(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"steps":[{"id":"currency-approval","kind":"transaction","items":[]}]}`))
	})

	_, err := c.BidSteps(context.Background(), BidParams{Maker: "0xm", Token: "0xabc:7", WeiPrice: "1000"})
	require.ErrorIs(t, err, domain.ErrUpstream)
}

func TestBidStepsDecodesFlow(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"steps":[
			{"id":"currency-approval","kind":"transaction","items":[
				{"data":{"to":"0x3333333333333333333333333333333333333333","data":"0x0a"}}]},
			{"id":"order-signature","kind":"signature","items":[
				{"data":{"sign":{"primaryType":"OrderComponents"},"post":{"endpoint":"/order/v4","method":"POST","body":{"order":{}}}}}]}
		]}`))
	})

	flow, err := c.BidSteps(context.Background(), BidParams{Maker: "0xm", Token: "0xabc:7", WeiPrice: "1000"})
	require.NoError(t, err)
	assert.NotEmpty(t, flow.ApprovalPlans)
	assert.JSONEq(t, `{"primaryType":"OrderComponents"}`, string(flow.TypedData))
	assert.Equal(t, "/order/v4", flow.PostEndpoint)
}

func TestUpstreamErrorsAreTagged(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := c.GetListings(context.Background(), "0xabc", 5, domain.ListingFilter{})
	require.ErrorIs(t, err, domain.ErrUpstream)
}

func TestRateLimitedStatusIsTagged(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})

	_, err := c.GetBids(context.Background(), "0xabc:7")
	require.ErrorIs(t, err, domain.ErrRateLimited)
}

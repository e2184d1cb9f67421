package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/floorbot/internal/domain"
)

func TestGetUSDPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "apecoin", r.URL.Query().Get("ids"))
		w.Write([]byte(`{"apecoin":{"usd":1.25}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	price, err := c.GetUSDPrice(context.Background(), "apecoin")
	require.NoError(t, err)
	assert.Equal(t, 1.25, price)
}

func TestGetUSDPriceMissingAsset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.GetUSDPrice(context.Background(), "apecoin")
	require.ErrorIs(t, err, domain.ErrUpstream)
}

func TestUsdToWei(t *testing.T) {
	// 10 USD at 1.25 USD/token = 8 tokens = 8e18 wei.
	wei, err := UsdToWei(10, 1.25)
	require.NoError(t, err)
	assert.Equal(t, "8000000000000000000", wei.String())
}

func TestUsdToWeiRejectsNonPositive(t *testing.T) {
	_, err := UsdToWei(0, 1.25)
	assert.Error(t, err)
	_, err = UsdToWei(10, 0)
	assert.Error(t, err)
}

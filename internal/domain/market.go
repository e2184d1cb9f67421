package domain

import (
	"math"
	"sort"
	"time"
)

// Listing is an open sell order for a single asset. FloorPriceUsd is the
// cheapest current ask; assets without a resolvable price carry +Inf so they
// sort last and are never selected for purchase.
type Listing struct {
	AssetID       string // "<contract>:<tokenId>"
	Collection    string // collection contract address
	TokenID       string
	Name          string
	ImageURI      string
	FloorPriceUsd float64
	FloorPrice    float64 // native-unit display price
	Currency      string
	OrderID       string // marketplace order id; empty when not resolvable
	Marketplace   string
}

// HasPrice reports whether the listing carries a resolvable USD price.
func (l Listing) HasPrice() bool {
	return !math.IsInf(l.FloorPriceUsd, 1) && l.FloorPriceUsd >= 0
}

// SortListingsByPrice orders listings ascending by USD floor price in place.
// Unknown prices (+Inf) sort last; equal prices keep their input order.
func SortListingsByPrice(listings []Listing) {
	sort.SliceStable(listings, func(i, j int) bool {
		return listings[i].FloorPriceUsd < listings[j].FloorPriceUsd
	})
}

// Collection is a marketplace collection resolved from a name search.
type Collection struct {
	Contract string
	Name     string
	ImageURI string
}

// ListingFilter narrows a listing search. TokenID wins when both fields are
// set. Attribute values are free-form user input matched case-insensitively
// against the collection's trait metadata.
type ListingFilter struct {
	TokenID    string
	Attributes []string
}

// IsZero reports whether the filter imposes no constraint.
func (f ListingFilter) IsZero() bool {
	return f.TokenID == "" && len(f.Attributes) == 0
}

// Bid is an open buy order for an asset. Only current (unexpired) bids are
// returned by the marketplace client.
type Bid struct {
	ID        string
	Maker     string
	PriceUsd  float64
	AssetID   string // "<contract>:<tokenId>"
	CreatedAt time.Time
}

// Package selector picks listings to purchase under a USD budget. It is a
// deliberately simple greedy pack over a price-sorted stream, not a knapsack
// solver: the cheapest affordable listings win and the scan stops at the
// first listing that breaks the budget or lacks an order id.
package selector

import "github.com/alanyoungcy/floorbot/internal/domain"

// Selection is the order batch produced by one pass.
type Selection struct {
	Listings []domain.Listing
	OrderIDs []string
	TotalUsd float64
}

// Select consumes listings sorted ascending by FloorPriceUsd and accumulates
// them while the running total stays within budgetUsd and each listing has a
// resolvable order id. The scan stops at the first violation; there is no
// look-ahead substitution. For a fixed input the result is deterministic and
// price ties keep input order.
//
// An empty selection means the budget cannot afford even the cheapest
// eligible listing; callers distinguish that from "no listings available" by
// the input length.
func Select(listings []domain.Listing, budgetUsd float64) Selection {
	sel := Selection{}
	for _, l := range listings {
		if sel.TotalUsd+l.FloorPriceUsd > budgetUsd || l.OrderID == "" {
			break
		}
		sel.Listings = append(sel.Listings, l)
		sel.OrderIDs = append(sel.OrderIDs, l.OrderID)
		sel.TotalUsd += l.FloorPriceUsd
	}
	return sel
}

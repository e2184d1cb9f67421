package magiceden

import (
	"encoding/json"
	"math"
	"time"

	"github.com/alanyoungcy/floorbot/internal/domain"
)

// APIToken is one entry of a tokens response, combining asset metadata with
// its current floor ask.
type APIToken struct {
	Token struct {
		Contract   string `json:"contract"`
		TokenID    string `json:"tokenId"`
		Name       string `json:"name"`
		Image      string `json:"image"`
		Collection struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"collection"`
	} `json:"token"`
	Market struct {
		FloorAsk struct {
			ID    string `json:"id"`
			Price *struct {
				Currency struct {
					Symbol string `json:"symbol"`
				} `json:"currency"`
				Amount struct {
					Decimal float64 `json:"decimal"`
					USD     float64 `json:"usd"`
				} `json:"amount"`
			} `json:"price"`
			Source struct {
				Name string `json:"name"`
			} `json:"source"`
		} `json:"floorAsk"`
	} `json:"market"`
}

// ToDomainListing converts an API token to a domain Listing. Tokens without a
// resolvable floor price carry +Inf so they sort last and are never bought.
func (t *APIToken) ToDomainListing() domain.Listing {
	l := domain.Listing{
		AssetID:       t.Token.Contract + ":" + t.Token.TokenID,
		Collection:    t.Token.Contract,
		TokenID:       t.Token.TokenID,
		Name:          t.Token.Name,
		ImageURI:      t.Token.Image,
		FloorPriceUsd: math.Inf(1),
		OrderID:       t.Market.FloorAsk.ID,
		Marketplace:   t.Market.FloorAsk.Source.Name,
	}
	if p := t.Market.FloorAsk.Price; p != nil {
		l.FloorPriceUsd = p.Amount.USD
		l.FloorPrice = p.Amount.Decimal
		l.Currency = p.Currency.Symbol
	}
	return l
}

type tokensResponse struct {
	Tokens       []APIToken `json:"tokens"`
	Continuation string     `json:"continuation"`
}

// apiCollection is one match of a unified collection search, per chain.
type apiCollection struct {
	Contract string `json:"contract"`
	Name     string `json:"name"`
	Image    string `json:"image"`
}

// collectionAttributesResponse is the trait metadata of a collection: every
// attribute key with its known values.
type collectionAttributesResponse struct {
	Attributes []struct {
		Key    string `json:"key"`
		Values []struct {
			Value string `json:"value"`
		} `json:"values"`
	} `json:"attributes"`
}

// attributePair is a resolved trait filter term.
type attributePair struct {
	Key   string
	Value string
}

// APIBid is one entry of an orders/bids response.
type APIBid struct {
	ID    string `json:"id"`
	Maker string `json:"maker"`
	Price struct {
		Amount struct {
			Decimal float64 `json:"decimal"`
			USD     float64 `json:"usd"`
		} `json:"amount"`
	} `json:"price"`
	TokenSetID string    `json:"tokenSetId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ToDomainBid converts an API bid to a domain Bid for the given asset.
func (b *APIBid) ToDomainBid(assetID string) domain.Bid {
	return domain.Bid{
		ID:        b.ID,
		Maker:     b.Maker,
		PriceUsd:  b.Price.Amount.USD,
		AssetID:   assetID,
		CreatedAt: b.CreatedAt,
	}
}

type bidsResponse struct {
	Orders []APIBid `json:"orders"`
}

// userTokensResponse wraps a users/{user}/tokens response.
type userTokensResponse struct {
	Tokens []struct {
		Token struct {
			Contract string `json:"contract"`
			TokenID  string `json:"tokenId"`
		} `json:"token"`
	} `json:"tokens"`
}

// APIStep is one step of an execute response. Each item carries the raw
// payload for that step; transaction steps hold calldata, signature steps
// hold an EIP-712 envelope.
type APIStep struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"` // "transaction" or "signature"
	Items []struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	} `json:"items"`
}

type executeResponse struct {
	Steps []APIStep `json:"steps"`
}

// ToSettlementStep flattens a transaction step's item payloads into the raw
// plan array the validator expects. The payloads stay untrusted bytes until
// txplan.Validate accepts them.
func (s *APIStep) ToSettlementStep() (domain.SettlementStep, error) {
	plans := make([]json.RawMessage, 0, len(s.Items))
	for _, item := range s.Items {
		if len(item.Data) == 0 {
			continue
		}
		plans = append(plans, item.Data)
	}
	raw, err := json.Marshal(plans)
	if err != nil {
		return domain.SettlementStep{}, err
	}
	return domain.SettlementStep{ID: s.ID, Plans: raw}, nil
}

// signStepData is the payload of a signature step item.
type signStepData struct {
	Sign json.RawMessage `json:"sign"` // EIP-712 typed data envelope
	Post struct {
		Endpoint string          `json:"endpoint"`
		Method   string          `json:"method"`
		Body     json.RawMessage `json:"body"`
	} `json:"post"`
}

// BidFlow is the decoded result of an execute/bid call: optional currency
// approval plans, the typed data to sign, and the follow-up order submission.
type BidFlow struct {
	ApprovalPlans []byte          // raw JSON plan array, may be empty
	TypedData     json.RawMessage // EIP-712 envelope to sign
	PostEndpoint  string
	PostBody      json.RawMessage
}

// BidParams describes the offer to place via execute/bid.
type BidParams struct {
	Maker          string
	Token          string // "<contract>:<tokenId>"
	WeiPrice       string // offer amount in wrapped-native wei, decimal string
	ExpirationTime int64  // Unix seconds; zero means marketplace default
}

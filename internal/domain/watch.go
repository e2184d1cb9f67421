package domain

import "time"

// WatchRequest is the persisted unit of pending work: an instruction to
// auto-accept a future bid meeting a price floor. Rows are never deleted;
// settled requests stay behind as an audit trail and pending work is always
// retrieved with IsOfferAccepted = false.
//
// Once IsOfferAccepted flips to true the record is immutable except for
// IsNotified.
type WatchRequest struct {
	ID              string
	Owner           string // wallet address of the requester
	Collection      string
	FloorPriceUsd   float64
	AssetIDs        []string // "<contract>:<tokenId>" set covered by the watch
	NotifyEmail     string   // optional
	IsOfferAccepted bool
	MatchedMaker    string
	MatchedAmount   float64 // USD
	Receipt         ReceiptID
	IsNotified      bool
	CreatedAt       time.Time
}

// Settlement step identifiers used by the marketplace execute endpoints.
const (
	StepApproval = "nft-approval"
	StepSale     = "sale"
)

// SettlementStep is one raw step of a marketplace settlement response. Plans
// is the untrusted transaction plan array for the step; it must pass txplan
// validation before execution.
type SettlementStep struct {
	ID    string
	Plans []byte // raw JSON array of transaction plans
}

// SettlementPlan holds the validated transaction batches a matched bid
// requires. Approval may be empty (no allowance needed); Sale never is once
// a match is reported.
type SettlementPlan struct {
	Approval []TransactionPlan
	Sale     []TransactionPlan
}

// SettlementOutcome is the ephemeral result of one matching attempt. On a
// match its fields are projected into the WatchRequest; on a non-match it is
// surfaced unpersisted so callers can present the best alternatives.
type SettlementOutcome struct {
	Matched    bool
	Maker      string
	AmountUsd  float64
	Receipt    ReceiptID
	RankedBids []Bid
	Plan       *SettlementPlan // set only when Matched
}

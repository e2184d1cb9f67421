package domain

import "encoding/json"

// ChainID identifies one of the supported execution networks. The set is
// closed: routing happens over a map keyed by ChainID and an unknown chain
// is rejected before anything is broadcast.
type ChainID string

const (
	// ChainArbitrum is the general-purpose DeFi chain.
	ChainArbitrum ChainID = "arbitrum"
	// ChainApechain is the collectibles chain where marketplace settlement runs.
	ChainApechain ChainID = "apechain"
)

// ReceiptID is an opaque execution receipt, typically the hash of the last
// transaction broadcast for an action.
type ReceiptID string

// TransactionPlan is a single transaction descriptor returned by an external
// collaborator. It is always re-validated at the boundary (see txplan) before
// it reaches a wallet. Immutable once validated.
//
// Extra holds any fields beyond to/data/value so that newer upstream payloads
// round-trip unchanged.
type TransactionPlan struct {
	To    string
	Data  string
	Value string // optional decimal string in native units (wei)

	Extra map[string]json.RawMessage
}

// knownPlanFields are the fields lifted out of the raw payload; everything
// else lands in Extra.
var knownPlanFields = map[string]bool{"to": true, "data": true, "value": true}

// UnmarshalJSON decodes a plan while preserving unknown fields.
func (p *TransactionPlan) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if raw, ok := fields["to"]; ok {
		if err := json.Unmarshal(raw, &p.To); err != nil {
			return err
		}
	}
	if raw, ok := fields["data"]; ok {
		if err := json.Unmarshal(raw, &p.Data); err != nil {
			return err
		}
	}
	if raw, ok := fields["value"]; ok {
		if err := json.Unmarshal(raw, &p.Value); err != nil {
			return err
		}
	}
	for k, v := range fields {
		if knownPlanFields[k] {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]json.RawMessage)
		}
		p.Extra[k] = v
	}
	return nil
}

// MarshalJSON re-emits the plan including any passthrough fields.
func (p TransactionPlan) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(p.Extra)+3)
	for k, v := range p.Extra {
		fields[k] = v
	}
	to, err := json.Marshal(p.To)
	if err != nil {
		return nil, err
	}
	fields["to"] = to
	d, err := json.Marshal(p.Data)
	if err != nil {
		return nil, err
	}
	fields["data"] = d
	if p.Value != "" {
		v, err := json.Marshal(p.Value)
		if err != nil {
			return nil, err
		}
		fields["value"] = v
	}
	return json.Marshal(fields)
}

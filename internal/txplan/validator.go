// Package txplan validates externally-sourced transaction descriptors before
// they reach a wallet. Plans come back from marketplace APIs as loosely-typed
// JSON; nothing downstream may touch a plan that has not passed Validate.
package txplan

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/floorbot/internal/domain"
)

// ValidationError describes why a plan batch was rejected. The batch fails
// atomically: Index points at the first offending element and no partial
// result is ever returned, because executing a partially valid batch risks
// sending malformed calls on-chain.
type ValidationError struct {
	Index  int    // offending element, -1 when the envelope itself is malformed
	Field  string // offending field, empty for envelope errors
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("txplan: %s", e.Reason)
	}
	return fmt.Sprintf("txplan: plan %d: field %q: %s", e.Index, e.Field, e.Reason)
}

// Validate parses raw JSON into a batch of transaction plans. Each element
// must carry a 0x-hex `to` address and 0x-hex `data`; `value`, when present,
// must be a decimal string. Unknown fields are preserved on the plan.
func Validate(raw json.RawMessage) ([]domain.TransactionPlan, error) {
	if len(raw) == 0 {
		return nil, &ValidationError{Index: -1, Reason: "empty payload"}
	}

	var plans []domain.TransactionPlan
	if err := json.Unmarshal(raw, &plans); err != nil {
		return nil, &ValidationError{Index: -1, Reason: fmt.Sprintf("not a plan array: %v", err)}
	}

	for i, p := range plans {
		if p.To == "" {
			return nil, &ValidationError{Index: i, Field: "to", Reason: "missing"}
		}
		if !isHexAddress(p.To) {
			return nil, &ValidationError{Index: i, Field: "to", Reason: "not a hex address"}
		}
		if p.Data == "" {
			return nil, &ValidationError{Index: i, Field: "data", Reason: "missing"}
		}
		if !isHexBytes(p.Data) {
			return nil, &ValidationError{Index: i, Field: "data", Reason: "not hex call data"}
		}
		if p.Value != "" && !isDecimal(p.Value) {
			return nil, &ValidationError{Index: i, Field: "value", Reason: "not a decimal string"}
		}
	}
	return plans, nil
}

// isHexAddress accepts only 0x-prefixed addresses; common.IsHexAddress alone
// would also pass bare 40-char hex, which the wire format never carries.
func isHexAddress(s string) bool {
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

func isHexBytes(s string) bool {
	_, err := hexutil.Decode(s)
	return err == nil
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

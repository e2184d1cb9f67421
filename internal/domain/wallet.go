package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Wallet is the signing collaborator for one chain. Implementations are
// interchangeable as long as they satisfy this contract (local key, hosted
// signer, smart account).
type Wallet interface {
	// Address returns the wallet's account address as a 0x-hex string.
	Address() string

	// SendPlans broadcasts the given plans strictly in order and returns the
	// hash of the last transaction sent. On failure it returns the zero-based
	// index of the failing plan together with the error; plans before that
	// index are already broadcast and are not rolled back.
	SendPlans(ctx context.Context, plans []TransactionPlan) (txHash string, failedStep int, err error)

	// SignTypedData signs an EIP-712 typed-data payload for off-chain order
	// flows and returns the 65-byte signature hex-encoded.
	SignTypedData(ctx context.Context, data apitypes.TypedData) (string, error)
}

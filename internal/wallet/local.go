// Package wallet implements the signing collaborator over a local secp256k1
// key. Any other implementation of domain.Wallet (hosted signer, smart
// account) can replace it without touching the executor.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/alanyoungcy/floorbot/internal/domain"
)

// LocalWallet signs and broadcasts transactions with an in-process private
// key against a single chain's RPC endpoint.
type LocalWallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	client  *ethclient.Client
	chainID *big.Int
	logger  *slog.Logger
}

// NewLocal dials the RPC endpoint, verifies the chain id, and returns a
// wallet bound to that chain.
func NewLocal(ctx context.Context, privateKeyHex, rpcURL string, logger *slog.Logger) (*LocalWallet, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("wallet: invalid private key: %w", err)
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("wallet: dial %s: %w", rpcURL, err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("wallet: chain id: %w", err)
	}

	addr := ethcrypto.PubkeyToAddress(key.PublicKey)
	logger.Info("local wallet ready",
		slog.String("address", addr.Hex()),
		slog.String("chain_id", chainID.String()),
	)

	return &LocalWallet{
		key:     key,
		address: addr,
		client:  client,
		chainID: chainID,
		logger:  logger.With(slog.String("component", "wallet")),
	}, nil
}

// Close releases the underlying RPC connection.
func (w *LocalWallet) Close() {
	w.client.Close()
}

// Address returns the account address as a 0x-hex string.
func (w *LocalWallet) Address() string {
	return w.address.Hex()
}

// SendPlans broadcasts each plan in order as an EIP-1559 transaction. On
// failure it returns the hash of the last broadcast transaction, the index
// of the failing plan, and the error; earlier plans stay applied.
func (w *LocalWallet) SendPlans(ctx context.Context, plans []domain.TransactionPlan) (string, int, error) {
	lastHash := ""
	for i, plan := range plans {
		hash, err := w.sendOne(ctx, plan)
		if err != nil {
			return lastHash, i, fmt.Errorf("wallet: plan %d: %w", i, err)
		}
		lastHash = hash
	}
	return lastHash, -1, nil
}

func (w *LocalWallet) sendOne(ctx context.Context, plan domain.TransactionPlan) (string, error) {
	to := common.HexToAddress(plan.To)

	data, err := hexutil.Decode(plan.Data)
	if err != nil {
		return "", fmt.Errorf("decode call data: %w", err)
	}

	value := new(big.Int)
	if plan.Value != "" {
		if _, ok := value.SetString(plan.Value, 10); !ok {
			return "", fmt.Errorf("parse value %q", plan.Value)
		}
	}

	nonce, err := w.client.PendingNonceAt(ctx, w.address)
	if err != nil {
		return "", fmt.Errorf("pending nonce: %w", err)
	}

	tipCap, err := w.client.SuggestGasTipCap(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest tip cap: %w", err)
	}
	head, err := w.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("latest header: %w", err)
	}
	// feeCap = 2*baseFee + tip leaves headroom for base fee growth.
	feeCap := new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tipCap)

	gasLimit, err := w.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  w.address,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return "", fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   w.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(w.chainID), w.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}

	if err := w.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}

	w.logger.InfoContext(ctx, "transaction broadcast",
		slog.String("tx_hash", signed.Hash().Hex()),
		slog.String("to", to.Hex()),
	)
	return signed.Hash().Hex(), nil
}

// SignTypedData signs an EIP-712 payload for off-chain order flows.
func (w *LocalWallet) SignTypedData(_ context.Context, data apitypes.TypedData) (string, error) {
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return "", fmt.Errorf("wallet: typed data hash: %w", err)
	}
	sig, err := ethcrypto.Sign(hash, w.key)
	if err != nil {
		return "", fmt.Errorf("wallet: %w: %v", domain.ErrSigningFailed, err)
	}
	// Transform V from 0/1 to the 27/28 convention marketplaces expect.
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

// Compile-time interface check.
var _ domain.Wallet = (*LocalWallet)(nil)

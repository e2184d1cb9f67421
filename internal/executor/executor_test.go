package executor

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/alanyoungcy/floorbot/internal/domain"
)

// fakeWallet broadcasts plans until failAt (zero-based); -1 never fails.
type fakeWallet struct {
	failAt int
	sent   []domain.TransactionPlan
}

func (f *fakeWallet) Address() string { return "0xwallet" }

func (f *fakeWallet) SendPlans(_ context.Context, plans []domain.TransactionPlan) (string, int, error) {
	hash := ""
	for i, p := range plans {
		if f.failAt >= 0 && i == f.failAt {
			return hash, i, errors.New("rejected by chain")
		}
		f.sent = append(f.sent, p)
		hash = "0xhash"
	}
	return hash, -1, nil
}

func (f *fakeWallet) SignTypedData(context.Context, apitypes.TypedData) (string, error) {
	return "0xsig", nil
}

func plan(to string) domain.TransactionPlan {
	return domain.TransactionPlan{To: to, Data: "0x01"}
}

func TestExecuteRunsPlansInOrder(t *testing.T) {
	w := &fakeWallet{failAt: -1}
	ex := New(map[domain.ChainID]domain.Wallet{domain.ChainApechain: w}, slog.Default())

	receipt, err := ex.Execute(context.Background(), "buy", []domain.TransactionPlan{plan("0xa"), plan("0xb")}, domain.ChainApechain)
	require.NoError(t, err)
	assert.Equal(t, domain.ReceiptID("0xhash"), receipt)
	require.Len(t, w.sent, 2)
	assert.Equal(t, "0xa", w.sent[0].To)
	assert.Equal(t, "0xb", w.sent[1].To)
}

func TestExecutePartialFailureIdentifiesStep(t *testing.T) {
	// First plan succeeds, second is rejected: the failure names step 2 and
	// step 1's effect stays applied.
	w := &fakeWallet{failAt: 1}
	ex := New(map[domain.ChainID]domain.Wallet{domain.ChainApechain: w}, slog.Default())

	_, err := ex.Execute(context.Background(), "accept-offer", []domain.TransactionPlan{plan("0xa"), plan("0xb")}, domain.ChainApechain)
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 1, stepErr.Step)
	assert.Equal(t, "accept-offer", stepErr.Action)
	assert.Equal(t, domain.ReceiptID("0xhash"), stepErr.LastReceipt)

	require.Len(t, w.sent, 1, "step 1 was broadcast and not rolled back")
	assert.Equal(t, "0xa", w.sent[0].To)
}

func TestExecuteUnknownChainFailsBeforeBroadcast(t *testing.T) {
	w := &fakeWallet{failAt: -1}
	ex := New(map[domain.ChainID]domain.Wallet{domain.ChainApechain: w}, slog.Default())

	_, err := ex.Execute(context.Background(), "buy", []domain.TransactionPlan{plan("0xa")}, domain.ChainID("solana"))
	require.ErrorIs(t, err, domain.ErrUnsupportedChain)
	assert.Empty(t, w.sent)
}

func TestExecuteEmptyBatchIsError(t *testing.T) {
	ex := New(map[domain.ChainID]domain.Wallet{domain.ChainApechain: &fakeWallet{failAt: -1}}, slog.Default())
	_, err := ex.Execute(context.Background(), "buy", nil, domain.ChainApechain)
	require.Error(t, err)
}

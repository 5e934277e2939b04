package evm

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/smallbiznis/tracechain/internal/ledger/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu           sync.Mutex
	nonce        uint64
	sent         []*types.Transaction
	pendingPolls int
	status       uint64
	sendErr      error
}

func (b *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return b.nonce, nil
}

func (b *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(30_000_000_000), nil
}

func (b *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 90_000, nil
}

func (b *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, tx)
	return nil
}

func (b *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pendingPolls > 0 {
		b.pendingPolls--
		return nil, ethereum.NotFound
	}
	return &types.Receipt{Status: b.status, TxHash: hash, BlockNumber: big.NewInt(77)}, nil
}

var testContract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

func newTestClient(t *testing.T, backend *fakeBackend) *Client {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	client, err := New(backend, key, Options{
		Contract:       testContract,
		ChainID:        big.NewInt(80002),
		ReceiptPoll:    time.Millisecond,
		ReceiptTimeout: time.Second,
	}, nil)
	require.NoError(t, err)
	return client
}

func TestSubmitSignsAddUpdateWithNonce(t *testing.T) {
	backend := &fakeBackend{nonce: 12, pendingPolls: 2, status: types.ReceiptStatusSuccessful}
	client := newTestClient(t, backend)
	ctx := context.Background()

	next, err := client.NextSequence(ctx)
	require.NoError(t, err)

	receipt, err := client.Submit(ctx, domain.Submission{
		SubjectID:  "5b0c2c1e-2f4e-4a44-9d3b-0f4c9f0a8e11",
		StageLabel: "Shipping",
		Location:   "Port of Rotterdam",
		Sequence:   next,
	})
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	assert.EqualValues(t, 12, tx.Nonce())
	assert.Equal(t, testContract, *tx.To())
	assert.EqualValues(t, 90_000, tx.Gas())
	assert.Equal(t, tx.Hash().Hex(), receipt.TxID)
	assert.EqualValues(t, 77, receipt.BlockNumber)

	sender, err := types.Sender(client.signer, tx)
	require.NoError(t, err)
	assert.Equal(t, client.Account(), sender.Hex())

	method := client.abi.Methods[methodAddUpdate]
	assert.Equal(t, method.ID, tx.Data()[:4])
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"5b0c2c1e-2f4e-4a44-9d3b-0f4c9f0a8e11", "Shipping", "Port of Rotterdam"}, args)
}

func TestSubmitReverted(t *testing.T) {
	backend := &fakeBackend{status: types.ReceiptStatusFailed}
	client := newTestClient(t, backend)

	_, err := client.Submit(context.Background(), domain.Submission{SubjectID: "p", StageLabel: "Packing", Location: "x"})
	assert.ErrorIs(t, err, domain.ErrReverted)
}

func TestSubmitSendError(t *testing.T) {
	backend := &fakeBackend{sendErr: errors.New("nonce too low")}
	client := newTestClient(t, backend)

	_, err := client.Submit(context.Background(), domain.Submission{SubjectID: "p", StageLabel: "Packing", Location: "x"})
	assert.ErrorContains(t, err, "nonce too low")
}

func TestSubmitReceiptTimeout(t *testing.T) {
	backend := &fakeBackend{pendingPolls: 1 << 30, status: types.ReceiptStatusSuccessful}
	client := newTestClient(t, backend)
	client.opts.ReceiptTimeout = 20 * time.Millisecond

	_, err := client.Submit(context.Background(), domain.Submission{SubjectID: "p", StageLabel: "Packing", Location: "x"})
	assert.ErrorIs(t, err, domain.ErrReceiptTimeout)
}

func TestNewValidatesOptions(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	_, err = New(&fakeBackend{}, key, Options{Contract: testContract}, nil)
	assert.Error(t, err)
	_, err = New(&fakeBackend{}, key, Options{ChainID: big.NewInt(1)}, nil)
	assert.Error(t, err)
}

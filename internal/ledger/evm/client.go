// Package evm submits supply chain updates to a contract on an EVM chain.
package evm

import (
	"context"
	"crypto/ecdsa"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/smallbiznis/tracechain/internal/config"
	"github.com/smallbiznis/tracechain/internal/ledger/domain"
	"go.uber.org/zap"
)

//go:embed supplychain.abi.json
var contractABI string

const methodAddUpdate = "addUpdate"

// Backend is the subset of the JSON-RPC client the adapter needs.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type Options struct {
	Contract       common.Address
	ChainID        *big.Int
	GasLimit       uint64
	ReceiptPoll    time.Duration
	ReceiptTimeout time.Duration
}

// Client signs legacy transactions with a single key. Signing never leaves
// this package.
type Client struct {
	backend Backend
	key     *ecdsa.PrivateKey
	from    common.Address
	signer  types.Signer
	abi     abi.ABI
	opts    Options
	log     *zap.Logger
}

func New(backend Backend, key *ecdsa.PrivateKey, opts Options, log *zap.Logger) (*Client, error) {
	if backend == nil || key == nil {
		return nil, errors.New("evm ledger: backend and key are required")
	}
	if opts.ChainID == nil || opts.ChainID.Sign() <= 0 {
		return nil, errors.New("evm ledger: chain id is required")
	}
	if opts.Contract == (common.Address{}) {
		return nil, errors.New("evm ledger: contract address is required")
	}
	if opts.ReceiptPoll <= 0 {
		opts.ReceiptPoll = 2 * time.Second
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = 2 * time.Minute
	}
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("evm ledger: parse abi: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		backend: backend,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		signer:  types.LatestSignerForChainID(opts.ChainID),
		abi:     parsed,
		opts:    opts,
		log:     log.Named("ledger.evm"),
	}, nil
}

// Dial connects to cfg.RPCURL. The returned close function releases the RPC
// connection.
func Dial(ctx context.Context, cfg config.LedgerConfig, log *zap.Logger) (*Client, func(), error) {
	if strings.TrimSpace(cfg.RPCURL) == "" {
		return nil, nil, errors.New("evm ledger: LEDGER_RPC_URL is required")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, nil, fmt.Errorf("evm ledger: invalid contract address %q", cfg.ContractAddress)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.SignerKey), "0x"))
	if err != nil {
		return nil, nil, fmt.Errorf("evm ledger: signer key: %w", err)
	}

	rpc, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("evm ledger: dial: %w", err)
	}
	client, err := New(rpc, key, Options{
		Contract:       common.HexToAddress(cfg.ContractAddress),
		ChainID:        big.NewInt(cfg.ChainID),
		GasLimit:       cfg.GasLimit,
		ReceiptPoll:    cfg.ReceiptPoll,
		ReceiptTimeout: cfg.ReceiptTimeout,
	}, log)
	if err != nil {
		rpc.Close()
		return nil, nil, err
	}
	return client, rpc.Close, nil
}

func (c *Client) Account() string {
	return c.from.Hex()
}

// NextSequence reads the pending nonce of the signing account.
func (c *Client) NextSequence(ctx context.Context) (uint64, error) {
	return c.backend.PendingNonceAt(ctx, c.from)
}

// Submit sends addUpdate with the given nonce and waits for it to be mined.
func (c *Client) Submit(ctx context.Context, sub domain.Submission) (domain.Receipt, error) {
	data, err := c.abi.Pack(methodAddUpdate, sub.SubjectID, sub.StageLabel, sub.Location)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("pack %s: %w", methodAddUpdate, err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("suggest gas price: %w", err)
	}
	gas := c.opts.GasLimit
	if gas == 0 {
		gas, err = c.backend.EstimateGas(ctx, ethereum.CallMsg{
			From:     c.from,
			To:       &c.opts.Contract,
			GasPrice: gasPrice,
			Data:     data,
		})
		if err != nil {
			return domain.Receipt{}, fmt.Errorf("estimate gas: %w", err)
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    sub.Sequence,
		To:       &c.opts.Contract,
		Value:    big.NewInt(0),
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, c.signer, c.key)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("sign transaction: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return domain.Receipt{}, fmt.Errorf("send transaction: %w", err)
	}

	hash := signed.Hash()
	c.log.Debug("transaction sent",
		zap.String("tx_hash", hash.Hex()),
		zap.Uint64("nonce", sub.Sequence),
	)

	receipt, err := c.waitMined(ctx, hash)
	if err != nil {
		return domain.Receipt{}, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return domain.Receipt{}, fmt.Errorf("%w: %s", domain.ErrReverted, hash.Hex())
	}

	out := domain.Receipt{TxID: hash.Hex(), Sequence: sub.Sequence}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return out, nil
}

func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.opts.ReceiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("transaction receipt %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s", domain.ErrReceiptTimeout, hash.Hex())
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

var _ domain.Client = (*Client)(nil)

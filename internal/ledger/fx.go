package ledger

import (
	"context"

	"github.com/smallbiznis/tracechain/internal/config"
	"github.com/smallbiznis/tracechain/internal/ledger/domain"
	"github.com/smallbiznis/tracechain/internal/ledger/evm"
	"github.com/smallbiznis/tracechain/internal/ledger/memory"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("ledger.client",
	fx.Provide(NewClient),
)

// MemoryAccount is the account name reported by the in-process ledger.
const MemoryAccount = "memory"

// NewClient builds the ledger client selected by LEDGER_DRIVER.
func NewClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (domain.Client, error) {
	if cfg.Ledger.Driver != config.LedgerDriverEVM {
		if cfg.IsProduction() {
			log.Warn("in-memory ledger selected in production; updates are not anchored")
		}
		return memory.New(MemoryAccount, 0), nil
	}

	client, closeFn, err := evm.Dial(context.Background(), cfg.Ledger, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closeFn()
			return nil
		},
	})
	log.Info("evm ledger connected",
		zap.String("account", client.Account()),
		zap.Int64("chain_id", cfg.Ledger.ChainID),
	)
	return client, nil
}

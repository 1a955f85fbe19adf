package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/defi_custody/repository"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

const receiptLookback = 24 * time.Hour

// ReceiptWatcher periodically looks up receipts for recently recorded
// submission hashes and logs their confirmation status. It is strictly
// read-only over the ledger: records stay immutable, the watcher only
// gives operators visibility into what landed, reverted or is still
// pending.
type ReceiptWatcher struct {
	client   *ethclient.Client
	ledger   *repository.TransactionRepository
	interval time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	settled map[string]struct{}
}

func NewReceiptWatcher(client *ethclient.Client, ledger *repository.TransactionRepository,
	interval time.Duration, log zerolog.Logger) *ReceiptWatcher {
	return &ReceiptWatcher{
		client:   client,
		ledger:   ledger,
		interval: interval,
		log:      log,
		settled:  make(map[string]struct{}),
	}
}

// Run polls until the context is cancelled.
func (w *ReceiptWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.checkOnce(ctx)
		}
	}
}

func (w *ReceiptWatcher) checkOnce(ctx context.Context) {
	since := time.Now().Add(-receiptLookback)
	recs, err := w.ledger.ListCreatedAfter(ctx, since, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("list recent transactions")
		return
	}
	for _, rec := range recs {
		if w.isSettled(rec.TransactionHash) {
			continue
		}
		receipt, err := w.client.TransactionReceipt(ctx, common.HexToHash(rec.TransactionHash))
		if err != nil {
			if errors.Is(err, ethereum.NotFound) {
				w.log.Debug().Str("hash", rec.TransactionHash).Msg("receipt not yet available")
			} else {
				w.log.Warn().Err(err).Str("hash", rec.TransactionHash).Msg("receipt lookup failed")
			}
			continue
		}
		if receipt.Status == types.ReceiptStatusSuccessful {
			w.log.Info().
				Str("hash", rec.TransactionHash).
				Uint64("block", receipt.BlockNumber.Uint64()).
				Str("kind", rec.Type).
				Msg("transaction confirmed")
		} else {
			w.log.Error().
				Str("hash", rec.TransactionHash).
				Uint64("block", receipt.BlockNumber.Uint64()).
				Str("user", rec.UserID).
				Str("amount", rec.Amount).
				Msg("transaction reverted on-chain")
		}
		w.markSettled(rec.TransactionHash)
	}
}

func (w *ReceiptWatcher) isSettled(hash string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.settled[hash]
	return ok
}

func (w *ReceiptWatcher) markSettled(hash string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.settled[hash] = struct{}{}
}

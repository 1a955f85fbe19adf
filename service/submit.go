package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strings"

	"github.com/defi_custody/model"
	"github.com/defi_custody/repository"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// SubmitService turns a deposit/withdraw intent into a signed chain
// transaction plus a ledger entry. Per attempt the flow is
// Built -> Broadcast -> Confirmed(hash) -> Recorded; a rejected build or
// an indeterminate broadcast terminates the attempt with zero local
// writes, and a retry always starts from a fresh build.
type SubmitService struct {
	wallets *repository.WalletRepository
	ledger  *repository.TransactionRepository
	pool    ChainPool
	caster  TxBroadcaster
	log     zerolog.Logger
}

func NewSubmitService(wallets *repository.WalletRepository, ledger *repository.TransactionRepository,
	pool ChainPool, caster TxBroadcaster, log zerolog.Logger) *SubmitService {
	return &SubmitService{
		wallets: wallets,
		ledger:  ledger,
		pool:    pool,
		caster:  caster,
		log:     log,
	}
}

// Submit builds, broadcasts and records one transaction. The returned
// hash is only handed out after the ledger row exists. Broadcast and
// recording run on a context detached from the caller: a client that
// disconnects mid-wait gets ErrIndeterminate while the server-side wait
// runs to completion and still performs the bookkeeping.
func (s *SubmitService) Submit(ctx context.Context, userID, kind, address, amount string) (string, error) {
	address = strings.ToLower(address)
	w, err := s.wallets.FindByUserAndAddress(ctx, userID, address)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: wallet %s for this user", ErrNotFound, address)
		}
		return "", err
	}

	amt, ok := new(big.Int).SetString(amount, 10)
	if !ok || amt.Sign() <= 0 {
		return "", fmt.Errorf("%w: malformed amount %q", ErrUpstreamChain, amount)
	}

	user := common.HexToAddress(w.Address)
	var d *TxDescriptor
	switch kind {
	case model.TxKindDeposit:
		d, err = s.pool.BuildSupply(ctx, user, amt)
	case model.TxKindWithdraw:
		d, err = s.pool.BuildWithdraw(ctx, user, amt)
	default:
		return "", fmt.Errorf("unsupported transaction kind %q", kind)
	}
	if err != nil {
		// Build failure: abort before any local write.
		return "", fmt.Errorf("%w: build %s: %v", ErrUpstreamChain, kind, err)
	}

	type outcome struct {
		hash common.Hash
		err  error
	}
	done := make(chan outcome, 1)
	detached := context.WithoutCancel(ctx)

	go func() {
		hash, err := s.caster.SignAndBroadcast(detached, d)
		if err != nil {
			done <- outcome{err: s.classifyBroadcastErr(err)}
			return
		}
		rec := &model.Transaction{
			UserID:          userID,
			Type:            kind,
			Address:         w.Address,
			Amount:          amount,
			TransactionHash: hash.Hex(),
		}
		if err := s.ledger.Create(detached, rec); err != nil {
			// The chain transaction exists but the audit entry does
			// not. Surface loudly for manual reconciliation; never
			// report success.
			s.log.Error().
				Str("hash", hash.Hex()).
				Str("user", userID).
				Str("address", w.Address).
				Str("amount", amount).
				Str("kind", kind).
				Err(err).
				Msg("broadcast succeeded but ledger write failed, manual reconciliation required")
			done <- outcome{hash: hash, err: fmt.Errorf("%w: %s: %v", ErrPostSubmitPersist, hash.Hex(), err)}
			return
		}
		s.log.Info().
			Str("hash", hash.Hex()).
			Str("user", userID).
			Str("kind", kind).
			Str("amount", amount).
			Msg("transaction recorded")
		done <- outcome{hash: hash}
	}()

	select {
	case <-ctx.Done():
		// The broadcast goroutine keeps running; only the caller loses
		// visibility of the outcome. Never retried blindly here: the
		// transaction may still land on-chain.
		return "", fmt.Errorf("%w: caller abandoned while awaiting broadcast", ErrIndeterminate)
	case o := <-done:
		if o.err != nil {
			return "", o.err
		}
		return o.hash.Hex(), nil
	}
}

// classifyBroadcastErr separates failures whose outcome is unknown
// (transport-level, the transaction may have been accepted) from
// definite rejections.
func (s *SubmitService) classifyBroadcastErr(err error) error {
	var netErr net.Error
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrIndeterminate, err)
	}
	return fmt.Errorf("%w: broadcast rejected: %v", ErrUpstreamChain, err)
}

// ListTransactions returns the caller's ledger, newest first.
func (s *SubmitService) ListTransactions(ctx context.Context, userID string, page, size int) ([]model.Transaction, int64, error) {
	return s.ledger.ListByUser(ctx, userID, page, size)
}

// GetTransaction returns one ledger entry owned by the caller.
func (s *SubmitService) GetTransaction(ctx context.Context, userID, id string) (*model.Transaction, error) {
	t, err := s.ledger.FindByUserAndID(ctx, userID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: transaction %s for this user", ErrNotFound, id)
		}
		return nil, err
	}
	return t, nil
}

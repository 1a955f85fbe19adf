package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/defi_custody/model"
	"github.com/defi_custody/repository"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// WalletService owns wallet records and the ownership-proof protocol:
// challenge issuance and signature verification.
type WalletService struct {
	wallets *repository.WalletRepository
	log     zerolog.Logger
}

func NewWalletService(wallets *repository.WalletRepository, log zerolog.Logger) *WalletService {
	return &WalletService{wallets: wallets, log: log}
}

// Create registers a new wallet for the user. The address must be
// globally unique; the record starts unverified with a challenge already
// populated.
func (s *WalletService) Create(ctx context.Context, userID, address, alias string) (*model.Wallet, error) {
	address = strings.ToLower(address)
	nonce, err := GenerateChallenge()
	if err != nil {
		return nil, err
	}
	w := &model.Wallet{
		UserID:  userID,
		Address: address,
		Alias:   alias,
		Nonce:   nonce,
	}
	if err := s.wallets.Create(ctx, w); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: wallet %s", ErrAlreadyExists, address)
		}
		return nil, err
	}
	return w, nil
}

func (s *WalletService) Get(ctx context.Context, userID, address string) (*model.Wallet, error) {
	address = strings.ToLower(address)
	w, err := s.wallets.FindByUserAndAddress(ctx, userID, address)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: wallet %s for this user", ErrNotFound, address)
		}
		return nil, err
	}
	return w, nil
}

func (s *WalletService) List(ctx context.Context, userID string, page, size int) ([]model.Wallet, int64, error) {
	return s.wallets.ListByUser(ctx, userID, page, size)
}

// UpdateAlias changes the display label; nothing else on a wallet is
// caller-mutable.
func (s *WalletService) UpdateAlias(ctx context.Context, userID, address, alias string) (*model.Wallet, error) {
	w, err := s.Get(ctx, userID, address)
	if err != nil {
		return nil, err
	}
	if err := s.wallets.UpdateAlias(ctx, w.ID, alias); err != nil {
		return nil, err
	}
	w.Alias = alias
	return w, nil
}

// Delete removes a wallet. An account must retain at least one wallet.
func (s *WalletService) Delete(ctx context.Context, userID, address string) error {
	count, err := s.wallets.CountByUser(ctx, userID)
	if err != nil {
		return err
	}
	if count <= 1 {
		return ErrLastWallet
	}
	w, err := s.Get(ctx, userID, address)
	if err != nil {
		return err
	}
	return s.wallets.Delete(ctx, w.ID)
}

// GenerateNonce issues a fresh challenge for the wallet identified by
// (userID, address) and returns it for the client to sign. Issuing
// invalidates any previously issued, unconsumed challenge.
func (s *WalletService) GenerateNonce(ctx context.Context, userID, address string) (string, string, error) {
	address = strings.ToLower(address)
	w, err := s.wallets.FindByUserAndAddress(ctx, userID, address)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", fmt.Errorf("%w: wallet %s for this user", ErrNotFound, address)
		}
		return "", "", err
	}
	nonce, err := GenerateChallenge()
	if err != nil {
		return "", "", err
	}
	if err := s.wallets.SetNonce(ctx, w.ID, nonce); err != nil {
		return "", "", err
	}
	return address, nonce, nil
}

// Verify proves ownership of the wallet address. The wallet is looked up
// by address alone: verification establishes ownership, it does not
// presuppose it. The supplied nonce must exactly match the stored one,
// and the signature must recover to the wallet's address over the stored
// nonce. On success the nonce is rotated and the verified flag set in
// one conditional update, so a given challenge can be consumed at most
// once. A failed attempt does not burn the active challenge.
func (s *WalletService) Verify(ctx context.Context, address, nonce, signature string) (*model.Wallet, error) {
	address = strings.ToLower(address)
	w, err := s.wallets.FindByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: wallet %s", ErrNotFound, address)
		}
		return nil, err
	}

	if w.Nonce == "" || w.Nonce != nonce {
		return nil, fmt.Errorf("%w: invalid nonce", ErrUnauthorized)
	}

	recovered, err := RecoverAddress(w.Nonce, signature)
	if err != nil {
		return nil, err
	}
	if strings.ToLower(recovered.Hex()) != w.Address {
		return nil, fmt.Errorf("%w: invalid signature", ErrUnauthorized)
	}

	next, err := GenerateChallenge()
	if err != nil {
		return nil, err
	}
	ok, err := s.wallets.ConsumeNonce(ctx, w.ID, w.Nonce, next)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The challenge was rotated underneath us between read and
		// update; this signature no longer proves anything current.
		return nil, fmt.Errorf("%w: nonce already consumed", ErrUnauthorized)
	}

	s.log.Info().Str("address", w.Address).Str("user", w.UserID).Msg("wallet verified")

	w.Nonce = next
	w.Verified = true
	return w, nil
}

package repository

import (
	"context"
	"errors"

	"github.com/defi_custody/model"
	"gorm.io/gorm"
)

// ErrDuplicate reports a unique-constraint violation on create.
var ErrDuplicate = errors.New("duplicate record")

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) Create(ctx context.Context, w *model.Wallet) error {
	if err := r.db.WithContext(ctx).Create(w).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *WalletRepository) FindByAddress(ctx context.Context, address string) (*model.Wallet, error) {
	var w model.Wallet
	if err := r.db.WithContext(ctx).Where("address = ?", address).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WalletRepository) FindByUserAndAddress(ctx context.Context, userID, address string) (*model.Wallet, error) {
	var w model.Wallet
	if err := r.db.WithContext(ctx).Where("user_id = ? AND address = ?", userID, address).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WalletRepository) ListByUser(ctx context.Context, userID string, page, size int) ([]model.Wallet, int64, error) {
	var list []model.Wallet
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Wallet{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * size
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at asc").Offset(offset).Limit(size).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *WalletRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.Wallet{}).Where("user_id = ?", userID).Count(&total).Error
	return total, err
}

// SetNonce overwrites the wallet's challenge. Plain last-write-wins:
// re-issuance is meant to invalidate any prior unconsumed challenge.
func (r *WalletRepository) SetNonce(ctx context.Context, id, nonce string) error {
	return r.db.WithContext(ctx).Model(&model.Wallet{}).
		Where("id = ?", id).
		Update("nonce", nonce).Error
}

// ConsumeNonce rotates the challenge and flips the verified flag in a
// single conditional update keyed on the previously read nonce. It
// returns false when the stored nonce no longer matches prev, which
// means a concurrent issuance or verification won the race.
func (r *WalletRepository) ConsumeNonce(ctx context.Context, id, prev, next string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Wallet{}).
		Where("id = ? AND nonce = ?", id, prev).
		Updates(map[string]interface{}{"nonce": next, "verified": true})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *WalletRepository) UpdateAlias(ctx context.Context, id, alias string) error {
	return r.db.WithContext(ctx).Model(&model.Wallet{}).
		Where("id = ?", id).
		Update("alias", alias).Error
}

func (r *WalletRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Wallet{}).Error
}

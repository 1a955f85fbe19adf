package repository

import (
	"context"
	"time"

	"github.com/defi_custody/model"
	"gorm.io/gorm"
)

// TransactionRepository is create-only by design: ledger rows are an
// append-only audit log and expose no update or delete path.
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, t *model.Transaction) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *TransactionRepository) FindByUserAndID(ctx context.Context, userID, id string) (*model.Transaction, error) {
	var t model.Transaction
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepository) ListByUser(ctx context.Context, userID string, page, size int) ([]model.Transaction, int64, error) {
	var list []model.Transaction
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Transaction{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * size
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at desc").Offset(offset).Limit(size).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *TransactionRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.Transaction{}).Where("user_id = ?", userID).Count(&total).Error
	return total, err
}

// ListCreatedAfter returns ledger rows recorded since the given time,
// oldest first. Used by the receipt watcher.
func (r *TransactionRepository) ListCreatedAfter(ctx context.Context, since time.Time, limit int) ([]model.Transaction, error) {
	var list []model.Transaction
	if err := r.db.WithContext(ctx).Where("created_at > ?", since).
		Order("created_at asc").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

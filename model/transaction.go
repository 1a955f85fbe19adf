package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TxKindDeposit  = "deposit"
	TxKindWithdraw = "withdraw"
)

// Transaction is an append-only audit entry for a broadcast chain
// transaction. A row exists only once a submission hash was returned by
// the network; rows are never updated or deleted. Amount is a decimal
// string in the reserve's base unit.
type Transaction struct {
	ID              string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          string    `gorm:"type:uuid;index:idx_tx_user;not null" json:"userId"`
	Type            string    `gorm:"size:16;not null" json:"type"`
	Address         string    `gorm:"size:64;not null" json:"address"`
	Amount          string    `gorm:"type:text;not null" json:"amount"`
	TransactionHash string    `gorm:"size:128;uniqueIndex;not null" json:"transactionHash"`
	CreatedAt       time.Time `json:"createdAt"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Wallet links an externally controlled chain address to a user account.
// Address is stored canonically lowercased and is globally unique. Nonce
// holds the current single-use signing challenge; it is overwritten on
// every issuance and on every successful verification, never reused.
type Wallet struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string    `gorm:"type:uuid;index:idx_wallet_user;not null" json:"userId"`
	Address   string    `gorm:"size:64;uniqueIndex;not null" json:"address"`
	Alias     string    `gorm:"size:64" json:"alias"`
	Nonce     string    `gorm:"size:64" json:"-"`
	Verified  bool      `gorm:"not null;default:false" json:"verified"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type User struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey;" json:"id"`
	Name         string          `gorm:"unique;not null" json:"name"`
	PasswordHash string          `gorm:"not null" json:"-"`
	CashBalance  decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"cashBalance"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Company is created lazily on the first trade of an unseen symbol and is
// immutable afterwards: transactions reference it forever.
type Company struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Symbol string `gorm:"size:16;not null;uniqueIndex" json:"symbol"`
	Name   string `gorm:"not null" json:"name"`
}

// Transaction is one append-only ledger entry. Shares is signed: positive
// for a buy, negative for a sell. Price is the quote observed at commit
// time and is never re-queried. Rows are never updated or deleted; current
// holdings are always SUM(shares) grouped by (user, company).
type Transaction struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	UserID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"userId"`
	CompanyID uint            `gorm:"not null;index" json:"companyId"`
	Company   Company         `gorm:"foreignKey:CompanyID" json:"-"`
	Shares    int64           `gorm:"not null" json:"shares"`
	Price     decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"price"`
	CreatedAt time.Time       `json:"createdAt"`
}

package repository

import (
	"github.com/fintrack/stockledger/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HoldingRow is one open position derived from the transaction log.
type HoldingRow struct {
	CompanyID uint
	Symbol    string
	Name      string
	Shares    int64
}

type TransactionsRepository interface {
	Insert(txn *models.Transaction) error
	// SumShares returns the net share count for (user, company) and whether
	// the user has ever traded that company at all.
	SumShares(userID uuid.UUID, companyID uint) (int64, bool, error)
	// HoldingsByUser derives open positions by summing signed share counts
	// per company, excluding fully liquidated (zero-net) positions.
	HoldingsByUser(userID uuid.UUID) ([]HoldingRow, error)
	// HistoryByUser returns every ledger entry for the user in insertion order.
	HistoryByUser(userID uuid.UUID) ([]models.Transaction, error)
}

type transactionsRepository struct {
	db *gorm.DB
}

func NewTransactionsRepository(db *gorm.DB) TransactionsRepository {
	return &transactionsRepository{db: db}
}

func (r *transactionsRepository) Insert(txn *models.Transaction) error {
	return r.db.Create(txn).Error
}

func (r *transactionsRepository) SumShares(userID uuid.UUID, companyID uint) (int64, bool, error) {
	var row struct {
		Total int64
		Cnt   int64
	}

	err := r.db.Model(&models.Transaction{}).
		Select("COALESCE(SUM(shares), 0) AS total, COUNT(id) AS cnt").
		Where("user_id = ? AND company_id = ?", userID, companyID).
		Scan(&row).Error
	if err != nil {
		return 0, false, err
	}

	return row.Total, row.Cnt > 0, nil
}

func (r *transactionsRepository) HoldingsByUser(userID uuid.UUID) ([]HoldingRow, error) {
	var rows []HoldingRow

	err := r.db.Model(&models.Transaction{}).
		Select("transactions.company_id AS company_id, companies.symbol AS symbol, companies.name AS name, SUM(transactions.shares) AS shares").
		Joins("JOIN companies ON companies.id = transactions.company_id").
		Where("transactions.user_id = ?", userID).
		Group("transactions.company_id, companies.symbol, companies.name").
		Having("SUM(transactions.shares) <> 0").
		Order("companies.symbol").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	return rows, nil
}

func (r *transactionsRepository) HistoryByUser(userID uuid.UUID) ([]models.Transaction, error) {
	var txns []models.Transaction

	err := r.db.Preload("Company").
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}

	return txns, nil
}

package repository

import (
	"errors"

	"github.com/fintrack/stockledger/internal/models"
	"github.com/fintrack/stockledger/lib/errs"
	"gorm.io/gorm"
)

type CompaniesRepository interface {
	GetBySymbol(symbol string) (*models.Company, error)
	// GetOrCreate resolves the company row for a symbol, inserting it on
	// first sight. Idempotent: a concurrent insert of the same symbol is
	// absorbed by re-reading the winner's row.
	GetOrCreate(symbol, name string) (*models.Company, error)
}

type companiesRepository struct {
	db *gorm.DB
}

func NewCompaniesRepository(db *gorm.DB) CompaniesRepository {
	return &companiesRepository{db: db}
}

func (r *companiesRepository) GetBySymbol(symbol string) (*models.Company, error) {
	var company models.Company
	if err := r.db.First(&company, "symbol = ?", symbol).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}

		return nil, err
	}
	return &company, nil
}

func (r *companiesRepository) GetOrCreate(symbol, name string) (*models.Company, error) {
	company, err := r.GetBySymbol(symbol)
	if err == nil {
		return company, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	created := &models.Company{Symbol: symbol, Name: name}
	if err := r.db.Create(created).Error; err != nil {
		if isDuplicateKey(err) {
			// Lost the race to another trade of the same unseen symbol.
			company, err := r.GetBySymbol(symbol)
			if err != nil {
				return nil, errs.ErrConflict
			}
			return company, nil
		}

		return nil, err
	}

	return created, nil
}

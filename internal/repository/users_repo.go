package repository

import (
	"errors"
	"strings"

	"github.com/fintrack/stockledger/internal/models"
	"github.com/fintrack/stockledger/lib/errs"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UsersRepository interface {
	CreateUser(user *models.User) error
	GetUserByID(userID uuid.UUID) (*models.User, error)
	GetUserByName(name string) (*models.User, error)
	// GetUserByIDForUpdate reads the user row under a row-level write lock
	// when the dialect supports one. Only meaningful inside a transaction.
	GetUserByIDForUpdate(userID uuid.UUID) (*models.User, error)
	// AdjustCash applies a relative cash update (cash_balance = cash_balance + delta).
	AdjustCash(userID uuid.UUID, delta decimal.Decimal) error
	UpdatePasswordHash(userID uuid.UUID, hash string) error
}

type usersRepository struct {
	db *gorm.DB
}

func NewUsersRepository(db *gorm.DB) UsersRepository {
	return &usersRepository{db: db}
}

func (r *usersRepository) CreateUser(user *models.User) error {
	if err := r.db.Create(user).Error; err != nil {
		if isDuplicateKey(err) {
			return errs.ErrAlreadyExists
		}

		return err
	}

	return nil
}

func (r *usersRepository) GetUserByID(userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}

		return nil, err
	}
	return &user, nil
}

func (r *usersRepository) GetUserByName(name string) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}

		return nil, err
	}
	return &user, nil
}

func (r *usersRepository) GetUserByIDForUpdate(userID uuid.UUID) (*models.User, error) {
	q := r.db
	// sqlite has no SELECT ... FOR UPDATE; its single-writer lock covers us there.
	if r.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var user models.User
	if err := q.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}

		return nil, err
	}
	return &user, nil
}

func (r *usersRepository) AdjustCash(userID uuid.UUID, delta decimal.Decimal) error {
	result := r.db.Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("cash_balance", gorm.Expr("cash_balance + ?", delta))

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return errs.ErrNotFound
	}

	return nil
}

func (r *usersRepository) UpdatePasswordHash(userID uuid.UUID, hash string) error {
	result := r.db.Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("password_hash", hash)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return errs.ErrNotFound
	}

	return nil
}

func isDuplicateKey(err error) bool {
	errorString := err.Error()
	return strings.Contains(errorString, "UNIQUE constraint failed") ||
		strings.Contains(errorString, "duplicate key value violates unique constraint")
}

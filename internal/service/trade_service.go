package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fintrack/stockledger/internal/models"
	"github.com/fintrack/stockledger/internal/quote"
	"github.com/fintrack/stockledger/internal/repository"
	"github.com/fintrack/stockledger/lib/errs"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TradeService interface {
	// Buy executes a market buy at the current quote and returns the new
	// ledger entry ID. The quote is fetched once, before any lock, and that
	// price is the one committed.
	Buy(ctx context.Context, userID uuid.UUID, symbol string, shares int64) (uint, error)
	// Sell executes a market sell of shares the user currently holds.
	Sell(ctx context.Context, userID uuid.UUID, symbol string, shares int64) (uint, error)
}

type tradeService struct {
	db     *gorm.DB
	quotes quote.Gateway
	locks  *userLocks
	log    *slog.Logger
}

func NewTradeService(db *gorm.DB, quotes quote.Gateway, log *slog.Logger) TradeService {
	return &tradeService{
		db:     db,
		quotes: quotes,
		locks:  newUserLocks(),
		log:    log,
	}
}

func (s *tradeService) Buy(ctx context.Context, userID uuid.UUID, symbol string, shares int64) (uint, error) {
	symbol = quote.NormalizeSymbol(symbol)
	if symbol == "" || shares <= 0 {
		return 0, errs.ErrInvalidInput
	}

	q, err := s.quotes.Lookup(ctx, symbol)
	if err != nil {
		return 0, err
	}
	cost := q.Price.Mul(decimal.NewFromInt(shares))

	s.locks.Lock(userID)
	defer s.locks.Unlock(userID)

	var txnID uint
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txUsers := repository.NewUsersRepository(tx)
		txCompanies := repository.NewCompaniesRepository(tx)
		txTxns := repository.NewTransactionsRepository(tx)

		user, err := txUsers.GetUserByIDForUpdate(userID)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errs.ErrUserNotFound
			}
			return err
		}

		// Buying at cost == cash exactly is allowed.
		if cost.GreaterThan(user.CashBalance) {
			return errs.ErrInsufficientFunds
		}

		company, err := txCompanies.GetOrCreate(q.Symbol, q.Name)
		if err != nil {
			return err
		}

		txn := &models.Transaction{
			UserID:    userID,
			CompanyID: company.ID,
			Shares:    shares,
			Price:     q.Price,
			CreatedAt: time.Now().UTC(),
		}
		if err := txTxns.Insert(txn); err != nil {
			return err
		}

		if err := txUsers.AdjustCash(userID, cost.Neg()); err != nil {
			return err
		}

		txnID = txn.ID
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("buy committed",
		slog.String("userID", userID.String()),
		slog.String("symbol", q.Symbol),
		slog.Int64("shares", shares),
		slog.String("price", q.Price.String()),
	)

	return txnID, nil
}

func (s *tradeService) Sell(ctx context.Context, userID uuid.UUID, symbol string, shares int64) (uint, error) {
	symbol = quote.NormalizeSymbol(symbol)
	if symbol == "" || shares <= 0 {
		return 0, errs.ErrInvalidInput
	}

	q, err := s.quotes.Lookup(ctx, symbol)
	if err != nil {
		return 0, err
	}
	proceeds := q.Price.Mul(decimal.NewFromInt(shares))

	s.locks.Lock(userID)
	defer s.locks.Unlock(userID)

	var txnID uint
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txUsers := repository.NewUsersRepository(tx)
		txCompanies := repository.NewCompaniesRepository(tx)
		txTxns := repository.NewTransactionsRepository(tx)

		// Lock the user row first: both cash and the holding sum are
		// per-user state, so the row lock serializes the whole check.
		if _, err := txUsers.GetUserByIDForUpdate(userID); err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errs.ErrUserNotFound
			}
			return err
		}

		company, err := txCompanies.GetBySymbol(symbol)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				return errs.ErrNoPosition
			}
			return err
		}

		holding, traded, err := txTxns.SumShares(userID, company.ID)
		if err != nil {
			return err
		}
		if !traded {
			return errs.ErrNoPosition
		}
		if shares > holding {
			return errs.ErrInsufficientShares
		}

		txn := &models.Transaction{
			UserID:    userID,
			CompanyID: company.ID,
			Shares:    -shares,
			Price:     q.Price,
			CreatedAt: time.Now().UTC(),
		}
		if err := txTxns.Insert(txn); err != nil {
			return err
		}

		if err := txUsers.AdjustCash(userID, proceeds); err != nil {
			return err
		}

		txnID = txn.ID
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("sell committed",
		slog.String("userID", userID.String()),
		slog.String("symbol", symbol),
		slog.Int64("shares", shares),
		slog.String("price", q.Price.String()),
	)

	return txnID, nil
}

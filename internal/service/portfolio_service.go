package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fintrack/stockledger/internal/models"
	"github.com/fintrack/stockledger/internal/quote"
	"github.com/fintrack/stockledger/internal/repository"
	"github.com/fintrack/stockledger/lib/errs"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PortfolioService is the read side of the ledger. Everything it returns is
// recomputed from the transaction log and live quotes; nothing is mutated.
type PortfolioService interface {
	// Portfolio values all open positions at live quotes. A failing quote
	// degrades that row only: the view is marked Partial and the row
	// Degraded with a zero price, unrelated symbols are unaffected.
	Portfolio(ctx context.Context, userID uuid.UUID) (*models.PortfolioView, error)
	// History lists every ledger entry in insertion order, signed share
	// counts preserved, totals as |shares| * price.
	History(ctx context.Context, userID uuid.UUID) ([]models.HistoryEntry, error)
	// Snapshot returns the cash balance and open positions without quoting
	// them, for callers that value positions against their own price feed.
	Snapshot(ctx context.Context, userID uuid.UUID) (decimal.Decimal, []repository.HoldingRow, error)
}

type portfolioService struct {
	usersRepo repository.UsersRepository
	txnsRepo  repository.TransactionsRepository
	quotes    quote.Gateway
	log       *slog.Logger
}

func NewPortfolioService(
	usersRepo repository.UsersRepository,
	txnsRepo repository.TransactionsRepository,
	quotes quote.Gateway,
	log *slog.Logger,
) PortfolioService {
	return &portfolioService{
		usersRepo: usersRepo,
		txnsRepo:  txnsRepo,
		quotes:    quotes,
		log:       log,
	}
}

func (s *portfolioService) Portfolio(ctx context.Context, userID uuid.UUID) (*models.PortfolioView, error) {
	user, err := s.usersRepo.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrUserNotFound
		}
		return nil, err
	}

	rows, err := s.txnsRepo.HoldingsByUser(userID)
	if err != nil {
		return nil, err
	}

	view := &models.PortfolioView{
		UserID:   user.ID.String(),
		Cash:     user.CashBalance,
		Holdings: make([]models.HoldingView, 0, len(rows)),
		NetWorth: user.CashBalance,
	}

	for _, row := range rows {
		holding := models.HoldingView{
			Symbol: row.Symbol,
			Name:   row.Name,
			Shares: row.Shares,
		}

		q, err := s.quotes.Lookup(ctx, row.Symbol)
		if err != nil {
			s.log.Warn("portfolio: quote lookup failed, degrading row",
				slog.String("symbol", row.Symbol), slog.Any("error", err))
			holding.Price = decimal.Zero
			holding.Total = decimal.Zero
			holding.Degraded = true
			view.Partial = true
		} else {
			holding.Price = q.Price
			holding.Total = q.Price.Mul(decimal.NewFromInt(row.Shares))
			view.NetWorth = view.NetWorth.Add(holding.Total)
		}

		view.Holdings = append(view.Holdings, holding)
	}

	return view, nil
}

func (s *portfolioService) History(_ context.Context, userID uuid.UUID) ([]models.HistoryEntry, error) {
	if _, err := s.usersRepo.GetUserByID(userID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrUserNotFound
		}
		return nil, err
	}

	txns, err := s.txnsRepo.HistoryByUser(userID)
	if err != nil {
		return nil, err
	}

	entries := make([]models.HistoryEntry, 0, len(txns))
	for _, txn := range txns {
		absShares := txn.Shares
		if absShares < 0 {
			absShares = -absShares
		}

		entries = append(entries, models.HistoryEntry{
			Symbol:    txn.Company.Symbol,
			Shares:    txn.Shares,
			Price:     txn.Price,
			Total:     txn.Price.Mul(decimal.NewFromInt(absShares)),
			CreatedAt: txn.CreatedAt,
		})
	}

	return entries, nil
}

func (s *portfolioService) Snapshot(_ context.Context, userID uuid.UUID) (decimal.Decimal, []repository.HoldingRow, error) {
	user, err := s.usersRepo.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return decimal.Zero, nil, errs.ErrUserNotFound
		}
		return decimal.Zero, nil, err
	}

	rows, err := s.txnsRepo.HoldingsByUser(userID)
	if err != nil {
		return decimal.Zero, nil, err
	}

	return user.CashBalance, rows, nil
}

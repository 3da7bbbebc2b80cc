package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/fintrack/stockledger/internal/models"
	"github.com/fintrack/stockledger/internal/quote"
	"github.com/fintrack/stockledger/internal/repository"
	"github.com/fintrack/stockledger/internal/service"
	"github.com/fintrack/stockledger/lib/errs"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}

	if err := db.AutoMigrate(&models.User{}, &models.Company{}, &models.Transaction{}); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGateway serves canned quotes so trade tests control the price feed.
type fakeGateway struct {
	mu       sync.Mutex
	quotes   map[string]quote.Quote
	failures map[string]error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		quotes:   make(map[string]quote.Quote),
		failures: make(map[string]error),
	}
}

func (f *fakeGateway) set(symbol, name, price string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[symbol] = quote.Quote{Symbol: symbol, Name: name, Price: decimal.RequireFromString(price)}
}

func (f *fakeGateway) fail(symbol string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[symbol] = err
}

func (f *fakeGateway) Lookup(_ context.Context, symbol string) (*quote.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.failures[symbol]; ok {
		return nil, err
	}
	q, ok := f.quotes[symbol]
	if !ok {
		return nil, errs.ErrInvalidSymbol
	}
	return &q, nil
}

func seedUser(t *testing.T, db *gorm.DB, cash string) *models.User {
	t.Helper()

	user := &models.User{
		ID:           uuid.New(),
		Name:         "trader_" + uuid.NewString(),
		PasswordHash: "hash",
		CashBalance:  decimal.RequireFromString(cash),
	}
	if err := repository.NewUsersRepository(db).CreateUser(user); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return user
}

func cashOf(t *testing.T, db *gorm.DB, userID uuid.UUID) decimal.Decimal {
	t.Helper()

	user, err := repository.NewUsersRepository(db).GetUserByID(userID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	return user.CashBalance
}

func holdingOf(t *testing.T, db *gorm.DB, userID uuid.UUID, symbol string) int64 {
	t.Helper()

	company, err := repository.NewCompaniesRepository(db).GetBySymbol(symbol)
	if errors.Is(err, errs.ErrNotFound) {
		return 0
	}
	if err != nil {
		t.Fatalf("GetBySymbol failed: %v", err)
	}

	total, _, err := repository.NewTransactionsRepository(db).SumShares(userID, company.ID)
	if err != nil {
		t.Fatalf("SumShares failed: %v", err)
	}
	return total
}

func txnCount(t *testing.T, db *gorm.DB, userID uuid.UUID) int {
	t.Helper()

	txns, err := repository.NewTransactionsRepository(db).HistoryByUser(userID)
	if err != nil {
		t.Fatalf("HistoryByUser failed: %v", err)
	}
	return len(txns)
}

func TestBuy(t *testing.T) {
	testDB := setupTestDB(t)
	gateway := newFakeGateway()
	trades := service.NewTradeService(testDB, gateway, testLogger())
	ctx := context.Background()

	t.Run("invalid_input", func(t *testing.T) {
		user := seedUser(t, testDB, "100.00")

		if _, err := trades.Buy(ctx, user.ID, "", 1); !errors.Is(err, errs.ErrInvalidInput) {
			t.Errorf("Expected ErrInvalidInput for empty symbol, got %v", err)
		}
		if _, err := trades.Buy(ctx, user.ID, "ABC", 0); !errors.Is(err, errs.ErrInvalidInput) {
			t.Errorf("Expected ErrInvalidInput for zero shares, got %v", err)
		}
		if _, err := trades.Buy(ctx, user.ID, "ABC", -3); !errors.Is(err, errs.ErrInvalidInput) {
			t.Errorf("Expected ErrInvalidInput for negative shares, got %v", err)
		}
	})

	t.Run("unknown_user", func(t *testing.T) {
		gateway.set("GHOST", "Ghost Corp", "10.00")

		if _, err := trades.Buy(ctx, uuid.New(), "GHOST", 1); !errors.Is(err, errs.ErrUserNotFound) {
			t.Errorf("Expected ErrUserNotFound, got %v", err)
		}
	})

	t.Run("invalid_symbol_no_state_change", func(t *testing.T) {
		user := seedUser(t, testDB, "100.00")

		if _, err := trades.Buy(ctx, user.ID, "MISSING", 1); !errors.Is(err, errs.ErrInvalidSymbol) {
			t.Errorf("Expected ErrInvalidSymbol, got %v", err)
		}
		if got := cashOf(t, testDB, user.ID); !got.Equal(decimal.RequireFromString("100.00")) {
			t.Errorf("Expected cash untouched, got %s", got)
		}
		if got := txnCount(t, testDB, user.ID); got != 0 {
			t.Errorf("Expected no ledger rows, got %d", got)
		}
	})

	t.Run("quote_unavailable_no_state_change", func(t *testing.T) {
		user := seedUser(t, testDB, "100.00")
		gateway.fail("FLAKY", errs.ErrQuoteUnavailable)

		if _, err := trades.Buy(ctx, user.ID, "FLAKY", 1); !errors.Is(err, errs.ErrQuoteUnavailable) {
			t.Errorf("Expected ErrQuoteUnavailable, got %v", err)
		}
		if got := txnCount(t, testDB, user.ID); got != 0 {
			t.Errorf("Expected no ledger rows, got %d", got)
		}
	})

	t.Run("success", func(t *testing.T) {
		user := seedUser(t, testDB, "10000.00")
		gateway.set("ABC", "ABC Corp", "100.00")

		txnID, err := trades.Buy(ctx, user.ID, "abc", 5)
		if err != nil {
			t.Fatalf("Buy failed: %v", err)
		}
		if txnID == 0 {
			t.Errorf("Expected a persisted transaction ID")
		}

		if got := cashOf(t, testDB, user.ID); !got.Equal(decimal.RequireFromString("9500.00")) {
			t.Errorf("Expected cash 9500.00, got %s", got)
		}
		if got := holdingOf(t, testDB, user.ID, "ABC"); got != 5 {
			t.Errorf("Expected holding of 5, got %d", got)
		}
	})

	t.Run("cost_equal_to_cash_succeeds", func(t *testing.T) {
		user := seedUser(t, testDB, "500.00")
		gateway.set("EXA", "Exact Corp", "100.00")

		if _, err := trades.Buy(ctx, user.ID, "EXA", 5); err != nil {
			t.Fatalf("Buy at cost == cash failed: %v", err)
		}
		if got := cashOf(t, testDB, user.ID); !got.Equal(decimal.Zero) {
			t.Errorf("Expected cash 0, got %s", got)
		}
	})

	t.Run("one_cent_over_cash_fails", func(t *testing.T) {
		user := seedUser(t, testDB, "500.00")
		gateway.set("OVR", "Over Corp", "500.01")

		_, err := trades.Buy(ctx, user.ID, "OVR", 1)
		if !errors.Is(err, errs.ErrInsufficientFunds) {
			t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
		}
		if got := cashOf(t, testDB, user.ID); !got.Equal(decimal.RequireFromString("500.00")) {
			t.Errorf("Expected cash untouched, got %s", got)
		}
		if got := txnCount(t, testDB, user.ID); got != 0 {
			t.Errorf("Expected no ledger rows, got %d", got)
		}
	})
}

func TestSell(t *testing.T) {
	testDB := setupTestDB(t)
	gateway := newFakeGateway()
	trades := service.NewTradeService(testDB, gateway, testLogger())
	ctx := context.Background()

	t.Run("no_position", func(t *testing.T) {
		user := seedUser(t, testDB, "1000.00")
		gateway.set("NOPOS", "NoPos Corp", "10.00")

		if _, err := trades.Sell(ctx, user.ID, "NOPOS", 1); !errors.Is(err, errs.ErrNoPosition) {
			t.Errorf("Expected ErrNoPosition, got %v", err)
		}
	})

	t.Run("round_trip_same_price_restores_cash", func(t *testing.T) {
		user := seedUser(t, testDB, "10000.00")
		gateway.set("RND", "Round Corp", "100.00")

		if _, err := trades.Buy(ctx, user.ID, "RND", 5); err != nil {
			t.Fatalf("Buy failed: %v", err)
		}
		if _, err := trades.Sell(ctx, user.ID, "RND", 5); err != nil {
			t.Fatalf("Sell failed: %v", err)
		}

		if got := cashOf(t, testDB, user.ID); !got.Equal(decimal.RequireFromString("10000.00")) {
			t.Errorf("Expected cash restored to 10000.00, got %s", got)
		}
		if got := holdingOf(t, testDB, user.ID, "RND"); got != 0 {
			t.Errorf("Expected net holding 0, got %d", got)
		}
		if got := txnCount(t, testDB, user.ID); got != 2 {
			t.Errorf("Expected both ledger rows retained, got %d", got)
		}
	})

	t.Run("oversell_by_one_fails", func(t *testing.T) {
		user := seedUser(t, testDB, "10000.00")
		gateway.set("OSL", "Oversell Corp", "10.00")

		if _, err := trades.Buy(ctx, user.ID, "OSL", 10); err != nil {
			t.Fatalf("Buy failed: %v", err)
		}

		if _, err := trades.Sell(ctx, user.ID, "OSL", 11); !errors.Is(err, errs.ErrInsufficientShares) {
			t.Errorf("Expected ErrInsufficientShares, got %v", err)
		}
		if got := holdingOf(t, testDB, user.ID, "OSL"); got != 10 {
			t.Errorf("Expected holding untouched at 10, got %d", got)
		}
	})

	t.Run("liquidated_position_cannot_be_sold_again", func(t *testing.T) {
		user := seedUser(t, testDB, "10000.00")
		gateway.set("LIQ", "Liquid Corp", "50.00")

		if _, err := trades.Buy(ctx, user.ID, "LIQ", 4); err != nil {
			t.Fatalf("Buy failed: %v", err)
		}
		if _, err := trades.Sell(ctx, user.ID, "LIQ", 4); err != nil {
			t.Fatalf("Sell of full holding failed: %v", err)
		}

		if got := holdingOf(t, testDB, user.ID, "LIQ"); got != 0 {
			t.Errorf("Expected net holding 0, got %d", got)
		}

		// The zero-net position stays in history but holds nothing to sell.
		if _, err := trades.Sell(ctx, user.ID, "LIQ", 1); !errors.Is(err, errs.ErrInsufficientShares) {
			t.Errorf("Expected ErrInsufficientShares, got %v", err)
		}
	})

	t.Run("end_to_end_price_move", func(t *testing.T) {
		user := seedUser(t, testDB, "10000.00")
		gateway.set("ETE", "EndToEnd Corp", "100.00")

		if _, err := trades.Buy(ctx, user.ID, "ETE", 5); err != nil {
			t.Fatalf("Buy failed: %v", err)
		}
		if got := cashOf(t, testDB, user.ID); !got.Equal(decimal.RequireFromString("9500.00")) {
			t.Fatalf("Expected cash 9500.00 after buy, got %s", got)
		}

		gateway.set("ETE", "EndToEnd Corp", "120.00")

		if _, err := trades.Sell(ctx, user.ID, "ETE", 5); err != nil {
			t.Fatalf("Sell failed: %v", err)
		}
		if got := cashOf(t, testDB, user.ID); !got.Equal(decimal.RequireFromString("10100.00")) {
			t.Errorf("Expected cash 10100.00 after sell, got %s", got)
		}
		if got := holdingOf(t, testDB, user.ID, "ETE"); got != 0 {
			t.Errorf("Expected net holding 0, got %d", got)
		}

		history, err := repository.NewTransactionsRepository(testDB).HistoryByUser(user.ID)
		if err != nil {
			t.Fatalf("HistoryByUser failed: %v", err)
		}
		if len(history) != 2 {
			t.Fatalf("Expected 2 ledger rows, got %d", len(history))
		}
		if history[0].Shares != 5 || history[1].Shares != -5 {
			t.Errorf("Expected opposite-signed rows, got %d and %d", history[0].Shares, history[1].Shares)
		}
	})
}

func TestConcurrentSellsCannotOverdraw(t *testing.T) {
	testDB := setupTestDB(t)
	gateway := newFakeGateway()
	trades := service.NewTradeService(testDB, gateway, testLogger())
	ctx := context.Background()

	user := seedUser(t, testDB, "10000.00")
	gateway.set("RACE", "Race Corp", "10.00")

	if _, err := trades.Buy(ctx, user.ID, "RACE", 10); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := trades.Sell(ctx, user.ID, "RACE", 10)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, failed int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, errs.ErrInsufficientShares) || errors.Is(err, errs.ErrConflict):
			failed++
		default:
			t.Errorf("Unexpected error from concurrent sell: %v", err)
		}
	}

	if succeeded != 1 || failed != 1 {
		t.Errorf("Expected exactly one success and one rejection, got %d successes and %d rejections", succeeded, failed)
	}

	if got := holdingOf(t, testDB, user.ID, "RACE"); got != 0 {
		t.Errorf("Expected final net holding 0, got %d", got)
	}
	if got := cashOf(t, testDB, user.ID); !got.Equal(decimal.RequireFromString("10000.00")) {
		t.Errorf("Expected cash back at 10000.00, got %s", got)
	}
}

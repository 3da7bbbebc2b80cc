package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/fintrack/stockledger/internal/config"
	httphandler "github.com/fintrack/stockledger/internal/handler/http"
	"github.com/fintrack/stockledger/internal/quote"
	"github.com/fintrack/stockledger/internal/repository"
	"github.com/fintrack/stockledger/internal/service"
	"github.com/fintrack/stockledger/internal/websocket"
	"github.com/fintrack/stockledger/storage/postgres"
	"github.com/fintrack/stockledger/storage/redis"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type App struct {
	cfg             *config.Config
	log             *slog.Logger
	httpServer      *http.Server
	storage         *postgres.Storage
	redisSubscriber *redis.Subscriber
	wsManager       *websocket.Manager

	ctx    context.Context
	cancel context.CancelFunc
}

func New(log *slog.Logger, cfg *config.Config) *App {
	ctx, cancel := context.WithCancel(context.Background())

	storage, err := postgres.New(cfg.Database)
	if err != nil {
		panic(fmt.Errorf("failed to init storage: %w", err))
	}

	startingCash, err := decimal.NewFromString(cfg.Ledger.StartingCash)
	if err != nil {
		panic(fmt.Errorf("invalid STARTING_CASH %q: %w", cfg.Ledger.StartingCash, err))
	}

	usersRepo := repository.NewUsersRepository(storage.DB)
	txnsRepo := repository.NewTransactionsRepository(storage.DB)

	quoteClient := quote.NewClient(cfg.Quotes, log)

	accountsService := service.NewAccountsService(usersRepo, startingCash)
	tokenService := service.NewTokenService(cfg.Security)
	tradeService := service.NewTradeService(storage.DB, quoteClient, log)
	portfolioService := service.NewPortfolioService(usersRepo, txnsRepo, quoteClient, log)

	redisSubscriber := redis.NewSubscriber(cfg.Redis, log)
	wsManager := websocket.NewManager(log, redisSubscriber)

	ginEngine := gin.New()
	httpHandler := httphandler.NewHandler(
		accountsService,
		tokenService,
		tradeService,
		portfolioService,
		quoteClient,
		wsManager,
		log,
		cfg.Security.JWTSecret,
	)
	httpHandler.RegisterRoutes(ginEngine)

	httpServer := &http.Server{
		Addr:    net.JoinHostPort("", strconv.FormatUint(uint64(cfg.HTTP.Port), 10)),
		Handler: ginEngine,
	}

	return &App{
		log:             log,
		cfg:             cfg,
		httpServer:      httpServer,
		storage:         storage,
		redisSubscriber: redisSubscriber,
		wsManager:       wsManager,
		ctx:             ctx,
		cancel:          cancel,
	}
}

func (a *App) Run() error {
	errChan := make(chan error, 2)
	a.log.Info("starting application components...")

	go func() {
		a.log.Info("websocket manager started")
		a.wsManager.Run(a.ctx)
		a.log.Info("websocket manager stopped")
	}()

	go func() {
		if err := a.runHTTP(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	err := <-errChan
	a.log.Warn("shutting down application due to an error", "error", err)

	a.Stop()
	return err
}

func (a *App) Stop() {
	a.log.Info("stopping application components gracefully...")

	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.HTTP.Timeout)
	defer shutdownCancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("failed to gracefully shutdown HTTP server", "error", err)
	} else {
		a.log.Info("HTTP server stopped")
	}

	a.redisSubscriber.Close()

	if err := a.storage.Stop(); err != nil {
		a.log.Error("failed to stop storage", "error", err)
	} else {
		a.log.Info("database connection closed")
	}
}

func (a *App) runHTTP() error {
	const op = "app.runHTTP"

	a.log.Info("HTTP server is running", "addr", a.httpServer.Addr)

	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/fintrack/stockledger/internal/handler/middleware"
	"github.com/fintrack/stockledger/internal/quote"
	"github.com/fintrack/stockledger/internal/service"
	"github.com/fintrack/stockledger/internal/websocket"
	"github.com/fintrack/stockledger/lib/errs"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorilla_ws "github.com/gorilla/websocket"
)

const (
	userCtx = "userID"
)

type Handler struct {
	accounts  service.AccountsService
	tokens    service.TokenService
	trades    service.TradeService
	portfolio service.PortfolioService
	quotes    quote.Gateway
	wsManager *websocket.Manager
	log       *slog.Logger
	jwtSecret string
	upgrader  gorilla_ws.Upgrader
}

func NewHandler(
	accounts service.AccountsService,
	tokens service.TokenService,
	trades service.TradeService,
	portfolio service.PortfolioService,
	quotes quote.Gateway,
	wsManager *websocket.Manager,
	log *slog.Logger,
	jwtSecret string,
) *Handler {
	return &Handler{
		accounts:  accounts,
		tokens:    tokens,
		trades:    trades,
		portfolio: portfolio,
		quotes:    quotes,
		wsManager: wsManager,
		log:       log,
		jwtSecret: jwtSecret,
		upgrader: gorilla_ws.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", h.register)
			auth.POST("/login", h.login)
		}

		protected := api.Group("", middleware.AuthMiddleware(h.jwtSecret, h.log))
		{
			protected.GET("/portfolio", h.getPortfolio)
			protected.GET("/history", h.getHistory)
			protected.GET("/quote/:symbol", h.getQuote)
			protected.POST("/buy", h.buy)
			protected.POST("/sell", h.sell)
			protected.POST("/password/reset", h.resetPassword)
			protected.GET("/ws", h.wsConnect)
		}
	}
}

type authRequest struct {
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) register(c *gin.Context) {
	var req authRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	userID, err := h.accounts.Register(c.Request.Context(), req.Name, req.Password)
	if err != nil {
		h.writeError(c, err, "failed to register user")
		return
	}

	accessToken, err := h.tokens.GenerateAccessToken(userID, req.Name)
	if err != nil {
		h.log.Error("failed to issue token after registration", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"userId": userID.String(), "accessToken": accessToken})
}

func (h *Handler) login(c *gin.Context) {
	var req authRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, err := h.accounts.Authenticate(c.Request.Context(), req.Name, req.Password)
	if err != nil {
		h.writeError(c, err, "failed to authenticate user")
		return
	}

	accessToken, err := h.tokens.GenerateAccessToken(user.ID, user.Name)
	if err != nil {
		h.log.Error("failed to issue access token", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"accessToken": accessToken})
}

type tradeRequest struct {
	Symbol string `json:"symbol" binding:"required"`
	Shares int64  `json:"shares" binding:"required,min=1"`
}

func (h *Handler) buy(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	txnID, err := h.trades.Buy(c.Request.Context(), userID, req.Symbol, req.Shares)
	if err != nil {
		h.writeError(c, err, "buy failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactionId": txnID})
}

func (h *Handler) sell(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	txnID, err := h.trades.Sell(c.Request.Context(), userID, req.Symbol, req.Shares)
	if err != nil {
		h.writeError(c, err, "sell failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactionId": txnID})
}

func (h *Handler) getPortfolio(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	view, err := h.portfolio.Portfolio(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err, "failed to build portfolio")
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *Handler) getHistory(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	entries, err := h.portfolio.History(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err, "failed to load history")
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": entries, "count": len(entries)})
}

func (h *Handler) getQuote(c *gin.Context) {
	q, err := h.quotes.Lookup(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		h.writeError(c, err, "quote lookup failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"symbol": q.Symbol, "name": q.Name, "price": q.Price})
}

type resetPasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

func (h *Handler) resetPassword(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.accounts.ResetPassword(c.Request.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		h.writeError(c, err, "password reset failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password reset"})
}

func (h *Handler) wsConnect(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	cash, holdings, err := h.portfolio.Snapshot(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err, "ws: failed to load portfolio snapshot")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("failed to upgrade connection", slog.Any("error", err))
		return
	}

	client := websocket.NewClient(h.wsManager, conn, userID, cash, holdings)
	h.wsManager.Register(client)

	go client.Writer()
	go client.Reader()
}

func (h *Handler) currentUser(c *gin.Context) (uuid.UUID, bool) {
	userIDRaw, ok := c.Get(userCtx)
	if !ok {
		h.log.Error("handler: userID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(userIDRaw.(string))
	if err != nil {
		h.log.Error("handler: failed to parse userID from context", "userID", userIDRaw)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user id in token"})
		return uuid.Nil, false
	}

	return userID, true
}

func (h *Handler) writeError(c *gin.Context, err error, logMsg string) {
	switch {
	case errors.Is(err, errs.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
	case errors.Is(err, errs.ErrAuthFailed):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, errs.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, errs.ErrInvalidSymbol):
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid symbol"})
	case errors.Is(err, errs.ErrNoPosition):
		c.JSON(http.StatusNotFound, gin.H{"error": "no position in symbol"})
	case errors.Is(err, errs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, errs.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "username taken"})
	case errors.Is(err, errs.ErrInsufficientFunds):
		c.JSON(http.StatusConflict, gin.H{"error": "insufficient funds"})
	case errors.Is(err, errs.ErrInsufficientShares):
		c.JSON(http.StatusConflict, gin.H{"error": "insufficient shares"})
	case errors.Is(err, errs.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict, retry the operation"})
	case errors.Is(err, errs.ErrQuoteUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "quote provider unavailable"})
	default:
		h.log.Error(logMsg, slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

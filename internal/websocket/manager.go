package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/fintrack/stockledger/internal/models"
	"github.com/fintrack/stockledger/internal/repository"
	"github.com/fintrack/stockledger/storage/redis"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// Client is one live portfolio stream. Its cash and holdings are a ledger
// snapshot taken at connect time; prices arrive over the feed afterwards.
type Client struct {
	manager  *Manager
	conn     *websocket.Conn
	userID   uuid.UUID
	cash     decimal.Decimal
	holdings []repository.HoldingRow
	prices   map[string]decimal.Decimal
	Send     chan []byte
	mu       sync.Mutex
}

func NewClient(manager *Manager, conn *websocket.Conn, userID uuid.UUID, cash decimal.Decimal, holdings []repository.HoldingRow) *Client {
	return &Client{
		manager:  manager,
		conn:     conn,
		userID:   userID,
		cash:     cash,
		holdings: holdings,
		prices:   make(map[string]decimal.Decimal),
		Send:     make(chan []byte, 256),
	}
}

type Manager struct {
	clients           map[uuid.UUID]*Client
	mu                sync.RWMutex
	register          chan *Client
	unregister        chan *Client
	log               *slog.Logger
	subscriber        *redis.Subscriber
	activeRedisSub    map[string]struct{}
	symbolSubscribers map[string]map[uuid.UUID]bool
}

func NewManager(log *slog.Logger, subscriber *redis.Subscriber) *Manager {
	return &Manager{
		clients:           make(map[uuid.UUID]*Client),
		register:          make(chan *Client),
		unregister:        make(chan *Client),
		log:               log,
		subscriber:        subscriber,
		activeRedisSub:    make(map[string]struct{}),
		symbolSubscribers: make(map[string]map[uuid.UUID]bool),
	}
}

func (m *Manager) Run(ctx context.Context) {
	go m.listenToFeed(ctx)

	for {
		select {
		case <-ctx.Done():
			m.log.Info("websocket manager run loop stopping...")
			return
		case client := <-m.register:
			m.registerClient(client)
		case client := <-m.unregister:
			m.unregisterClient(client)
		}
	}
}

func (m *Manager) listenToFeed(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-m.subscriber.Messages:
			if !ok {
				m.log.Warn("manager price feed channel closed")
				return
			}
			m.processPriceMessage(msg)
		}
	}
}

func (m *Manager) Register(client *Client) {
	m.register <- client
}

func (m *Manager) Unregister(client *Client) {
	m.unregister <- client
}

func (m *Manager) registerClient(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if oldClient, exists := m.clients[client.userID]; exists {
		m.log.Warn("client re-registering, closing old connection", "userID", client.userID)
		close(oldClient.Send)
		oldClient.conn.Close()
	}

	m.clients[client.userID] = client
	m.log.Info("new client registered", "userID", client.userID)

	for _, holding := range client.holdings {
		m.followSymbol(client.userID, holding.Symbol)
	}
}

func (m *Manager) unregisterClient(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[client.userID]; ok {
		delete(m.clients, client.userID)
		m.unfollowAllSymbols(client.userID)
		m.log.Info("client unregistered", "userID", client.userID)
	}
}

func (m *Manager) followSymbol(userID uuid.UUID, symbol string) {
	if _, ok := m.symbolSubscribers[symbol]; !ok {
		m.symbolSubscribers[symbol] = make(map[uuid.UUID]bool)
	}
	m.symbolSubscribers[symbol][userID] = true

	if _, ok := m.activeRedisSub[symbol]; !ok {
		if err := m.subscriber.Subscribe(context.Background(), symbol); err != nil {
			m.log.Error("manager: could not subscribe to price stream", "symbol", symbol, "error", err)
			return
		}
		m.activeRedisSub[symbol] = struct{}{}
	}
}

func (m *Manager) unfollowAllSymbols(userID uuid.UUID) {
	for symbol, users := range m.symbolSubscribers {
		if _, ok := users[userID]; ok {
			delete(users, userID)
		}

		if len(users) == 0 {
			delete(m.symbolSubscribers, symbol)
			delete(m.activeRedisSub, symbol)
			if err := m.subscriber.Unsubscribe(context.Background(), symbol); err != nil {
				m.log.Error("manager: failed to unsubscribe from price stream", "symbol", symbol, "error", err)
			}
		}
	}
}

func (m *Manager) processPriceMessage(msg redis.Message) {
	var priceUpdate models.PriceUpdate
	if err := json.Unmarshal([]byte(msg.Payload), &priceUpdate); err != nil {
		m.log.Error("failed to parse price update", "error", err, "payload", msg.Payload)
		return
	}

	priceDecimal := decimal.NewFromFloat(priceUpdate.Price)

	m.mu.RLock()
	defer m.mu.RUnlock()

	subscribers, ok := m.symbolSubscribers[priceUpdate.Symbol]
	if !ok {
		return
	}

	for userID := range subscribers {
		client, ok := m.clients[userID]
		if !ok {
			continue
		}

		client.mu.Lock()
		client.prices[priceUpdate.Symbol] = priceDecimal
		view := client.valuation()
		client.mu.Unlock()

		jsonData, err := json.Marshal(view)
		if err != nil {
			m.log.Error("failed to marshal portfolio view", "error", err, "userID", userID)
			continue
		}

		select {
		case client.Send <- jsonData:
		default:
			m.log.Warn("client send channel is full, dropping message", "userID", userID)
		}
	}
}

// valuation recomputes the portfolio view from the holdings snapshot and
// the prices seen so far. Symbols without a price yet are degraded at zero,
// the same rule the HTTP portfolio applies on quote failure. Callers must
// hold c.mu.
func (c *Client) valuation() *models.PortfolioView {
	view := &models.PortfolioView{
		UserID:   c.userID.String(),
		Cash:     c.cash,
		Holdings: make([]models.HoldingView, 0, len(c.holdings)),
		NetWorth: c.cash,
	}

	for _, holding := range c.holdings {
		row := models.HoldingView{
			Symbol: holding.Symbol,
			Name:   holding.Name,
			Shares: holding.Shares,
		}

		price, ok := c.prices[holding.Symbol]
		if !ok {
			row.Price = decimal.Zero
			row.Total = decimal.Zero
			row.Degraded = true
			view.Partial = true
		} else {
			row.Price = price
			row.Total = price.Mul(decimal.NewFromInt(holding.Shares))
			view.NetWorth = view.NetWorth.Add(row.Total)
		}

		view.Holdings = append(view.Holdings, row)
	}

	return view
}

func (c *Client) Writer() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.manager.log.Warn("failed to write message to client", "userID", c.userID)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) Reader() {
	defer func() {
		c.manager.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.manager.log.Warn("unexpected close error", "userID", c.userID, "error", err)
			}
			break
		}
	}
}

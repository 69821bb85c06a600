package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vietanh2810/sdeconomy/internal/api/handler/v1/response"
	"github.com/vietanh2810/sdeconomy/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Subscribers are authenticated by token before the upgrade.
	CheckOrigin: func(*http.Request) bool { return true },
}

type feedClient struct {
	conn  *websocket.Conn
	send  chan []byte
	alias string
}

type feedMessage struct {
	alias   string
	payload []byte
}

// FeedHub fans price events out to the websocket subscribers of each alias.
// Slow subscribers are dropped rather than allowed to stall publishers.
type FeedHub struct {
	svc        EconomyService
	logger     *zap.Logger
	clients    map[string]map[*feedClient]struct{}
	broadcast  chan feedMessage
	register   chan *feedClient
	unregister chan *feedClient
	done       chan struct{}
}

func NewFeedHub(svc EconomyService, logger *zap.Logger) *FeedHub {
	if logger == nil {
		logger = zap.L()
	}
	return &FeedHub{
		svc:        svc,
		logger:     logger,
		clients:    make(map[string]map[*feedClient]struct{}),
		broadcast:  make(chan feedMessage, 256),
		register:   make(chan *feedClient),
		unregister: make(chan *feedClient),
		done:       make(chan struct{}),
	}
}

// SetService is used when the hub has to exist before the service it reads
// from, since the service publishes into the hub.
func (h *FeedHub) SetService(svc EconomyService) {
	h.svc = svc
}

// Publish never blocks; events are dropped when the hub is saturated.
func (h *FeedHub) Publish(event service.PriceEvent) {
	payload, err := json.Marshal(response.NewPriceEvent(event))
	if err != nil {
		h.logger.Error("failed to encode price event", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- feedMessage{alias: event.State.Alias, payload: payload}:
	default:
		h.logger.Warn("price feed saturated, dropping event", zap.String("product", event.State.Alias))
	}
}

// Run owns the subscriber set until ctx is done, then closes every
// subscriber.
func (h *FeedHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for _, subs := range h.clients {
				for c := range subs {
					close(c.send)
				}
			}
			h.clients = make(map[string]map[*feedClient]struct{})
			return
		case c := <-h.register:
			subs, ok := h.clients[c.alias]
			if !ok {
				subs = make(map[*feedClient]struct{})
				h.clients[c.alias] = subs
			}
			subs[c] = struct{}{}
		case c := <-h.unregister:
			h.remove(c)
		case msg := <-h.broadcast:
			for c := range h.clients[msg.alias] {
				select {
				case c.send <- msg.payload:
				default:
					h.remove(c)
				}
			}
		}
	}
}

func (h *FeedHub) remove(c *feedClient) {
	subs, ok := h.clients[c.alias]
	if !ok {
		return
	}
	if _, ok = subs[c]; !ok {
		return
	}
	delete(subs, c)
	close(c.send)
	if len(subs) == 0 {
		delete(h.clients, c.alias)
	}
}

// HandleFeed godoc
// @Summary      Live price feed
// @Description  Upgrades to a websocket that receives every change to the product as JSON
// @Tags         products
// @Param        alias  path  string  true  "Product alias"
// @Success      101    {string}  string  "Switching Protocols"
// @Failure      404    {object}  response.Err
// @Router       /products/{alias}/feed [get]
// @Security BearerAuth
func (h *FeedHub) HandleFeed(ctx *gin.Context) {
	alias, respErr := getAliasFromPath(ctx)
	if respErr != nil {
		response.RenderErr(ctx, respErr)
		return
	}

	state, err := h.svc.Info(alias)
	if err != nil {
		renderServiceErr(ctx, "HandleFeed -> h.svc.Info", alias, err)
		return
	}

	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &feedClient{
		conn:  conn,
		send:  make(chan []byte, sendBufferSize),
		alias: alias,
	}

	// The current state goes first so subscribers never start blind.
	initial, err := json.Marshal(response.PriceEvent{
		Action:  "SNAPSHOT",
		Amount:  response.Money(0),
		Money:   response.Money(0),
		At:      time.Now().UTC(),
		Product: response.NewProduct(state),
	})
	if err == nil {
		c.send <- initial
	}

	select {
	case h.register <- c:
	case <-h.done:
		close(c.send)
	}

	go c.writePump()
	go c.readPump(h)
}

func (c *feedClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only watches for the close; subscribers send nothing.
func (c *feedClient) readPump(h *FeedHub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("feed subscriber closed", zap.String("product", c.alias), zap.Error(err))
			}
			return
		}
	}
}

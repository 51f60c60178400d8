package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"orderbook-dashboard/internal/core/store"
	"orderbook-dashboard/internal/metrics"
	"orderbook-dashboard/internal/util/timeutil"
	"orderbook-dashboard/internal/view"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	switchTimeout  = 30 * time.Second
)

// WSMessage 服务端推送消息
type WSMessage struct {
	Type      string `json:"type"`
	Symbol    string `json:"symbol"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// WSRequest 客户端请求
type WSRequest struct {
	Action string `json:"action"`
	Symbol string `json:"symbol"`
}

// WSResponse 请求响应
type WSResponse struct {
	Action  string `json:"action"`
	Symbol  string `json:"symbol,omitempty"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Hub WebSocket 推送中心
// 每次状态更新向所有客户端广播一条 type=state 消息
type Hub struct {
	ctrl       Controller
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	mu         sync.RWMutex
	bufferSize int
	upgrader   websocket.Upgrader
	prom       *metrics.Metrics
	logger     *zap.Logger
	done       chan struct{}
}

// NewHub 创建推送中心
// 参数 ctrl: 订阅控制器
// 参数 bufferSize: 每个客户端的发送缓冲
// 参数 prom: Prometheus 指标，可为 nil
// 参数 logger: 日志记录器
func NewHub(ctrl Controller, bufferSize int, prom *metrics.Metrics, logger *zap.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Hub{
		ctrl:       ctrl,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		bufferSize: bufferSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		prom:   prom,
		logger: logger.Named("hub"),
		done:   make(chan struct{}),
	}
}

// Run 运行推送中心，阻塞直到 ctx 取消
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				c.stop()
				delete(h.clients, c)
			}
			h.mu.Unlock()
			h.prom.SetClients(0)
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.prom.SetClients(n)
			h.logger.Info("客户端已连接", zap.String("id", c.id), zap.String("addr", c.conn.RemoteAddr().String()))

		case c := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[c]
			if ok {
				delete(h.clients, c)
				c.stop()
			}
			n := len(h.clients)
			h.mu.Unlock()
			if ok {
				h.prom.SetClients(n)
				h.logger.Info("客户端已断开", zap.String("id", c.id))
			}

		case message := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					// 发送缓冲已满，断开慢客户端
					c.stop()
					delete(h.clients, c)
					h.logger.Warn("客户端发送缓冲已满，断开连接", zap.String("id", c.id))
				}
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.prom.SetClients(n)
		}
	}
}

// Publish 广播一条状态
// 在订阅事件循环中调用；广播队列满时丢弃本次更新
func (h *Hub) Publish(st *store.State) {
	data, err := encodeState(st)
	if err != nil {
		h.logger.Error("序列化状态失败", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("广播队列已满，丢弃状态更新", zap.String("symbol", st.Pair.Symbol))
	}
}

// ClientCount 当前客户端数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleConnection 处理 WebSocket 连接
// 连接建立后先推送一次当前状态
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("升级 WebSocket 失败", zap.Error(err))
		return
	}

	c := &Client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.bufferSize),
		quit: make(chan struct{}),
	}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	if data, err := encodeState(h.ctrl.State()); err == nil {
		c.enqueue(data)
	}

	go c.writePump()
	go c.readPump()
}

func encodeState(st *store.State) ([]byte, error) {
	nowMs := timeutil.NowMs()
	return json.Marshal(&WSMessage{
		Type:      "state",
		Symbol:    st.Pair.Symbol,
		Timestamp: nowMs,
		Data:      view.FromState(st, nowMs),
	})
}

// Client WebSocket 客户端
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	// quit 关闭后 writePump 退出；send 从不关闭，避免并发写入时 panic
	quit     chan struct{}
	quitOnce sync.Once
}

func (c *Client) stop() {
	c.quitOnce.Do(func() { close(c.quit) })
}

func (c *Client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
	}
}

// readPump 读取客户端请求
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.stop()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket 读取失败", zap.String("id", c.id), zap.Error(err))
			}
			return
		}

		c.handleMessage(message)
	}
}

// writePump 写入推送消息
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.quit:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
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

// handleMessage 处理客户端请求
func (c *Client) handleMessage(data []byte) {
	var req WSRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("invalid message format")
		return
	}

	switch req.Action {
	case "select":
		ctx, cancel := context.WithTimeout(context.Background(), switchTimeout)
		pair, err := c.hub.ctrl.Switch(ctx, req.Symbol)
		cancel()
		if err != nil {
			c.sendResponse(&WSResponse{Action: "selected", Symbol: req.Symbol, Success: false, Message: err.Error()})
			return
		}
		c.sendResponse(&WSResponse{Action: "selected", Symbol: pair.Symbol, Success: true})

	case "state":
		if data, err := encodeState(c.hub.ctrl.State()); err == nil {
			c.enqueue(data)
		}

	case "ping":
		c.sendResponse(&WSResponse{Action: "pong", Success: true})

	default:
		c.sendError("unknown action: " + req.Action)
	}
}

func (c *Client) sendError(message string) {
	c.sendResponse(&WSResponse{Action: "error", Success: false, Message: message})
}

func (c *Client) sendResponse(resp *WSResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	c.enqueue(data)
}

package service

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"

	"signal_tracker/internal/models"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type message struct {
	symbol string
	data   []byte
}

// Hub раздаёт события задач всем подписчикам /ws.
// Publish не блокирует: при переполненной очереди событие теряется.
type Hub struct {
	log *zap.Logger

	register   chan *client
	unregister chan *client
	broadcast  chan message
	quit       chan struct{}

	// только из цикла Run
	clients    map[*client]struct{}
	lastStatus []byte

	connected atomic.Int64
	dropped   atomic.Int64
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:        log.Named("feed"),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan message, 256),
		quit:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
	}
}

// Run: цикл хаба, до отмены ctx.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.quit)
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.connected.Store(int64(len(h.clients)))
			if h.lastStatus != nil {
				c.send <- h.lastStatus
			}

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.connected.Store(int64(len(h.clients)))
			}

		case m := <-h.broadcast:
			if m.symbol == "" {
				h.lastStatus = m.data
			}
			for c := range h.clients {
				if !c.wants(m.symbol) {
					continue
				}
				select {
				case c.send <- m.data:
				default:
					// медленный клиент
					delete(h.clients, c)
					close(c.send)
					h.connected.Store(int64(len(h.clients)))
				}
			}
		}
	}
}

func (h *Hub) Publish(ev models.Event) {
	data, err := sonic.Marshal(ev)
	if err != nil {
		h.log.Error("encode event", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- message{symbol: ev.Symbol, data: data}:
	default:
		h.dropped.Add(1)
	}
}

// Clients: число подключённых подписчиков.
func (h *Hub) Clients() int {
	return int(h.connected.Load())
}

// Handle: GET /ws[?symbol=BTC].
func (h *Hub) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Info("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 64),
		symbol: strings.ToUpper(strings.TrimSpace(c.Query("symbol"))),
	}

	select {
	case h.register <- cl:
	case <-h.quit:
		_ = conn.Close()
		return
	}

	go cl.writePump()
	go cl.readPump()
}

// Dropped: события, не влезшие в очередь.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

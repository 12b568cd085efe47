package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rawblock/chain-gateway/internal/prices"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS policy is enforced on the HTTP routes; the stream itself
		// carries only public market data.
		return true
	},
}

// Hub maintains the set of active websocket clients and broadcasts
// price updates to all of them.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		broadcast: make(chan []byte, 256),
		clients:   make(map[*websocket.Conn]bool),
	}
}

func (h *Hub) Run() {
	for message := range h.broadcast {
		h.mutex.Lock()
		for client := range h.clients {
			// Write deadline keeps one stuck client from hanging the hub
			_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
			err := client.WriteMessage(websocket.TextMessage, message)
			if err != nil {
				log.Printf("[WS] write error: %v", err)
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mutex.Unlock()
	}
}

// Subscribe handles incoming websocket connections on /stream/prices.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] upgrade failed: %v", err)
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mutex.Unlock()

	log.Printf("[WS] client connected, total %d", total)

	// Push-only stream, but reads must be drained to notice disconnects.
	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			remaining := len(h.clients)
			h.mutex.Unlock()
			conn.Close()
			log.Printf("[WS] client disconnected, total %d", remaining)
		}()
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[WS] read error: %v", err)
				}
				break
			}
		}
	}()
}

// Broadcast queues a message for every connected client.
func (h *Hub) Broadcast(data []byte) {
	h.broadcast <- data
}

// PushPrices polls the aggregator and broadcasts fresh quotes until the
// context ends. Silent when nobody is connected.
func (h *Hub) PushPrices(ctx context.Context, agg *prices.Aggregator, symbols []string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		h.mutex.Lock()
		idle := len(h.clients) == 0
		h.mutex.Unlock()
		if idle {
			continue
		}

		data, failed := agg.Quotes(ctx, symbols)
		if len(data) == 0 {
			continue
		}
		payload, err := json.Marshal(gin.H{
			"type":   "prices",
			"data":   data,
			"failed": failed,
		})
		if err != nil {
			continue
		}
		h.Broadcast(payload)
	}
}

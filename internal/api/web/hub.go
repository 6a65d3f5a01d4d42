package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"defect-console/internal/domain/entity"
	"defect-console/internal/domain/port"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub рассылает события сессии всем подключённым браузерам
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mutex      sync.RWMutex
	log        *logrus.Entry
}

var _ port.EventSink = (*Hub)(nil)

func NewHub(log *logrus.Entry) *Hub {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		log:        log.WithField("component", "websocket"),
	}
}

// Run обслуживает подключения до отмены ctx
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mutex.Unlock()
			return

		case c := <-h.register:
			h.mutex.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.log.Infof("Client connected. Total: %d", total)

		case c := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.log.Infof("Client disconnected. Total: %d", total)

		case message := <-h.broadcast:
			h.mutex.Lock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					// клиент не успевает читать
					delete(h.clients, c)
					close(c.send)
					h.log.Warn("Dropping slow client")
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Publish рассылает событие. Если очередь заполнена, событие теряется.
func (h *Hub) Publish(event entity.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.WithError(err).Error("Error encoding event")
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	default:
		h.log.Debugf("event %s dropped", event.Kind)
	}
}

// ClientCount число подключённых клиентов
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// ServeWS подключает браузер и отправляет ему hello первым сообщением
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, hello []byte) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade error")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if hello != nil {
		c.send <- hello
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)

	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// readPump читает только управляющие кадры, входящие сообщения не нужны
func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.WithError(err).Debug("Viewer disconnected")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
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
				h.log.WithError(err).Debug("Error sending message")
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

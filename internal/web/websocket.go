// internal/web/websocket.go
package web

import (
    "net/http"
    "sync"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/google/uuid"
    "github.com/gorilla/websocket"
    "github.com/sirupsen/logrus"
    "pingmap/internal/metrics"
)

const (
    writeWait  = 10 * time.Second
    pongWait   = 60 * time.Second
    pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
    CheckOrigin: func(r *http.Request) bool {
        return true
    },
}

type WSMessage struct {
    Type string      `json:"type"`
    Data interface{} `json:"data"`
}

type WSClient struct {
    id   string
    conn *websocket.Conn
    send chan WSMessage
    hub  *Hub
}

// Hub tracks connected websocket clients and fans messages out to them.
// A client that cannot keep up is dropped.
type Hub struct {
    mu      sync.Mutex
    clients map[*WSClient]bool
    metrics *metrics.Collector
}

func NewHub(metricsCollector *metrics.Collector) *Hub {
    return &Hub{
        clients: make(map[*WSClient]bool),
        metrics: metricsCollector,
    }
}

func (h *Hub) register(client *WSClient) {
    h.mu.Lock()
    defer h.mu.Unlock()
    h.clients[client] = true
    if h.metrics != nil {
        h.metrics.RecordWebSocketConnection(1)
    }
}

// unregister removes the client and closes its send channel once.
func (h *Hub) unregister(client *WSClient) {
    h.mu.Lock()
    defer h.mu.Unlock()
    h.removeLocked(client)
}

func (h *Hub) removeLocked(client *WSClient) {
    if !h.clients[client] {
        return
    }
    delete(h.clients, client)
    close(client.send)
    if h.metrics != nil {
        h.metrics.RecordWebSocketConnection(-1)
    }
}

func (h *Hub) Broadcast(message WSMessage) {
    h.mu.Lock()
    defer h.mu.Unlock()

    for client := range h.clients {
        select {
        case client.send <- message:
        default:
            logrus.WithField("client_id", client.id).Warn("Dropping slow websocket client")
            h.removeLocked(client)
        }
    }
}

func (h *Hub) Count() int {
    h.mu.Lock()
    defer h.mu.Unlock()
    return len(h.clients)
}

func (h *Hub) Close() {
    h.mu.Lock()
    defer h.mu.Unlock()
    for client := range h.clients {
        h.removeLocked(client)
    }
}

func (s *Server) handleWebSocket(c *gin.Context) {
    conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
    if err != nil {
        logrus.WithError(err).Error("Failed to upgrade websocket")
        return
    }

    client := &WSClient{
        id:   uuid.New().String(),
        conn: conn,
        send: make(chan WSMessage, 256),
        hub:  s.hub,
    }
    s.hub.register(client)
    logrus.WithField("client_id", client.id).Debug("Websocket client connected")

    go client.writePump()
    go client.readPump()
}

func (c *WSClient) writePump() {
    ticker := time.NewTicker(pingPeriod)
    defer func() {
        ticker.Stop()
        c.conn.Close()
    }()

    for {
        select {
        case message, ok := <-c.send:
            c.conn.SetWriteDeadline(time.Now().Add(writeWait))
            if !ok {
                c.conn.WriteMessage(websocket.CloseMessage, []byte{})
                return
            }

            if err := c.conn.WriteJSON(message); err != nil {
                c.hub.unregister(c)
                return
            }

        case <-ticker.C:
            c.conn.SetWriteDeadline(time.Now().Add(writeWait))
            if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
                c.hub.unregister(c)
                return
            }
        }
    }
}

func (c *WSClient) readPump() {
    defer func() {
        c.hub.unregister(c)
        c.conn.Close()
        logrus.WithField("client_id", c.id).Debug("Websocket client disconnected")
    }()

    c.conn.SetReadLimit(512)
    c.conn.SetReadDeadline(time.Now().Add(pongWait))
    c.conn.SetPongHandler(func(string) error {
        c.conn.SetReadDeadline(time.Now().Add(pongWait))
        return nil
    })

    for {
        if _, _, err := c.conn.ReadMessage(); err != nil {
            break
        }
    }
}

package api

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	commonlog "github.com/rifatismailov/server-cube/server/common/log"
	relayservice "github.com/rifatismailov/server-cube/server/relay/service"
)

type Handler struct {
	relay *relayservice.Relay
}

func NewHandler(relay *relayservice.Relay) *Handler {
	return &Handler{relay: relay}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, h.relay.Stats())
	})
	r.GET("/ws", h.handleWS)
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func (h *Handler) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	client := newWSConn(conn)
	commonlog.Infof("new connection established conn=%s", client.ID())
	defer func() {
		client.markClosed()
		h.relay.Disconnect(client)
		commonlog.Infof("connection closed conn=%s", client.ID())
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.relay.HandleFrame(client, raw)
	}
}

// wsConn adapts a websocket connection to the relay's Conn contract.
// Concurrent writers serialize on the mutex; one write deadline per send.
type wsConn struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{id: randomConnID(), conn: conn}
}

func (c *wsConn) ID() string {
	return c.id
}

func (c *wsConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *wsConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	_ = c.conn.Close()
}

func randomConnID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "conn-unknown"
	}
	return hex.EncodeToString(buf)
}

package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeDeadline = 10 * time.Second

// Client adapts a websocket connection to the Subscriber interface.
type Client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn}
}

// Send writes one text message. Writes are serialized; gorilla connections do
// not allow concurrent writers.
func (c *Client) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close terminates the connection.
func (c *Client) Close() {
	_ = c.conn.Close()
}

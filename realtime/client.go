package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const pingWriteWait = 10 * time.Second

// Client wraps one live websocket connection. Gorilla allows a single
// concurrent writer per connection, and frames can come from the client's own
// read loop, the notification bridge and the online-users broadcast, so every
// outbound write goes through writeMu.
type Client struct {
	ID string

	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.New().String(),
		conn: conn,
	}
}

// Emit writes one {event, data} frame to the client
func (c *Client) Emit(event string, data interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(map[string]interface{}{
		"event": event,
		"data":  data,
	})
}

// Ping sends a websocket ping control frame as a keepalive
func (c *Client) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pingWriteWait))
}

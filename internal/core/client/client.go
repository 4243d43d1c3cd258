// Package client wraps one accepted connection: the socket, the peer's
// address, and the lock that serializes writers on the send side.
package client

import (
	"net"
	"sync"

	"github.com/ubermundo/server/internal/core/wire"
	"github.com/ubermundo/server/internal/players"
)

// Client represents a user connected through the game client. It exists
// from accept to socket close and owns the connection's send-side lock.
type Client struct {
	connection net.Conn
	ipAddr     string
	port       string

	// Serializes the handler's own replies with any cross-session
	// broadcast targeting this connection.
	sendMu sync.Mutex

	// Player bound to this session once the identity announce has been
	// processed; nil before that and for the session's whole life if the
	// peer never announces.
	Player *players.Player

	// Log frames sent on this connection.
	Debug bool
}

func NewClient(connection net.Conn) *Client {
	c := &Client{connection: connection}

	addr := connection.RemoteAddr().String()
	if host, port, err := net.SplitHostPort(addr); err == nil {
		c.ipAddr, c.port = host, port
	} else {
		c.ipAddr = addr
	}
	return c
}

func (c *Client) IPAddr() string { return c.ipAddr }
func (c *Client) Port() string   { return c.port }

// Read consumes the available bytes directly from the client's connection.
func (c *Client) Read(b []byte) (int, error) {
	return c.connection.Read(b)
}

// Send frames the payload and writes it to the connection as one atomic
// write under the send lock.
func (c *Client) Send(payload []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return wire.WriteFrame(c.connection, payload)
}

// Close the connection.
func (c *Client) Close() error {
	return c.connection.Close()
}

package internal

import (
	"context"

	"github.com/ubermundo/server/internal/core/client"
)

// Backend is an interface for a sub-server that handles a specific set of
// client interactions on top of the framed transport.
type Backend interface {
	// Name returns a uniquely identifying string.
	Identifier() string

	// Init is called before a Backend is started as a hook for the Backend to
	// perform any necessary initialization before it can accept clients.
	Init(ctx context.Context) error

	// SetUpClient performs any initialization on the Client needed to be
	// able to begin the session.
	SetUpClient(c *client.Client)

	// Handle is the main entry point for processing client frames. It's
	// responsible for generally handling all frames from a client as well as
	// sending any responses.
	Handle(ctx context.Context, c *client.Client, payload []byte) error

	// CleanUpClient is called once the connection is gone, regardless of how
	// it ended. It releases anything the Backend associated with the session.
	CleanUpClient(c *client.Client)
}

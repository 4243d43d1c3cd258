package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ubermundo/server/internal/core"
	"github.com/ubermundo/server/internal/core/client"
	coredebug "github.com/ubermundo/server/internal/core/debug"
	"github.com/ubermundo/server/internal/core/wire"
	"github.com/ubermundo/server/internal/web"
)

// frontend implements the concurrent client connection logic.
//
// Frames are read from any connected clients and passed to a backend
// instance, abstracting the lower level connection details away from the
// Backends.
type frontend struct {
	Address string
	Backend Backend
	Config  *core.Config
	Logger  *logrus.Logger

	connectedMu      sync.Mutex
	connectedClients map[*client.Client]struct{}

	// Populated once the socket is listening; lets tests bind port 0.
	boundAddr net.Addr
}

// Start initializes the server backend and opens a TCP socket for the specified server.
// A blocking loop for accepting client connections is spun off in its own goroutine and
// added to the WaitGroup. Context cancellations will stop the server.
func (f *frontend) Start(ctx context.Context, wg *sync.WaitGroup) error {
	if err := f.Backend.Init(ctx); err != nil {
		return fmt.Errorf("error initializing %s server: %v", f.Backend.Identifier(), err)
	}

	socket, err := f.createSocket()
	if err != nil {
		return fmt.Errorf("error creating socket on %s: %v", f.Address, err)
	}

	f.connectedClients = make(map[*client.Client]struct{})
	f.boundAddr = socket.Addr()

	wg.Add(1)
	go f.startBlockingLoop(ctx, socket, wg)

	return nil
}

// createSocket opens a TCP socket to listen for client connections on the Address
// provided to the frontend.
func (f *frontend) createSocket() (*net.TCPListener, error) {
	hostAddr, err := net.ResolveTCPAddr("tcp", f.Address)
	if err != nil {
		return nil, fmt.Errorf("error resolving address %s", err.Error())
	}

	socket, err := net.ListenTCP("tcp", hostAddr)
	if err != nil {
		return nil, fmt.Errorf("error listening on socket: %s", err.Error())
	}

	return socket, nil
}

// startBlockingLoop implements a connection handling loop that's purely responsible for
// accepting new connections and spinning off goroutines for the Backend to handle them.
func (f *frontend) startBlockingLoop(ctx context.Context, socket *net.TCPListener, wg *sync.WaitGroup) {
	defer wg.Done()

	f.Logger.Printf("[%s] waiting for connections on %v", f.Backend.Identifier(), f.Address)

	connections := make(chan *net.TCPConn)
	go func() {
		for {
			// Poll until we can accept more clients.
			for f.connectionCount() > f.Config.MaxConnections {
				time.Sleep(10 * time.Second)
			}

			connection, err := socket.AcceptTCP()
			if err != nil {
				// The socket is closed once the handle loop exits.
				if errors.Is(err, net.ErrClosed) {
					return
				}
				f.Logger.Warnf("failed to accept connection: %s", err.Error())
				continue
			}

			select {
			case connections <- connection:
			case <-ctx.Done():
				_ = connection.Close()
				return
			}
		}
	}()

	clientWg := &sync.WaitGroup{}
handleLoop:
	for {
		select {
		case <-ctx.Done():
			break handleLoop
		case connection := <-connections:
			clientWg.Add(1)
			// Note: If there is eventually a need to implement worker pooling rather than spawning
			// new goroutines for each client, this is where it should be implemented.
			go f.acceptClient(ctx, connection, clientWg)
		}
	}

	f.Logger.Infof("[%v] shutting down (waiting for connections to close)", f.Backend.Identifier())

	// Stop accepting and release the port before draining; existing
	// connections close on their own.
	if err := socket.Close(); err != nil {
		f.Logger.Warnf("failed to close listener socket: %s", err)
	}
	clientWg.Wait()
	f.Logger.Infof("[%v] exited", f.Backend.Identifier())
}

func (f *frontend) connectionCount() int {
	f.connectedMu.Lock()
	defer f.connectedMu.Unlock()
	return len(f.connectedClients)
}

// acceptClient takes a connection and initiates a session by setting up the
// Client and handing it to the Backend, then moves into the frame
// processing loop.
func (f *frontend) acceptClient(ctx context.Context, connection *net.TCPConn, wg *sync.WaitGroup) {
	defer wg.Done()

	c := client.NewClient(connection)
	c.Debug = f.Config.Debugging.PacketLoggingEnabled
	f.Backend.SetUpClient(c)

	f.Logger.Infof("[%s] accepted connection from %s", f.Backend.Identifier(), c.IPAddr())

	f.connectedMu.Lock()
	f.connectedClients[c] = struct{}{}
	f.connectedMu.Unlock()
	web.SessionOpened()

	f.processFrames(ctx, c)
}

// processFrames starts a blocking loop dedicated to reading frames sent from
// a game client and only returns once the connection has closed.
func (f *frontend) processFrames(ctx context.Context, c *client.Client) {
	defer f.closeConnectionAndRecover(f.Backend.Identifier(), c)

	for {
		select {
		case <-ctx.Done():
			// For now just allow the deferred function to close the connection.
			return
		default:
		}

		payload, err := wire.ReadFrame(c)

		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			f.Logger.Warnf("error reading from %s: %s", c.IPAddr(), err)
			break
		}

		if c.Debug {
			coredebug.LogFrame(f.Logger, "recv", c.IPAddr(), payload)
		}

		if err = f.Backend.Handle(ctx, c, payload); err != nil {
			f.Logger.Warn("error in client communication: " + err.Error())
			return
		}
	}
}

// closeConnectionAndRecover is the failsafe that catches any panics, disconnects the
// client, and removes them from the list regardless of the state of the connection.
func (f *frontend) closeConnectionAndRecover(serverName string, c *client.Client) {
	if err := recover(); err != nil {
		f.Logger.Errorf("error in client communication with %s: error=%s, trace: %s",
			c.IPAddr(), err, debug.Stack())
	}

	if err := c.Close(); err != nil {
		f.Logger.Warnf("failed to close client connection: %s", err)
	}

	f.Backend.CleanUpClient(c)

	f.connectedMu.Lock()
	delete(f.connectedClients, c)
	f.connectedMu.Unlock()
	web.SessionClosed()

	f.Logger.Infof("[%s] disconnected client %s", serverName, c.IPAddr())
}

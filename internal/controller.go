package internal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/ubermundo/server/internal/core"
	"github.com/ubermundo/server/internal/core/data"
	"github.com/ubermundo/server/internal/core/debug"
	"github.com/ubermundo/server/internal/players"
	"github.com/ubermundo/server/internal/share"
	"github.com/ubermundo/server/internal/storage"
	"github.com/ubermundo/server/internal/universe"
	"github.com/ubermundo/server/internal/web"
)

// How often the registry sweeps for players that went quiet.
const reapInterval = time.Second

// Controller is the main entrypoint for the server. It's responsible for
// initializing the shared resources (database, logging, storage, the world
// and player registries), defining the servers, and launching everything.
type Controller struct {
	Config *core.Config

	logger *logrus.Logger
	wg     sync.WaitGroup

	db          *gorm.DB
	shareServer *share.Server
	servers     []*frontend
}

func (c *Controller) Start(ctx context.Context) {
	defer c.Shutdown(ctx)

	var err error
	// Set up the logger, which will be used by all sub-servers.
	c.logger, err = core.NewLogger(c.Config)
	if err != nil {
		fmt.Println("error initializing logger:", err)
		return
	}

	// Start any debug utilities if we're configured to do so.
	if c.Config.Debugging.PprofEnabled {
		debug.StartUtilities(c.logger, c.Config.Debugging.PprofPort)
	}
	web.Start(c.logger, c.Config.Web.HTTPPort)

	dsn := c.Config.Database.SQLitePath
	if c.Config.Database.Engine == "postgres" {
		dsn = c.Config.DatabaseURL()
	}
	c.db, err = data.Initialize(c.Config.Database.Engine, dsn, c.Config.Debugging.DatabaseLoggingEnabled)
	if err != nil {
		c.logger.Errorf("error initializing database: %v", err)
		return
	}
	c.logger.Infof("connected to %s database", c.Config.Database.Engine)

	store, err := storage.New(c.Config.Storage.WorldsDir, c.logger)
	if err != nil {
		c.logger.Errorf("error initializing world storage: %v", err)
		return
	}

	worlds := universe.New(c.db, c.logger)
	if err := worlds.Load(); err != nil {
		c.logger.Errorf("error loading worlds: %v", err)
		return
	}

	registry := players.NewRegistry(c.db, c.logger, clock.New())
	registry.BindWorlds(worlds)
	if err := registry.Load(); err != nil {
		c.logger.Errorf("error loading players: %v", err)
		return
	}

	web.UpdatePlayerCount(registry.Count())
	web.UpdateWorldCount(worlds.WorldCount())

	go registry.RunReaper(ctx, reapInterval)

	// Configure and run all of our servers.
	c.declareServers(registry, worlds, store)
	c.run(ctx)
}

// Set up all of the servers we want to run.
func (c *Controller) declareServers(registry *players.Registry, worlds *universe.Universe, store *storage.Store) {
	c.shareServer = &share.Server{
		Name:     "SHARE",
		Config:   c.Config,
		Logger:   c.logger,
		Players:  registry,
		Universe: worlds,
		Storage:  store,
	}

	c.servers = []*frontend{
		{
			Address: c.Config.ShareAddress(),
			Backend: c.shareServer,
		},
	}
}

func (c *Controller) run(ctx context.Context) {
	// Start all of our servers. Failure to initialize one of the registered servers is considered terminal.
	for _, server := range c.servers {
		server.Config = c.Config
		server.Logger = c.logger

		if err := server.Start(ctx, &c.wg); err != nil {
			c.logger.Errorf("error starting %s server: %v", server.Backend.Identifier(), err)
			return
		}
	}

	// The shutdown notice has to go out on cancellation, while the sessions
	// are still connected; once the frontends drain there is nobody left to
	// tell.
	go c.announceShutdown(ctx)

	c.wg.Wait()
}

// announceShutdown broadcasts a farewell to every live session as soon as the
// run context is cancelled.
func (c *Controller) announceShutdown(ctx context.Context) {
	<-ctx.Done()
	c.shareServer.BroadcastSystemMessage("Server Is Shutting Down")
}

func (c *Controller) Shutdown(ctx context.Context) {
	// Wait for the frontends to drain their connections before the database
	// goes away underneath them.
	c.wg.Wait()

	if c.db != nil {
		if err := data.Shutdown(c.db); err != nil {
			c.logger.Warnf("error closing database connection: %v", err)
		}
	}
}

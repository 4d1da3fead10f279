package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/voltronic2mqtt/internal/config"
	"github.com/berfenger/voltronic2mqtt/internal/core/plugin"

	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/joho/godotenv/autoload"
)

const ACTOR_REQUEST_TIMEOUT = 30 * time.Second

// PluginLister returns the loaded plugins.
type PluginLister func() []*plugin.Plugin

type Server struct {
	port        uint
	httpLog     bool
	rootContext *actor.RootContext
	masterActor *actor.PID
	plugins     PluginLister
}

func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, plugins PluginLister) *http.Server {
	NewServer := &Server{
		port:        cfg.Port,
		rootContext: rootContext,
		masterActor: masterActor,
		httpLog:     cfg.HttpLog,
		plugins:     plugins,
	}

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: ACTOR_REQUEST_TIMEOUT + 5*time.Second,
	}

	return server
}

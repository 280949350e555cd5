// Package transport binds the lock service to HTTP, playing the role
// the RSM plays in the design: it receives client calls, orders them
// onto the service (trusting the underlying RSM to have already
// ordered them across replicas) and ships back the reply codes the
// protocol defines.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"time"

	"lockservd/internal/clientreg"
	"lockservd/internal/lockservice"
	"lockservd/pkg/dispatcher"
	"lockservd/pkg/logger"

	"github.com/gorilla/handlers"
)

// ErrUnexpectedServeError : Indicates that an error occurred while
// serving the root endpoint.
var ErrUnexpectedServeError = fmt.Errorf("Unexpected error occurred while serving http requests")

// ErrServerShutdownError : Indicates that an error occurred while
// shutting down the server.
var ErrServerShutdownError = fmt.Errorf("Unexpected error occurred while shutting down the server")

// Server :
// Exposes a `lockservice.Service` over HTTP. The `router` is built
// by `Serve`, and a second `Serve` call on the same instance panics,
// matching the teacher's pattern of refusing to serve twice.
//
// The `port` defines the TCP port this server listens on.
//
// The `service` is the lock service this server dispatches requests
// to.
//
// The `registry` lets clients register the endpoint their own
// revoke/retry handler is reachable at.
//
// The `log` is used to notify connection and shutdown events.
type Server struct {
	port      int
	router    *dispatcher.Router
	service   *lockservice.Service
	registry  *clientreg.Registry
	log       logger.Logger
	startedAt time.Time
}

// NewServer :
// Builds a server around an already-wired service and client
// registry. Panics are left to `Serve`, mirroring the teacher's
// convention of validating at serve time rather than construction
// time.
func NewServer(port int, service *lockservice.Service, registry *clientreg.Registry, log logger.Logger) *Server {
	return &Server{
		port:      port,
		service:   service,
		registry:  registry,
		log:       log,
		startedAt: time.Now(),
	}
}

// Serve :
// Starts listening on the configured port and blocks until a
// SIGINT is received, at which point the service's dispatchers are
// stopped and the HTTP server is drained before returning.
func (s *Server) Serve() error {
	if s.router != nil {
		panic(fmt.Errorf("Cannot start serving lock service, process already running"))
	}

	s.router = dispatcher.NewRouter(s.log)
	s.routes()

	aMethods := handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"})
	aOrigins := handlers.AllowedOrigins([]string{"*"})
	aHeaders := handlers.AllowedHeaders([]string{"Origin", "X-Requested-With", "Content-Type", "Accept"})
	corsRouter := handlers.CORS(aHeaders, aOrigins, aMethods)(s.router)

	server := &http.Server{
		Addr:    ":" + strconv.FormatInt(int64(s.port), 10),
		Handler: corsRouter,
	}

	if err := s.service.Start(); err != nil {
		return fmt.Errorf("Cannot start lock service dispatchers: %v", err)
	}

	var serveErr error
	wg := sync.WaitGroup{}
	wg.Add(1)

	go func() {
		defer func() {
			if err := recover(); err != nil {
				s.log.Trace(logger.Fatal, "server", fmt.Sprintf("Caught unexpected error while serving requests (err: %v)", err))

				serveErr = ErrUnexpectedServeError
			}

			wg.Done()

			s.log.Trace(logger.Notice, "server", "Server has stopped")
		}()

		s.log.Trace(logger.Notice, "server", "Server has started")

		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	<-stop

	s.shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil && err != http.ErrServerClosed {
		s.log.Trace(logger.Error, "server", fmt.Sprintf("Caught unexpected error while shutting down server (err: %v)", err))

		return ErrServerShutdownError
	}

	wg.Wait()

	return serveErr
}

// shutdown :
// Stops the lock service's revoke/retry dispatchers before the HTTP
// server itself drains.
func (s *Server) shutdown() {
	s.service.Stop()
}

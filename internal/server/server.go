package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/userhub/apiserver/config"
	"github.com/userhub/apiserver/internal/db"
	"github.com/userhub/apiserver/internal/events"
	"github.com/userhub/apiserver/internal/handlers"
	"github.com/userhub/apiserver/internal/logging"
	"github.com/userhub/apiserver/internal/mq"
	"github.com/userhub/apiserver/internal/services"
	"github.com/userhub/apiserver/internal/store"
)

// Server wraps the HTTP server, its router and the resources it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	mq         *mq.MQ
}

// New opens the database and, when configured, the event broker, then
// wires the user service behind a chi router.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	broker, err := mq.Open(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	database := store.NewDB(dbConn)
	opts := []services.UserServiceOption{
		services.WithDefaultActive(cfg.Users.DefaultActive),
	}
	if broker != nil {
		opts = append(opts, services.WithEventPublisher(events.NewPublisher(broker, cfg.Events.Channel)))
	}
	userService := services.NewUserService(database, store.NewUserRepository(), opts...)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.Middleware,
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz(database))
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, userService)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 65 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		mq:         broker,
	}, nil
}

// Router exposes the chi router, mainly for in-process tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then releases the broker and the
// database pool.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.mq != nil {
		err = errors.Join(err, s.mq.Close())
	}
	if s.db != nil {
		err = errors.Join(err, s.db.Close())
	}
	return err
}

package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/driftworks/playdeck/internal/config"
	"github.com/driftworks/playdeck/internal/database"
	"github.com/driftworks/playdeck/internal/library"
	"github.com/driftworks/playdeck/internal/playback"
	"github.com/driftworks/playdeck/internal/web/handlers"
	"github.com/driftworks/playdeck/internal/web/middleware"
	"github.com/driftworks/playdeck/internal/web/sse"
)

// Server is the JSON API surface. Session and queue changes flow out over
// SSE; the request/response side only triggers actions and reads snapshots.
type Server struct {
	db         *database.DB
	port       int
	bind       string
	allowedNet *net.IPNet
	router     *chi.Mux
	sseBroker  *sse.Broker
	resolver   *playback.Resolver
	store      *playback.Store
	queue      *playback.Queue
	loading    *playback.LoadingStore
	library    *library.Cache
	handlers   *handlers.Handlers
}

// NewServer creates a web server wired to the playback engine. The store and
// loading subscriptions are registered here so every commit reaches connected
// clients regardless of which code path produced it.
func NewServer(db *database.DB, port int, bind string, allowedNet *net.IPNet, resolver *playback.Resolver, store *playback.Store, queue *playback.Queue, loading *playback.LoadingStore, libraryCache *library.Cache, userID string) *Server {
	s := &Server{
		db:         db,
		port:       port,
		bind:       bind,
		allowedNet: allowedNet,
		router:     chi.NewRouter(),
		sseBroker:  sse.NewBroker(),
		resolver:   resolver,
		store:      store,
		queue:      queue,
		loading:    loading,
		library:    libraryCache,
	}

	loader := config.NewLoader(db)
	s.handlers = handlers.New(db, loader, resolver, store, queue, loading, libraryCache, s.sseBroker, userID)

	store.Subscribe(func(session playback.Session) {
		s.sseBroker.Broadcast(sse.Event{
			Type: sse.EventSessionChanged,
			Data: map[string]any{
				"displayName":   session.DisplayName(),
				"streamUrl":     session.StreamURL,
				"playSessionId": session.PlaySessionID,
			},
		})
	})
	loading.Subscribe(func(active bool) {
		s.sseBroker.Broadcast(sse.Event{
			Type: sse.EventPlaybackLoading,
			Data: map[string]any{"loading": active},
		})
	})

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	// Global middleware (applied to all routes, except timeout which is per-group)
	r.Use(chimiddleware.RequestID)
	// AllowSubnet must come BEFORE RealIP so we check the actual connection source
	r.Use(middleware.AllowSubnet(s.allowedNet))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)
	// Note: Timeout middleware is applied per-group, not globally, to allow SSE long-lived connections

	// SSE endpoint - no timeout (long-lived connections)
	r.Group(func(r chi.Router) {
		r.Get("/api/events", s.sseBroker.ServeHTTP)
	})

	h := s.handlers

	r.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(60 * time.Second))

		r.Route("/playback", func(r chi.Router) {
			r.Post("/play", h.PlaybackPlay)
			r.Post("/queue", h.PlaybackQueue)
			r.Get("/queue", h.PlaybackQueueState)
			r.Post("/next", h.PlaybackNext)
			r.Post("/previous", h.PlaybackPrevious)
			r.Post("/jump", h.PlaybackJump)
			r.Post("/subtitles", h.PlaybackSubtitles)
			r.Post("/progress", h.PlaybackProgress)
			r.Get("/session", h.PlaybackSession)
		})

		r.Route("/library", func(r chi.Router) {
			r.Get("/latest", h.LibraryLatest)
			r.Post("/refresh", h.LibraryRefresh)
		})

		r.Route("/history", func(r chi.Router) {
			r.Get("/recent", h.HistoryRecent)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", h.SettingsList)
			r.Put("/", h.SettingsUpdate)
			r.Delete("/{key}", h.SettingsDelete)
		})
	})
}

// Start runs the HTTP server until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	var addr string
	if s.bind != "" {
		addr = fmt.Sprintf("%s:%d", s.bind, s.port)
	} else {
		addr = fmt.Sprintf(":%d", s.port)
	}

	server := &http.Server{
		Addr:    addr,
		Handler: s.router,
		// ReadTimeout is for reading request body
		ReadTimeout: 15 * time.Second,
		// WriteTimeout disabled (0) to allow SSE long-lived connections
		// Chi middleware timeout (60s) protects regular requests
		WriteTimeout: 0,
		// IdleTimeout for keep-alive connections between requests
		IdleTimeout: 120 * time.Second,
	}

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down HTTP server")
		// Stop SSE broker first to close all client connections gracefully
		s.sseBroker.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

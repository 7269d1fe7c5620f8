package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/daaku/ghwebhook/internal/delivery"
)

// Server receives GitHub deliveries on the configured endpoints and logs the
// verified ones.
type Server struct {
	config   Config
	recorder DeliveryRecorder
	logger   *slog.Logger
	server   *http.Server
	router   *chi.Mux

	// endpoints maps URL paths to their configurations
	endpoints map[string]*endpoint
}

type endpoint struct {
	EndpointConfig
	verifier *Verifier
}

// New creates a new receiver server. Every endpoint must carry a non-empty
// secret.
func New(config Config, recorder DeliveryRecorder, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	endpoints := make(map[string]*endpoint, len(config.Endpoints))
	for _, ep := range config.Endpoints {
		if _, dup := endpoints[ep.Path]; dup {
			return nil, fmt.Errorf("webhook endpoint %q: duplicate path", ep.Path)
		}
		verifier, err := NewVerifier(ep.Secret)
		if err != nil {
			return nil, fmt.Errorf("webhook endpoint %q: %w", ep.Path, err)
		}

		if ep.MaxBodySize == 0 {
			ep.MaxBodySize = DefaultMaxBodySize
		}
		if ep.SignatureHeader == "" {
			ep.SignatureHeader = SignatureHeader
		}

		endpoints[ep.Path] = &endpoint{EndpointConfig: ep, verifier: verifier}
	}

	s := &Server{
		config:    config,
		recorder:  recorder,
		logger:    logger,
		endpoints: endpoints,
	}
	s.router = s.setupRoutes()
	return s, nil
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the receiver HTTP server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting", "listen", s.config.Listen, "endpoints", len(s.endpoints))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	for path, ep := range s.endpoints {
		verify := ep.verifier.Middleware(
			WithSignatureHeader(ep.SignatureHeader),
			WithMaxBodySize(ep.MaxBodySize),
			WithLogger(s.logger),
		)
		r.With(verify).Post(path, s.handleDelivery(ep))
	}

	return r
}

// loggingMiddleware logs HTTP requests (excludes payloads and signatures).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// handleDelivery runs after signature verification.
func (s *Server) handleDelivery(ep *endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, ok := PayloadFromContext(r.Context())
		if !ok {
			s.logger.Error("delivery handler reached without verified payload", "path", ep.Path)
			respondError(w, http.StatusInternalServerError, errNoPayload.Error())
			return
		}

		d := DeliveryFromRequest(r)
		if d.Event == "" {
			respondError(w, http.StatusBadRequest, "event header missing")
			return
		}

		if !ep.accepts(d.Event) {
			s.logger.Info("webhook event ignored", "path", ep.Path, "event", d.Event, "delivery_id", d.ID)
			respondJSON(w, http.StatusAccepted, DeliveryResponse{DeliveryID: d.ID, Event: d.Event, Status: StatusIgnored})
			return
		}

		rec, duplicate, err := s.recorder.Record(r.Context(), delivery.RecordRequest{
			DeliveryID: d.ID,
			Endpoint:   ep.Path,
			Event:      d.Event,
			Action:     Action(payload),
			HookID:     d.HookID,
			Body:       payload.Bytes(),
		})
		if err != nil {
			s.logger.Error("failed to record delivery",
				"path", ep.Path,
				"delivery_id", d.ID,
				"error", err,
			)
			respondError(w, http.StatusInternalServerError, "failed to record delivery")
			return
		}

		if duplicate {
			s.logger.Info("webhook delivery already recorded", "path", ep.Path, "delivery_id", rec.DeliveryID)
			respondJSON(w, http.StatusOK, DeliveryResponse{DeliveryID: rec.DeliveryID, Event: rec.Event, Status: StatusDuplicate})
			return
		}

		s.logger.Info("webhook delivery accepted",
			"path", ep.Path,
			"event", rec.Event,
			"action", rec.Action,
			"delivery_id", rec.DeliveryID,
			"body_size", payload.Len(),
		)
		respondJSON(w, http.StatusAccepted, DeliveryResponse{DeliveryID: rec.DeliveryID, Event: rec.Event, Status: StatusAccepted})
	}
}

func (ep *endpoint) accepts(event string) bool {
	return event == EventPing || len(ep.Events) == 0 || slices.Contains(ep.Events, event)
}

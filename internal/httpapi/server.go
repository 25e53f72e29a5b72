// Package httpapi exposes the sampling service over HTTP: model listing,
// status, the NDJSON /sample stream and the pure /schedule and /tiles
// helpers.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"diffusiond/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() []types.Model
	Status() types.StatusResponse
	Sample(ctx context.Context, req types.SampleRequest, w io.Writer, flush func()) error
	Ready() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	// Compression only for the small JSON endpoints; the sample stream must
	// flush line by line.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5, "application/json"))
		r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, types.ModelsResponse{Models: svc.ListModels()})
		})
		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, svc.Status())
		})
		r.Post("/schedule", handleSchedule)
		r.Post("/tiles", handleTiles)
	})

	r.Post("/sample", inflight("/sample", func(w http.ResponseWriter, r *http.Request) {
		handleSample(svc, w, r)
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)
	return r
}

func handleSample(svc Service, w http.ResponseWriter, r *http.Request) {
	var req types.SampleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	lvl := requestLogLevel(r)
	log := requestLogger(r).With().Str("path", r.URL.Path).Str("model", req.Model).Logger()
	if lvl >= LevelInfo {
		log.Info().Int("steps", req.Steps).Bool("tiled", req.TileSample).Msg("sample start")
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	sw := &streamWriter{w: w}
	var out io.Writer = sw
	if lvl >= LevelDebug {
		out = io.MultiWriter(sw, &eventLineWriter{log: log})
	}
	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}

	ctx, cancel := sampleContext(r.Context())
	defer cancel()
	start := time.Now()
	err := svc.Sample(ctx, req, out, flush)
	if err == nil {
		if lvl >= LevelInfo {
			log.Info().Int("status", http.StatusOK).Dur("dur", time.Since(start)).Msg("sample end")
		}
		return
	}
	// Client went away or the server is shutting down: nothing to report.
	if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
		if lvl >= LevelInfo {
			log.Info().Err(err).Dur("dur", time.Since(start)).Msg("sample aborted")
		}
		return
	}
	status := statusFor(err)
	if lvl >= LevelError {
		ev := log.Info()
		if status >= http.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Int("status", status).Bool("streamed", sw.started).Dur("dur", time.Since(start)).Err(err).Msg("sample end")
	}
	// Once the stream has started the service has already written an error
	// event; the status line can no longer change.
	if sw.started {
		return
	}
	if status == http.StatusTooManyRequests {
		IncrementBackpressure("queue_full")
	}
	writeJSONError(w, status, err.Error())
}

// streamWriter records whether any stream bytes reached the client.
type streamWriter struct {
	w       io.Writer
	started bool
}

func (s *streamWriter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		s.started = true
	}
	return s.w.Write(p)
}

// decodeJSON enforces the JSON content type and body limit. It writes the
// error response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}

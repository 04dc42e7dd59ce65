// Package server exposes the Hausgeist HTTP surface and runs the
// generation pipeline.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hausgeist-ai/hausgeist/pkg/address"
	"github.com/hausgeist-ai/hausgeist/pkg/cache"
	"github.com/hausgeist-ai/hausgeist/pkg/config"
	"github.com/hausgeist-ai/hausgeist/pkg/genlog"
	"github.com/hausgeist-ai/hausgeist/pkg/models"
	"github.com/hausgeist-ai/hausgeist/pkg/providers"
	"github.com/hausgeist-ai/hausgeist/pkg/queue"
	"github.com/hausgeist-ai/hausgeist/pkg/ratelimit"
	"github.com/hausgeist-ai/hausgeist/pkg/styles"
	"github.com/hausgeist-ai/hausgeist/pkg/tracker"
)

const (
	defaultStreetSize = "600x400"
	defaultAerialSize = "600x400"
	defaultAerialZoom = 19
	defaultFOV        = 80
)

// Deps are the injected collaborators; the mockable seam for tests.
type Deps struct {
	StreetView providers.StreetView
	Aerial     providers.Aerial
	Vision     providers.Vision
	Synth      providers.Synthesizer
	Styles     *styles.Registry
	GenLog     *genlog.Logger
	Tracker    tracker.Tracker
}

// Server is the Hausgeist HTTP service. Caches, queue, and limiters are
// constructed once here and shared across all requests.
type Server struct {
	cfg  *config.Config
	deps Deps

	streetCache   *cache.Cache[providers.Image]
	aerialCache   *cache.Cache[providers.Image]
	identityCache *cache.Cache[string]
	queue         *queue.Queue[providers.Synthesis]
	general       *ratelimit.Limiter
	generation    *ratelimit.Limiter
	flight        singleflight.Group

	mux *http.ServeMux
}

// New creates a Server wired with all dependencies.
func New(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:           cfg,
		deps:          deps,
		streetCache:   cache.New[providers.Image](cfg.Cache.StreetView.MaxSize, cfg.Cache.StreetView.TTL),
		aerialCache:   cache.New[providers.Image](cfg.Cache.Aerial.MaxSize, cfg.Cache.Aerial.TTL),
		identityCache: cache.New[string](cfg.Cache.Identity.MaxSize, cfg.Cache.Identity.TTL),
		queue:         queue.New[providers.Synthesis](cfg.Queue.MaxConcurrent),
		general:       ratelimit.New(cfg.RateLimit.GeneralPerMinute, time.Minute),
		generation:    ratelimit.New(cfg.RateLimit.GenerationPerMinute, time.Minute),
		mux:           http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /clear-cache", s.handleClearCache)
	s.mux.HandleFunc("GET /stats", s.handleStats)
	s.mux.HandleFunc("GET /streetview/metadata", s.handleStreetViewMetadata)
	s.mux.HandleFunc("GET /streetview/image", s.handleStreetViewImage)
	s.mux.HandleFunc("GET /streetview/fetch", s.handleStreetViewFetch)
	s.mux.HandleFunc("GET /aerialview/fetch", s.handleAerialFetch)
	s.mux.HandleFunc("POST /vision/analyze", s.handleVisionAnalyze)
	s.mux.HandleFunc("POST /generate", s.handleGenerate)
	s.mux.HandleFunc("POST /generate-v2", s.handleGenerateV2)
	s.mux.HandleFunc("POST /capture-email", s.handleCaptureEmail)
	s.mux.HandleFunc("POST /api/generate", s.handleRetired)
	return s
}

// ServeHTTP applies the general admission gate, then routes. A panic in a
// handler becomes a 500 response instead of killing the process.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("panic serving %s: %v", r.URL.Path, rec)
			writeJSONError(w, http.StatusInternalServerError, "internal server error")
		}
	}()

	ip := ratelimit.ClientIP(r)
	if ok, retryAfter := s.general.Allow(ip); !ok {
		writeRateLimited(w, retryAfter)
		return
	}
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("hausgeist listening on %s", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"hasStreetViewKey": s.cfg.StreetViewKey != "",
		"hasGoogleAIKey":   s.cfg.GoogleAIKey != "",
		"queue":            s.queue.Status(),
		"cache": map[string]int{
			"streetView": s.streetCache.Len(),
			"aerial":     s.aerialCache.Len(),
			"identity":   s.identityCache.Len(),
		},
	})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	s.streetCache.Clear()
	s.aerialCache.Clear()
	s.identityCache.Clear()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "all caches cleared",
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.GenLog.Stats()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to read generation log")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleStreetViewMetadata(w http.ResponseWriter, r *http.Request) {
	addr, ok := address.Sanitize(r.URL.Query().Get("address"))
	if !ok {
		writeJSONError(w, http.StatusBadRequest, invalidAddressMessage)
		return
	}

	cov, err := s.deps.StreetView.Coverage(r.Context(), addr)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "street view metadata failed")
		return
	}
	writeJSON(w, http.StatusOK, cov)
}

func (s *Server) handleStreetViewImage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	addr, ok := address.Sanitize(q.Get("address"))
	if !ok {
		writeJSONError(w, http.StatusBadRequest, invalidAddressMessage)
		return
	}

	size := sizeParam(q.Get("size"), defaultStreetSize)
	fov := intParam(q.Get("fov"), defaultFOV)
	pitch := intParam(q.Get("pitch"), 0)
	heading := intParam(q.Get("heading"), 0)

	url := s.deps.StreetView.ImageURL(addr, size, fov, pitch, heading)
	writeJSON(w, http.StatusOK, map[string]any{
		"url":  url,
		"mock": s.cfg.StreetViewKey == "",
	})
}

func (s *Server) handleStreetViewFetch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	addr, ok := address.Sanitize(q.Get("address"))
	if !ok {
		writeJSONError(w, http.StatusBadRequest, invalidAddressMessage)
		return
	}

	// The cache holds only default-size imagery, the size the pipeline
	// consumes. Custom sizes go straight to the provider.
	size := sizeParam(q.Get("size"), defaultStreetSize)
	var img providers.Image
	var err error
	if size == defaultStreetSize {
		img, _, err = s.streetImage(r.Context(), addr)
	} else {
		img, err = s.deps.StreetView.Fetch(r.Context(), addr, size)
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "street view fetch failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"base64":   base64.StdEncoding.EncodeToString(img.Data),
		"mimeType": img.MimeType,
		"mock":     img.Mock,
	})
}

func (s *Server) handleAerialFetch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	addr, ok := address.Sanitize(q.Get("address"))
	if !ok {
		writeJSONError(w, http.StatusBadRequest, invalidAddressMessage)
		return
	}

	size := sizeParam(q.Get("size"), defaultAerialSize)
	zoom := intParam(q.Get("zoom"), defaultAerialZoom)
	var img providers.Image
	var err error
	if size == defaultAerialSize && zoom == defaultAerialZoom {
		img, _, err = s.aerialImage(r.Context(), addr)
	} else {
		img, err = s.deps.Aerial.Fetch(r.Context(), addr, size, zoom)
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "aerial fetch failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"base64":   base64.StdEncoding.EncodeToString(img.Data),
		"mimeType": img.MimeType,
		"mock":     img.Mock,
	})
}

func (s *Server) handleVisionAnalyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ImageBase64 string `json:"imageBase64"`
		MimeType    string `json:"mimeType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil || len(data) == 0 {
		writeJSONError(w, http.StatusBadRequest, "imageBase64 is not valid base64")
		return
	}
	if req.MimeType == "" {
		req.MimeType = "image/jpeg"
	}

	img := providers.Image{Data: data, MimeType: req.MimeType}
	desc, err := s.deps.Vision.ExtractIdentity(r.Context(), img)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "vision analysis failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"description": desc,
		"mock":        s.deps.Vision.Mock(),
	})
}

func (s *Server) handleCaptureEmail(w http.ResponseWriter, r *http.Request) {
	var lead models.Lead
	if err := json.NewDecoder(r.Body).Decode(&lead); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !strings.Contains(lead.Email, "@") {
		writeJSONError(w, http.StatusBadRequest, "invalid email")
		return
	}
	if lead.Timestamp == "" {
		lead.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	if err := s.deps.GenLog.LogLead(lead); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to record lead")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleRetired(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, http.StatusGone, "this endpoint has been retired; use POST /generate-v2")
}

const invalidAddressMessage = "address is missing, malformed, or outside supported regions (United States, Canada)"

func sizeParam(raw, fallback string) string {
	if raw == "" {
		return fallback
	}
	// WIDTHxHEIGHT, both bounded; anything else falls back.
	parts := strings.SplitN(raw, "x", 2)
	if len(parts) != 2 {
		return fallback
	}
	w, errW := strconv.Atoi(parts[0])
	h, errH := strconv.Atoi(parts[1])
	if errW != nil || errH != nil || w < 1 || h < 1 || w > 1280 || h > 1280 {
		return fallback
	}
	return raw
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":%q}`+"\n", message)
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int(retryAfter.Seconds()) + 1
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeJSONError(w, http.StatusTooManyRequests,
		fmt.Sprintf("rate limit exceeded, retry in %ds", secs))
}

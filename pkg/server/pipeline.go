package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hausgeist-ai/hausgeist/pkg/address"
	"github.com/hausgeist-ai/hausgeist/pkg/models"
	"github.com/hausgeist-ai/hausgeist/pkg/providers"
	"github.com/hausgeist-ai/hausgeist/pkg/ratelimit"
)

// generateRequest is the body of both generation endpoints.
type generateRequest struct {
	Address string `json:"address"`
	StyleID string `json:"styleId"`
}

// imagePayload is a generated or substituted image in a JSON response.
type imagePayload struct {
	Base64   string `json:"base64"`
	MimeType string `json:"mimeType"`
}

// blurPhrases mark extracted identities derived from obscured imagery.
// Continuing past one of these would manufacture fictitious detail.
var blurPhrases = []string{
	"privacy",
	"blurred",
	"blurring",
	"obscured",
	"pixelated",
	"impossible to determine",
	"cannot be determined",
	"unable to determine",
}

func privacyObscured(identity string) bool {
	lower := strings.ToLower(identity)
	for _, p := range blurPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// handleGenerateV2 runs the full pipeline: validate, coverage check,
// acquire imagery, extract identity, synthesize through the queue.
func (s *Server) handleGenerateV2(w http.ResponseWriter, r *http.Request) {
	if !s.admitGeneration(w, r) {
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Validation failures cost nothing and are never logged as attempts.
	addr, ok := address.Sanitize(req.Address)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, invalidAddressMessage)
		return
	}
	def, ok := s.deps.Styles.Resolve(req.StyleID)
	if !ok {
		writeJSONError(w, http.StatusBadRequest,
			"unknown styleId, valid styles: "+strings.Join(s.deps.Styles.IDs(), ", "))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	requestID := uuid.NewString()
	var hits models.CacheHits
	var cost float64

	cov, err := s.deps.StreetView.Coverage(ctx, addr)
	if err != nil {
		s.failGeneration(w, addr, req.StyleID, requestID, start, hits, cost, err)
		return
	}
	if !cov.Available {
		s.respondFallback(w, addr, req.StyleID, requestID, start, hits, cost, "noStreetView",
			"no street-level imagery is available for this address")
		return
	}

	street, streetHit, err := s.streetImage(ctx, addr)
	if err != nil {
		// No viable input without the street image.
		s.failGeneration(w, addr, req.StyleID, requestID, start, hits, cost, err)
		return
	}
	hits.StreetView = streetHit
	if !streetHit {
		cost += providers.CostStreetViewImage
	}

	aerial, aerialHit, aerialErr := s.aerialImage(ctx, addr)
	if aerialErr != nil {
		// Non-fatal: continue street-only.
		log.Printf("aerial fetch failed for %q: %v", addr, aerialErr)
	} else {
		hits.Aerial = aerialHit
		if !aerialHit {
			cost += providers.CostAerialImage
		}
	}

	identity, identityHit, err := s.houseIdentity(ctx, addr, street)
	if err != nil {
		s.failGeneration(w, addr, req.StyleID, requestID, start, hits, cost, err)
		return
	}
	hits.Identity = identityHit
	if !identityHit {
		cost += providers.CostIdentityExtraction
	}

	if privacyObscured(identity) {
		s.respondFallback(w, addr, req.StyleID, requestID, start, hits, cost, "blurredAddress",
			"the imagery for this address is privacy-blurred, so its features cannot be extracted")
		return
	}

	prompt := s.deps.Styles.Prompt(def, address.Locality(addr), identity)
	var refs []providers.Image
	if def.UseReference {
		refs = append(refs, street)
		if aerialErr == nil {
			refs = append(refs, aerial)
		}
	}

	cost += providers.CostImageGeneration
	result, err := s.queue.Add(ctx, func() (providers.Synthesis, error) {
		return s.deps.Synth.Synthesize(ctx, prompt, refs)
	})
	if err != nil {
		s.failGeneration(w, addr, req.StyleID, requestID, start, hits, cost, err)
		return
	}

	s.recordGeneration(models.GenerationLogEntry{
		Timestamp:     time.Now().UTC(),
		RequestID:     requestID,
		Address:       addr,
		StyleID:       req.StyleID,
		Success:       true,
		DurationMs:    time.Since(start).Milliseconds(),
		CacheHits:     hits,
		EstimatedCost: cost,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"identity": identity,
		"generatedImage": imagePayload{
			Base64:   base64.StdEncoding.EncodeToString(result.Data),
			MimeType: result.MimeType,
		},
		"mock":  result.Mock,
		"model": result.Model,
	})
}

// handleGenerate is the legacy single-shot pipeline: no coverage gate, no
// fallback catalog, but the same caches, queue, and logging.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if !s.admitGeneration(w, r) {
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	addr, ok := address.Sanitize(req.Address)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, invalidAddressMessage)
		return
	}
	def, ok := s.deps.Styles.Resolve(req.StyleID)
	if !ok {
		writeJSONError(w, http.StatusBadRequest,
			"unknown styleId, valid styles: "+strings.Join(s.deps.Styles.IDs(), ", "))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	requestID := uuid.NewString()
	var hits models.CacheHits
	var cost float64

	street, streetHit, err := s.streetImage(ctx, addr)
	if err != nil {
		s.failGeneration(w, addr, req.StyleID, requestID, start, hits, cost, err)
		return
	}
	hits.StreetView = streetHit
	if !streetHit {
		cost += providers.CostStreetViewImage
	}

	aerial, aerialHit, aerialErr := s.aerialImage(ctx, addr)
	if aerialErr != nil {
		log.Printf("aerial fetch failed for %q: %v", addr, aerialErr)
	} else {
		hits.Aerial = aerialHit
		if !aerialHit {
			cost += providers.CostAerialImage
		}
	}

	identity, identityHit, err := s.houseIdentity(ctx, addr, street)
	if err != nil {
		s.failGeneration(w, addr, req.StyleID, requestID, start, hits, cost, err)
		return
	}
	hits.Identity = identityHit
	if !identityHit {
		cost += providers.CostIdentityExtraction
	}

	prompt := s.deps.Styles.Prompt(def, address.Locality(addr), identity)
	var refs []providers.Image
	if def.UseReference {
		refs = append(refs, street)
		if aerialErr == nil {
			refs = append(refs, aerial)
		}
	}

	cost += providers.CostImageGeneration
	result, err := s.queue.Add(ctx, func() (providers.Synthesis, error) {
		return s.deps.Synth.Synthesize(ctx, prompt, refs)
	})
	if err != nil {
		s.failGeneration(w, addr, req.StyleID, requestID, start, hits, cost, err)
		return
	}

	s.recordGeneration(models.GenerationLogEntry{
		Timestamp:     time.Now().UTC(),
		RequestID:     requestID,
		Address:       addr,
		StyleID:       req.StyleID,
		Success:       true,
		DurationMs:    time.Since(start).Milliseconds(),
		CacheHits:     hits,
		EstimatedCost: cost,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success":             true,
		"streetViewUrl":       s.deps.StreetView.ImageURL(addr, defaultStreetSize, defaultFOV, 0, 0),
		"aerialViewUrl":       s.deps.Aerial.ImageURL(addr, defaultAerialSize, defaultAerialZoom),
		"semanticDescription": identity,
		"prompt":              prompt,
		"generatedImage": imagePayload{
			Base64:   base64.StdEncoding.EncodeToString(result.Data),
			MimeType: result.MimeType,
		},
		"mock": result.Mock,
	})
}

// admitGeneration applies the strict generation-rate gate after the general
// gate has already passed in ServeHTTP.
func (s *Server) admitGeneration(w http.ResponseWriter, r *http.Request) bool {
	ip := ratelimit.ClientIP(r)
	if ok, retryAfter := s.generation.Allow(ip); !ok {
		writeRateLimited(w, retryAfter)
		return false
	}
	return true
}

// respondFallback substitutes a pre-rendered catalog home. The reason flag
// is "noStreetView" or "blurredAddress"; the response names the substituted
// subject so the client can disclose it.
func (s *Server) respondFallback(w http.ResponseWriter, addr, styleID, requestID string, start time.Time, hits models.CacheHits, cost float64, reason, message string) {
	home, image, ok := s.deps.Styles.Fallback(styleID, address.CacheKey(addr))
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "no fallback imagery available for style "+styleID)
		return
	}
	if image == nil {
		image = providers.PlaceholderPNG
	}

	s.recordGeneration(models.GenerationLogEntry{
		Timestamp:     time.Now().UTC(),
		RequestID:     requestID,
		Address:       addr,
		StyleID:       styleID,
		Success:       true,
		Fallback:      true,
		DurationMs:    time.Since(start).Milliseconds(),
		CacheHits:     hits,
		EstimatedCost: cost,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		reason:         true,
		"message":      message,
		"fallbackHome": home.Subject,
		"generatedImage": imagePayload{
			Base64:   base64.StdEncoding.EncodeToString(image),
			MimeType: "image/png",
		},
		"model": "fallback",
	})
}

// failGeneration reports a pipeline failure to the caller and logs it.
// Failures are never silently swallowed and never retried beyond the
// in-stage fallbacks.
func (s *Server) failGeneration(w http.ResponseWriter, addr, styleID, requestID string, start time.Time, hits models.CacheHits, cost float64, err error) {
	log.Printf("generation failed for %q (%s): %v", addr, styleID, err)

	s.recordGeneration(models.GenerationLogEntry{
		Timestamp:     time.Now().UTC(),
		RequestID:     requestID,
		Address:       addr,
		StyleID:       styleID,
		Success:       false,
		DurationMs:    time.Since(start).Milliseconds(),
		Error:         err.Error(),
		CacheHits:     hits,
		EstimatedCost: cost,
	})

	writeJSONError(w, http.StatusInternalServerError, "generation failed: "+err.Error())
}

// recordGeneration appends the log entry and, asynchronously, the usage row.
func (s *Server) recordGeneration(entry models.GenerationLogEntry) {
	if err := s.deps.GenLog.Log(entry); err != nil {
		log.Printf("generation log error: %v", err)
	}
	if s.deps.Tracker == nil {
		return
	}
	go func() {
		err := s.deps.Tracker.Record(context.Background(), models.UsageRecord{
			RequestID:     entry.RequestID,
			StyleID:       entry.StyleID,
			Success:       entry.Success,
			Fallback:      entry.Fallback,
			CacheHits:     entry.CacheHits,
			DurationMs:    entry.DurationMs,
			EstimatedCost: entry.EstimatedCost,
			CreatedAt:     entry.Timestamp,
		})
		if err != nil {
			log.Printf("usage record error: %v", err)
		}
	}()
}

// streetImage returns the street-level image for addr, serving from cache
// when possible. Concurrent misses for the same key share one fetch.
func (s *Server) streetImage(ctx context.Context, addr string) (providers.Image, bool, error) {
	key := address.CacheKey(addr)
	if img, ok := s.streetCache.Get(key); ok {
		return img, true, nil
	}

	v, err, _ := s.flight.Do("street:"+key, func() (any, error) {
		img, err := s.deps.StreetView.Fetch(ctx, addr, defaultStreetSize)
		if err != nil {
			return nil, err
		}
		s.streetCache.Set(key, img)
		return img, nil
	})
	if err != nil {
		return providers.Image{}, false, err
	}
	return v.(providers.Image), false, nil
}

// aerialImage is the overhead counterpart of streetImage.
func (s *Server) aerialImage(ctx context.Context, addr string) (providers.Image, bool, error) {
	key := address.CacheKey(addr)
	if img, ok := s.aerialCache.Get(key); ok {
		return img, true, nil
	}

	v, err, _ := s.flight.Do("aerial:"+key, func() (any, error) {
		img, err := s.deps.Aerial.Fetch(ctx, addr, defaultAerialSize, defaultAerialZoom)
		if err != nil {
			return nil, err
		}
		s.aerialCache.Set(key, img)
		return img, nil
	})
	if err != nil {
		return providers.Image{}, false, err
	}
	return v.(providers.Image), false, nil
}

// houseIdentity returns the structured feature extraction for addr,
// serving from cache when possible.
func (s *Server) houseIdentity(ctx context.Context, addr string, street providers.Image) (string, bool, error) {
	key := address.CacheKey(addr)
	if identity, ok := s.identityCache.Get(key); ok {
		return identity, true, nil
	}

	v, err, _ := s.flight.Do("identity:"+key, func() (any, error) {
		identity, err := s.deps.Vision.ExtractIdentity(ctx, street)
		if err != nil {
			return nil, err
		}
		s.identityCache.Set(key, identity)
		return identity, nil
	})
	if err != nil {
		return "", false, err
	}
	return v.(string), false, nil
}

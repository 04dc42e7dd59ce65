package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hausgeist-ai/hausgeist/pkg/config"
	"github.com/hausgeist-ai/hausgeist/pkg/genlog"
	"github.com/hausgeist-ai/hausgeist/pkg/providers"
	"github.com/hausgeist-ai/hausgeist/pkg/styles"
)

// fakeStreetView counts calls so tests can assert that validation failures
// and cache hits never reach the provider.
type fakeStreetView struct {
	available     bool
	fetchErr      error
	coverageCalls int
	fetchCalls    int
}

func (f *fakeStreetView) Coverage(ctx context.Context, address string) (providers.Coverage, error) {
	f.coverageCalls++
	status := "OK"
	if !f.available {
		status = "ZERO_RESULTS"
	}
	return providers.Coverage{Status: status, Available: f.available}, nil
}

func (f *fakeStreetView) ImageURL(address, size string, fov, pitch, heading int) string {
	return "https://example.test/streetview"
}

func (f *fakeStreetView) Fetch(ctx context.Context, address, size string) (providers.Image, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return providers.Image{}, f.fetchErr
	}
	return providers.Image{Data: []byte("street"), MimeType: "image/jpeg"}, nil
}

type fakeAerial struct {
	fetchErr   error
	fetchCalls int
}

func (f *fakeAerial) ImageURL(address, size string, zoom int) string {
	return "https://example.test/aerial"
}

func (f *fakeAerial) Fetch(ctx context.Context, address, size string, zoom int) (providers.Image, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return providers.Image{}, f.fetchErr
	}
	return providers.Image{Data: []byte("aerial"), MimeType: "image/png"}, nil
}

type fakeVision struct {
	identity string
	calls    int
}

func (f *fakeVision) ExtractIdentity(ctx context.Context, img providers.Image) (string, error) {
	f.calls++
	return f.identity, nil
}

func (f *fakeVision) Analyze(ctx context.Context, img providers.Image, instructions string) (string, error) {
	f.calls++
	return f.identity, nil
}

func (f *fakeVision) Mock() bool { return false }

type fakeSynth struct {
	err      error
	calls    int
	lastRefs []providers.Image
}

func (f *fakeSynth) Synthesize(ctx context.Context, prompt string, refs []providers.Image) (providers.Synthesis, error) {
	f.calls++
	f.lastRefs = refs
	if f.err != nil {
		return providers.Synthesis{}, f.err
	}
	return providers.Synthesis{Data: providers.PlaceholderPNG, MimeType: "image/png", Model: "test-model"}, nil
}

type testEnv struct {
	srv    *Server
	street *fakeStreetView
	aerial *fakeAerial
	vision *fakeVision
	synth  *fakeSynth
}

const goodIdentity = "Two stories. Gable roof. Four windows up front."

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.FallbackDir = t.TempDir()
	cfg.RateLimit.GenerationPerMinute = 100
	if mutate != nil {
		mutate(cfg)
	}

	registry, err := styles.Load(cfg.FallbackDir)
	if err != nil {
		t.Fatal(err)
	}
	gl, err := genlog.New(cfg.DataDir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = gl.Close() })

	env := &testEnv{
		street: &fakeStreetView{available: true},
		aerial: &fakeAerial{},
		vision: &fakeVision{identity: goodIdentity},
		synth:  &fakeSynth{},
	}
	env.srv = New(cfg, Deps{
		StreetView: env.street,
		Aerial:     env.aerial,
		Vision:     env.vision,
		Synth:      env.synth,
		Styles:     registry,
		GenLog:     gl,
	})
	return env
}

func postJSON(t *testing.T, srv *Server, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var parsed map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("response is not JSON: %s", w.Body.String())
	}
	return w, parsed
}

func TestGenerateV2Success(t *testing.T) {
	env := newTestEnv(t, nil)

	w, resp := postJSON(t, env.srv, "/generate-v2",
		`{"address":"1600 Pennsylvania Ave NW, Washington, DC 20500","styleId":"diorama"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp["success"] != true {
		t.Error("expected success:true")
	}
	if resp["identity"] == "" || resp["identity"] == nil {
		t.Error("expected non-empty identity")
	}
	img, ok := resp["generatedImage"].(map[string]any)
	if !ok {
		t.Fatal("expected generatedImage object")
	}
	if img["mimeType"] != "image/png" {
		t.Errorf("expected image/png, got %v", img["mimeType"])
	}
	if resp["model"] != "test-model" {
		t.Errorf("expected model test-model, got %v", resp["model"])
	}
	if env.synth.calls != 1 {
		t.Errorf("expected 1 synthesis call, got %d", env.synth.calls)
	}
}

func TestGenerateV2InvalidAddress(t *testing.T) {
	env := newTestEnv(t, nil)

	w, resp := postJSON(t, env.srv, "/generate-v2",
		`{"address":"asdf;;<script>","styleId":"diorama"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if resp["error"] == nil {
		t.Error("expected error message")
	}
	if env.street.coverageCalls+env.street.fetchCalls+env.vision.calls+env.synth.calls != 0 {
		t.Error("no provider may be called for an invalid address")
	}
}

func TestGenerateV2UnknownStyle(t *testing.T) {
	env := newTestEnv(t, nil)

	w, _ := postJSON(t, env.srv, "/generate-v2",
		`{"address":"1600 Pennsylvania Ave NW, Washington, DC 20500","styleId":"vaporwave"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if env.street.coverageCalls+env.street.fetchCalls+env.vision.calls+env.synth.calls != 0 {
		t.Error("no provider may be called for an unknown style")
	}
}

func TestGenerateV2CachesImagery(t *testing.T) {
	env := newTestEnv(t, nil)

	body := `{"address":"742 Evergreen Terrace, Springfield, OR 97477","styleId":"diorama"}`
	w1, _ := postJSON(t, env.srv, "/generate-v2", body)
	if w1.Code != http.StatusOK {
		t.Fatalf("first call failed: %d %s", w1.Code, w1.Body.String())
	}

	// Same address, different case and whitespace: must share cache entries.
	w2, _ := postJSON(t, env.srv, "/generate-v2",
		`{"address":"  742 EVERGREEN TERRACE, Springfield, OR 97477","styleId":"diorama"}`)
	if w2.Code != http.StatusOK {
		t.Fatalf("second call failed: %d %s", w2.Code, w2.Body.String())
	}

	if env.street.fetchCalls != 1 {
		t.Errorf("expected 1 street fetch across both calls, got %d", env.street.fetchCalls)
	}
	if env.aerial.fetchCalls != 1 {
		t.Errorf("expected 1 aerial fetch across both calls, got %d", env.aerial.fetchCalls)
	}
	if env.vision.calls != 1 {
		t.Errorf("expected 1 identity extraction across both calls, got %d", env.vision.calls)
	}
	if env.synth.calls != 2 {
		t.Errorf("synthesis is never cached, expected 2 calls, got %d", env.synth.calls)
	}
}

func TestGenerateV2NoCoverageFallback(t *testing.T) {
	env := newTestEnv(t, nil)
	env.street.available = false

	w, resp := postJSON(t, env.srv, "/generate-v2",
		`{"address":"1 Remote Ranch Rd, Nowhere, MT 59000","styleId":"diorama"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 fallback, got %d: %s", w.Code, w.Body.String())
	}
	if resp["noStreetView"] != true {
		t.Error("expected noStreetView:true")
	}
	if resp["fallbackHome"] == nil || resp["fallbackHome"] == "" {
		t.Error("expected a named fallback home")
	}
	if resp["model"] != "fallback" {
		t.Errorf("expected model fallback, got %v", resp["model"])
	}
	if _, ok := resp["generatedImage"].(map[string]any); !ok {
		t.Error("expected substituted image")
	}
	if env.street.fetchCalls+env.vision.calls+env.synth.calls != 0 {
		t.Error("fallback must not incur provider calls past the coverage check")
	}
}

func TestGenerateV2PrivacyBlurFallback(t *testing.T) {
	env := newTestEnv(t, nil)
	env.vision.identity = "The facade is privacy-blurred; window count impossible to determine."

	w, resp := postJSON(t, env.srv, "/generate-v2",
		`{"address":"12 Hidden Ln, Portland, OR 97201","styleId":"watercolor"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 fallback, got %d: %s", w.Code, w.Body.String())
	}
	if resp["blurredAddress"] != true {
		t.Error("expected blurredAddress:true")
	}
	if resp["model"] != "fallback" {
		t.Errorf("expected model fallback, got %v", resp["model"])
	}
	if env.synth.calls != 0 {
		t.Error("synthesis must not run on blurred identity")
	}
}

func TestGenerateV2TextOnlyStyle(t *testing.T) {
	env := newTestEnv(t, nil)

	w, _ := postJSON(t, env.srv, "/generate-v2",
		`{"address":"1600 Pennsylvania Ave NW, Washington, DC 20500","styleId":"bauhaus"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(env.synth.lastRefs) != 0 {
		t.Errorf("text-only style must not pass reference imagery, got %d refs", len(env.synth.lastRefs))
	}
}

func TestGenerateV2ReferenceStylePassesImagery(t *testing.T) {
	env := newTestEnv(t, nil)

	w, _ := postJSON(t, env.srv, "/generate-v2",
		`{"address":"1600 Pennsylvania Ave NW, Washington, DC 20500","styleId":"diorama"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(env.synth.lastRefs) != 2 {
		t.Errorf("expected street+aerial references, got %d", len(env.synth.lastRefs))
	}
}

func TestGenerateV2StreetFetchFatal(t *testing.T) {
	env := newTestEnv(t, nil)
	env.street.fetchErr = context.DeadlineExceeded

	w, resp := postJSON(t, env.srv, "/generate-v2",
		`{"address":"1600 Pennsylvania Ave NW, Washington, DC 20500","styleId":"diorama"}`)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if resp["error"] == nil {
		t.Error("expected error body")
	}
	if env.synth.calls != 0 {
		t.Error("synthesis must not run without street imagery")
	}
}

func TestGenerateV2AerialFetchNonFatal(t *testing.T) {
	env := newTestEnv(t, nil)
	env.aerial.fetchErr = context.DeadlineExceeded

	w, resp := postJSON(t, env.srv, "/generate-v2",
		`{"address":"1600 Pennsylvania Ave NW, Washington, DC 20500","styleId":"diorama"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("aerial failure must not be fatal, got %d: %s", w.Code, w.Body.String())
	}
	if resp["success"] != true {
		t.Error("expected success despite aerial failure")
	}
	if len(env.synth.lastRefs) != 1 {
		t.Errorf("expected street-only reference, got %d", len(env.synth.lastRefs))
	}
}

func TestGenerateV2SynthesisFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.synth.err = context.DeadlineExceeded

	w, resp := postJSON(t, env.srv, "/generate-v2",
		`{"address":"1600 Pennsylvania Ave NW, Washington, DC 20500","styleId":"diorama"}`)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if resp["error"] == nil {
		t.Error("expected error body")
	}
}

func TestLegacyGenerate(t *testing.T) {
	env := newTestEnv(t, nil)

	w, resp := postJSON(t, env.srv, "/generate",
		`{"address":"1600 Pennsylvania Ave NW, Washington, DC 20500","styleId":"diorama"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	for _, field := range []string{"streetViewUrl", "aerialViewUrl", "semanticDescription", "prompt", "generatedImage"} {
		if resp[field] == nil {
			t.Errorf("expected %s in legacy response", field)
		}
	}
}

func TestGenerationRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.RateLimit.GenerationPerMinute = 1
	})

	body := `{"address":"1600 Pennsylvania Ave NW, Washington, DC 20500","styleId":"diorama"}`
	w1, _ := postJSON(t, env.srv, "/generate-v2", body)
	if w1.Code != http.StatusOK {
		t.Fatalf("first call should pass, got %d", w1.Code)
	}

	w2, _ := postJSON(t, env.srv, "/generate-v2", body)
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w2.Code)
	}
	if w2.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	// The general tier still admits cheap routes.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w3 := httptest.NewRecorder()
	env.srv.ServeHTTP(w3, req)
	if w3.Code != http.StatusOK {
		t.Errorf("health should not be generation-limited, got %d", w3.Code)
	}
}

func TestGeneralRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.RateLimit.GeneralPerMinute = 2
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		env.srv.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d should pass, got %d", i+1, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	env.srv.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 over the general limit, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	env.srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %v", resp["status"])
	}
	if _, ok := resp["queue"].(map[string]any); !ok {
		t.Error("expected queue status")
	}
	if _, ok := resp["cache"].(map[string]any); !ok {
		t.Error("expected cache sizes")
	}
}

func TestClearCache(t *testing.T) {
	env := newTestEnv(t, nil)

	// Populate caches via a generation.
	postJSON(t, env.srv, "/generate-v2",
		`{"address":"1600 Pennsylvania Ave NW, Washington, DC 20500","styleId":"diorama"}`)
	if env.srv.streetCache.Len() == 0 {
		t.Fatal("expected populated street cache")
	}

	w, resp := postJSON(t, env.srv, "/clear-cache", "")
	if w.Code != http.StatusOK || resp["success"] != true {
		t.Fatalf("clear-cache failed: %d %s", w.Code, w.Body.String())
	}
	if env.srv.streetCache.Len()+env.srv.aerialCache.Len()+env.srv.identityCache.Len() != 0 {
		t.Error("expected empty caches after clear")
	}
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	postJSON(t, env.srv, "/generate-v2",
		`{"address":"1600 Pennsylvania Ave NW, Washington, DC 20500","styleId":"diorama"}`)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	env.srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var stats map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats["total"].(float64) != 1 || stats["successes"].(float64) != 1 {
		t.Errorf("unexpected stats: %v", stats)
	}
}

func TestCaptureEmail(t *testing.T) {
	env := newTestEnv(t, nil)

	w, resp := postJSON(t, env.srv, "/capture-email",
		`{"email":"a@example.com","address":"123 Main St, Denver, CO 80202","timestamp":"2026-08-25T12:00:00Z"}`)
	if w.Code != http.StatusOK || resp["success"] != true {
		t.Fatalf("capture-email failed: %d %s", w.Code, w.Body.String())
	}

	w2, _ := postJSON(t, env.srv, "/capture-email", `{"email":"not-an-email"}`)
	if w2.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid email, got %d", w2.Code)
	}
}

func TestRetiredEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	w, resp := postJSON(t, env.srv, "/api/generate", `{}`)
	if w.Code != http.StatusGone {
		t.Fatalf("expected 410, got %d", w.Code)
	}
	if resp["error"] == nil {
		t.Error("expected retirement notice")
	}
}

func TestStreetViewMetadataEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet,
		"/streetview/metadata?address=1600+Pennsylvania+Ave+NW,+Washington,+DC+20500", nil)
	w := httptest.NewRecorder()
	env.srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var cov map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &cov); err != nil {
		t.Fatal(err)
	}
	if cov["available"] != true {
		t.Errorf("expected coverage, got %v", cov)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/streetview/metadata?address=%3Bbad%3B", nil)
	w2 := httptest.NewRecorder()
	env.srv.ServeHTTP(w2, req2)
	if w2.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed address, got %d", w2.Code)
	}
}

func TestStreetViewFetchEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet,
		"/streetview/fetch?address=1600+Pennsylvania+Ave+NW,+Washington,+DC+20500&size=640x400", nil)
	w := httptest.NewRecorder()
	env.srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["base64"] == nil || resp["mimeType"] != "image/jpeg" {
		t.Errorf("unexpected fetch response: %v", resp)
	}
}

func TestVisionAnalyzeEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	w, resp := postJSON(t, env.srv, "/vision/analyze",
		`{"imageBase64":"aGVsbG8=","mimeType":"image/jpeg"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp["description"] != goodIdentity {
		t.Errorf("unexpected description: %v", resp["description"])
	}

	w2, _ := postJSON(t, env.srv, "/vision/analyze", `{"imageBase64":"!!!"}`)
	if w2.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid base64, got %d", w2.Code)
	}
}

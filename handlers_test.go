package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"voice-mood/auth"
	"voice-mood/db"
	"voice-mood/models"
	"voice-mood/recommend"
	"voice-mood/voice"
	"voice-mood/wav"
)

const handlerSecret = "handler-secret"

func newTestServer(t *testing.T) (*server, *http.ServeMux) {
	t.Helper()

	artifacts := voice.LoadArtifacts(context.Background(), voice.ArtifactPaths{
		Model:  filepath.Join("models", "emotion_model.json"),
		Scaler: filepath.Join("models", "scaler.json"),
		Labels: filepath.Join("models", "labels.json"),
	}, voice.DefaultFeatureLength, voice.DefaultMoodMap())

	loader := voice.NewLoader(nil, t.TempDir(), voice.DefaultMinInputBytes)
	s := &server{
		pipeline:     voice.NewPipeline(loader, nil, artifacts, voice.DefaultPipelineConfig()),
		history:      db.NewJSONFileStore(filepath.Join(t.TempDir(), "history.json")),
		recommender:  recommend.NewService(nil, time.Second),
		jwtSecret:    handlerSecret,
		historyLimit: 20,
		maxUpload:    8 << 20,
	}
	mux := http.NewServeMux()
	s.routes(mux)
	return s, mux
}

func toneWAV(t *testing.T, seconds float64) []byte {
	t.Helper()
	const sampleRate = 22050
	samples := make([]float64, int(seconds*sampleRate))
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*220*float64(i)/sampleRate)
	}
	path := filepath.Join(t.TempDir(), "tone.wav")
	if err := wav.WriteWavFile(path, samples, sampleRate); err != nil {
		t.Fatalf("WriteWavFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	return data
}

func multipartUpload(t *testing.T, field, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		part.Write(data)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestAnalyzeEndpoint(t *testing.T) {
	t.Parallel()

	_, mux := newTestServer(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, multipartUpload(t, "file", "tone.wav", toneWAV(t, 1)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	result := decodeBody[voice.AnalysisResult](t, rec)
	if math.Abs(result.Pitch-220) > 5 || result.Speed <= 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Emotion == "" || result.Mood == "" {
		t.Fatalf("emotion and mood must be set: %+v", result)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}
}

func TestAnalyzeEndpointErrors(t *testing.T) {
	t.Parallel()

	_, mux := newTestServer(t)

	cases := []struct {
		name   string
		req    *http.Request
		status int
		body   string
	}{
		{"missing file", multipartUpload(t, "", "", nil), http.StatusBadRequest, "no file provided"},
		{"wrong field", multipartUpload(t, "audio", "tone.wav", toneWAV(t, 1)), http.StatusBadRequest, "no file provided"},
		{"too small", multipartUpload(t, "file", "clip.ogg", make([]byte, 500)), http.StatusBadRequest, ""},
		{"unconvertible", multipartUpload(t, "file", "clip.ogg", append([]byte("OggS"), make([]byte, 4096)...)), http.StatusUnprocessableEntity, ""},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, tc.req)
		if rec.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d: %s", tc.name, tc.status, rec.Code, rec.Body.String())
		}
		body := decodeBody[apiError](t, rec)
		if body.Error == "" || (tc.body != "" && body.Error != tc.body) {
			t.Fatalf("%s: unexpected error body %+v", tc.name, body)
		}
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/analyze", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /analyze: expected 405, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/analyze", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight: expected 204, got %d", rec.Code)
	}
}

func TestAnalyzeEndpointRejectsOversizedUpload(t *testing.T) {
	t.Parallel()

	s, mux := newTestServer(t)
	s.maxUpload = 2048

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, multipartUpload(t, "file", "tone.wav", toneWAV(t, 1)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	_, mux := newTestServer(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	health := decodeBody[healthResponse](t, rec)
	if health.Status != "ok" || health.Degraded || health.FeatureLength != voice.DefaultFeatureLength {
		t.Fatalf("unexpected health %+v", health)
	}
}

func authedRequest(t *testing.T, method, target, email string, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if email != "" {
		token, err := auth.IssueToken(handlerSecret, email, time.Hour)
		if err != nil {
			t.Fatalf("IssueToken: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestVoiceAnalysisHistoryEndpoints(t *testing.T) {
	t.Parallel()

	_, mux := newTestServer(t)

	payload, _ := json.Marshal(models.VoiceAnalysis{
		UserEmail: "ana@example.com", Pitch: 180, Speed: 100, Emotion: "Happy", Mood: "Happy",
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/voice-analysis", "ana@example.com", payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("save: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	saved := decodeBody[saveAnalysisResponse](t, rec)
	if saved.Data.ID == "" || saved.Data.Timestamp.IsZero() {
		t.Fatalf("saved record should carry id and timestamp: %+v", saved.Data)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/voice-analysis", "bo@example.com", payload))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("save for another user: expected 403, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/voice-analysis", "", payload))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("save without token: expected 401, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/voice-analysis/ana@example.com", "ana@example.com", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	list := decodeBody[[]models.VoiceAnalysis](t, rec)
	if len(list) != 1 || list[0].Emotion != "Happy" {
		t.Fatalf("unexpected history %+v", list)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/voice-analysis/ana@example.com", "bo@example.com", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("list for another user: expected 403, got %d", rec.Code)
	}
}

func TestVoiceAnalysisWithoutHistoryStore(t *testing.T) {
	t.Parallel()

	s, mux := newTestServer(t)
	s.history = nil

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/voice-analysis/ana@example.com", "ana@example.com", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestMentalHealthResultEndpoints(t *testing.T) {
	t.Parallel()

	_, mux := newTestServer(t)

	older, _ := json.Marshal(models.MentalHealthResult{
		UserEmail: "ana@example.com", Answers: map[string]int{"q1": 3}, DepressionScore: 14, AnxietyScore: 9, StressScore: 20,
		Timestamp: time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC),
	})
	newer, _ := json.Marshal(models.MentalHealthResult{
		UserEmail: "ana@example.com", Answers: map[string]int{"q1": 1}, DepressionScore: 4, AnxietyScore: 2, StressScore: 6,
		Timestamp: time.Date(2025, 4, 3, 8, 0, 0, 0, time.UTC),
	})

	for _, payload := range [][]byte{older, newer} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/mentalhealthresults", "ana@example.com", payload))
		if rec.Code != http.StatusOK {
			t.Fatalf("save: expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		saved := decodeBody[saveMentalResultResponse](t, rec)
		if saved.Message != "Saved Successfully" || saved.Data.ID == "" {
			t.Fatalf("unexpected save response %+v", saved)
		}
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/mentalhealthresults", "bo@example.com", older))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("save for another user: expected 403, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/mentalhealthresults", "", older))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("save without token: expected 401, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/mentalhealthresults", "ana@example.com", []byte("{")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/mentalhealthresults/ana@example.com", "ana@example.com", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	list := decodeBody[[]models.MentalHealthResult](t, rec)
	if len(list) != 2 || list[0].DepressionScore != 4 || list[1].Answers["q1"] != 3 {
		t.Fatalf("expected newest result first, got %+v", list)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/mentalhealthresults/ana@example.com", "bo@example.com", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("list for another user: expected 403, got %d", rec.Code)
	}
}

func TestCORSHeadersAllowAnyOriginWithoutCredentials(t *testing.T) {
	t.Parallel()

	_, mux := newTestServer(t)
	for _, target := range []string{"/analyze", "/recommendations", "/"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, target, nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("%s preflight: expected 204, got %d", target, rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Fatalf("%s: expected wildcard origin, got %q", target, got)
		}
		if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "" {
			t.Fatalf("%s: credentials must not be allowed with a wildcard origin, got %q", target, got)
		}
	}
}

func TestRecommendationsEndpointFallsBack(t *testing.T) {
	t.Parallel()

	_, mux := newTestServer(t)
	body, _ := json.Marshal(models.RecommendationRequest{Depression: 10, Anxiety: 5, Stress: 8, Mood: "Sad"})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/recommendations", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	recs := decodeBody[models.Recommendations](t, rec)
	if len(recs.Tips) != len(recommend.Fallback().Tips) {
		t.Fatalf("expected the fallback set, got %+v", recs)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/recommendations", bytes.NewReader([]byte("{"))))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: expected 400, got %d", rec.Code)
	}
}

type emittedEvent struct {
	name    string
	payload interface{}
}

type fakeSocket struct {
	mu     sync.Mutex
	events []emittedEvent
}

func (f *fakeSocket) ID() string { return "test-socket" }

func (f *fakeSocket) Emit(event string, v ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var payload interface{}
	if len(v) > 0 {
		payload = v[0]
	}
	f.events = append(f.events, emittedEvent{name: event, payload: payload})
}

func (f *fakeSocket) last(t *testing.T) emittedEvent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(f.events))
	}
	return f.events[0]
}

func TestHandleNewRecording(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	controller := newSocketController(s.pipeline)
	audio := toneWAV(t, 1)

	for _, encoded := range []string{
		base64.StdEncoding.EncodeToString(audio),
		"data:audio/wav;base64," + base64.StdEncoding.EncodeToString(audio),
	} {
		msg, _ := json.Marshal(models.RecordData{Audio: encoded, Filename: "tone.wav"})
		socket := &fakeSocket{}
		controller.handleNewRecording(socket, string(msg))

		event := socket.last(t)
		if event.name != "analysisResult" {
			t.Fatalf("expected analysisResult, got %s (%v)", event.name, event.payload)
		}
		result, ok := event.payload.(*voice.AnalysisResult)
		if !ok || result.Emotion == "" {
			t.Fatalf("unexpected payload %#v", event.payload)
		}
	}
}

func TestHandleNewRecordingErrors(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	controller := newSocketController(s.pipeline)

	small, _ := json.Marshal(models.RecordData{Audio: base64.StdEncoding.EncodeToString(make([]byte, 100))})
	cases := map[string]string{
		"empty":       "",
		"not json":    "{oops",
		"bad base64":  `{"audio":"***"}`,
		"small audio": string(small),
	}
	for name, msg := range cases {
		socket := &fakeSocket{}
		controller.handleNewRecording(socket, msg)

		event := socket.last(t)
		if event.name != "analysisError" {
			t.Fatalf("%s: expected analysisError, got %s", name, event.name)
		}
		payload, ok := event.payload.(map[string]string)
		if !ok || payload["message"] == "" {
			t.Fatalf("%s: unexpected payload %#v", name, event.payload)
		}
	}
}

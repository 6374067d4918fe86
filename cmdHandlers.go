package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"log"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"voice-mood/auth"
	"voice-mood/config"
	"voice-mood/db"
	"voice-mood/models"
	"voice-mood/recommend"
	"voice-mood/utils"
	"voice-mood/voice"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/mdobak/go-xerrors"
)

type apiError struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status        string `json:"status"`
	Degraded      bool   `json:"degraded"`
	FeatureLength int    `json:"featureLength"`
}

type saveAnalysisResponse struct {
	Message string               `json:"message"`
	Data    models.VoiceAnalysis `json:"data"`
}

type saveMentalResultResponse struct {
	Message string                    `json:"message"`
	Data    models.MentalHealthResult `json:"data"`
}

// server holds everything the handlers share. All fields are read-only once
// serving starts.
type server struct {
	pipeline     *voice.Pipeline
	history      db.HistoryStore // nil disables /voice-analysis and /mentalhealthresults
	recommender  *recommend.Service
	jwtSecret    string
	historyLimit int
	maxUpload    int64
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Error: message})
}

// allowCORS answers preflight requests and rejects other methods. It returns
// false when the handler should stop.
func allowCORS(w http.ResponseWriter, r *http.Request, method string) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Allow-Methods", method+", OPTIONS")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return false
	}
	if r.Method != method {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func (s *server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if !allowCORS(w, r, http.MethodGet) {
		return
	}
	artifacts := s.pipeline.Artifacts()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Degraded:      artifacts.Degraded(),
		FeatureLength: artifacts.FeatureLength(),
	})
}

func (s *server) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	logger := utils.GetLogger()
	ctx := r.Context()

	if !allowCORS(w, r, http.MethodPost) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "audio file too large")
			return
		}
		logger.ErrorContext(ctx, "failed to parse multipart form", slog.Any("error", err))
		writeJSONError(w, http.StatusBadRequest, voice.ErrEmptyInput.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, voice.ErrEmptyInput.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "failed to read upload", slog.Any("error", err))
		writeJSONError(w, http.StatusBadRequest, "unable to read upload")
		return
	}

	log.Printf("[HTTP] Analyze request: filename=%s, bytes=%d\n", header.Filename, len(data))
	started := time.Now()

	result, err := s.pipeline.Analyze(ctx, data, header.Filename)
	if err != nil {
		kind := voice.KindOf(err)
		logger.ErrorContext(ctx, "analysis failed",
			slog.String("kind", kind.String()),
			slog.String("filename", header.Filename),
			slog.Any("error", xerrors.New(err)),
		)
		writeJSONError(w, voice.HTTPStatus(kind), voice.PublicMessage(err))
		return
	}

	log.Printf("[HTTP] Analysis complete: pitch=%.2f, speed=%.2f, emotion=%s, mood=%s, latency=%.2fms\n",
		result.Pitch, result.Speed, result.Emotion, result.Mood, time.Since(started).Seconds()*1000)
	writeJSON(w, http.StatusOK, result)
}

func (s *server) saveAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	logger := utils.GetLogger()
	ctx := r.Context()

	if !allowCORS(w, r, http.MethodPost) {
		return
	}
	if s.history == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "history storage unavailable")
		return
	}

	var analysis models.VoiceAnalysis
	if err := json.NewDecoder(r.Body).Decode(&analysis); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	claims, _ := auth.ClaimsFromContext(ctx)
	if claims == nil || claims.Email != analysis.UserEmail {
		writeJSONError(w, http.StatusForbidden, "Forbidden: Email mismatch")
		return
	}

	analysis.ID = ""
	if err := s.history.SaveAnalysis(ctx, &analysis); err != nil {
		if errors.Is(err, db.ErrInvalidRecord) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.ErrorContext(ctx, "voice analysis save error", slog.Any("error", xerrors.New(err)))
		writeJSONError(w, http.StatusInternalServerError, "Failed to save voice analysis")
		return
	}

	writeJSON(w, http.StatusOK, saveAnalysisResponse{
		Message: "Voice analysis saved successfully",
		Data:    analysis,
	})
}

func (s *server) listAnalysesHandler(w http.ResponseWriter, r *http.Request) {
	logger := utils.GetLogger()
	ctx := r.Context()

	if !allowCORS(w, r, http.MethodGet) {
		return
	}
	if s.history == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "history storage unavailable")
		return
	}

	email := r.PathValue("email")
	claims, _ := auth.ClaimsFromContext(ctx)
	if claims == nil || claims.Email != email {
		writeJSONError(w, http.StatusForbidden, "Forbidden: Email mismatch")
		return
	}

	analyses, err := s.history.ListAnalyses(ctx, email, s.historyLimit)
	if err != nil {
		logger.ErrorContext(ctx, "voice analysis fetch error", slog.Any("error", xerrors.New(err)))
		writeJSONError(w, http.StatusInternalServerError, "Failed to fetch voice analysis")
		return
	}
	writeJSON(w, http.StatusOK, analyses)
}

func (s *server) saveMentalResultHandler(w http.ResponseWriter, r *http.Request) {
	logger := utils.GetLogger()
	ctx := r.Context()

	if !allowCORS(w, r, http.MethodPost) {
		return
	}
	if s.history == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "history storage unavailable")
		return
	}

	var result models.MentalHealthResult
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	claims, _ := auth.ClaimsFromContext(ctx)
	if claims == nil || claims.Email != result.UserEmail {
		writeJSONError(w, http.StatusForbidden, "Forbidden: Email mismatch")
		return
	}

	result.ID = ""
	if err := s.history.SaveMentalResult(ctx, &result); err != nil {
		if errors.Is(err, db.ErrInvalidRecord) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.ErrorContext(ctx, "mental health result save error", slog.Any("error", xerrors.New(err)))
		writeJSONError(w, http.StatusInternalServerError, "Failed to save")
		return
	}

	writeJSON(w, http.StatusOK, saveMentalResultResponse{
		Message: "Saved Successfully",
		Data:    result,
	})
}

func (s *server) listMentalResultsHandler(w http.ResponseWriter, r *http.Request) {
	logger := utils.GetLogger()
	ctx := r.Context()

	if !allowCORS(w, r, http.MethodGet) {
		return
	}
	if s.history == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "history storage unavailable")
		return
	}

	email := r.PathValue("email")
	claims, _ := auth.ClaimsFromContext(ctx)
	if claims == nil || claims.Email != email {
		writeJSONError(w, http.StatusForbidden, "Forbidden: Email mismatch")
		return
	}

	results, err := s.history.ListMentalResults(ctx, email, s.historyLimit)
	if err != nil {
		logger.ErrorContext(ctx, "mental health results fetch error", slog.Any("error", xerrors.New(err)))
		writeJSONError(w, http.StatusInternalServerError, "Failed to fetch results")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *server) recommendationsHandler(w http.ResponseWriter, r *http.Request) {
	if !allowCORS(w, r, http.MethodPost) {
		return
	}

	var req models.RecommendationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	writeJSON(w, http.StatusOK, s.recommender.Recommend(r.Context(), req))
}

// routes registers the REST endpoints. The socket.io server is mounted by
// serve when one is running.
func (s *server) routes(mux *http.ServeMux) {
	mux.HandleFunc("/{$}", s.healthHandler)
	mux.HandleFunc("/analyze", s.analyzeHandler)
	mux.HandleFunc("/voice-analysis", auth.RequireAuth(s.jwtSecret, s.saveAnalysisHandler))
	mux.HandleFunc("/voice-analysis/{email}", auth.RequireAuth(s.jwtSecret, s.listAnalysesHandler))
	mux.HandleFunc("/mentalhealthresults", auth.RequireAuth(s.jwtSecret, s.saveMentalResultHandler))
	mux.HandleFunc("/mentalhealthresults/{email}", auth.RequireAuth(s.jwtSecret, s.listMentalResultsHandler))
	mux.HandleFunc("/recommendations", s.recommendationsHandler)
}

func newServer(ctx context.Context, cfg *config.Root) *server {
	logger := utils.GetLogger()

	if cfg.UsesDefaultJWTSecret() {
		logger.WarnContext(ctx, "JWT_SECRET is not set, tokens are verified with the development default secret")
	}

	pipeline := voice.NewPipelineFromConfig(ctx, cfg)
	if pipeline.Artifacts().Degraded() {
		log.Printf("WARNING: emotion model unavailable, every emotion will be %s\n", voice.NeutralLabel)
	}

	history, err := db.NewHistoryStore(ctx, cfg.History)
	if err != nil {
		logger.ErrorContext(ctx, "history storage unavailable", slog.Any("error", xerrors.New(err)))
		history = nil
	}

	var generator recommend.Generator
	if cfg.Recommend.Enabled && cfg.Recommend.APIKey != "" {
		gemini, err := recommend.NewGeminiClient(ctx, cfg.Recommend.APIKey, cfg.Recommend.Model)
		if err != nil {
			logger.WarnContext(ctx, "Gemini client unavailable, serving static recommendations", slog.Any("error", err))
		} else {
			generator = gemini
		}
	}

	return &server{
		pipeline:     pipeline,
		history:      history,
		recommender:  recommend.NewService(generator, 0),
		jwtSecret:    cfg.JWTSecret,
		historyLimit: cfg.History.Limit,
		maxUpload:    cfg.Analysis.MaxUploadBytes,
	}
}

func serve(cfg *config.Root, protocol, port string) {
	protocol = strings.ToLower(protocol)
	var allowOriginFunc = func(r *http.Request) bool {
		return true
	}

	ctx := context.Background()
	s := newServer(ctx, cfg)
	if s.history != nil {
		defer s.history.Close()
	}

	controller := newSocketController(s.pipeline)

	socketServer := socketio.NewServer(&engineio.Options{
		PingTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
		Transports: []transport.Transport{
			&websocket.Transport{
				CheckOrigin: allowOriginFunc,
			},
			&polling.Transport{
				CheckOrigin: allowOriginFunc,
			},
		},
	})

	socketServer.OnConnect("/", func(socket socketio.Conn) error {
		socket.SetContext("")
		log.Printf("CONNECTED: %s, remote addr: %s\n", socket.ID(), socket.RemoteAddr())
		controller.emitModelInfo(socket)
		return nil
	})

	socketServer.OnEvent("/", "requestModelInfo", func(socket socketio.Conn) {
		controller.emitModelInfo(socket)
	})

	socketServer.OnEvent("/", "newRecording", func(socket socketio.Conn, msg string) {
		log.Printf("newRecording event received from %s, data length: %d\n", socket.ID(), len(msg))
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("panic in handleNewRecording for socket %s: %v\n", socket.ID(), r)
					socket.Emit("analysisError", map[string]string{"message": "internal server error"})
				}
			}()
			controller.handleNewRecording(socket, msg)
		}()
	})

	socketServer.OnError("/", func(s socketio.Conn, e error) {
		log.Println("meet error:", e)
	})

	socketServer.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.Printf("Socket disconnected - ID: %s, Reason: %s\n", s.ID(), reason)
	})

	go func() {
		if err := socketServer.Serve(); err != nil {
			log.Fatalf("socketio listen error: %s\n", err)
		}
	}()
	defer socketServer.Close()

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", socketServer)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.Server.StaticDir))))
	s.routes(mux)

	serveHTTP(cfg.Server, protocol == "https", port, mux)
}

func serveHTTP(cfg config.Server, serveHTTPS bool, port string, handler http.Handler) {
	if serveHTTPS {
		httpsAddr := ":" + port
		httpsServer := &http.Server{
			Addr: httpsAddr,
			TLSConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			Handler: handler,
		}

		if cfg.CertKey == "" || cfg.CertFile == "" {
			log.Fatal("Missing cert")
		}

		log.Printf("Starting HTTPS server on %s\n", httpsAddr)
		if err := httpsServer.ListenAndServeTLS(cfg.CertFile, cfg.CertKey); err != nil {
			log.Fatalf("HTTPS server ListenAndServeTLS: %v", err)
		}
		return
	}

	log.Printf("Starting HTTP server on port %v", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("HTTP server ListenAndServe: %v", err)
	}
}

package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"log/slog"
	"strings"
	"time"

	"voice-mood/models"
	"voice-mood/utils"
	"voice-mood/voice"

	socketio "github.com/googollee/go-socket.io"
	"github.com/mdobak/go-xerrors"
)

// emitter is the part of socketio.Conn the controller talks to.
type emitter interface {
	ID() string
	Emit(event string, v ...interface{})
}

type socketController struct {
	pipeline *voice.Pipeline
}

type modelInfo struct {
	Degraded      bool     `json:"degraded"`
	FeatureLength int      `json:"featureLength"`
	Features      []string `json:"features"`
}

func newSocketController(pipeline *voice.Pipeline) *socketController {
	return &socketController{pipeline: pipeline}
}

func (c *socketController) emitModelInfo(socket socketio.Conn) {
	artifacts := c.pipeline.Artifacts()
	socket.Emit("modelInfo", modelInfo{
		Degraded:      artifacts.Degraded(),
		FeatureLength: artifacts.FeatureLength(),
		Features:      voice.FeatureNames(),
	})
}

func emitError(socket emitter, message string) {
	socket.Emit("analysisError", map[string]string{"message": message})
}

// decodeAudioPayload accepts plain base64 or a data URL.
func decodeAudioPayload(audio string) ([]byte, error) {
	if idx := strings.Index(audio, ";base64,"); idx != -1 && strings.HasPrefix(audio, "data:") {
		audio = audio[idx+len(";base64,"):]
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(audio))
}

func (c *socketController) handleNewRecording(socket emitter, recordData string) {
	logger := utils.GetLogger()
	ctx := context.Background()

	if recordData == "" {
		logger.ErrorContext(ctx, "no data received in newRecording event")
		emitError(socket, voice.ErrEmptyInput.Error())
		return
	}

	var recData models.RecordData
	if err := json.Unmarshal([]byte(recordData), &recData); err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "failed to parse record payload", slog.Any("error", err))
		emitError(socket, "invalid audio payload")
		return
	}

	audio, err := decodeAudioPayload(recData.Audio)
	if err != nil {
		logger.ErrorContext(ctx, "failed to decode base64 audio", slog.Any("error", err))
		emitError(socket, "invalid audio payload")
		return
	}

	logger.InfoContext(ctx, "received recording",
		slog.String("socketID", socket.ID()),
		slog.String("filename", recData.Filename),
		slog.Int("bytes", len(audio)),
	)

	started := time.Now()
	result, err := c.pipeline.Analyze(ctx, audio, recData.Filename)
	if err != nil {
		kind := voice.KindOf(err)
		logger.ErrorContext(ctx, "analysis failed",
			slog.String("socketID", socket.ID()),
			slog.String("kind", kind.String()),
			slog.Any("error", xerrors.New(err)),
		)
		emitError(socket, voice.PublicMessage(err))
		return
	}

	log.Printf("[handleNewRecording] socket %s: emotion=%s, mood=%s, latency=%.2fms\n",
		socket.ID(), result.Emotion, result.Mood, time.Since(started).Seconds()*1000)
	socket.Emit("analysisResult", result)
}

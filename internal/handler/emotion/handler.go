package emotion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/emopulse/backend/internal/logger"
	"github.com/zhouzirui/emopulse/backend/internal/model/emotion"
	"github.com/zhouzirui/emopulse/backend/internal/service/ai"
	"github.com/zhouzirui/emopulse/backend/internal/service/chat"
	"github.com/zhouzirui/emopulse/backend/internal/service/classifier"
	"github.com/zhouzirui/emopulse/backend/internal/service/orchestrator"
	"github.com/zhouzirui/emopulse/backend/pkg/utils"
)

const defaultUploadMaxBytes = 32 << 20

// Analyzer is the pipeline behind the emotion endpoints. *orchestrator.Service implements it.
type Analyzer interface {
	Analyze(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
	ClassifyText(ctx context.Context, text string) (emotion.Signal, error)
	ClassifyFace(ctx context.Context, image classifier.Media) (emotion.Label, error)
	ClassifyVoice(ctx context.Context, audio classifier.Media) (emotion.Label, error)
}

// Handler 情绪分析相关的HTTP处理器
type Handler struct {
	analyzer       Analyzer
	uploadMaxBytes int64
	log            logrus.FieldLogger
}

// New 创建情绪分析处理器。uploadMaxBytes <= 0 时使用 32 MiB。
func New(analyzer Analyzer, uploadMaxBytes int64, log logrus.FieldLogger) *Handler {
	if uploadMaxBytes <= 0 {
		uploadMaxBytes = defaultUploadMaxBytes
	}
	return &Handler{analyzer: analyzer, uploadMaxBytes: uploadMaxBytes, log: logger.Component(log, "http")}
}

// RegisterRoutes 注册情绪分析相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/analyze_statement", h.handleAnalyzeStatement)
	r.Post("/analyze_face", h.handleAnalyzeFace)
	r.Post("/analyze_voice", h.handleAnalyzeVoice)
	r.Post("/unified_emotion", h.handleUnified)
}

func (h *Handler) handleAnalyzeStatement(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, h.uploadMaxBytes)).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	signal, err := h.analyzer.ClassifyText(r.Context(), payload.Text)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"sentiment":  signal.Label,
		"confidence": signal.Confidence,
	})
}

func (h *Handler) handleAnalyzeFace(w http.ResponseWriter, r *http.Request) {
	if !h.parseMultipart(w, r) {
		return
	}
	image := formFile(r, "files")
	if image == nil {
		utils.RespondError(w, http.StatusBadRequest, "no image provided")
		return
	}

	label, err := h.analyzer.ClassifyFace(r.Context(), *image)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"emotion": label})
}

func (h *Handler) handleAnalyzeVoice(w http.ResponseWriter, r *http.Request) {
	if !h.parseMultipart(w, r) {
		return
	}
	audio := formFile(r, "file")
	if audio == nil {
		utils.RespondError(w, http.StatusBadRequest, "no audio file provided")
		return
	}

	label, err := h.analyzer.ClassifyVoice(r.Context(), *audio)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"voice_emotion": label})
}

// unifiedResponse 统一分析接口的返回体，缺失的模态为 null。
type unifiedResponse struct {
	UserText           string         `json:"user_text"`
	TextSentiment      *emotion.Label `json:"text_sentiment"`
	TextConfidence     float64        `json:"text_confidence"`
	FaceEmotion        *emotion.Label `json:"face_emotion"`
	VoiceEmotion       *emotion.Label `json:"voice_emotion"`
	VoiceText          string         `json:"voice_text"`
	TranscriptionError string         `json:"transcription_error,omitempty"`
	DominantEmotion    *emotion.Label `json:"dominant_emotion"`
	FusionRule         string         `json:"fusion_rule,omitempty"`
	Masking            bool           `json:"masking"`
	HistoryDegraded    bool           `json:"history_degraded,omitempty"`
	ChatbotResponse    string         `json:"chatbot_response"`
	Error              string         `json:"error,omitempty"`
}

func (h *Handler) handleUnified(w http.ResponseWriter, r *http.Request) {
	if !h.parseMultipart(w, r) {
		return
	}

	req := orchestrator.Request{
		UserID: strings.TrimSpace(r.FormValue("user_id")),
		Text:   r.FormValue("text"),
		Face:   formFile(r, "face"),
		Voice:  formFile(r, "voice"),
	}
	if req.UserID == "" {
		utils.RespondError(w, http.StatusBadRequest, orchestrator.ErrUserIDRequired.Error())
		return
	}

	res, err := h.analyzer.Analyze(r.Context(), req)
	if err != nil && res == nil {
		h.respondFailure(w, err)
		return
	}

	body := toUnifiedResponse(res)
	status := http.StatusOK
	if err != nil {
		// reply generated but the turn was not stored
		h.log.WithError(err).WithField("user_id", req.UserID).Error("turn not persisted")
		status, body.Error = http.StatusInternalServerError, err.Error()
	}
	utils.RespondJSON(w, status, body)
}

func toUnifiedResponse(res *orchestrator.Result) unifiedResponse {
	return unifiedResponse{
		UserText:           res.UserText,
		TextSentiment:      optLabel(res.TextSentiment),
		TextConfidence:     res.TextConfidence,
		FaceEmotion:        optLabel(res.FaceEmotion),
		VoiceEmotion:       optLabel(res.VoiceEmotion),
		VoiceText:          res.VoiceText,
		TranscriptionError: res.TranscriptionError,
		DominantEmotion:    optLabel(res.Dominant),
		FusionRule:         string(res.Rule),
		Masking:            res.Masking,
		HistoryDegraded:    res.HistoryDegraded,
		ChatbotResponse:    res.Response,
	}
}

func optLabel(l emotion.Label) *emotion.Label {
	if !l.Present() {
		return nil
	}
	return &l
}

// respondFailure maps pipeline errors onto HTTP statuses.
func (h *Handler) respondFailure(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, orchestrator.ErrUserIDRequired),
		errors.Is(err, orchestrator.ErrTextRequired),
		errors.Is(err, chat.ErrUserIDRequired),
		errors.Is(err, ai.ErrEmptyUtterance):
		status = http.StatusBadRequest
	case errors.Is(err, classifier.ErrClassification):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ai.ErrGeneration):
		status = http.StatusBadGateway
	case errors.Is(err, ai.ErrUnavailable), errors.Is(err, orchestrator.ErrClassifierUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).Error("request failed")
	}
	utils.RespondError(w, status, err.Error())
}

func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.uploadMaxBytes)
	// url-encoded forms are accepted too; they just carry no files
	if err := r.ParseMultipartForm(h.uploadMaxBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return false
		}
		utils.RespondError(w, http.StatusBadRequest, "invalid multipart form")
		return false
	}
	return true
}

// formFile reads an optional upload. Missing or empty files yield nil.
func formFile(r *http.Request, field string) *classifier.Media {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		return nil
	}
	return &classifier.Media{Filename: header.Filename, Data: data}
}

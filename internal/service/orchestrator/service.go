package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	analysis "github.com/zhouzirui/emopulse/backend/internal/analysis/emotion"
	"github.com/zhouzirui/emopulse/backend/internal/logger"
	"github.com/zhouzirui/emopulse/backend/internal/model/emotion"
	"github.com/zhouzirui/emopulse/backend/internal/service/ai"
	"github.com/zhouzirui/emopulse/backend/internal/service/chat"
	"github.com/zhouzirui/emopulse/backend/internal/service/classifier"
)

var (
	// ErrUserIDRequired rejects a unified request without user id.
	ErrUserIDRequired = errors.New("user_id is required")
	// ErrTextRequired rejects a request with no typed text and no transcribable voice.
	ErrTextRequired = errors.New("text is required when voice transcription yields nothing")
	// ErrClassifierUnavailable is returned by the standalone classify calls when the modality is not wired.
	ErrClassifierUnavailable = errors.New("classifier not configured")
)

// Generator produces the reply for a fused request. *ai.Service implements it.
type Generator interface {
	GenerateResponse(ctx context.Context, req ai.Request) (*ai.Reply, error)
}

// Classifiers groups the modality collaborators. Face, Voice and Transcriber may be nil.
type Classifiers struct {
	Text        classifier.TextClassifier
	Face        classifier.FaceClassifier
	Voice       classifier.VoiceClassifier
	Transcriber classifier.Transcriber
}

// Request is one unified analysis call. Face and Voice are optional uploads.
type Request struct {
	UserID string
	Text   string
	Face   *classifier.Media
	Voice  *classifier.Media
}

// Result aggregates every modality output and the generated reply.
type Result struct {
	UserText           string
	TextSentiment      emotion.Label
	TextConfidence     float64
	FaceEmotion        emotion.Label
	VoiceEmotion       emotion.Label
	VoiceText          string
	TranscriptionError string
	Dominant           emotion.Label
	Rule               analysis.Rule
	Masking            bool
	Response           string
	HistoryDegraded    bool
}

// Service runs the per-request pipeline: validation, classifier fan-out,
// transcription fallback, generation.
type Service struct {
	classifiers Classifiers
	generator   Generator
	log         logrus.FieldLogger
}

// NewService wires the pipeline. A nil text classifier falls back to the keyword heuristic.
func NewService(classifiers Classifiers, generator Generator, log logrus.FieldLogger) *Service {
	if classifiers.Text == nil {
		classifiers.Text = classifier.Heuristic{}
	}
	return &Service{
		classifiers: classifiers,
		generator:   generator,
		log:         logger.Component(log, "orchestrator"),
	}
}

// Capabilities reports which modalities are wired, for health output.
func (s *Service) Capabilities() map[string]bool {
	return map[string]bool{
		"text":          s.classifiers.Text != nil,
		"face":          s.classifiers.Face != nil,
		"voice":         s.classifiers.Voice != nil,
		"transcription": s.classifiers.Transcriber != nil,
	}
}

// Analyze runs every supplied modality, fuses the labels and generates the reply.
//
// Classifier failures leave the modality absent. When the turn could not be stored the
// result is returned together with an error wrapping chat.ErrStorage.
func (s *Service) Analyze(ctx context.Context, req Request) (*Result, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	entry := s.log.WithField("user_id", userID)
	res := &Result{}

	var wg sync.WaitGroup
	if hasMedia(req.Face) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res.FaceEmotion = s.optionalLabel(ctx, entry, classifier.ModalityFace, s.faceFn(), *req.Face)
		}()
	}
	if hasMedia(req.Voice) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res.VoiceEmotion = s.optionalLabel(ctx, entry, classifier.ModalityVoice, s.voiceFn(), *req.Voice)
		}()

		if s.classifiers.Transcriber != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				text, err := s.classifiers.Transcriber.Transcribe(ctx, *req.Voice)
				if err != nil {
					entry.WithError(err).Warn("transcription failed")
					res.TranscriptionError = err.Error()
					return
				}
				res.VoiceText = strings.TrimSpace(text)
			}()
		}
	}
	wg.Wait()

	res.UserText = strings.TrimSpace(req.Text)
	if res.UserText == "" {
		res.UserText = res.VoiceText
	}
	if res.UserText == "" {
		return nil, ErrTextRequired
	}

	sentiment, err := s.classifiers.Text.ClassifyText(ctx, res.UserText)
	if err != nil {
		entry.WithError(err).Warn("text classification failed")
		sentiment = emotion.Signal{}
	}
	res.TextSentiment, res.TextConfidence = sentiment.Label, sentiment.Confidence

	reply, err := s.generator.GenerateResponse(ctx, ai.Request{
		UserID:    userID,
		UserText:  res.UserText,
		Sentiment: &sentiment,
		Face:      res.FaceEmotion,
		Voice:     res.VoiceEmotion,
	})
	if reply != nil {
		res.Dominant, res.Rule, res.Masking = reply.Dominant, reply.Rule, reply.Masking
		res.Response, res.HistoryDegraded = reply.Text, reply.HistoryDegraded
	}
	if err != nil {
		if reply != nil && errors.Is(err, chat.ErrStorage) {
			return res, err
		}
		return nil, err
	}
	return res, nil
}

// ClassifyText runs only the text classifier.
func (s *Service) ClassifyText(ctx context.Context, text string) (emotion.Signal, error) {
	if strings.TrimSpace(text) == "" {
		return emotion.Signal{}, ErrTextRequired
	}
	return s.classifiers.Text.ClassifyText(ctx, text)
}

// ClassifyFace runs only the face classifier.
func (s *Service) ClassifyFace(ctx context.Context, image classifier.Media) (emotion.Label, error) {
	if s.classifiers.Face == nil {
		return emotion.None, ErrClassifierUnavailable
	}
	return s.classifiers.Face.ClassifyFace(ctx, image)
}

// ClassifyVoice runs only the voice classifier.
func (s *Service) ClassifyVoice(ctx context.Context, audio classifier.Media) (emotion.Label, error) {
	if s.classifiers.Voice == nil {
		return emotion.None, ErrClassifierUnavailable
	}
	return s.classifiers.Voice.ClassifyVoice(ctx, audio)
}

type mediaFn func(context.Context, classifier.Media) (emotion.Label, error)

func (s *Service) faceFn() mediaFn {
	if s.classifiers.Face == nil {
		return nil
	}
	return s.classifiers.Face.ClassifyFace
}

func (s *Service) voiceFn() mediaFn {
	if s.classifiers.Voice == nil {
		return nil
	}
	return s.classifiers.Voice.ClassifyVoice
}

// optionalLabel runs an optional modality; any failure yields an absent label.
func (s *Service) optionalLabel(ctx context.Context, entry logrus.FieldLogger, modality string, fn mediaFn, media classifier.Media) emotion.Label {
	if fn == nil {
		entry.WithField("modality", modality).Warn("upload ignored, classifier not configured")
		return emotion.None
	}
	label, err := fn(ctx, media)
	if err != nil {
		entry.WithError(err).WithField("modality", modality).Warn("classification failed, label absent")
		return emotion.None
	}
	return label
}

func hasMedia(m *classifier.Media) bool {
	return m != nil && len(m.Data) > 0
}

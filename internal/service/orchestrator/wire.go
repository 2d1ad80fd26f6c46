package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/emopulse/backend/internal/config"
	speechmodel "github.com/zhouzirui/emopulse/backend/internal/model/speech"
	"github.com/zhouzirui/emopulse/backend/internal/service/classifier"
	emotionservice "github.com/zhouzirui/emopulse/backend/internal/service/emotion"
	"github.com/zhouzirui/emopulse/backend/internal/service/speech"
)

// ClassifiersFromConfig picks one implementation per modality.
//
// Text: remote service, else the chat model when AI_EMOTION_LLM_ENABLED, else the keyword heuristic.
// Transcription: remote service, else the websocket ASR when speech credentials exist.
// Face and voice are remote only and stay nil when unconfigured.
func ClassifiersFromConfig(ctx context.Context, cfg *config.Config, chatModel model.BaseChatModel, log logrus.FieldLogger) (Classifiers, error) {
	var out Classifiers
	cc := cfg.Classifiers
	remote := classifier.NewHTTPClient(classifier.Endpoints{
		Text:       cc.TextURL,
		Face:       cc.FaceURL,
		Voice:      cc.VoiceURL,
		Transcribe: cc.TranscribeURL,
	}, cc.Timeout)

	switch {
	case cc.TextURL != "":
		out.Text = remote
		log.WithField("url", cc.TextURL).Info("text classifier: remote")
	default:
		svc, err := emotionservice.NewService(ctx, chatModel, emotionservice.Config{Enabled: cfg.AI.EmotionLLMEnabled, Timeout: cc.Timeout}, log)
		if err != nil {
			return out, fmt.Errorf("init sentiment classifier: %w", err)
		}
		out.Text = svc
		if svc.Enabled() {
			log.Info("text classifier: chat model with heuristic fallback")
		} else {
			log.Info("text classifier: keyword heuristic")
		}
	}

	if cc.FaceURL != "" {
		out.Face = remote
	} else {
		log.Warn("FACE_CLASSIFIER_URL not set, face uploads will be ignored")
	}
	if cc.VoiceURL != "" {
		out.Voice = remote
	} else {
		log.Warn("VOICE_CLASSIFIER_URL not set, voice emotion will be absent")
	}

	switch {
	case cc.TranscribeURL != "":
		out.Transcriber = remote
	case cfg.Speech.Enabled:
		out.Transcriber = speech.NewService(&speechmodel.SpeechConfig{
			AppID:       cfg.Speech.AppID,
			AccessToken: cfg.Speech.AccessToken,
			APIKey:      cfg.Speech.APIKey,
			BaseURL:     cfg.Speech.BaseURL,
			ASRModel:    cfg.Speech.ASRModel,
			ASRLanguage: cfg.Speech.ASRLanguage,
			Timeout:     cfg.Speech.Timeout,
		}, log)
		log.Info("transcriber: volcengine asr")
	default:
		log.Warn("no transcriber configured, voice-only requests will be rejected")
	}
	return out, nil
}

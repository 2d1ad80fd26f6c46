package speech

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/emopulse/backend/internal/model/speech"
	"github.com/zhouzirui/emopulse/backend/internal/service/classifier"
)

// Service 语音转写服务，实现 classifier.Transcriber。
type Service struct {
	config *speech.SpeechConfig
	asr    *ASRClient
}

// NewService 创建语音服务实例。
func NewService(config *speech.SpeechConfig, log logrus.FieldLogger) *Service {
	return &Service{
		config: config,
		asr:    NewASRClient(config, log),
	}
}

// TranscribeBuffer 语音转文字（使用字节数组）。
func (s *Service) TranscribeBuffer(ctx context.Context, requestID string, audio []byte, format, language string) (*speech.ASRResponse, error) {
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.config.Timeout)*time.Second)
		defer cancel()
	}
	return s.asr.Transcribe(ctx, &speech.ASRRequest{
		RequestID: requestID,
		AudioData: bytes.NewReader(audio),
		Format:    format,
		Language:  language,
	})
}

// Transcribe implements classifier.Transcriber. The container format is taken from the file extension.
func (s *Service) Transcribe(ctx context.Context, audio classifier.Media) (string, error) {
	if len(audio.Data) == 0 {
		return "", &classifier.ClassificationError{Modality: classifier.ModalityASR, Err: errors.New("empty upload")}
	}

	resp, err := s.TranscribeBuffer(ctx, "", audio.Data, FormatFromFilename(audio.Filename), "")
	if err != nil {
		return "", &classifier.ClassificationError{Modality: classifier.ModalityASR, Err: err}
	}
	return strings.TrimSpace(resp.Text), nil
}

// FormatFromFilename maps an upload name to the audio format the service expects.
func FormatFromFilename(name string) string {
	switch ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")); ext {
	case "wav", "wave":
		return "wav"
	case "mp3", "ogg", "pcm", "webm", "m4a":
		return ext
	case "opus":
		return "ogg"
	default:
		return "wav"
	}
}

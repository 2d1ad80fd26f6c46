package classifier

import (
	"context"
	"errors"
	"fmt"

	analysis "github.com/zhouzirui/emopulse/backend/internal/analysis/emotion"
	"github.com/zhouzirui/emopulse/backend/internal/model/emotion"
)

// Modality names used in errors and logs.
const (
	ModalityText  = "text"
	ModalityFace  = "face"
	ModalityVoice = "voice"
	ModalityASR   = "transcription"
)

// ErrClassification marks every failure of a modality classifier.
var ErrClassification = errors.New("classification failed")

// ClassificationError reports which modality failed and why.
type ClassificationError struct {
	Modality string
	Err      error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("%s classifier: %v", e.Modality, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrClassification) match any ClassificationError.
func (e *ClassificationError) Is(target error) bool { return target == ErrClassification }

func classificationError(modality string, err error) error {
	return &ClassificationError{Modality: modality, Err: err}
}

// Media is an uploaded image or audio clip.
type Media struct {
	Filename string
	Data     []byte
}

// TextClassifier maps an utterance to a sentiment label with confidence.
type TextClassifier interface {
	ClassifyText(ctx context.Context, text string) (emotion.Signal, error)
}

// FaceClassifier maps a facial image to an emotion label.
type FaceClassifier interface {
	ClassifyFace(ctx context.Context, image Media) (emotion.Label, error)
}

// VoiceClassifier maps a voice clip to an emotion label from its tone.
type VoiceClassifier interface {
	ClassifyVoice(ctx context.Context, audio Media) (emotion.Label, error)
}

// Transcriber converts a voice clip to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio Media) (string, error)
}

// Heuristic classifies text with the keyword analyzer. It needs no model.
type Heuristic struct{}

// ClassifyText implements TextClassifier.
func (Heuristic) ClassifyText(_ context.Context, text string) (emotion.Signal, error) {
	decision := analysis.Analyze(text)
	if !decision.Emotion.Present() {
		return emotion.Signal{}, classificationError(ModalityText, errors.New("empty text"))
	}
	return emotion.Signal{Label: decision.Emotion, Confidence: decision.Confidence}, nil
}

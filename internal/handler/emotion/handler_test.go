package emotion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/emopulse/backend/internal/model/emotion"
	"github.com/zhouzirui/emopulse/backend/internal/service/ai"
	"github.com/zhouzirui/emopulse/backend/internal/service/chat"
	"github.com/zhouzirui/emopulse/backend/internal/service/classifier"
	"github.com/zhouzirui/emopulse/backend/internal/service/orchestrator"
)

type cannedModel struct{ reply string }

func (m cannedModel) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m cannedModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

type fixedMedia struct {
	label emotion.Label
	err   error
}

func (f fixedMedia) ClassifyFace(context.Context, classifier.Media) (emotion.Label, error) {
	return f.label, f.err
}

func (f fixedMedia) ClassifyVoice(context.Context, classifier.Media) (emotion.Label, error) {
	return f.label, f.err
}

type fixedTranscriber string

func (f fixedTranscriber) Transcribe(context.Context, classifier.Media) (string, error) {
	return string(f), nil
}

func setupRouter(t *testing.T, classifiers orchestrator.Classifiers) (*chi.Mux, chat.Store) {
	t.Helper()
	store := chat.NewMemoryStore()
	gen, err := ai.NewService(context.Background(), cannedModel{reply: "I hear you. Try deep breathing."}, store, nil, ai.Config{}, nil)
	require.NoError(t, err)

	h := New(orchestrator.NewService(classifiers, gen, nil), 1<<20, nil)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r, store
}

type part struct {
	field, filename, content string
}

func multipartRequest(t *testing.T, path string, parts ...part) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, p := range parts {
		if p.filename == "" {
			require.NoError(t, w.WriteField(p.field, p.content))
			continue
		}
		fw, err := w.CreateFormFile(p.field, p.filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(p.content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestUnifiedEmotionMaskingScenario(t *testing.T) {
	r, store := setupRouter(t, orchestrator.Classifiers{
		Face:        fixedMedia{label: emotion.Happy},
		Voice:       fixedMedia{label: emotion.Sad},
		Transcriber: fixedTranscriber("I'm fine"),
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, multipartRequest(t, "/unified_emotion",
		part{field: "user_id", content: "u1"},
		part{field: "text", content: "I'm okay I guess"},
		part{field: "face", filename: "face.jpg", content: "jpeg"},
		part{field: "voice", filename: "clip.webm", content: "webm"},
	))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decode(t, rec)
	assert.Equal(t, "I'm okay I guess", out["user_text"])
	assert.Equal(t, "Happy", out["face_emotion"])
	assert.Equal(t, "Sad", out["voice_emotion"])
	assert.Equal(t, "I'm fine", out["voice_text"])
	assert.Equal(t, "Sad", out["dominant_emotion"])
	assert.Equal(t, true, out["masking"])
	assert.Equal(t, "I hear you. Try deep breathing.", out["chatbot_response"])

	turns, err := store.GetHistory(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, emotion.Sad, turns[0].VoiceEmotion)
}

func TestUnifiedEmotionTextOnlyHasNullModalities(t *testing.T) {
	r, _ := setupRouter(t, orchestrator.Classifiers{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, multipartRequest(t, "/unified_emotion",
		part{field: "user_id", content: "u1"},
		part{field: "text", content: "I'm so happy today"},
	))
	require.Equal(t, http.StatusOK, rec.Code)

	out := decode(t, rec)
	assert.Nil(t, out["face_emotion"])
	assert.Nil(t, out["voice_emotion"])
	assert.Equal(t, "Happy", out["text_sentiment"])
	assert.Equal(t, "Happy", out["dominant_emotion"])
	assert.Equal(t, false, out["masking"])
}

func TestUnifiedEmotionValidation(t *testing.T) {
	r, _ := setupRouter(t, orchestrator.Classifiers{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, multipartRequest(t, "/unified_emotion", part{field: "text", content: "hi"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, multipartRequest(t, "/unified_emotion", part{field: "user_id", content: "u1"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "text is required")
}

func TestAnalyzeStatement(t *testing.T) {
	r, _ := setupRouter(t, orchestrator.Classifiers{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/analyze_statement", strings.NewReader(`{"text":"I'm furious, this is unfair!"}`))
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Angry", decode(t, rec)["sentiment"])

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/analyze_statement", strings.NewReader(`{"text":""}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/analyze_statement", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeFaceAndVoice(t *testing.T) {
	corrupt := &classifier.ClassificationError{Modality: classifier.ModalityVoice, Err: errors.New("unsupported codec")}
	r, _ := setupRouter(t, orchestrator.Classifiers{
		Face:  fixedMedia{label: emotion.Surprised},
		Voice: fixedMedia{err: fmt.Errorf("predict: %w", corrupt)},
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, multipartRequest(t, "/analyze_face", part{field: "files", filename: "f.png", content: "png"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Surprised", decode(t, rec)["emotion"])

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, multipartRequest(t, "/analyze_face", part{field: "user_id", content: "u1"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, multipartRequest(t, "/analyze_voice", part{field: "file", filename: "v.wav", content: "riff"}))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAnalyzeVoiceUnconfigured(t *testing.T) {
	r, _ := setupRouter(t, orchestrator.Classifiers{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, multipartRequest(t, "/analyze_voice", part{field: "file", filename: "v.wav", content: "riff"}))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// stubAnalyzer returns canned pipeline outcomes for status mapping.
type stubAnalyzer struct {
	res *orchestrator.Result
	err error
}

func (s stubAnalyzer) Analyze(context.Context, orchestrator.Request) (*orchestrator.Result, error) {
	return s.res, s.err
}

func (s stubAnalyzer) ClassifyText(context.Context, string) (emotion.Signal, error) {
	return emotion.Signal{}, s.err
}

func (s stubAnalyzer) ClassifyFace(context.Context, classifier.Media) (emotion.Label, error) {
	return emotion.None, s.err
}

func (s stubAnalyzer) ClassifyVoice(context.Context, classifier.Media) (emotion.Label, error) {
	return emotion.None, s.err
}

func TestUnifiedEmotionErrorStatuses(t *testing.T) {
	cases := []struct {
		name   string
		stub   stubAnalyzer
		status int
	}{
		{"generation failure", stubAnalyzer{err: fmt.Errorf("%w: quota", ai.ErrGeneration)}, http.StatusBadGateway},
		{"no model", stubAnalyzer{err: ai.ErrUnavailable}, http.StatusServiceUnavailable},
		{"storage write failure keeps reply", stubAnalyzer{
			res: &orchestrator.Result{UserText: "hi", Response: "hello there"},
			err: fmt.Errorf("%w: write", chat.ErrStorage),
		}, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			New(tc.stub, 0, nil).RegisterRoutes(r)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, multipartRequest(t, "/unified_emotion",
				part{field: "user_id", content: "u1"},
				part{field: "text", content: "hi"},
			))
			assert.Equal(t, tc.status, rec.Code)
			if tc.stub.res != nil {
				out := decode(t, rec)
				assert.Equal(t, "hello there", out["chatbot_response"])
				assert.Contains(t, out["error"], "conversation storage failed")
			}
		})
	}
}

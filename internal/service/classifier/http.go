package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/zhouzirui/emopulse/backend/internal/model/emotion"
)

const maxErrBody = 4096

// HTTPClient talks to the remote model services. Each endpoint is optional;
// a method whose endpoint is empty must not be wired.
type HTTPClient struct {
	c             *http.Client
	timeout       time.Duration
	textURL       string
	faceURL       string
	voiceURL      string
	transcribeURL string
}

// Endpoints lists base URLs of the remote model services.
type Endpoints struct {
	Text       string
	Face       string
	Voice      string
	Transcribe string
}

// NewHTTPClient builds a client with a pooled transport. timeout bounds one call.
func NewHTTPClient(endpoints Endpoints, timeout time.Duration) *HTTPClient {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: time.Minute,
		}).DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       2 * time.Minute,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		c:             &http.Client{Transport: tr},
		timeout:       timeout,
		textURL:       endpoints.Text,
		faceURL:       endpoints.Face,
		voiceURL:      endpoints.Voice,
		transcribeURL: endpoints.Transcribe,
	}
}

// --- text (/detect) ---

type textReq struct {
	Text string `json:"text"`
}

type labelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type textResp struct {
	Emotions        []labelScore `json:"emotions"`
	DominantEmotion string       `json:"dominant_emotion"`
}

// ClassifyText implements TextClassifier against POST {text}/detect.
func (h *HTTPClient) ClassifyText(ctx context.Context, text string) (emotion.Signal, error) {
	if strings.TrimSpace(text) == "" {
		return emotion.Signal{}, classificationError(ModalityText, errors.New("empty text"))
	}

	body, err := json.Marshal(textReq{Text: text})
	if err != nil {
		return emotion.Signal{}, classificationError(ModalityText, fmt.Errorf("marshal: %w", err))
	}

	var out textResp
	if err := h.post(ctx, h.textURL+"/detect", "application/json", body, &out); err != nil {
		return emotion.Signal{}, classificationError(ModalityText, err)
	}

	dominant, score := strings.TrimSpace(out.DominantEmotion), 0.0
	if dominant == "" {
		// no explicit dominant: take the highest scoring entry
		for i, e := range out.Emotions {
			if i == 0 || e.Score > score {
				dominant, score = e.Label, e.Score
			}
		}
	} else {
		for _, e := range out.Emotions {
			if strings.EqualFold(e.Label, dominant) && e.Score > score {
				score = e.Score
			}
		}
	}

	label, err := emotion.Parse(dominant)
	if err != nil {
		return emotion.Signal{}, classificationError(ModalityText, err)
	}
	return emotion.Signal{Label: label, Confidence: emotion.ClampConfidence(score)}, nil
}

// --- face / voice (/predict) ---

type mediaResp struct {
	Emotion    string  `json:"emotion"`
	Confidence float64 `json:"confidence"`
}

// ClassifyFace implements FaceClassifier against POST {face}/predict.
func (h *HTTPClient) ClassifyFace(ctx context.Context, image Media) (emotion.Label, error) {
	return h.classifyMedia(ctx, ModalityFace, h.faceURL, image)
}

// ClassifyVoice implements VoiceClassifier against POST {voice}/predict.
func (h *HTTPClient) ClassifyVoice(ctx context.Context, audio Media) (emotion.Label, error) {
	return h.classifyMedia(ctx, ModalityVoice, h.voiceURL, audio)
}

func (h *HTTPClient) classifyMedia(ctx context.Context, modality, baseURL string, media Media) (emotion.Label, error) {
	if len(media.Data) == 0 {
		return emotion.None, classificationError(modality, errors.New("empty upload"))
	}

	body, contentType, err := multipartBody(media)
	if err != nil {
		return emotion.None, classificationError(modality, err)
	}

	var out mediaResp
	if err := h.post(ctx, baseURL+"/predict", contentType, body, &out); err != nil {
		return emotion.None, classificationError(modality, err)
	}

	label, err := emotion.Parse(out.Emotion)
	if err != nil {
		return emotion.None, classificationError(modality, err)
	}
	return label, nil
}

// --- transcription (/transcribe) ---

type transSeg struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type transResp struct {
	Text     string     `json:"text"`
	Segments []transSeg `json:"segments"`
	Language string     `json:"language"`
}

// Transcribe implements Transcriber against POST {transcribe}/transcribe.
func (h *HTTPClient) Transcribe(ctx context.Context, audio Media) (string, error) {
	if len(audio.Data) == 0 {
		return "", classificationError(ModalityASR, errors.New("empty upload"))
	}

	body, contentType, err := multipartBody(audio)
	if err != nil {
		return "", classificationError(ModalityASR, err)
	}

	var out transResp
	if err := h.post(ctx, h.transcribeURL+"/transcribe", contentType, body, &out); err != nil {
		return "", classificationError(ModalityASR, err)
	}

	text := strings.TrimSpace(out.Text)
	if text == "" && len(out.Segments) > 0 {
		parts := make([]string, 0, len(out.Segments))
		for _, s := range out.Segments {
			if t := strings.TrimSpace(s.Text); t != "" {
				parts = append(parts, t)
			}
		}
		text = strings.Join(parts, " ")
	}
	return text, nil
}

func multipartBody(media Media) ([]byte, string, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	name := filepath.Base(media.Filename)
	if name == "" || name == "." || name == "/" {
		name = "upload"
	}
	fw, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(media.Data); err != nil {
		return nil, "", fmt.Errorf("copy upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return b.Bytes(), w.FormDataContentType(), nil
}

func (h *HTTPClient) post(ctx context.Context, url, contentType string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := h.c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

package speech

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/emopulse/backend/internal/logger"
	"github.com/zhouzirui/emopulse/backend/internal/model/speech"
)

const (
	defaultASREndpoint = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"
	// 16kHz, 16bit, mono, 200ms
	asrChunkSize = 6400
	// success codes the service reports in the result payload
	asrCodeOK      = 0
	asrCodeSuccess = 20000000
)

// ASRClient 火山引擎流式语音识别 WebSocket 客户端。
type ASRClient struct {
	config   *speech.SpeechConfig
	endpoint string
	dialer   *websocket.Dialer
	// pacing between audio chunks; the service expects near real-time input
	interval time.Duration
	log      logrus.FieldLogger
}

// NewASRClient 创建识别客户端。config.BaseURL 为空时使用官方端点。
func NewASRClient(config *speech.SpeechConfig, log logrus.FieldLogger) *ASRClient {
	endpoint := strings.TrimSpace(config.BaseURL)
	if endpoint == "" {
		endpoint = defaultASREndpoint
	}
	return &ASRClient{
		config:   config,
		endpoint: endpoint,
		dialer:   &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		interval: 200 * time.Millisecond,
		log:      logger.Component(log, "asr"),
	}
}

type asrRequestPayload struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

type asrUtterance struct {
	Text      string `json:"text"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
	Definite  bool   `json:"definite"`
}

type asrServerMessage struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Result   struct {
		Text       string         `json:"text"`
		Utterances []asrUtterance `json:"utterances,omitempty"`
	} `json:"result"`
	AudioInfo struct {
		Duration int64 `json:"duration"`
	} `json:"audio_info"`
}

// Transcribe 发送完整音频并等待最终识别结果。
func (c *ASRClient) Transcribe(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error) {
	appID, token, err := resolveCredentials(c.config)
	if err != nil {
		return nil, err
	}

	audio, err := io.ReadAll(req.AudioData)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("no audio data to send")
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	resourceID := "volc.bigasr.sauc.duration"
	if c.config.ConcurrentMode {
		resourceID = "volc.bigasr.sauc.concurrent"
	}
	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", requestID)

	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ASR websocket: %w", err)
	}
	defer conn.Close()

	entry := c.log.WithField("request_id", requestID)
	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			entry = entry.WithField("logid", logid)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// unblock ReadMessage when the caller gives up
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := c.sendRequest(conn, c.buildPayload(req, requestID)); err != nil {
		return nil, err
	}

	sendErr := make(chan error, 1)
	go func() { sendErr <- c.sendAudio(ctx, conn, audio) }()

	result, err := c.receive(conn, requestID, entry)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	// the service may answer before the last chunk; surface send failures only when no result arrived
	select {
	case err := <-sendErr:
		if err != nil {
			entry.WithError(err).Debug("audio send ended early")
		}
	default:
	}
	return result, nil
}

func (c *ASRClient) buildPayload(req *speech.ASRRequest, requestID string) *asrRequestPayload {
	p := &asrRequestPayload{}
	p.User.UID = requestID

	p.Audio.Format = req.Format
	if p.Audio.Format == "" {
		p.Audio.Format = "wav"
	}
	p.Audio.Language = firstNonEmpty(req.Language, c.config.ASRLanguage, "en-US")
	p.Audio.Codec = "raw"
	p.Audio.Rate = 16000
	p.Audio.Bits = 16
	p.Audio.Channel = 1

	p.Request.ModelName = firstNonEmpty(c.config.ASRModel, "bigmodel")
	p.Request.EnableITN = true
	p.Request.EnablePunc = true
	p.Request.ShowUtterances = true
	p.Request.ResultType = "full"
	p.Request.EndWindowSize = 800
	return p
}

func (c *ASRClient) sendRequest(conn *websocket.Conn, payload *asrRequestPayload) error {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal ASR request: %w", err)
	}
	compressed, err := compressPayload(data, gzipCompression)
	if err != nil {
		return fmt.Errorf("failed to compress payload: %w", err)
	}
	f := &frame{Type: fullClientRequest, Flags: noSequence, Serialization: jsonSerialization, Compression: gzipCompression, Payload: compressed}
	if err := conn.WriteMessage(websocket.BinaryMessage, f.encode()); err != nil {
		return fmt.Errorf("failed to send ASR request: %w", err)
	}
	return nil
}

func (c *ASRClient) sendAudio(ctx context.Context, conn *websocket.Conn, audio []byte) error {
	// the full client request takes sequence 1
	seq := int32(2)
	for start := 0; start < len(audio); start += asrChunkSize {
		end := min(start+asrChunkSize, len(audio))
		last := end == len(audio)

		chunk, err := compressPayload(audio[start:end], gzipCompression)
		if err != nil {
			return fmt.Errorf("failed to compress audio chunk: %w", err)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, newAudioFrame(chunk, seq, last).encode()); err != nil {
			return fmt.Errorf("failed to send audio chunk: %w", err)
		}
		seq++
		if last {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.interval):
		}
	}
	return nil
}

func (c *ASRClient) receive(conn *websocket.Conn, requestID string, entry logrus.FieldLogger) (*speech.ASRResponse, error) {
	var (
		text     string
		duration int64
	)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("failed to read ASR response: %w", err)
		}
		f, err := decodeFrame(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode ASR message: %w", err)
		}

		switch f.Type {
		case serverError:
			payload, _ := decompressPayload(f.Payload, f.Compression)
			return nil, fmt.Errorf("ASR error %d: %s", f.ErrorCode, strings.TrimSpace(string(payload)))

		case fullServerResponse:
			payload, err := decompressPayload(f.Payload, f.Compression)
			if err != nil {
				return nil, fmt.Errorf("failed to decompress ASR payload: %w", err)
			}
			var msg asrServerMessage
			if err := sonic.Unmarshal(payload, &msg); err != nil {
				entry.WithError(err).Warn("skip undecodable ASR payload")
				continue
			}
			if msg.Code != asrCodeOK && msg.Code != asrCodeSuccess {
				return nil, fmt.Errorf("ASR API error %d: %s", msg.Code, msg.Message)
			}

			if candidate := resultText(msg); candidate != "" {
				text = candidate
			}
			if msg.AudioInfo.Duration > 0 {
				duration = msg.AudioInfo.Duration
			}

			if f.isLast() || msg.Sequence < 0 {
				if text == "" {
					entry.Warn("empty transcript")
				}
				return &speech.ASRResponse{
					RequestID:  requestID,
					Text:       text,
					Confidence: estimateConfidence(text),
					Duration:   duration,
					CreatedAt:  time.Now().UTC(),
				}, nil
			}

		default:
			// audio acks carry nothing we need
		}
	}
}

func resultText(msg asrServerMessage) string {
	if t := strings.TrimSpace(msg.Result.Text); t != "" {
		return t
	}
	parts := make([]string, 0, len(msg.Result.Utterances))
	for _, u := range msg.Result.Utterances {
		if t := strings.TrimSpace(u.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func estimateConfidence(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return 0.95
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

package emotion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/emopulse/backend/internal/logger"
	label "github.com/zhouzirui/emopulse/backend/internal/model/emotion"
	"github.com/zhouzirui/emopulse/backend/internal/service/classifier"
)

// Config 控制情绪分类服务的行为。
type Config struct {
	Enabled bool
	// Timeout 限制单次模型调用，超时后走启发式。默认 30s。
	Timeout time.Duration
}

// Service 使用大模型对用户文本做情绪分类，失败时回退到启发式规则。
// 它实现 classifier.TextClassifier。
type Service struct {
	enabled    bool
	classifier compose.Runnable[map[string]any, *schema.Message]
	fallback   classifier.TextClassifier
	timeout    time.Duration
	log        logrus.FieldLogger
}

// NewService 创建情绪分类服务。chatModel 可重用对话生成使用的模型实例；为 nil 时只走启发式。
func NewService(ctx context.Context, chatModel model.BaseChatModel, cfg Config, log logrus.FieldLogger) (*Service, error) {
	if log == nil {
		log = logger.Discard()
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	svc := &Service{
		enabled:  cfg.Enabled && chatModel != nil,
		fallback: classifier.Heuristic{},
		timeout:  cfg.Timeout,
		log:      logger.Component(log, "emotion"),
	}
	if !svc.enabled {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(sentimentSystemPrompt),
		schema.UserMessage(sentimentUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile sentiment classifier chain: %w", err)
	}

	svc.classifier = runnable
	return svc, nil
}

// Enabled 返回大模型分类是否启用。
func (s *Service) Enabled() bool {
	return s != nil && s.enabled && s.classifier != nil
}

// ClassifyText implements classifier.TextClassifier.
func (s *Service) ClassifyText(ctx context.Context, text string) (label.Signal, error) {
	text = strings.TrimSpace(text)
	if !s.Enabled() || text == "" {
		return s.fallback.ClassifyText(ctx, text)
	}

	invokeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg, err := s.classifier.Invoke(invokeCtx, map[string]any{"user_message": text})
	if err != nil {
		s.log.WithError(err).Warn("sentiment classifier invoke failed, use fallback")
		return s.fallback.ClassifyText(ctx, text)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return s.fallback.ClassifyText(ctx, text)
	}

	payload, err := parseClassifierOutput(msg.Content)
	if err != nil {
		s.log.WithError(err).Warn("sentiment classifier output parse failed, use fallback")
		return s.fallback.ClassifyText(ctx, text)
	}

	parsed, err := label.Parse(payload.Emotion)
	if err != nil {
		s.log.WithField("raw", payload.Emotion).Warn("sentiment classifier returned unknown label, use fallback")
		return s.fallback.ClassifyText(ctx, text)
	}

	confidence := payload.Confidence
	if confidence <= 0 {
		confidence = 0.6
	}

	s.log.WithFields(logrus.Fields{
		"emotion":    parsed,
		"confidence": confidence,
		"reason":     strings.TrimSpace(payload.Reason),
	}).Debug("sentiment classified")

	return label.Signal{Label: parsed, Confidence: label.ClampConfidence(confidence)}, nil
}

// parseClassifierOutput 解析大模型返回的 JSON，容忍前后多余文本。
func parseClassifierOutput(content string) (*classifierPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}

	payload := &classifierPayload{}
	if err := sonic.UnmarshalString(trimmed[start:end+1], payload); err != nil {
		return nil, err
	}
	return payload, nil
}

type classifierPayload struct {
	Emotion    string  `json:"emotion"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

const sentimentSystemPrompt = "You are a sentiment analyst. Read the user's message and infer the emotion it expresses.\n" +
	"Reply with a single JSON object and nothing else, with fields: emotion (one of neutral/happy/sad/angry/fearful/disgusted/surprised), " +
	"confidence (a number between 0 and 1), reason (one short sentence)."

const sentimentUserPrompt = "User message:\n{user_message}\n\nReturn the JSON now."

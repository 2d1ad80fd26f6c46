package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	analysis "github.com/zhouzirui/emopulse/backend/internal/analysis/emotion"
	"github.com/zhouzirui/emopulse/backend/internal/logger"
	chatmodel "github.com/zhouzirui/emopulse/backend/internal/model/chat"
	"github.com/zhouzirui/emopulse/backend/internal/model/emotion"
	"github.com/zhouzirui/emopulse/backend/internal/service/chat"
	"github.com/zhouzirui/emopulse/backend/internal/service/classifier"
)

var (
	// ErrGeneration marks a failed or timed-out generation call. Nothing is persisted.
	ErrGeneration = errors.New("response generation failed")
	// ErrUnavailable is returned when no chat model is configured.
	ErrUnavailable = errors.New("response generation unavailable")
	// ErrEmptyUtterance rejects a request without user text.
	ErrEmptyUtterance = errors.New("user text is required")
)

const persistTimeout = 5 * time.Second

// Config bounds one generation.
type Config struct {
	// HistoryWindow is the number of trailing turns fed to the model.
	HistoryWindow int
	Timeout       time.Duration
}

// Request is one user utterance with the modality labels gathered upstream.
// Sentiment may be nil, in which case the text is classified here.
type Request struct {
	UserID    string
	UserText  string
	Sentiment *emotion.Signal
	Face      emotion.Label
	Voice     emotion.Label
}

// Reply carries the generated text and the emotion context that shaped it.
type Reply struct {
	Text      string
	Sentiment emotion.Signal
	Dominant  emotion.Label
	Rule      analysis.Rule
	Masking   bool
	// HistoryDegraded is set when history could not be read and the reply was generated without it.
	HistoryDegraded bool
}

// Service is the response generator: prompt construction, model call, persistence.
type Service struct {
	chain compose.Runnable[map[string]any, *schema.Message]
	store chat.Store
	text  classifier.TextClassifier
	cfg   Config
	log   logrus.FieldLogger
}

// NewService compiles the generation chain. A nil chatModel yields a service whose
// GenerateResponse always fails with ErrUnavailable.
func NewService(ctx context.Context, chatModel model.BaseChatModel, store chat.Store, text classifier.TextClassifier, cfg Config, log logrus.FieldLogger) (*Service, error) {
	if store == nil {
		return nil, errors.New("conversation store is required")
	}
	if text == nil {
		text = classifier.Heuristic{}
	}
	if cfg.HistoryWindow < 1 {
		cfg.HistoryWindow = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	svc := &Service{
		store: store,
		text:  text,
		cfg:   cfg,
		log:   logger.Component(log, "ai"),
	}
	if chatModel == nil {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}
	svc.chain = runnable
	return svc, nil
}

// Available reports whether a chat model is wired.
func (s *Service) Available() bool {
	return s != nil && s.chain != nil
}

// GenerateResponse produces the therapist reply for one utterance and appends the turn
// to the user's history.
//
// When the reply was generated but could not be stored, both the reply and an error
// wrapping chat.ErrStorage are returned.
func (s *Service) GenerateResponse(ctx context.Context, req Request) (*Reply, error) {
	if !s.Available() {
		return nil, ErrUnavailable
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, chat.ErrUserIDRequired
	}
	userText := strings.TrimSpace(req.UserText)
	if userText == "" {
		return nil, ErrEmptyUtterance
	}

	entry := s.log.WithField("user_id", userID)
	reply := &Reply{}

	history, err := s.store.GetHistory(ctx, userID)
	if err != nil {
		entry.WithError(err).Warn("history unavailable, continuing without it")
		history, reply.HistoryDegraded = nil, true
	}

	reply.Sentiment = s.sentiment(ctx, entry, req.Sentiment, userText)

	signals := emotion.ModalitySignals{Text: reply.Sentiment.Label, Voice: req.Voice, Face: req.Face}
	fusion := analysis.Fuse(signals)
	reply.Dominant, reply.Rule = fusion.Dominant, fusion.Rule
	reply.Masking = analysis.DetectMasking(req.Voice, req.Face)

	entry = entry.WithFields(logrus.Fields{
		"text":     signals.Text,
		"voice":    signals.Voice,
		"face":     signals.Face,
		"dominant": reply.Dominant,
		"rule":     reply.Rule,
		"masking":  reply.Masking,
	})
	entry.Info("emotion fused")

	input := map[string]any{
		"system":  therapistSystemPrompt,
		"history": buildHistoryMessages(chatmodel.LastN(history, s.cfg.HistoryWindow)),
		"query":   buildUserPrompt(userText, reply.Dominant, reply.Masking, req.Voice, req.Face),
	}

	genCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	msg, err := s.chain.Invoke(genCtx, input)
	if err != nil {
		entry.WithError(err).Error("generation failed")
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		entry.Error("generation returned empty content")
		return nil, fmt.Errorf("%w: empty response", ErrGeneration)
	}
	reply.Text = strings.TrimSpace(msg.Content)

	entry.WithFields(logrus.Fields{
		"length":  len(reply.Text),
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Info("generated response")

	turn := chatmodel.Turn{
		UserMessage:  userText,
		AIResponse:   reply.Text,
		VoiceEmotion: req.Voice,
	}
	// 客户端断开不应丢掉已生成的回复。
	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancelPersist()

	if err := s.store.AppendTurn(persistCtx, userID, turn); err != nil {
		entry.WithError(err).Error("failed to persist turn")
		if !errors.Is(err, chat.ErrStorage) {
			err = fmt.Errorf("%w: %v", chat.ErrStorage, err)
		}
		return reply, err
	}
	return reply, nil
}

func (s *Service) sentiment(ctx context.Context, entry logrus.FieldLogger, given *emotion.Signal, text string) emotion.Signal {
	if given != nil {
		return *given
	}
	signal, err := s.text.ClassifyText(ctx, text)
	if err != nil {
		entry.WithError(err).Warn("text classification failed, treating sentiment as absent")
		return emotion.Signal{}
	}
	return signal
}

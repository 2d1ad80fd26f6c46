package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	analysis "github.com/zhouzirui/emopulse/backend/internal/analysis/emotion"
	chatmodel "github.com/zhouzirui/emopulse/backend/internal/model/chat"
	"github.com/zhouzirui/emopulse/backend/internal/model/emotion"
	"github.com/zhouzirui/emopulse/backend/internal/service/chat"
)

// recordingModel captures the transcript it receives and answers with a fixed reply.
type recordingModel struct {
	mu    sync.Mutex
	reply string
	err   error
	delay time.Duration
	seen  [][]*schema.Message
}

func (m *recordingModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	m.seen = append(m.seen, input)
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m *recordingModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

func (m *recordingModel) last() []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[len(m.seen)-1]
}

type failingStore struct {
	readErr  error
	writeErr error
}

func (f failingStore) AppendTurn(context.Context, string, chatmodel.Turn) error { return f.writeErr }

func (f failingStore) GetHistory(context.Context, string) ([]chatmodel.Turn, error) {
	return nil, f.readErr
}

func newTestService(t *testing.T, m model.BaseChatModel, store chat.Store, cfg Config) *Service {
	t.Helper()
	svc, err := NewService(context.Background(), m, store, nil, cfg, nil)
	require.NoError(t, err)
	return svc
}

func signal(l emotion.Label) *emotion.Signal {
	return &emotion.Signal{Label: l, Confidence: 0.9}
}

func TestGenerateResponseSadScenario(t *testing.T) {
	fake := &recordingModel{reply: "I'm sorry you're feeling this way. Try a grounding exercise."}
	store := chat.NewMemoryStore()
	svc := newTestService(t, fake, store, Config{})

	reply, err := svc.GenerateResponse(context.Background(), Request{
		UserID:   "u1",
		UserText: "I'm exhausted and nothing is working",
		Voice:    emotion.Sad,
		Face:     emotion.Neutral,
	})
	require.NoError(t, err)

	assert.Equal(t, emotion.Sad, reply.Sentiment.Label, "heuristic classifies the utterance")
	assert.Equal(t, emotion.Sad, reply.Dominant)
	assert.Equal(t, analysis.RuleVoiceTextAgree, reply.Rule)
	assert.True(t, reply.Masking, "voice and face differ")

	transcript := fake.last()
	require.Len(t, transcript, 2)
	assert.Equal(t, schema.System, transcript[0].Role)
	assert.Contains(t, transcript[0].Content, "Acknowledge the user's emotions")
	assert.Equal(t, schema.User, transcript[1].Role)
	assert.Contains(t, transcript[1].Content, "I'm exhausted and nothing is working")

	turns, err := store.GetHistory(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "I'm exhausted and nothing is working", turns[0].UserMessage)
	assert.Equal(t, reply.Text, turns[0].AIResponse)
	assert.Equal(t, emotion.Sad, turns[0].VoiceEmotion)
}

func TestGenerateResponseMaskingWording(t *testing.T) {
	fake := &recordingModel{reply: "It's okay to feel more than one thing."}
	svc := newTestService(t, fake, chat.NewMemoryStore(), Config{})

	reply, err := svc.GenerateResponse(context.Background(), Request{
		UserID:    "u1",
		UserText:  "I'm fine, really",
		Sentiment: signal(emotion.Neutral),
		Voice:     emotion.Sad,
		Face:      emotion.Happy,
	})
	require.NoError(t, err)
	assert.Equal(t, emotion.Sad, reply.Dominant)
	assert.Equal(t, analysis.RulePriorityFallback, reply.Rule)
	assert.True(t, reply.Masking)

	query := fake.last()[1].Content
	assert.Contains(t, query, "voice suggests sad, but their face appears happy")
	assert.Contains(t, query, "masking their true emotions")
	assert.NotContains(t, query, "The user feels")
}

func TestGenerateResponseNoMaskingWhenVoiceMatchesFace(t *testing.T) {
	fake := &recordingModel{reply: "Glad to hear it!"}
	svc := newTestService(t, fake, chat.NewMemoryStore(), Config{})

	reply, err := svc.GenerateResponse(context.Background(), Request{
		UserID:    "u1",
		UserText:  "whatever",
		Sentiment: signal(emotion.Angry),
		Voice:     emotion.Happy,
		Face:      emotion.Happy,
	})
	require.NoError(t, err)
	assert.Equal(t, emotion.Happy, reply.Dominant)
	assert.Equal(t, analysis.RuleVoiceFaceAgree, reply.Rule)
	assert.False(t, reply.Masking)
	assert.Contains(t, fake.last()[1].Content, "The user feels happy")
}

func TestGenerateResponseReplaysBoundedHistory(t *testing.T) {
	fake := &recordingModel{reply: "reply"}
	store := chat.NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendTurn(ctx, "u1", chatmodel.Turn{
			UserMessage: fmt.Sprintf("user %d", i),
			AIResponse:  fmt.Sprintf("assistant %d", i),
		}))
	}

	svc := newTestService(t, fake, store, Config{HistoryWindow: 2})
	_, err := svc.GenerateResponse(ctx, Request{UserID: "u1", UserText: "hello again", Sentiment: signal(emotion.Neutral)})
	require.NoError(t, err)

	transcript := fake.last()
	// system + 2 turns * 2 messages + final user turn
	require.Len(t, transcript, 6)
	assert.Equal(t, schema.User, transcript[1].Role)
	assert.Equal(t, "user 3", transcript[1].Content)
	assert.Equal(t, schema.Assistant, transcript[2].Role)
	assert.Equal(t, "assistant 3", transcript[2].Content)
	assert.Equal(t, "assistant 4", transcript[4].Content)
	assert.Equal(t, schema.User, transcript[5].Role)
}

func TestGenerateResponseFailureDoesNotPersist(t *testing.T) {
	fake := &recordingModel{err: errors.New("quota exceeded")}
	store := chat.NewMemoryStore()
	svc := newTestService(t, fake, store, Config{})

	reply, err := svc.GenerateResponse(context.Background(), Request{UserID: "u1", UserText: "hi"})
	assert.Nil(t, reply)
	assert.True(t, errors.Is(err, ErrGeneration))

	turns, err := store.GetHistory(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestGenerateResponseTimeoutIsGenerationError(t *testing.T) {
	fake := &recordingModel{reply: "too late", delay: time.Second}
	store := chat.NewMemoryStore()
	svc := newTestService(t, fake, store, Config{Timeout: 20 * time.Millisecond})

	_, err := svc.GenerateResponse(context.Background(), Request{UserID: "u1", UserText: "hi"})
	assert.True(t, errors.Is(err, ErrGeneration))

	turns, _ := store.GetHistory(context.Background(), "u1")
	assert.Empty(t, turns)
}

func TestGenerateResponseEmptyContentIsGenerationError(t *testing.T) {
	svc := newTestService(t, &recordingModel{reply: "   "}, chat.NewMemoryStore(), Config{})
	_, err := svc.GenerateResponse(context.Background(), Request{UserID: "u1", UserText: "hi"})
	assert.True(t, errors.Is(err, ErrGeneration))
}

func TestGenerateResponseDegradesOnHistoryReadFailure(t *testing.T) {
	fake := &recordingModel{reply: "still here for you"}
	store := failingStore{readErr: fmt.Errorf("%w: connection refused", chat.ErrStorage)}
	svc := newTestService(t, fake, store, Config{})

	reply, err := svc.GenerateResponse(context.Background(), Request{UserID: "u1", UserText: "hi"})
	require.NoError(t, err)
	assert.True(t, reply.HistoryDegraded)
	assert.Len(t, fake.last(), 2)
}

func TestGenerateResponseWriteFailureReturnsReplyAndStorageError(t *testing.T) {
	fake := &recordingModel{reply: "here is my reply"}
	store := failingStore{writeErr: errors.New("disk full")}
	svc := newTestService(t, fake, store, Config{})

	reply, err := svc.GenerateResponse(context.Background(), Request{UserID: "u1", UserText: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, chat.ErrStorage))
	require.NotNil(t, reply)
	assert.Equal(t, "here is my reply", reply.Text)
}

func TestGenerateResponseValidation(t *testing.T) {
	svc := newTestService(t, &recordingModel{reply: "x"}, chat.NewMemoryStore(), Config{})

	_, err := svc.GenerateResponse(context.Background(), Request{UserText: "hi"})
	assert.True(t, errors.Is(err, chat.ErrUserIDRequired))

	_, err = svc.GenerateResponse(context.Background(), Request{UserID: "u1", UserText: "  "})
	assert.True(t, errors.Is(err, ErrEmptyUtterance))
}

func TestGenerateResponseUnavailableWithoutModel(t *testing.T) {
	svc, err := NewService(context.Background(), nil, chat.NewMemoryStore(), nil, Config{}, nil)
	require.NoError(t, err)
	assert.False(t, svc.Available())

	_, err = svc.GenerateResponse(context.Background(), Request{UserID: "u1", UserText: "hi"})
	assert.True(t, errors.Is(err, ErrUnavailable))
}

// disconnectingStore cancels the request context right before writing, as a client
// disconnect would, and refuses writes whose context is already done.
type disconnectingStore struct {
	*chat.MemoryStore
	disconnect context.CancelFunc
}

func (s disconnectingStore) AppendTurn(ctx context.Context, userID string, turn chatmodel.Turn) error {
	s.disconnect()
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.AppendTurn(ctx, userID, turn)
}

func TestGenerateResponsePersistsAfterClientDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := disconnectingStore{MemoryStore: chat.NewMemoryStore(), disconnect: cancel}
	svc := newTestService(t, &recordingModel{reply: "take a slow breath with me"}, store, Config{})

	reply, err := svc.GenerateResponse(ctx, Request{UserID: "u1", UserText: "everything is too much", Sentiment: signal(emotion.Sad)})
	require.NoError(t, err)
	assert.Equal(t, "take a slow breath with me", reply.Text)

	turns, err := store.GetHistory(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, reply.Text, turns[0].AIResponse)
}

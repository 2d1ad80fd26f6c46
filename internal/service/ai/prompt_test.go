package ai

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	chatmodel "github.com/zhouzirui/emopulse/backend/internal/model/chat"
	"github.com/zhouzirui/emopulse/backend/internal/model/emotion"
)

func TestSystemPromptOrdersSteps(t *testing.T) {
	steps := []string{"Acknowledge", "technique", "activity", "Reassure"}
	last := -1
	for _, step := range steps {
		idx := strings.Index(therapistSystemPrompt, step)
		if idx <= last {
			t.Fatalf("step %q out of order (at %d, previous %d)", step, idx, last)
		}
		last = idx
	}
}

func TestBuildUserPromptAbsentDominant(t *testing.T) {
	got := buildUserPrompt("hello", emotion.None, false, emotion.None, emotion.None)
	if !strings.Contains(got, "No clear emotion") {
		t.Fatalf("expected neutral check-in wording, got %q", got)
	}
}

func TestBuildHistoryMessagesSkipsBlankSides(t *testing.T) {
	msgs := buildHistoryMessages([]chatmodel.Turn{
		{UserMessage: "hi", AIResponse: "hello"},
		{UserMessage: "", AIResponse: "orphan reply"},
	})
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[2].Role != schema.Assistant {
		t.Fatalf("expected assistant role, got %s", msgs[2].Role)
	}
}

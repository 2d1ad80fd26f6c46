package ai

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/emopulse/backend/internal/model/chat"
	"github.com/zhouzirui/emopulse/backend/internal/model/emotion"
)

// therapistSystemPrompt fixes the persona and the four-step reply structure.
const therapistSystemPrompt = "You are a compassionate AI mental health therapist, dedicated to helping users feel heard, understood, and supported. " +
	"Recognise and acknowledge their emotions with empathy before offering any solution. " +
	"Never give a generic reply: each answer must be personalised to the user's current emotional state.\n\n" +
	"Response structure:\n" +
	"1. Acknowledge the user's emotions: show empathy and understanding.\n" +
	"2. Offer a technique: suggest a coping mechanism, a mindfulness exercise or supportive words. If the user is sad or anxious, console them.\n" +
	"3. Recommend an activity or task that fits how they feel: relaxation, an engaging activity or a positive habit.\n" +
	"4. Reassure: end with a comforting message reminding them they are not alone and encouraging self-care.\n\n" +
	"Format technique suggestions as bullet points, for example:\n" +
	"  - Deep Breathing: take slow, deep breaths in and out.\n" +
	"  - Grounding Exercise: name 5 things you can see, 4 you can touch, 3 you can hear.\n" +
	"  - Positive Distraction: listen to a favourite song or watch something funny.\n\n" +
	"Keep replies concise, warm and structured."

// maskingPrompt is used instead of the dominant-emotion line when voice and face disagree.
func maskingPrompt(voice, face emotion.Label) string {
	return fmt.Sprintf("The user's voice suggests %s, but their face appears %s. "+
		"They might be masking their true emotions. Respond gently and encourage them to express how they truly feel.",
		strings.ToLower(string(voice)), strings.ToLower(string(face)))
}

func emotionPrompt(dominant emotion.Label) string {
	if !dominant.Present() {
		return "No clear emotion could be detected. Gently check in on how the user is feeling."
	}
	return fmt.Sprintf("The user feels %s. Respond appropriately.", strings.ToLower(string(dominant)))
}

// buildUserPrompt renders the final user turn: the emotion context followed by the utterance.
func buildUserPrompt(userText string, dominant emotion.Label, masking bool, voice, face emotion.Label) string {
	var b strings.Builder
	if masking {
		b.WriteString(maskingPrompt(voice, face))
	} else {
		b.WriteString(emotionPrompt(dominant))
	}
	b.WriteString("\n\nThey said: \"")
	b.WriteString(strings.TrimSpace(userText))
	b.WriteString("\"\n\n")
	b.WriteString("Acknowledge their emotions with empathy first, then suggest a therapy technique such as deep breathing, mindfulness or journaling, " +
		"recommend an activity that suits how they feel, and conclude with a comforting message.")
	return b.String()
}

// buildHistoryMessages maps stored turns to an alternating user/assistant transcript.
func buildHistoryMessages(turns []chat.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}
	history := make([]*schema.Message, 0, len(turns)*2)
	for _, turn := range turns {
		if msg := strings.TrimSpace(turn.UserMessage); msg != "" {
			history = append(history, schema.UserMessage(msg))
		}
		if reply := strings.TrimSpace(turn.AIResponse); reply != "" {
			history = append(history, schema.AssistantMessage(reply, nil))
		}
	}
	return history
}

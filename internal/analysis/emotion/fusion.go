package emotion

import (
	model "github.com/zhouzirui/emopulse/backend/internal/model/emotion"
)

// Rule identifies which precedence step produced a fused label.
type Rule string

const (
	RuleVoiceTextAgree     Rule = "voice-text-agree"
	RuleVoiceOverridesPair Rule = "voice-overrides-text-face"
	RuleVoiceFaceAgree     Rule = "voice-face-agree"
	RulePriorityFallback   Rule = "priority-fallback"
	RuleNoSignal           Rule = "no-signal"
)

// Fusion is the dominant emotion for one request and the rule that chose it.
type Fusion struct {
	Dominant model.Label
	Rule     Rule
}

// Fuse reconciles the three modality labels into one dominant label.
// Rules are evaluated in order and the first match wins; absent labels never
// take part in an agreement. Voice is the priority channel.
func Fuse(signals model.ModalitySignals) Fusion {
	text, voice, face := signals.Text, signals.Voice, signals.Face
	switch {
	case voice.Present() && voice == text:
		return Fusion{Dominant: voice, Rule: RuleVoiceTextAgree}
	case voice.Present() && text.Present() && text == face && voice != text:
		return Fusion{Dominant: voice, Rule: RuleVoiceOverridesPair}
	case voice.Present() && voice == face && text != voice:
		return Fusion{Dominant: voice, Rule: RuleVoiceFaceAgree}
	}

	for _, candidate := range []model.Label{voice, text, face} {
		if candidate.Present() {
			return Fusion{Dominant: candidate, Rule: RulePriorityFallback}
		}
	}
	return Fusion{Dominant: model.None, Rule: RuleNoSignal}
}

// DetectMasking reports a voice/face mismatch: both present and different.
func DetectMasking(voice, face model.Label) bool {
	return voice.Present() && face.Present() && voice != face
}

package emotion

import (
	"math"
	"strings"

	model "github.com/zhouzirui/emopulse/backend/internal/model/emotion"
)

// Decision is the heuristic sentiment of one utterance.
type Decision struct {
	Emotion    model.Label
	Confidence float64
	Score      int
}

var keywordBuckets = map[model.Label][]string{
	model.Happy: {
		"happy", "glad", "great", "awesome", "amazing", "wonderful", "love", "thanks", "thank you",
		"excited", "joy", "delighted", "grateful", "good news", "finally worked", "开心", "高兴", "太好了",
	},
	model.Sad: {
		"sad", "exhausted", "tired", "lonely", "alone", "depressed", "down", "hopeless", "cry",
		"crying", "miss", "nothing is working", "worthless", "hurt", "upset", "难过", "伤心", "失落",
	},
	model.Angry: {
		"angry", "furious", "mad", "annoyed", "pissed", "hate", "rage", "fed up", "sick of",
		"unfair", "irritated", "生气", "愤怒", "受够了",
	},
	model.Fearful: {
		"afraid", "scared", "anxious", "anxiety", "worried", "nervous", "panic", "terrified",
		"fear", "overwhelmed", "what if", "害怕", "焦虑", "担心",
	},
	model.Disgusted: {
		"disgusted", "disgusting", "gross", "sickening", "revolting", "nasty", "恶心",
	},
	model.Surprised: {
		"surprised", "shocked", "unexpected", "can't believe", "cannot believe", "no way", "wow",
		"suddenly", "惊讶", "没想到",
	},
}

var punctuationBoost = map[model.Label]int{
	model.Surprised: 2,
	model.Angry:     1,
}

// Analyze scores an utterance against the keyword buckets. Text without any
// cue is Neutral with low confidence; an empty utterance yields no label.
func Analyze(text string) Decision {
	normalized := strings.TrimSpace(strings.ToLower(text))
	if normalized == "" {
		return Decision{Emotion: model.None}
	}

	scores := make(map[model.Label]int)
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, word) {
				scores[label] += 3
			}
		}
	}

	// punctuation only sharpens an emotion that already has a keyword hit
	if exclamations := strings.Count(text, "!"); exclamations > 0 {
		for label, boost := range punctuationBoost {
			if scores[label] > 0 {
				scores[label] += exclamations * boost
			}
		}
	}
	if questions := strings.Count(text, "?"); questions > 1 && scores[model.Surprised] > 0 {
		scores[model.Surprised] += punctuationBoost[model.Surprised]
	}

	best := model.Neutral
	bestScore, total := 0, 0
	// iterate in the closed-set order so ties resolve deterministically
	for _, label := range model.Labels {
		s := scores[label]
		total += s
		if s > bestScore {
			best, bestScore = label, s
		}
	}

	if bestScore == 0 {
		return Decision{Emotion: model.Neutral, Confidence: 0.4, Score: 0}
	}

	// share of the winning bucket, scaled up by absolute evidence
	share := float64(bestScore) / float64(total)
	strength := 1 - math.Exp(-float64(bestScore)/6)
	confidence := 0.35 + 0.6*share*strength
	return Decision{Emotion: best, Confidence: model.ClampConfidence(confidence), Score: bestScore}
}

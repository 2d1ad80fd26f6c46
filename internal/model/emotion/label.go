package emotion

import (
	"fmt"
	"strings"
)

// Label is one value of the closed emotion set shared by every modality.
// The zero value means the modality produced no label.
type Label string

const (
	None      Label = ""
	Neutral   Label = "Neutral"
	Happy     Label = "Happy"
	Sad       Label = "Sad"
	Angry     Label = "Angry"
	Fearful   Label = "Fearful"
	Disgusted Label = "Disgusted"
	Surprised Label = "Surprised"
)

// Labels lists the closed set in classifier index order.
var Labels = []Label{Neutral, Happy, Sad, Angry, Fearful, Disgusted, Surprised}

var aliases = map[string]Label{
	"neutral":   Neutral,
	"calm":      Neutral,
	"happy":     Happy,
	"happiness": Happy,
	"joy":       Happy,
	"positive":  Happy,
	"sad":       Sad,
	"sadness":   Sad,
	"negative":  Sad,
	"angry":     Angry,
	"anger":     Angry,
	"fearful":   Fearful,
	"fear":      Fearful,
	"disgusted": Disgusted,
	"disgust":   Disgusted,
	"surprised": Surprised,
	"surprise":  Surprised,
}

// Parse normalises a raw classifier label into the closed set.
func Parse(raw string) (Label, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return None, fmt.Errorf("empty emotion label")
	}
	if label, ok := aliases[key]; ok {
		return label, nil
	}
	return None, fmt.Errorf("unknown emotion label %q", raw)
}

// Present reports whether the label carries a value.
func (l Label) Present() bool {
	return l != None
}

func (l Label) String() string {
	if l == None {
		return "absent"
	}
	return string(l)
}

// Signal is a label produced by one classifier, with an optional confidence in [0,1].
type Signal struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence,omitempty"`
}

// ModalitySignals groups the per-request modality outputs. Any subset may be absent.
type ModalitySignals struct {
	Text  Label `json:"text_sentiment,omitempty"`
	Voice Label `json:"voice_emotion,omitempty"`
	Face  Label `json:"face_emotion,omitempty"`
}

// ClampConfidence bounds a classifier score to [0,1].
func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

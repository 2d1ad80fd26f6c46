package emotion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNormalisesAliases(t *testing.T) {
	cases := map[string]Label{
		"happy":     Happy,
		" SAD ":     Sad,
		"joy":       Happy,
		"anger":     Angry,
		"fear":      Fearful,
		"Disgust":   Disgusted,
		"surprise":  Surprised,
		"negative":  Sad,
		"Neutral":   Neutral,
		"Surprised": Surprised,
	}
	for raw, want := range cases {
		got, err := Parse(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	_, err := Parse("Error : corrupt file")
	assert.Error(t, err)

	_, err = Parse("   ")
	assert.Error(t, err)
}

func TestLabelsAreClosedSet(t *testing.T) {
	assert.Len(t, Labels, 7)
	for _, l := range Labels {
		parsed, err := Parse(string(l))
		require.NoError(t, err)
		assert.Equal(t, l, parsed)
	}
	assert.False(t, None.Present())
	assert.Equal(t, "absent", None.String())
}

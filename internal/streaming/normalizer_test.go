package streaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurelia-labs/aurelia/internal/config"
)

func TestTextNormalizer_WhitespaceCollapseAndTrim(t *testing.T) {
	t.Parallel()

	n := NewTextNormalizer(nil)
	got, ok := n.Process("  Hello   there.\nHow  are you?  ")
	require.True(t, ok)
	assert.Equal(t, "Hello there. How are you?", got.Text)
	assert.Empty(t, got.Emotion)
}

func TestTextNormalizer_EmotionTagExtraction(t *testing.T) {
	t.Parallel()

	n := NewTextNormalizer(nil)
	got, ok := n.Process("[happy] That's wonderful news!")
	require.True(t, ok)
	assert.Equal(t, "That's wonderful news!", got.Text)
	assert.Equal(t, "happy", got.Emotion)
}

// Only the first emotion tag is extracted; a second one is left untouched
// in the resulting text rather than silently dropped.
func TestTextNormalizer_OnlyFirstEmotionTagExtracted(t *testing.T) {
	t.Parallel()

	n := NewTextNormalizer(nil)
	got, ok := n.Process("[happy] Great! [sad] Oh no.")
	require.True(t, ok)
	assert.Equal(t, "happy", got.Emotion)
	assert.Equal(t, "Great! [sad] Oh no.", got.Text)
}

func TestTextNormalizer_RulesAppliedInOrder(t *testing.T) {
	t.Parallel()

	n := NewTextNormalizer([]config.NormalizationRule{
		{Pattern: `\bAI\b`, Replacement: "A.I."},
		{Pattern: `\.I\.`, Replacement: ". I."},
	})
	got, ok := n.Process("I am an AI assistant.")
	require.True(t, ok)
	assert.Equal(t, "I am an A. I. assistant.", got.Text)
}

func TestTextNormalizer_InvalidRulePatternSkipped(t *testing.T) {
	t.Parallel()

	n := NewTextNormalizer([]config.NormalizationRule{
		{Pattern: `(unterminated`, Replacement: "x"},
	})
	assert.Empty(t, n.rules)
}

func TestTextNormalizer_EmptyAfterTrimNotOK(t *testing.T) {
	t.Parallel()

	n := NewTextNormalizer(nil)
	_, ok := n.Process("   \n\t  ")
	assert.False(t, ok)
}

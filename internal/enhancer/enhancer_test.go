package enhancer

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestParseEnhancementPlainJSON(t *testing.T) {
	result, err := parseEnhancement(`{"enhanced": "A dramatic sunrise over jagged peaks", "improvements": ["added lighting"], "confidence": 0.9}`)
	require.NoError(t, err)
	require.Equal(t, "A dramatic sunrise over jagged peaks", result.Enhanced)
	require.Equal(t, []string{"added lighting"}, result.Improvements)
	require.InDelta(t, 0.9, result.Confidence, 0.001)
}

func TestParseEnhancementStripsCodeFences(t *testing.T) {
	content := "```json\n{\"enhanced\": \"Fenced prompt\", \"improvements\": [], \"confidence\": 0.8}\n```"
	result, err := parseEnhancement(content)
	require.NoError(t, err)
	require.Equal(t, "Fenced prompt", result.Enhanced)

	bare := "```\n{\"enhanced\": \"Bare fence\", \"improvements\": [], \"confidence\": 0.5}\n```"
	result, err = parseEnhancement(bare)
	require.NoError(t, err)
	require.Equal(t, "Bare fence", result.Enhanced)
}

func TestParseEnhancementClampsLength(t *testing.T) {
	long := strings.Repeat("x", 600)
	result, err := parseEnhancement(`{"enhanced": "` + long + `", "improvements": [], "confidence": 1}`)
	require.NoError(t, err)
	require.Len(t, result.Enhanced, maxEnhancedChars)
}

func TestParseEnhancementClampsOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("日", 600)
	result, err := parseEnhancement(`{"enhanced": "` + long + `", "improvements": [], "confidence": 1}`)
	require.NoError(t, err)
	require.True(t, utf8.ValidString(result.Enhanced))
	require.Equal(t, maxEnhancedChars, utf8.RuneCountInString(result.Enhanced))
}

func TestParseEnhancementRejectsBadPayloads(t *testing.T) {
	_, err := parseEnhancement("not json at all")
	require.Error(t, err)

	_, err = parseEnhancement(`{"enhanced": "", "improvements": [], "confidence": 0.9}`)
	require.ErrorContains(t, err, "empty enhanced prompt")
}

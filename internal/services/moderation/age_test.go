package moderation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAgeValidator(t *testing.T) {
	v := NewAgeValidator()

	t.Run("simple text passes", func(t *testing.T) {
		res := v.Validate("Italy is famous for its food and history. Rome is the capital.", nil)
		assert.True(t, res.Passed)
		assert.Equal(t, 1.0, res.Score)
	})

	t.Run("too many words fails", func(t *testing.T) {
		long := strings.Repeat("the map shows many countries and cities here. ", 12)
		res := v.Validate(long, nil)
		assert.False(t, res.Passed)
		assert.Contains(t, res.Concern, "too long")
	})

	t.Run("run-on sentence fails", func(t *testing.T) {
		runOn := strings.Repeat("word ", 30) + "end."
		res := v.Validate(runOn, nil)
		assert.False(t, res.Passed)
		assert.Contains(t, res.Concern, "sentences too long")
	})

	t.Run("complex vocabulary fails", func(t *testing.T) {
		res := v.Validate("Macroeconomical considerations notwithstanding.", nil)
		assert.False(t, res.Passed)
		assert.Contains(t, res.Concern, "too complex")
	})

	t.Run("off-domain topic fails", func(t *testing.T) {
		res := v.Validate("Have you heard the latest celebrity gossip?", nil)
		assert.False(t, res.Passed)
	})

	t.Run("near limit passes with reduced score", func(t *testing.T) {
		near := strings.Repeat("Go and see the big old map now. ", 8) + "Done."
		res := v.Validate(near, nil)
		assert.True(t, res.Passed)
		assert.Equal(t, 0.85, res.Score)
	})

	t.Run("empty content fails", func(t *testing.T) {
		res := v.Validate("", nil)
		assert.False(t, res.Passed)
	})
}

func TestLongestSentence(t *testing.T) {
	assert.Equal(t, 3, longestSentence("one two three."))
	assert.Equal(t, 4, longestSentence("short one. this one is longer!"))
	assert.Equal(t, 2, longestSentence("no punctuation"))
}

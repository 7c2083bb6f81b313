package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafetyValidator(t *testing.T) {
	v := NewSafetyValidator()

	tests := []struct {
		name   string
		text   string
		passed bool
	}{
		{"clean educational text", "France is a beautiful country with a strong economy!", true},
		{"prohibited violence term", "The war between the two countries lasted years.", false},
		{"prohibited demeaning term", "That was a stupid decision.", false},
		{"discouraging language", "You can't do this, it's impossible.", false},
		{"email address", "Contact me at kid@example.com for more.", false},
		{"phone number", "Call 020 7946 0958 to learn more.", false},
		{"street address", "I live at 12 Baker Street in London.", false},
		{"empty content", "   ", false},
		{"word boundary not tripped", "Warsaw is the capital of Poland.", true},
		{"word boundary not tripped by diet", "A balanced diet helps you learn.", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.text, nil)
			assert.Equal(t, tt.passed, res.Passed)
			assert.Equal(t, CategorySafety, res.Category)
			if tt.passed {
				assert.Empty(t, res.Concern)
				assert.Equal(t, 1.0, res.Score)
			} else {
				assert.NotEmpty(t, res.Concern)
				assert.Zero(t, res.Score)
			}
		})
	}
}

func TestContainsWord(t *testing.T) {
	assert.True(t, containsWord("the war ended", "war"))
	assert.True(t, containsWord("war", "war"))
	assert.True(t, containsWord("a war.", "war"))
	assert.False(t, containsWord("warsaw", "war"))
	assert.False(t, containsWord("software", "war"))
	assert.False(t, containsWord("backward", "war"))
}

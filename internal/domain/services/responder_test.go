package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honeypot-lab/internal/domain/models"
)

// fixedPicker always returns the same index, clamped to n
type fixedPicker int

func (p fixedPicker) IntN(n int) int {
	if int(p) >= n {
		return n - 1
	}
	return int(p)
}

func TestResponseGenerator_NotScam(t *testing.T) {
	g := NewResponseGenerator(fixedPicker(0))
	assert.Nil(t, g.Generate(false, 0, nil, "Hello, how are you?"))
}

func TestResponseGenerator_FirstMessage(t *testing.T) {
	g := NewResponseGenerator(fixedPicker(0))

	got := g.Generate(true, 0, nil, "Your bank account will be blocked today. Verify your identity immediately.")
	require.NotNil(t, got)
	assert.Equal(t, models.StageInitialConcern, got.Stage)
	assert.Equal(t, initialConcernReplies[0], got.Text)
}

func TestResponseGenerator_ConfirmsLatestUPI(t *testing.T) {
	g := NewResponseGenerator(fixedPicker(1))

	got := g.Generate(true, 8, []string{"pay to first@ybl"}, "no, use second@ybl")
	require.NotNil(t, got)
	assert.Equal(t, models.StageConfirmingDetails, got.Stage)
	assert.Equal(t, "I want to make sure I heard right... the UPI ID is second@ybl, yes?", got.Text)
}

func TestResponseGenerator_ReplyAlwaysFromPool(t *testing.T) {
	g := NewResponseGenerator(NewSeededPicker(42))
	previous := []string{"urgent transfer needed", "send 500 rupees to win@upi"}

	for count := 0; count <= 14; count++ {
		got := g.Generate(true, count, previous, "pay now")
		require.NotNil(t, got)
		pool := CandidateReplies(got.Stage, AnalyzeConversation(previous, "pay now"))
		assert.Contains(t, pool, got.Text, "count %d", count)
	}
}

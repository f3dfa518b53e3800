package fragment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_UserMessage(t *testing.T) {
	c := Candidate{
		HTML: `<div data-testid="user-message-3">
			<div class="message-date">Jan 5</div><div class="message-time">3:42 PM</div>
			<div class="prose"><p>Hello <strong>there</strong></p></div>
		</div>`,
		Offset: 120,
	}

	rec, ok := Parse(c)
	require.True(t, ok)
	assert.Equal(t, "user-message-3", rec.ID)
	assert.Equal(t, RoleUser, rec.Role)
	assert.Equal(t, "Jan 5 3:42 PM", rec.TimestampText)
	assert.Equal(t, float64(120), rec.SortKey)
	assert.Equal(t, "<p>Hello <strong>there</strong></p>", rec.ContentMarkup)
	assert.Equal(t, "Hello there", rec.ContentText)
}

func TestParse_AssistantMultipleProseBlocks(t *testing.T) {
	c := Candidate{
		HTML: `<div data-testid="assistant-turn-4">
			<div class="prose"><p>First block</p></div>
			<div class="prose"><p>Second block</p></div>
		</div>`,
	}

	rec, ok := Parse(c)
	require.True(t, ok)
	assert.Equal(t, RoleAssistant, rec.Role)
	assert.Equal(t, "<p>First block</p>\n<p>Second block</p>", rec.ContentMarkup)
	assert.Equal(t, "First block\n\nSecond block", rec.ContentText)
}

func TestParse_AssistantStatusLabels(t *testing.T) {
	c := Candidate{
		HTML: `<div data-testid="assistant-turn-5">
			<span class="status-label">thinking</span>
			<span class="status-label">tool usage</span>
			<div class="prose"><p>Answer</p></div>
		</div>`,
	}

	rec, ok := Parse(c)
	require.True(t, ok)
	assert.Equal(t, "[thinking, tool usage]\nAnswer", rec.ContentText)
	// Status chips are annotation only, never part of the markup.
	assert.Equal(t, "<p>Answer</p>", rec.ContentMarkup)
}

func TestParse_AssistantTextFallback(t *testing.T) {
	c := Candidate{
		HTML: `<div data-testid="assistant-turn-6"><span>plain reply</span></div>`,
	}

	rec, ok := Parse(c)
	require.True(t, ok)
	assert.Empty(t, rec.ContentMarkup)
	assert.Equal(t, "plain reply", rec.ContentText)
}

func TestParse_NoIdentity(t *testing.T) {
	_, ok := Parse(Candidate{HTML: `<div class="prose"><p>orphan</p></div>`})
	assert.False(t, ok)
}

func TestParse_TimestampDegradesToEmpty(t *testing.T) {
	t.Run("missing entirely", func(t *testing.T) {
		rec, ok := Parse(Candidate{HTML: `<div data-testid="user-message-1"><div class="prose">hi</div></div>`})
		require.True(t, ok)
		assert.Empty(t, rec.TimestampText)
	})

	t.Run("date without adjacent time", func(t *testing.T) {
		rec, ok := Parse(Candidate{HTML: `<div data-testid="user-message-1">
			<div class="message-date">Jan 5</div><div class="other">x</div>
		</div>`})
		require.True(t, ok)
		assert.Empty(t, rec.TimestampText)
	})
}

func TestParse_UserWithoutProse(t *testing.T) {
	rec, ok := Parse(Candidate{HTML: `<div data-testid="user-message-9"><span>raw</span></div>`})
	require.True(t, ok)
	assert.Empty(t, rec.ContentMarkup)
	assert.Empty(t, rec.ContentText)
}

func TestParse_NestedProseBelongsToOutermost(t *testing.T) {
	c := Candidate{
		HTML: `<div data-testid="assistant-turn-7">
			<div class="prose"><p>outer</p> <div class="prose"><p>inner</p></div></div>
		</div>`,
	}
	rec, ok := Parse(c)
	require.True(t, ok)
	// One container, not two: the nested block is part of the outer one.
	assert.Equal(t, "outer inner", rec.ContentText)
}

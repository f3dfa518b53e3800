package watcher

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatscribe/internal/fragment"
	"chatscribe/internal/transcript"
)

type fakeSource struct {
	candidates []fragment.Candidate
	err        error
	calls      int
}

func (f *fakeSource) Candidates(context.Context) ([]fragment.Candidate, error) {
	f.calls++
	return f.candidates, f.err
}

func candidate(id string, offset float64) fragment.Candidate {
	return fragment.Candidate{
		HTML:   fmt.Sprintf(`<div data-testid=%q><div class="prose"><p>body</p></div></div>`, id),
		Offset: offset,
	}
}

func TestRescan_ParsesAndUpserts(t *testing.T) {
	source := &fakeSource{candidates: []fragment.Candidate{
		candidate("user-message-1", 10),
		candidate("assistant-turn-2", 20),
		{HTML: `<div><p>not a message</p></div>`}, // parse-miss, skipped
	}}
	store := transcript.NewStore("t", nil, 0, nil)
	w := New(source, store, nil)

	n, err := w.Rescan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, store.Count())
}

func TestRescan_IdempotentAcrossReflows(t *testing.T) {
	source := &fakeSource{candidates: []fragment.Candidate{
		candidate("user-message-1", 10),
		candidate("assistant-turn-2", 20),
	}}
	store := transcript.NewStore("t", nil, 0, nil)
	w := New(source, store, nil)

	for i := 0; i < 4; i++ {
		// Simulate the virtualization layer recomputing offsets.
		source.candidates[0].Offset = float64(10 + i)
		n, err := w.Rescan(context.Background())
		require.NoError(t, err)
		if i > 0 {
			assert.Zero(t, n)
		}
	}
	assert.Equal(t, 2, store.Count())
}

func TestRescan_SourceError(t *testing.T) {
	source := &fakeSource{err: errors.New("page gone")}
	w := New(source, transcript.NewStore("t", nil, 0, nil), nil)

	_, err := w.Rescan(context.Background())
	assert.Error(t, err)
}

func TestNotify_CoalescesBursts(t *testing.T) {
	source := &fakeSource{candidates: []fragment.Candidate{candidate("user-message-1", 1)}}
	store := transcript.NewStore("t", nil, 0, nil)
	w := New(source, store, nil)

	// A burst of notifications before the consumer runs leaves exactly one
	// pending rescan.
	for i := 0; i < 20; i++ {
		w.Notify()
	}
	assert.Len(t, w.pending, 1)
}

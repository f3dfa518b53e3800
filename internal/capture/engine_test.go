package capture

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatscribe/internal/config"
	"chatscribe/internal/fragment"
	"chatscribe/internal/render"
	"chatscribe/internal/storage"
)

const testThreadURL = "https://chat.example.com/chat/abc-123"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "chatscribe.db")
	return cfg
}

func seedMirror(t *testing.T, cfg *config.Config, records []fragment.Record) {
	t.Helper()
	mirror, err := storage.Open(cfg.Storage.DatabasePath, nil)
	require.NoError(t, err)
	defer mirror.Close()
	require.NoError(t, mirror.Save("chat-abc-123", records))
}

func TestEngine_RehydratesWithoutBrowser(t *testing.T) {
	cfg := testConfig(t)
	seedMirror(t, cfg, []fragment.Record{
		{ID: "user-message-1", Role: fragment.RoleUser, SortKey: 50, ContentText: "question"},
		{ID: "assistant-turn-2", Role: fragment.RoleAssistant, SortKey: 200, ContentText: "answer"},
	})

	eng, err := New(cfg, nil, testThreadURL)
	require.NoError(t, err)
	defer eng.Close()

	assert.Equal(t, 2, eng.Count())
	records := eng.Records()
	assert.Equal(t, "user-message-1", records[0].ID)
}

func TestEngine_ExportJSON(t *testing.T) {
	cfg := testConfig(t)
	seedMirror(t, cfg, []fragment.Record{
		{ID: "user-message-1", Role: fragment.RoleUser, SortKey: 50, ContentText: "question"},
	})

	eng, err := New(cfg, nil, testThreadURL)
	require.NoError(t, err)
	defer eng.Close()

	file, err := eng.Export(render.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "application/json", file.MediaType)

	var export render.Export
	require.NoError(t, json.Unmarshal(file.Data, &export))
	assert.Equal(t, 1, export.MessageCount)
	assert.Equal(t, testThreadURL, export.SourceURL)
}

func TestEngine_ClearDropsDurableState(t *testing.T) {
	cfg := testConfig(t)
	seedMirror(t, cfg, []fragment.Record{{ID: "user-message-1", SortKey: 1}})

	eng, err := New(cfg, nil, testThreadURL)
	require.NoError(t, err)
	require.Equal(t, 1, eng.Count())
	require.NoError(t, eng.Clear())
	assert.Zero(t, eng.Count())
	require.NoError(t, eng.Close())

	// A fresh engine sees nothing to rehydrate.
	eng2, err := New(cfg, nil, testThreadURL)
	require.NoError(t, err)
	defer eng2.Close()
	assert.Zero(t, eng2.Count())
}

func TestEngine_ActivateSwitchesThreads(t *testing.T) {
	cfg := testConfig(t)
	seedMirror(t, cfg, []fragment.Record{{ID: "user-message-1", SortKey: 1}})

	eng, err := New(cfg, nil, testThreadURL)
	require.NoError(t, err)
	defer eng.Close()
	require.Equal(t, 1, eng.Count())

	require.NoError(t, eng.Activate("https://chat.example.com/chat/other-999"))
	assert.Zero(t, eng.Count())

	// Switching back reloads the persisted transcript.
	require.NoError(t, eng.Activate(testThreadURL))
	assert.Equal(t, 1, eng.Count())
}

// staticSource stands in for the browser's candidate listing.
type staticSource struct {
	mu   sync.Mutex
	html string
}

func (s *staticSource) Candidates(context.Context) ([]fragment.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.html == "" {
		return nil, nil
	}
	return []fragment.Candidate{{HTML: s.html, Offset: 10}}, nil
}

func TestEngine_ActivateWhileAttachedReboundsMutations(t *testing.T) {
	cfg := testConfig(t)
	eng, err := New(cfg, nil, testThreadURL)
	require.NoError(t, err)
	defer eng.Close()

	// Prime the attached state the way Attach does, minus the browser.
	src := &staticSource{html: `<div data-testid="assistant-turn-7"><div class="prose">late reply</div></div>`}
	eng.mu.Lock()
	eng.attachCtx = t.Context()
	eng.source = src
	eng.rebindLocked(eng.store)
	eng.mu.Unlock()

	// Switch threads while the subscription is live, then deliver a
	// mutation tick through the long-lived callback.
	require.NoError(t, eng.Activate("https://chat.example.com/chat/other-999"))
	eng.notifyActive()

	// The tick lands in the new thread's transcript, not the old one's.
	require.Eventually(t, func() bool { return eng.Count() == 1 }, time.Second, 5*time.Millisecond)
	records := eng.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "assistant-turn-7", records[0].ID)

	require.NoError(t, eng.Activate(testThreadURL))
	assert.Zero(t, eng.Count())
}

func TestEngine_CaptureRequiresAttachment(t *testing.T) {
	cfg := testConfig(t)
	eng, err := New(cfg, nil, testThreadURL)
	require.NoError(t, err)
	defer eng.Close()

	_, err = eng.Capture(t.Context())
	assert.Error(t, err)
}

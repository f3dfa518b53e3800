// Package capture wires the engine together: browser surface, change
// watcher, history-completion driver, in-memory transcript and its durable
// mirror. It is the single owner of the active thread's transcript; the
// CLI and the control API both talk to it and re-query after any mutating
// command.
package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"chatscribe/internal/browser"
	"chatscribe/internal/config"
	"chatscribe/internal/driver"
	"chatscribe/internal/fragment"
	"chatscribe/internal/render"
	"chatscribe/internal/storage"
	"chatscribe/internal/transcript"
	"chatscribe/internal/watcher"
)

// Engine owns the capture pipeline for one active thread at a time.
type Engine struct {
	cfg    *config.Config
	logger *zap.Logger
	mirror *storage.Store

	mu        sync.RWMutex
	threadURL string
	store     *transcript.Store

	session *browser.Session
	source  watcher.DocumentSource
	surface driver.Surface
	watch   *watcher.Watcher
	drv     *driver.Driver

	attachCtx context.Context
	stopWatch context.CancelFunc
}

// New opens the durable mirror and activates the given thread, rehydrating
// any previously captured transcript. The browser is not touched until
// Attach.
func New(cfg *config.Config, logger *zap.Logger, threadURL string) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	mirror, err := storage.Open(cfg.Storage.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("open mirror: %w", err)
	}
	e := &Engine{cfg: cfg, logger: logger, mirror: mirror}
	if err := e.Activate(threadURL); err != nil {
		mirror.Close()
		return nil, err
	}
	return e, nil
}

// Activate switches the engine to a thread: the previous transcript is
// flushed, the in-memory map is swapped wholesale, and the new thread's
// stored transcript is read back in.
func (e *Engine) Activate(threadURL string) error {
	key := transcript.ThreadKey(threadURL)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store != nil {
		if e.store.ThreadKey() == key {
			return nil
		}
		// Deactivate: storage failures stay non-fatal. An empty store has
		// nothing worth writing and may have just been cleared.
		if e.store.Count() > 0 {
			_ = e.store.Persist()
		}
	}

	store := transcript.NewStore(key, e.mirror, e.cfg.Capture.PersistDebounce(), e.logger)
	records, err := e.mirror.Load(key)
	if err != nil {
		e.logger.Warn("rehydrate failed, starting empty", zap.String("thread", key), zap.Error(err))
	} else if len(records) > 0 {
		store.LoadFrom(records)
		e.logger.Info("rehydrated transcript", zap.String("thread", key), zap.Int("records", len(records)))
	}

	e.threadURL = threadURL
	e.store = store
	if e.source != nil {
		e.rebindLocked(store)
	}
	return nil
}

// rebindLocked stops the current watcher loop and starts one feeding the
// given store. The mutation subscription itself survives thread switches;
// it routes through notifyActive, which resolves the current watcher on
// every tick, so a switch can never leave mutations feeding the previous
// thread's transcript.
func (e *Engine) rebindLocked(store *transcript.Store) {
	if e.stopWatch != nil {
		e.stopWatch()
	}
	runCtx, cancel := context.WithCancel(e.attachCtx)
	e.watch = watcher.New(e.source, store, e.logger)
	e.drv = e.newDriver(e.surface, e.watch, store)
	e.stopWatch = cancel
	go e.watch.Run(runCtx)
}

// notifyActive forwards one mutation tick to whichever watcher currently
// owns the active thread.
func (e *Engine) notifyActive() {
	e.mu.RLock()
	w := e.watch
	e.mu.RUnlock()
	if w != nil {
		w.Notify()
	}
}

// Attach connects to Chrome, binds to the thread's tab, and starts the
// mutation subscription feeding the watcher. One subscription for the
// lifetime of the context.
func (e *Engine) Attach(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		return nil
	}

	session := browser.NewSession(browser.Config{
		DebuggerURL:       e.cfg.Browser.DebuggerURL,
		Bin:               e.cfg.Browser.Bin,
		Headless:          e.cfg.Browser.Headless,
		NavigationTimeout: e.cfg.Browser.NavigationTimeout(),
		MutationPoll:      e.cfg.Capture.MutationPoll(),
		HeightMargin:      e.cfg.Capture.HeightMarginPx,
	}, e.logger)

	if err := session.Connect(ctx); err != nil {
		return err
	}
	if err := session.AttachThread(ctx, e.threadURL); err != nil {
		_ = session.Close()
		return err
	}

	e.session = session
	e.source = session
	e.surface = session
	e.attachCtx = ctx
	e.rebindLocked(e.store)

	return session.WatchMutations(ctx, e.notifyActive)
}

func (e *Engine) newDriver(surface driver.Surface, scanner driver.Rescanner, counter driver.Counter) *driver.Driver {
	return driver.New(surface, scanner, counter, e.logger,
		driver.WithSettleDelay(e.cfg.Capture.ScrollSettle()),
		driver.WithStableRounds(e.cfg.Capture.StableRounds),
		driver.WithMaxRounds(e.cfg.Capture.MaxRounds),
	)
}

// Capture runs one history-completion pass and persists the result.
// Requires Attach. A concurrent call returns driver.ErrRunInProgress.
func (e *Engine) Capture(ctx context.Context) (driver.Result, error) {
	e.mu.RLock()
	drv, store := e.drv, e.store
	e.mu.RUnlock()
	if drv == nil {
		return driver.Result{}, fmt.Errorf("not attached to a browser tab")
	}

	res, err := drv.Run(ctx)
	if err != nil {
		return res, err
	}
	if perr := store.Persist(); perr != nil {
		e.logger.Warn("final persist failed", zap.Error(perr))
	}
	return res, nil
}

// Records returns the current ordered transcript.
func (e *Engine) Records() []fragment.Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Records()
}

// Count reports the captured record count.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Count()
}

// Clear drops the transcript, in memory and durable.
func (e *Engine) Clear() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Clear()
}

// Export renders the transcript in the requested format.
func (e *Engine) Export(format render.Format) (render.File, error) {
	e.mu.RLock()
	records := e.store.Records()
	sourceURL := e.threadURL
	session := e.session
	e.mu.RUnlock()

	if session != nil {
		if live, err := session.URL(); err == nil && live != "" {
			sourceURL = live
		}
	}
	meta := render.Meta{
		Title:      e.cfg.Export.Title,
		SourceURL:  sourceURL,
		ExportedAt: time.Now(),
	}
	return render.Render(format, records, meta, e.cfg.Export.Name)
}

// Close releases the browser and the mirror. The transcript is flushed
// first so a clean shutdown never loses captured records.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store != nil && e.store.Count() > 0 {
		_ = e.store.Persist()
	}
	if e.stopWatch != nil {
		e.stopWatch()
		e.stopWatch = nil
	}
	if e.session != nil {
		_ = e.session.Close()
		e.session = nil
	}
	return e.mirror.Close()
}

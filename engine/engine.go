// Package engine turns editor events into document syncs, completion menus
// and language actions. Editor notifications are queued onto a single event
// loop; backend calls run on coalescer goroutines and their results are only
// applied while the session token they started from is still valid.
package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/ThaneAcheron/veonim/backend"
	"github.com/ThaneAcheron/veonim/coalesce"
	"github.com/ThaneAcheron/veonim/docsync"
	"github.com/ThaneAcheron/veonim/logger"
	"github.com/ThaneAcheron/veonim/metrics"
	"github.com/ThaneAcheron/veonim/query"
	"github.com/ThaneAcheron/veonim/rank"
	"github.com/ThaneAcheron/veonim/session"
	"github.com/ThaneAcheron/veonim/types"
)

var errNoHost = errors.New("no editor attached")

type Engine struct {
	session   *session.Session
	backend   backend.Backend
	keywords  Keywords
	extractor *query.Extractor
	ranker    *rank.Ranker
	metrics   *metrics.Tracker
	pipeline  *docsync.Pipeline
	config    EngineConfig

	mu         sync.RWMutex
	host       Host
	popup      Popup
	eventChan  chan Event
	insertLeft chan struct{} // closed on the next insert_leave, set while a rename waits

	fileEnter   *coalesce.Debouncer[struct{}]
	textChange  *coalesce.Debouncer[struct{}]
	syncs       *coalesce.Merger[docsync.Request]
	completions *coalesce.Merger[struct{}]

	diagMu      sync.Mutex
	diagnostics map[string][]types.Diagnostic

	mainCtx    context.Context
	mainCancel context.CancelFunc
	stopped    bool
	stopOnce   sync.Once
	restarts   atomic.Int32
}

// NewEngine wires the pipelines. clock drives the debounce timers; pass nil
// for wall-clock time.
func NewEngine(b backend.Backend, keywords Keywords, m *metrics.Tracker, clock coalesce.Clock, config EngineConfig) *Engine {
	if config.MaxResults <= 0 {
		config.MaxResults = rank.DefaultMaxResults
	}

	extractor := query.NewExtractor()
	for lang, pattern := range config.CompletionTriggers {
		if err := extractor.Register(lang, pattern); err != nil {
			logger.Warn("ignoring completion trigger for %s: %v", lang, err)
		}
	}

	mainCtx, mainCancel := context.WithCancel(context.Background())

	e := &Engine{
		session:     session.New(),
		backend:     b,
		keywords:    keywords,
		extractor:   extractor,
		ranker:      rank.New(config.MaxResults),
		metrics:     m,
		config:      config,
		eventChan:   make(chan Event, 100),
		diagnostics: make(map[string][]types.Diagnostic),
		mainCtx:     mainCtx,
		mainCancel:  mainCancel,
	}

	e.pipeline = docsync.NewPipeline(e.session, docsync.NewClient(b), hostSource{e}, m)
	e.pipeline.OnFullSync = func(info types.FileInfo, lines []string) {
		e.keywords.Update(info.ProjectRoot, info.FilePath, lines)
	}

	e.fileEnter = coalesce.NewDebouncer(clock, config.FileEnterDebounce, func(struct{}) {
		e.enqueue(Event{Type: EventFileEnterTimeout})
	})
	e.textChange = coalesce.NewDebouncer(clock, config.TextChangeDebounce, func(struct{}) {
		e.enqueue(Event{Type: EventTextChangeTimeout})
	})
	e.syncs = coalesce.NewMerger(mainCtx, e.sync, coalesce.WithCombine(docsync.Combine))
	e.completions = coalesce.NewMerger(mainCtx, e.complete)

	b.OnDiagnostics(e.storeDiagnostics)
	return e
}

// Start runs the event loop until ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) {
	e.mu.RLock()
	stopped := e.stopped
	e.mu.RUnlock()
	if stopped {
		return
	}

	go func() {
		select {
		case <-ctx.Done():
			e.Stop()
		case <-e.mainCtx.Done():
		}
	}()
	go e.eventLoop(e.mainCtx)
	logger.Info("engine started")
}

// Stop gracefully shuts down the engine and cleans up all resources
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		logger.Info("stopping engine...")

		e.mu.Lock()
		e.stopped = true
		e.mu.Unlock()

		e.fileEnter.Stop()
		e.textChange.Stop()
		e.mainCancel()
		e.syncs.Close()
		e.completions.Close()

		logger.Info("engine stopped; %s", e.metrics.Summary())
	})
}

// Attach makes h the active editor. Events from the previous editor stop
// being read once its connection closes.
func (e *Engine) Attach(h Host, p Popup) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.host = h
	e.popup = p
	e.mu.Unlock()

	if err := h.RegisterEventHandler(func(event string, args []any) {
		eventType := EventTypeFromString(event)
		if eventType == "" {
			logger.Debug("unknown editor event %q", event)
			return
		}
		e.enqueue(Event{Type: eventType, Data: args})
	}); err != nil {
		logger.Error("error registering event handler for new connection: %v", err)
		return
	}

	// a fresh connection starts from whatever buffer is open
	e.enqueue(Event{Type: EventFileEntered})
}

// peers returns the attached editor under the read lock.
func (e *Engine) peers() (Host, Popup) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.host, e.popup
}

// Session exposes the session for inspection.
func (e *Engine) Session() *session.Session {
	return e.session
}

// queryContext bounds a backend query by the configured timeout.
func (e *Engine) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.QueryTimeout > 0 {
		return context.WithTimeout(ctx, e.config.QueryTimeout)
	}
	return context.WithCancel(ctx)
}

func (e *Engine) sync(ctx context.Context, req docsync.Request) {
	err := e.pipeline.Attempt(ctx, req)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		logger.Debug("sync canceled: %v", err)
	case errors.Is(err, docsync.ErrSync):
		logger.Warn("%v", err)
	default:
		logger.Error("sync error: %v", err)
	}
}

// hostSource reads buffer state from whichever editor is attached.
type hostSource struct{ e *Engine }

func (s hostSource) FileInfo() (types.FileInfo, error) {
	h, _ := s.e.peers()
	if h == nil {
		return types.FileInfo{}, errNoHost
	}
	return h.FileInfo()
}

func (s hostSource) ChangedTick() (int, error) {
	h, _ := s.e.peers()
	if h == nil {
		return 0, errNoHost
	}
	return h.ChangedTick()
}

func (s hostSource) Position() (types.Position, error) {
	h, _ := s.e.peers()
	if h == nil {
		return types.Position{}, errNoHost
	}
	return h.Position()
}

func (s hostSource) CurrentLine() (string, error) {
	h, _ := s.e.peers()
	if h == nil {
		return "", errNoHost
	}
	return h.CurrentLine()
}

func (s hostSource) Lines() ([]string, error) {
	h, _ := s.e.peers()
	if h == nil {
		return nil, errNoHost
	}
	return h.Lines()
}

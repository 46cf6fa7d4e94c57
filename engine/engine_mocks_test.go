package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThaneAcheron/veonim/backend"
	"github.com/ThaneAcheron/veonim/coalesce"
	"github.com/ThaneAcheron/veonim/harvester"
	"github.com/ThaneAcheron/veonim/metrics"
	"github.com/ThaneAcheron/veonim/types"
)

// --- Mock implementations ---

// mockHost implements the Host interface for testing
type mockHost struct {
	mu            sync.Mutex
	info          types.FileInfo
	tick          int
	pos           types.Position
	lines         []string
	grid          types.Grid
	completedWord string
	register      string
	handler       func(event string, args []any)

	// Track method calls
	published    [][]string
	publishedPos []int
	keys         []string
	jumps        []types.Location
	references   [][]types.Reference
	applied      [][]types.TextEdit
	echoes       []string
}

func newMockHost() *mockHost {
	return &mockHost{
		info:  types.FileInfo{ProjectRoot: "/proj", FilePath: "src/app.ts", LanguageKind: "typescript"},
		tick:  3,
		pos:   types.Position{Line: 2, Column: 14},
		lines: []string{"const fooBar = 1", "  let x = foo"},
		grid:  types.Grid{CursorRow: 5, CursorCol: 14, Rows: 40},
	}
}

func (h *mockHost) set(fn func(h *mockHost)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h)
}

func (h *mockHost) RegisterEventHandler(handler func(event string, args []any)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
	return nil
}

func (h *mockHost) FileInfo() (types.FileInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.info, nil
}

func (h *mockHost) ChangedTick() (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tick, nil
}

func (h *mockHost) Position() (types.Position, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pos, nil
}

func (h *mockHost) CurrentLine() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pos.Line < 1 || h.pos.Line > len(h.lines) {
		return "", nil
	}
	return h.lines[h.pos.Line-1], nil
}

func (h *mockHost) Lines() ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.lines...), nil
}

func (h *mockHost) Grid() (types.Grid, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.grid, nil
}

func (h *mockHost) PublishCompletions(candidates []string, anchorColumn int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.published = append(h.published, candidates)
	h.publishedPos = append(h.publishedPos, anchorColumn)
	return nil
}

func (h *mockHost) CompletedWord() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.completedWord, nil
}

func (h *mockHost) Feedkeys(keys string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.keys = append(h.keys, keys)
	return nil
}

func (h *mockHost) Register(string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.register, nil
}

func (h *mockHost) Jump(loc types.Location) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.jumps = append(h.jumps, loc)
	return nil
}

func (h *mockHost) ShowReferences(refs []types.Reference) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.references = append(h.references, refs)
	return nil
}

func (h *mockHost) ApplyEdits(edits []types.TextEdit) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.applied = append(h.applied, edits)
	return nil
}

func (h *mockHost) Echo(msg string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.echoes = append(h.echoes, msg)
	return nil
}

func (h *mockHost) keysSent() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.keys...)
}

func (h *mockHost) echoed() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.echoes...)
}

type shownMenu struct {
	options []types.MenuOption
	at      types.Point
}

// mockPopup implements the Popup interface for testing
type mockPopup struct {
	mu        sync.Mutex
	menus     []shownMenu
	hides     int
	selected  []int
	hovers    []string
	hoverHide int
	symbols   [][]types.Symbol
}

func (p *mockPopup) ShowMenu(options []types.MenuOption, at types.Point) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.menus = append(p.menus, shownMenu{options: options, at: at})
	return nil
}

func (p *mockPopup) HideMenu() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hides++
	return nil
}

func (p *mockPopup) SelectMenu(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selected = append(p.selected, index)
	return nil
}

func (p *mockPopup) ShowHover(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hovers = append(p.hovers, text)
	return nil
}

func (p *mockPopup) HideHover() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hoverHide++
	return nil
}

func (p *mockPopup) ShowSymbols(symbols []types.Symbol) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.symbols = append(p.symbols, symbols)
	return nil
}

func (p *mockPopup) hideCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hides
}

func (p *mockPopup) shown() []shownMenu {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]shownMenu(nil), p.menus...)
}

// mockBackend implements backend.Backend for testing
type mockBackend struct {
	mu              sync.Mutex
	updates         []*types.SyncRequest
	items           []string
	completionCalls int
	// beforeCompletions runs while a completion request is in flight
	beforeCompletions func()
	refs              []types.Reference
	definition        *types.Location
	hover             string
	renameEdits       []types.WorkspaceEdit
	renamedTo         string
	onDiagnostics     backend.DiagnosticsHandler
}

func (b *mockBackend) Update(_ context.Context, req *types.SyncRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, req)
	return nil
}

func (b *mockBackend) Completions(context.Context, types.FileInfo, types.Position) ([]string, error) {
	b.mu.Lock()
	b.completionCalls++
	hook := b.beforeCompletions
	items := b.items
	b.mu.Unlock()
	if hook != nil {
		hook()
	}
	return items, nil
}

func (b *mockBackend) References(context.Context, types.FileInfo, types.Position) ([]types.Reference, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refs, nil
}

func (b *mockBackend) Definition(context.Context, types.FileInfo, types.Position) (*types.Location, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.definition == nil {
		return nil, backend.ErrNotFound
	}
	return b.definition, nil
}

func (b *mockBackend) Hover(context.Context, types.FileInfo, types.Position) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.hover == "" {
		return "", backend.ErrNotFound
	}
	return b.hover, nil
}

func (b *mockBackend) SignatureHelp(context.Context, types.FileInfo, types.Position) (*types.SignatureHelp, error) {
	return nil, backend.ErrNotFound
}

func (b *mockBackend) Symbols(context.Context, types.FileInfo) ([]types.Symbol, error) {
	return nil, nil
}

func (b *mockBackend) WorkspaceSymbols(context.Context, types.FileInfo, string) ([]types.Symbol, error) {
	return nil, nil
}

func (b *mockBackend) Rename(_ context.Context, _ types.FileInfo, _ types.Position, newName string) ([]types.WorkspaceEdit, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.renamedTo = newName
	return b.renameEdits, nil
}

func (b *mockBackend) OnDiagnostics(handler backend.DiagnosticsHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDiagnostics = handler
}

func (b *mockBackend) Close() error { return nil }

func (b *mockBackend) synced() []*types.SyncRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*types.SyncRequest(nil), b.updates...)
}

func (b *mockBackend) completionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.completionCalls
}

type testEngine struct {
	*Engine
	host    *mockHost
	popup   *mockPopup
	backend *mockBackend
	clock   *coalesce.ManualClock
	tracker *metrics.Tracker
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	b := &mockBackend{}
	clock := coalesce.NewManualClock()
	tracker := metrics.NewTracker("", "test", t.TempDir())
	e := NewEngine(b, harvester.New(), tracker, clock, EngineConfig{
		FileEnterDebounce:  100 * time.Millisecond,
		TextChangeDebounce: 200 * time.Millisecond,
		MaxResults:         8,
	})
	t.Cleanup(e.Stop)

	te := &testEngine{
		Engine:  e,
		host:    newMockHost(),
		popup:   &mockPopup{},
		backend: b,
		clock:   clock,
		tracker: tracker,
	}
	e.Attach(te.host, te.popup)
	return te
}

// drain handles every queued event on the calling goroutine.
func (te *testEngine) drain() {
	for {
		select {
		case ev := <-te.eventChan:
			te.handleEvent(ev)
		default:
			return
		}
	}
}

// send handles one editor event and waits for the work it started.
func (te *testEngine) send(eventType EventType, args ...any) {
	te.handleEvent(Event{Type: eventType, Data: args})
	te.settle()
}

func (te *testEngine) settle() {
	te.syncs.Wait()
	te.completions.Wait()
}

// enter runs the file-entered path to completion.
func (te *testEngine) enter() {
	te.drain()
	te.clock.Advance(100 * time.Millisecond)
	te.drain()
	te.settle()
}

package engine

import (
	"context"

	"github.com/ThaneAcheron/veonim/geometry"
	"github.com/ThaneAcheron/veonim/logger"
	"github.com/ThaneAcheron/veonim/metrics"
	"github.com/ThaneAcheron/veonim/types"
)

// complete extracts the query at the cursor, ranks candidates for it and
// shows the popup. It runs on the completion merger, one call at a time.
func (e *Engine) complete(ctx context.Context, _ struct{}) {
	defer logger.Trace("engine.complete")()

	h, p := e.peers()
	if h == nil || e.session.Suppressed() {
		return
	}
	tok := e.session.Token()

	pos, err := h.Position()
	if err != nil {
		logger.Warn("error reading cursor: %v", err)
		return
	}
	line, err := h.CurrentLine()
	if err != nil {
		logger.Warn("error reading line: %v", err)
		return
	}

	info := e.session.FileInfo()
	q := e.extractor.Extract(info.LanguageKind, line, pos.Column)
	if q.Empty() {
		e.clearCompletions(h, p)
		return
	}

	candidates := e.candidates(ctx, info, pos)

	if !e.session.Valid(tok) {
		e.discard(info)
		return
	}

	ranked := e.ranker.Rank(candidates, q.Text)
	if len(ranked) == 0 {
		e.clearCompletions(h, p)
		return
	}
	if !e.session.ApplyCandidates(tok, ranked, q.AnchorColumn) {
		e.discard(info)
		return
	}

	if err := h.PublishCompletions(ranked, q.AnchorColumn); err != nil {
		logger.Warn("error publishing completions: %v", err)
	}
	if p == nil {
		return
	}

	grid, err := h.Grid()
	if err != nil {
		logger.Warn("error reading grid: %v", err)
		return
	}
	at := geometry.Resolve(geometry.Input{
		CursorRow:    grid.CursorRow,
		CursorCol:    grid.CursorCol,
		ViewportRows: grid.Rows,
		BufferColumn: pos.Column,
		AnchorColumn: q.AnchorColumn,
		Count:        len(ranked),
		MaxResults:   e.ranker.MaxResults(),
	})
	if err := p.ShowMenu(menuOptions(ranked), at); err != nil {
		logger.Warn("error showing menu: %v", err)
		return
	}
	e.metrics.Record(metrics.EventCompletionsShown, info.FilePath, info.Revision, len(ranked))
}

// candidates merges backend completions with harvested keywords. A failing
// backend degrades to keywords only.
func (e *Engine) candidates(ctx context.Context, info types.FileInfo, pos types.Position) []string {
	qctx, cancel := e.queryContext(ctx)
	defer cancel()

	items, err := e.backend.Completions(qctx, info, pos)
	if err != nil {
		logger.Debug("completions unavailable: %v", err)
	}
	return mergeCandidates(items, e.keywords.GetKeywords(info.ProjectRoot, info.FilePath))
}

func (e *Engine) clearCompletions(h Host, p Popup) {
	e.session.ClearCandidates()
	if p != nil {
		p.HideMenu()
	}
	if err := h.PublishCompletions(nil, 0); err != nil {
		logger.Warn("error publishing completions: %v", err)
	}
}

func (e *Engine) discard(info types.FileInfo) {
	logger.Debug("session changed while completing, dropping result")
	e.metrics.Record(metrics.EventDiscarded, info.FilePath, info.Revision, 0)
}

// mergeCandidates concatenates the lists keeping the first occurrence of each word.
func mergeCandidates(primary, secondary []string) []string {
	seen := make(map[string]struct{}, len(primary)+len(secondary))
	out := make([]string, 0, len(primary)+len(secondary))
	for _, list := range [][]string{primary, secondary} {
		for _, w := range list {
			if w == "" {
				continue
			}
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			out = append(out, w)
		}
	}
	return out
}

func menuOptions(candidates []string) []types.MenuOption {
	options := make([]types.MenuOption, len(candidates))
	for i, c := range candidates {
		options[i] = types.MenuOption{ID: i, Text: c}
	}
	return options
}

func (e *Engine) storeDiagnostics(path string, diags []types.Diagnostic) {
	e.diagMu.Lock()
	defer e.diagMu.Unlock()
	if len(diags) == 0 {
		delete(e.diagnostics, path)
		return
	}
	e.diagnostics[path] = diags
}

// diagnosticAt returns the first diagnostic of path covering pos.
func (e *Engine) diagnosticAt(path string, pos types.Position) (types.Diagnostic, bool) {
	e.diagMu.Lock()
	defer e.diagMu.Unlock()
	for _, d := range e.diagnostics[path] {
		if d.Contains(pos) {
			return d, true
		}
	}
	return types.Diagnostic{}, false
}

// reportDiagnosticAtCursor echoes the diagnostic under the cursor. Called
// from the event loop with e.mu held.
func (e *Engine) reportDiagnosticAtCursor() {
	if e.host == nil {
		return
	}
	path := e.session.FileInfo().FilePath
	e.diagMu.Lock()
	empty := len(e.diagnostics[path]) == 0
	e.diagMu.Unlock()
	if empty {
		return
	}

	pos, err := e.host.Position()
	if err != nil {
		logger.Debug("error reading cursor: %v", err)
		return
	}
	d, ok := e.diagnosticAt(path, pos)
	if !ok {
		return
	}
	msg := d.Message
	if d.Source != "" {
		msg = "[" + d.Source + "] " + msg
	}
	e.host.Echo(msg)
}

package engine

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/ThaneAcheron/veonim/backend"
	"github.com/ThaneAcheron/veonim/logger"
	"github.com/ThaneAcheron/veonim/types"
)

// action runs off the event loop. args are the notification arguments after
// the action name.
type action func(e *Engine, ctx context.Context, args []any) error

var actions map[string]action

func init() {
	actions = map[string]action{
		"references":        (*Engine).references,
		"definition":        (*Engine).definition,
		"hover":             (*Engine).hover,
		"signature-help":    (*Engine).signatureHelp,
		"symbols":           (*Engine).symbols,
		"workspace-symbols": (*Engine).workspaceSymbols,
		"rename":            (*Engine).rename,
		"sync-stats":        (*Engine).syncStats,
	}
}

// target returns the attached editor with the file and cursor the action applies to.
func (e *Engine) target() (Host, Popup, types.FileInfo, types.Position, error) {
	h, p := e.peers()
	if h == nil {
		return nil, nil, types.FileInfo{}, types.Position{}, errNoHost
	}
	pos, err := h.Position()
	if err != nil {
		return nil, nil, types.FileInfo{}, types.Position{}, err
	}
	return h, p, e.session.FileInfo(), pos, nil
}

func (e *Engine) references(ctx context.Context, _ []any) error {
	h, _, info, pos, err := e.target()
	if err != nil {
		return err
	}
	qctx, cancel := e.queryContext(ctx)
	defer cancel()

	refs, err := e.backend.References(qctx, info, pos)
	if err != nil {
		return notFoundAsMessage(h, err, "no references found")
	}
	if len(refs) == 0 {
		return h.Echo("no references found")
	}
	return h.ShowReferences(refs)
}

func (e *Engine) definition(ctx context.Context, _ []any) error {
	h, _, info, pos, err := e.target()
	if err != nil {
		return err
	}
	qctx, cancel := e.queryContext(ctx)
	defer cancel()

	loc, err := e.backend.Definition(qctx, info, pos)
	if err != nil {
		return notFoundAsMessage(h, err, "no definition found")
	}
	return h.Jump(*loc)
}

func (e *Engine) hover(ctx context.Context, _ []any) error {
	h, p, info, pos, err := e.target()
	if err != nil {
		return err
	}
	qctx, cancel := e.queryContext(ctx)
	defer cancel()

	text, err := e.backend.Hover(qctx, info, pos)
	if err != nil {
		return notFoundAsMessage(h, err, "")
	}
	if p == nil {
		return h.Echo(text)
	}
	return p.ShowHover(text)
}

func (e *Engine) signatureHelp(ctx context.Context, _ []any) error {
	h, p, info, pos, err := e.target()
	if err != nil {
		return err
	}
	qctx, cancel := e.queryContext(ctx)
	defer cancel()

	help, err := e.backend.SignatureHelp(qctx, info, pos)
	if err != nil {
		return notFoundAsMessage(h, err, "")
	}
	label := signatureLabel(help)
	if label == "" {
		return nil
	}
	if p == nil {
		return h.Echo(label)
	}
	return p.ShowHover(label)
}

// signatureLabel picks the active signature, falling back to the first.
func signatureLabel(help *types.SignatureHelp) string {
	if help == nil || len(help.Signatures) == 0 {
		return ""
	}
	i := help.ActiveSignature
	if i < 0 || i >= len(help.Signatures) {
		i = 0
	}
	return help.Signatures[i].Label
}

func (e *Engine) symbols(ctx context.Context, _ []any) error {
	h, p, info, _, err := e.target()
	if err != nil {
		return err
	}
	qctx, cancel := e.queryContext(ctx)
	defer cancel()

	syms, err := e.backend.Symbols(qctx, info)
	if err != nil {
		return notFoundAsMessage(h, err, "no symbols found")
	}
	return showSymbols(h, p, syms)
}

func (e *Engine) workspaceSymbols(ctx context.Context, args []any) error {
	h, p, info, _, err := e.target()
	if err != nil {
		return err
	}
	q, _ := stringArg(args, 0)
	qctx, cancel := e.queryContext(ctx)
	defer cancel()

	syms, err := e.backend.WorkspaceSymbols(qctx, info, q)
	if err != nil {
		return notFoundAsMessage(h, err, "no symbols found")
	}
	return showSymbols(h, p, syms)
}

func showSymbols(h Host, p Popup, syms []types.Symbol) error {
	if len(syms) == 0 {
		return h.Echo("no symbols found")
	}
	if p == nil {
		return nil
	}
	return p.ShowSymbols(syms)
}

// rename lets the user type the new name in place with ciw while syncing is
// suppressed, reads it back from the "." register, undoes the edit and asks
// the backend for the real rename.
func (e *Engine) rename(ctx context.Context, _ []any) error {
	h, _, info, pos, err := e.target()
	if err != nil {
		return err
	}

	left := e.expectInsertLeave()
	resume := e.session.Suppress()
	defer resume()

	if err := h.Feedkeys("ciw"); err != nil {
		return errors.Wrap(err, "start rename")
	}
	select {
	case <-left:
	case <-ctx.Done():
		return ctx.Err()
	}

	newName, err := h.Register(".")
	if err != nil {
		return err
	}
	if err := h.Feedkeys("u"); err != nil {
		return errors.Wrap(err, "undo rename input")
	}
	resume()

	if newName == "" {
		return nil
	}

	qctx, cancel := e.queryContext(ctx)
	defer cancel()
	edits, err := e.backend.Rename(qctx, info, pos, newName)
	if err != nil {
		return notFoundAsMessage(h, err, "nothing to rename")
	}

	for _, we := range edits {
		if we.Path != info.FilePath {
			logger.Info("rename: skipping %d edits in %s", len(we.Edits), we.Path)
			continue
		}
		if err := h.ApplyEdits(we.Edits); err != nil {
			return errors.Wrapf(err, "apply rename to %s", we.Path)
		}
	}
	return nil
}

// expectInsertLeave returns a channel closed by the next insert_leave event.
func (e *Engine) expectInsertLeave() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.insertLeft != nil {
		close(e.insertLeft)
	}
	e.insertLeft = make(chan struct{})
	return e.insertLeft
}

func (e *Engine) syncStats(context.Context, []any) error {
	h, _ := e.peers()
	if h == nil {
		return errNoHost
	}
	return h.Echo(e.metrics.Summary())
}

// notFoundAsMessage echoes msg for an empty result and returns other errors.
func notFoundAsMessage(h Host, err error, msg string) error {
	if !errors.Is(err, backend.ErrNotFound) {
		return err
	}
	if msg == "" {
		return nil
	}
	return h.Echo(msg)
}

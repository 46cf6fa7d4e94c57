// Package backend defines the contract between the editor bridge and the
// language intelligence service behind it.
package backend

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/ThaneAcheron/veonim/types"
)

var (
	// ErrUnavailable is returned when the backend cannot be reached.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrNotOpen is returned for partial updates of a document the backend has not seen in full.
	ErrNotOpen = errors.New("document not open")
	// ErrNotFound is returned when a query has no result.
	ErrNotFound = errors.New("not found")
)

// DiagnosticsHandler receives the full diagnostic set for one file.
type DiagnosticsHandler func(path string, diagnostics []types.Diagnostic)

// Updater accepts document synchronization requests.
type Updater interface {
	Update(ctx context.Context, req *types.SyncRequest) error
}

// Backend is a language service. Implemented by lsp.Client and remote.Client.
type Backend interface {
	Updater
	Completions(ctx context.Context, info types.FileInfo, pos types.Position) ([]string, error)
	References(ctx context.Context, info types.FileInfo, pos types.Position) ([]types.Reference, error)
	Definition(ctx context.Context, info types.FileInfo, pos types.Position) (*types.Location, error)
	Hover(ctx context.Context, info types.FileInfo, pos types.Position) (string, error)
	SignatureHelp(ctx context.Context, info types.FileInfo, pos types.Position) (*types.SignatureHelp, error)
	Symbols(ctx context.Context, info types.FileInfo) ([]types.Symbol, error)
	WorkspaceSymbols(ctx context.Context, info types.FileInfo, query string) ([]types.Symbol, error)
	Rename(ctx context.Context, info types.FileInfo, pos types.Position, newName string) ([]types.WorkspaceEdit, error)
	OnDiagnostics(handler DiagnosticsHandler)
	Close() error
}

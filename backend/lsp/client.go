// Package lsp implements backend.Backend on top of a language server
// speaking LSP over stdio.
package lsp

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sourcegraph/jsonrpc2"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/ThaneAcheron/veonim/backend"
	"github.com/ThaneAcheron/veonim/logger"
	"github.com/ThaneAcheron/veonim/types"
)

const (
	methodInitialize         = "initialize"
	methodInitialized        = "initialized"
	methodShutdown           = "shutdown"
	methodExit               = "exit"
	methodDidOpen            = "textDocument/didOpen"
	methodDidChange          = "textDocument/didChange"
	methodCompletion         = "textDocument/completion"
	methodReferences         = "textDocument/references"
	methodDefinition         = "textDocument/definition"
	methodHover              = "textDocument/hover"
	methodSignatureHelp      = "textDocument/signatureHelp"
	methodDocumentSymbol     = "textDocument/documentSymbol"
	methodRename             = "textDocument/rename"
	methodWorkspaceSymbol    = "workspace/symbol"
	methodPublishDiagnostics = "textDocument/publishDiagnostics"
)

type document struct {
	languageID string
	version    int
	lines      int // line count as of the last full sync
}

// Client is an LSP client bound to one server connection.
type Client struct {
	conn *jsonrpc2.Conn
	cmd  *exec.Cmd

	initMu      sync.Mutex
	initialized bool

	mu            sync.Mutex
	root          string
	docs          map[string]*document
	onDiagnostics backend.DiagnosticsHandler
}

// Start launches command and connects to it over its stdio.
func Start(ctx context.Context, command []string) (*Client, error) {
	if len(command) == 0 {
		return nil, errors.Wrap(backend.ErrUnavailable, "no language server command configured")
	}
	cmd := exec.Command(command[0], command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "stdout pipe")
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "start %s", command[0]), backend.ErrUnavailable)
	}
	logger.Info("lsp: started %s (pid %d)", strings.Join(command, " "), cmd.Process.Pid)

	c := NewClient(ctx, &stdio{r: stdout, w: stdin})
	c.cmd = cmd
	return c, nil
}

// NewClient speaks LSP over rwc.
func NewClient(ctx context.Context, rwc io.ReadWriteCloser) *Client {
	c := &Client{docs: make(map[string]*document)}
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	c.conn = jsonrpc2.NewConn(ctx, stream, jsonrpc2.HandlerWithError(c.handle))
	return c
}

type stdio struct {
	r io.ReadCloser
	w io.WriteCloser
}

func (s *stdio) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s *stdio) Write(p []byte) (int, error) { return s.w.Write(p) }

func (s *stdio) Close() error {
	werr := s.w.Close()
	rerr := s.r.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// OnDiagnostics registers the handler for published diagnostics.
func (c *Client) OnDiagnostics(handler backend.DiagnosticsHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDiagnostics = handler
}

// handle serves server-to-client traffic.
func (c *Client) handle(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	switch req.Method {
	case methodPublishDiagnostics:
		if req.Params == nil {
			return nil, nil
		}
		var params protocol.PublishDiagnosticsParams
		if err := json.Unmarshal(*req.Params, &params); err != nil {
			logger.Warn("lsp: bad diagnostics payload: %v", err)
			return nil, nil
		}
		c.publishDiagnostics(params)
		return nil, nil
	case "workspace/configuration":
		return []any{}, nil
	default:
		logger.Debug("lsp: ignoring server message %s", req.Method)
		return nil, nil
	}
}

func (c *Client) publishDiagnostics(params protocol.PublishDiagnosticsParams) {
	c.mu.Lock()
	handler := c.onDiagnostics
	root := c.root
	c.mu.Unlock()

	if handler == nil {
		return
	}
	diags := make([]types.Diagnostic, 0, len(params.Diagnostics))
	for _, d := range params.Diagnostics {
		diags = append(diags, toDiagnostic(d))
	}
	handler(relativePath(root, uriToPath(params.URI)), diags)
}

// ensureInitialized runs the initialize handshake on first use with root as
// the workspace root.
func (c *Client) ensureInitialized(ctx context.Context, root string) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	if c.initialized {
		return nil
	}

	pid := protocol.Integer(os.Getpid())
	rootURI := pathToURI(root)
	params := &protocol.InitializeParams{
		ProcessID: &pid,
		RootURI:   &rootURI,
		RootPath:  &root,
		Capabilities: protocol.ClientCapabilities{
			TextDocument: &protocol.TextDocumentClientCapabilities{},
		},
	}

	var result json.RawMessage
	if err := c.conn.Call(ctx, methodInitialize, params, &result); err != nil {
		return errors.Mark(errors.Wrap(err, "initialize"), backend.ErrUnavailable)
	}
	if err := c.conn.Notify(ctx, methodInitialized, protocol.InitializedParams{}); err != nil {
		return errors.Mark(errors.Wrap(err, "initialized"), backend.ErrUnavailable)
	}
	c.initialized = true
	c.mu.Lock()
	c.root = root
	c.mu.Unlock()
	logger.Info("lsp: initialized workspace %s", root)
	return nil
}

// Update implements backend.Updater. The first full sync of a file opens it;
// later syncs are sent as didChange, whole-document or single-line.
func (c *Client) Update(ctx context.Context, req *types.SyncRequest) error {
	defer logger.Trace("lsp.Update")()

	if err := c.ensureInitialized(ctx, req.ProjectRoot); err != nil {
		return err
	}
	uri := fileURI(req.ProjectRoot, req.FilePath)

	c.mu.Lock()
	doc, open := c.docs[uri]
	if !open && req.Kind == types.SyncPartial {
		c.mu.Unlock()
		return errors.Wrapf(backend.ErrNotOpen, "%s", req.FilePath)
	}
	if !open {
		doc = &document{languageID: req.LanguageKind, version: max(req.Revision, 0)}
		c.docs[uri] = doc
	} else {
		doc.version = max(req.Revision, doc.version+1)
	}
	if req.Kind == types.SyncFull {
		doc.lines = len(req.Lines)
	}
	version := protocol.Integer(doc.version)
	lastLine := req.LineIndex >= doc.lines-1
	c.mu.Unlock()

	var method string
	var params any
	switch {
	case !open:
		method = methodDidOpen
		params = protocol.DidOpenTextDocumentParams{
			TextDocument: protocol.TextDocumentItem{
				URI:        uri,
				LanguageID: req.LanguageKind,
				Version:    version,
				Text:       strings.Join(req.Lines, "\n"),
			},
		}
	case req.Kind == types.SyncFull:
		method = methodDidChange
		params = protocol.DidChangeTextDocumentParams{
			TextDocument: versioned(uri, version),
			ContentChanges: []any{
				protocol.TextDocumentContentChangeEventWhole{Text: strings.Join(req.Lines, "\n")},
			},
		}
	default:
		// replaces the whole line including its line break. The last line has
		// none, and an end past the document is clamped to its end.
		line := protocol.UInteger(req.LineIndex)
		text := strings.Join(req.Lines, "")
		if !lastLine {
			text += "\n"
		}
		method = methodDidChange
		params = protocol.DidChangeTextDocumentParams{
			TextDocument: versioned(uri, version),
			ContentChanges: []any{
				protocol.TextDocumentContentChangeEvent{
					Range: &protocol.Range{
						Start: protocol.Position{Line: line, Character: 0},
						End:   protocol.Position{Line: line + 1, Character: 0},
					},
					Text: text,
				},
			},
		}
	}

	if err := c.conn.Notify(ctx, method, params); err != nil {
		if !open {
			c.mu.Lock()
			delete(c.docs, uri)
			c.mu.Unlock()
		}
		return errors.Mark(errors.Wrap(err, method), backend.ErrUnavailable)
	}
	return nil
}

func versioned(uri string, version protocol.Integer) protocol.VersionedTextDocumentIdentifier {
	return protocol.VersionedTextDocumentIdentifier{
		TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri},
		Version:                version,
	}
}

func (c *Client) call(ctx context.Context, info types.FileInfo, method string, params any) (json.RawMessage, error) {
	if err := c.ensureInitialized(ctx, info.ProjectRoot); err != nil {
		return nil, err
	}
	var result json.RawMessage
	if err := c.conn.Call(ctx, method, params, &result); err != nil {
		var rpcErr *jsonrpc2.Error
		if errors.As(err, &rpcErr) {
			return nil, errors.Wrapf(err, "%s", method)
		}
		return nil, errors.Mark(errors.Wrapf(err, "%s", method), backend.ErrUnavailable)
	}
	return result, nil
}

func (c *Client) positionParams(info types.FileInfo, pos types.Position) protocol.TextDocumentPositionParams {
	return protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: fileURI(info.ProjectRoot, info.FilePath)},
		Position:     toPosition(pos),
	}
}

func (c *Client) Completions(ctx context.Context, info types.FileInfo, pos types.Position) ([]string, error) {
	raw, err := c.call(ctx, info, methodCompletion, protocol.CompletionParams{
		TextDocumentPositionParams: c.positionParams(info, pos),
	})
	if err != nil {
		return nil, err
	}
	return decodeCompletions(raw)
}

func (c *Client) References(ctx context.Context, info types.FileInfo, pos types.Position) ([]types.Reference, error) {
	raw, err := c.call(ctx, info, methodReferences, protocol.ReferenceParams{
		TextDocumentPositionParams: c.positionParams(info, pos),
		Context:                    protocol.ReferenceContext{IncludeDeclaration: true},
	})
	if err != nil {
		return nil, err
	}
	var locs []protocol.Location
	if err := unmarshalResult(raw, &locs); err != nil {
		return nil, errors.Wrap(err, "decode references")
	}
	refs := make([]types.Reference, 0, len(locs))
	for _, l := range locs {
		abs := uriToPath(l.URI)
		refs = append(refs, types.Reference{
			Location: fromLocation(info.ProjectRoot, l),
			Desc:     strings.TrimSpace(readLine(abs, int(l.Range.Start.Line))),
		})
	}
	return refs, nil
}

func (c *Client) Definition(ctx context.Context, info types.FileInfo, pos types.Position) (*types.Location, error) {
	raw, err := c.call(ctx, info, methodDefinition, protocol.DefinitionParams{
		TextDocumentPositionParams: c.positionParams(info, pos),
	})
	if err != nil {
		return nil, err
	}
	loc, ok, err := decodeDefinition(raw)
	if err != nil {
		return nil, errors.Wrap(err, "decode definition")
	}
	if !ok {
		return nil, backend.ErrNotFound
	}
	out := fromLocation(info.ProjectRoot, loc)
	return &out, nil
}

func (c *Client) Hover(ctx context.Context, info types.FileInfo, pos types.Position) (string, error) {
	raw, err := c.call(ctx, info, methodHover, protocol.HoverParams{
		TextDocumentPositionParams: c.positionParams(info, pos),
	})
	if err != nil {
		return "", err
	}
	text, err := decodeHover(raw)
	if err != nil {
		return "", errors.Wrap(err, "decode hover")
	}
	if text == "" {
		return "", backend.ErrNotFound
	}
	return text, nil
}

func (c *Client) SignatureHelp(ctx context.Context, info types.FileInfo, pos types.Position) (*types.SignatureHelp, error) {
	raw, err := c.call(ctx, info, methodSignatureHelp, protocol.SignatureHelpParams{
		TextDocumentPositionParams: c.positionParams(info, pos),
	})
	if err != nil {
		return nil, err
	}
	var sh *protocol.SignatureHelp
	if err := unmarshalResult(raw, &sh); err != nil {
		return nil, errors.Wrap(err, "decode signature help")
	}
	if sh == nil || len(sh.Signatures) == 0 {
		return nil, backend.ErrNotFound
	}
	return toSignatureHelp(sh), nil
}

func (c *Client) Symbols(ctx context.Context, info types.FileInfo) ([]types.Symbol, error) {
	raw, err := c.call(ctx, info, methodDocumentSymbol, protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: fileURI(info.ProjectRoot, info.FilePath)},
	})
	if err != nil {
		return nil, err
	}
	return decodeSymbols(raw, info.ProjectRoot, info.FilePath)
}

func (c *Client) WorkspaceSymbols(ctx context.Context, info types.FileInfo, query string) ([]types.Symbol, error) {
	raw, err := c.call(ctx, info, methodWorkspaceSymbol, protocol.WorkspaceSymbolParams{Query: query})
	if err != nil {
		return nil, err
	}
	return decodeSymbols(raw, info.ProjectRoot, "")
}

func (c *Client) Rename(ctx context.Context, info types.FileInfo, pos types.Position, newName string) ([]types.WorkspaceEdit, error) {
	raw, err := c.call(ctx, info, methodRename, protocol.RenameParams{
		TextDocumentPositionParams: c.positionParams(info, pos),
		NewName:                    newName,
	})
	if err != nil {
		return nil, err
	}
	return decodeWorkspaceEdit(raw, info.ProjectRoot)
}

// Close shuts the server down and releases the connection.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c.initMu.Lock()
	initialized := c.initialized
	c.initMu.Unlock()

	if initialized {
		var ignored json.RawMessage
		if err := c.conn.Call(ctx, methodShutdown, nil, &ignored); err != nil {
			logger.Debug("lsp: shutdown: %v", err)
		}
		_ = c.conn.Notify(ctx, methodExit, nil)
	}
	err := c.conn.Close()

	if c.cmd != nil {
		done := make(chan error, 1)
		go func() { done <- c.cmd.Wait() }()
		select {
		case <-done:
		case <-ctx.Done():
			_ = c.cmd.Process.Kill()
			<-done
		}
	}
	return err
}

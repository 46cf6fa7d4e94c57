// Package remote implements backend.Backend against an HTTP language service.
// Requests are JSON bodies compressed with brotli.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/ThaneAcheron/veonim/backend"
	"github.com/ThaneAcheron/veonim/logger"
	"github.com/ThaneAcheron/veonim/types"
)

const (
	pathUpdate           = "/update"
	pathCompletions      = "/completions"
	pathReferences       = "/references"
	pathDefinition       = "/definition"
	pathHover            = "/hover"
	pathSignatureHelp    = "/signature_help"
	pathSymbols          = "/symbols"
	pathWorkspaceSymbols = "/workspace_symbols"
	pathRename           = "/rename"
)

// Client is the HTTP client for a remote language service
type Client struct {
	HTTPClient *http.Client
	URL        string
	AuthToken  string
	SessionID  string

	mu            sync.Mutex
	onDiagnostics backend.DiagnosticsHandler
}

// NewClient creates a client for the service at url.
// timeoutMs is the HTTP client timeout in milliseconds (0 = no timeout)
func NewClient(url, apiKey string, timeoutMs int) *Client {
	timeout := time.Duration(0)
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		URL:        strings.TrimSuffix(url, "/"),
		AuthToken:  apiKey,
		SessionID:  uuid.NewString(),
	}
}

func (c *Client) OnDiagnostics(handler backend.DiagnosticsHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDiagnostics = handler
}

func (c *Client) Close() error {
	c.HTTPClient.CloseIdleConnections()
	return nil
}

// do posts req to path and decodes the JSON reply into resp.
func (c *Client) do(ctx context.Context, path string, req, resp any) error {
	defer logger.Trace("remote" + path)()

	jsonData, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}

	// quality 1 for speed
	var compressedBuf bytes.Buffer
	brotliWriter := brotli.NewWriterLevel(&compressedBuf, 1)
	if _, err := brotliWriter.Write(jsonData); err != nil {
		return errors.Wrap(err, "compress request")
	}
	if err := brotliWriter.Close(); err != nil {
		return errors.Wrap(err, "close brotli writer")
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.URL+path, &compressedBuf)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Content-Encoding", "br")
	httpReq.Header.Set("Accept-Encoding", "br")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	httpReq.Header.Set("X-Session-ID", c.SessionID)
	if c.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	httpResp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "send %s", path), backend.ErrUnavailable)
	}
	defer httpResp.Body.Close()

	var body io.Reader = httpResp.Body
	if httpResp.Header.Get("Content-Encoding") == "br" {
		body = brotli.NewReader(httpResp.Body)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "read response"), backend.ErrUnavailable)
	}

	switch {
	case httpResp.StatusCode == http.StatusNotFound:
		return errors.Wrapf(backend.ErrNotFound, "%s", path)
	case httpResp.StatusCode >= 500:
		return errors.Mark(errors.Newf("%s failed with status %d: %s", path, httpResp.StatusCode, string(data)), backend.ErrUnavailable)
	case httpResp.StatusCode != http.StatusOK:
		return errors.Newf("%s failed with status %d: %s", path, httpResp.StatusCode, string(data))
	}

	if resp == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, resp); err != nil {
		return errors.Wrap(err, "parse response")
	}
	return nil
}

func (c *Client) Update(ctx context.Context, req *types.SyncRequest) error {
	body := UpdateRequest{
		ProjectRoot:  req.ProjectRoot,
		FilePath:     req.FilePath,
		Language:     req.LanguageKind,
		Revision:     req.Revision,
		Kind:         req.Kind.String(),
		CursorLine:   req.Cursor.Line,
		CursorColumn: req.Cursor.Column,
	}
	if req.Kind == types.SyncFull {
		body.FileContents = strings.Join(req.Lines, "\n")
		body.CursorOffset = CursorToByteOffset(req.Lines, req.Cursor.Line, req.Cursor.Column-1)
	} else {
		body.LineIndex = req.LineIndex
		body.LineText = strings.Join(req.Lines, "")
	}

	var resp UpdateResponse
	if err := c.do(ctx, pathUpdate, body, &resp); err != nil {
		return err
	}

	c.mu.Lock()
	handler := c.onDiagnostics
	c.mu.Unlock()
	if handler != nil && resp.Diagnostics != nil {
		diags := make([]types.Diagnostic, 0, len(resp.Diagnostics))
		for _, d := range resp.Diagnostics {
			diags = append(diags, d.toDiagnostic())
		}
		handler(req.FilePath, diags)
	}
	return nil
}

func (c *Client) Completions(ctx context.Context, info types.FileInfo, pos types.Position) ([]string, error) {
	var resp CompletionsResponse
	if err := c.do(ctx, pathCompletions, newQuery(info, pos), &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (c *Client) References(ctx context.Context, info types.FileInfo, pos types.Position) ([]types.Reference, error) {
	var resp ReferencesResponse
	if err := c.do(ctx, pathReferences, newQuery(info, pos), &resp); err != nil {
		return nil, err
	}
	refs := make([]types.Reference, 0, len(resp.References))
	for _, r := range resp.References {
		refs = append(refs, types.Reference{Location: r.toLocation(), Desc: r.Desc})
	}
	return refs, nil
}

func (c *Client) Definition(ctx context.Context, info types.FileInfo, pos types.Position) (*types.Location, error) {
	var resp DefinitionResponse
	if err := c.do(ctx, pathDefinition, newQuery(info, pos), &resp); err != nil {
		return nil, err
	}
	if resp.Location == nil {
		return nil, backend.ErrNotFound
	}
	loc := resp.Location.toLocation()
	return &loc, nil
}

func (c *Client) Hover(ctx context.Context, info types.FileInfo, pos types.Position) (string, error) {
	var resp HoverResponse
	if err := c.do(ctx, pathHover, newQuery(info, pos), &resp); err != nil {
		return "", err
	}
	if resp.Text == "" {
		return "", backend.ErrNotFound
	}
	return resp.Text, nil
}

func (c *Client) SignatureHelp(ctx context.Context, info types.FileInfo, pos types.Position) (*types.SignatureHelp, error) {
	var resp SignatureHelpResponse
	if err := c.do(ctx, pathSignatureHelp, newQuery(info, pos), &resp); err != nil {
		return nil, err
	}
	if len(resp.Signatures) == 0 {
		return nil, backend.ErrNotFound
	}
	out := &types.SignatureHelp{
		ActiveSignature: resp.ActiveSignature,
		ActiveParameter: resp.ActiveParameter,
	}
	for _, s := range resp.Signatures {
		out.Signatures = append(out.Signatures, types.Signature{Label: s.Label, Parameters: s.Parameters})
	}
	return out, nil
}

func (c *Client) Symbols(ctx context.Context, info types.FileInfo) ([]types.Symbol, error) {
	var resp SymbolsResponse
	if err := c.do(ctx, pathSymbols, newQuery(info, types.Position{}), &resp); err != nil {
		return nil, err
	}
	return resp.symbols(), nil
}

func (c *Client) WorkspaceSymbols(ctx context.Context, info types.FileInfo, query string) ([]types.Symbol, error) {
	q := newQuery(info, types.Position{})
	q.Query = query
	var resp SymbolsResponse
	if err := c.do(ctx, pathWorkspaceSymbols, q, &resp); err != nil {
		return nil, err
	}
	return resp.symbols(), nil
}

func (c *Client) Rename(ctx context.Context, info types.FileInfo, pos types.Position, newName string) ([]types.WorkspaceEdit, error) {
	q := newQuery(info, pos)
	q.NewName = newName
	var resp RenameResponse
	if err := c.do(ctx, pathRename, q, &resp); err != nil {
		return nil, err
	}
	out := make([]types.WorkspaceEdit, 0, len(resp.Edits))
	for _, fe := range resp.Edits {
		we := types.WorkspaceEdit{Path: fe.Path}
		for _, e := range fe.Edits {
			we.Edits = append(we.Edits, types.TextEdit(e))
		}
		out = append(out, we)
	}
	return out, nil
}

// CursorToByteOffset converts a cursor position (1-indexed row, 0-indexed col)
// to a byte offset within the text content.
func CursorToByteOffset(lines []string, row, col int) int {
	offset := 0
	for i := 0; i < row-1 && i < len(lines); i++ {
		offset += len(lines[i]) + 1 // +1 for newline
	}
	if row >= 1 && row <= len(lines) {
		offset += min(max(col, 0), len(lines[row-1]))
	}
	return offset
}

package lsp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/ThaneAcheron/veonim/types"
)

func fileURI(root, file string) string {
	if !filepath.IsAbs(file) {
		file = filepath.Join(root, file)
	}
	return pathToURI(file)
}

func pathToURI(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

func uriToPath(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return uri
	}
	return filepath.FromSlash(u.Path)
}

// relativePath mirrors how the editor reports paths: relative to the project
// root when inside it.
func relativePath(root, path string) string {
	if root == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

func toPosition(pos types.Position) protocol.Position {
	return protocol.Position{
		Line:      protocol.UInteger(max(0, pos.Line-1)),
		Character: protocol.UInteger(max(0, pos.Column-1)),
	}
}

func fromLocation(root string, loc protocol.Location) types.Location {
	return types.Location{
		Path:   relativePath(root, uriToPath(loc.URI)),
		Line:   int(loc.Range.Start.Line) + 1,
		Column: int(loc.Range.Start.Character) + 1,
	}
}

func toTextEdit(e protocol.TextEdit) types.TextEdit {
	return types.TextEdit{
		StartLine:   int(e.Range.Start.Line) + 1,
		StartColumn: int(e.Range.Start.Character) + 1,
		EndLine:     int(e.Range.End.Line) + 1,
		EndColumn:   int(e.Range.End.Character) + 1,
		Text:        e.NewText,
	}
}

func toDiagnostic(d protocol.Diagnostic) types.Diagnostic {
	out := types.Diagnostic{
		StartLine:   int(d.Range.Start.Line) + 1,
		StartColumn: int(d.Range.Start.Character) + 1,
		EndLine:     int(d.Range.End.Line) + 1,
		EndColumn:   int(d.Range.End.Character) + 1,
		Severity:    types.SeverityError,
		Message:     d.Message,
	}
	if d.Severity != nil {
		out.Severity = types.DiagnosticSeverity(*d.Severity)
	}
	if d.Source != nil {
		out.Source = *d.Source
	}
	return out
}

// readLine returns the 0-indexed line of path, or "" when unreadable.
func readLine(path string, line int) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for i := 0; sc.Scan(); i++ {
		if i == line {
			return sc.Text()
		}
	}
	return ""
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func unmarshalResult(raw json.RawMessage, v any) error {
	if isNull(raw) {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// decodeCompletions accepts CompletionItem[] or CompletionList.
func decodeCompletions(raw json.RawMessage) ([]string, error) {
	if isNull(raw) {
		return nil, nil
	}
	var items []protocol.CompletionItem
	if isArray(raw) {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, errors.Wrap(err, "decode completion items")
		}
	} else {
		var list protocol.CompletionList
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, errors.Wrap(err, "decode completion list")
		}
		items = list.Items
	}

	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		word := item.Label
		if item.InsertText != nil && *item.InsertText != "" {
			word = *item.InsertText
		}
		if word == "" || seen[word] {
			continue
		}
		seen[word] = true
		out = append(out, word)
	}
	return out, nil
}

type locationOrLink struct {
	URI                  string         `json:"uri"`
	Range                protocol.Range `json:"range"`
	TargetURI            string         `json:"targetUri"`
	TargetSelectionRange protocol.Range `json:"targetSelectionRange"`
}

func (l locationOrLink) location() protocol.Location {
	if l.TargetURI != "" {
		return protocol.Location{URI: l.TargetURI, Range: l.TargetSelectionRange}
	}
	return protocol.Location{URI: l.URI, Range: l.Range}
}

// decodeDefinition accepts Location, Location[] or LocationLink[] and
// returns the first entry.
func decodeDefinition(raw json.RawMessage) (protocol.Location, bool, error) {
	if isNull(raw) {
		return protocol.Location{}, false, nil
	}
	if isArray(raw) {
		var locs []locationOrLink
		if err := json.Unmarshal(raw, &locs); err != nil {
			return protocol.Location{}, false, err
		}
		if len(locs) == 0 {
			return protocol.Location{}, false, nil
		}
		return locs[0].location(), true, nil
	}
	var loc locationOrLink
	if err := json.Unmarshal(raw, &loc); err != nil {
		return protocol.Location{}, false, err
	}
	return loc.location(), true, nil
}

type hoverResult struct {
	Contents json.RawMessage `json:"contents"`
}

type markedValue struct {
	Value string `json:"value"`
}

// decodeHover flattens MarkupContent, MarkedString and MarkedString[].
func decodeHover(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	var h hoverResult
	if err := json.Unmarshal(raw, &h); err != nil {
		return "", err
	}
	return markedText(h.Contents)
}

func markedText(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if isNull(trimmed) {
		return "", nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		err := json.Unmarshal(trimmed, &s)
		return strings.TrimSpace(s), err
	case '[':
		var parts []json.RawMessage
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return "", err
		}
		var texts []string
		for _, p := range parts {
			t, err := markedText(p)
			if err != nil {
				return "", err
			}
			if t != "" {
				texts = append(texts, t)
			}
		}
		return strings.Join(texts, "\n\n"), nil
	default:
		var v markedValue
		err := json.Unmarshal(trimmed, &v)
		return strings.TrimSpace(v.Value), err
	}
}

func toSignatureHelp(sh *protocol.SignatureHelp) *types.SignatureHelp {
	out := &types.SignatureHelp{}
	if sh.ActiveSignature != nil {
		out.ActiveSignature = int(*sh.ActiveSignature)
	}
	if sh.ActiveParameter != nil {
		out.ActiveParameter = int(*sh.ActiveParameter)
	}
	for _, sig := range sh.Signatures {
		s := types.Signature{Label: sig.Label}
		for _, p := range sig.Parameters {
			s.Parameters = append(s.Parameters, parameterLabel(sig.Label, p.Label))
		}
		out.Signatures = append(out.Signatures, s)
	}
	return out
}

// parameterLabel resolves a string label or an [start, end) offset pair into
// the signature label.
func parameterLabel(signature string, label any) string {
	switch v := label.(type) {
	case string:
		return v
	case []any:
		if len(v) != 2 {
			return ""
		}
		start, ok1 := v[0].(float64)
		end, ok2 := v[1].(float64)
		if !ok1 || !ok2 {
			return ""
		}
		runes := []rune(signature)
		s, e := int(start), int(end)
		if s < 0 || e > len(runes) || s > e {
			return ""
		}
		return string(runes[s:e])
	default:
		return ""
	}
}

// symbolEntry covers both SymbolInformation and DocumentSymbol.
type symbolEntry struct {
	Name           string             `json:"name"`
	Kind           int                `json:"kind"`
	Location       *protocol.Location `json:"location"`
	SelectionRange *protocol.Range    `json:"selectionRange"`
	Children       []symbolEntry      `json:"children"`
}

func decodeSymbols(raw json.RawMessage, root, file string) ([]types.Symbol, error) {
	var entries []symbolEntry
	if err := unmarshalResult(raw, &entries); err != nil {
		return nil, errors.Wrap(err, "decode symbols")
	}
	var out []types.Symbol
	var walk func(entries []symbolEntry)
	walk = func(entries []symbolEntry) {
		for _, e := range entries {
			sym := types.Symbol{Name: e.Name, Kind: symbolKindName(e.Kind)}
			switch {
			case e.Location != nil:
				sym.Location = fromLocation(root, *e.Location)
			case e.SelectionRange != nil:
				sym.Location = types.Location{
					Path:   file,
					Line:   int(e.SelectionRange.Start.Line) + 1,
					Column: int(e.SelectionRange.Start.Character) + 1,
				}
			}
			out = append(out, sym)
			walk(e.Children)
		}
	}
	walk(entries)
	return out, nil
}

var symbolKinds = []string{
	"", "file", "module", "namespace", "package", "class", "method", "property",
	"field", "constructor", "enum", "interface", "function", "variable",
	"constant", "string", "number", "boolean", "array", "object", "key", "null",
	"enum member", "struct", "event", "operator", "type parameter",
}

func symbolKindName(kind int) string {
	if kind <= 0 || kind >= len(symbolKinds) {
		return "symbol"
	}
	return symbolKinds[kind]
}

type workspaceEdit struct {
	Changes         map[string][]protocol.TextEdit `json:"changes"`
	DocumentChanges []struct {
		TextDocument struct {
			URI string `json:"uri"`
		} `json:"textDocument"`
		Edits []protocol.TextEdit `json:"edits"`
	} `json:"documentChanges"`
}

// decodeWorkspaceEdit groups text edits per file. Resource operations are
// ignored.
func decodeWorkspaceEdit(raw json.RawMessage, root string) ([]types.WorkspaceEdit, error) {
	var we workspaceEdit
	if err := unmarshalResult(raw, &we); err != nil {
		return nil, errors.Wrap(err, "decode workspace edit")
	}

	byPath := make(map[string]int)
	var out []types.WorkspaceEdit
	add := func(uri string, edits []protocol.TextEdit) {
		if uri == "" || len(edits) == 0 {
			return
		}
		path := relativePath(root, uriToPath(uri))
		i, ok := byPath[path]
		if !ok {
			i = len(out)
			byPath[path] = i
			out = append(out, types.WorkspaceEdit{Path: path})
		}
		for _, e := range edits {
			out[i].Edits = append(out[i].Edits, toTextEdit(e))
		}
	}

	for _, dc := range we.DocumentChanges {
		add(dc.TextDocument.URI, dc.Edits)
	}
	if len(we.DocumentChanges) == 0 {
		for uri, edits := range we.Changes {
			add(uri, edits)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	}
	return out, nil
}

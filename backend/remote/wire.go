package remote

import "github.com/ThaneAcheron/veonim/types"

// UpdateRequest carries a full or single-line document sync
type UpdateRequest struct {
	ProjectRoot  string `json:"project_root"`
	FilePath     string `json:"file_path"`
	Language     string `json:"language"`
	Revision     int    `json:"revision"`
	Kind         string `json:"kind"`
	CursorLine   int    `json:"cursor_line"`
	CursorColumn int    `json:"cursor_column"`
	CursorOffset int    `json:"cursor_offset,omitempty"`
	FileContents string `json:"file_contents,omitempty"`
	LineIndex    int    `json:"line_index,omitempty"`
	LineText     string `json:"line_text,omitempty"`
}

// UpdateResponse may carry fresh diagnostics for the synced file
type UpdateResponse struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// QueryRequest is shared by every position-based query
type QueryRequest struct {
	ProjectRoot string `json:"project_root"`
	FilePath    string `json:"file_path"`
	Language    string `json:"language"`
	Revision    int    `json:"revision"`
	Line        int    `json:"line"`
	Column      int    `json:"column"`
	Query       string `json:"query,omitempty"`
	NewName     string `json:"new_name,omitempty"`
}

func newQuery(info types.FileInfo, pos types.Position) QueryRequest {
	return QueryRequest{
		ProjectRoot: info.ProjectRoot,
		FilePath:    info.FilePath,
		Language:    info.LanguageKind,
		Revision:    info.Revision,
		Line:        pos.Line,
		Column:      pos.Column,
	}
}

type CompletionsResponse struct {
	Items []string `json:"items"`
}

type Location struct {
	Path   string `json:"path"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Desc   string `json:"desc,omitempty"`
}

func (l Location) toLocation() types.Location {
	return types.Location{Path: l.Path, Line: l.Line, Column: l.Column}
}

type ReferencesResponse struct {
	References []Location `json:"references"`
}

type DefinitionResponse struct {
	Location *Location `json:"location"`
}

type HoverResponse struct {
	Text string `json:"text"`
}

type Signature struct {
	Label      string   `json:"label"`
	Parameters []string `json:"parameters"`
}

type SignatureHelpResponse struct {
	Signatures      []Signature `json:"signatures"`
	ActiveSignature int         `json:"active_signature"`
	ActiveParameter int         `json:"active_parameter"`
}

type Symbol struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Path   string `json:"path"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

type SymbolsResponse struct {
	Symbols []Symbol `json:"symbols"`
}

func (r SymbolsResponse) symbols() []types.Symbol {
	out := make([]types.Symbol, 0, len(r.Symbols))
	for _, s := range r.Symbols {
		out = append(out, types.Symbol{
			Name:     s.Name,
			Kind:     s.Kind,
			Location: types.Location{Path: s.Path, Line: s.Line, Column: s.Column},
		})
	}
	return out
}

type TextEdit struct {
	StartLine   int    `json:"start_line"`
	StartColumn int    `json:"start_column"`
	EndLine     int    `json:"end_line"`
	EndColumn   int    `json:"end_column"`
	Text        string `json:"text"`
}

type FileEdits struct {
	Path  string     `json:"path"`
	Edits []TextEdit `json:"edits"`
}

type RenameResponse struct {
	Edits []FileEdits `json:"edits"`
}

type Diagnostic struct {
	StartLine   int    `json:"start_line"`
	StartColumn int    `json:"start_column"`
	EndLine     int    `json:"end_line"`
	EndColumn   int    `json:"end_column"`
	Severity    int    `json:"severity"`
	Message     string `json:"message"`
	Source      string `json:"source,omitempty"`
}

func (d Diagnostic) toDiagnostic() types.Diagnostic {
	sev := types.DiagnosticSeverity(d.Severity)
	if sev < types.SeverityError || sev > types.SeverityHint {
		sev = types.SeverityError
	}
	return types.Diagnostic{
		StartLine:   d.StartLine,
		StartColumn: d.StartColumn,
		EndLine:     d.EndLine,
		EndColumn:   d.EndColumn,
		Severity:    sev,
		Message:     d.Message,
		Source:      d.Source,
	}
}

package types

// FileInfo is the session identity attached to every backend call.
type FileInfo struct {
	ProjectRoot  string
	FilePath     string
	LanguageKind string
	Revision     int
}

// Position is a cursor position in buffer coordinates
type Position struct {
	Line   int // 1-indexed
	Column int // 1-indexed byte column, vim getpos() convention
}

// SyncKind distinguishes full-document from single-line updates
type SyncKind int

const (
	SyncFull SyncKind = iota
	SyncPartial
)

func (k SyncKind) String() string {
	switch k {
	case SyncFull:
		return "full"
	case SyncPartial:
		return "partial"
	default:
		return "unknown"
	}
}

// SyncRequest is built fresh for every update call and never persisted.
type SyncRequest struct {
	FileInfo
	Cursor Position
	Kind   SyncKind
	// Lines holds the whole document for SyncFull and exactly one line for SyncPartial
	Lines []string
	// LineIndex is the 0-indexed line replaced by a partial sync
	LineIndex int
}

// Query is the identifier-like token being typed at the cursor
type Query struct {
	AnchorColumn int // 0-indexed byte offset where the token starts
	Text         string
	BoundaryChar string // character left of the anchor, empty at line start
}

// Empty reports whether there is no active query
func (q Query) Empty() bool { return q.Text == "" }

// MenuOption is one entry of the completion popup
type MenuOption struct {
	ID   int    `msgpack:"id"`
	Text string `msgpack:"text"`
}

// Point is a screen cell
type Point struct {
	Row int
	Col int
}

// Location is a position inside some file
type Location struct {
	Path   string
	Line   int // 1-indexed
	Column int // 1-indexed
}

// Reference is a location with a short description
type Reference struct {
	Location
	Desc string
}

// Symbol is a named document or workspace symbol
type Symbol struct {
	Name     string
	Kind     string
	Location Location
}

// SignatureHelp holds callable signatures at the cursor
type SignatureHelp struct {
	Signatures      []Signature
	ActiveSignature int
	ActiveParameter int
}

// Signature is one signature label with its parameter labels
type Signature struct {
	Label      string
	Parameters []string
}

// TextEdit replaces the range [Start, End) with Text. Lines and columns are 1-indexed.
type TextEdit struct {
	StartLine   int
	StartColumn int
	EndLine     int
	EndColumn   int
	Text        string
}

// WorkspaceEdit groups edits per file
type WorkspaceEdit struct {
	Path  string
	Edits []TextEdit
}

// DiagnosticSeverity follows LSP numbering
type DiagnosticSeverity int

const (
	SeverityError DiagnosticSeverity = iota + 1
	SeverityWarning
	SeverityInformation
	SeverityHint
)

// Diagnostic is a backend-reported problem in a file
type Diagnostic struct {
	StartLine   int // 1-indexed
	StartColumn int // 1-indexed
	EndLine     int
	EndColumn   int
	Severity    DiagnosticSeverity
	Message     string
	Source      string
}

// Contains reports whether pos falls inside the diagnostic range
func (d Diagnostic) Contains(pos Position) bool {
	if pos.Line < d.StartLine || pos.Line > d.EndLine {
		return false
	}
	if pos.Line == d.StartLine && pos.Column < d.StartColumn {
		return false
	}
	if pos.Line == d.EndLine && pos.Column > d.EndColumn {
		return false
	}
	return true
}

// Grid is the screen cursor and the editor height in cells
type Grid struct {
	CursorRow int // 0-indexed
	CursorCol int // 0-indexed
	Rows      int
}

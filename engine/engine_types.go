package engine

import (
	"time"

	"github.com/ThaneAcheron/veonim/docsync"
	"github.com/ThaneAcheron/veonim/types"
)

// Host defines the editor operations the engine drives.
// Implemented by host.Nvim for Neovim integration.
type Host interface {
	docsync.Source
	Grid() (types.Grid, error)
	PublishCompletions(candidates []string, anchorColumn int) error
	CompletedWord() (string, error)
	Feedkeys(keys string) error
	Register(name string) (string, error)
	Jump(loc types.Location) error
	ShowReferences(refs []types.Reference) error
	ApplyEdits(edits []types.TextEdit) error
	Echo(msg string) error
	RegisterEventHandler(handler func(event string, args []any)) error
}

// Popup displays the completion menu, hover text and symbol lists.
// Implemented by host.Nvim through the plugin's Lua module.
type Popup interface {
	ShowMenu(options []types.MenuOption, at types.Point) error
	HideMenu() error
	SelectMenu(index int) error
	ShowHover(text string) error
	HideHover() error
	ShowSymbols(symbols []types.Symbol) error
}

// Keywords is the local keyword index used as a completion fallback.
// Implemented by harvester.Harvester.
type Keywords interface {
	GetKeywords(project, file string) []string
	Update(project, file string, lines []string)
	AddWord(project, file, word string)
}

type EngineConfig struct {
	FileEnterDebounce  time.Duration
	TextChangeDebounce time.Duration
	MaxResults         int
	// QueryTimeout bounds completion and action requests (0 = no timeout).
	// Document syncs are never bounded.
	QueryTimeout time.Duration
	// CompletionTriggers maps a language to its query boundary pattern
	CompletionTriggers map[string]string
}

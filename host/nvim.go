// Package host adapts a Neovim RPC connection to the operations the engine
// needs: reading buffer state, publishing completion state and driving the
// popup, hover and location list through the Lua side of the plugin.
package host

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/neovim/go-client/nvim"

	"github.com/ThaneAcheron/veonim/logger"
	"github.com/ThaneAcheron/veonim/types"
)

// EventMethod is the rpcnotify method the plugin sends editor events on.
const EventMethod = "veonim_event"

var errNoClient = errors.New("nvim client not set")

type Nvim struct {
	client *nvim.Nvim
}

func New(client *nvim.Nvim) *Nvim {
	return &Nvim{client: client}
}

// RegisterEventHandler forwards plugin notifications of the form
// rpcnotify(chan, "veonim_event", name, args...) to handler.
func (h *Nvim) RegisterEventHandler(handler func(event string, args []any)) error {
	if h.client == nil {
		return errNoClient
	}
	return h.client.RegisterHandler(EventMethod, func(_ *nvim.Nvim, event string, args ...any) {
		handler(event, args)
	})
}

// FileInfo resolves the working directory, the current file relative to it
// and the buffer's filetype.
func (h *Nvim) FileInfo() (types.FileInfo, error) {
	defer logger.Trace("host.FileInfo")()
	if h.client == nil {
		return types.FileInfo{}, errNoClient
	}

	var ctx [3]string
	err := h.client.ExecLua(`return {vim.fn.getcwd(), vim.fn.expand('%:p'), vim.bo.filetype}`, &ctx)
	if err != nil {
		return types.FileInfo{}, errors.Wrap(err, "read file context")
	}
	return types.FileInfo{
		ProjectRoot:  ctx[0],
		FilePath:     relativeToWorkspace(ctx[1], ctx[0]),
		LanguageKind: ctx[2],
	}, nil
}

func (h *Nvim) ChangedTick() (int, error) {
	if h.client == nil {
		return 0, errNoClient
	}
	var tick int
	if err := h.client.BufferVar(nvim.Buffer(0), "changedtick", &tick); err != nil {
		return 0, errors.Wrap(err, "read changedtick")
	}
	return tick, nil
}

// Position returns the cursor as reported by getpos('.').
func (h *Nvim) Position() (types.Position, error) {
	if h.client == nil {
		return types.Position{}, errNoClient
	}
	var pos [4]int
	if err := h.client.Call("getpos", &pos, "."); err != nil {
		return types.Position{}, errors.Wrap(err, "read cursor")
	}
	return types.Position{Line: pos[1], Column: pos[2]}, nil
}

func (h *Nvim) CurrentLine() (string, error) {
	if h.client == nil {
		return "", errNoClient
	}
	line, err := h.client.CurrentLine()
	if err != nil {
		return "", errors.Wrap(err, "read current line")
	}
	return string(line), nil
}

func (h *Nvim) Lines() ([]string, error) {
	defer logger.Trace("host.Lines")()
	if h.client == nil {
		return nil, errNoClient
	}
	raw, err := h.client.BufferLines(nvim.Buffer(0), 0, -1, false)
	if err != nil {
		return nil, errors.Wrap(err, "read buffer lines")
	}
	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = string(l)
	}
	return lines, nil
}

// Grid returns the screen cursor and the number of editor rows.
func (h *Nvim) Grid() (types.Grid, error) {
	if h.client == nil {
		return types.Grid{}, errNoClient
	}
	var g [3]int
	err := h.client.ExecLua(`return {vim.fn.screenrow() - 1, vim.fn.screencol() - 1, vim.o.lines}`, &g)
	if err != nil {
		return types.Grid{}, errors.Wrap(err, "read grid")
	}
	return types.Grid{CursorRow: g[0], CursorCol: g[1], Rows: g[2]}, nil
}

// PublishCompletions exposes the candidates and the query anchor as
// g:veonim_completions and g:veonim_complete_pos for the completefunc.
func (h *Nvim) PublishCompletions(candidates []string, anchorColumn int) error {
	if h.client == nil {
		return errNoClient
	}
	if candidates == nil {
		candidates = []string{}
	}
	batch := h.client.NewBatch()
	batch.SetVar("veonim_completions", candidates)
	batch.SetVar("veonim_complete_pos", anchorColumn)
	return batch.Execute()
}

// CompletedWord returns v:completed_item.word, empty when nothing was accepted.
func (h *Nvim) CompletedWord() (string, error) {
	if h.client == nil {
		return "", errNoClient
	}
	var word string
	if err := h.client.Eval(`get(v:completed_item, 'word', '')`, &word); err != nil {
		return "", errors.Wrap(err, "read completed item")
	}
	return word, nil
}

func (h *Nvim) Feedkeys(keys string) error {
	if h.client == nil {
		return errNoClient
	}
	return h.client.FeedKeys(keys, "n", false)
}

func (h *Nvim) Register(name string) (string, error) {
	if h.client == nil {
		return "", errNoClient
	}
	var text string
	if err := h.client.Call("getreg", &text, name); err != nil {
		return "", errors.Wrapf(err, "read register %s", name)
	}
	return text, nil
}

// Jump opens loc.Path when it is not the current file and moves the cursor.
func (h *Nvim) Jump(loc types.Location) error {
	if h.client == nil {
		return errNoClient
	}
	return h.client.ExecLua(`
		local path, line, col = ...
		if path ~= '' and vim.fn.fnamemodify(path, ':p') ~= vim.fn.expand('%:p') then
			vim.cmd.edit(vim.fn.fnameescape(path))
		end
		vim.fn.setpos("''", vim.fn.getpos('.'))
		vim.api.nvim_win_set_cursor(0, {line, math.max(col - 1, 0)})
	`, nil, loc.Path, loc.Line, loc.Column)
}

// ShowReferences fills the location list, opens it and returns focus.
func (h *Nvim) ShowReferences(refs []types.Reference) error {
	if h.client == nil {
		return errNoClient
	}
	return h.client.ExecLua(`
		local items = ...
		vim.fn.setloclist(0, {}, ' ', {title = 'references', items = items})
		vim.cmd('lopen')
		vim.cmd('wincmd p')
	`, nil, locListItems(refs))
}

// ApplyEdits patches the current buffer. Edits are applied bottom-up so
// earlier positions stay valid.
func (h *Nvim) ApplyEdits(edits []types.TextEdit) error {
	if h.client == nil {
		return errNoClient
	}
	batch := h.client.NewBatch()
	for _, e := range sortEditsDescending(edits) {
		batch.SetBufferText(nvim.Buffer(0),
			e.StartLine-1, e.StartColumn-1,
			e.EndLine-1, e.EndColumn-1,
			replacement(e.Text))
	}
	return batch.Execute()
}

func (h *Nvim) Echo(msg string) error {
	if h.client == nil {
		return errNoClient
	}
	return h.client.ExecLua(`vim.api.nvim_echo({{...}}, false, {})`, nil, msg)
}

// Popup display. The Lua module owns rendering.

func (h *Nvim) ShowMenu(options []types.MenuOption, at types.Point) error {
	return h.executeLuaFunction("require('veonim').show_menu(...)", options, at.Row, at.Col)
}

func (h *Nvim) HideMenu() error {
	return h.executeLuaFunction("require('veonim').hide_menu()")
}

func (h *Nvim) SelectMenu(index int) error {
	return h.executeLuaFunction("require('veonim').select_menu(...)", index)
}

func (h *Nvim) ShowHover(text string) error {
	return h.executeLuaFunction("require('veonim').show_hover(...)", strings.Split(text, "\n"))
}

func (h *Nvim) HideHover() error {
	return h.executeLuaFunction("require('veonim').hide_hover()")
}

func (h *Nvim) ShowSymbols(symbols []types.Symbol) error {
	return h.executeLuaFunction("require('veonim').show_symbols(...)", symbolItems(symbols))
}

func (h *Nvim) executeLuaFunction(luaCode string, args ...any) error {
	if h.client == nil {
		return errNoClient
	}
	batch := h.client.NewBatch()
	if len(args) > 0 {
		batch.ExecLua(luaCode, nil, args...)
	} else {
		batch.ExecLua(luaCode, nil, nil)
	}
	if err := batch.Execute(); err != nil {
		logger.Error("error executing lua function: %v", err)
		return err
	}
	return nil
}

// relativeToWorkspace strips the workspace prefix from absolutePath when the
// file lives inside it.
func relativeToWorkspace(absolutePath, workspacePath string) string {
	if absolutePath == "" {
		return ""
	}
	absolutePath = filepath.Clean(absolutePath)
	workspacePath = filepath.Clean(workspacePath)

	rel, err := filepath.Rel(workspacePath, absolutePath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return absolutePath
	}
	return rel
}

func sortEditsDescending(edits []types.TextEdit) []types.TextEdit {
	sorted := append([]types.TextEdit(nil), edits...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].StartLine != sorted[j].StartLine {
			return sorted[i].StartLine > sorted[j].StartLine
		}
		return sorted[i].StartColumn > sorted[j].StartColumn
	})
	return sorted
}

func replacement(text string) [][]byte {
	parts := strings.Split(text, "\n")
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = []byte(p)
	}
	return out
}

func locListItems(refs []types.Reference) []map[string]any {
	items := make([]map[string]any, 0, len(refs))
	for _, r := range refs {
		items = append(items, map[string]any{
			"filename": r.Path,
			"lnum":     r.Line,
			"col":      r.Column,
			"text":     r.Desc,
		})
	}
	return items
}

func symbolItems(symbols []types.Symbol) []map[string]any {
	items := make([]map[string]any, 0, len(symbols))
	for _, s := range symbols {
		items = append(items, map[string]any{
			"name": s.Name,
			"kind": s.Kind,
			"path": s.Location.Path,
			"line": s.Location.Line,
			"col":  s.Location.Column,
		})
	}
	return items
}

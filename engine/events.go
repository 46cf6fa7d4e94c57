package engine

import (
	"context"
	"runtime/debug"

	"github.com/ThaneAcheron/veonim/docsync"
	"github.com/ThaneAcheron/veonim/logger"
	"github.com/ThaneAcheron/veonim/metrics"
	"github.com/ThaneAcheron/veonim/types"
)

// EventType represents the type of event in the engine
type EventType string

// Event type constants
const (
	EventFileEntered  EventType = "file_entered"
	EventTextChanged  EventType = "text_changed"
	EventTextChangedI EventType = "text_changed_i"
	EventCursorMoved  EventType = "cursor_moved"
	EventCursorMovedI EventType = "cursor_moved_i"
	EventInsertLeave  EventType = "insert_leave"
	EventCompleteDone EventType = "complete_done"
	EventPmenuSelect  EventType = "pmenu_select"
	EventPmenuHide    EventType = "pmenu_hide"
	EventAction       EventType = "action"

	// Debounce timers (internal only)
	EventFileEnterTimeout  EventType = "file_enter_timeout"
	EventTextChangeTimeout EventType = "text_change_timeout"
)

// Event represents an event in the engine
type Event struct {
	Type EventType
	Data []any
}

var eventTypeMap map[string]EventType

func init() {
	eventTypeMap = buildEventTypeMap()
}

func buildEventTypeMap() map[string]EventType {
	eventMap := make(map[string]EventType)

	// timer events are internal and cannot be sent by the plugin
	allEventTypes := []EventType{
		EventFileEntered,
		EventTextChanged,
		EventTextChangedI,
		EventCursorMoved,
		EventCursorMovedI,
		EventInsertLeave,
		EventCompleteDone,
		EventPmenuSelect,
		EventPmenuHide,
		EventAction,
	}

	for _, eventType := range allEventTypes {
		eventMap[string(eventType)] = eventType
	}

	return eventMap
}

// EventTypeFromString converts a plugin event name to EventType
func EventTypeFromString(s string) EventType {
	if eventType, exists := eventTypeMap[s]; exists {
		return eventType
	}
	return ""
}

// handlers maps each event to its action. Events without an entry are ignored.
var handlers map[EventType]func(*Engine, Event)

func init() {
	handlers = map[EventType]func(*Engine, Event){
		EventFileEntered:       (*Engine).doScheduleFileEnter,
		EventFileEnterTimeout:  (*Engine).doEnterFile,
		EventTextChanged:       (*Engine).doScheduleFullSync,
		EventTextChangeTimeout: (*Engine).doFullSync,
		EventTextChangedI:      (*Engine).doPartialSync,
		EventCursorMoved:       (*Engine).doCursorMoved,
		EventCursorMovedI:      (*Engine).doCursorMovedInsert,
		EventInsertLeave:       (*Engine).doInsertLeave,
		EventCompleteDone:      (*Engine).doCompleteDone,
		EventPmenuSelect:       (*Engine).doPmenuSelect,
		EventPmenuHide:         (*Engine).doPmenuHide,
		EventAction:            (*Engine).doAction,
	}
}

const maxEventLoopRestarts = 3

func (e *Engine) eventLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			restarts := e.restarts.Add(1)
			logger.Error("event loop panic [%d/%d]: %v\n%s",
				restarts, maxEventLoopRestarts, r, debug.Stack())

			if int(restarts) < maxEventLoopRestarts {
				e.eventLoop(ctx)
			} else {
				logger.Error("max event loop restarts reached, stopping engine")
				go e.Stop() // async to avoid deadlock
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-e.eventChan:
			if !ok {
				return
			}

			e.mu.RLock()
			stopped := e.stopped
			e.mu.RUnlock()

			if stopped {
				return
			}

			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error("event handler panic recovered for event %v: %v", event.Type, r)
					}
				}()
				e.handleEvent(event)
			}()
		}
	}
}

func (e *Engine) handleEvent(event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return
	}

	handler, ok := handlers[event.Type]
	if !ok {
		logger.Debug("no handler for event %s", event.Type)
		return
	}
	logger.Debug("handle event: %v %v", event.Type, event.Data)
	handler(e, event)
}

// enqueue hands an event to the loop. It gives up when the engine stops.
func (e *Engine) enqueue(event Event) {
	select {
	case e.eventChan <- event:
	case <-e.mainCtx.Done():
	}
}

func (e *Engine) doScheduleFileEnter(Event) {
	e.fileEnter.Trigger(struct{}{})
}

// doEnterFile switches the session to the buffer the editor is showing and
// pushes the whole document.
func (e *Engine) doEnterFile(Event) {
	if e.host == nil {
		return
	}
	info, err := e.host.FileInfo()
	if err != nil {
		logger.Error("error resolving file: %v", err)
		return
	}
	e.session.EnterFile(info.ProjectRoot, info.FilePath, info.LanguageKind)
	e.textChange.Cancel()
	if e.popup != nil {
		e.popup.HideMenu()
	}
	logger.Info("entered %s (%s)", info.FilePath, info.LanguageKind)
	e.syncs.Call(docsync.Request{Kind: types.SyncFull, Force: true})
}

func (e *Engine) doScheduleFullSync(Event) {
	e.textChange.Trigger(struct{}{})
}

func (e *Engine) doFullSync(Event) {
	e.syncs.Call(docsync.Request{Kind: types.SyncFull})
}

func (e *Engine) doPartialSync(Event) {
	e.syncs.Call(docsync.Request{Kind: types.SyncPartial})
}

func (e *Engine) doCursorMoved(Event) {
	if e.popup != nil {
		e.popup.HideHover()
	}
	e.reportDiagnosticAtCursor()
}

func (e *Engine) doCursorMovedInsert(Event) {
	if e.popup != nil {
		e.popup.HideHover()
	}
	e.completions.Call(struct{}{})
}

func (e *Engine) doInsertLeave(Event) {
	e.session.ResetAnchor()
	if e.popup != nil {
		e.popup.HideMenu()
	}
	suppressed := e.session.Suppressed()
	if e.insertLeft != nil {
		close(e.insertLeft)
		e.insertLeft = nil
	}
	if suppressed {
		return
	}
	e.syncs.Call(docsync.Request{Kind: types.SyncFull, Force: true})
}

func (e *Engine) doCompleteDone(Event) {
	defer e.session.ClearCandidates()
	if e.host == nil {
		return
	}
	word, err := e.host.CompletedWord()
	if err != nil {
		logger.Warn("error reading completed item: %v", err)
		return
	}
	if word == "" {
		return
	}
	info := e.session.FileInfo()
	e.keywords.AddWord(info.ProjectRoot, info.FilePath, word)
	e.metrics.Record(metrics.EventCompletionAccepted, info.FilePath, e.session.Revision(), 1)
}

func (e *Engine) doPmenuSelect(event Event) {
	if e.popup == nil {
		return
	}
	index, ok := intArg(event.Data, 0)
	if !ok {
		logger.Warn("pmenu_select without index: %v", event.Data)
		return
	}
	e.popup.SelectMenu(index)
}

func (e *Engine) doPmenuHide(Event) {
	if e.popup != nil {
		e.popup.HideMenu()
	}
}

func (e *Engine) doAction(event Event) {
	name, ok := stringArg(event.Data, 0)
	if !ok {
		logger.Warn("action without name: %v", event.Data)
		return
	}
	run, ok := actions[name]
	if !ok {
		logger.Warn("unknown action %q", name)
		return
	}
	args := event.Data[1:]
	go func() {
		if err := run(e, e.mainCtx, args); err != nil {
			logger.Warn("action %s: %v", name, err)
		}
	}()
}

func intArg(args []any, i int) (int, bool) {
	if i >= len(args) {
		return 0, false
	}
	switch v := args[i].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	case int8:
		return int(v), true
	case uint8:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func stringArg(args []any, i int) (string, bool) {
	if i >= len(args) {
		return "", false
	}
	s, ok := args[i].(string)
	return s, ok
}

package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ThaneAcheron/veonim/logger"
)

type Event string

const (
	EventFullSync           Event = "sync_full"
	EventPartialSync        Event = "sync_partial"
	EventSyncFailed         Event = "sync_failed"
	EventSyncSkipped        Event = "sync_skipped"
	EventDiscarded          Event = "result_discarded"
	EventCompletionsShown   Event = "completions_shown"
	EventCompletionAccepted Event = "completion_accepted"
)

// EventRequest is the payload posted to the optional metrics endpoint.
type EventRequest struct {
	EventType string `json:"event_type"`
	EventID   string `json:"event_id"`
	SessionID string `json:"session_id"`
	DeviceID  string `json:"device_id"`
	FilePath  string `json:"file_path,omitempty"`
	Revision  int    `json:"revision"`
	Count     int    `json:"count,omitempty"`
	DebugInfo string `json:"debug_info"`
}

// Tracker counts pipeline events and forwards them to an HTTP sink when one
// is configured. A nil *Tracker is valid and records nothing.
type Tracker struct {
	url        string
	editorInfo string
	deviceID   string
	sessionID  string
	httpClient *http.Client

	mu      sync.Mutex
	counts  map[Event]int
	started time.Time
}

// NewTracker creates a tracker. An empty url keeps events in memory only.
func NewTracker(url, editorInfo, dataDir string) *Tracker {
	return &Tracker{
		url:        url,
		editorInfo: editorInfo,
		deviceID:   loadOrCreateDeviceID(dataDir),
		sessionID:  uuid.NewString(),
		httpClient: &http.Client{Timeout: 5 * time.Second},
		counts:     make(map[Event]int),
		started:    time.Now(),
	}
}

func (t *Tracker) SessionID() string {
	if t == nil {
		return ""
	}
	return t.sessionID
}

// Record counts one event for file at revision. count carries an event
// specific quantity such as the number of candidates shown.
func (t *Tracker) Record(ev Event, file string, revision, count int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.counts[ev]++
	t.mu.Unlock()

	if t.url == "" {
		return
	}
	t.sendRequest(&EventRequest{
		EventType: string(ev),
		EventID:   uuid.NewString(),
		SessionID: t.sessionID,
		DeviceID:  t.deviceID,
		FilePath:  file,
		Revision:  revision,
		Count:     count,
		DebugInfo: t.editorInfo,
	})
}

// Count returns how many times ev was recorded.
func (t *Tracker) Count(ev Event) int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[ev]
}

// Summary renders the counters on one line.
func (t *Tracker) Summary() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return fmt.Sprintf("session %s up %s: full=%d partial=%d failed=%d skipped=%d discarded=%d shown=%d accepted=%d",
		t.sessionID[:8],
		time.Since(t.started).Round(time.Second),
		t.counts[EventFullSync],
		t.counts[EventPartialSync],
		t.counts[EventSyncFailed],
		t.counts[EventSyncSkipped],
		t.counts[EventDiscarded],
		t.counts[EventCompletionsShown],
		t.counts[EventCompletionAccepted],
	)
}

func (t *Tracker) sendRequest(req *EventRequest) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		body, err := json.Marshal(req)
		if err != nil {
			logger.Debug("metrics: marshal error: %v", err)
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", t.url, bytes.NewReader(body))
		if err != nil {
			logger.Debug("metrics: create request error: %v", err)
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := t.httpClient.Do(httpReq)
		if err != nil {
			logger.Debug("metrics: send error: %v", err)
			return
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 400 {
			logger.Debug("metrics: server returned %d for %s", resp.StatusCode, req.EventType)
		} else {
			logger.Debug("metrics: sent %s (id=%s)", req.EventType, req.EventID)
		}
	}()
}

func loadOrCreateDeviceID(dataDir string) string {
	if dataDir == "" {
		return uuid.NewString()
	}

	idPath := filepath.Join(dataDir, "device_id")

	data, err := os.ReadFile(idPath)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if _, perr := uuid.Parse(id); perr == nil {
			return id
		}
	}

	id := uuid.NewString()
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		logger.Warn("metrics: could not create data dir %s: %v", dataDir, err)
		return id
	}
	if err := os.WriteFile(idPath, []byte(id), 0644); err != nil {
		logger.Warn("metrics: could not write device_id: %v", err)
	}
	return id
}

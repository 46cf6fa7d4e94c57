package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_CountsInMemory(t *testing.T) {
	tr := NewTracker("", "nvim test", "")
	tr.Record(EventFullSync, "a.go", 3, 0)
	tr.Record(EventFullSync, "a.go", 4, 0)
	tr.Record(EventPartialSync, "a.go", 5, 0)

	assert.Equal(t, 2, tr.Count(EventFullSync))
	assert.Equal(t, 1, tr.Count(EventPartialSync))
	assert.Equal(t, 0, tr.Count(EventSyncFailed))
	assert.Contains(t, tr.Summary(), "full=2 partial=1")
}

func TestTracker_NilIsNoop(t *testing.T) {
	var tr *Tracker
	tr.Record(EventDiscarded, "a.go", 1, 0)
	assert.Equal(t, 0, tr.Count(EventDiscarded))
	assert.Empty(t, tr.Summary())
	assert.Empty(t, tr.SessionID())
}

func TestTracker_PostsToSink(t *testing.T) {
	received := make(chan EventRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req EventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			received <- req
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tr := NewTracker(srv.URL, "nvim test", "")
	tr.Record(EventCompletionsShown, "b.ts", 9, 4)

	select {
	case req := <-received:
		assert.Equal(t, string(EventCompletionsShown), req.EventType)
		assert.Equal(t, tr.SessionID(), req.SessionID)
		assert.Equal(t, "b.ts", req.FilePath)
		assert.Equal(t, 9, req.Revision)
		assert.Equal(t, 4, req.Count)
		_, err := uuid.Parse(req.EventID)
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("metrics event was not posted")
	}
}

func TestDeviceID_Persisted(t *testing.T) {
	dir := t.TempDir()
	first := loadOrCreateDeviceID(dir)
	second := loadOrCreateDeviceID(dir)
	assert.Equal(t, first, second)

	data, err := os.ReadFile(filepath.Join(dir, "device_id"))
	require.NoError(t, err)
	assert.Equal(t, first, string(data))
}

func TestDeviceID_ReplacesGarbage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "device_id"), []byte("not-a-uuid"), 0644))
	id := loadOrCreateDeviceID(dir)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
}

package docsync

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThaneAcheron/veonim/backend"
	"github.com/ThaneAcheron/veonim/metrics"
	"github.com/ThaneAcheron/veonim/session"
	"github.com/ThaneAcheron/veonim/types"
)

type fakeUpdater struct {
	mu       sync.Mutex
	requests []*types.SyncRequest
	err      error
}

func (f *fakeUpdater) Update(_ context.Context, req *types.SyncRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.err
}

func (f *fakeUpdater) calls() []*types.SyncRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*types.SyncRequest(nil), f.requests...)
}

type fakeSource struct {
	info   types.FileInfo
	tick   int
	cursor types.Position
	lines  []string
	// onRead runs after the buffer is read, before the request is sent
	onRead func()
}

func (f *fakeSource) FileInfo() (types.FileInfo, error) { return f.info, nil }
func (f *fakeSource) ChangedTick() (int, error)         { return f.tick, nil }
func (f *fakeSource) Position() (types.Position, error) { return f.cursor, nil }

func (f *fakeSource) CurrentLine() (string, error) {
	if f.onRead != nil {
		f.onRead()
	}
	return f.lines[f.cursor.Line-1], nil
}

func (f *fakeSource) Lines() ([]string, error) {
	if f.onRead != nil {
		f.onRead()
	}
	return append([]string(nil), f.lines...), nil
}

func newPipeline(t *testing.T) (*Pipeline, *session.Session, *fakeUpdater, *fakeSource, *metrics.Tracker) {
	t.Helper()
	s := session.New()
	s.EnterFile("/proj", "src/main.ts", "typescript")
	up := &fakeUpdater{}
	src := &fakeSource{
		info:   types.FileInfo{ProjectRoot: "/proj", FilePath: "src/main.ts", LanguageKind: "typescript"},
		tick:   1,
		cursor: types.Position{Line: 2, Column: 5},
		lines:  []string{"const a = 1", "a.foo", ""},
	}
	m := metrics.NewTracker("", "test", "")
	return NewPipeline(s, NewClient(up), src, m), s, up, src, m
}

func TestClient_FullSyncBuildsRequest(t *testing.T) {
	up := &fakeUpdater{}
	c := NewClient(up)
	info := types.FileInfo{ProjectRoot: "/p", FilePath: "x.go", LanguageKind: "go", Revision: 3}

	require.NoError(t, c.FullSync(context.Background(), info, types.Position{Line: 1, Column: 1}, []string{"package x"}))

	reqs := up.calls()
	require.Len(t, reqs, 1)
	assert.Equal(t, types.SyncFull, reqs[0].Kind)
	assert.Equal(t, info, reqs[0].FileInfo)
	assert.Equal(t, []string{"package x"}, reqs[0].Lines)
}

func TestClient_PartialSyncSendsCursorLine(t *testing.T) {
	up := &fakeUpdater{}
	c := NewClient(up)

	require.NoError(t, c.PartialSync(context.Background(), types.FileInfo{FilePath: "x.go"}, types.Position{Line: 7, Column: 3}, "fmt.Pr"))

	reqs := up.calls()
	require.Len(t, reqs, 1)
	assert.Equal(t, types.SyncPartial, reqs[0].Kind)
	assert.Equal(t, 6, reqs[0].LineIndex)
	assert.Equal(t, []string{"fmt.Pr"}, reqs[0].Lines)
}

func TestClient_ErrorIsSyncError(t *testing.T) {
	up := &fakeUpdater{err: backend.ErrUnavailable}
	c := NewClient(up)

	err := c.FullSync(context.Background(), types.FileInfo{FilePath: "x.go", Revision: 4}, types.Position{}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSync))
	assert.True(t, errors.Is(err, backend.ErrUnavailable))

	var se *SyncError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 4, se.Revision)
	assert.Equal(t, types.SyncFull, se.Kind)
}

func TestPipeline_FirstFullSyncRuns(t *testing.T) {
	p, s, up, _, m := newPipeline(t)

	require.NoError(t, p.Attempt(context.Background(), Request{Kind: types.SyncFull}))

	reqs := up.calls()
	require.Len(t, reqs, 1)
	assert.Equal(t, 1, reqs[0].Revision)
	assert.Equal(t, "src/main.ts", reqs[0].FilePath)
	assert.Len(t, reqs[0].Lines, 3)
	assert.Equal(t, 1, s.Revision())
	assert.Equal(t, 1, m.Count(metrics.EventFullSync))
}

func TestPipeline_SameRevisionSyncsOnce(t *testing.T) {
	p, _, up, _, m := newPipeline(t)
	ctx := context.Background()

	require.NoError(t, p.Attempt(ctx, Request{Kind: types.SyncPartial}))
	require.NoError(t, p.Attempt(ctx, Request{Kind: types.SyncPartial}))

	assert.Len(t, up.calls(), 1)
	assert.Equal(t, 1, m.Count(metrics.EventSyncSkipped))
}

func TestPipeline_ForceIgnoresRevisionGate(t *testing.T) {
	p, _, up, _, _ := newPipeline(t)
	ctx := context.Background()

	require.NoError(t, p.Attempt(ctx, Request{Kind: types.SyncFull}))
	require.NoError(t, p.Attempt(ctx, Request{Kind: types.SyncFull, Force: true}))

	assert.Len(t, up.calls(), 2)
}

func TestPipeline_PartialSendsOneLine(t *testing.T) {
	p, _, up, src, _ := newPipeline(t)
	src.tick = 9

	require.NoError(t, p.Attempt(context.Background(), Request{Kind: types.SyncPartial}))

	reqs := up.calls()
	require.Len(t, reqs, 1)
	assert.Equal(t, types.SyncPartial, reqs[0].Kind)
	assert.Equal(t, []string{"a.foo"}, reqs[0].Lines)
	assert.Equal(t, 1, reqs[0].LineIndex)
	assert.Equal(t, 9, reqs[0].Revision)
}

func TestPipeline_FailureStillRecordsRevision(t *testing.T) {
	p, s, up, _, m := newPipeline(t)
	up.err = backend.ErrUnavailable
	ctx := context.Background()

	err := p.Attempt(ctx, Request{Kind: types.SyncFull})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSync))
	assert.Equal(t, 1, s.Revision())
	assert.Equal(t, 1, m.Count(metrics.EventSyncFailed))

	up.err = nil
	require.NoError(t, p.Attempt(ctx, Request{Kind: types.SyncFull}))
	assert.Len(t, up.calls(), 1, "failed revision is not retried")
}

func TestPipeline_SuppressedIsNoop(t *testing.T) {
	p, s, up, _, _ := newPipeline(t)
	resume := s.Suppress()

	require.NoError(t, p.Attempt(context.Background(), Request{Kind: types.SyncFull, Force: true}))
	assert.Empty(t, up.calls())
	assert.Equal(t, session.Uninitialized, s.Revision())

	resume()
	require.NoError(t, p.Attempt(context.Background(), Request{Kind: types.SyncFull}))
	assert.Len(t, up.calls(), 1)
}

func TestPipeline_FileSwitchDuringReadDiscards(t *testing.T) {
	p, s, up, src, m := newPipeline(t)
	src.onRead = func() { s.EnterFile("/proj", "other.ts", "typescript") }

	require.NoError(t, p.Attempt(context.Background(), Request{Kind: types.SyncFull}))

	assert.Empty(t, up.calls())
	assert.Equal(t, 1, m.Count(metrics.EventDiscarded))
	assert.Equal(t, session.Uninitialized, s.Revision())
}

func TestPipeline_OtherBufferCurrentDiscards(t *testing.T) {
	p, s, up, src, m := newPipeline(t)
	src.info.FilePath = "src/other.ts"
	src.tick = 50

	require.NoError(t, p.Attempt(context.Background(), Request{Kind: types.SyncFull, Force: true}))

	assert.Empty(t, up.calls())
	assert.Equal(t, 1, m.Count(metrics.EventDiscarded))
	assert.Equal(t, session.Uninitialized, s.Revision(), "other buffer's tick is not recorded")
}

func TestPipeline_BufferSwitchDuringReadDiscards(t *testing.T) {
	p, s, up, src, _ := newPipeline(t)
	var got []string
	p.OnFullSync = func(_ types.FileInfo, lines []string) { got = lines }
	src.onRead = func() { src.info.FilePath = "src/other.ts" }

	require.NoError(t, p.Attempt(context.Background(), Request{Kind: types.SyncFull}))

	assert.Empty(t, up.calls())
	assert.Nil(t, got, "keyword index is not fed another buffer's lines")
	assert.Equal(t, "src/main.ts", s.FileInfo().FilePath)
}

func TestPipeline_OnFullSyncHook(t *testing.T) {
	p, _, _, _, _ := newPipeline(t)
	var got []string
	p.OnFullSync = func(_ types.FileInfo, lines []string) { got = lines }

	require.NoError(t, p.Attempt(context.Background(), Request{Kind: types.SyncFull}))
	assert.Equal(t, []string{"const a = 1", "a.foo", ""}, got)
}

func TestCombine(t *testing.T) {
	full := Request{Kind: types.SyncFull}
	partial := Request{Kind: types.SyncPartial}

	assert.Equal(t, types.SyncFull, Combine(full, partial).Kind)
	assert.Equal(t, types.SyncFull, Combine(partial, full).Kind)
	assert.Equal(t, types.SyncPartial, Combine(partial, partial).Kind)
	assert.True(t, Combine(Request{Kind: types.SyncFull, Force: true}, partial).Force)
}

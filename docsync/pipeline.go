package docsync

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/ThaneAcheron/veonim/logger"
	"github.com/ThaneAcheron/veonim/metrics"
	"github.com/ThaneAcheron/veonim/revision"
	"github.com/ThaneAcheron/veonim/session"
	"github.com/ThaneAcheron/veonim/types"
)

// Source reads buffer state from the editor's current buffer.
type Source interface {
	FileInfo() (types.FileInfo, error)
	ChangedTick() (int, error)
	Position() (types.Position, error)
	CurrentLine() (string, error)
	Lines() ([]string, error)
}

// Request is the argument of one sync attempt.
type Request struct {
	Kind types.SyncKind
	// Force skips the revision gate. The observed revision is still recorded.
	Force bool
}

// Combine folds two pending requests so that a full sync is never lost to a
// later partial one.
func Combine(pending, next Request) Request {
	kind := next.Kind
	if pending.Kind == types.SyncFull {
		kind = types.SyncFull
	}
	return Request{Kind: kind, Force: pending.Force || next.Force}
}

// Pipeline runs revision-gated sync attempts against the session.
type Pipeline struct {
	session *session.Session
	tracker *revision.Tracker
	client  *Client
	source  Source
	metrics *metrics.Tracker

	// OnFullSync receives the document sent by every successful full sync.
	OnFullSync func(info types.FileInfo, lines []string)
}

func NewPipeline(s *session.Session, client *Client, source Source, m *metrics.Tracker) *Pipeline {
	return &Pipeline{
		session: s,
		tracker: revision.NewTracker(s),
		client:  client,
		source:  source,
		metrics: m,
	}
}

// Attempt performs one sync. It returns nil when nothing needed to be sent
// or when the session moved on while editor state was being read.
func (p *Pipeline) Attempt(ctx context.Context, req Request) error {
	if p.session.Suppressed() {
		logger.Debug("docsync: suppressed, skipping %s sync", req.Kind)
		return nil
	}
	tok := p.session.Token()

	// the current buffer may already be another file while its file-entered
	// debounce is pending
	if left, err := p.leftSessionFile(); left || err != nil {
		return err
	}

	rev, err := p.source.ChangedTick()
	if err != nil {
		return errors.Wrap(err, "read changedtick")
	}

	due, ok := p.tracker.Observe(tok, rev)
	if !ok {
		p.discard()
		return nil
	}
	if !due && !req.Force {
		p.metrics.Record(metrics.EventSyncSkipped, p.session.FileInfo().FilePath, rev, 0)
		return nil
	}

	cursor, err := p.source.Position()
	if err != nil {
		return errors.Wrap(err, "read cursor")
	}

	var lines []string
	var line string
	if req.Kind == types.SyncPartial {
		line, err = p.source.CurrentLine()
	} else {
		lines, err = p.source.Lines()
	}
	if err != nil {
		return errors.Wrap(err, "read buffer")
	}

	if !p.session.Valid(tok) {
		p.discard()
		return nil
	}
	if left, err := p.leftSessionFile(); left || err != nil {
		return err
	}

	info := p.session.FileInfo()
	info.Revision = rev

	if req.Kind == types.SyncPartial {
		err = p.client.PartialSync(ctx, info, cursor, line)
	} else {
		err = p.client.FullSync(ctx, info, cursor, lines)
	}
	if err != nil {
		p.metrics.Record(metrics.EventSyncFailed, info.FilePath, rev, 0)
		return err
	}

	if req.Kind == types.SyncPartial {
		p.metrics.Record(metrics.EventPartialSync, info.FilePath, rev, 1)
	} else {
		p.metrics.Record(metrics.EventFullSync, info.FilePath, rev, len(lines))
		if p.OnFullSync != nil {
			p.OnFullSync(info, lines)
		}
	}
	return nil
}

// leftSessionFile reports, and records as discarded, an editor whose current
// buffer is no longer the session's file.
func (p *Pipeline) leftSessionFile() (bool, error) {
	current, err := p.source.FileInfo()
	if err != nil {
		return false, errors.Wrap(err, "read current file")
	}
	want := p.session.FileInfo()
	if current.ProjectRoot == want.ProjectRoot && current.FilePath == want.FilePath {
		return false, nil
	}
	logger.Debug("docsync: editor is on %s, session on %s", current.FilePath, want.FilePath)
	p.discard()
	return true, nil
}

func (p *Pipeline) discard() {
	logger.Debug("docsync: session changed while reading buffer, dropping attempt")
	p.metrics.Record(metrics.EventDiscarded, p.session.FileInfo().FilePath, p.session.Revision(), 0)
}

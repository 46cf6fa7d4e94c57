// Package docsync keeps the backend's view of the active document in step
// with the editor buffer.
package docsync

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/ThaneAcheron/veonim/backend"
	"github.com/ThaneAcheron/veonim/logger"
	"github.com/ThaneAcheron/veonim/types"
)

// ErrSync marks every error returned by FullSync and PartialSync.
var ErrSync = errors.New("document sync failed")

// SyncError describes a failed update. It matches ErrSync under errors.Is.
type SyncError struct {
	Kind     types.SyncKind
	File     string
	Revision int
	Err      error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s sync of %s at revision %d: %v", e.Kind, e.File, e.Revision, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

func (e *SyncError) Is(target error) bool { return target == ErrSync }

// Client builds sync requests and sends them to the backend.
type Client struct {
	backend backend.Updater
}

func NewClient(b backend.Updater) *Client {
	return &Client{backend: b}
}

// FullSync sends the whole document.
func (c *Client) FullSync(ctx context.Context, info types.FileInfo, cursor types.Position, lines []string) error {
	defer logger.Trace("docsync.FullSync")()

	req := &types.SyncRequest{
		FileInfo: info,
		Cursor:   cursor,
		Kind:     types.SyncFull,
		Lines:    lines,
	}
	return c.send(ctx, req)
}

// PartialSync sends only the line under the cursor.
func (c *Client) PartialSync(ctx context.Context, info types.FileInfo, cursor types.Position, line string) error {
	defer logger.Trace("docsync.PartialSync")()

	req := &types.SyncRequest{
		FileInfo:  info,
		Cursor:    cursor,
		Kind:      types.SyncPartial,
		Lines:     []string{line},
		LineIndex: max(0, cursor.Line-1),
	}
	return c.send(ctx, req)
}

func (c *Client) send(ctx context.Context, req *types.SyncRequest) error {
	if err := c.backend.Update(ctx, req); err != nil {
		return &SyncError{
			Kind:     req.Kind,
			File:     req.FilePath,
			Revision: req.Revision,
			Err:      errors.Wrap(err, "update"),
		}
	}
	logger.Debug("docsync: %s sync of %s at revision %d", req.Kind, req.FilePath, req.Revision)
	return nil
}

package imapsync

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// ErrNotConnected is returned when an operation is attempted on a closed
// or unauthenticated connection.
var ErrNotConnected = errors.New("imapsync: not connected")

// MalformedResponseError reports a violation of the response grammar. The
// stream position is no longer trustworthy after one of these, so callers
// must treat it as a connection-level failure.
type MalformedResponseError struct {
	Pos  int
	Line string
	Msg  string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response at %d: %s in %q", e.Pos, e.Msg, e.Line)
}

// CommandRejectedError reports a tagged NO or BAD status from the server
// for a specific command. It is recoverable at the call site.
type CommandRejectedError struct {
	Command string
	Status  string // "NO" or "BAD"
	Resp    *ResponseText
}

func (e *CommandRejectedError) Error() string {
	text := ""
	if e.Resp != nil {
		text = e.Resp.Text
	}
	return fmt.Sprintf("imap command %q rejected (%s): %s", e.Command, e.Status, text)
}

// FolderSyncError reports a failure while reconciling one folder. The
// orchestrator converts these into an abort or a skip depending on the
// account's failure policy.
type FolderSyncError struct {
	Folder string
	Op     string
	Err    error
}

func (e *FolderSyncError) Error() string {
	return fmt.Sprintf("sync of folder %q failed during %s: %s", e.Folder, e.Op, e.Err)
}

func (e *FolderSyncError) Unwrap() error { return e.Err }

// ConfigError reports an invalid account configuration, detected before
// any network activity.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Msg)
}

// Innermost walks a chain of wrapped errors and returns the original
// fault, for user-visible diagnostics.
func Innermost(err error) error {
	if err == nil {
		return nil
	}
	for {
		// pkg/errors causes first, then stdlib wrapping.
		if cause := pkgerrors.Cause(err); cause != err {
			err = cause
			continue
		}
		if next := errors.Unwrap(err); next != nil {
			err = next
			continue
		}
		return err
	}
}

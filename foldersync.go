package imapsync

import (
	"fmt"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// syncState tracks how far one folder got within a run. A folder only
// reaches stateCommitted after its tracker was persisted; a failure at
// any earlier point leaves the previous committed state untouched.
type syncState int

const (
	stateUnsynced syncState = iota
	stateBaseline
	stateReconciled
	stateCommitted
	stateFailed
)

// folderSync reconciles one folder pair within a run.
type folderSync struct {
	run     *syncRun
	tracker *FolderTracker
	state   syncState

	entry      ListEntry
	remotePath string
	folder     LocalFolder

	// pending holds local messages the server doesn't know yet; they are
	// uploaded after every folder finished reconciling.
	pending []LocalMessage
}

func (fs *folderSync) name() string {
	if fs.remotePath != "" {
		return fs.remotePath
	}
	return fs.folder.Path
}

// syncRemote reconciles a folder discovered on the server: it finds or
// creates the local counterpart, pairs it with a tracker, and runs the
// message reconciliation.
func (fs *folderSync) syncRemote() error {
	localPath, ok := fs.run.s.localPathFor(fs.entry.Path)
	if !ok {
		fs.run.log.Debug("skipping excluded mailbox", "mailbox", fs.entry.Path)
		return nil
	}

	folder, found, err := fs.run.s.local.FolderByPath(localPath)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to look up local folder %q", localPath)
	}
	if fs.tracker != nil && found && folder.ID != fs.tracker.FolderID {
		// The local folder was re-created since the tracker was written;
		// forget the old pairing and re-baseline.
		if err := fs.run.s.trackers.Remove(fs.tracker); err != nil {
			return err
		}
		fs.tracker = nil
	}
	if fs.tracker != nil && !found {
		fs.run.log.Warn("local folder is gone, dropping tracker", "mailbox", fs.entry.Path)
		if err := fs.run.s.trackers.Remove(fs.tracker); err != nil {
			return err
		}
		fs.tracker = nil
		return nil
	}
	if !found {
		if folder, err = fs.run.s.local.CreateFolder(localPath); err != nil {
			return pkgerrors.Wrapf(err, "failed to create local folder %q", localPath)
		}
		fs.run.log.Info("created local folder", "path", localPath, "mailbox", fs.entry.Path)
	}
	fs.folder = folder

	if fs.tracker == nil {
		fs.tracker = &FolderTracker{
			FolderID:   folder.ID,
			RemotePath: fs.entry.Path,
			Delimiter:  fs.entry.Delimiter,
		}
	}
	return fs.reconcile()
}

// syncLocal handles a local folder the remote pass did not match. A
// tracked folder missing remotely was deleted on the server, so the
// local copy goes too; an untracked one is new and is pushed.
func (fs *folderSync) syncLocal() error {
	if fs.tracker != nil {
		fs.run.log.Info("mailbox deleted on server, removing local folder", "path", fs.folder.Path)
		msgs, err := fs.run.s.local.Messages(fs.folder.ID)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			if err := fs.run.s.local.DeleteMessage(fs.folder.ID, m.ID); err != nil {
				return err
			}
		}
		if err := fs.run.s.local.DeleteFolder(fs.folder.ID); err != nil {
			return pkgerrors.Wrapf(err, "failed to delete local folder %q", fs.folder.Path)
		}
		if err := fs.run.s.trackers.Remove(fs.tracker); err != nil {
			return err
		}
		fs.tracker = nil
		fs.state = stateCommitted
		return nil
	}

	remotePath, ok := fs.run.s.remotePathFor(fs.folder.Path)
	if !ok {
		fs.run.log.Debug("skipping excluded local folder", "path", fs.folder.Path)
		return nil
	}
	fs.remotePath = remotePath

	if err := fs.run.remote.CreateFolder(remotePath); err != nil {
		// The mailbox may already exist server-side without having been
		// listed as selectable; a rejection here is not fatal.
		var rejected *CommandRejectedError
		if !pkgerrors.As(err, &rejected) {
			return pkgerrors.Wrapf(err, "failed to create mailbox %q", remotePath)
		}
		fs.run.log.Debug("mailbox already exists", "mailbox", remotePath, "response", rejected.Error())
	} else {
		fs.run.log.Info("created mailbox", "mailbox", remotePath, "path", fs.folder.Path)
	}

	fs.tracker = &FolderTracker{
		FolderID:   fs.folder.ID,
		RemotePath: remotePath,
		Delimiter:  fs.run.s.delimiter,
	}
	return fs.reconcile()
}

// reconcile selects the remote folder and brings both sides' messages in
// line. The tracker is written only after every change succeeded, so a
// failed folder is retried from its previous state on the next run.
func (fs *folderSync) reconcile() error {
	fs.state = stateBaseline
	sel, err := fs.run.remote.SelectFolder(fs.remotePath)
	if err != nil {
		return err
	}

	if fs.tracker.UIDValidity != 0 && sel.UIDValidity != fs.tracker.UIDValidity {
		fs.run.log.Warn("uid validity changed, re-baselining",
			"mailbox", fs.name(), "old", fs.tracker.UIDValidity, "new", sel.UIDValidity)
		if err := fs.dropSyncedLocal(); err != nil {
			return err
		}
		fs.tracker.LastUID = 0
		fs.tracker.LastItemID = 0
	}
	lastUID := fs.tracker.LastUID
	baseline := lastUID == 0 || fs.run.full

	msgs, err := fs.run.s.local.Messages(fs.folder.ID)
	if err != nil {
		return err
	}
	byUID := make(map[uint64]LocalMessage, len(msgs))
	byMessageID := make(map[string]LocalMessage)
	for _, m := range msgs {
		if m.RemoteUID != 0 {
			byUID[m.RemoteUID] = m
		} else if m.MessageID != "" {
			byMessageID[m.MessageID] = m
		}
	}

	summaries, fetched, err := fs.fetchRange(sel, lastUID, baseline)
	if err != nil {
		return err
	}

	maxSeen := lastUID
	seen := make(map[uint64]bool, len(summaries))
	adopted := make(map[int]bool)
	for _, sum := range summaries {
		if !baseline && sum.UID <= lastUID {
			// A UID range of the form n:* echoes the last message even
			// when nothing is newer than n.
			continue
		}
		seen[sum.UID] = true
		if sum.UID > maxSeen {
			maxSeen = sum.UID
		}
		local, known := byUID[sum.UID]
		if known {
			if err := fs.reconcileFlags(sum, local); err != nil {
				return err
			}
			continue
		}
		if err := fs.importMessage(sum, byMessageID, adopted); err != nil {
			return err
		}
	}

	if err := fs.reconcileDeletions(msgs, seen, lastUID, baseline); err != nil {
		return err
	}

	for _, m := range msgs {
		if m.RemoteUID == 0 && !adopted[m.ID] {
			fs.pending = append(fs.pending, m)
		}
	}
	fs.state = stateReconciled

	if fetched || sel.UIDValidity != fs.tracker.UIDValidity || maxSeen != fs.tracker.LastUID || fs.tracker.Delimiter != fs.run.s.delimiter {
		fs.tracker.UIDValidity = sel.UIDValidity
		fs.tracker.LastUID = maxSeen
		if fs.run.s.delimiter != "" {
			fs.tracker.Delimiter = fs.run.s.delimiter
		}
		if err := fs.run.s.trackers.Put(fs.tracker); err != nil {
			return pkgerrors.Wrapf(err, "failed to save tracker for %q", fs.name())
		}
	}
	fs.state = stateCommitted
	return nil
}

// fetchRange fetches the summaries the run needs: everything on a
// baseline or full run, only the tail beyond the last synchronized UID
// otherwise. When the tracker already matches the server's predicted
// next UID, no fetch is issued at all.
func (fs *folderSync) fetchRange(sel *SelectResult, lastUID uint64, baseline bool) (summaries []MessageSummary, fetched bool, err error) {
	if !baseline {
		if sel.Exists == 0 {
			return nil, false, nil
		}
		if sel.UIDNext != 0 && sel.UIDNext == lastUID+1 {
			return nil, false, nil
		}
	}
	if sel.Exists == 0 {
		// An empty mailbox on a baseline run still commits its validity.
		return nil, true, nil
	}
	set := "1:*"
	if !baseline {
		set = fmt.Sprintf("%d:*", lastUID+1)
	}
	summaries, err = fs.run.remote.FetchSummaries(set)
	if err != nil {
		return nil, false, err
	}
	return summaries, true, nil
}

// reconcileFlags settles a message both sides know about.
func (fs *folderSync) reconcileFlags(sum MessageSummary, local LocalMessage) error {
	if local.MessageID != "" {
		fs.run.remoteSeen[local.MessageID] = remoteRef{path: fs.remotePath, uid: sum.UID}
	}
	if hasFlag(sum.Flags, `\Deleted`) && !fs.run.s.account.pushDeletes() {
		fs.run.log.Debug("message deleted on server", "mailbox", fs.name(), "uid", sum.UID)
		return fs.run.s.local.DeleteMessage(fs.folder.ID, local.ID)
	}
	switch fs.run.s.account.flagPolicy() {
	case LocalWins:
		delta := storeDelta(local.Flags, sum.Flags)
		if delta.empty() {
			return nil
		}
		return fs.run.remote.SetFlagsUIDs(FormatUIDSet([]uint64{sum.UID}), delta)
	default:
		merged := mergeFlags(sum.Flags, local.Flags)
		if flagsEqual(merged, local.Flags) {
			return nil
		}
		local.Flags = merged
		return fs.run.s.local.UpdateMessage(fs.folder.ID, local)
	}
}

// importMessage copies a remote message into the local store, or adopts
// a matching locally created copy instead of importing a duplicate.
func (fs *folderSync) importMessage(sum MessageSummary, byMessageID map[string]LocalMessage, adopted map[int]bool) error {
	if hasFlag(sum.Flags, `\Deleted`) {
		return nil
	}
	body, err := fs.run.remote.FetchMessage(sum.UID)
	if err != nil {
		return err
	}
	messageID, subject := messageEnvelope(body)
	flags := withoutRecent(sum.Flags)

	if messageID != "" {
		if local, ok := byMessageID[messageID]; ok {
			local.RemoteUID = sum.UID
			local.Flags = mergeFlags(flags, local.Flags)
			if err := fs.run.s.local.UpdateMessage(fs.folder.ID, local); err != nil {
				return err
			}
			adopted[local.ID] = true
			delete(byMessageID, messageID)
			fs.run.remoteSeen[messageID] = remoteRef{path: fs.remotePath, uid: sum.UID}
			fs.run.log.Debug("matched local copy by message id", "mailbox", fs.name(), "uid", sum.UID)
			return nil
		}
		fs.run.remoteSeen[messageID] = remoteRef{path: fs.remotePath, uid: sum.UID}
	}

	if _, err := fs.run.s.local.AddMessage(fs.folder.ID, LocalMessage{
		RemoteUID: sum.UID,
		MessageID: messageID,
		Flags:     flags,
		Body:      body,
	}); err != nil {
		return err
	}
	fs.run.log.Debug("imported message",
		"mailbox", fs.name(), "uid", sum.UID, "subject", subject, "size", humanBytes(len(body)))
	return nil
}

// reconcileDeletions propagates deletions in the account's configured
// direction. Pulling removes local copies whose server message vanished;
// pushing flags locally deleted messages on the server and expunges.
func (fs *folderSync) reconcileDeletions(msgs []LocalMessage, seen map[uint64]bool, lastUID uint64, baseline bool) error {
	if fs.run.s.account.pushDeletes() {
		var uids []uint64
		for _, m := range msgs {
			if m.RemoteUID != 0 && hasFlag(m.Flags, `\Deleted`) {
				uids = append(uids, m.RemoteUID)
			}
		}
		if len(uids) == 0 {
			return nil
		}
		if err := fs.run.remote.SetFlagsUIDs(FormatUIDSet(uids), Flags{Deleted: FlagAdd}); err != nil {
			return err
		}
		if err := fs.run.remote.Expunge(); err != nil {
			return err
		}
		for _, m := range msgs {
			if m.RemoteUID != 0 && hasFlag(m.Flags, `\Deleted`) {
				if err := fs.run.s.local.DeleteMessage(fs.folder.ID, m.ID); err != nil {
					return err
				}
			}
		}
		fs.run.log.Debug("pushed deletions", "mailbox", fs.name(), "count", len(uids))
		return nil
	}

	for _, m := range msgs {
		if m.RemoteUID == 0 || seen[m.RemoteUID] {
			continue
		}
		if !baseline && m.RemoteUID <= lastUID {
			// An incremental run only fetched the tail; older messages
			// were simply not in the range.
			continue
		}
		fs.run.log.Debug("message gone from server", "mailbox", fs.name(), "uid", m.RemoteUID)
		if err := fs.run.s.local.DeleteMessage(fs.folder.ID, m.ID); err != nil {
			return err
		}
	}
	return nil
}

// dropSyncedLocal removes every local message that came from the server.
// After a UID validity change those UIDs mean nothing; the re-baseline
// re-imports the survivors and message id matching absorbs duplicates.
func (fs *folderSync) dropSyncedLocal() error {
	msgs, err := fs.run.s.local.Messages(fs.folder.ID)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if m.RemoteUID == 0 {
			continue
		}
		if err := fs.run.s.local.DeleteMessage(fs.folder.ID, m.ID); err != nil {
			return err
		}
	}
	return nil
}

// appendNewMessages uploads the folder's locally created messages. A
// message whose id was seen in another mailbox this run is copied
// server-side instead of re-uploaded. Messages whose assigned UID the
// server didn't report stay pending and are matched by message id on the
// next run.
func (fs *folderSync) appendNewMessages() error {
	if len(fs.pending) == 0 {
		return nil
	}
	advanced := false
	for _, msg := range fs.pending {
		uid, err := fs.uploadMessage(msg)
		if err != nil {
			return err
		}
		if uid == 0 {
			continue
		}
		msg.RemoteUID = uid
		if err := fs.run.s.local.UpdateMessage(fs.folder.ID, msg); err != nil {
			return err
		}
		if uid > fs.tracker.LastUID {
			fs.tracker.LastUID = uid
			advanced = true
		}
	}
	if advanced {
		if err := fs.run.s.trackers.Put(fs.tracker); err != nil {
			return pkgerrors.Wrapf(err, "failed to save tracker for %q", fs.name())
		}
	}
	return nil
}

// uploadMessage pushes one message and returns its new UID, or 0 when
// the server didn't report one.
func (fs *folderSync) uploadMessage(msg LocalMessage) (uint64, error) {
	if msg.MessageID != "" {
		if ref, ok := fs.run.remoteSeen[msg.MessageID]; ok && ref.path != fs.remotePath {
			uid, err := fs.copyFrom(ref)
			if err == nil && uid != 0 {
				return uid, nil
			}
			if err != nil {
				fs.run.log.Warn("server-side copy failed, uploading instead",
					"mailbox", fs.name(), "from", ref.path, "error", err)
			}
		}
	}
	result, err := fs.run.remote.Append(fs.remotePath, msg.Body, withoutRecent(msg.Flags), msg.Received)
	if err != nil {
		return 0, err
	}
	if result == nil || result.UIDValidity != fs.tracker.UIDValidity {
		return 0, nil
	}
	return result.UID, nil
}

// copyFrom copies one message from another mailbox into this one using
// UID COPY, returning the destination UID when the server reported it.
func (fs *folderSync) copyFrom(ref remoteRef) (uint64, error) {
	if _, err := fs.run.remote.SelectFolder(ref.path); err != nil {
		return 0, err
	}
	result, err := fs.run.remote.CopyUIDs(FormatUIDSet([]uint64{ref.uid}), fs.remotePath)
	if err != nil {
		return 0, err
	}
	if result == nil || result.UIDValidity != fs.tracker.UIDValidity {
		return 0, nil
	}
	fs.run.log.Debug("copied message server-side",
		"mailbox", fs.name(), "from", ref.path, "uid", ref.uid)
	return firstUID(result.ToUIDs), nil
}

// withoutRecent strips the session-only \Recent flag.
func withoutRecent(flags []string) []string {
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		if !strings.EqualFold(f, `\Recent`) {
			out = append(out, f)
		}
	}
	return out
}

// firstUID returns the first UID of a set like "7", "7:9", or "1,3".
func firstUID(set string) uint64 {
	if i := strings.IndexAny(set, ":,"); i != -1 {
		set = set[:i]
	}
	n, err := strconv.ParseUint(strings.TrimSpace(set), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

package imapsync

import (
	"errors"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/xid"
)

// Remote is the connection surface the sync engine drives. *Dialer
// implements it; tests substitute their own servers.
type Remote interface {
	ListFolders() ([]ListEntry, error)
	SelectFolder(folder string) (*SelectResult, error)
	CreateFolder(folder string) error
	FetchSummaries(uidSet string) ([]MessageSummary, error)
	FetchMessage(uid uint64) ([]byte, error)
	SetFlagsUIDs(uidSet string, flags Flags) error
	Append(folder string, body []byte, flags []string, date time.Time) (*AppendResult, error)
	CopyUIDs(uidSet string, folder string) (*CopyResult, error)
	Expunge() error
	Logout() error
	Close() error
	IsClosed() bool
}

// Syncer synchronizes one account's remote mailbox with a local store.
// Runs on the same Syncer never overlap; concurrent Sync calls queue.
type Syncer struct {
	account  Account
	local    LocalMailbox
	trackers TrackerStore
	dial     func(a Account) (Remote, error)

	mu            sync.Mutex
	delimiter     string
	localOverride map[string]string
}

// NewSyncer validates the account and returns a Syncer over the given
// local store and tracker store.
func NewSyncer(account Account, local LocalMailbox, trackers TrackerStore) (*Syncer, error) {
	if err := account.validate(); err != nil {
		return nil, err
	}
	s := &Syncer{
		account:       account,
		local:         local,
		trackers:      trackers,
		dial:          dialAccount,
		localOverride: make(map[string]string, len(account.FolderMap)),
	}
	for remote, local := range account.FolderMap {
		if local != "" {
			s.localOverride[local] = remote
		}
	}
	return s, nil
}

func dialAccount(a Account) (Remote, error) {
	if a.UseOAuth2 {
		return NewWithOAuth2(a.Username, a.Password, a.Host, a.Port)
	}
	return New(a.Username, a.Password, a.Host, a.Port)
}

// Test checks the account configuration and connectivity without
// synchronizing anything. It returns "" on success, or the innermost
// failure in a form suitable for showing to the account's owner.
func (s *Syncer) Test() string {
	if err := s.account.validate(); err != nil {
		return err.Error()
	}
	remote, err := s.dial(s.account)
	if err != nil {
		return Innermost(err).Error()
	}
	_ = remote.Logout()
	return ""
}

// Sync performs one synchronization run. A full run reconciles flags and
// deletions across every known message; an incremental run only looks at
// messages beyond each folder's last synchronized UID.
func (s *Syncer) Sync(full bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := accountLogger(s.account.label(), xid.New().String())
	log.Info("starting sync", "full", full)
	started := time.Now()

	remote, err := s.dial(s.account)
	if err != nil {
		return pkgerrors.Wrapf(err, "unable to connect to %s", s.account.Host)
	}
	defer func() { _ = remote.Logout() }()

	run := &syncRun{
		s:          s,
		remote:     remote,
		full:       full,
		log:        log,
		synced:     make(map[int]*folderSync),
		remoteSeen: make(map[string]remoteRef),
	}
	err = run.syncFolders()
	if err != nil {
		log.Error("sync failed", "error", err, "took", time.Since(started))
		return err
	}
	log.Info("sync finished", "took", time.Since(started))
	return nil
}

// remoteRef locates one message on the server, for move detection.
type remoteRef struct {
	path string
	uid  uint64
}

type syncRun struct {
	s      *Syncer
	remote Remote
	full   bool
	log    Logger

	synced     map[int]*folderSync
	remoteSeen map[string]remoteRef
	failures   []error
}

// syncFolders drives one run: the remote folder pass, the local folder
// pass in reverse order, deferred uploads, and finally the purge of
// trackers no longer matching a folder on either side.
func (r *syncRun) syncFolders() error {
	trackers, err := r.s.trackers.All()
	if err != nil {
		return pkgerrors.Wrap(err, "failed to load folder trackers")
	}
	untouched := make(map[int]*FolderTracker, len(trackers))
	for _, t := range trackers {
		untouched[t.FolderID] = t
	}

	if err := r.syncRemoteFolders(untouched); err != nil {
		return err
	}
	if err := r.syncLocalFolders(untouched); err != nil {
		return err
	}

	// Uploads are deferred until every folder finished reconciling, so a
	// message moved between folders is seen in its source folder first.
	for _, fs := range r.synced {
		if err := r.folderStep(fs, "upload", fs.appendNewMessages); err != nil {
			return err
		}
	}

	for _, t := range untouched {
		r.log.Debug("purging stale tracker", "mailbox", t.RemotePath)
		if err := r.s.trackers.Remove(t); err != nil {
			return pkgerrors.Wrapf(err, "failed to purge tracker for %q", t.RemotePath)
		}
	}

	if len(r.failures) > 0 {
		r.log.Warn("sync finished with failures", "failed", len(r.failures))
		return r.failures[0]
	}
	return nil
}

// syncRemoteFolders walks every selectable remote folder, pairing each
// with its tracker (or creating one) and reconciling its messages.
func (r *syncRun) syncRemoteFolders(untouched map[int]*FolderTracker) error {
	entries, err := r.remote.ListFolders()
	if err != nil {
		return pkgerrors.Wrap(err, "failed to list remote folders")
	}
	for _, e := range entries {
		if e.Delimiter != "" {
			r.s.delimiter = e.Delimiter
			break
		}
	}

	for _, entry := range entries {
		if entry.HasAttr(`\Noselect`) {
			continue
		}
		tracker, err := r.s.trackers.ByRemotePath(entry.Path)
		if err != nil {
			return pkgerrors.Wrapf(err, "failed to look up tracker for %q", entry.Path)
		}
		if tracker != nil {
			delete(untouched, tracker.FolderID)
		}
		fs := &folderSync{run: r, tracker: tracker, remotePath: entry.Path, entry: entry}
		if err := r.folderStep(fs, "reconcile", func() error { return fs.syncRemote() }); err != nil {
			return err
		}
		if fs.state == stateCommitted && fs.tracker != nil {
			r.synced[fs.tracker.FolderID] = fs
		}
	}
	return nil
}

// syncLocalFolders walks the local folders the remote pass did not
// match, children before parents so a deleted subtree unwinds cleanly.
func (r *syncRun) syncLocalFolders(untouched map[int]*FolderTracker) error {
	folders, err := r.s.local.Folders()
	if err != nil {
		return pkgerrors.Wrap(err, "failed to list local folders")
	}
	for i := len(folders) - 1; i >= 0; i-- {
		folder := folders[i]
		if _, done := r.synced[folder.ID]; done {
			continue
		}
		tracker, err := r.s.trackers.ByFolderID(folder.ID)
		if err != nil {
			return pkgerrors.Wrapf(err, "failed to look up tracker for %q", folder.Path)
		}
		if tracker != nil {
			delete(untouched, tracker.FolderID)
		}
		fs := &folderSync{run: r, tracker: tracker, folder: folder}
		if err := r.folderStep(fs, "reconcile", func() error { return fs.syncLocal() }); err != nil {
			return err
		}
		if fs.state == stateCommitted && fs.tracker != nil {
			r.synced[fs.tracker.FolderID] = fs
		}
	}
	return nil
}

// folderStep runs one folder operation and applies the account's failure
// policy: abort the run on the first failure, or record it and carry on
// when the account is configured best-effort. Connection-level failures
// always abort because every later folder would fail the same way.
func (r *syncRun) folderStep(fs *folderSync, op string, step func() error) error {
	err := step()
	if err == nil {
		return nil
	}
	fs.state = stateFailed
	ferr := &FolderSyncError{Folder: fs.name(), Op: op, Err: err}
	if r.connectionFatal(err) || !r.s.account.BestEffort {
		return ferr
	}
	r.log.Warn("folder failed, continuing", "mailbox", fs.name(), "op", op, "error", err)
	r.failures = append(r.failures, ferr)
	return nil
}

func (r *syncRun) connectionFatal(err error) bool {
	if errors.Is(err, ErrNotConnected) {
		return true
	}
	var malformed *MalformedResponseError
	if errors.As(err, &malformed) {
		return true
	}
	return r.remote.IsClosed()
}

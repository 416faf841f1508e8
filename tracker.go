package imapsync

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// FolderTracker links one local folder to its remote counterpart and
// records how far synchronization got. At most one tracker exists per
// local folder id and per remote path at any time.
type FolderTracker struct {
	FolderID    int
	RemotePath  string
	Delimiter   string // empty means a flat namespace
	UIDValidity uint64
	LastUID     uint64
	LastItemID  int
}

// TrackerStore persists folder trackers. Lookups are O(1) amortized;
// iteration order is unspecified. Implementations must be safe for
// concurrent use by distinct keys.
type TrackerStore interface {
	// ByFolderID returns the tracker for a local folder id, or nil.
	ByFolderID(id int) (*FolderTracker, error)
	// ByRemotePath returns the tracker for a remote path, or nil.
	ByRemotePath(path string) (*FolderTracker, error)
	// Put inserts or replaces a tracker, displacing any record that
	// shares either key.
	Put(t *FolderTracker) error
	// Remove deletes a tracker.
	Remove(t *FolderTracker) error
	// All returns every tracked folder.
	All() ([]*FolderTracker, error)
}

// MemoryTrackerStore is an in-memory TrackerStore.
type MemoryTrackerStore struct {
	mu     sync.RWMutex
	byID   map[int]FolderTracker
	byPath map[string]int
}

// NewMemoryTrackerStore creates an empty in-memory tracker store.
func NewMemoryTrackerStore() *MemoryTrackerStore {
	return &MemoryTrackerStore{
		byID:   make(map[int]FolderTracker),
		byPath: make(map[string]int),
	}
}

func (s *MemoryTrackerStore) ByFolderID(id int) (*FolderTracker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.byID[id]; ok {
		return &t, nil
	}
	return nil, nil
}

func (s *MemoryTrackerStore) ByRemotePath(path string) (*FolderTracker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.byPath[path]; ok {
		t := s.byID[id]
		return &t, nil
	}
	return nil, nil
}

func (s *MemoryTrackerStore) Put(t *FolderTracker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byID[t.FolderID]; ok {
		delete(s.byPath, old.RemotePath)
	}
	if id, ok := s.byPath[t.RemotePath]; ok {
		delete(s.byID, id)
	}
	s.byID[t.FolderID] = *t
	s.byPath[t.RemotePath] = t.FolderID
	return nil
}

func (s *MemoryTrackerStore) Remove(t *FolderTracker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byID[t.FolderID]; ok {
		delete(s.byPath, old.RemotePath)
		delete(s.byID, t.FolderID)
	}
	return nil
}

func (s *MemoryTrackerStore) All() ([]*FolderTracker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*FolderTracker, 0, len(s.byID))
	for _, t := range s.byID {
		c := t
		out = append(out, &c)
	}
	return out, nil
}

// SQLiteTrackerStore is a TrackerStore backed by a SQLite database,
// scoped to one account. Records are loaded once at open and kept in an
// in-memory index; writes go through to the database inside the lock, so
// a committed Put is durable before the folder is considered synced.
type SQLiteTrackerStore struct {
	db      *sql.DB
	account string
	mem     *MemoryTrackerStore
	mu      sync.Mutex
}

const trackerSchema = `
CREATE TABLE IF NOT EXISTS folder_trackers (
	account      TEXT    NOT NULL,
	folder_id    INTEGER NOT NULL,
	remote_path  TEXT    NOT NULL,
	delimiter    TEXT    NOT NULL DEFAULT '',
	uid_validity INTEGER NOT NULL DEFAULT 0,
	last_uid     INTEGER NOT NULL DEFAULT 0,
	last_item_id INTEGER NOT NULL DEFAULT 0,
	updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (account, folder_id),
	UNIQUE (account, remote_path)
)`

// OpenSQLiteTrackerStore opens (creating if needed) the tracker database
// at path and returns the store for one account's records.
func OpenSQLiteTrackerStore(path string, account string) (*SQLiteTrackerStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tracker database: %w", err)
	}
	if _, err = db.Exec(trackerSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize tracker schema: %w", err)
	}

	s := &SQLiteTrackerStore{db: db, account: account, mem: NewMemoryTrackerStore()}
	rows, err := db.Query(`SELECT folder_id, remote_path, delimiter, uid_validity, last_uid, last_item_id
		FROM folder_trackers WHERE account = ?`, account)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to load trackers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t FolderTracker
		var validity, lastUID int64
		if err := rows.Scan(&t.FolderID, &t.RemotePath, &t.Delimiter, &validity, &lastUID, &t.LastItemID); err != nil {
			_ = db.Close()
			return nil, err
		}
		t.UIDValidity = uint64(validity)
		t.LastUID = uint64(lastUID)
		_ = s.mem.Put(&t)
	}
	if err := rows.Err(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteTrackerStore) Close() error { return s.db.Close() }

func (s *SQLiteTrackerStore) ByFolderID(id int) (*FolderTracker, error) {
	return s.mem.ByFolderID(id)
}

func (s *SQLiteTrackerStore) ByRemotePath(path string) (*FolderTracker, error) {
	return s.mem.ByRemotePath(path)
}

func (s *SQLiteTrackerStore) Put(t *FolderTracker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Displace any row sharing either key before the upsert, mirroring
	// the in-memory index.
	if _, err := s.db.Exec(`DELETE FROM folder_trackers
		WHERE account = ? AND (folder_id = ? OR remote_path = ?)`,
		s.account, t.FolderID, t.RemotePath); err != nil {
		return fmt.Errorf("failed to save tracker: %w", err)
	}
	if _, err := s.db.Exec(`INSERT INTO folder_trackers
		(account, folder_id, remote_path, delimiter, uid_validity, last_uid, last_item_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.account, t.FolderID, t.RemotePath, t.Delimiter,
		int64(t.UIDValidity), int64(t.LastUID), t.LastItemID, time.Now()); err != nil {
		return fmt.Errorf("failed to save tracker: %w", err)
	}
	return s.mem.Put(t)
}

func (s *SQLiteTrackerStore) Remove(t *FolderTracker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM folder_trackers WHERE account = ? AND folder_id = ?`,
		s.account, t.FolderID); err != nil {
		return fmt.Errorf("failed to delete tracker: %w", err)
	}
	return s.mem.Remove(t)
}

func (s *SQLiteTrackerStore) All() ([]*FolderTracker, error) {
	return s.mem.All()
}

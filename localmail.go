package imapsync

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// LocalFolder is one folder in the local mailbox store.
type LocalFolder struct {
	ID   int
	Path string // slash-separated, relative to the account root
}

// LocalMessage is one locally stored message.
type LocalMessage struct {
	ID        int
	RemoteUID uint64 // 0 until the message is known to the server
	MessageID string
	Flags     []string
	Body      []byte
	Received  time.Time
}

// LocalMailbox is the engine's boundary to the local message store. The
// store provides its own per-folder mutation ordering guarantees; the
// engine only assumes that a returned folder or message id stays valid
// for the duration of one run.
type LocalMailbox interface {
	// Folders returns every folder except the root container, in
	// depth-first order (parents before children).
	Folders() ([]LocalFolder, error)
	FolderByPath(path string) (folder LocalFolder, ok bool, err error)
	CreateFolder(path string) (LocalFolder, error)
	DeleteFolder(id int) error

	Messages(folderID int) ([]LocalMessage, error)
	AddMessage(folderID int, msg LocalMessage) (id int, err error)
	UpdateMessage(folderID int, msg LocalMessage) error
	DeleteMessage(folderID int, messageID int) error
}

// MemoryMailbox is an in-memory LocalMailbox, used by tests and the
// examples. It is safe for concurrent use.
type MemoryMailbox struct {
	mu         sync.RWMutex
	folders    map[int]*memoryFolder
	byPath     map[string]int
	nextFolder int
	nextMsg    int
}

type memoryFolder struct {
	folder   LocalFolder
	messages map[int]LocalMessage
	deleted  bool
}

// NewMemoryMailbox creates an empty in-memory mailbox store.
func NewMemoryMailbox() *MemoryMailbox {
	return &MemoryMailbox{
		folders:    make(map[int]*memoryFolder),
		byPath:     make(map[string]int),
		nextFolder: 1,
		nextMsg:    1,
	}
}

// Folders returns all folders in depth-first order.
func (m *MemoryMailbox) Folders() ([]LocalFolder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]LocalFolder, 0, len(m.folders))
	for _, f := range m.folders {
		if !f.deleted {
			out = append(out, f.folder)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// FolderByPath looks a folder up by its relative path.
func (m *MemoryMailbox) FolderByPath(path string) (LocalFolder, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPath[path]
	if !ok {
		return LocalFolder{}, false, nil
	}
	return m.folders[id].folder, true, nil
}

// CreateFolder creates a folder (and any missing parents) and returns it.
func (m *MemoryMailbox) CreateFolder(path string) (LocalFolder, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return LocalFolder{}, fmt.Errorf("empty folder path")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	parts := strings.Split(path, "/")
	var f LocalFolder
	for i := range parts {
		p := strings.Join(parts[:i+1], "/")
		if id, ok := m.byPath[p]; ok {
			f = m.folders[id].folder
			continue
		}
		f = LocalFolder{ID: m.nextFolder, Path: p}
		m.nextFolder++
		m.folders[f.ID] = &memoryFolder{folder: f, messages: make(map[int]LocalMessage)}
		m.byPath[p] = f.ID
	}
	return f, nil
}

// DeleteFolder removes a folder. Deleting a folder that still has
// children is an error; the caller is expected to walk children first.
func (m *MemoryMailbox) DeleteFolder(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.folders[id]
	if !ok || f.deleted {
		return fmt.Errorf("no such folder %d", id)
	}
	prefix := f.folder.Path + "/"
	for p := range m.byPath {
		if strings.HasPrefix(p, prefix) {
			return fmt.Errorf("folder %q still has children", f.folder.Path)
		}
	}
	delete(m.byPath, f.folder.Path)
	delete(m.folders, id)
	return nil
}

// Messages returns the folder's messages in id order.
func (m *MemoryMailbox) Messages(folderID int) ([]LocalMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.folders[folderID]
	if !ok {
		return nil, fmt.Errorf("no such folder %d", folderID)
	}
	out := make([]LocalMessage, 0, len(f.messages))
	for _, msg := range f.messages {
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AddMessage stores a message and returns its id.
func (m *MemoryMailbox) AddMessage(folderID int, msg LocalMessage) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.folders[folderID]
	if !ok {
		return 0, fmt.Errorf("no such folder %d", folderID)
	}
	msg.ID = m.nextMsg
	m.nextMsg++
	if msg.Received.IsZero() {
		msg.Received = time.Now()
	}
	f.messages[msg.ID] = msg
	return msg.ID, nil
}

// UpdateMessage replaces a stored message's mutable state (flags and
// remote UID).
func (m *MemoryMailbox) UpdateMessage(folderID int, msg LocalMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.folders[folderID]
	if !ok {
		return fmt.Errorf("no such folder %d", folderID)
	}
	if _, ok := f.messages[msg.ID]; !ok {
		return fmt.Errorf("no such message %d in folder %d", msg.ID, folderID)
	}
	f.messages[msg.ID] = msg
	return nil
}

// DeleteMessage removes a message.
func (m *MemoryMailbox) DeleteMessage(folderID int, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.folders[folderID]
	if !ok {
		return fmt.Errorf("no such folder %d", folderID)
	}
	if _, ok := f.messages[messageID]; !ok {
		return fmt.Errorf("no such message %d in folder %d", messageID, folderID)
	}
	delete(f.messages, messageID)
	return nil
}

package imapsync

import (
	"bytes"
	"strings"
)

// ListEntry is one remote mailbox from a LIST response: its full path,
// name attributes, and the hierarchy delimiter ("" when the server
// reports a flat namespace).
type ListEntry struct {
	Path      string
	Delimiter string
	Attrs     []string
}

// HasAttr reports whether the entry carries the named attribute
// (e.g. `\Noselect`), case-insensitively.
func (e ListEntry) HasAttr(name string) bool {
	return hasFlag(e.Attrs, name)
}

// SelectResult summarizes the untagged data of a SELECT or EXAMINE:
// message count, UID validity, predicted next UID, and whether the
// mailbox was opened read-only.
type SelectResult struct {
	Exists         uint64
	Recent         uint64
	Unseen         uint64
	UIDValidity    uint64
	UIDNext        uint64
	Flags          []string
	PermanentFlags []string
	ReadOnly       bool
}

// ListFolders retrieves every remote mailbox with its attributes and
// hierarchy delimiter.
func (d *Dialer) ListFolders() (entries []ListEntry, err error) {
	entries = make([]ListEntry, 0)
	_, _, err = d.Exec(`LIST "" "*"`, false, RetryCount, func(line []byte) (err error) {
		entry, ok, err := parseListLine(line)
		if err != nil {
			return err
		}
		if ok {
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// parseListLine parses one `* LIST (attrs) delim name` line. Folder
// names sent as literals arrive appended to the line after a newline.
func parseListLine(line []byte) (entry ListEntry, ok bool, err error) {
	line = dropNl(line)

	// A literal folder name was already read into the same buffer by the
	// exec loop; split it off before parsing the structured part.
	var literalName string
	hasLiteral := false
	if i := bytes.IndexByte(line, '\n'); i != -1 {
		literalName = string(line[i+1:])
		line = dropNl(line[:i])
		hasLiteral = true
	}

	r := NewResponseReader(string(line))
	r.SkipSpaces()
	if !r.Match('*') {
		return entry, false, nil
	}
	r.SkipSpaces()
	a, err := r.ReadAtom()
	if err != nil || !strings.EqualFold(a, "LIST") {
		return entry, false, nil
	}
	r.SkipSpaces()
	attrs, err := readFlagList(r)
	if err != nil {
		return entry, false, err
	}
	entry.Attrs = attrs
	r.SkipSpaces()
	delim, present, err := r.ReadNString()
	if err != nil {
		return entry, false, err
	}
	if present {
		entry.Delimiter = delim
	}
	r.SkipSpaces()
	if hasLiteral {
		entry.Path = literalName
	} else {
		name, _, err := r.ReadNString()
		if err != nil {
			return entry, false, err
		}
		entry.Path = name
	}
	return entry, true, nil
}

// selectData folds one untagged SELECT/EXAMINE line into the result.
func (s *SelectResult) selectData(line []byte) error {
	r := NewResponseReader(string(dropNl(line)))
	r.SkipSpaces()
	if !r.Match('*') {
		return nil
	}
	r.SkipSpaces()

	if r.Peek() >= '0' && r.Peek() <= '9' {
		n, err := r.ReadNumber()
		if err != nil {
			return err
		}
		r.SkipSpaces()
		kind, err := r.ReadAtom()
		if err != nil {
			return err
		}
		switch strings.ToUpper(kind) {
		case "EXISTS":
			s.Exists = n
		case "RECENT":
			s.Recent = n
		}
		return nil
	}

	a, err := r.ReadAtom()
	if err != nil {
		return nil // tolerate lines we don't model
	}
	switch strings.ToUpper(a) {
	case "FLAGS":
		r.SkipSpaces()
		flags, err := readFlagList(r)
		if err != nil {
			return err
		}
		s.Flags = flags
	case "OK":
		rt, err := ReadResponseText(r)
		if err != nil {
			return err
		}
		switch rt.Code {
		case CodeUIDValidity:
			s.UIDValidity = rt.Number
		case CodeUIDNext:
			s.UIDNext = rt.Number
		case CodeUnseen:
			s.Unseen = rt.Number
		case CodePermanentFlags:
			s.PermanentFlags = rt.Flags
		case CodeReadOnly:
			s.ReadOnly = true
		case CodeReadWrite:
			s.ReadOnly = false
		case CodeNone, CodeAlert, CodeParse, CodeTryCreate, CodeBadCharset,
			CodeCapability, CodeAppendUID, CodeCopyUID, CodeOther:
			// not SELECT data
		}
	}
	return nil
}

// SelectFolder selects a folder in read-write mode and returns its
// status summary.
func (d *Dialer) SelectFolder(folder string) (result *SelectResult, err error) {
	result = &SelectResult{}
	_, status, err := d.Exec(`SELECT "`+AddSlashes.Replace(folder)+`"`, false, RetryCount, result.selectData)
	if err != nil {
		return nil, err
	}
	if status != nil && status.Code == CodeReadOnly {
		result.ReadOnly = true
	}
	d.Folder = folder
	d.ReadOnly = result.ReadOnly
	return result, nil
}

// ExamineFolder selects a folder in read-only mode
func (d *Dialer) ExamineFolder(folder string) (err error) {
	_, _, err = d.Exec(`EXAMINE "`+AddSlashes.Replace(folder)+`"`, false, RetryCount, nil)
	if err != nil {
		return err
	}
	d.Folder = folder
	d.ReadOnly = true
	return nil
}

// CreateFolder creates a remote mailbox. Creating one that already
// exists is reported by the server as a rejection.
func (d *Dialer) CreateFolder(folder string) (err error) {
	_, _, err = d.Exec(`CREATE "`+AddSlashes.Replace(folder)+`"`, false, RetryCount, nil)
	return err
}

// Logout sends LOGOUT and closes the connection.
func (d *Dialer) Logout() error {
	_, _, err := d.Exec("LOGOUT", false, 0, nil)
	_ = d.Close()
	return err
}

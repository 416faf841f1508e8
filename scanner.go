package imapsync

import (
	"strconv"
	"strings"
)

// ResponseReader is a positioned reader over one response line. All Read*
// methods fail with a *MalformedResponseError when the grammar is
// violated; the position then points at the offending character.
type ResponseReader struct {
	line string
	pos  int
}

// NewResponseReader creates a reader positioned at the start of line.
// Trailing CRLF is dropped so grammar methods never see it.
func NewResponseReader(line string) *ResponseReader {
	line = strings.TrimRight(line, "\r\n")
	return &ResponseReader{line: line}
}

// Pos returns the current position within the line.
func (r *ResponseReader) Pos() int { return r.pos }

// EOF reports whether the whole line has been consumed.
func (r *ResponseReader) EOF() bool { return r.pos >= len(r.line) }

// Peek returns the next byte without consuming it, or 0 at end of line.
func (r *ResponseReader) Peek() byte {
	if r.EOF() {
		return 0
	}
	return r.line[r.pos]
}

// Match consumes the next byte if it equals b and reports whether it did.
func (r *ResponseReader) Match(b byte) bool {
	if r.Peek() == b {
		r.pos++
		return true
	}
	return false
}

// SkipChar consumes the next byte, which must equal b.
func (r *ResponseReader) SkipChar(b byte) error {
	if !r.Match(b) {
		return r.malformed("expected " + strconv.QuoteRune(rune(b)))
	}
	return nil
}

// SkipSpaces consumes any run of spaces.
func (r *ResponseReader) SkipSpaces() {
	for r.Peek() == ' ' {
		r.pos++
	}
}

// isAtomChar reports whether b may appear in an atom. Brackets are
// excluded so resp-text code atoms stop at the closing "]".
func isAtomChar(b byte) bool {
	switch b {
	case ' ', '(', ')', '{', '%', '*', '"', '\\', '[', ']':
		return false
	}
	return b > 0x1f && b < 0x7f
}

// ReadAtom reads one non-empty atom.
func (r *ResponseReader) ReadAtom() (string, error) {
	start := r.pos
	for !r.EOF() && isAtomChar(r.line[r.pos]) {
		r.pos++
	}
	if r.pos == start {
		return "", r.malformed("expected atom")
	}
	return r.line[start:r.pos], nil
}

// ReadFlag reads one flag, which is an atom optionally preceded by a
// backslash (system flags) or a lone "\*" (flag-perm wildcard).
func (r *ResponseReader) ReadFlag() (string, error) {
	if r.Match('\\') {
		if r.Match('*') {
			return `\*`, nil
		}
		a, err := r.ReadAtom()
		if err != nil {
			return "", err
		}
		return `\` + a, nil
	}
	return r.ReadAtom()
}

// ReadNumber reads one non-negative integer.
func (r *ResponseReader) ReadNumber() (uint64, error) {
	start := r.pos
	for !r.EOF() && r.line[r.pos] >= '0' && r.line[r.pos] <= '9' {
		r.pos++
	}
	if r.pos == start {
		return 0, r.malformed("expected number")
	}
	n, err := strconv.ParseUint(r.line[start:r.pos], 10, 64)
	if err != nil {
		return 0, r.malformed("number out of range")
	}
	return n, nil
}

// ReadNZNumber reads one positive integer.
func (r *ResponseReader) ReadNZNumber() (uint64, error) {
	n, err := r.ReadNumber()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, r.malformed("expected nonzero number")
	}
	return n, nil
}

// ReadQuoted reads one double-quoted string, honoring backslash escapes.
func (r *ResponseReader) ReadQuoted() (string, error) {
	if err := r.SkipChar('"'); err != nil {
		return "", err
	}
	var sb strings.Builder
	for {
		if r.EOF() {
			return "", r.malformed("unterminated quoted string")
		}
		b := r.line[r.pos]
		r.pos++
		switch b {
		case '"':
			return sb.String(), nil
		case '\\':
			if r.EOF() {
				return "", r.malformed("dangling escape in quoted string")
			}
			sb.WriteByte(r.line[r.pos])
			r.pos++
		default:
			sb.WriteByte(b)
		}
	}
}

// ReadAString reads a quoted string or an atom.
func (r *ResponseReader) ReadAString() (string, error) {
	if r.Peek() == '"' {
		return r.ReadQuoted()
	}
	return r.ReadAtom()
}

// ReadNString reads a quoted string or the atom NIL, which maps to the
// empty string with ok=false.
func (r *ResponseReader) ReadNString() (s string, ok bool, err error) {
	if r.Peek() == '"' {
		s, err = r.ReadQuoted()
		return s, err == nil, err
	}
	a, err := r.ReadAtom()
	if err != nil {
		return "", false, err
	}
	if strings.EqualFold(a, "NIL") {
		return "", false, nil
	}
	return a, true, nil
}

// ReadText reads characters up to (not including) any byte in stop, or to
// the end of the line when no stop byte occurs.
func (r *ResponseReader) ReadText(stop string) string {
	start := r.pos
	for !r.EOF() && !strings.ContainsRune(stop, rune(r.line[r.pos])) {
		r.pos++
	}
	return r.line[start:r.pos]
}

// ReadRest returns everything left on the line.
func (r *ResponseReader) ReadRest() string {
	s := r.line[r.pos:]
	r.pos = len(r.line)
	return s
}

func (r *ResponseReader) malformed(msg string) error {
	return &MalformedResponseError{Pos: r.pos, Line: r.line, Msg: msg}
}

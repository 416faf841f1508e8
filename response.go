package imapsync

import "strings"

// RespCode identifies a recognized resp-text code. The set is closed:
// consumers switch over it exhaustively, and anything the server sends
// outside this vocabulary parses as CodeOther with its raw atom retained.
type RespCode int

const (
	CodeNone RespCode = iota
	CodeAlert
	CodeParse
	CodeReadOnly
	CodeReadWrite
	CodeTryCreate
	CodeUIDNext
	CodeUIDValidity
	CodeUnseen
	CodeBadCharset
	CodePermanentFlags
	CodeCapability
	CodeAppendUID
	CodeCopyUID
	CodeOther
)

var respCodeNames = map[RespCode]string{
	CodeNone:           "",
	CodeAlert:          "ALERT",
	CodeParse:          "PARSE",
	CodeReadOnly:       "READ-ONLY",
	CodeReadWrite:      "READ-WRITE",
	CodeTryCreate:      "TRYCREATE",
	CodeUIDNext:        "UIDNEXT",
	CodeUIDValidity:    "UIDVALIDITY",
	CodeUnseen:         "UNSEEN",
	CodeBadCharset:     "BADCHARSET",
	CodePermanentFlags: "PERMANENTFLAGS",
	CodeCapability:     "CAPABILITY",
	CodeAppendUID:      "APPENDUID",
	CodeCopyUID:        "COPYUID",
	CodeOther:          "(other)",
}

// String returns the protocol name of the code.
func (c RespCode) String() string { return respCodeNames[c] }

// codeForAtom maps a code atom to its RespCode, case-insensitively.
func codeForAtom(atom string) RespCode {
	switch strings.ToUpper(atom) {
	case "ALERT":
		return CodeAlert
	case "PARSE":
		return CodeParse
	case "READ-ONLY":
		return CodeReadOnly
	case "READ-WRITE":
		return CodeReadWrite
	case "TRYCREATE":
		return CodeTryCreate
	case "UIDNEXT":
		return CodeUIDNext
	case "UIDVALIDITY":
		return CodeUIDValidity
	case "UNSEEN":
		return CodeUnseen
	case "BADCHARSET":
		return CodeBadCharset
	case "PERMANENTFLAGS":
		return CodePermanentFlags
	case "CAPABILITY":
		return CodeCapability
	case "APPENDUID":
		return CodeAppendUID
	case "COPYUID":
		return CodeCopyUID
	}
	return CodeOther
}

// AppendResult is the UIDPLUS (RFC 4315) APPENDUID payload: the UID
// validity of the destination folder and the UID assigned to the
// appended message.
type AppendResult struct {
	UIDValidity uint64
	UID         uint64
}

// CopyResult is the UIDPLUS COPYUID payload: the UID validity of the
// destination folder plus the source and destination UID sets, kept as
// strings in the server's set syntax (e.g. "1:3,7").
type CopyResult struct {
	UIDValidity uint64
	FromUIDs    string
	ToUIDs      string
}

// ResponseText is one parsed response line tail:
//
//	resp-text = ["[" resp-text-code "]" SP] text
//
// Exactly one payload field is populated, selected by Code; Atom retains
// the raw code atom for CodeOther, and Text holds the trailing
// human-readable text verbatim.
type ResponseText struct {
	Code         RespCode
	Atom         string
	Number       uint64 // UIDNEXT, UIDVALIDITY, UNSEEN
	Charsets     []string
	Flags        []string
	Capabilities []string
	Append       *AppendResult
	Copy         *CopyResult
	Data         string // free-text payload of an unrecognized code
	Text         string
}

// ParseResponseText parses one resp-text production from line.
func ParseResponseText(line string) (*ResponseText, error) {
	return ReadResponseText(NewResponseReader(line))
}

// ReadResponseText parses one resp-text production at the reader's
// current position, consuming the rest of the line.
func ReadResponseText(r *ResponseReader) (*ResponseText, error) {
	rt := &ResponseText{Code: CodeNone}
	r.SkipSpaces()
	if r.Peek() == '[' {
		if err := rt.readCode(r); err != nil {
			return nil, err
		}
	}
	r.SkipSpaces()
	rt.Text = r.ReadRest()
	return rt, nil
}

func (rt *ResponseText) readCode(r *ResponseReader) error {
	if err := r.SkipChar('['); err != nil {
		return err
	}
	atom, err := r.ReadAtom()
	if err != nil {
		return err
	}
	rt.Atom = atom
	rt.Code = codeForAtom(atom)

	switch rt.Code {
	case CodeAlert, CodeParse, CodeReadOnly, CodeReadWrite, CodeTryCreate:
		// flag-only codes carry no payload

	case CodeUIDNext, CodeUIDValidity:
		if err := r.SkipChar(' '); err != nil {
			return err
		}
		if rt.Number, err = r.ReadNZNumber(); err != nil {
			return err
		}

	case CodeUnseen:
		if err := r.SkipChar(' '); err != nil {
			return err
		}
		// Technically this is an nz-number, but some servers (GMail)
		// actually return "0".
		if rt.Number, err = r.ReadNumber(); err != nil {
			return err
		}

	case CodeBadCharset:
		if r.Match(' ') {
			r.SkipSpaces()
			if r.Peek() == '(' {
				if rt.Charsets, err = readCharsets(r); err != nil {
					return err
				}
			}
		}

	case CodePermanentFlags:
		if err := r.SkipChar(' '); err != nil {
			return err
		}
		if rt.Flags, err = readFlagList(r); err != nil {
			return err
		}

	case CodeCapability:
		if err := r.SkipChar(' '); err != nil {
			return err
		}
		r.SkipSpaces()
		rt.Capabilities = readCapabilities(r)

	case CodeAppendUID:
		// resp-code-apnd = "APPENDUID" SP nz-number SP append-uid
		ar := &AppendResult{}
		if err := r.SkipChar(' '); err != nil {
			return err
		}
		if ar.UIDValidity, err = r.ReadNZNumber(); err != nil {
			return err
		}
		if err := r.SkipChar(' '); err != nil {
			return err
		}
		if ar.UID, err = r.ReadNZNumber(); err != nil {
			return err
		}
		rt.Append = ar

	case CodeCopyUID:
		cr := &CopyResult{}
		if err := r.SkipChar(' '); err != nil {
			return err
		}
		if cr.UIDValidity, err = r.ReadNZNumber(); err != nil {
			return err
		}
		if err := r.SkipChar(' '); err != nil {
			return err
		}
		r.SkipSpaces()
		cr.FromUIDs = r.ReadText(" ")
		if err := r.SkipChar(' '); err != nil {
			return err
		}
		r.SkipSpaces()
		cr.ToUIDs = r.ReadText(" ]")
		rt.Copy = cr

	case CodeOther:
		if r.Match(' ') {
			rt.Data = r.ReadText("]")
		}

	case CodeNone:
		// unreachable: codeForAtom never returns CodeNone
	}

	r.SkipSpaces()
	return r.SkipChar(']')
}

// readCharsets reads the BADCHARSET parenthesized astring list.
func readCharsets(r *ResponseReader) ([]string, error) {
	if err := r.SkipChar('('); err != nil {
		return nil, err
	}
	var cs []string
	r.SkipSpaces()
	for !r.Match(')') {
		if r.EOF() {
			return nil, &MalformedResponseError{Pos: r.Pos(), Msg: "unterminated charset list"}
		}
		s, err := r.ReadAString()
		if err != nil {
			return nil, err
		}
		cs = append(cs, s)
		r.SkipSpaces()
	}
	return cs, nil
}

// readFlagList reads a parenthesized, possibly empty, flag list.
func readFlagList(r *ResponseReader) ([]string, error) {
	if err := r.SkipChar('('); err != nil {
		return nil, err
	}
	flags := []string{}
	r.SkipSpaces()
	for !r.Match(')') {
		if r.EOF() {
			return nil, &MalformedResponseError{Pos: r.Pos(), Msg: "unterminated flag list"}
		}
		f, err := r.ReadFlag()
		if err != nil {
			return nil, err
		}
		flags = append(flags, f)
		r.SkipSpaces()
	}
	return flags, nil
}

// readCapabilities reads space-separated capability atoms up to the
// closing bracket or end of line.
func readCapabilities(r *ResponseReader) []string {
	var caps []string
	for {
		r.SkipSpaces()
		if r.EOF() || r.Peek() == ']' {
			return caps
		}
		a, err := r.ReadAtom()
		if err != nil {
			return caps
		}
		caps = append(caps, a)
	}
}

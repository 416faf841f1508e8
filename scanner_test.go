package imapsync

import "testing"

func TestReadAtom(t *testing.T) {
	tests := []struct {
		line string
		want string
		rest byte
		err  bool
	}{
		{line: "IMAP4rev1 UIDPLUS", want: "IMAP4rev1", rest: ' '},
		{line: "READ-ONLY]", want: "READ-ONLY", rest: ']'},
		{line: "UIDNEXT 2", want: "UIDNEXT", rest: ' '},
		{line: "atom.with+odd!chars)", want: "atom.with+odd!chars", rest: ')'},
		{line: "", err: true},
		{line: " leading space", err: true},
		{line: "(list)", err: true},
	}
	for _, tt := range tests {
		r := NewResponseReader(tt.line)
		got, err := r.ReadAtom()
		if tt.err {
			if err == nil {
				t.Errorf("ReadAtom(%q) succeeded with %q, want error", tt.line, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ReadAtom(%q) error: %v", tt.line, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ReadAtom(%q) = %q, want %q", tt.line, got, tt.want)
		}
		if r.Peek() != tt.rest {
			t.Errorf("ReadAtom(%q) stopped at %q, want %q", tt.line, r.Peek(), tt.rest)
		}
	}
}

func TestReadFlag(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{line: `\Seen`, want: `\Seen`},
		{line: `\*`, want: `\*`},
		{line: `$Forwarded`, want: `$Forwarded`},
		{line: `work ignored`, want: `work`},
	}
	for _, tt := range tests {
		r := NewResponseReader(tt.line)
		got, err := r.ReadFlag()
		if err != nil {
			t.Errorf("ReadFlag(%q) error: %v", tt.line, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ReadFlag(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestReadQuoted(t *testing.T) {
	tests := []struct {
		line string
		want string
		err  bool
	}{
		{line: `"INBOX"`, want: "INBOX"},
		{line: `""`, want: ""},
		{line: `"a \"quoted\" word"`, want: `a "quoted" word`},
		{line: `"back\\slash"`, want: `back\slash`},
		{line: `"unterminated`, err: true},
		{line: `"dangling\`, err: true},
		{line: `INBOX`, err: true},
	}
	for _, tt := range tests {
		r := NewResponseReader(tt.line)
		got, err := r.ReadQuoted()
		if tt.err != (err != nil) {
			t.Errorf("ReadQuoted(%q) error = %v, want err=%v", tt.line, err, tt.err)
			continue
		}
		if !tt.err && got != tt.want {
			t.Errorf("ReadQuoted(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestReadNString(t *testing.T) {
	tests := []struct {
		line string
		want string
		ok   bool
	}{
		{line: `"/"`, want: "/", ok: true},
		{line: "NIL", want: "", ok: false},
		{line: "nil", want: "", ok: false},
		{line: "INBOX", want: "INBOX", ok: true},
	}
	for _, tt := range tests {
		r := NewResponseReader(tt.line)
		got, ok, err := r.ReadNString()
		if err != nil {
			t.Errorf("ReadNString(%q) error: %v", tt.line, err)
			continue
		}
		if got != tt.want || ok != tt.ok {
			t.Errorf("ReadNString(%q) = %q, %v, want %q, %v", tt.line, got, ok, tt.want, tt.ok)
		}
	}
}

func TestReadNumber(t *testing.T) {
	r := NewResponseReader("4392 rest")
	n, err := r.ReadNumber()
	if err != nil || n != 4392 {
		t.Fatalf("ReadNumber = %d, %v", n, err)
	}
	if _, err := NewResponseReader("x").ReadNumber(); err == nil {
		t.Error("ReadNumber accepted a non-digit")
	}
	if _, err := NewResponseReader("0").ReadNZNumber(); err == nil {
		t.Error("ReadNZNumber accepted zero")
	}
	if _, err := NewResponseReader("99999999999999999999999").ReadNumber(); err == nil {
		t.Error("ReadNumber accepted an out-of-range value")
	}
}

func TestReadText(t *testing.T) {
	r := NewResponseReader("304,319:320 3956:3958] Done")
	if got := r.ReadText(" "); got != "304,319:320" {
		t.Errorf("ReadText = %q", got)
	}
	r.SkipSpaces()
	if got := r.ReadText(" ]"); got != "3956:3958" {
		t.Errorf("ReadText = %q", got)
	}
	if got := NewResponseReader("no stop byte here").ReadText("]"); got != "no stop byte here" {
		t.Errorf("ReadText ran past end: %q", got)
	}
}

func TestReaderTrimsCRLF(t *testing.T) {
	r := NewResponseReader("OK done\r\n")
	if got := r.ReadRest(); got != "OK done" {
		t.Errorf("ReadRest = %q", got)
	}
	if !r.EOF() {
		t.Error("reader not at EOF after ReadRest")
	}
}

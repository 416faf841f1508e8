package imapsync

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseResponseText(t *testing.T) {
	tests := []struct {
		name string
		line string
		want ResponseText
	}{
		{
			name: "bare text",
			line: "LOGIN completed",
			want: ResponseText{Code: CodeNone, Text: "LOGIN completed"},
		},
		{
			name: "empty line",
			line: "",
			want: ResponseText{Code: CodeNone},
		},
		{
			name: "alert",
			line: "[ALERT] System shutdown in 10 minutes",
			want: ResponseText{Code: CodeAlert, Atom: "ALERT", Text: "System shutdown in 10 minutes"},
		},
		{
			name: "read-only",
			line: "[READ-ONLY] EXAMINE completed",
			want: ResponseText{Code: CodeReadOnly, Atom: "READ-ONLY", Text: "EXAMINE completed"},
		},
		{
			name: "read-write",
			line: "[READ-WRITE] SELECT completed",
			want: ResponseText{Code: CodeReadWrite, Atom: "READ-WRITE", Text: "SELECT completed"},
		},
		{
			name: "trycreate",
			line: "[TRYCREATE] no such mailbox",
			want: ResponseText{Code: CodeTryCreate, Atom: "TRYCREATE", Text: "no such mailbox"},
		},
		{
			name: "uidvalidity",
			line: "[UIDVALIDITY 123] OK",
			want: ResponseText{Code: CodeUIDValidity, Atom: "UIDVALIDITY", Number: 123, Text: "OK"},
		},
		{
			name: "uidnext",
			line: "[UIDNEXT 4392] Predicted next UID",
			want: ResponseText{Code: CodeUIDNext, Atom: "UIDNEXT", Number: 4392, Text: "Predicted next UID"},
		},
		{
			name: "unseen zero",
			line: "[UNSEEN 0] OK",
			want: ResponseText{Code: CodeUnseen, Atom: "UNSEEN", Number: 0, Text: "OK"},
		},
		{
			name: "lowercase code",
			line: "[uidvalidity 7] ok",
			want: ResponseText{Code: CodeUIDValidity, Atom: "uidvalidity", Number: 7, Text: "ok"},
		},
		{
			name: "badcharset bare",
			line: "[BADCHARSET] unsupported",
			want: ResponseText{Code: CodeBadCharset, Atom: "BADCHARSET", Text: "unsupported"},
		},
		{
			name: "badcharset with list",
			line: `[BADCHARSET (UTF-8 "US-ASCII")] try again`,
			want: ResponseText{Code: CodeBadCharset, Atom: "BADCHARSET", Charsets: []string{"UTF-8", "US-ASCII"}, Text: "try again"},
		},
		{
			name: "permanentflags",
			line: `[PERMANENTFLAGS (\Deleted \Seen \*)] Limited`,
			want: ResponseText{Code: CodePermanentFlags, Atom: "PERMANENTFLAGS", Flags: []string{`\Deleted`, `\Seen`, `\*`}, Text: "Limited"},
		},
		{
			name: "permanentflags empty",
			line: `[PERMANENTFLAGS ()] none stick`,
			want: ResponseText{Code: CodePermanentFlags, Atom: "PERMANENTFLAGS", Flags: []string{}, Text: "none stick"},
		},
		{
			name: "capability",
			line: "[CAPABILITY IMAP4rev1 UIDPLUS IDLE] ready",
			want: ResponseText{Code: CodeCapability, Atom: "CAPABILITY", Capabilities: []string{"IMAP4rev1", "UIDPLUS", "IDLE"}, Text: "ready"},
		},
		{
			name: "appenduid",
			line: "[APPENDUID 5 42] done",
			want: ResponseText{Code: CodeAppendUID, Atom: "APPENDUID", Append: &AppendResult{UIDValidity: 5, UID: 42}, Text: "done"},
		},
		{
			name: "copyuid",
			line: "[COPYUID 5 1:3 7:9] done",
			want: ResponseText{Code: CodeCopyUID, Atom: "COPYUID", Copy: &CopyResult{UIDValidity: 5, FromUIDs: "1:3", ToUIDs: "7:9"}, Text: "done"},
		},
		{
			name: "copyuid sparse sets",
			line: "[COPYUID 38505 304,319:320 3956:3958] Done",
			want: ResponseText{Code: CodeCopyUID, Atom: "COPYUID", Copy: &CopyResult{UIDValidity: 38505, FromUIDs: "304,319:320", ToUIDs: "3956:3958"}, Text: "Done"},
		},
		{
			name: "unknown code bare",
			line: "[HIGHESTMODSEQ] ok",
			want: ResponseText{Code: CodeOther, Atom: "HIGHESTMODSEQ", Text: "ok"},
		},
		{
			name: "unknown code with data",
			line: "[HIGHESTMODSEQ 715194045007] ok",
			want: ResponseText{Code: CodeOther, Atom: "HIGHESTMODSEQ", Data: "715194045007", Text: "ok"},
		},
		{
			name: "no trailing text",
			line: "[UIDNEXT 2]",
			want: ResponseText{Code: CodeUIDNext, Atom: "UIDNEXT", Number: 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResponseText(tt.line)
			if err != nil {
				t.Fatalf("ParseResponseText(%q) error: %v", tt.line, err)
			}
			if !reflect.DeepEqual(*got, tt.want) {
				t.Errorf("ParseResponseText(%q)\n got %+v\nwant %+v", tt.line, *got, tt.want)
			}
		})
	}
}

func TestParseResponseTextMalformed(t *testing.T) {
	lines := []string{
		"[UIDVALIDITY] missing number",
		"[UIDVALIDITY 0] zero is not valid here",
		"[UIDVALIDITY 123 no closing bracket",
		"[UIDNEXT abc] not a number",
		"[APPENDUID 5] missing uid",
		`[PERMANENTFLAGS (\Seen] unterminated list`,
		"[",
	}
	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			_, err := ParseResponseText(line)
			if err == nil {
				t.Fatalf("ParseResponseText(%q) succeeded, want malformed error", line)
			}
			var malformed *MalformedResponseError
			if !errors.As(err, &malformed) {
				t.Errorf("ParseResponseText(%q) error = %T, want *MalformedResponseError", line, err)
			}
		})
	}
}

func TestRespCodeString(t *testing.T) {
	if got := CodeUIDValidity.String(); got != "UIDVALIDITY" {
		t.Errorf("CodeUIDValidity.String() = %q", got)
	}
	if got := CodeNone.String(); got != "" {
		t.Errorf("CodeNone.String() = %q", got)
	}
}

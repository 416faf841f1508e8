package imapsync

import (
	"reflect"
	"testing"
)

func TestParseSummaryLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want MessageSummary
		ok   bool
	}{
		{
			name: "uid then flags",
			line: `* 12 FETCH (UID 43 FLAGS (\Seen \Answered))`,
			want: MessageSummary{UID: 43, Flags: []string{`\Seen`, `\Answered`}},
			ok:   true,
		},
		{
			name: "flags then uid",
			line: `* 12 FETCH (FLAGS (\Seen) UID 43)`,
			want: MessageSummary{UID: 43, Flags: []string{`\Seen`}},
			ok:   true,
		},
		{
			name: "empty flags",
			line: `* 1 FETCH (UID 7 FLAGS ())`,
			want: MessageSummary{UID: 7, Flags: []string{}},
			ok:   true,
		},
		{
			name: "keyword flags",
			line: `* 3 FETCH (UID 9 FLAGS ($Forwarded work))`,
			want: MessageSummary{UID: 9, Flags: []string{"$Forwarded", "work"}},
			ok:   true,
		},
		{
			name: "extra data items are skipped",
			line: `* 5 FETCH (UID 11 MODSEQ (715194045007) FLAGS (\Seen))`,
			want: MessageSummary{UID: 11, Flags: []string{`\Seen`}},
			ok:   true,
		},
		{
			name: "not a fetch line",
			line: `* 23 EXISTS`,
			ok:   false,
		},
		{
			name: "untagged but unrelated",
			line: `* OK still here`,
			ok:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := parseSummaryLine([]byte(tt.line + "\r\n"))
			if err != nil {
				t.Fatalf("parseSummaryLine(%q) error: %v", tt.line, err)
			}
			if ok != tt.ok {
				t.Fatalf("parseSummaryLine(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			}
			if ok && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseSummaryLine(%q)\n got %+v\nwant %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseSummaryLineUnterminated(t *testing.T) {
	if _, _, err := parseSummaryLine([]byte(`* 12 FETCH (UID 43 FLAGS (\Seen)` + "\r\n")); err == nil {
		t.Error("unterminated fetch list accepted")
	}
}

func TestMessageEnvelope(t *testing.T) {
	body := []byte("Message-Id: <abc123@example.com>\r\n" +
		"Subject: Hello there\r\n" +
		"From: sender@example.com\r\n" +
		"\r\n" +
		"body text\r\n")
	id, subject := messageEnvelope(body)
	if id != "abc123@example.com" {
		t.Errorf("message id = %q", id)
	}
	if subject != "Hello there" {
		t.Errorf("subject = %q", subject)
	}
}

func TestMessageEnvelopeEncodedSubject(t *testing.T) {
	body := []byte("Message-Id: <x@example.com>\r\n" +
		"Subject: =?UTF-8?Q?Caf=C3=A9?=\r\n" +
		"\r\n" +
		"body\r\n")
	_, subject := messageEnvelope(body)
	if subject != "Café" {
		t.Errorf("subject = %q", subject)
	}
}

func TestMessageEnvelopeMissingHeaders(t *testing.T) {
	id, subject := messageEnvelope([]byte("X-Other: nothing useful\r\n\r\nbody\r\n"))
	if id != "" || subject != "" {
		t.Errorf("got id=%q subject=%q from headerless message", id, subject)
	}
}

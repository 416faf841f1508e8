package imapsync

import (
	"errors"
	"testing"
)

func TestParseTaggedStatus(t *testing.T) {
	status, rejected, err := parseTaggedStatus("SELECT", []byte(`OK [READ-ONLY] SELECT completed`))
	if err != nil {
		t.Fatalf("parseTaggedStatus error: %v", err)
	}
	if rejected != nil {
		t.Fatalf("unexpected rejection: %v", rejected)
	}
	if status.Code != CodeReadOnly || status.Text != "SELECT completed" {
		t.Errorf("status = %+v", status)
	}
}

func TestParseTaggedStatusRejected(t *testing.T) {
	tests := []struct {
		line   string
		status string
	}{
		{line: "NO [TRYCREATE] no such mailbox", status: "NO"},
		{line: "BAD parse error", status: "BAD"},
	}
	for _, tt := range tests {
		_, rejected, err := parseTaggedStatus("APPEND", []byte(tt.line))
		if err != nil {
			t.Fatalf("parseTaggedStatus(%q) error: %v", tt.line, err)
		}
		if rejected == nil {
			t.Fatalf("parseTaggedStatus(%q) did not reject", tt.line)
		}
		if rejected.Status != tt.status {
			t.Errorf("Status = %q, want %q", rejected.Status, tt.status)
		}
		if rejected.Command != "APPEND" {
			t.Errorf("Command = %q", rejected.Command)
		}
	}
}

func TestParseTaggedStatusUnexpected(t *testing.T) {
	if _, _, err := parseTaggedStatus("NOOP", []byte("WHAT is this")); err == nil {
		t.Error("unexpected condition accepted")
	}
}

func TestCommandRejectedErrorUnwrapping(t *testing.T) {
	var err error = &CommandRejectedError{Command: "SELECT", Status: "NO", Resp: &ResponseText{Text: "nope"}}
	var rejected *CommandRejectedError
	if !errors.As(err, &rejected) {
		t.Fatal("errors.As failed for *CommandRejectedError")
	}
	if rejected.Resp.Text != "nope" {
		t.Errorf("Resp.Text = %q", rejected.Resp.Text)
	}
}

func TestInnermost(t *testing.T) {
	root := errors.New("connection refused")
	wrapped := &FolderSyncError{Folder: "INBOX", Op: "reconcile", Err: root}
	if got := Innermost(wrapped); got != root {
		t.Errorf("Innermost = %v, want %v", got, root)
	}
	if got := Innermost(nil); got != nil {
		t.Errorf("Innermost(nil) = %v", got)
	}
	if got := Innermost(root); got != root {
		t.Errorf("Innermost(unwrapped) = %v", got)
	}
}

package imapsync

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"mime"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	enmime "github.com/jhillyerd/enmime/v2"
	"golang.org/x/net/html/charset"
)

// TimeFormat is the INTERNALDATE format used by APPEND.
const TimeFormat = "_2-Jan-2006 15:04:05 -0700"

// MessageSummary is one message's UID and flag set, as returned by a
// summary fetch.
type MessageSummary struct {
	UID   uint64
	Flags []string
}

// bodyLiteralRE locates the literal marker introducing message content
// inside an already-assembled fetch line.
var bodyLiteralRE = regexp.MustCompile(`\{(\d+)\}\r?\n`)

// FetchSummaries fetches UID and flags for every message in the given
// UID set (e.g. "1:*" or "43:*").
func (d *Dialer) FetchSummaries(uidSet string) (summaries []MessageSummary, err error) {
	summaries = make([]MessageSummary, 0)
	_, _, err = d.Exec("UID FETCH "+uidSet+" (UID FLAGS)", false, RetryCount, func(line []byte) error {
		sum, ok, err := parseSummaryLine(line)
		if err != nil {
			return err
		}
		if ok {
			summaries = append(summaries, sum)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// parseSummaryLine parses one `* n FETCH (UID u FLAGS (...))` line.
func parseSummaryLine(line []byte) (sum MessageSummary, ok bool, err error) {
	r := NewResponseReader(string(dropNl(line)))
	r.SkipSpaces()
	if !r.Match('*') {
		return sum, false, nil
	}
	r.SkipSpaces()
	if _, err := r.ReadNumber(); err != nil {
		return sum, false, nil
	}
	r.SkipSpaces()
	a, err := r.ReadAtom()
	if err != nil || !strings.EqualFold(a, "FETCH") {
		return sum, false, nil
	}
	r.SkipSpaces()
	if err := r.SkipChar('('); err != nil {
		return sum, false, err
	}
	for {
		r.SkipSpaces()
		if r.Match(')') {
			break
		}
		if r.EOF() {
			return sum, false, &MalformedResponseError{Pos: r.Pos(), Msg: "unterminated fetch list"}
		}
		item, err := r.ReadAtom()
		if err != nil {
			return sum, false, err
		}
		r.SkipSpaces()
		switch strings.ToUpper(item) {
		case "UID":
			if sum.UID, err = r.ReadNZNumber(); err != nil {
				return sum, false, err
			}
		case "FLAGS":
			if sum.Flags, err = readFlagList(r); err != nil {
				return sum, false, err
			}
		default:
			// skip any other data item's value
			if r.Peek() == '(' {
				if _, err = readFlagList(r); err != nil {
					return sum, false, err
				}
			} else {
				r.ReadText(" )")
			}
		}
	}
	return sum, sum.UID != 0, nil
}

// FetchMessage fetches one message's full body by UID.
func (d *Dialer) FetchMessage(uid uint64) (body []byte, err error) {
	found := false
	_, _, err = d.Exec(fmt.Sprintf("UID FETCH %d BODY.PEEK[]", uid), false, RetryCount, func(line []byte) error {
		if found || !bytes.HasPrefix(line, []byte("* ")) {
			return nil
		}
		loc := bodyLiteralRE.FindSubmatchIndex(line)
		if loc == nil {
			return nil
		}
		n, convErr := strconv.Atoi(string(line[loc[2]:loc[3]]))
		if convErr != nil {
			return convErr
		}
		start := loc[1]
		end := start + n
		if end > len(line) {
			end = len(line)
		}
		body = make([]byte, end-start)
		copy(body, line[start:end])
		found = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("message %d not found in %q", uid, d.Folder)
	}
	return body, nil
}

// SetFlagsUIDs sets and clears flags for every message in the UID set.
func (d *Dialer) SetFlagsUIDs(uidSet string, flags Flags) (err error) {
	// craft the flags-string
	addFlags := []string{}
	removeFlags := []string{}

	v := reflect.ValueOf(flags)
	t := reflect.TypeOf(flags)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		value := v.Field(i)

		if field.Type == reflect.TypeOf(FlagUnset) {
			switch FlagSet(value.Int()) {
			case FlagAdd:
				addFlags = append(addFlags, `\`+field.Name)
			case FlagRemove:
				removeFlags = append(removeFlags, `\`+field.Name)
			case FlagUnset:
			}
		}
	}

	// iterate over the keyword-map and add those too to the slices
	for keyword, state := range flags.Keywords {
		if state {
			addFlags = append(addFlags, keyword)
		} else {
			removeFlags = append(removeFlags, keyword)
		}
	}

	if len(addFlags) == 0 && len(removeFlags) == 0 {
		return nil
	}

	query := "UID STORE " + uidSet
	if len(addFlags) > 0 {
		query += fmt.Sprintf(` +FLAGS (%s)`, strings.Join(addFlags, " "))
	}
	if len(removeFlags) > 0 {
		query += fmt.Sprintf(` -FLAGS (%s)`, strings.Join(removeFlags, " "))
	}

	_, _, err = d.Exec(query, false, RetryCount, nil)
	return err
}

// Append uploads a message to the named folder. The returned result is
// non-nil only when the server supports UIDPLUS and reported the
// assigned UID.
func (d *Dialer) Append(folder string, body []byte, flags []string, date time.Time) (*AppendResult, error) {
	cmd := `APPEND "` + AddSlashes.Replace(folder) + `"`
	if len(flags) > 0 {
		cmd += " (" + strings.Join(flags, " ") + ")"
	}
	if !date.IsZero() {
		cmd += ` "` + date.Format(TimeFormat) + `"`
	}
	cmd += fmt.Sprintf(" {%d}", len(body))

	status, err := d.execWithLiteral(cmd, body)
	if err != nil {
		return nil, err
	}
	debugLog(d.ConnNum, folder, "appended message", "size", humanBytes(len(body)))
	if status != nil && status.Code == CodeAppendUID {
		return status.Append, nil
	}
	return nil, nil
}

// CopyUIDs copies a UID set into another folder. The returned result is
// non-nil only when the server supports UIDPLUS.
func (d *Dialer) CopyUIDs(uidSet string, folder string) (*CopyResult, error) {
	_, status, err := d.Exec(`UID COPY `+uidSet+` "`+AddSlashes.Replace(folder)+`"`, false, RetryCount, nil)
	if err != nil {
		return nil, err
	}
	if status != nil && status.Code == CodeCopyUID {
		return status.Copy, nil
	}
	return nil, nil
}

// Expunge permanently removes messages marked for deletion from the
// selected folder.
func (d *Dialer) Expunge() (err error) {
	_, _, err = d.Exec("EXPUNGE", false, RetryCount, nil)
	return err
}

// wordDecoder decodes encoded-word headers, resolving charsets the same
// way message bodies are decoded.
var wordDecoder = mime.WordDecoder{CharsetReader: func(label string, input io.Reader) (io.Reader, error) {
	label = strings.Replace(label, "windows-", "cp", -1)
	encoding, _ := charset.Lookup(label)
	if encoding == nil {
		return input, nil
	}
	return encoding.NewDecoder().Reader(input), nil
}}

// messageEnvelope extracts the Message-ID and decoded Subject from a raw
// message, falling back to a manual header scan when the body can't be
// parsed as MIME.
func messageEnvelope(body []byte) (messageID, subject string) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(body))
	if err == nil {
		return strings.Trim(env.GetHeader("Message-Id"), "<> "), env.GetHeader("Subject")
	}
	if Verbose {
		debugLog(-1, "", "message could not be parsed, scanning headers", "error", err)
		spew.Dump(err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break // end of headers
		}
		if id, ok := headerValue(line, "Message-Id"); ok {
			messageID = strings.Trim(id, "<> ")
		}
		if s, ok := headerValue(line, "Subject"); ok {
			if dec, derr := wordDecoder.DecodeHeader(s); derr == nil {
				subject = dec
			} else {
				subject = s
			}
		}
	}
	return messageID, subject
}

func headerValue(line, name string) (string, bool) {
	if len(line) <= len(name)+1 || !strings.EqualFold(line[:len(name)], name) || line[len(name)] != ':' {
		return "", false
	}
	return strings.TrimSpace(line[len(name)+1:]), true
}

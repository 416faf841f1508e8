package imapsync

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	retry "github.com/StirlingMarketingGroup/go-retry"
	"github.com/rs/xid"
)

const nl = "\r\n"

// literalRE matches a server-side literal marker at the end of a line,
// e.g. a LIST response carrying the folder name as {12}.
var literalRE = regexp.MustCompile(`{\d+}$`)

// ensureConnected fails fast when the connection is closed. A deliberate
// Close always surfaces as ErrNotConnected, never as a retry.
func (d *Dialer) ensureConnected() error {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if d.shutdown || !d.Connected || d.conn == nil {
		return ErrNotConnected
	}
	return nil
}

// parseTaggedStatus parses a tagged completion line with the tag already
// stripped. It returns the parsed resp-text for OK, or a
// *CommandRejectedError for NO/BAD.
func parseTaggedStatus(command string, line []byte) (status *ResponseText, rejected *CommandRejectedError, err error) {
	r := NewResponseReader(string(line))
	r.SkipSpaces()
	cond, err := r.ReadAtom()
	if err != nil {
		return nil, nil, err
	}
	rt, err := ReadResponseText(r)
	if err != nil {
		return nil, nil, err
	}
	switch strings.ToUpper(cond) {
	case "OK":
		return rt, nil, nil
	case "NO", "BAD":
		return nil, &CommandRejectedError{Command: command, Status: strings.ToUpper(cond), Resp: rt}, nil
	}
	return nil, nil, fmt.Errorf("unexpected tagged condition %q in %q", cond, line)
}

// Exec executes an IMAP command with retry logic and response building.
// The returned status is the parsed resp-text of the tagged OK line;
// tagged NO/BAD surfaces as *CommandRejectedError without retrying.
func (d *Dialer) Exec(command string, buildResponse bool, retryCount int, processLine func(line []byte) error) (response string, status *ResponseText, err error) {
	var resp strings.Builder
	var rejected *CommandRejectedError
	var notConnected bool
	err = retry.Retry(func() (err error) {
		if err = d.ensureConnected(); err != nil {
			notConnected = true
			return nil
		}

		tag := []byte(strings.ToUpper(xid.New().String()))

		if CommandTimeout != 0 {
			_ = d.conn.SetDeadline(time.Now().Add(CommandTimeout))
			defer func() { _ = d.conn.SetDeadline(time.Time{}) }()
		}

		c := fmt.Sprintf("%s %s%s", tag, command, nl)

		if Verbose {
			sanitized := strings.ReplaceAll(strings.TrimSpace(c), fmt.Sprintf(`"%s"`, d.Password), `"****"`)
			debugLog(d.ConnNum, d.Folder, "sending command", "command", sanitized)
		}

		_, err = d.conn.Write([]byte(c))
		if err != nil {
			return err
		}

		r := bufio.NewReader(d.conn)

		if buildResponse {
			resp = strings.Builder{}
		}
		var line []byte
		for err == nil {
			line, err = r.ReadBytes('\n')
			if err != nil {
				break
			}
			for {
				// A trailing {n} means the next n bytes are a literal
				// belonging to this same response line.
				if a := literalRE.Find(dropNl(line)); a != nil {
					var n int
					n, err = strconv.Atoi(string(a[1 : len(a)-1]))
					if err != nil {
						return err
					}

					buf := make([]byte, n)
					_, err = io.ReadFull(r, buf)
					if err != nil {
						return err
					}
					line = append(line, buf...)

					buf, err = r.ReadBytes('\n')
					if err != nil {
						return err
					}
					line = append(line, buf...)

					continue
				}
				break
			}

			if Verbose && !SkipResponses {
				debugLog(d.ConnNum, d.Folder, "server response", "response", string(dropNl(line)))
			}

			// XID tags are 20 uppercase base32hex characters (0-9, A-V).
			taglen := len(tag)
			if len(line) > taglen && bytes.Equal(line[:taglen], tag) && line[taglen] == ' ' {
				st, rej, perr := parseTaggedStatus(command, line[taglen+1:])
				if perr != nil {
					return perr
				}
				if rej != nil {
					rejected = rej
					return nil
				}
				status = st
				break
			}

			if processLine != nil {
				if err = processLine(line); err != nil {
					return err
				}
			}
			if buildResponse {
				resp.Write(line)
			}
		}
		return err
	}, retryCount, func(err error) error {
		if notConnected || rejected != nil {
			return err
		}
		if Verbose {
			warnLog(d.ConnNum, d.Folder, "command failed, closing connection", "error", err)
		}
		d.drop()
		return nil
	}, func() error {
		return d.Reconnect()
	})
	if notConnected {
		return "", nil, ErrNotConnected
	}
	if rejected != nil {
		return "", nil, rejected
	}
	if err != nil {
		errorLog(d.ConnNum, d.Folder, "command retries exhausted", "error", err)
		return "", nil, err
	}

	if buildResponse {
		return resp.String(), status, nil
	}
	return "", status, nil
}

// execWithLiteral executes a command whose final argument is a literal
// (APPEND). The command must end with the {n} marker; the literal is sent
// after the server's "+" continuation request.
func (d *Dialer) execWithLiteral(command string, literal []byte) (status *ResponseText, err error) {
	if err = d.ensureConnected(); err != nil {
		return nil, err
	}

	tag := []byte(strings.ToUpper(xid.New().String()))

	if CommandTimeout != 0 {
		_ = d.conn.SetDeadline(time.Now().Add(CommandTimeout))
		defer func() { _ = d.conn.SetDeadline(time.Time{}) }()
	}

	if Verbose {
		debugLog(d.ConnNum, d.Folder, "sending command", "command", command, "literal", humanBytes(len(literal)))
	}

	if _, err = d.conn.Write([]byte(fmt.Sprintf("%s %s%s", tag, command, nl))); err != nil {
		return nil, err
	}

	r := bufio.NewReader(d.conn)
	var line []byte
	sent := false
	for {
		line, err = r.ReadBytes('\n')
		if err != nil {
			d.drop()
			return nil, err
		}

		if Verbose && !SkipResponses {
			debugLog(d.ConnNum, d.Folder, "server response", "response", string(dropNl(line)))
		}

		if !sent && len(line) > 0 && line[0] == '+' {
			if _, err = d.conn.Write(literal); err != nil {
				d.drop()
				return nil, err
			}
			if _, err = d.conn.Write([]byte(nl)); err != nil {
				d.drop()
				return nil, err
			}
			sent = true
			continue
		}

		taglen := len(tag)
		if len(line) > taglen && bytes.Equal(line[:taglen], tag) && line[taglen] == ' ' {
			st, rej, perr := parseTaggedStatus(command, line[taglen+1:])
			if perr != nil {
				return nil, perr
			}
			if rej != nil {
				return nil, rej
			}
			return st, nil
		}
	}
}

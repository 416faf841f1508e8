package imapsync

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	retry "github.com/StirlingMarketingGroup/go-retry"
)

var (
	nextConnNum      = 0
	nextConnNumMutex = sync.RWMutex{}
)

// Dialer represents an IMAP connection
type Dialer struct {
	conn         *tls.Conn
	Folder       string
	ReadOnly     bool
	Username     string
	Password     string
	Host         string
	Port         int
	Connected    bool
	ConnNum      int
	Capabilities []string
	stateMu      sync.Mutex
	// shutdown is set by Close; it stops the retry machinery from
	// resurrecting a deliberately closed connection.
	shutdown bool
	// useXOAUTH2 indicates whether XOAUTH2 authentication should be used
	// on (re)connection instead of LOGIN. It is set by NewWithOAuth2.
	useXOAUTH2 bool
}

// dialHost establishes a TLS connection to the IMAP server
func dialHost(host string, port int) (*tls.Conn, error) {
	dialer := &net.Dialer{Timeout: DialTimeout}
	var cfg *tls.Config
	if TLSSkipVerify {
		cfg = &tls.Config{InsecureSkipVerify: true}
	}
	return tls.DialWithDialer(dialer, "tcp", host+":"+strconv.Itoa(port), cfg)
}

// New creates a new IMAP connection using username/password authentication
func New(username string, password string, host string, port int) (d *Dialer, err error) {
	return newDialer(username, password, host, port, false)
}

// NewWithOAuth2 creates a new IMAP connection using OAuth2 authentication
func NewWithOAuth2(username string, accessToken string, host string, port int) (d *Dialer, err error) {
	return newDialer(username, accessToken, host, port, true)
}

func newDialer(username string, secret string, host string, port int, useXOAUTH2 bool) (d *Dialer, err error) {
	nextConnNumMutex.Lock()
	connNum := nextConnNum
	nextConnNum++
	nextConnNumMutex.Unlock()

	// Retry only the connection establishment, not authentication
	err = retry.Retry(func() (err error) {
		debugLog(connNum, "", "establishing connection")
		var conn *tls.Conn
		conn, err = dialHost(host, port)
		if err != nil {
			debugLog(connNum, "", "failed to connect", "error", err)
			return err
		}
		d = &Dialer{
			conn:       conn,
			Username:   username,
			Password:   secret,
			Host:       host,
			Port:       port,
			Connected:  true,
			ConnNum:    connNum,
			useXOAUTH2: useXOAUTH2,
		}
		if err = d.handshake(); err != nil {
			d.drop()
			return err
		}
		return nil
	}, RetryCount, func(err error) error {
		debugLog(connNum, "", "failed to connect, retrying shortly")
		if d != nil {
			d.drop()
		}
		return nil
	}, func() error {
		debugLog(connNum, "", "retrying connection now")
		return nil
	})
	if err != nil {
		errorLog(connNum, "", "failed to establish connection", "error", err)
		return nil, err
	}

	// Authenticate after connection is established - no retry for auth failures
	if useXOAUTH2 {
		err = d.Authenticate(username, secret)
	} else {
		err = d.Login(username, secret)
	}
	if err != nil {
		errorLog(connNum, "", "authentication failed", "error", err)
		_ = d.Close()
		return nil, err
	}

	return d, nil
}

// handshake reads the server greeting and records any capabilities it
// advertises. When the greeting carries none, an explicit CAPABILITY
// command fills them in.
func (d *Dialer) handshake() error {
	if CommandTimeout != 0 {
		_ = d.conn.SetDeadline(time.Now().Add(CommandTimeout))
		defer func() { _ = d.conn.SetDeadline(time.Time{}) }()
	}

	line, err := bufio.NewReader(d.conn).ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading greeting: %w", err)
	}
	if Verbose && !SkipResponses {
		debugLog(d.ConnNum, "", "server greeting", "response", strings.TrimSpace(line))
	}

	r := NewResponseReader(line)
	r.SkipSpaces()
	if err := r.SkipChar('*'); err != nil {
		return err
	}
	r.SkipSpaces()
	status, err := r.ReadAtom()
	if err != nil {
		return err
	}
	rt, err := ReadResponseText(r)
	if err != nil {
		return err
	}
	if strings.EqualFold(status, "BYE") {
		return fmt.Errorf("server refused connection: %s", rt.Text)
	}
	if rt.Code == CodeCapability {
		d.Capabilities = rt.Capabilities
		return nil
	}
	return d.fetchCapabilities()
}

// fetchCapabilities issues CAPABILITY and records the advertised set.
func (d *Dialer) fetchCapabilities() error {
	_, _, err := d.Exec("CAPABILITY", false, RetryCount, func(line []byte) error {
		r := NewResponseReader(string(line))
		r.SkipSpaces()
		if !r.Match('*') {
			return nil
		}
		r.SkipSpaces()
		a, err := r.ReadAtom()
		if err != nil || !strings.EqualFold(a, "CAPABILITY") {
			return nil
		}
		d.Capabilities = readCapabilities(r)
		return nil
	})
	return err
}

// HasCapability reports whether the server advertised the named
// capability (e.g. "UIDPLUS"), case-insensitively.
func (d *Dialer) HasCapability(name string) bool {
	for _, c := range d.Capabilities {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// IsClosed reports whether the connection is closed.
func (d *Dialer) IsClosed() bool {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return !d.Connected
}

// Close shuts the connection down for good. Any in-flight or later
// operation fails with ErrNotConnected; this is the only cancellation
// primitive.
func (d *Dialer) Close() error {
	d.stateMu.Lock()
	d.shutdown = true
	d.stateMu.Unlock()
	d.drop()
	return nil
}

// drop closes the socket without forbidding a reconnect.
func (d *Dialer) drop() {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if d.conn != nil {
		_ = d.conn.Close()
	}
	d.Connected = false
}

// Reconnect re-dials, re-authenticates, and restores the selected folder
// after a transient drop. It refuses to resurrect a connection that was
// deliberately closed.
func (d *Dialer) Reconnect() error {
	d.stateMu.Lock()
	if d.shutdown {
		d.stateMu.Unlock()
		return ErrNotConnected
	}
	d.stateMu.Unlock()

	debugLog(d.ConnNum, d.Folder, "reconnecting")
	conn, err := dialHost(d.Host, d.Port)
	if err != nil {
		return err
	}
	d.stateMu.Lock()
	d.conn = conn
	d.Connected = true
	d.stateMu.Unlock()

	if err = d.handshake(); err != nil {
		d.drop()
		return err
	}
	if d.useXOAUTH2 {
		err = d.Authenticate(d.Username, d.Password)
	} else {
		err = d.Login(d.Username, d.Password)
	}
	if err != nil {
		d.drop()
		return err
	}

	if d.Folder != "" {
		folder := d.Folder
		if d.ReadOnly {
			err = d.ExamineFolder(folder)
		} else {
			_, err = d.SelectFolder(folder)
		}
		if err != nil {
			d.drop()
			return err
		}
	}
	return nil
}

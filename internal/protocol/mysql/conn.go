package mysql

import (
	"bufio"
	"net"
	"strings"
	"time"

	"github.com/yamlbase/yamlbase/internal/dberrors"
	"github.com/yamlbase/yamlbase/internal/engine"
	"github.com/yamlbase/yamlbase/internal/logging"
	"github.com/yamlbase/yamlbase/internal/sqlfront"
	"github.com/yamlbase/yamlbase/internal/storage"
)

// Auth is the username/password pair a connection's handshake response is
// checked against (spec §4.7). An empty Username accepts any client.
type Auth struct {
	Username string
	Password string
}

const serverVersion = "8.0.34-yamlbase"

const (
	comQuit   = 0x01
	comInitDB = 0x02
	comQuery  = 0x03
	comPing   = 0x0e
)

var nextConnID uint32

type conn struct {
	nc      net.Conn
	pc      *packetConn
	storage *storage.Storage
	auth    Auth
	timeout time.Duration
	log     logging.QueryLogger
}

// Serve drives one MySQL connection: the handshake v10 greeting,
// caching_sha2_password (falling back to mysql_native_password) auth, then
// the COM_QUERY command loop, until the client disconnects or sends
// COM_QUIT.
func Serve(nc net.Conn, s *storage.Storage, auth Auth, timeout time.Duration, log logging.QueryLogger) error {
	pc := newPacketConn(bufio.NewReader(nc), bufio.NewWriter(nc))
	c := &conn{nc: nc, pc: pc, storage: s, auth: auth, timeout: timeout, log: log}
	defer nc.Close()
	if err := c.handshake(); err != nil {
		return err
	}
	return c.commandLoop()
}

func (c *conn) handshake() error {
	nextConnID++
	connID := nextConnID

	scramble, err := newScramble()
	if err != nil {
		return err
	}
	if err := c.pc.writePacket(serverGreeting(connID, scramble, serverVersion)); err != nil {
		return err
	}
	if err := c.pc.flush(); err != nil {
		return err
	}

	body, err := c.pc.readPacket()
	if err != nil {
		return err
	}
	resp, err := parseHandshakeResponse(body)
	if err != nil {
		return err
	}

	if c.auth.Username != "" && resp.username != c.auth.Username {
		return c.rejectAuth(resp.username)
	}

	switch resp.authPlugin {
	case pluginNative:
		return c.finishAuth(resp.username, bytesEqual(resp.authResponse, nativeAuthResponse(c.auth.Password, scramble[:])))
	case "", pluginCachingSha2:
		return c.cachingSha2Auth(resp, scramble)
	default:
		return c.switchToNative(resp.username)
	}
}

// cachingSha2Auth drives the staged caching_sha2_password flow (spec
// §4.7): a fast-path XOR match against the handshake scramble, or — on
// mismatch or an empty initial response — a PERFORM_FULL_AUTH round trip
// that reads the password in cleartext, matching
// original_source's mysql_caching_sha2.rs state machine.
func (c *conn) cachingSha2Auth(resp *handshakeResponse, scramble [20]byte) error {
	expected := cachingSha2AuthResponse(c.auth.Password, scramble[:])
	if len(resp.authResponse) > 0 && bytesEqual(resp.authResponse, expected) {
		if err := c.pc.writePacket(authMoreDataPacket(pluginFastAuthOK)); err != nil {
			return err
		}
		if err := c.pc.flush(); err != nil {
			return err
		}
		return c.finishAuth(resp.username, true)
	}

	if err := c.pc.writePacket(authMoreDataPacket(pluginFullAuth)); err != nil {
		return err
	}
	if err := c.pc.flush(); err != nil {
		return err
	}
	full, err := c.pc.readPacket()
	if err != nil {
		return err
	}
	cleartext := strings.TrimSuffix(string(full), "\x00")
	return c.finishAuth(resp.username, cleartext == c.auth.Password)
}

// switchToNative asks a client that declared neither supported plugin to
// reauthenticate via mysql_native_password (spec §4.7).
func (c *conn) switchToNative(username string) error {
	scramble, err := newScramble()
	if err != nil {
		return err
	}
	if err := c.pc.writePacket(authSwitchRequestPacket(pluginNative, scramble[:])); err != nil {
		return err
	}
	if err := c.pc.flush(); err != nil {
		return err
	}
	authResp, err := c.pc.readPacket()
	if err != nil {
		return err
	}
	return c.finishAuth(username, bytesEqual(authResp, nativeAuthResponse(c.auth.Password, scramble[:])))
}

func (c *conn) finishAuth(username string, ok bool) error {
	if c.auth.Username == "" {
		ok = true
	}
	if !ok {
		return c.rejectAuth(username)
	}
	if err := c.pc.writePacket(okPacket(0)); err != nil {
		return err
	}
	return c.pc.flush()
}

func (c *conn) rejectAuth(username string) error {
	authErr := dberrors.New(dberrors.KindAuth, "Access denied for user %q", username)
	if err := c.pc.writePacket(errPacket(authErr)); err != nil {
		return err
	}
	c.pc.flush()
	return authErr
}

// commandLoop services COM_QUERY/COM_PING/COM_INIT_DB/COM_QUIT until the
// client disconnects. A SQL-level query error sends an ERR packet and
// keeps the connection open for the next command; only an I/O failure
// ends the loop.
func (c *conn) commandLoop() error {
	for {
		c.pc.resetSeq()
		body, err := c.pc.readPacket()
		if err != nil {
			return err
		}
		if len(body) == 0 {
			continue
		}
		switch body[0] {
		case comQuit:
			return nil
		case comPing, comInitDB:
			if err := c.sendOK(); err != nil {
				return err
			}
		case comQuery:
			if err := c.handleQuery(string(body[1:])); err != nil {
				return err
			}
		default:
			if err := c.sendErr(dberrors.New(dberrors.KindProtocol, "unsupported command 0x%02x", body[0])); err != nil {
				return err
			}
		}
	}
}

func (c *conn) handleQuery(sql string) error {
	if c.log != nil {
		c.log.Printf("query: %s", sql)
	}
	stmt, err := sqlfront.Parse(sql)
	if err != nil {
		return c.sendErr(err)
	}
	lease := c.storage.Reader()
	defer lease.Release()
	ex := engine.New(c.storage, lease.Database(), c.timeout)
	result, err := ex.Execute(stmt)
	if err != nil {
		return c.sendErr(err)
	}
	if len(result.Columns) == 0 {
		return c.sendOK()
	}
	return c.sendResultSet(result)
}

func (c *conn) sendErr(err error) error {
	if werr := c.pc.writePacket(errPacket(err)); werr != nil {
		return werr
	}
	return c.pc.flush()
}

func (c *conn) sendOK() error {
	if err := c.pc.writePacket(okPacket(0)); err != nil {
		return err
	}
	return c.pc.flush()
}

func (c *conn) sendResultSet(result *engine.QueryResult) error {
	if err := c.pc.writePacket(putLenencInt(nil, uint64(len(result.Columns)))); err != nil {
		return err
	}
	for _, col := range result.Columns {
		if err := c.pc.writePacket(columnDefPacket(col)); err != nil {
			return err
		}
	}
	if err := c.pc.writePacket(eofPacket()); err != nil {
		return err
	}
	for _, row := range result.Rows {
		if err := c.pc.writePacket(textRowPacket(row)); err != nil {
			return err
		}
	}
	if err := c.pc.writePacket(eofPacket()); err != nil {
		return err
	}
	return c.pc.flush()
}

package postgres

import (
	"bufio"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/yamlbase/yamlbase/internal/dberrors"
	"github.com/yamlbase/yamlbase/internal/engine"
	"github.com/yamlbase/yamlbase/internal/logging"
	"github.com/yamlbase/yamlbase/internal/sqlfront"
	"github.com/yamlbase/yamlbase/internal/storage"
	"github.com/yamlbase/yamlbase/internal/value"
)

// Auth is the username/password pair a connection's startup cleartext
// password message is checked against (spec §4.6).
type Auth struct {
	Username string
	Password string
}

type preparedStmt struct {
	text      string
	paramOIDs []int32
}

type portal struct {
	stmt   preparedStmt
	params []value.Value
}

type conn struct {
	nc      net.Conn
	r       *bufio.Reader
	w       *bufio.Writer
	storage *storage.Storage
	auth    Auth
	timeout time.Duration
	log     logging.QueryLogger

	preparedStmts map[string]preparedStmt
	portals       map[string]portal
}

// Serve drives one PostgreSQL connection (startup, auth, then the simple
// and extended query cycles) until the client terminates or disconnects.
func Serve(nc net.Conn, s *storage.Storage, auth Auth, timeout time.Duration, log logging.QueryLogger) error {
	c := &conn{
		nc:            nc,
		r:             bufio.NewReader(nc),
		w:             bufio.NewWriter(nc),
		storage:       s,
		auth:          auth,
		timeout:       timeout,
		log:           log,
		preparedStmts: make(map[string]preparedStmt),
		portals:       make(map[string]portal),
	}
	defer nc.Close()
	if err := c.handshake(); err != nil {
		return err
	}
	return c.loop()
}

// handshake consumes StartupMessage(s) (looping once past a rejected
// SSLRequest), challenges for a cleartext password, and on success sends
// AuthenticationOk/ParameterStatus/BackendKeyData/ReadyForQuery (spec §4.6).
func (c *conn) handshake() error {
	var params map[string]string
	for {
		p, isSSL, err := readStartup(c.r)
		if err != nil {
			return err
		}
		if isSSL {
			if _, err := c.nc.Write([]byte{'N'}); err != nil {
				return err
			}
			continue
		}
		params = p
		break
	}

	if err := writeMessage(c.w, 'R', authCleartextBody()); err != nil {
		return err
	}
	if err := c.w.Flush(); err != nil {
		return err
	}
	msg, err := readMessage(c.r)
	if err != nil {
		return err
	}
	if msg.Type != 'p' {
		return dberrors.New(dberrors.KindProtocol, "expected PasswordMessage, got %q", msg.Type)
	}
	password := strings.TrimSuffix(string(msg.Body), "\x00")
	username := params["user"]
	if c.auth.Username != "" && (username != c.auth.Username || password != c.auth.Password) {
		authErr := dberrors.New(dberrors.KindAuth, "password authentication failed for user %q", username)
		if err := writeMessage(c.w, 'E', errorResponseBody(authErr)); err != nil {
			return err
		}
		c.w.Flush()
		return authErr
	}

	if err := writeMessage(c.w, 'R', authOkBody()); err != nil {
		return err
	}
	if err := writeMessage(c.w, 'S', paramStatusBody("server_version", "13.0 (yamlbase)")); err != nil {
		return err
	}
	if err := writeMessage(c.w, 'K', backendKeyBody()); err != nil {
		return err
	}
	if err := writeMessage(c.w, 'Z', []byte{'I'}); err != nil {
		return err
	}
	return c.w.Flush()
}

// loop services Query/Parse/Bind/Describe/Execute/Sync/Close/Terminate
// messages until the connection ends. A SQL-level error ends the current
// extended-query exchange (ErrorResponse, then ignore messages up to the
// next Sync) without closing the socket. An I/O failure, an unsupported
// message type, or an error with no dberrors kind ends the connection.
func (c *conn) loop() error {
	skipping := false
	for {
		msg, err := readMessage(c.r)
		if err != nil {
			return err
		}
		if skipping {
			switch msg.Type {
			case 'S':
				skipping = false
				if err := writeMessage(c.w, 'Z', []byte{'I'}); err != nil {
					return err
				}
				if err := c.w.Flush(); err != nil {
					return err
				}
			case 'X':
				return nil
			}
			continue
		}

		var herr error
		switch msg.Type {
		case 'Q':
			herr = c.simpleQuery(trimNull(msg.Body))
			if herr != nil {
				return herr
			}
			continue
		case 'P':
			herr = c.handleParse(msg.Body)
		case 'B':
			herr = c.handleBind(msg.Body)
		case 'D':
			herr = c.handleDescribe(msg.Body)
		case 'E':
			herr = c.handleExecute(msg.Body)
		case 'H':
			herr = c.w.Flush()
		case 'S':
			if err := writeMessage(c.w, 'Z', []byte{'I'}); err != nil {
				return err
			}
			herr = c.w.Flush()
		case 'C':
			herr = c.handleClose(msg.Body)
		case 'X':
			return nil
		default:
			return dberrors.New(dberrors.KindProtocol, "unsupported message type %q", msg.Type)
		}
		if herr != nil {
			if _, ok := dberrors.KindOf(herr); !ok {
				return herr
			}
			if werr := writeMessage(c.w, 'E', errorResponseBody(herr)); werr != nil {
				return werr
			}
			if werr := c.w.Flush(); werr != nil {
				return werr
			}
			skipping = true
		}
	}
}

func trimNull(b []byte) string {
	return strings.TrimSuffix(string(b), "\x00")
}

// simpleQuery runs every statement in sql (spec §4.6's simple query
// cycle), sending RowDescription/DataRow*/CommandComplete per statement
// and a single ReadyForQuery at the end regardless of outcome.
func (c *conn) simpleQuery(sql string) error {
	stmts, err := sqlfront.ParseAll(sql)
	if err != nil {
		if werr := writeMessage(c.w, 'E', errorResponseBody(err)); werr != nil {
			return werr
		}
		return c.readyForQuery()
	}
	if len(stmts) == 0 {
		if err := writeMessage(c.w, 'I', nil); err != nil {
			return err
		}
		return c.readyForQuery()
	}
	for _, stmt := range stmts {
		if c.log != nil {
			c.log.Printf("query: %s", sql)
		}
		if err := c.runAndSend(stmt); err != nil {
			if werr := writeMessage(c.w, 'E', errorResponseBody(err)); werr != nil {
				return werr
			}
			break
		}
	}
	return c.readyForQuery()
}

func (c *conn) readyForQuery() error {
	if err := writeMessage(c.w, 'Z', []byte{'I'}); err != nil {
		return err
	}
	return c.w.Flush()
}

func (c *conn) runAndSend(stmt *sqlfront.ParsedStatement) error {
	lease := c.storage.Reader()
	defer lease.Release()
	ex := engine.New(c.storage, lease.Database(), c.timeout)
	result, err := ex.Execute(stmt)
	if err != nil {
		return err
	}
	if len(result.Columns) > 0 {
		if err := writeMessage(c.w, 'T', rowDescriptionBody(result.Columns)); err != nil {
			return err
		}
		for _, row := range result.Rows {
			if err := writeMessage(c.w, 'D', dataRowBody(row)); err != nil {
				return err
			}
		}
	}
	return writeMessage(c.w, 'C', cstringBody(commandTag(result)))
}

func commandTag(r *engine.QueryResult) string {
	if r.Command == "SELECT" {
		return fmt.Sprintf("SELECT %d", len(r.Rows))
	}
	return r.Command
}

func (c *conn) handleParse(body []byte) error {
	r := &reader{b: body}
	name := r.cstring()
	query := r.cstring()
	n := r.int16()
	oids := make([]int32, n)
	for i := range oids {
		oids[i] = r.int32()
	}
	c.preparedStmts[name] = preparedStmt{text: query, paramOIDs: oids}
	return writeMessage(c.w, '1', nil)
}

func (c *conn) handleBind(body []byte) error {
	r := &reader{b: body}
	portalName := r.cstring()
	stmtName := r.cstring()
	stmt, ok := c.preparedStmts[stmtName]
	if !ok {
		return dberrors.New(dberrors.KindProtocol, "unknown prepared statement %q", stmtName)
	}

	numFormats := r.int16()
	formats := make([]int16, numFormats)
	for i := range formats {
		formats[i] = r.int16()
	}
	formatFor := func(i int) int16 {
		switch {
		case len(formats) == 0:
			return 0
		case len(formats) == 1:
			return formats[0]
		default:
			return formats[i]
		}
	}

	numParams := r.int16()
	params := make([]value.Value, numParams)
	for i := 0; i < int(numParams); i++ {
		length := r.int32()
		if length < 0 {
			params[i] = value.Null()
			continue
		}
		raw := r.bytes(int(length))
		oid := int32(0)
		if i < len(stmt.paramOIDs) {
			oid = stmt.paramOIDs[i]
		}
		v, err := decodeParam(raw, formatFor(i), oid)
		if err != nil {
			return err
		}
		params[i] = v
	}

	numResultFormats := r.int16()
	for i := int16(0); i < numResultFormats; i++ {
		r.int16()
	}

	c.portals[portalName] = portal{stmt: stmt, params: params}
	return writeMessage(c.w, '2', nil)
}

func (c *conn) handleDescribe(body []byte) error {
	r := &reader{b: body}
	kind := r.byte1()
	name := r.cstring()
	switch kind {
	case 'S':
		stmt, ok := c.preparedStmts[name]
		if !ok {
			return dberrors.New(dberrors.KindProtocol, "unknown prepared statement %q", name)
		}
		if err := writeMessage(c.w, 't', paramDescriptionBody(stmt.paramOIDs)); err != nil {
			return err
		}
		cols, err := c.describeColumns(stmt.text, nil)
		if err != nil {
			return err
		}
		return c.sendRowDescriptionOrNoData(cols)
	case 'P':
		p, ok := c.portals[name]
		if !ok {
			return dberrors.New(dberrors.KindProtocol, "unknown portal %q", name)
		}
		cols, err := c.describeColumns(p.stmt.text, p.params)
		if err != nil {
			return err
		}
		return c.sendRowDescriptionOrNoData(cols)
	default:
		return dberrors.New(dberrors.KindProtocol, "unknown describe target %q", kind)
	}
}

func (c *conn) sendRowDescriptionOrNoData(cols []engine.ColumnDescriptor) error {
	if len(cols) == 0 {
		return writeMessage(c.w, 'n', nil)
	}
	return writeMessage(c.w, 'T', rowDescriptionBody(cols))
}

func (c *conn) describeColumns(text string, params []value.Value) ([]engine.ColumnDescriptor, error) {
	result, err := c.executeSubstituted(text, params)
	if err != nil {
		return nil, err
	}
	return result.Columns, nil
}

func (c *conn) handleExecute(body []byte) error {
	r := &reader{b: body}
	name := r.cstring()
	r.int32() // max rows to return: unsupported, every row is always sent
	p, ok := c.portals[name]
	if !ok {
		return dberrors.New(dberrors.KindProtocol, "unknown portal %q", name)
	}
	result, err := c.executeSubstituted(p.stmt.text, p.params)
	if err != nil {
		return err
	}
	for _, row := range result.Rows {
		if err := writeMessage(c.w, 'D', dataRowBody(row)); err != nil {
			return err
		}
	}
	return writeMessage(c.w, 'C', cstringBody(commandTag(result)))
}

func (c *conn) executeSubstituted(text string, params []value.Value) (*engine.QueryResult, error) {
	substituted, err := substituteParams(text, params)
	if err != nil {
		return nil, err
	}
	if c.log != nil {
		c.log.Printf("query: %s", substituted)
	}
	stmt, err := sqlfront.Parse(substituted)
	if err != nil {
		return nil, err
	}
	lease := c.storage.Reader()
	defer lease.Release()
	ex := engine.New(c.storage, lease.Database(), c.timeout)
	return ex.Execute(stmt)
}

func (c *conn) handleClose(body []byte) error {
	r := &reader{b: body}
	kind := r.byte1()
	name := r.cstring()
	if kind == 'S' {
		delete(c.preparedStmts, name)
	} else {
		delete(c.portals, name)
	}
	return writeMessage(c.w, '3', nil)
}

// paramRe matches positional $n placeholders in a prepared statement's
// text, substituted with the bound parameter's SQL literal form since the
// query engine has no native bind-parameter plumbing (spec §4.6).
var paramRe = regexp.MustCompile(`\$(\d+)`)

func substituteParams(text string, params []value.Value) (string, error) {
	var substErr error
	out := paramRe.ReplaceAllStringFunc(text, func(m string) string {
		idx, _ := strconv.Atoi(m[1:])
		if idx < 1 || idx > len(params) {
			substErr = dberrors.New(dberrors.KindProtocol, "parameter %s has no bound value", m)
			return m
		}
		lit, err := sqlLiteral(params[idx-1])
		if err != nil {
			substErr = err
			return m
		}
		return lit
	})
	if substErr != nil {
		return "", substErr
	}
	return out, nil
}

func sqlLiteral(v value.Value) (string, error) {
	if v.IsNull() {
		return "NULL", nil
	}
	switch v.Kind {
	case value.KindInteger, value.KindFloat, value.KindDecimal:
		return v.String(), nil
	case value.KindBoolean:
		if v.Boolean {
			return "TRUE", nil
		}
		return "FALSE", nil
	default:
		return "'" + strings.ReplaceAll(v.String(), "'", "''") + "'", nil
	}
}

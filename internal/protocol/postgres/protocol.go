// Package postgres implements the PostgreSQL frontend/backend wire
// protocol (version 3) over a storage reader lease and the shared query
// engine (spec §4.6). It supports cleartext-password startup auth, the
// simple query cycle, and the Parse/Bind/Describe/Execute/Sync extended
// query cycle with positional $n parameters.
package postgres

import (
	"bufio"
	"encoding/binary"
	"io"
)

// message is one backend- or frontend-directed protocol message: a type
// byte (absent only for the very first StartupMessage) plus its body,
// already stripped of the 4-byte self-inclusive length prefix.
type message struct {
	Type byte
	Body []byte
}

const sslRequestCode = 80877103

// readStartup reads the connection's first message, which has no leading
// type byte. isSSL reports an SSLRequest, which the caller must answer
// with a single 'N' byte (SSL is not offered) before the client resends a
// real StartupMessage.
func readStartup(r *bufio.Reader) (params map[string]string, isSSL bool, err error) {
	var length int32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, false, err
	}
	body := make([]byte, length-4)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, false, err
	}
	if len(body) < 4 {
		return nil, false, io.ErrUnexpectedEOF
	}
	version := int32(binary.BigEndian.Uint32(body[:4]))
	if version == sslRequestCode {
		return nil, true, nil
	}
	params = map[string]string{}
	parts := splitCStrings(body[4:])
	for i := 0; i+1 < len(parts); i += 2 {
		if parts[i] == "" {
			break
		}
		params[parts[i]] = parts[i+1]
	}
	return params, false, nil
}

func splitCStrings(b []byte) []string {
	var out []string
	start := 0
	for i, c := range b {
		if c == 0 {
			out = append(out, string(b[start:i]))
			start = i + 1
		}
	}
	return out
}

func readMessage(r *bufio.Reader) (message, error) {
	typ, err := r.ReadByte()
	if err != nil {
		return message{}, err
	}
	var length int32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return message{}, err
	}
	if length < 4 {
		return message{}, io.ErrUnexpectedEOF
	}
	body := make([]byte, length-4)
	if _, err := io.ReadFull(r, body); err != nil {
		return message{}, err
	}
	return message{Type: typ, Body: body}, nil
}

func writeMessage(w *bufio.Writer, typ byte, body []byte) error {
	if err := w.WriteByte(typ); err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)+4))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// reader walks a message body sequentially, the shape the Parse/Bind/
// Describe/Execute message decoders need.
type reader struct {
	b   []byte
	pos int
}

func (r *reader) cstring() string {
	start := r.pos
	for r.pos < len(r.b) && r.b[r.pos] != 0 {
		r.pos++
	}
	s := string(r.b[start:r.pos])
	r.pos++ // skip the NUL
	return s
}

func (r *reader) byte1() byte {
	b := r.b[r.pos]
	r.pos++
	return b
}

func (r *reader) int16() int16 {
	v := int16(binary.BigEndian.Uint16(r.b[r.pos:]))
	r.pos += 2
	return v
}

func (r *reader) int32() int32 {
	v := int32(binary.BigEndian.Uint32(r.b[r.pos:]))
	r.pos += 4
	return v
}

func (r *reader) bytes(n int) []byte {
	b := r.b[r.pos : r.pos+n]
	r.pos += n
	return b
}

// buf accumulates a message body being built up for writeMessage.
type buf struct {
	b []byte
}

func (b *buf) cstring(s string) *buf {
	b.b = append(b.b, s...)
	b.b = append(b.b, 0)
	return b
}

func (b *buf) byte1(v byte) *buf {
	b.b = append(b.b, v)
	return b
}

func (b *buf) int16(v int16) *buf {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], uint16(v))
	b.b = append(b.b, tmp[:]...)
	return b
}

func (b *buf) int32(v int32) *buf {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	b.b = append(b.b, tmp[:]...)
	return b
}

func (b *buf) bytes(v []byte) *buf {
	b.b = append(b.b, v...)
	return b
}

package mysql

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"

	"github.com/yamlbase/yamlbase/internal/dberrors"
)

// Capability flags (partial: only the bits this server needs to set or
// recognize). See the MySQL client/server protocol documentation.
const (
	capLongPassword     = 0x00000001
	capConnectWithDB    = 0x00000008
	capProtocol41       = 0x00000200
	capSecureConnection = 0x00008000
	capTransactions     = 0x00002000
	capPluginAuth       = 0x00080000
	capConnectAttrs     = 0x00100000
	capPluginAuthLenenc = 0x00200000
)

const serverCapabilities = capLongPassword | capProtocol41 | capSecureConnection |
	capTransactions | capPluginAuth | capConnectWithDB

const (
	authMoreData      = 0x01
	pluginFastAuthOK  = 0x03
	pluginFullAuth    = 0x04
	authSwitchRequest = 0xfe
)

const (
	pluginCachingSha2 = "caching_sha2_password"
	pluginNative      = "mysql_native_password"
)

// handshakeResponse is the parsed HandshakeResponse41 packet the client
// sends after the server's greeting.
type handshakeResponse struct {
	capabilities uint32
	username     string
	authResponse []byte
	database     string
	authPlugin   string
}

// serverGreeting builds the HandshakeV10 packet, advertising
// caching_sha2_password as the default auth plugin (spec §4.7). scramble
// is the 20-byte per-connection nonce used by both supported auth plugins.
func serverGreeting(connID uint32, scramble [20]byte, serverVersion string) []byte {
	b := make([]byte, 0, 128)
	b = append(b, 10) // protocol version
	b = append(b, serverVersion...)
	b = append(b, 0)
	var connIDBytes [4]byte
	putUint32(connIDBytes[:], connID)
	b = append(b, connIDBytes[:]...)
	b = append(b, scramble[:8]...)
	b = append(b, 0) // filler
	caps := uint32(serverCapabilities)
	b = append(b, byte(caps), byte(caps>>8))
	b = append(b, 0xff) // character set: utf8mb4-ish placeholder, charset negotiation unsupported
	b = append(b, 2, 0) // status flags: SERVER_STATUS_AUTOCOMMIT
	b = append(b, byte(caps>>16), byte(caps>>24))
	b = append(b, 21) // auth-plugin-data length: 20 byte scramble + NUL
	b = append(b, make([]byte, 10)...) // reserved
	b = append(b, scramble[8:]...)
	b = append(b, 0) // NUL terminating auth-plugin-data-part-2
	b = append(b, pluginCachingSha2...)
	b = append(b, 0)
	return b
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func newScramble() ([20]byte, error) {
	var s [20]byte
	if _, err := rand.Read(s[:]); err != nil {
		return s, err
	}
	// NUL and '\' bytes are disallowed in a scramble, matching every real
	// server implementation's generator.
	for i, c := range s {
		if c == 0 || c == '\\' {
			s[i] = 1
		}
	}
	return s, nil
}

// parseHandshakeResponse decodes a HandshakeResponse41 packet body.
func parseHandshakeResponse(body []byte) (*handshakeResponse, error) {
	if len(body) < 32 {
		return nil, dberrors.New(dberrors.KindProtocol, "short HandshakeResponse41 packet")
	}
	r := &reader{b: body}
	caps := r.uint32()
	r.uint32() // max packet size
	r.byte1()  // character set
	r.bytes(23) // reserved

	resp := &handshakeResponse{capabilities: caps}
	resp.username = r.cstring()

	switch {
	case caps&capPluginAuthLenenc != 0:
		resp.authResponse = []byte(r.lenencString())
	case caps&capSecureConnection != 0:
		n := int(r.byte1())
		resp.authResponse = r.bytes(n)
	default:
		resp.authResponse = []byte(r.cstring())
	}

	if caps&capConnectWithDB != 0 && !r.eof() {
		resp.database = r.cstring()
	}
	if caps&capPluginAuth != 0 && !r.eof() {
		resp.authPlugin = r.cstring()
	}
	return resp, nil
}

// nativeAuthResponse computes the mysql_native_password response:
// SHA1(password) XOR SHA1(scramble || SHA1(SHA1(password))).
func nativeAuthResponse(password string, scramble []byte) []byte {
	if password == "" {
		return nil
	}
	stage1 := sha1.Sum([]byte(password))
	stage2 := sha1.Sum(stage1[:])
	h := sha1.New()
	h.Write(scramble)
	h.Write(stage2[:])
	stage3 := h.Sum(nil)
	out := make([]byte, len(stage1))
	for i := range out {
		out[i] = stage1[i] ^ stage3[i]
	}
	return out
}

// cachingSha2AuthResponse computes the caching_sha2_password fast-auth
// response: SHA256(password) XOR SHA256(SHA256(SHA256(password)) || nonce)
// (spec §4.7, ported in spirit from original_source's
// mysql_caching_sha2.rs compute_auth_response).
func cachingSha2AuthResponse(password string, nonce []byte) []byte {
	if password == "" {
		return nil
	}
	stage1 := sha256.Sum256([]byte(password))
	stage2 := sha256.Sum256(stage1[:])
	h := sha256.New()
	h.Write(stage2[:])
	h.Write(nonce)
	stage3 := h.Sum(nil)
	out := make([]byte, len(stage1))
	for i := range out {
		out[i] = stage1[i] ^ stage3[i]
	}
	return out
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// authMoreDataPacket builds an AuthMoreData packet (0x01 status byte
// followed by a single sub-command byte), used for both
// PERFORM_FULL_AUTH and FAST_AUTH_SUCCESS.
func authMoreDataPacket(sub byte) []byte {
	return []byte{authMoreData, sub}
}

// authSwitchRequestPacket asks the client to reauthenticate with a
// different plugin (spec §4.7: clients that don't support
// caching_sha2_password fall back to mysql_native_password).
func authSwitchRequestPacket(plugin string, scramble []byte) []byte {
	b := make([]byte, 0, 1+len(plugin)+1+len(scramble)+1)
	b = append(b, authSwitchRequest)
	b = append(b, plugin...)
	b = append(b, 0)
	b = append(b, scramble...)
	b = append(b, 0)
	return b
}

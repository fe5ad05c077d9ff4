package goetherlink

import "encoding/binary"

// Typed payloads for the reserved system messages. Every payload has an
// explicit fixed layout (little-endian for multi-byte fields) and a decode
// helper that reports false when the buffer is shorter than the layout,
// instead of reinterpreting whatever bytes happen to be there.

// Error codes carried by MsgError.
const (
	ErrCodeUnknownMsg  byte = 0x01 // message id not handled by the peer
	ErrCodeBadPayload  byte = 0x02 // payload shorter than the expected layout
	ErrCodeUnsupported byte = 0x03 // operation not supported by the peer
)

// VersionPayload is the body of MsgVersion.
// Layout: Major(1) | Minor(1) | Build(2, little-endian).
type VersionPayload struct {
	Major byte
	Minor byte
	Build uint16
}

// Marshal encodes the payload in wire layout.
func (v VersionPayload) Marshal() []byte {
	buf := make([]byte, 4)
	buf[0] = v.Major
	buf[1] = v.Minor
	binary.LittleEndian.PutUint16(buf[2:], v.Build)
	return buf
}

// DecodeVersionPayload validates and decodes a MsgVersion body.
func DecodeVersionPayload(payload []byte) (VersionPayload, bool) {
	if len(payload) < 4 {
		return VersionPayload{}, false
	}
	return VersionPayload{
		Major: payload[0],
		Minor: payload[1],
		Build: binary.LittleEndian.Uint16(payload[2:4]),
	}, true
}

// ErrorPayload is the body of MsgError.
// Layout: Code(1).
type ErrorPayload struct {
	Code byte
}

// Marshal encodes the payload in wire layout.
func (e ErrorPayload) Marshal() []byte {
	return []byte{e.Code}
}

// DecodeErrorPayload validates and decodes a MsgError body.
func DecodeErrorPayload(payload []byte) (ErrorPayload, bool) {
	if len(payload) < 1 {
		return ErrorPayload{}, false
	}
	return ErrorPayload{Code: payload[0]}, true
}

// SendPing sends a heartbeat request.
func (l *Link) SendPing() error {
	return l.Send(MsgPing, nil)
}

// SendPong answers a ping.
func (l *Link) SendPong() error {
	return l.Send(MsgPong, nil)
}

// SendVersion sends a protocol version response.
func (l *Link) SendVersion(v VersionPayload) error {
	return l.Send(MsgVersion, v.Marshal())
}

// SendError sends an error response with the given code.
func (l *Link) SendError(code byte) error {
	return l.Send(MsgError, ErrorPayload{Code: code}.Marshal())
}

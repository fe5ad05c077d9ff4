package goetherlink

/*
 * Etherlink Protocol Library in Go
 *
 * A Go implementation of the Etherlink framed binary protocol for
 * bidirectional communication with embedded devices over serial or
 * wireless byte streams.
 *
 * Features:
 * - CRC8 Validation (polynomial 0x07, CRC-8/CCITT)
 * - Fixed-header framing: [SYNC 0xA5] [MSG_ID] [LENGTH] [PAYLOAD...] [CRC8]
 * - Incremental parser with bounded memory and automatic resynchronization
 * - Designed for serial and wireless communication
 *
 * License: MIT License
 */

import "errors"

// Protocol constants.
const (
	SyncByte      byte = 0xA5
	MaxPayload         = 250
	FrameOverhead      = 4 // SYNC + MSG_ID + LEN + CRC
)

// Reserved system message IDs (0x00 - 0x0F). The remaining ranges are a
// convention the engine does not enforce: 0x10-0x7F telemetry (device to
// host), 0x80-0xFE commands (host to device), 0xFF reserved.
const (
	MsgPing    byte = 0x00 // heartbeat/ping request
	MsgPong    byte = 0x01 // ping response
	MsgVersion byte = 0x02 // protocol version query/response
	MsgError   byte = 0x0F // error response
)

var (
	ErrNilHandler      = errors.New("goetherlink: message handler is required")
	ErrNilSink         = errors.New("goetherlink: byte sink is required")
	ErrPayloadTooLarge = errors.New("goetherlink: payload exceeds 250 bytes")
)

// MessageHandler is invoked synchronously, once per valid received frame.
// The payload slice is a view into the link's receive buffer and is only
// valid for the duration of the call; copy it to retain it.
type MessageHandler func(msgID byte, payload []byte)

// ByteSink transmits an encoded frame over the physical link. It is called
// exactly once per sent frame with the complete wire bytes. Transmission
// failures are the sink's own concern and are never reported back through
// the encoder.
type ByteSink func(data []byte)

// Stats holds the frame counters of a Link.
type Stats struct {
	RxFrames uint32 // frames received with a valid CRC
	RxErrors uint32 // frames rejected (invalid length or CRC mismatch)
	TxFrames uint32 // frames encoded and handed to the sink
}

// Link is the protocol context: the two callbacks, parser state, a fixed
// receive buffer and the frame counters. It is not internally synchronized;
// it must be driven from a single goroutine, or the owner must serialize
// access externally.
type Link struct {
	onMessage MessageHandler
	sendBytes ByteSink

	state      parseState
	msgID      byte
	payloadLen int
	payloadIdx int
	rxBuf      [MaxPayload]byte
	runningCRC byte

	stats Stats
}

// NewLink creates a protocol link. Both callbacks are required.
func NewLink(onMessage MessageHandler, sendBytes ByteSink) (*Link, error) {
	if onMessage == nil {
		return nil, ErrNilHandler
	}
	if sendBytes == nil {
		return nil, ErrNilSink
	}
	return &Link{onMessage: onMessage, sendBytes: sendBytes}, nil
}

// Reset returns the parser to the idle state, discarding any frame in
// progress. Counters and buffer contents are left untouched. Call it after
// a transport reconnect so a stale partial parse cannot merge with bytes
// from the new session.
func (l *Link) Reset() {
	l.state = stateIdle
	l.payloadIdx = 0
	l.runningCRC = 0
}

// Stats returns a snapshot of the frame counters.
func (l *Link) Stats() Stats {
	return l.stats
}

// Send encodes msgID and payload into one frame and hands it to the byte
// sink in a single call. payload may be nil for a zero-length frame. The
// transmitted counter increments whenever the arguments validate; the sink's
// own outcome is invisible here.
func (l *Link) Send(msgID byte, payload []byte) error {
	if len(payload) > MaxPayload {
		return ErrPayloadTooLarge
	}

	var frame [FrameOverhead + MaxPayload]byte
	frame[0] = SyncByte
	frame[1] = msgID
	frame[2] = byte(len(payload))
	n := 3 + copy(frame[3:], payload)
	frame[n] = CRC8(frame[1:n]) // over msg id + length + payload
	n++

	l.sendBytes(frame[:n])
	l.stats.TxFrames++
	return nil
}

package goetherlink

// Frame parser state machine. Exactly one transition per consumed byte, no
// look-ahead, no allocation: memory use is bounded by the fixed receive
// buffer regardless of input.

type parseState int

const (
	stateIdle       parseState = iota // waiting for sync byte
	stateGotSync                      // got sync, waiting for msg id
	stateGotID                        // got msg id, waiting for length
	stateGotLen                       // got length, receiving payload
	stateGotPayload                   // got payload, waiting for CRC
)

// ProcessByte drives the parser one step. A frame completing on this byte
// with a valid CRC invokes the message handler synchronously before
// ProcessByte returns. Corruption never stops the parser: a bad length or
// CRC drops the frame, bumps the error counter and returns to idle, where
// the next sync byte in the stream starts a fresh parse.
func (l *Link) ProcessByte(b byte) {
	switch l.state {
	case stateIdle:
		if b == SyncByte {
			l.runningCRC = 0
			l.state = stateGotSync
		}

	case stateGotSync:
		l.msgID = b
		l.runningCRC = CRC8Update(l.runningCRC, b)
		l.state = stateGotID

	case stateGotID:
		l.payloadLen = int(b)
		l.runningCRC = CRC8Update(l.runningCRC, b)
		switch {
		case l.payloadLen > MaxPayload:
			l.stats.RxErrors++
			l.state = stateIdle
		case l.payloadLen == 0:
			l.state = stateGotPayload
		default:
			l.payloadIdx = 0
			l.state = stateGotLen
		}

	case stateGotLen:
		l.rxBuf[l.payloadIdx] = b
		l.payloadIdx++
		l.runningCRC = CRC8Update(l.runningCRC, b)
		if l.payloadIdx >= l.payloadLen {
			l.state = stateGotPayload
		}

	case stateGotPayload:
		if b == l.runningCRC {
			l.stats.RxFrames++
			l.onMessage(l.msgID, l.rxBuf[:l.payloadLen])
		} else {
			l.stats.RxErrors++
		}
		l.state = stateIdle
	}
}

// ProcessBytes feeds a received chunk through the parser in arrival order.
// Handler invocations interleave with byte consumption, one per accepted
// frame.
func (l *Link) ProcessBytes(data []byte) {
	for _, b := range data {
		l.ProcessByte(b)
	}
}
